package peer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/boundary/boundary"
	berrors "github.com/c360/boundary/errors"
	"github.com/c360/boundary/peer"
	"github.com/c360/boundary/testutil"
	"github.com/c360/boundary/transport"
	"github.com/c360/boundary/wire"
)

var squareRoute = testutil.Route{Category: "square", Handler: testutil.SquareHandler}

func TestClient_Do(t *testing.T) {
	bus := transport.NewBus()
	b := testutil.StartBoundary(t, bus, boundary.Config{}, squareRoute)
	c := peer.NewClient(bus, peer.WithLogger(testutil.QuietLogger()), peer.WithTimeout(2*time.Second))

	req, err := wire.NewRequest("square", 9)
	require.NoError(t, err)

	var got int
	require.NoError(t, c.Do(context.Background(), b.RequestAddress().Subject, req, &got))
	assert.Equal(t, 81, got)
}

func TestClient_ExitedReply(t *testing.T) {
	bus := transport.NewBus()
	b := testutil.StartBoundary(t, bus, boundary.Config{}, squareRoute)
	c := peer.NewClient(bus, peer.WithLogger(testutil.QuietLogger()))

	req, err := wire.NewRequest("unknown", nil)
	require.NoError(t, err)

	err = c.Do(context.Background(), b.RequestAddress().Subject, req, nil)
	assert.ErrorIs(t, err, berrors.ErrBoundaryExited)
}

func TestClient_CallTimesOut(t *testing.T) {
	bus := transport.NewBus()
	c := peer.NewClient(bus, peer.WithTimeout(50*time.Millisecond))

	req, err := wire.NewRequest("square", 2)
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "nobody.listens", req)
	require.Error(t, err)
	assert.True(t, berrors.IsTransient(err))
}

func TestWatchKeepalive_OrderlyStop(t *testing.T) {
	bus := transport.NewBus()
	b, err := boundary.New(bus, boundary.Config{PollTimeout: 10 * time.Millisecond}, boundary.WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)

	watched := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		watched <- peer.WatchKeepalive(context.Background(), bus, b.KeepaliveAddress().Subject, time.Second)
	}()
	<-ready
	require.Eventually(t, func() bool {
		return bus.Subscribers(b.KeepaliveAddress().Subject) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, b.Join(context.Background()))

	select {
	case err := <-watched:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not see the stop")
	}
}

func TestWatchKeepalive_Silence(t *testing.T) {
	bus := transport.NewBus()
	err := peer.WatchKeepalive(context.Background(), bus, "boundary.keepalive.none", 30*time.Millisecond)
	assert.ErrorIs(t, err, peer.ErrHeartbeatLost)
}

func TestAnnouncements(t *testing.T) {
	bus := transport.NewBus()
	b := testutil.StartBoundary(t, bus, boundary.Config{Port: "7000"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := peer.Announcements(ctx, bus, b.AnnounceAddress().Subject)
	require.NoError(t, err)

	require.NoError(t, b.Announce([]byte("hello")))

	select {
	case a := <-ch:
		assert.Equal(t, "boundary.announce.7000", a.Subject)
		assert.Equal(t, []byte("hello"), a.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no announcement")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestClient_EchoPayloads(t *testing.T) {
	bus := transport.NewBus()
	b := testutil.StartBoundary(t, bus, boundary.Config{},
		testutil.Route{Category: "echo", Handler: testutil.EchoHandler})
	c := peer.NewClient(bus, peer.WithLogger(testutil.QuietLogger()))

	for _, m := range testutil.TestMeasurements {
		req, err := wire.NewRequest("echo", m)
		require.NoError(t, err)

		var got testutil.Measurement
		require.NoError(t, c.Do(context.Background(), b.RequestAddress().Subject, req, &got))
		assert.Equal(t, m, got)
	}

	for i, p := range testutil.TestPayloads {
		req := &wire.Request{ID: fmt.Sprintf("echo-%d", i), Category: "echo", Payload: []byte(p)}
		rep, err := c.Call(context.Background(), b.RequestAddress().Subject, req)
		require.NoError(t, err)
		assert.JSONEq(t, p, string(rep.Payload))
	}
}
