package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscription) Frame {
	t.Helper()
	select {
	case f := <-sub.Frames():
		return f
	case <-time.After(time.Second):
		t.Fatalf("no frame on %s", sub.Subject())
		return Frame{}
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	sub, err := bus.Subscribe("a.b")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, bus.Publish(ctx, Frame{Subject: "a.b", Reply: "inbox", Data: []byte("x")}))

	f := receive(t, sub)
	assert.Equal(t, "a.b", f.Subject)
	assert.Equal(t, "inbox", f.Reply)
	assert.Equal(t, []byte("x"), f.Data)
	assert.Equal(t, int64(1), bus.Published())
}

func TestBus_FanOutAndOrder(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	first, _ := bus.Subscribe("s")
	second, _ := bus.Subscribe("s")
	assert.Equal(t, 2, bus.Subscribers("s"))

	for _, d := range []string{"1", "2", "3"} {
		require.NoError(t, bus.Publish(ctx, Frame{Subject: "s", Data: []byte(d)}))
	}

	for _, sub := range []Subscription{first, second} {
		for _, want := range []string{"1", "2", "3"} {
			assert.Equal(t, want, string(receive(t, sub).Data))
		}
	}
}

func TestBus_PublishCopiesData(t *testing.T) {
	bus := NewBus()
	sub, _ := bus.Subscribe("s")

	data := []byte("abc")
	require.NoError(t, bus.Publish(context.Background(), Frame{Subject: "s", Data: data}))
	data[0] = 'z'

	assert.Equal(t, "abc", string(receive(t, sub).Data))
}

func TestBus_NoSubscriberDrops(t *testing.T) {
	bus := NewBus()
	assert.NoError(t, bus.Publish(context.Background(), Frame{Subject: "nobody"}))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	sub, _ := bus.Subscribe("s")

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, bus.Subscribers("s"))

	require.NoError(t, bus.Publish(context.Background(), Frame{Subject: "s"}))
	select {
	case <-sub.Frames():
		t.Fatal("frame after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_FailPublish(t *testing.T) {
	bus := NewBus()
	boom := errors.New("broker unavailable")

	bus.FailPublish("s", boom)
	err := bus.Publish(context.Background(), Frame{Subject: "s"})
	assert.ErrorIs(t, err, boom)

	bus.FailPublish("s", nil)
	assert.NoError(t, bus.Publish(context.Background(), Frame{Subject: "s"}))
}

func TestBus_PublishCancelledContext(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.Publish(ctx, Frame{Subject: "s"}), context.Canceled)
}

func TestBus_InboxesUnique(t *testing.T) {
	bus := NewBus()
	a, b := bus.NewInbox(), bus.NewInbox()
	assert.NotEqual(t, a, b)
	assert.Equal(t, "inproc://bus", bus.ServerURL())

	_, err := bus.Subscribe("")
	assert.Error(t, err)
}
