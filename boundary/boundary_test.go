package boundary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/c360/boundary/errors"
	"github.com/c360/boundary/metric"
	"github.com/c360/boundary/pkg/queue"
	"github.com/c360/boundary/transport"
	"github.com/c360/boundary/wire"
)

func TestNew_Subjects(t *testing.T) {
	h := newHarnessWithConfig(t, Config{BindAddress: "cp.", Port: "5555"})

	assert.Regexp(t, `^cp\.request\.[0-9a-f]{12}$`, h.b.RequestAddress().Subject)
	assert.Equal(t, "cp.announce.5555", h.b.AnnounceAddress().Subject)
	assert.True(t, strings.HasPrefix(h.b.KeepaliveAddress().Subject, "cp.keepalive."))
	assert.True(t, strings.HasPrefix(h.b.NotifyAddress().Subject, "cp.notify."))
	assert.Equal(t, "inproc://bus", h.b.RequestAddress().URL)

	assert.Equal(t, 1, h.bus.Subscribers(h.b.RequestAddress().Subject))
	assert.Equal(t, 1, h.bus.Subscribers(h.b.NotifyAddress().Subject))
}

func TestNew_NilConnection(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	require.Error(t, err)
	assert.True(t, berrors.IsInvalid(err))
}

func TestStart_Twice(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	assert.ErrorIs(t, h.b.Start(context.Background()), berrors.ErrAlreadyStarted)
}

func TestRegisterRequestCategory_AfterStart(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	err := h.b.RegisterRequestCategory(ByCategory("late"), queue.New[Notice]())
	assert.ErrorIs(t, err, berrors.ErrAlreadyStarted)
}

func TestRouting_FirstMatchWins(t *testing.T) {
	h := newHarness(t)

	echo := queue.New[Notice]()
	all := queue.New[Notice]()
	require.NoError(t, h.b.RegisterRequestCategory(ByCategory("echo"), echo))
	require.NoError(t, h.b.RegisterRequestCategory(func(*wire.Request) bool { return true }, all))

	echoReqs := manualConsumer(echo, nil)
	allReqs := manualConsumer(all, nil)
	h.start(t)

	echoInbox := h.request(t, "echo", nil)
	otherInbox := h.request(t, "other", nil)

	assert.Equal(t, "echo", awaitRequest(t, echoReqs).Category)
	got := awaitRequest(t, allReqs)
	assert.Equal(t, "other", got.Category)
	assert.Equal(t, h.b.RequestAddress().Subject, got.Socket())

	// routing alone answers nothing; the consumer owns the reply
	assertSilent(t, echoInbox, 200*time.Millisecond)
	assertSilent(t, otherInbox, 10*time.Millisecond)
	assert.Empty(t, echoReqs)
	assert.Empty(t, allReqs)
}

func TestLoop_DrainsCommandsBeforeSockets(t *testing.T) {
	conn := newStagedConn()
	b, err := New(conn, Config{BindAddress: "test", PollTimeout: 20 * time.Millisecond},
		WithLogger(quietLogger()), WithExitFunc(func(int) {}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Join(context.Background()) })

	inbox := conn.NewInbox()
	replies, err := conn.Bus.Subscribe(inbox)
	require.NoError(t, err)
	defer replies.Unsubscribe()

	subject := b.RequestAddress().Subject

	// a reply for an earlier request is ready...
	earlier, err := wire.NewRequest("work", nil)
	require.NoError(t, err)
	f, err := earlier.Frame(subject, inbox)
	require.NoError(t, err)
	received, err := wire.Receive(f, subject)
	require.NoError(t, err)
	rep, err := wire.NewReply("done")
	require.NoError(t, err)
	require.NoError(t, b.EnqueueReply(received, rep))

	// ...when a request nobody serves arrives in the same instant
	later, err := wire.NewRequest("nobody", nil)
	require.NoError(t, err)
	f, err = later.Frame(subject, inbox)
	require.NoError(t, err)
	conn.stage(subject, f)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	stop, err := b.iterate(context.Background(), timer)
	require.NoError(t, err)
	assert.False(t, stop)

	first := awaitReply(t, replies)
	assert.Equal(t, earlier.ID, first.RequestID)
	assert.Equal(t, wire.KindReply, first.Kind)

	second := awaitReply(t, replies)
	assert.Equal(t, later.ID, second.RequestID)
	assert.True(t, second.IsExited())
}

func TestRouting_UnroutableGetsExited(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newHarness(t, WithMetrics(registry))
	h.start(t)

	rep := awaitReply(t, h.request(t, "nobody", nil))
	assert.True(t, rep.IsExited())
	assert.ErrorIs(t, rep.Err(), berrors.ErrBoundaryExited)

	m := registry.CoreMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExitedReplies.WithLabelValues(reasonUnroutable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsReceived.WithLabelValues("router")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("invalid")))
	assert.Equal(t, 1, h.b.Health().Metrics.ErrorCount)
}

func TestExitReason(t *testing.T) {
	tests := []struct {
		cause    error
		expected string
	}{
		{berrors.ErrUnroutable, reasonUnroutable},
		{fmt.Errorf("%w: category %q", berrors.ErrUnroutable, "x"), reasonUnroutable},
		{fmt.Errorf("%w: notify", berrors.ErrWrongSocket), reasonWrongSocket},
		{berrors.ErrNoAnalysis, reasonNoAnalysis},
		{berrors.WrapInvalid(berrors.ErrUnknownAnalysis, "Boundary", "dispatch", "route request"), reasonUnknownAnalysis},
		{errors.New("elsewhere"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, exitReason(tt.cause))
		})
	}
}

func TestRouting_UndecodableFrameRejected(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	inbox := h.bus.NewInbox()
	sub, err := h.bus.Subscribe(inbox)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, h.bus.Publish(context.Background(), transport.Frame{
		Subject: h.b.RequestAddress().Subject,
		Reply:   inbox,
		Data:    []byte("not json"),
	}))

	assert.True(t, awaitReply(t, sub).IsExited())
}

func TestReply_DeliveredOnce(t *testing.T) {
	h := newHarness(t)
	q := queue.New[Notice]()
	require.NoError(t, h.b.RegisterRequestCategory(ByCategory("once"), q))
	reqs := manualConsumer(q, nil)
	h.start(t)

	inbox := h.request(t, "once", nil)
	req := awaitRequest(t, reqs)

	first, err := wire.NewReply("first")
	require.NoError(t, err)
	second, err := wire.NewReply("second")
	require.NoError(t, err)
	require.NoError(t, req.Reply(first))
	require.NoError(t, req.Reply(second))

	var got string
	require.NoError(t, awaitReply(t, inbox).Decode(&got))
	assert.Equal(t, "first", got)
	assertSilent(t, inbox, 100*time.Millisecond)

	assert.Eventually(t, func() bool {
		return h.b.Health().Metrics.ErrorCount == 1
	}, waitFor, 10*time.Millisecond)
}

func TestNotify_StopSignal(t *testing.T) {
	h := newHarness(t)
	keepalive, err := h.bus.Subscribe(h.b.KeepaliveAddress().Subject)
	require.NoError(t, err)
	defer keepalive.Unsubscribe()
	h.start(t)

	require.NoError(t, h.bus.Publish(context.Background(), transport.Frame{
		Subject: h.b.NotifyAddress().Subject,
		Data:    wire.NotifyStop,
	}))

	awaitDone(t, h.b)
	awaitWord(t, keepalive, wire.KeepaliveStop)
}

func TestNotify_WakeupIgnored(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.NoError(t, h.bus.Publish(context.Background(), transport.Frame{
		Subject: h.b.NotifyAddress().Subject,
		Data:    wire.NotifyWakeup,
	}))

	select {
	case <-h.b.Done():
		t.Fatal("wakeup stopped the loop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotify_AnalysisRequestWrongSocket(t *testing.T) {
	h := newHarness(t)
	aq := queue.New[*wire.Request]()
	require.NoError(t, h.b.RegisterAnalysis("a-1", aq))
	h.start(t)

	req, err := wire.NewAnalysisRequest("a-1", "work", nil)
	require.NoError(t, err)
	inbox := h.send(t, req, h.b.NotifyAddress().Subject)

	assert.True(t, awaitReply(t, inbox).IsExited())
	assert.Equal(t, 0, aq.Len())
}

func TestNotify_RoutedRequest(t *testing.T) {
	h := newHarness(t)
	q := queue.New[Notice]()
	require.NoError(t, h.b.RegisterRequestCategory(ByCategory("side"), q))
	reqs := manualConsumer(q, nil)
	h.start(t)

	req, err := wire.NewRequest("side", nil)
	require.NoError(t, err)
	h.send(t, req, h.b.NotifyAddress().Subject)

	assert.Equal(t, h.b.NotifyAddress().Subject, awaitRequest(t, reqs).Socket())
}

func TestKeepalive_HeartbeatsAndFinalStop(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newHarness(t, WithMetrics(registry))
	keepalive, err := h.bus.Subscribe(h.b.KeepaliveAddress().Subject)
	require.NoError(t, err)
	defer keepalive.Unsubscribe()
	h.start(t)

	awaitWord(t, keepalive, wire.KeepaliveRun)
	require.NoError(t, h.b.Join(context.Background()))
	awaitWord(t, keepalive, wire.KeepaliveStop)

	assert.GreaterOrEqual(t, testutil.ToFloat64(registry.CoreMetrics().Heartbeats), 1.0)
}

func TestKeepalive_RateLimited(t *testing.T) {
	h := newHarnessWithConfig(t, Config{
		BindAddress:       "test",
		PollTimeout:       5 * time.Millisecond,
		HeartbeatInterval: time.Hour,
	})
	keepalive, err := h.bus.Subscribe(h.b.KeepaliveAddress().Subject)
	require.NoError(t, err)
	defer keepalive.Unsubscribe()
	h.start(t)

	awaitWord(t, keepalive, wire.KeepaliveRun)
	assertSilent(t, keepalive, 100*time.Millisecond)
}

func TestSendStop(t *testing.T) {
	h := newHarness(t)
	keepalive, err := h.bus.Subscribe(h.b.KeepaliveAddress().Subject)
	require.NoError(t, err)
	defer keepalive.Unsubscribe()
	h.start(t)

	require.NoError(t, h.b.SendStop())
	awaitWord(t, keepalive, wire.KeepaliveStop)

	select {
	case <-h.b.Done():
		t.Fatal("SendStop stopped the loop")
	default:
	}
}

func TestAnnounce(t *testing.T) {
	h := newHarness(t)
	announce, err := h.bus.Subscribe(h.b.AnnounceAddress().Subject)
	require.NoError(t, err)
	defer announce.Unsubscribe()
	h.start(t)

	require.NoError(t, h.b.Announce([]byte(`{"workers":2}`)))

	select {
	case f := <-announce.Frames():
		assert.JSONEq(t, `{"workers":2}`, string(f.Data))
	case <-time.After(waitFor):
		t.Fatal("no announcement")
	}
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.bus.FailPublish(h.b.KeepaliveAddress().Subject, errors.New("broker unavailable"))
	h.start(t)

	assert.Eventually(t, func() bool {
		return h.b.Health().Metrics.ErrorCount > 0
	}, waitFor, 10*time.Millisecond)

	select {
	case code := <-h.exits:
		t.Fatalf("loop exited with %d", code)
	default:
	}
}

func TestLoopPanicExitsProcess(t *testing.T) {
	h := newHarness(t)
	q := queue.New[Notice]()
	require.NoError(t, h.b.RegisterRequestCategory(func(*wire.Request) bool { panic("matcher broke") }, q))
	h.start(t)

	h.request(t, "boom", nil)

	select {
	case code := <-h.exits:
		assert.Equal(t, -1, code)
	case <-time.After(waitFor):
		t.Fatal("exit hook not called")
	}
	awaitDone(t, h.b)
	assert.True(t, h.b.Health().IsUnhealthy())
}

func TestShutdown_StopsConsumersInOrder(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var order []string
	consumer := func(name string, q *queue.Queue[Notice], ack any) {
		go func() {
			for {
				n, err := q.Pop(context.Background())
				if err != nil || n.Kind != NotifyStop {
					continue
				}
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				n.Ack <- ack
				return
			}
		}()
	}

	first := queue.New[Notice]()
	second := queue.New[Notice]()
	require.NoError(t, h.b.RegisterRequestCategory(ByCategory("a"), first))
	require.NoError(t, h.b.RegisterRequestCategory(ByCategory("b"), second))

	joiner := &recordingJoiner{}
	consumer("first", first, nil)
	consumer("second", second, joiner)
	h.start(t)

	require.NoError(t, h.b.Join(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
	assert.True(t, joiner.joined())
	assert.Equal(t, 0, h.bus.Subscribers(h.b.RequestAddress().Subject))
	assert.Equal(t, 0, h.bus.Subscribers(h.b.NotifyAddress().Subject))
}

func TestJoin_BeforeStart(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.b.Join(context.Background()))
	awaitDone(t, h.b)
	assert.ErrorIs(t, h.b.Start(context.Background()), berrors.ErrAlreadyStopped)
	assert.ErrorIs(t, h.b.Announce(nil), berrors.ErrAlreadyStopped)
}

func TestJoin_ContextExpires(t *testing.T) {
	h := newHarness(t)
	q := queue.New[Notice]()
	require.NoError(t, h.b.RegisterRequestCategory(ByCategory("stuck"), q))
	h.start(t)

	// nobody acknowledges the stop, so the loop cannot finish shutting down
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.b.Join(ctx)
	require.Error(t, err)
	assert.True(t, berrors.IsTransient(err))

	n, err := q.Pop(context.Background())
	require.NoError(t, err)
	require.Equal(t, NotifyStop, n.Kind)
	n.Ack <- nil
	awaitDone(t, h.b)
}

func TestStart_ContextCancelStopsLoop(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.b.Start(ctx))

	cancel()
	awaitDone(t, h.b)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	assert.True(t, h.b.Health().IsDegraded())

	h.start(t)
	st := h.b.Health()
	assert.True(t, st.IsHealthy())
	assert.Equal(t, "boundary", st.Component)

	require.NoError(t, h.b.Join(context.Background()))
	assert.True(t, h.b.Health().IsUnhealthy())
}

type recordingJoiner struct {
	mu   sync.Mutex
	done bool
}

func (j *recordingJoiner) Join() {
	j.mu.Lock()
	j.done = true
	j.mu.Unlock()
}

func (j *recordingJoiner) joined() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

func awaitWord(t *testing.T, sub transport.Subscription, word []byte) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case f := <-sub.Frames():
			if string(f.Data) == string(word) {
				return
			}
		case <-deadline:
			t.Fatalf("%q never published on %s", word, sub.Subject())
		}
	}
}
