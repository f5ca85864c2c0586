package boundary

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/boundary/pkg/queue"
	"github.com/c360/boundary/transport"
	"github.com/c360/boundary/wire"
)

const waitFor = 2 * time.Second

type harness struct {
	bus   *transport.Bus
	b     *Boundary
	exits chan int
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return newHarnessWithConfig(t, Config{BindAddress: "test", PollTimeout: 20 * time.Millisecond}, opts...)
}

func newHarnessWithConfig(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		bus:   transport.NewBus(),
		exits: make(chan int, 1),
	}
	all := append([]Option{
		WithLogger(quietLogger()),
		WithExitFunc(func(code int) { h.exits <- code }),
	}, opts...)

	b, err := New(h.bus, cfg, all...)
	require.NoError(t, err)
	h.b = b

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = b.Join(ctx)
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.b.Start(context.Background()))
}

// send publishes req on subject with a fresh reply inbox and returns the
// inbox subscription.
func (h *harness) send(t *testing.T, req *wire.Request, subject string) transport.Subscription {
	t.Helper()
	inbox := h.bus.NewInbox()
	sub, err := h.bus.Subscribe(inbox)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	f, err := req.Frame(subject, inbox)
	require.NoError(t, err)
	require.NoError(t, h.bus.Publish(context.Background(), f))
	return sub
}

func (h *harness) request(t *testing.T, category string, payload any) transport.Subscription {
	t.Helper()
	req, err := wire.NewRequest(category, payload)
	require.NoError(t, err)
	return h.send(t, req, h.b.RequestAddress().Subject)
}

func (h *harness) analysisRequest(t *testing.T, analysisID string) transport.Subscription {
	t.Helper()
	req, err := wire.NewAnalysisRequest(analysisID, "work", nil)
	require.NoError(t, err)
	return h.send(t, req, h.b.RequestAddress().Subject)
}

func awaitReply(t *testing.T, sub transport.Subscription) *wire.Reply {
	t.Helper()
	select {
	case f := <-sub.Frames():
		rep, err := wire.DecodeReply(f)
		require.NoError(t, err)
		return rep
	case <-time.After(waitFor):
		t.Fatalf("no reply on %s", sub.Subject())
		return nil
	}
}

func assertSilent(t *testing.T, sub transport.Subscription, d time.Duration) {
	t.Helper()
	select {
	case f := <-sub.Frames():
		t.Fatalf("unexpected frame on %s: %s", sub.Subject(), f.Data)
	case <-time.After(d):
	}
}

func awaitDone(t *testing.T, b *Boundary) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(waitFor):
		t.Fatal("boundary loop did not exit")
	}
}

// manualConsumer forwards routed requests on the returned channel and
// acknowledges a stop with ack.
func manualConsumer(q *queue.Queue[Notice], ack any) <-chan *wire.Request {
	out := make(chan *wire.Request, 16)
	go func() {
		for {
			n, err := q.Pop(context.Background())
			if err != nil {
				return
			}
			if n.Kind == NotifyStop {
				n.Ack <- ack
				return
			}
			out <- n.Request
		}
	}()
	return out
}

func awaitRequest(t *testing.T, ch <-chan *wire.Request) *wire.Request {
	t.Helper()
	select {
	case req := <-ch:
		return req
	case <-time.After(waitFor):
		t.Fatal("no request routed")
		return nil
	}
}

func popRequest(t *testing.T, q *queue.Queue[*wire.Request]) *wire.Request {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	req, err := q.Pop(ctx)
	require.NoError(t, err)
	return req
}

// stagedConn publishes through an in-process bus but hands the boundary
// subscriptions whose frames the test stages itself, so several inputs can
// be waiting before a single loop iteration.
type stagedConn struct {
	*transport.Bus

	mu   sync.Mutex
	subs map[string]*stagedSubscription
}

func newStagedConn() *stagedConn {
	return &stagedConn{Bus: transport.NewBus(), subs: make(map[string]*stagedSubscription)}
}

func (c *stagedConn) Subscribe(subject string) (transport.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := &stagedSubscription{subject: subject, frames: make(chan transport.Frame, 16)}
	c.subs[subject] = sub
	return sub, nil
}

func (c *stagedConn) stage(subject string, f transport.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[subject].frames <- f
}

type stagedSubscription struct {
	subject string
	frames  chan transport.Frame
}

func (s *stagedSubscription) Subject() string                { return s.subject }
func (s *stagedSubscription) Frames() <-chan transport.Frame { return s.frames }
func (s *stagedSubscription) Unsubscribe() error             { return nil }
