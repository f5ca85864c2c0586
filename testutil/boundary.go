package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/c360/boundary/boundary"
	"github.com/c360/boundary/pkg/queue"
	"github.com/c360/boundary/transport"
	"github.com/c360/boundary/wire"
)

// DefaultTimeout bounds every wait in this package
const DefaultTimeout = 2 * time.Second

// Route binds a handler to one request category
type Route struct {
	Category string
	Handler  boundary.Handler
}

// QuietLogger discards everything
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StartBoundary creates and starts a boundary on bus with one Serve
// consumer per route. A zero PollTimeout is replaced by a short one.
func StartBoundary(t testing.TB, bus *transport.Bus, cfg boundary.Config, routes ...Route) *boundary.Boundary {
	t.Helper()
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 20 * time.Millisecond
	}

	b, err := boundary.New(bus, cfg, boundary.WithLogger(QuietLogger()))
	if err != nil {
		t.Fatalf("create boundary: %v", err)
	}

	for _, r := range routes {
		r := r
		q := queue.New[boundary.Notice]()
		if err := b.RegisterRequestCategory(boundary.ByCategory(r.Category), q); err != nil {
			t.Fatalf("register %s: %v", r.Category, err)
		}
		go func() {
			_ = boundary.Serve(context.Background(), q, r.Handler, boundary.WithServeLogger(QuietLogger()))
		}()
	}

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start boundary: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		_ = b.Join(ctx)
	})
	return b
}

// SquareHandler replies with the square of an integer payload
func SquareHandler(_ context.Context, req *wire.Request) (*wire.Reply, error) {
	var n int
	if err := req.Decode(&n); err != nil {
		return nil, err
	}
	return wire.NewReply(n * n)
}

// EchoHandler replies with the request payload unchanged
func EchoHandler(_ context.Context, req *wire.Request) (*wire.Reply, error) {
	return &wire.Reply{Kind: wire.KindReply, Payload: req.Payload}, nil
}
