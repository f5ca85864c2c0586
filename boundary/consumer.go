package boundary

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/boundary/metric"
	"github.com/c360/boundary/pkg/queue"
	"github.com/c360/boundary/pkg/worker"
	"github.com/c360/boundary/wire"
)

// NoticeKind tells a consumer what a Notice carries
type NoticeKind int

const (
	// NotifyRequest carries a request routed to the consumer
	NotifyRequest NoticeKind = iota
	// NotifyStop asks the consumer to stop. It must send exactly one value
	// on Ack; if that value is a Joiner the boundary joins it.
	NotifyStop
)

func (k NoticeKind) String() string {
	if k == NotifyStop {
		return "stop"
	}
	return "request"
}

// Notice is what the boundary pushes onto a consumer queue
type Notice struct {
	Boundary *Boundary
	Kind     NoticeKind
	Request  *wire.Request
	Ack      chan<- any
}

// Joiner is an acknowledgment the boundary waits on during shutdown
type Joiner interface {
	Join()
}

// Handler answers one routed request. A nil reply is sent as an empty one.
type Handler func(ctx context.Context, req *wire.Request) (*wire.Reply, error)

// StatusCategory is the request category answered by StatusHandler
const StatusCategory = "status"

// StatusHandler answers with the boundary's health status
func StatusHandler(b *Boundary) Handler {
	return func(_ context.Context, _ *wire.Request) (*wire.Reply, error) {
		return wire.NewReply(b.Health())
	}
}

type serveOptions struct {
	workers     int
	stopTimeout time.Duration
	logger      *slog.Logger
	registry    *metric.MetricsRegistry
	poolName    string
}

// ServeOption configures Serve
type ServeOption func(*serveOptions)

// WithWorkers sets how many requests are handled concurrently
func WithWorkers(n int) ServeOption {
	return func(o *serveOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithStopTimeout bounds how long Serve waits for in-flight handlers on stop
func WithStopTimeout(d time.Duration) ServeOption {
	return func(o *serveOptions) {
		if d > 0 {
			o.stopTimeout = d
		}
	}
}

// WithServeLogger sets the consumer's logger
func WithServeLogger(logger *slog.Logger) ServeOption {
	return func(o *serveOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPoolMetrics registers the consumer's worker pool metrics under name
func WithPoolMetrics(registry *metric.MetricsRegistry, name string) ServeOption {
	return func(o *serveOptions) {
		o.registry = registry
		o.poolName = name
	}
}

// Serve consumes q, running handler for each routed request on a worker
// pool. It returns once the boundary asks it to stop, after acknowledging
// with the pool so the boundary can join the workers. Requests arriving
// after ctx ends are answered with an exited reply.
func Serve(ctx context.Context, q *queue.Queue[Notice], handler Handler, opts ...ServeOption) error {
	o := serveOptions{
		workers:     1,
		stopTimeout: 5 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "consumer")

	process := func(workCtx context.Context, n Notice) error {
		req := n.Request
		if ctx.Err() != nil {
			return req.Reply(wire.BoundaryExited())
		}
		rep, err := handler(workCtx, req)
		if err != nil {
			logger.Warn("Request handler failed", "category", req.Category, "id", req.ID, "error", err)
			if replyErr := req.Reply(wire.ErrorReply(err.Error())); replyErr != nil {
				logger.Debug("Error reply not delivered", "id", req.ID, "error", replyErr)
			}
			return err
		}
		if rep == nil {
			if rep, err = wire.NewReply(nil); err != nil {
				return err
			}
		}
		return req.Reply(rep)
	}

	poolOpts := []worker.Option[Notice]{worker.WithLogger[Notice](logger)}
	if o.registry != nil && o.poolName != "" {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[Notice](o.registry, o.poolName))
	}
	pool := worker.NewPool(o.workers, process, poolOpts...)

	// workers outlive ctx so queued requests still get their exited reply
	if err := pool.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	for {
		n, err := q.Pop(context.Background())
		if err != nil {
			return err
		}

		switch n.Kind {
		case NotifyStop:
			logger.Debug("Consumer received stop")
			if n.Ack != nil {
				n.Ack <- pool
			}
			if err := pool.Stop(o.stopTimeout); err != nil {
				logger.Warn("Consumer workers did not stop in time", "error", err)
			}
			return nil
		case NotifyRequest:
			if n.Request == nil {
				continue
			}
			if err := pool.Submit(n); err != nil {
				logger.Warn("Request not accepted", "id", n.Request.ID, "error", err)
				_ = n.Request.Reply(wire.BoundaryExited())
			}
		}
	}
}
