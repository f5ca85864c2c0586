// Package worker provides a generic worker pool for boundary consumers.
//
// # Overview
//
// A Pool runs a fixed number of goroutines that pull items from an unbounded
// queue (package queue) and pass them to a processor function:
//
//	pool := worker.NewPool(4, func(ctx context.Context, req *wire.Request) error {
//	    return handle(ctx, req)
//	})
//	_ = pool.Start(ctx)
//	_ = pool.Submit(req)
//
// Submit never blocks and never drops. The boundary's event loop must never
// stall on a consumer, so backpressure is not the pool's job.
//
// # Shutdown
//
// Stop(timeout) refuses new work and lets workers finish everything already
// queued. Join blocks until all workers have exited with no timeout; the
// boundary calls it when a consumer acknowledges a stop with its pool.
//
// # Observability
//
// Statistics are always tracked with atomics. Prometheus metrics are opt-in
// through WithMetricsRegistry. A panicking processor is recovered, counted as
// a failure, and logged.
package worker
