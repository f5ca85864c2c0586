package boundary

import (
	"context"
	"time"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/wire"
)

// Join stops the loop and waits for it to exit, or for ctx to end. Peers
// with outstanding requests are not answered; call it only when none expect
// a reply. A boundary that was never started is shut down directly.
func (b *Boundary) Join(ctx context.Context) error {
	b.lifecycleMu.Lock()
	switch b.state {
	case stateNew:
		b.state = stateStopped
		b.lifecycleMu.Unlock()
		b.shutdown()
		close(b.done)
		return nil
	case stateRunning:
		b.lifecycleMu.Unlock()
		_ = b.send(command{kind: cmdStop})
	default:
		b.lifecycleMu.Unlock()
	}

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Boundary", "Join", "wait for loop exit")
	}
}

// shutdown tells keepalive listeners to stop, cancels the analysis, stops
// every consumer in registration order and releases the subscriptions.
func (b *Boundary) shutdown() {
	start := time.Now()
	b.logger.Info("Boundary shutting down")

	b.publishKeepalive(wire.KeepaliveStop)

	b.analysisMu.Lock()
	if b.analysis != nil {
		b.analysis.Cancel()
	}
	b.analysisMu.Unlock()

	// consumers may call back into the boundary while stopping, so the
	// analysis lock is not held here
	for i, r := range b.routes {
		ack := make(chan any, 1)
		r.queue.Push(Notice{Boundary: b, Kind: NotifyStop, Ack: ack})
		reply := <-ack
		if j, ok := reply.(Joiner); ok {
			j.Join()
		}
		b.logger.Debug("Consumer stopped", "route", i)
	}

	if err := b.routerSub.Unsubscribe(); err != nil {
		b.logger.Warn("Request subject unsubscribe failed", "error", err)
	}
	if err := b.notifySub.Unsubscribe(); err != nil {
		b.logger.Warn("Notify subject unsubscribe failed", "error", err)
	}

	b.lifecycleMu.Lock()
	b.state = stateStopped
	b.lifecycleMu.Unlock()

	b.metrics.RecordShutdown(time.Since(start))
	b.metrics.RecordLoopRunning(false)
	b.logger.Info("Exiting the boundary loop")
}
