package boundary

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/transport"
	"github.com/c360/boundary/wire"
)

func (b *Boundary) spin(ctx context.Context) {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			b.fatal(fmt.Errorf("panic: %v", r), debug.Stack())
		}
	}()

	b.metrics.RecordLoopRunning(true)
	b.logger.Info("Boundary loop started")

	timer := time.NewTimer(b.cfg.PollTimeout)
	defer timer.Stop()

	for {
		stop, err := b.iterate(ctx, timer)
		if err != nil {
			b.fatal(err, nil)
			return
		}
		if stop {
			break
		}
	}

	b.shutdown()
}

// iterate runs one pass of the loop: heartbeat, wait, drain the command
// queue, then take at most one frame from each subscription.
func (b *Boundary) iterate(ctx context.Context, timer *time.Timer) (bool, error) {
	b.metrics.RecordIteration()
	b.lastIteration.Store(time.Now().UnixNano())

	if b.heartbeat.Allow() {
		b.publishKeepalive(wire.KeepaliveRun)
	}

	timer.Reset(b.cfg.PollTimeout)

	var notifyFrame, routerFrame *transport.Frame
	stop := false

	select {
	case <-b.commands.Ready():
	case f := <-b.notifySub.Frames():
		notifyFrame = &f
	case f := <-b.routerSub.Frames():
		routerFrame = &f
	case <-timer.C:
	case <-ctx.Done():
		b.logger.Info("Boundary context done, stopping")
		stop = true
	}

	if notifyFrame == nil {
		select {
		case f := <-b.notifySub.Frames():
			notifyFrame = &f
		default:
		}
	}
	if routerFrame == nil {
		select {
		case f := <-b.routerSub.Frames():
			routerFrame = &f
		default:
		}
	}

	// the queue always goes first
	drained, err := b.drain()
	if err != nil {
		return true, err
	}
	stop = stop || drained

	if notifyFrame != nil && b.handleNotify(*notifyFrame) {
		stop = true
	}
	if routerFrame != nil {
		b.dispatch(*routerFrame, b.requestSubject)
	}

	return stop, nil
}

// handleNotify discards wakeups. A stop word stops the loop, and a request
// frame sent here is dispatched as one that missed the request subject.
func (b *Boundary) handleNotify(f transport.Frame) bool {
	if bytes.Equal(f.Data, wire.NotifyStop) {
		b.logger.Warn("Captured a stop message on the notify subject")
		return true
	}
	if f.Reply != "" {
		b.dispatch(f, b.notifySubject)
	}
	return false
}

func (b *Boundary) publishKeepalive(word []byte) {
	err := b.conn.Publish(context.Background(), transport.Frame{Subject: b.keepaliveSubject, Data: word})
	if err != nil {
		b.recordFault(err)
		b.logger.Debug("Keepalive publish failed", "error", err)
		return
	}
	if bytes.Equal(word, wire.KeepaliveRun) {
		b.metrics.RecordHeartbeat()
	}
}

func (b *Boundary) publishAnnouncement(payload []byte) {
	err := b.conn.Publish(context.Background(), transport.Frame{Subject: b.announceSubject, Data: payload})
	if err != nil {
		b.recordFault(err)
		b.logger.Warn("Announcement failed", "subject", b.announceSubject, "error", err)
		return
	}
	b.metrics.RecordAnnouncement()
}

func (b *Boundary) recordFault(err error) {
	b.faults.Add(1)
	b.metrics.RecordError(errors.Classify(err).String())
}

// fatal logs at critical level and exits the process without shutting down.
func (b *Boundary) fatal(err error, stack []byte) {
	b.recordFault(errors.WrapFatal(err, "Boundary", "spin", "run loop"))
	attrs := []any{"error", err}
	if stack != nil {
		attrs = append(attrs, "stack", string(stack))
	}
	b.logger.Log(context.Background(), LevelCritical, "Unhandled fault in boundary loop", attrs...)

	b.lifecycleMu.Lock()
	b.state = stateStopped
	b.lifecycleMu.Unlock()
	b.metrics.RecordLoopRunning(false)

	b.exit(-1)
}
