package boundary

import (
	"context"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/pkg/queue"
	"github.com/c360/boundary/wire"
)

// ReplyFunc publishes rep to the peer that sent req. An AnalysisContext may
// call it only from its own methods, which the boundary runs on its loop.
type ReplyFunc func(req *wire.Request, rep *wire.Reply) error

// AnalysisContext tracks the requests of the active analysis. The boundary
// calls every method with its analysis lock held. An implementation may also
// report how many requests are still owed a reply with a Pending() int
// method, which Health picks up.
type AnalysisContext interface {
	ID() string
	// Enqueue accepts req for the analysis' consumer. When the analysis is
	// cancelled it answers req itself and returns false.
	Enqueue(req *wire.Request) bool
	// Cancel marks the analysis cancelled. It is idempotent.
	Cancel()
	// HandleCancel answers every pending request with an exited reply.
	HandleCancel()
	// Reply sends rep if req is still owed one, reporting whether it did.
	Reply(req *wire.Request, rep *wire.Reply) bool
	Cancelled() bool
}

type analysisContext struct {
	id        string
	queue     *queue.Queue[*wire.Request]
	send      ReplyFunc
	cancelled bool
	pending   map[*wire.Request]struct{}
}

func newAnalysisContext(id string, q *queue.Queue[*wire.Request], send ReplyFunc) *analysisContext {
	return &analysisContext{
		id:      id,
		queue:   q,
		send:    send,
		pending: make(map[*wire.Request]struct{}),
	}
}

func (a *analysisContext) ID() string      { return a.id }
func (a *analysisContext) Cancelled() bool { return a.cancelled }
func (a *analysisContext) Pending() int    { return len(a.pending) }

func (a *analysisContext) Enqueue(req *wire.Request) bool {
	if a.cancelled {
		_ = a.send(req, wire.BoundaryExited())
		return false
	}
	a.pending[req] = struct{}{}
	a.queue.Push(req)
	return true
}

func (a *analysisContext) Cancel() {
	a.cancelled = true
}

func (a *analysisContext) HandleCancel() {
	for req := range a.pending {
		_ = a.send(req, wire.BoundaryExited())
	}
	clear(a.pending)
}

func (a *analysisContext) Reply(req *wire.Request, rep *wire.Reply) bool {
	if a.cancelled {
		return false
	}
	if _, ok := a.pending[req]; !ok {
		return false
	}
	// a request whose reply failed to publish stays pending, so a later
	// cancellation still answers it
	if err := a.send(req, rep); err != nil {
		return false
	}
	delete(a.pending, req)
	return true
}

// RegisterAnalysis makes id the active analysis. Its requests are pushed on
// q. A previously registered analysis is replaced without being cancelled.
func (b *Boundary) RegisterAnalysis(id string, q *queue.Queue[*wire.Request]) error {
	if id == "" || q == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Boundary", "RegisterAnalysis", "check arguments")
	}
	return b.RegisterAnalysisContext(func(send ReplyFunc) AnalysisContext {
		return newAnalysisContext(id, q, send)
	})
}

// RegisterAnalysisContext makes the context returned by build the active
// analysis. build receives the function the context replies through. A
// previously registered analysis is replaced without being cancelled.
func (b *Boundary) RegisterAnalysisContext(build func(send ReplyFunc) AnalysisContext) error {
	if build == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Boundary", "RegisterAnalysisContext", "check arguments")
	}
	ac := build(b.analysisReply)
	if ac == nil || ac.ID() == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Boundary", "RegisterAnalysisContext", "build analysis context")
	}

	b.analysisMu.Lock()
	b.analysis = ac
	b.analysisMu.Unlock()

	b.logger.Info("Registered analysis", "analysis", ac.ID())
	return nil
}

func (b *Boundary) analysisReply(req *wire.Request, rep *wire.Reply) error {
	if rep.IsExited() {
		b.metrics.RecordExitedReply(reasonCancelled)
	}
	return b.respond(req, rep)
}

// Cancel cancels the analysis id. Once it returns, every request of that
// analysis still owed a reply has been answered with an exited reply, and
// later ones will be. It returns early if the loop exits or ctx ends.
func (b *Boundary) Cancel(ctx context.Context, id string) error {
	b.analysisMu.Lock()
	ac := b.analysis
	switch {
	case ac == nil:
		b.analysisMu.Unlock()
		return errors.WrapInvalid(errors.ErrNoAnalysis, "Boundary", "Cancel", "cancel "+id)
	case ac.ID() != id:
		b.analysisMu.Unlock()
		return errors.WrapInvalid(errors.ErrUnknownAnalysis, "Boundary", "Cancel", "cancel "+id)
	case ac.Cancelled():
		b.analysisMu.Unlock()
		return nil
	}
	ac.Cancel()
	b.analysisMu.Unlock()

	b.lifecycleMu.Lock()
	notStarted := b.state == stateNew
	b.lifecycleMu.Unlock()
	if notStarted {
		// nothing has been received yet, but keep the contract
		b.analysisMu.Lock()
		ac.HandleCancel()
		b.analysisMu.Unlock()
		return nil
	}

	ack := make(chan struct{})
	if err := b.send(command{kind: cmdCancel, analysisID: id, ack: ack}); err != nil {
		return nil
	}

	select {
	case <-ack:
		return nil
	case <-b.done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Boundary", "Cancel", "wait for cancellation")
	}
}

func (b *Boundary) handleCancel(id string, ack chan struct{}) {
	b.analysisMu.Lock()
	if b.analysis != nil && b.analysis.ID() == id {
		b.analysis.HandleCancel()
	}
	b.analysisMu.Unlock()

	b.metrics.RecordCancellation()
	b.logger.Info("Cancelled analysis", "analysis", id)
	if ack != nil {
		close(ack)
	}
}
