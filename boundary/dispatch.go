package boundary

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/pkg/queue"
	"github.com/c360/boundary/transport"
	"github.com/c360/boundary/wire"
)

// Exited reply reasons, used as metric labels
const (
	reasonUnroutable      = "unroutable"
	reasonWrongSocket     = "wrong_socket"
	reasonNoAnalysis      = "no_analysis"
	reasonUnknownAnalysis = "unknown_analysis"
	reasonCancelled       = "cancelled"
	reasonUndecodable     = "undecodable"
)

// exitReasons labels an exited reply by the routing failure behind it
var exitReasons = []struct {
	cause  error
	reason string
}{
	{errors.ErrUnroutable, reasonUnroutable},
	{errors.ErrWrongSocket, reasonWrongSocket},
	{errors.ErrNoAnalysis, reasonNoAnalysis},
	{errors.ErrUnknownAnalysis, reasonUnknownAnalysis},
}

func exitReason(cause error) string {
	for _, r := range exitReasons {
		if stderrors.Is(cause, r.cause) {
			return r.reason
		}
	}
	return "other"
}

// Matcher selects the requests a consumer queue receives.
type Matcher func(req *wire.Request) bool

// ByCategory matches requests whose category is one of names
func ByCategory(names ...string) Matcher {
	return func(req *wire.Request) bool {
		return slices.Contains(names, req.Category)
	}
}

type route struct {
	match Matcher
	queue *queue.Queue[Notice]
}

func (b *Boundary) socketLabel(socket string) string {
	if socket == b.requestSubject {
		return "router"
	}
	return "notify"
}

// dispatch hands a request frame received on socket to its consumer, or
// answers it with an exited-boundary reply when nobody will.
func (b *Boundary) dispatch(f transport.Frame, socket string) {
	req, err := wire.Receive(f, socket)
	if err != nil {
		b.recordFault(err)
		b.logger.Warn("Dropping undecodable request", "socket", socket, "error", err)
		if f.Reply != "" {
			b.metrics.RecordExitedReply(reasonUndecodable)
			b.reject(f.Reply)
		}
		return
	}

	req.Attach(b)
	b.requestsHandled.Add(1)
	b.metrics.RecordRequestReceived(b.socketLabel(socket))

	if !req.IsAnalysis() {
		for _, r := range b.routes {
			if r.match(req) {
				r.queue.Push(Notice{Boundary: b, Kind: NotifyRequest, Request: req})
				b.metrics.RecordRequestRouted(req.Category)
				return
			}
		}
		b.exited(req, fmt.Errorf("%w: category %q", errors.ErrUnroutable, req.Category))
		return
	}

	if socket != b.requestSubject {
		b.exited(req, fmt.Errorf("%w: %s", errors.ErrWrongSocket, socket))
		return
	}

	b.analysisMu.Lock()
	defer b.analysisMu.Unlock()

	switch {
	case b.analysis == nil:
		b.exited(req, fmt.Errorf("%w: %s", errors.ErrNoAnalysis, req.AnalysisID))
	case b.analysis.ID() != req.AnalysisID:
		b.exited(req, fmt.Errorf("%w: %s (active %s)", errors.ErrUnknownAnalysis, req.AnalysisID, b.analysis.ID()))
	default:
		if b.analysis.Enqueue(req) {
			b.metrics.RecordRequestRouted("analysis")
		}
	}
}

// handleReply delivers rep on the loop goroutine. Analysis replies go
// through the analysis context, which drops them once cancelled.
func (b *Boundary) handleReply(req *wire.Request, rep *wire.Reply) {
	if !req.IsAnalysis() {
		_ = b.respond(req, rep)
		return
	}

	b.analysisMu.Lock()
	defer b.analysisMu.Unlock()

	if b.analysis == nil || b.analysis.ID() != req.AnalysisID {
		b.logger.Debug("Dropping reply for inactive analysis", "analysis", req.AnalysisID, "id", req.ID)
		return
	}
	b.analysis.Reply(req, rep)
}

// respond publishes rep to the peer. Delivery failures are logged and
// counted; they never stop the loop.
func (b *Boundary) respond(req *wire.Request, rep *wire.Reply) error {
	err := wire.Respond(context.Background(), b.conn, req, rep)
	switch {
	case err == nil:
		b.metrics.RecordReplySent(rep.Kind)
	case stderrors.Is(err, wire.ErrAlreadyReplied):
		b.recordFault(errors.WrapInvalid(err, "Boundary", "respond", "reply"))
		b.logger.Error("Request replied more than once", "id", req.ID, "category", req.Category)
	default:
		b.recordFault(err)
		b.logger.Warn("Reply delivery failed", "id", req.ID, "category", req.Category, "error", err)
	}
	return err
}

// exited answers a request nobody will serve. The peer only learns that the
// boundary exited; cause stays in the logs and metrics.
func (b *Boundary) exited(req *wire.Request, cause error) {
	err := errors.WrapInvalid(cause, "Boundary", "dispatch", "route request")
	b.recordFault(err)
	b.metrics.RecordExitedReply(exitReason(cause))
	b.logger.Warn("Answering request with boundary exited",
		"id", req.ID, "category", req.Category, "error", err)
	_ = b.respond(req, wire.BoundaryExited())
}

func (b *Boundary) reject(inbox string) {
	if err := wire.Reject(context.Background(), b.conn, inbox); err != nil {
		b.recordFault(err)
		b.logger.Warn("Reply delivery failed", "inbox", inbox, "error", err)
		return
	}
	b.metrics.RecordReplySent(wire.KindExited)
}
