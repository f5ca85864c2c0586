package wire

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/transport"
)

// Replier delivers replies on behalf of received requests.
type Replier interface {
	EnqueueReply(req *Request, rep *Reply) error
}

// Publisher is the part of transport.Conn that replies need.
type Publisher interface {
	Publish(ctx context.Context, f transport.Frame) error
}

// Request is one request from a remote peer.
type Request struct {
	ID         string
	Category   string
	AnalysisID string
	Payload    json.RawMessage

	socket  string
	replyTo string
	replier Replier
	replied atomic.Bool
}

// NewRequest builds an outgoing request with a fresh id
func NewRequest(category string, payload any) (*Request, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Request{ID: newID(), Category: category, Payload: raw}, nil
}

// NewAnalysisRequest builds an outgoing request belonging to analysisID
func NewAnalysisRequest(analysisID, category string, payload any) (*Request, error) {
	req, err := NewRequest(category, payload)
	if err != nil {
		return nil, err
	}
	req.AnalysisID = analysisID
	return req, nil
}

// Receive decodes a request frame that arrived on socket
func Receive(f transport.Frame, socket string) (*Request, error) {
	env, err := DecodeEnvelope(f.Data)
	if err != nil {
		return nil, err
	}
	if env.Kind != KindRequest {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "Receive", "unexpected kind "+env.Kind)
	}
	if f.Reply == "" {
		return nil, errors.WrapInvalid(ErrNoReplyInbox, "wire", "Receive", "read reply inbox")
	}
	return &Request{
		ID:         env.ID,
		Category:   env.Category,
		AnalysisID: env.AnalysisID,
		Payload:    env.Payload,
		socket:     socket,
		replyTo:    f.Reply,
	}, nil
}

// Frame encodes the request for publishing on subject with reply as inbox
func (r *Request) Frame(subject, reply string) (transport.Frame, error) {
	return frameFor(subject, reply, Envelope{
		Kind:       KindRequest,
		ID:         r.ID,
		Category:   r.Category,
		AnalysisID: r.AnalysisID,
		Payload:    r.Payload,
	})
}

// IsAnalysis reports whether the request belongs to an analysis
func (r *Request) IsAnalysis() bool {
	return r.AnalysisID != ""
}

// Socket is the subject the request was received on
func (r *Request) Socket() string {
	return r.socket
}

// ReplyTo is the peer's reply inbox
func (r *Request) ReplyTo() string {
	return r.replyTo
}

// Replied reports whether a reply has been sent
func (r *Request) Replied() bool {
	return r.replied.Load()
}

// Decode unmarshals the payload into v
func (r *Request) Decode(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return errors.WrapInvalid(err, "Request", "Decode", "unmarshal payload")
	}
	return nil
}

// Attach sets the boundary that Reply goes through
func (r *Request) Attach(rep Replier) {
	r.replier = rep
}

// Reply hands rep to the attached boundary for delivery. It is safe to call
// from any goroutine.
func (r *Request) Reply(rep *Reply) error {
	if r.replier == nil {
		return ErrDetached
	}
	return r.replier.EnqueueReply(r, rep)
}

// Respond publishes rep to the request's reply inbox. A request is answered
// at most once; later calls return ErrAlreadyReplied. A failed publish leaves
// the request unanswered so that another reply can still reach the peer.
// Calls for one request must not run concurrently; the boundary makes them
// all from its loop.
func Respond(ctx context.Context, pub Publisher, req *Request, rep *Reply) error {
	if req.replyTo == "" {
		return errors.WrapInvalid(ErrNoReplyInbox, "wire", "Respond", "address reply")
	}
	if req.replied.Load() {
		return ErrAlreadyReplied
	}

	f, err := rep.frame(req)
	if err != nil {
		return err
	}
	if err := pub.Publish(ctx, f); err != nil {
		return errors.WrapTransient(err, "wire", "Respond", "publish reply")
	}
	req.replied.Store(true)
	return nil
}
