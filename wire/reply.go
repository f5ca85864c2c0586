package wire

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/transport"
)

// Reply is the answer to a Request.
type Reply struct {
	Kind      string
	RequestID string
	Payload   json.RawMessage
	Error     string
}

// NewReply builds a normal reply carrying payload
func NewReply(payload any) (*Reply, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Reply{Kind: KindReply, Payload: raw}, nil
}

// ErrorReply builds a reply reporting a failure with a peer-safe message
func ErrorReply(message string) *Reply {
	return &Reply{Kind: KindError, Error: message}
}

// BoundaryExited is the reply a peer receives when the boundary will not
// serve its request.
func BoundaryExited() *Reply {
	return &Reply{Kind: KindExited}
}

// IsExited reports whether the reply is a boundary-exited reply
func (r *Reply) IsExited() bool {
	return r.Kind == KindExited
}

// Err converts error and exited replies into Go errors
func (r *Reply) Err() error {
	switch r.Kind {
	case KindExited:
		return errors.ErrBoundaryExited
	case KindError:
		return fmt.Errorf("remote error: %s", r.Error)
	default:
		return nil
	}
}

// Decode unmarshals the payload into v
func (r *Reply) Decode(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return errors.WrapInvalid(err, "Reply", "Decode", "unmarshal payload")
	}
	return nil
}

func (r *Reply) frame(req *Request) (transport.Frame, error) {
	return frameFor(req.replyTo, "", Envelope{
		Kind:    r.Kind,
		ID:      req.ID,
		Payload: r.Payload,
		Error:   r.Error,
	})
}

// DecodeReply reads a reply frame
func DecodeReply(f transport.Frame) (*Reply, error) {
	env, err := DecodeEnvelope(f.Data)
	if err != nil {
		return nil, err
	}
	switch env.Kind {
	case KindReply, KindError, KindExited:
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "DecodeReply", "unexpected kind "+env.Kind)
	}
	return &Reply{
		Kind:      env.Kind,
		RequestID: env.ID,
		Payload:   env.Payload,
		Error:     env.Error,
	}, nil
}

// Reject answers a frame that could not be read as a request with an
// exited-boundary reply sent to inbox.
func Reject(ctx context.Context, pub Publisher, inbox string) error {
	f, err := frameFor(inbox, "", Envelope{Kind: KindExited})
	if err != nil {
		return err
	}
	if err := pub.Publish(ctx, f); err != nil {
		return errors.WrapTransient(err, "wire", "Reject", "publish reply")
	}
	return nil
}
