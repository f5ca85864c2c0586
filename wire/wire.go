// Package wire converts between transport frames and the boundary's request
// and reply values.
//
// Every frame body is a JSON Envelope. Requests carry an id, a category used
// for routing and, for analysis work, the id of the analysis they belong to.
// The frame's reply subject is where the answer goes. Keepalive and notify
// traffic uses the bare control words in this package instead.
package wire

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/transport"
)

// Envelope kinds
const (
	KindRequest = "request"
	KindReply   = "reply"
	KindError   = "error"
	KindExited  = "boundary_exited"
)

// Control words on the keepalive and notify subjects.
var (
	KeepaliveRun  = []byte("run")
	KeepaliveStop = []byte("stop")
	NotifyStop    = []byte("stop")
	NotifyWakeup  = []byte("WAKE UP!")
)

var (
	// ErrAlreadyReplied is returned when a request is answered twice
	ErrAlreadyReplied = stderrors.New("request already replied")
	// ErrNoReplyInbox marks a request that cannot be answered
	ErrNoReplyInbox = stderrors.New("request has no reply inbox")
	// ErrDetached marks a request with no boundary to reply through
	ErrDetached = stderrors.New("request is not attached to a boundary")
)

// Envelope is the JSON body of every request and reply frame.
type Envelope struct {
	Kind       string          `json:"kind"`
	ID         string          `json:"id,omitempty"`
	Category   string          `json:"category,omitempty"`
	AnalysisID string          `json:"analysis_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Encode marshals the envelope
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Envelope", "Encode", "marshal envelope")
	}
	return data, nil
}

// DecodeEnvelope unmarshals a frame body
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "wire", "DecodeEnvelope", "unmarshal envelope")
	}
	if e.Kind == "" {
		return Envelope{}, errors.WrapInvalid(
			fmt.Errorf("%w: missing kind", errors.ErrInvalidData), "wire", "DecodeEnvelope", "validate envelope")
	}
	return e, nil
}

func marshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(err, "wire", "marshalPayload", "marshal payload")
	}
	return data, nil
}

func newID() string {
	return uuid.NewString()
}

// frameFor builds the transport frame carrying env to subject
func frameFor(subject, reply string, env Envelope) (transport.Frame, error) {
	data, err := env.Encode()
	if err != nil {
		return transport.Frame{}, err
	}
	return transport.Frame{Subject: subject, Reply: reply, Data: data}, nil
}
