package wire

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/c360/boundary/errors"
	"github.com/c360/boundary/transport"
)

type recordingPublisher struct {
	mu     sync.Mutex
	frames []transport.Frame
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, f transport.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, f)
	return nil
}

type recordingReplier struct {
	got []*Reply
}

func (r *recordingReplier) EnqueueReply(_ *Request, rep *Reply) error {
	r.got = append(r.got, rep)
	return nil
}

func requestFrame(t *testing.T, req *Request, reply string) transport.Frame {
	t.Helper()
	f, err := req.Frame("boundary.request", reply)
	require.NoError(t, err)
	return f
}

func TestReceive(t *testing.T) {
	out, err := NewAnalysisRequest("a-1", "work", map[string]int{"n": 3})
	require.NoError(t, err)

	req, err := Receive(requestFrame(t, out, "inbox.1"), "boundary.request")
	require.NoError(t, err)

	assert.Equal(t, out.ID, req.ID)
	assert.Equal(t, "work", req.Category)
	assert.Equal(t, "a-1", req.AnalysisID)
	assert.True(t, req.IsAnalysis())
	assert.Equal(t, "boundary.request", req.Socket())
	assert.Equal(t, "inbox.1", req.ReplyTo())

	var payload map[string]int
	require.NoError(t, req.Decode(&payload))
	assert.Equal(t, 3, payload["n"])
}

func TestReceive_Rejects(t *testing.T) {
	plain, err := NewRequest("status", nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame transport.Frame
	}{
		{"not json", transport.Frame{Reply: "i", Data: []byte("WAKE UP!")}},
		{"missing kind", transport.Frame{Reply: "i", Data: []byte(`{"id":"x"}`)}},
		{"reply kind", transport.Frame{Reply: "i", Data: []byte(`{"kind":"reply"}`)}},
		{"no inbox", requestFrame(t, plain, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Receive(tt.frame, "s")
			require.Error(t, err)
			assert.True(t, berrors.IsInvalid(err))
		})
	}
}

func TestRespond_ExactlyOnce(t *testing.T) {
	out, _ := NewRequest("status", nil)
	req, err := Receive(requestFrame(t, out, "inbox.7"), "s")
	require.NoError(t, err)

	pub := &recordingPublisher{}
	rep, err := NewReply("ok")
	require.NoError(t, err)

	require.NoError(t, Respond(context.Background(), pub, req, rep))
	assert.True(t, req.Replied())

	err = Respond(context.Background(), pub, req, BoundaryExited())
	assert.ErrorIs(t, err, ErrAlreadyReplied)

	require.Len(t, pub.frames, 1)
	assert.Equal(t, "inbox.7", pub.frames[0].Subject)

	got, err := DecodeReply(pub.frames[0])
	require.NoError(t, err)
	assert.Equal(t, KindReply, got.Kind)
	assert.Equal(t, out.ID, got.RequestID)

	var s string
	require.NoError(t, got.Decode(&s))
	assert.Equal(t, "ok", s)
}

func TestRespond_PublishFailureIsTransient(t *testing.T) {
	out, _ := NewRequest("status", nil)
	req, _ := Receive(requestFrame(t, out, "inbox"), "s")

	pub := &recordingPublisher{err: errors.New("broker gone")}
	err := Respond(context.Background(), pub, req, BoundaryExited())
	require.Error(t, err)
	assert.True(t, berrors.IsTransient(err))
	assert.False(t, req.Replied())

	// the request is still owed a reply once the broker is back
	pub.err = nil
	require.NoError(t, Respond(context.Background(), pub, req, BoundaryExited()))
	assert.True(t, req.Replied())
	require.Len(t, pub.frames, 1)
	assert.ErrorIs(t, Respond(context.Background(), pub, req, BoundaryExited()), ErrAlreadyReplied)
}

func TestRespond_NoInbox(t *testing.T) {
	req, _ := NewRequest("status", nil)
	err := Respond(context.Background(), &recordingPublisher{}, req, BoundaryExited())
	assert.ErrorIs(t, err, ErrNoReplyInbox)
	assert.False(t, req.Replied())
}

func TestRequest_ReplyThroughReplier(t *testing.T) {
	req, _ := NewRequest("status", nil)
	assert.ErrorIs(t, req.Reply(BoundaryExited()), ErrDetached)

	r := &recordingReplier{}
	req.Attach(r)
	require.NoError(t, req.Reply(BoundaryExited()))
	require.Len(t, r.got, 1)
	assert.True(t, r.got[0].IsExited())
}

func TestReply_Err(t *testing.T) {
	assert.ErrorIs(t, BoundaryExited().Err(), berrors.ErrBoundaryExited)
	assert.EqualError(t, ErrorReply("request failed").Err(), "remote error: request failed")

	ok, _ := NewReply(nil)
	assert.NoError(t, ok.Err())
	assert.False(t, ok.IsExited())
}

func TestDecodeReply_RejectsRequest(t *testing.T) {
	out, _ := NewRequest("status", nil)
	_, err := DecodeReply(requestFrame(t, out, "i"))
	assert.Error(t, err)
}
