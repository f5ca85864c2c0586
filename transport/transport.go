// Package transport is the message plumbing underneath the boundary. A Conn
// publishes frames to subjects and opens subscriptions whose frames arrive on
// a channel, so a single goroutine can select over several of them at once.
//
// Two implementations exist: NATS, backed by a natsclient.Client, and Bus,
// an in-process broker used by tests and single-process deployments.
package transport

import "context"

// Frame is one message moving through a Conn.
type Frame struct {
	Subject string
	// Reply is the subject the sender listens on for an answer, if any.
	Reply string
	Data  []byte
}

// Subscription delivers the frames published to one subject.
type Subscription interface {
	Subject() string
	// Frames is never closed. After Unsubscribe no further frames arrive.
	Frames() <-chan Frame
	Unsubscribe() error
}

// Conn is a subject-addressed publish/subscribe connection.
type Conn interface {
	Publish(ctx context.Context, f Frame) error
	Subscribe(subject string) (Subscription, error)
	// NewInbox returns a subject unique to this connection, for replies.
	NewInbox() string
	// ServerURL identifies the broker peers must connect to.
	ServerURL() string
}
