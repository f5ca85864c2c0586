package transport

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/natsclient"
)

// DefaultBuffer is the per-subscription frame buffer of the NATS transport.
const DefaultBuffer = 256

// NATS is a Conn over a connected natsclient.Client.
type NATS struct {
	client *natsclient.Client
	buffer int
}

// NewNATS wraps client. buffer sizes each subscription's frame channel;
// values below one select DefaultBuffer.
func NewNATS(client *natsclient.Client, buffer int) *NATS {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &NATS{client: client, buffer: buffer}
}

// Publish sends f, carrying its reply subject
func (n *NATS) Publish(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "NATS", "Publish", "publish "+f.Subject)
	}
	if err := n.client.PublishMsg(&nats.Msg{Subject: f.Subject, Reply: f.Reply, Data: f.Data}); err != nil {
		return errors.WrapTransient(err, "NATS", "Publish", "publish "+f.Subject)
	}
	return nil
}

// Subscribe opens a subscription on subject
func (n *NATS) Subscribe(subject string) (Subscription, error) {
	s := &natsSubscription{
		subject: subject,
		frames:  make(chan Frame, n.buffer),
		done:    make(chan struct{}),
	}

	// The handler runs on the NATS dispatch goroutine; blocking here lets the
	// client's pending limits apply back pressure.
	sub, err := n.client.Subscribe(subject, func(msg *nats.Msg) {
		f := Frame{Subject: msg.Subject, Reply: msg.Reply, Data: msg.Data}
		select {
		case s.frames <- f:
		case <-s.done:
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "NATS", "Subscribe", "subscribe "+subject)
	}
	s.sub = sub
	return s, nil
}

// NewInbox returns a unique reply subject
func (n *NATS) NewInbox() string {
	return n.client.NewInbox()
}

// ServerURL returns the URL of the connected server
func (n *NATS) ServerURL() string {
	return n.client.ConnectedURL()
}

type natsSubscription struct {
	subject string
	sub     *nats.Subscription
	frames  chan Frame
	done    chan struct{}
	once    sync.Once
}

func (s *natsSubscription) Subject() string      { return s.subject }
func (s *natsSubscription) Frames() <-chan Frame { return s.frames }

func (s *natsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if uerr := s.sub.Unsubscribe(); uerr != nil &&
			!stderrors.Is(uerr, nats.ErrConnectionClosed) && !stderrors.Is(uerr, nats.ErrBadSubscription) {
			err = errors.WrapTransient(uerr, "NATS", "Unsubscribe", "unsubscribe "+s.subject)
		}
	})
	return err
}
