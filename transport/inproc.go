package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/pkg/queue"
)

// Bus is an in-process Conn. Subjects match exactly; there are no
// wildcards. Frames published to a subject without subscribers are dropped,
// as they would be on a broker.
type Bus struct {
	url string

	mu       sync.RWMutex
	subs     map[string][]*busSubscription
	failures map[string]error

	inboxPrefix string
	inboxSeq    atomic.Uint64
	published   atomic.Int64
}

// NewBus creates an empty in-process bus
func NewBus() *Bus {
	return &Bus{
		url:         "inproc://bus",
		subs:        make(map[string][]*busSubscription),
		failures:    make(map[string]error),
		inboxPrefix: "_INBOX." + uuid.NewString(),
	}
}

// Publish delivers f to every current subscriber of f.Subject
func (b *Bus) Publish(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "Bus", "Publish", "publish "+f.Subject)
	}

	b.mu.RLock()
	failure := b.failures[f.Subject]
	targets := append([]*busSubscription(nil), b.subs[f.Subject]...)
	b.mu.RUnlock()

	if failure != nil {
		return errors.WrapTransient(failure, "Bus", "Publish", "publish "+f.Subject)
	}

	data := append([]byte(nil), f.Data...)
	for _, s := range targets {
		s.pending.Push(Frame{Subject: f.Subject, Reply: f.Reply, Data: data})
	}
	b.published.Add(1)
	return nil
}

// Subscribe opens a subscription on subject
func (b *Bus) Subscribe(subject string) (Subscription, error) {
	if subject == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Bus", "Subscribe", "empty subject")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &busSubscription{
		bus:     b,
		subject: subject,
		pending: queue.New[Frame](),
		frames:  make(chan Frame),
		cancel:  cancel,
	}

	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], s)
	b.mu.Unlock()

	go s.pump(ctx)
	return s, nil
}

// NewInbox returns a unique reply subject
func (b *Bus) NewInbox() string {
	return fmt.Sprintf("%s.%d", b.inboxPrefix, b.inboxSeq.Add(1))
}

// ServerURL identifies the bus
func (b *Bus) ServerURL() string {
	return b.url
}

// FailPublish makes every publish to subject fail with err until cleared
// with a nil err.
func (b *Bus) FailPublish(subject string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, subject)
		return
	}
	b.failures[subject] = err
}

// Subscribers returns the number of live subscriptions on subject
func (b *Bus) Subscribers(subject string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[subject])
}

// Published returns the number of frames accepted by Publish
func (b *Bus) Published() int64 {
	return b.published.Load()
}

func (b *Bus) remove(s *busSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[s.subject]
	for i, candidate := range list {
		if candidate == s {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, s.subject)
		return
	}
	b.subs[s.subject] = list
}

type busSubscription struct {
	bus     *Bus
	subject string
	pending *queue.Queue[Frame]
	frames  chan Frame
	cancel  context.CancelFunc
	once    sync.Once
}

func (s *busSubscription) Subject() string      { return s.subject }
func (s *busSubscription) Frames() <-chan Frame { return s.frames }

func (s *busSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.remove(s)
		s.cancel()
	})
	return nil
}

// pump moves frames from the unbounded pending queue to the frames channel
// so publishers never block on a slow reader.
func (s *busSubscription) pump(ctx context.Context) {
	for {
		f, err := s.pending.Pop(ctx)
		if err != nil {
			return
		}
		select {
		case s.frames <- f:
		case <-ctx.Done():
			return
		}
	}
}
