package peer

import (
	"context"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/transport"
)

// Announcement is one payload broadcast by a boundary
type Announcement struct {
	Subject string
	Payload []byte
}

// Announcements delivers what the boundary publishes on subject until ctx
// ends. The returned channel is closed then.
func Announcements(ctx context.Context, conn transport.Conn, subject string) (<-chan Announcement, error) {
	sub, err := conn.Subscribe(subject)
	if err != nil {
		return nil, errors.Wrap(err, "peer", "Announcements", "subscribe announce")
	}

	out := make(chan Announcement)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case f := <-sub.Frames():
				select {
				case out <- Announcement{Subject: f.Subject, Payload: f.Data}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
