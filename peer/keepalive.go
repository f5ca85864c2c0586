package peer

import (
	"bytes"
	"context"
	stderrors "errors"
	"time"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/transport"
	"github.com/c360/boundary/wire"
)

// ErrHeartbeatLost is returned when the boundary stays silent too long
var ErrHeartbeatLost = stderrors.New("boundary heartbeat lost")

// WatchKeepalive follows the boundary's keepalive subject until the
// boundary says stop, no heartbeat arrives within timeout, or ctx ends. It
// returns nil on an orderly stop and wraps ErrHeartbeatLost on silence.
func WatchKeepalive(ctx context.Context, conn transport.Conn, subject string, timeout time.Duration) error {
	sub, err := conn.Subscribe(subject)
	if err != nil {
		return errors.Wrap(err, "peer", "WatchKeepalive", "subscribe keepalive")
	}
	defer func() { _ = sub.Unsubscribe() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case f := <-sub.Frames():
			if bytes.Equal(f.Data, wire.KeepaliveStop) {
				return nil
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		case <-timer.C:
			return errors.WrapTransient(ErrHeartbeatLost, "peer", "WatchKeepalive", "await heartbeat")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
