package peer

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/transport"
	"github.com/c360/boundary/wire"
)

// Client sends requests to a boundary over conn
type Client struct {
	conn    transport.Conn
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the client's logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds every Call whose context has no deadline
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a peer client
func NewClient(conn transport.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		logger:  slog.Default(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "peer")
	return c
}

// Call sends req to subject and waits for the reply addressed to it.
// Replies carrying another request id are skipped.
func (c *Client) Call(ctx context.Context, subject string, req *wire.Request) (*wire.Reply, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	inbox := c.conn.NewInbox()
	sub, err := c.conn.Subscribe(inbox)
	if err != nil {
		return nil, errors.Wrap(err, "Client", "Call", "subscribe reply inbox")
	}
	defer func() { _ = sub.Unsubscribe() }()

	f, err := req.Frame(subject, inbox)
	if err != nil {
		return nil, err
	}
	if err := c.conn.Publish(ctx, f); err != nil {
		return nil, errors.WrapTransient(err, "Client", "Call", "publish request")
	}

	for {
		select {
		case f := <-sub.Frames():
			rep, err := wire.DecodeReply(f)
			if err != nil {
				c.logger.Warn("Discarding undecodable reply", "inbox", inbox, "error", err)
				continue
			}
			if rep.RequestID != "" && rep.RequestID != req.ID {
				c.logger.Debug("Discarding reply for another request", "id", rep.RequestID)
				continue
			}
			return rep, nil
		case <-ctx.Done():
			return nil, errors.WrapTransient(ctx.Err(), "Client", "Call", "await reply")
		}
	}
}

// Do calls subject and decodes a successful reply into out. Error and
// exited replies come back as errors.
func (c *Client) Do(ctx context.Context, subject string, req *wire.Request, out any) error {
	rep, err := c.Call(ctx, subject, req)
	if err != nil {
		return err
	}
	if err := rep.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return rep.Decode(out)
}
