package boundary

import (
	"fmt"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/wire"
)

type commandKind int

const (
	cmdReply commandKind = iota
	cmdCancel
	cmdAnnounce
	cmdKeepaliveStop
	cmdStop
)

func (k commandKind) String() string {
	switch k {
	case cmdReply:
		return "reply"
	case cmdCancel:
		return "cancel"
	case cmdAnnounce:
		return "announce"
	case cmdKeepaliveStop:
		return "keepalive_stop"
	case cmdStop:
		return "stop"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// command is one entry of the loop's notification queue
type command struct {
	kind       commandKind
	req        *wire.Request
	rep        *wire.Reply
	analysisID string
	payload    []byte
	ack        chan struct{}
}

// send queues cmd for the loop. Pushing also wakes the loop: the queue's
// ready channel is the loop's bell.
func (b *Boundary) send(cmd command) error {
	select {
	case <-b.done:
		return errors.ErrAlreadyStopped
	default:
	}
	b.commands.Push(cmd)
	return nil
}

// drain executes every queued command. It never blocks on an empty queue.
func (b *Boundary) drain() (stop bool, err error) {
	for {
		cmd, ok := b.commands.TryPop()
		if !ok {
			return stop, nil
		}
		b.metrics.RecordCommand(cmd.kind.String())

		switch cmd.kind {
		case cmdReply:
			b.handleReply(cmd.req, cmd.rep)
		case cmdCancel:
			b.handleCancel(cmd.analysisID, cmd.ack)
		case cmdAnnounce:
			b.publishAnnouncement(cmd.payload)
		case cmdKeepaliveStop:
			b.publishKeepalive(wire.KeepaliveStop)
		case cmdStop:
			stop = true
		default:
			return stop, errors.WrapFatal(
				fmt.Errorf("unknown command %s", cmd.kind), "Boundary", "drain", "dispatch command")
		}
	}
}
