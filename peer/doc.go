// Package peer holds the remote side of a boundary conversation: sending a
// request and waiting for its reply, watching the boundary's keepalive
// heartbeat, and listening for announcements.
//
// Workers use it like this:
//
//	c := peer.NewClient(conn)
//	rep, err := c.Call(ctx, requestSubject, req)
//	if err == nil {
//		err = rep.Err() // errors.ErrBoundaryExited once the boundary is gone
//	}
package peer
