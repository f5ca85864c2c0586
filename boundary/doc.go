// Package boundary couples a message broker to the goroutines that serve
// requests arriving through it.
//
// A Boundary owns four subjects under its bind prefix:
//
//	<prefix>.request.<token>    peers send requests here, each with a reply inbox
//	<prefix>.announce.<port>    the boundary broadcasts announcements
//	<prefix>.keepalive.<token>  "run" heartbeats while alive, "stop" on exit
//	<prefix>.notify.<token>     wakeups and the external stop signal
//
// All broker traffic happens on a single loop goroutine. Other goroutines
// talk to the loop through an unbounded command queue whose ready channel
// doubles as the loop's wakeup bell, so replies, cancellations and
// announcements never block their callers.
//
// Requests are routed in two ways. Requests carrying an analysis id go to
// the single registered analysis and are answered through its
// AnalysisContext; a cancelled analysis answers everything it still owes
// with a boundary-exited reply. RegisterAnalysis installs the built-in
// context, and RegisterAnalysisContext accepts any other implementation.
// All other requests are matched against the
// consumers registered with RegisterRequestCategory, first match wins, and
// delivered as a Notice. A request nobody will answer gets a boundary-exited
// reply straight away, so a peer is never left waiting.
//
// A typical consumer runs Serve on its queue:
//
//	q := queue.New[boundary.Notice]()
//	_ = b.RegisterRequestCategory(boundary.ByCategory("measure"), q)
//	go boundary.Serve(ctx, q, measure, boundary.WithWorkers(4))
//	_ = b.Start(ctx)
//	defer b.Join(context.Background())
//
// A fault inside the loop is logged at LevelCritical and terminates the
// process; the loop cannot continue safely once its invariants are broken.
package boundary
