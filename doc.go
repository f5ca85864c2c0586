// Package boundary is the root of a request/reply coordination boundary for
// distributed analysis workers.
//
// Remote workers talk to an analysis process over NATS. The boundary sits
// between that transport and the goroutines of the analysis process: it
// routes each inbound request to the consumer that handles its category,
// tracks the single active analysis with cooperative cancellation, and
// delivers replies back to the originating worker without ever blocking its
// network loop on a slow consumer.
//
// # Layout
//
//   - boundary: the event loop, routing table, analysis context and
//     shutdown protocol
//   - wire: the JSON envelope spoken on the wire, Request and Reply
//   - transport: the subject abstraction with NATS and in-process backends
//   - peer: the worker side, request round trips, keepalive and announcements
//   - natsclient: NATS connection management with a circuit breaker
//   - metric, health: Prometheus metrics, health status and the HTTP endpoints
//   - config: layered JSON/YAML configuration with environment overrides
//   - pkg/queue, pkg/worker, pkg/retry: the unbounded queue, worker pool and
//     backoff used throughout
//   - cmd/boundaryd: the daemon
//
// # Guarantees
//
// Every request receives exactly one terminal answer: a normal reply, an
// error reply, or a boundary-exited reply. Requests nobody can serve, and
// requests for an analysis that was cancelled, are answered with the
// boundary-exited reply so a worker is never left waiting.
package boundary
