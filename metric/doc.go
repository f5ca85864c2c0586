// Package metric provides the Prometheus registry and HTTP endpoint used by
// the boundary daemon.
//
// NewMetricsRegistry builds a private Prometheus registry carrying the Go and
// process collectors and the boundary's core metrics (Metrics). The core
// metrics live under the "boundary" namespace and cover the event loop
// (iterations, drained commands, heartbeats, cancellations), request routing
// (received per socket, routed per category) and reply delivery (sent per
// kind, exited-boundary replies per reason).
//
// Other components register their own collectors through MetricsRegistrar;
// the worker pool uses this for its queue depth and latency metrics:
//
//	registry := metric.NewMetricsRegistry()
//	depth := prometheus.NewGauge(prometheus.GaugeOpts{Name: "status_queue_depth"})
//	if err := registry.RegisterGauge("status", "queue_depth", depth); err != nil {
//	    return err
//	}
//
// Registration is keyed by "service.metric"; registering the same key twice
// returns an invalid-class error.
//
// Server exposes the registry on a configurable path (default /metrics) and
// an aggregated health.Monitor document on /health, answering 503 when the
// aggregate is unhealthy.
package metric
