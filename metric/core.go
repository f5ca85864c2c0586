package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "boundary"

// Metrics contains the boundary's own metrics
type Metrics struct {
	// Event loop
	LoopState        prometheus.Gauge
	LoopIterations   prometheus.Counter
	CommandsDrained  *prometheus.CounterVec
	Heartbeats       prometheus.Counter
	Announcements    prometheus.Counter
	Cancellations    prometheus.Counter
	ShutdownDuration prometheus.Histogram

	// Requests and replies
	RequestsReceived *prometheus.CounterVec
	RequestsRouted   *prometheus.CounterVec
	RepliesSent      *prometheus.CounterVec
	ExitedReplies    *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec

	// Health
	HealthCheckStatus *prometheus.GaugeVec

	// NATS
	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates the boundary metrics. They are not registered anywhere
// until a MetricsRegistry adopts them.
func NewMetrics() *Metrics {
	return &Metrics{
		LoopState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "state",
			Help:      "Event loop state (0=stopped, 1=running)",
		}),
		LoopIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "iterations_total",
			Help:      "Total event loop iterations",
		}),
		CommandsDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "commands_drained_total",
			Help:      "Commands drained from the notification channel",
		}, []string{"kind"}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "heartbeats_total",
			Help:      "Heartbeats published on the keepalive subject",
		}),
		Announcements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "announce",
			Name:      "published_total",
			Help:      "Announcements published",
		}),
		Cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "cancellations_total",
			Help:      "Analysis cancellations handled by the loop",
		}),
		ShutdownDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "shutdown_duration_seconds",
			Help:      "Time spent in the shutdown sequence",
			Buckets:   prometheus.DefBuckets,
		}),
		RequestsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "received_total",
			Help:      "Requests received, by socket",
		}, []string{"socket"}),
		RequestsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "routed_total",
			Help:      "Requests handed to a consumer queue, by category",
		}, []string{"category"}),
		RepliesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replies",
			Name:      "sent_total",
			Help:      "Replies sent to peers, by reply kind",
		}, []string{"kind"}),
		ExitedReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replies",
			Name:      "exited_total",
			Help:      "Exited-boundary replies, by reason",
		}, []string{"reason"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "errors",
			Name:      "total",
			Help:      "Errors observed by the boundary, by class",
		}, []string{"class"}),
		HealthCheckStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "status",
			Help:      "Health check status (0=unhealthy, 1=healthy)",
		}, []string{"component"}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),
		NATSCircuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "circuit_breaker",
			Help:      "NATS circuit breaker status (0=closed, 1=open)",
		}),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.LoopState,
		c.LoopIterations,
		c.CommandsDrained,
		c.Heartbeats,
		c.Announcements,
		c.Cancellations,
		c.ShutdownDuration,
		c.RequestsReceived,
		c.RequestsRouted,
		c.RepliesSent,
		c.ExitedReplies,
		c.ErrorsTotal,
		c.HealthCheckStatus,
		c.NATSConnected,
		c.NATSReconnects,
		c.NATSCircuitBreaker,
	}
}

// RecordLoopRunning updates the loop state gauge
func (c *Metrics) RecordLoopRunning(running bool) {
	c.LoopState.Set(boolToFloat(running))
}

// RecordIteration increments the loop iteration counter
func (c *Metrics) RecordIteration() {
	c.LoopIterations.Inc()
}

// RecordCommand counts one drained command
func (c *Metrics) RecordCommand(kind string) {
	c.CommandsDrained.WithLabelValues(kind).Inc()
}

// RecordHeartbeat counts one keepalive heartbeat
func (c *Metrics) RecordHeartbeat() {
	c.Heartbeats.Inc()
}

// RecordAnnouncement counts one announcement
func (c *Metrics) RecordAnnouncement() {
	c.Announcements.Inc()
}

// RecordCancellation counts one handled cancellation
func (c *Metrics) RecordCancellation() {
	c.Cancellations.Inc()
}

// RecordShutdown records how long the shutdown sequence took
func (c *Metrics) RecordShutdown(d time.Duration) {
	c.ShutdownDuration.Observe(d.Seconds())
}

// RecordRequestReceived counts a request received on socket
func (c *Metrics) RecordRequestReceived(socket string) {
	c.RequestsReceived.WithLabelValues(socket).Inc()
}

// RecordRequestRouted counts a request handed to a consumer
func (c *Metrics) RecordRequestRouted(category string) {
	c.RequestsRouted.WithLabelValues(category).Inc()
}

// RecordReplySent counts a reply delivered to a peer
func (c *Metrics) RecordReplySent(kind string) {
	c.RepliesSent.WithLabelValues(kind).Inc()
}

// RecordExitedReply counts an exited-boundary reply
func (c *Metrics) RecordExitedReply(reason string) {
	c.ExitedReplies.WithLabelValues(reason).Inc()
}

// RecordError counts an error by class
func (c *Metrics) RecordError(class string) {
	c.ErrorsTotal.WithLabelValues(class).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	c.HealthCheckStatus.WithLabelValues(component).Set(boolToFloat(healthy))
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	c.NATSConnected.Set(boolToFloat(connected))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(open bool) {
	c.NATSCircuitBreaker.Set(boolToFloat(open))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
