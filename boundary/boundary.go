package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/boundary/errors"
	"github.com/c360/boundary/health"
	"github.com/c360/boundary/metric"
	"github.com/c360/boundary/pkg/queue"
	"github.com/c360/boundary/transport"
	"github.com/c360/boundary/wire"
)

// LevelCritical is the slog level used for faults that terminate the process.
const LevelCritical = slog.Level(12)

// Config holds the boundary's addressing and timing.
type Config struct {
	// BindAddress is the subject prefix every boundary subject lives under.
	BindAddress string
	// Port names the announce instance. Empty selects a random token.
	Port string
	// PollTimeout bounds how long the loop blocks without any activity.
	PollTimeout time.Duration
	// HeartbeatInterval rate limits keepalive heartbeats. Zero sends one
	// every loop iteration.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the default boundary configuration
func DefaultConfig() Config {
	return Config{
		BindAddress: "boundary",
		PollTimeout: time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BindAddress == "" {
		c.BindAddress = def.BindAddress
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = def.PollTimeout
	}
	return c
}

// Option configures a Boundary
type Option func(*Boundary)

// WithLogger sets the logger; the boundary tags it with its component name
func WithLogger(logger *slog.Logger) Option {
	return func(b *Boundary) {
		if logger != nil {
			b.logger = logger.With("component", "boundary")
		}
	}
}

// WithMetrics records loop, routing and reply metrics on the registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(b *Boundary) {
		if registry != nil {
			b.metrics = registry.CoreMetrics()
		}
	}
}

// WithExitFunc replaces os.Exit as the reaction to a fatal loop fault
func WithExitFunc(exit func(code int)) Option {
	return func(b *Boundary) {
		if exit != nil {
			b.exit = exit
		}
	}
}

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

// Boundary couples a transport connection carrying peer requests to the
// goroutines that serve them. All transport traffic happens on its loop
// goroutine; every exported method is safe for concurrent use.
type Boundary struct {
	conn    transport.Conn
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics
	exit    func(int)

	requestSubject   string
	announceSubject  string
	keepaliveSubject string
	notifySubject    string

	routerSub transport.Subscription
	notifySub transport.Subscription

	commands  *queue.Queue[command]
	heartbeat *rate.Limiter

	// routes is written before Start and only read by the loop afterwards
	routes []route

	analysisMu sync.Mutex
	analysis   AnalysisContext

	lifecycleMu sync.Mutex
	state       state
	done        chan struct{}
	startedAt   time.Time

	lastIteration   atomic.Int64
	requestsHandled atomic.Int64
	faults          atomic.Int64
}

// New subscribes the boundary's request and notify subjects on conn. The
// loop does not run until Start.
func New(conn transport.Conn, cfg Config, opts ...Option) (*Boundary, error) {
	if conn == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "Boundary", "New", "check connection")
	}
	cfg = cfg.withDefaults()

	b := &Boundary{
		conn:     conn,
		cfg:      cfg,
		logger:   slog.Default().With("component", "boundary"),
		metrics:  metric.NewMetrics(),
		exit:     os.Exit,
		commands: queue.New[command](),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	if cfg.HeartbeatInterval > 0 {
		b.heartbeat = rate.NewLimiter(rate.Every(cfg.HeartbeatInterval), 1)
	} else {
		b.heartbeat = rate.NewLimiter(rate.Inf, 1)
	}

	token := newToken()
	instance := cfg.Port
	if instance == "" {
		instance = token
	}
	prefix := strings.TrimSuffix(cfg.BindAddress, ".")
	b.requestSubject = fmt.Sprintf("%s.request.%s", prefix, token)
	b.announceSubject = fmt.Sprintf("%s.announce.%s", prefix, instance)
	b.keepaliveSubject = fmt.Sprintf("%s.keepalive.%s", prefix, token)
	b.notifySubject = fmt.Sprintf("%s.notify.%s", prefix, token)

	var err error
	if b.routerSub, err = conn.Subscribe(b.requestSubject); err != nil {
		return nil, errors.Wrap(err, "Boundary", "New", "subscribe request subject")
	}
	if b.notifySub, err = conn.Subscribe(b.notifySubject); err != nil {
		_ = b.routerSub.Unsubscribe()
		return nil, errors.Wrap(err, "Boundary", "New", "subscribe notify subject")
	}

	b.logger.Info("Boundary created",
		"request", b.requestSubject,
		"announce", b.announceSubject,
		"keepalive", b.keepaliveSubject,
		"notify", b.notifySubject)

	return b, nil
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Start launches the event loop. Cancelling ctx stops the loop as Join does.
func (b *Boundary) Start(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	switch b.state {
	case stateRunning:
		return errors.ErrAlreadyStarted
	case stateStopped:
		return errors.ErrAlreadyStopped
	}

	b.state = stateRunning
	b.startedAt = time.Now()
	b.lastIteration.Store(b.startedAt.UnixNano())

	go b.spin(ctx)
	return nil
}

// Done is closed once the loop has exited
func (b *Boundary) Done() <-chan struct{} {
	return b.done
}

// RegisterRequestCategory routes requests accepted by match to q. Entries
// are tried in registration order and the first match wins. Registration
// closes when the loop starts.
func (b *Boundary) RegisterRequestCategory(match Matcher, q *queue.Queue[Notice]) error {
	if match == nil || q == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Boundary", "RegisterRequestCategory", "check arguments")
	}

	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.state != stateNew {
		return errors.ErrAlreadyStarted
	}
	b.routes = append(b.routes, route{match: match, queue: q})
	return nil
}

// Health reports the loop state, uptime and pending analysis replies
func (b *Boundary) Health() health.Status {
	b.lifecycleMu.Lock()
	st := b.state
	startedAt := b.startedAt
	b.lifecycleMu.Unlock()

	var status health.Status
	switch st {
	case stateNew:
		status = health.NewDegraded("boundary", "not started")
	case stateRunning:
		last := time.Unix(0, b.lastIteration.Load())
		if stall := time.Since(last); stall > 2*b.cfg.PollTimeout+time.Second {
			status = health.NewDegraded("boundary", fmt.Sprintf("loop idle for %s", stall.Round(time.Millisecond)))
		} else {
			status = health.NewHealthy("boundary", "running")
		}
	default:
		status = health.NewUnhealthy("boundary", "stopped")
	}

	pending := 0
	b.analysisMu.Lock()
	if p, ok := b.analysis.(interface{ Pending() int }); ok {
		pending = p.Pending()
	}
	b.analysisMu.Unlock()

	m := &health.Metrics{
		ErrorCount:      int(b.faults.Load()),
		RequestsHandled: b.requestsHandled.Load(),
		PendingReplies:  pending,
		LastActivity:    time.Unix(0, b.lastIteration.Load()),
	}
	if !startedAt.IsZero() {
		m.Uptime = time.Since(startedAt)
	}
	return status.WithMetrics(m)
}

// Announce publishes payload on the announce subject from the loop
func (b *Boundary) Announce(payload []byte) error {
	return b.send(command{kind: cmdAnnounce, payload: payload})
}

// SendStop tells keepalive listeners to stop without stopping the boundary
func (b *Boundary) SendStop() error {
	return b.send(command{kind: cmdKeepaliveStop})
}

// EnqueueReply hands rep to the loop for delivery to the peer that sent req.
func (b *Boundary) EnqueueReply(req *wire.Request, rep *wire.Reply) error {
	if req == nil || rep == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Boundary", "EnqueueReply", "check arguments")
	}
	return b.send(command{kind: cmdReply, req: req, rep: rep})
}
