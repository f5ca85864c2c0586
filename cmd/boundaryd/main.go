// Package main implements boundaryd, the daemon that runs a request/reply
// boundary over NATS for remote analysis workers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/boundary/boundary"
	"github.com/c360/boundary/config"
	"github.com/c360/boundary/health"
	"github.com/c360/boundary/metric"
	"github.com/c360/boundary/natsclient"
	"github.com/c360/boundary/pkg/queue"
	"github.com/c360/boundary/pkg/retry"
	"github.com/c360/boundary/transport"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "boundaryd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, logger, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string) (*CLIConfig, *slog.Logger, bool, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		return nil, nil, true, err
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting boundary daemon",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// loadConfig layers path, if any, over the defaults and the environment
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}
	loader.EnableValidation(true)
	return loader.Load()
}

func newNATSClient(cfg config.NATSConfig, registry *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithSlog(logger.With("component", "nats")),
		natsclient.WithMetrics(registry),
		natsclient.WithHealthChangeCallback(natsHealthHook(registry, logger)),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.ReconnectWait))
	}
	if cfg.ClientName != "" {
		opts = append(opts, natsclient.WithName(cfg.ClientName))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile))
	}

	return natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
}

func boundaryConfig(cfg config.BoundaryConfig) boundary.Config {
	return boundary.Config{
		BindAddress:       cfg.BindAddress,
		Port:              cfg.Port,
		PollTimeout:       cfg.PollTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}
}

// natsHealthHook mirrors NATS connection health changes into the health
// gauge and the log
func natsHealthHook(registry *metric.MetricsRegistry, logger *slog.Logger) func(bool) {
	return func(healthy bool) {
		registry.CoreMetrics().RecordHealthStatus("nats", healthy)
		if healthy {
			logger.Info("NATS connection healthy")
			return
		}
		logger.Warn("NATS connection unhealthy")
	}
}

// natsCheck reports the connection state of client, with the server round
// trip time while connected
func natsCheck(client *natsclient.Client) health.Check {
	return func() health.Status {
		st := client.GetStatus()
		var status health.Status
		switch st.Status {
		case natsclient.StatusConnected:
			msg := "connected"
			if st.RTT > 0 {
				msg = fmt.Sprintf("connected, rtt %s", st.RTT.Round(time.Microsecond))
			}
			status = health.NewHealthy("nats", msg)
		case natsclient.StatusConnecting, natsclient.StatusReconnecting:
			status = health.NewDegraded("nats", st.Status.String())
		default:
			status = health.NewUnhealthy("nats", st.Status.String())
		}
		return status.WithMetrics(&health.Metrics{
			ErrorCount:   int(st.FailureCount),
			LastActivity: st.LastFailureTime,
		})
	}
}

type announcement struct {
	Service   string           `json:"service"`
	Version   string           `json:"version"`
	Request   boundary.Address `json:"request"`
	Keepalive boundary.Address `json:"keepalive"`
	Notify    boundary.Address `json:"notify"`
}

func announce(b *boundary.Boundary) error {
	data, err := json.Marshal(announcement{
		Service:   appName,
		Version:   Version,
		Request:   b.RequestAddress(),
		Keepalive: b.KeepaliveAddress(),
		Notify:    b.NotifyAddress(),
	})
	if err != nil {
		return err
	}
	return b.Announce(data)
}

// serve connects to NATS and runs the boundary, its status consumer and the
// metrics server until ctx ends or the boundary is told to stop.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	client, err := newNATSClient(cfg.NATS, registry, logger)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "urls", cfg.NATS.URLs)
	if err := client.ConnectWithRetry(ctx, retry.Quick()); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}()

	conn := transport.NewNATS(client, cfg.Boundary.QueueSize)
	b, err := boundary.New(conn, boundaryConfig(cfg.Boundary),
		boundary.WithLogger(logger),
		boundary.WithMetrics(registry))
	if err != nil {
		return fmt.Errorf("create boundary: %w", err)
	}

	statusQueue := queue.New[boundary.Notice]()
	if err := b.RegisterRequestCategory(boundary.ByCategory(boundary.StatusCategory), statusQueue); err != nil {
		return fmt.Errorf("register status consumer: %w", err)
	}

	monitor.Register("boundary", b.Health)
	monitor.Register("nats", natsCheck(client))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return boundary.Serve(gctx, statusQueue, boundary.StatusHandler(b),
			boundary.WithWorkers(cfg.Boundary.WorkerCount),
			boundary.WithServeLogger(logger),
			boundary.WithStopTimeout(shutdownTimeout),
			boundary.WithPoolMetrics(registry, "boundary_status_consumer"))
	})

	var server *metric.Server
	if cfg.Metrics.Enabled {
		server = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, monitor)
		g.Go(server.Start)
		logger.Info("Metrics server listening", "address", server.Address())
	}

	if err := b.Start(context.Background()); err != nil {
		return fmt.Errorf("start boundary: %w", err)
	}
	if err := announce(b); err != nil {
		logger.Warn("Announcement not queued", "error", err)
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("Shutting down boundary")
		case <-b.Done():
			logger.Info("Boundary loop exited")
		}

		joinCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := b.Join(joinCtx)

		if server != nil {
			if stopErr := server.Stop(); stopErr != nil {
				logger.Warn("Metrics server stop failed", "error", stopErr)
			}
		}
		return err
	})

	return g.Wait()
}
