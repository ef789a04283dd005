// Package main runs the device event pipeline.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/config"
	"github.com/xfyecn/sitewhere-master-sub001/engine"
	"github.com/xfyecn/sitewhere-master-sub001/health"
	"github.com/xfyecn/sitewhere-master-sub001/metric"
	"github.com/xfyecn/sitewhere-master-sub001/natsclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "pipeline"
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

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	switch {
	case cliCfg.ShowVersion:
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	case cliCfg.ShowHelp:
		return nil
	case cliCfg.ShowTypes:
		printTypes(stdout, engine.DefaultRegistry().Types())
		return nil
	}

	logger := setupLogger(stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting pipeline",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"layers", cliCfg.Layers)

	cfg, err := loadConfig(cliCfg.ConfigPath, cliCfg.Layers)
	if err != nil {
		return err
	}
	logger.Debug("Configuration loaded", "config", cfg.String())

	if cliCfg.Validate {
		// Building catches unknown types and bad params without connecting.
		if _, err := engine.NewBuilder(component.Dependencies{Logger: logger}, nil, cfg).BuildServer(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger.Info("Configuration is valid", "tenants", len(cfg.Tenants))
		return nil
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if cliCfg.ShutdownTimeout > 0 {
		shutdownTimeout = cliCfg.ShutdownTimeout
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	monitor := health.NewMonitor()
	deps := component.Dependencies{Logger: logger}
	if cfg.Metrics.Enabled {
		deps.MetricsRegistry = metric.NewMetricsRegistry()
	}

	if cfg.NATS.URL != "" {
		nc, err := connectToNATS(ctx, cfg, logger, monitor)
		if err != nil {
			return err
		}
		defer func() { _ = nc.Close(context.Background()) }()
		deps.NATSClient = nc
	}

	server, err := engine.NewBuilder(deps, nil, cfg).BuildServer()
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	monitor.Track("server", server)

	if deps.MetricsRegistry != nil {
		metricsServer := startMetricsServer(cfg, deps.MetricsRegistry, monitor, logger)
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Warn("Failed to stop metrics server", "error", err)
			}
		}()
	}

	return runWithSignalHandling(ctx, server, logger, shutdownTimeout)
}

func loadConfig(path string, layers []string) (*config.Config, error) {
	loader := config.NewLoader()
	loader.AddLayer(path)
	for _, layer := range layers {
		loader.AddLayer(layer)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// connectToNATS connects the shared client used by JetStream receivers, the
// object store and NATS publishers. Connection changes are reported to the
// health monitor.
func connectToNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger, monitor *health.Monitor) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithClientName(cfg.Server.Name),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithDisconnectCallback(func(err error) {
			monitor.UpdateUnhealthy("nats", "Disconnected")
		}),
		natsclient.WithReconnectCallback(func() {
			monitor.UpdateHealthy("nats", "Reconnected")
		}),
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(cfg.NATS.PingInterval))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	nc, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS")
	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := nc.Connect(connCtx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	monitor.UpdateHealthy("nats", "Connected")
	return nc, nil
}

func startMetricsServer(cfg *config.Config, registry *metric.MetricsRegistry, monitor *health.Monitor, logger *slog.Logger) *metric.Server {
	srv := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	h := health.Handler(monitor, cfg.Server.Name, "/health/components", logger)
	srv.Handle("/health/components", h)
	srv.Handle("/health/components/", h)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	logger.Info("Metrics server started", "address", srv.Address())
	return srv
}

// runWithSignalHandling starts the server and blocks until ctx is cancelled.
func runWithSignalHandling(ctx context.Context, server *engine.Server, logger *slog.Logger, shutdownTimeout time.Duration) error {
	monitor := component.NewLogMonitor(logger)

	server.LifecycleStart(ctx, monitor)
	if server.Status() == component.StatusError {
		return fmt.Errorf("start pipeline: %w", server.LastError())
	}

	running := 0
	for _, t := range server.Tenants() {
		if t.Status() == component.StatusStarted {
			running++
		}
	}
	logger.Info("Pipeline started", "tenants", len(server.Tenants()), "running", running)

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	return shutdown(server, monitor, logger, shutdownTimeout)
}

// shutdown stops the server, giving up after timeout.
func shutdown(server *engine.Server, monitor component.Monitor, logger *slog.Logger, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		server.LifecycleStop(shutdownCtx, monitor)
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		return fmt.Errorf("graceful shutdown timed out after %s", timeout)
	}

	if server.Status() == component.StatusError {
		return fmt.Errorf("graceful shutdown failed: %w", server.LastError())
	}
	logger.Info("Pipeline shutdown complete")
	return nil
}

func printTypes(w io.Writer, types map[string][]string) {
	kinds := make([]string, 0, len(types))
	for k := range types {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(w, "%-14s %s\n", k+":", strings.Join(types[k], ", "))
	}
}
