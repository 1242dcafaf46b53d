package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pollster"
	"github.com/jpalmerr/pollster/config"
	"github.com/jpalmerr/pollster/internal/httpresource"
	"github.com/jpalmerr/pollster/internal/metrics"
	"github.com/jpalmerr/pollster/internal/server"
	"github.com/jpalmerr/pollster/internal/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll configured resources and serve results",
	Long: `Start polling every configured resource and serve the results.

The server will:
  - Load configuration from the specified YAML file
  - Start one poller per resource
  - Serve /api/results, /api/sse, /api/pollers and /healthz
  - Serve /metrics when metrics are enabled

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pollster serve -c config.yaml
  pollster serve --config /etc/pollster/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"title", cfg.Title,
		"resources", len(cfg.Resources),
		"grids", len(cfg.Grids),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

// app wires the registry, store, HTTP server and telemetry for one config.
type app struct {
	logger   *slog.Logger
	registry *pollster.Registry
	store    *store.MemoryStore
	server   *server.Server
	client   *httpresource.Client
	shutdown func(context.Context) error
	wg       sync.WaitGroup
}

// newApp builds the pipeline and starts one poller per configured resource.
// Pollers run until ctx is cancelled or run returns.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	recorder, metricsHandler, shutdown, err := metrics.Setup(ctx, metrics.TelemetryConfig{
		Enabled:      cfg.Metrics.Enabled,
		ServiceName:  cfg.Metrics.ServiceName,
		OtlpEndpoint: cfg.Metrics.OtlpEndpoint,
		OtlpInsecure: cfg.Metrics.OtlpInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	client := httpresource.NewClient()
	bindings, err := config.BuildBindings(cfg, client)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to build resources: %w", err)
	}

	reg, err := pollster.NewRegistry(
		pollster.WithContext(ctx),
		pollster.WithLogger(logger),
		pollster.WithObserver(recorder),
	)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	st := store.NewMemoryStore()
	a := &app{
		logger:   logger,
		registry: reg,
		store:    st,
		server:   server.NewServer(st, reg, cfg.Port, metricsHandler, logger),
		client:   client,
		shutdown: shutdown,
	}

	for _, b := range bindings {
		p, err := reg.Get(b.Resource, b.Options...)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("resource %q: %w", b.Resource.Name(), err)
		}
		a.forward(p)
		logger.Info("polling resource",
			"resource", b.Resource.Name(),
			"url", b.Resource.URL(),
			"action", p.Action(),
			"delay", p.Delay().String(),
		)
	}

	return a, nil
}

// forward copies every result of p into the store until p is closed.
func (a *app) forward(p *pollster.Poller) {
	ch := p.Subscribe()
	name := p.Name()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for result := range ch {
			a.store.Update(store.FromResult(name, result))
		}
	}()
}

// run serves HTTP until ctx is cancelled, then tears everything down.
func (a *app) run(ctx context.Context) error {
	if err := a.server.Start(ctx); err != nil {
		a.close()
		return fmt.Errorf("server error: %w", err)
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	done := make(chan struct{})
	go func() {
		a.close()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		a.logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
	}
	return nil
}

// close stops all pollers, waits for forwarders to drain and flushes
// telemetry.
func (a *app) close() {
	a.registry.Reset()
	a.wg.Wait()
	a.client.Close()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.shutdown(flushCtx); err != nil {
		a.logger.Error("metrics shutdown error", "error", err)
	}
}
