package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hlabs/openclaw/internal/agent"
	httpserver "github.com/hlabs/openclaw/internal/http"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the openclaw daemon",
		Long: `Start the openclaw daemon.

Tasks are read from the Telegram command topic and the NATS command subject
(when enabled) and can be submitted through the HTTP API. One task runs at a
time; commands that arrive while a task is running are dropped.

Examples:
  # Start with the default config file
  openclaw serve

  # Use a different config file
  openclaw serve --config /etc/openclaw/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, appOptions{configPath: opts.configPath, pacing: true})
		},
	}
}

// runServe starts every intake and the HTTP API and blocks until ctx is
// cancelled, then drains the active run within the shutdown timeout.
func runServe(ctx context.Context, opts appOptions) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	logger := a.logger.Underlying()

	if a.cfg.Profiles.Path != "" && a.cfg.Profiles.Watch {
		if err := agent.WatchProfiles(ctx, a.cfg.Profiles.Path, a.profiles, logger.Named("profiles")); err != nil {
			logger.Warn("profile watch disabled", zap.Error(err))
		}
	}

	intakes, err := a.intakes()
	if err != nil {
		return err
	}
	if len(intakes) == 0 && !a.cfg.Server.Enabled {
		return fmt.Errorf("nothing to serve: enable telegram, events or the http server")
	}

	var wg sync.WaitGroup
	for _, in := range intakes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = in.Run(ctx)
		}()
	}

	var srv *httpserver.Server
	errCh := make(chan error, 1)
	if a.cfg.Server.Enabled {
		srv, err = httpserver.NewServer(a.orch, a.store, a.scrubber, logger.Named("http"), &httpserver.Config{
			Host:     a.cfg.Server.Host,
			Port:     a.cfg.Server.Port,
			Version:  version,
			Gatherer: a.registry,
			Meter:    a.tel.Meter(instrumentationName + "/internal/http"),
			Checks:   a.healthChecks(),
		})
		if err != nil {
			return fmt.Errorf("failed to create http server: %w", err)
		}
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	logger.Info("openclaw serving",
		zap.Int("intakes", len(intakes)),
		zap.Bool("http", srv != nil),
	)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case serveErr = <-errCh:
		logger.Error("http server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := a.orch.Wait(shutdownCtx); err != nil {
		logger.Warn("active run did not finish before shutdown", zap.Error(err))
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
	}
	wg.Wait()

	logger.Info("shutdown complete")
	return serveErr
}

// healthChecks reports NATS and telemetry problems on /health.
func (a *app) healthChecks() map[string]httpserver.HealthCheck {
	checks := map[string]httpserver.HealthCheck{}
	if a.nc != nil {
		nc := a.nc
		checks["nats"] = func(context.Context) error {
			if s := nc.Status(); s != nats.CONNECTED {
				return fmt.Errorf("nats %s", s)
			}
			return nil
		}
	}
	if a.cfg.Telemetry.Enabled {
		checks["telemetry"] = a.tel.Check
	}
	return checks
}
