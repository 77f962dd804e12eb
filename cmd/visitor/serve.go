// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/visitor/internal/app"
	"github.com/holomush/visitor/internal/auth"
	"github.com/holomush/visitor/internal/config"
	"github.com/holomush/visitor/internal/logging"
	"github.com/holomush/visitor/internal/observability"
	"github.com/holomush/visitor/pkg/errutil"
)

// Default values for serve command flags.
const (
	defaultSweepInterval   = time.Hour
	defaultShutdownTimeout = 10 * time.Second
)

type serveConfig struct {
	sweepInterval   time.Duration
	shutdownTimeout time.Duration
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the account pages",
		Long: `Start the HTTP server for the account pages and, unless
metrics-addr is empty, the metrics and health probe server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, cfg, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().DurationVar(&cfg.sweepInterval, "session-sweep", defaultSweepInterval, "interval between expired session cleanups (0 = disabled)")
	cmd.Flags().DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "grace period for in-flight requests on shutdown")

	return cmd
}

// runServeWithDeps runs the server until ctx is cancelled or a signal
// arrives. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, sc *serveConfig, deps *Deps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.SetDefault(logging.Options{
		Service: "visitor",
		Version: version,
		Format:  cfg.Log.Format,
	})
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := deps.StoresFactory(ctx, cfg, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer closeStores()

	transport, err := deps.TransportFactory(cfg, logger)
	if err != nil {
		return oops.Code("MAIL_TRANSPORT_FAILED").With("driver", cfg.Mail.Driver).Wrap(err)
	}

	shutdownTimeout := sc.shutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	var ready atomic.Bool
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load, logger)
		metrics = obsServer.Metrics()
		if stores.Ping != nil {
			obsServer.AddReadinessCheck("database", stores.Ping)
		}
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.With("operation", "start observability server").Wrap(startErr)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("error stopping observability server", "error", stopErr)
			}
		}()
		go monitorServerErrors(ctx, stop, obsErrChan, "observability")
	}

	a, err := app.New(cfg, stores, transport, app.Options{Metrics: metrics, Logger: logger})
	if err != nil {
		return oops.With("operation", "build services").Wrap(err)
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	srv := &http.Server{
		Handler:           a.Handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	if sc.sweepInterval > 0 {
		go sweepSessions(ctx, a.Sessions, sc.sweepInterval, logger)
	}

	ready.Store(true)
	cmd.Println("visitor listening on " + listener.Addr().String())
	logger.Info("visitor ready",
		"addr", listener.Addr().String(),
		"prefix", cfg.HTTP.Prefix,
		"store", cfg.Store.Driver,
		"mail", cfg.Mail.Driver,
	)

	var serveErr error
	select {
	case serveErr = <-errChan:
		logger.Error("http server error", "error", serveErr)
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}

	if serveErr != nil {
		return oops.Code("HTTP_SERVE_FAILED").Wrap(serveErr)
	}
	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the serve context when a background server
// reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

// sweepSessions deletes expired sessions every interval until ctx is done.
func sweepSessions(ctx context.Context, sessions auth.WebSessionRepository, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				errutil.LogErrorContext(ctx, logger, "session sweep failed", err)
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}
