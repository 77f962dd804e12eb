// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/holomush/visitor/internal/app"
	"github.com/holomush/visitor/internal/config"
	"github.com/holomush/visitor/internal/mail"
	"github.com/holomush/visitor/internal/observability"
	"github.com/holomush/visitor/internal/store"
	"github.com/holomush/visitor/internal/store/memory"
)

// Deps contains injectable dependencies for the serve and invite commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// StoresFactory opens the configured storage backend. The returned
	// function releases it.
	// Default: openStores
	StoresFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app.Stores, func(), error)

	// TransportFactory creates the configured mail transport.
	// Default: newTransport
	TransportFactory func(cfg *config.Config, logger *slog.Logger) (mail.Transport, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServerWithLogger
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// ListenerFactory creates the HTTP listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	AddReadinessCheck(name string, check observability.HealthCheck)
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.StoresFactory == nil {
		out.StoresFactory = openStores
	}
	if out.TransportFactory == nil {
		out.TransportFactory = newTransport
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServerWithLogger(addr, ready, logger)
		}
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	return &out
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app.Stores, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		logger.Warn("using the in-memory store; accounts are lost on exit")
		return app.MemoryStores(memory.New()), func() {}, nil
	}
	pool, err := store.Open(ctx, cfg.Secrets.DatabaseURL, store.OpenOptions{Logger: logger})
	if err != nil {
		return app.Stores{}, nil, err
	}
	return app.PostgresStores(pool), pool.Close, nil
}

func newTransport(cfg *config.Config, logger *slog.Logger) (mail.Transport, error) {
	switch cfg.Mail.Driver {
	case config.MailLog:
		return mail.NewLogTransport(logger.With("component", "mail")), nil
	case config.MailMemory:
		return mail.NewOutbox(), nil
	}
	transport, err := mail.NewSMTPTransport(cfg.SMTPConfig())
	if err != nil {
		return nil, err
	}
	return transport, nil
}
