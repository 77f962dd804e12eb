// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability exposes visitor metrics and health probes on a
// dedicated listener.
package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to accept requests.
type ReadinessChecker func() bool

// Metrics holds the visitor counters. Its methods satisfy the recorder
// interfaces of the verify, mail and auth packages.
type Metrics struct {
	VerificationsTotal *prometheus.CounterVec
	EmailsSentTotal    *prometheus.CounterVec
	LoginsTotal        *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
}

// NewMetrics creates the visitor counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visitor_verifications_total",
				Help: "Verification link checks by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visitor_emails_sent_total",
				Help: "Email send attempts by template and status",
			},
			[]string{"template", "status"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visitor_logins_total",
				Help: "Login attempts by status",
			},
			[]string{"status"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visitor_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	reg.MustRegister(m.VerificationsTotal, m.EmailsSentTotal, m.LoginsTotal, m.RequestsTotal)
	return m
}

// RecordVerification counts one gate check.
func (m *Metrics) RecordVerification(flow, outcome string) {
	m.VerificationsTotal.WithLabelValues(flow, outcome).Inc()
}

// RecordEmail counts one send attempt.
func (m *Metrics) RecordEmail(template, status string) {
	m.EmailsSentTotal.WithLabelValues(template, status).Inc()
}

// RecordLogin counts one login attempt.
func (m *Metrics) RecordLogin(status string) {
	m.LoginsTotal.WithLabelValues(status).Inc()
}

// RecordRequest counts one handled HTTP request.
func (m *Metrics) RecordRequest(route string, code int) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// HealthCheck reports a failing dependency as a non-nil error.
type HealthCheck func(ctx context.Context) error

// healthCheckTimeout bounds each readiness check.
const healthCheckTimeout = 2 * time.Second

// Server serves /metrics and the liveness and readiness probes on a
// listener separate from the visitor HTTP surface.
type Server struct {
	addr     string
	registry *prometheus.Registry
	metrics  *Metrics
	isReady  ReadinessChecker
	logger   *slog.Logger

	mu       sync.Mutex
	checks   map[string]HealthCheck
	listener net.Listener
	srv      *http.Server
}

// NewServer creates a server for addr ("host:port") that logs through the
// default logger.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	return NewServerWithLogger(addr, readinessChecker, slog.Default())
}

// NewServerWithLogger creates a server for addr. The registry carries the
// visitor counters plus the Go runtime and process collectors.
func NewServerWithLogger(addr string, readinessChecker ReadinessChecker, logger *slog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
		logger:   logger,
		checks:   make(map[string]HealthCheck),
	}
}

// Metrics returns the counters recorded by the services.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// AddReadinessCheck registers a dependency probe run on every readiness
// request. A check registered twice under one name replaces the first.
func (s *Server) AddReadinessCheck(name string, check HealthCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)
	return mux
}

// Start opens the listener and serves in the background. Serve failures are
// delivered on the returned channel, which is closed once serving ends.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return nil, oops.Code("OBSERVABILITY_RUNNING").
			With("addr", s.listener.Addr().String()).
			Errorf("observability server already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener, s.srv = ln, srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability serve failed", "addr", ln.Addr().String(), "error", serveErr)
			errCh <- oops.Code("OBSERVABILITY_SERVE_FAILED").Wrap(serveErr)
		}
	}()

	s.logger.Info("observability listening", "addr", ln.Addr().String())
	return errCh, nil
}

// Stop shuts the server down, waiting for in-flight scrapes until ctx ends.
// Stopping a server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return oops.Code("OBSERVABILITY_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("observability stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleReadiness answers 503 while the service is starting or draining,
// or when any registered check fails. Failing check names are listed one
// per line; their errors go to the log only.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.isReady != nil && !s.isReady() {
		writeProbe(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	if failed := s.failingChecks(r.Context()); len(failed) > 0 {
		writeProbe(w, http.StatusServiceUnavailable, strings.Join(failed, "\n"))
		return
	}
	writeProbe(w, http.StatusOK, "ok")
}

func (s *Server) failingChecks(ctx context.Context) []string {
	s.mu.Lock()
	checks := maps.Clone(s.checks)
	s.mu.Unlock()

	var failed []string
	for _, name := range slices.Sorted(maps.Keys(checks)) {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := checks[name](checkCtx)
		cancel()
		if err != nil {
			s.logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
			failed = append(failed, name+": failing")
		}
	}
	return failed
}

func writeProbe(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body+"\n")
}
