// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package app assembles the visitor services from configuration.
package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/auth"
	authpg "github.com/holomush/visitor/internal/auth/postgres"
	"github.com/holomush/visitor/internal/config"
	"github.com/holomush/visitor/internal/invite"
	invitepg "github.com/holomush/visitor/internal/invite/postgres"
	"github.com/holomush/visitor/internal/mail"
	"github.com/holomush/visitor/internal/observability"
	"github.com/holomush/visitor/internal/store"
	"github.com/holomush/visitor/internal/store/memory"
	"github.com/holomush/visitor/internal/token"
	"github.com/holomush/visitor/internal/verify"
	"github.com/holomush/visitor/internal/web"
)

// Flow names used in logs and metrics.
const (
	FlowPasswordReset = "password_reset"
	FlowInvitation    = "invitation"
)

// Stores groups the repositories of one backend.
type Stores struct {
	Accounts  account.Repository
	Sessions  auth.WebSessionRepository
	Invites   invite.Repository
	Registrar invite.Registrar

	// Ping reports backend health. Nil for backends with nothing to probe.
	Ping func(ctx context.Context) error
}

// MemoryStores returns repositories backed by s.
func MemoryStores(s *memory.Store) Stores {
	return Stores{
		Accounts:  s.Accounts(),
		Sessions:  s.Sessions(),
		Invites:   s.Invitations(),
		Registrar: s.Registrar(),
	}
}

// PostgresStores returns repositories backed by db. Ping is set when db
// can be pinged, as a pool can.
func PostgresStores(db store.DB) Stores {
	stores := Stores{
		Accounts:  authpg.NewAccountRepository(db),
		Sessions:  authpg.NewWebSessionRepository(db),
		Invites:   invitepg.NewInvitationRepository(db),
		Registrar: invitepg.NewRegistrar(db),
	}
	if p, ok := db.(interface{ Ping(context.Context) error }); ok {
		stores.Ping = p.Ping
	}
	return stores
}

// Options holds optional collaborators.
type Options struct {
	// Hasher defaults to Argon2id with the default parameters.
	Hasher account.PasswordHasher
	// Renderer defaults to the built-in email templates.
	Renderer *mail.Renderer
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// App is the assembled service graph.
type App struct {
	Auth     *auth.Service
	Reset    *auth.PasswordResetService
	Invites  *invite.Service
	Handler  *web.Handler
	Sessions auth.WebSessionRepository
}

// New wires every service for cfg on top of stores, delivering email
// through transport.
func New(cfg *config.Config, stores Stores, transport mail.Transport, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hasher := opts.Hasher
	if hasher == nil {
		hasher = account.NewArgon2idHasher()
	}
	renderer := opts.Renderer
	if renderer == nil {
		var err error
		if renderer, err = mail.NewRenderer(); err != nil {
			return nil, err
		}
	}

	sender, err := mail.NewSenderWithLogger(renderer, transport, cfg.Mail.From, logger.With("component", "mail"))
	if err != nil {
		return nil, err
	}

	resetTokens, err := token.NewGenerator(cfg.Secrets.SecretKey, token.SaltPasswordReset, token.WithMaxAge(cfg.Token.MaxAge))
	if err != nil {
		return nil, err
	}
	inviteTokens, err := token.NewGenerator(cfg.Secrets.SecretKey, token.SaltInvitation, token.WithMaxAge(cfg.Token.MaxAge))
	if err != nil {
		return nil, err
	}

	linkBase := cfg.Site.BaseURL + cfg.HTTP.Prefix

	authSvc, err := auth.NewAuthServiceWithLogger(stores.Accounts, stores.Sessions, hasher, auth.Config{
		Identity: cfg.Identity(),
		Policy:   cfg.Policy(),
	}, logger.With("component", "auth"))
	if err != nil {
		return nil, err
	}

	resetSvc, err := auth.NewPasswordResetServiceWithLogger(stores.Accounts, hasher, resetTokens, sender, auth.ResetConfig{
		LinkBase: linkBase + "/reset_password",
		Site:     cfg.MailSite(),
		Policy:   cfg.Policy(),
	}, logger.With("component", "reset"))
	if err != nil {
		return nil, err
	}

	inviteSvc, err := invite.NewServiceWithLogger(invite.Deps{
		Accounts:  stores.Accounts,
		Invites:   stores.Invites,
		Registrar: stores.Registrar,
		Hasher:    hasher,
		Tokens:    inviteTokens,
		Mailer:    sender,
	}, invite.Config{
		LinkBase: linkBase + "/invitation",
		Site:     cfg.MailSite(),
		Policy:   cfg.Policy(),
		Identity: cfg.Identity(),
	}, logger.With("component", "invite"))
	if err != nil {
		return nil, err
	}

	gateLogger := logger.With("component", "verify")
	resetGate, err := verify.NewGateWithLogger(FlowPasswordReset, verify.NewResolver(resetSvc.Lookup), resetTokens, gateLogger)
	if err != nil {
		return nil, err
	}
	inviteGate, err := verify.NewGateWithLogger(FlowInvitation, verify.NewResolver(inviteSvc.Lookup), inviteTokens, gateLogger)
	if err != nil {
		return nil, err
	}

	deps := web.Deps{
		Auth:       authSvc,
		Reset:      resetSvc,
		Invites:    inviteSvc,
		ResetGate:  resetGate,
		InviteGate: inviteGate,
	}
	if m := opts.Metrics; m != nil {
		sender.WithRecorder(m)
		authSvc.WithRecorder(m)
		resetGate.WithRecorder(m)
		inviteGate.WithRecorder(m)
		deps.Recorder = m
	}

	handler, err := web.NewWithLogger(deps, web.Options{
		Prefix:               cfg.HTTP.Prefix,
		LoginURL:             cfg.URLs.Login,
		LoginRedirect:        cfg.URLs.LoginRedirect,
		LogoutRedirect:       cfg.URLs.LogoutRedirect,
		InvalidTokenRedirect: cfg.URLs.InvalidTokenRedirect,
		RegisterEnabled:      cfg.Accounts.RegisterEnabled,
		Identity:             cfg.Identity(),
		SecureCookies:        strings.HasPrefix(cfg.Site.BaseURL, "https:"),
	}, logger.With("component", "web"))
	if err != nil {
		return nil, oops.With("operation", "build web handler").Wrap(err)
	}

	return &App{
		Auth:     authSvc,
		Reset:    resetSvc,
		Invites:  inviteSvc,
		Handler:  handler,
		Sessions: stores.Sessions,
	}, nil
}
