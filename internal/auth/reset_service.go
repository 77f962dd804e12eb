// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/mail"
	"github.com/holomush/visitor/internal/token"
	"github.com/holomush/visitor/internal/verify"
)

// ResetConfig holds the settings for password reset emails.
type ResetConfig struct {
	// LinkBase is the absolute URL prefix of the reset route,
	// e.g. "https://example.com/user/reset_password".
	LinkBase string
	Site     mail.Site
	Policy   account.PasswordPolicy
}

// PasswordResetService handles password reset operations.
type PasswordResetService struct {
	accounts account.Repository
	hasher   account.PasswordHasher
	tokens   verify.TokenVerifier
	mailer   mail.TemplateSender
	cfg      ResetConfig
	logger   *slog.Logger
}

// NewPasswordResetService creates a new PasswordResetService with a no-op logger.
func NewPasswordResetService(
	accounts account.Repository,
	hasher account.PasswordHasher,
	tokens verify.TokenVerifier,
	mailer mail.TemplateSender,
	cfg ResetConfig,
) (*PasswordResetService, error) {
	return NewPasswordResetServiceWithLogger(accounts, hasher, tokens, mailer, cfg, slog.New(slog.DiscardHandler))
}

// NewPasswordResetServiceWithLogger creates a new PasswordResetService with the provided logger.
func NewPasswordResetServiceWithLogger(
	accounts account.Repository,
	hasher account.PasswordHasher,
	tokens verify.TokenVerifier,
	mailer mail.TemplateSender,
	cfg ResetConfig,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token verifier is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if cfg.LinkBase == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("reset link base is required")
	}
	return &PasswordResetService{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// RequestReset emails a reset link to the active account registered with
// email. Unknown and inactive addresses succeed silently so callers cannot
// learn which emails exist. A zero site falls back to the configured one.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string, site mail.Site) error {
	acct, err := s.accounts.GetByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "GetByEmail").
			Wrap(err)
	}
	if !acct.IsActive {
		s.logger.DebugContext(ctx, "password reset requested for inactive account", "account_id", acct.ID)
		return nil
	}

	if site == (mail.Site{}) {
		site = s.cfg.Site
	}
	tok := s.tokens.MakeToken(acct)
	data := mail.Context{
		User:     acct,
		UID:      token.EncodeID(acct.ID),
		Token:    tok,
		TokenURL: token.FormatLink(s.cfg.LinkBase, acct.ID, tok),
		Site:     site,
	}
	if err := s.mailer.SendEmail(ctx, mail.TemplatePasswordReset, acct.Email, data); err != nil {
		return oops.Code("RESET_SEND_FAILED").
			With("account_id", acct.ID).
			Errorf("send password reset: %v", err)
	}

	s.logger.InfoContext(ctx, "password reset email sent", "account_id", acct.ID)
	return nil
}

// ResetPassword sets a new password on an account whose reset link was
// already verified. Changing the hash invalidates the link.
// Form problems are returned as a *account.ValidationError.
func (s *PasswordResetService) ResetPassword(ctx context.Context, acct *account.Account, newPassword1, newPassword2 string) error {
	if acct == nil {
		return oops.Code("RESET_FAILED").Errorf("account is required")
	}
	v := &account.ValidationError{}
	s.cfg.Policy.CheckPair(v, FieldNewPassword1, newPassword1, FieldNewPassword2, newPassword2)
	if err := v.OrNil(); err != nil {
		return err
	}
	if err := setPassword(ctx, s.accounts, s.hasher, acct, newPassword1); err != nil {
		return oops.Code("RESET_FAILED").With("account_id", acct.ID).Errorf("reset password: %v", err)
	}
	s.logger.InfoContext(ctx, "password reset completed", "account_id", acct.ID)
	return nil
}

// Lookup returns active accounts by id for a verify.Resolver.
// Inactive accounts are reported as not found.
func (s *PasswordResetService) Lookup(ctx context.Context, id int64) (*account.Account, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, oops.Code("ACCOUNT_INACTIVE").With("account_id", id).Wrap(account.ErrNotFound)
	}
	return acct, nil
}
