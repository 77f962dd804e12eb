// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/account"
)

// Field names used by the change-password form.
const (
	FieldOldPassword  = "old_password"
	FieldNewPassword1 = "new_password1"
	FieldNewPassword2 = "new_password2"
)

// MsgOldPasswordIncorrect is reported on the old password field.
const MsgOldPasswordIncorrect = "Your old password was entered incorrectly. Please enter it again."

// LoginRecorder receives one outcome per login attempt.
type LoginRecorder interface {
	RecordLogin(status string)
}

// Config tunes Service behavior.
type Config struct {
	Identity account.IdentityField
	Policy   account.PasswordPolicy
}

// Service provides authentication operations.
type Service struct {
	accounts account.Repository
	sessions WebSessionRepository
	hasher   account.PasswordHasher
	cfg      Config
	recorder LoginRecorder
	logger   *slog.Logger
}

// NewAuthService creates a new Service with a no-op logger.
func NewAuthService(accounts account.Repository, sessions WebSessionRepository, hasher account.PasswordHasher, cfg Config) (*Service, error) {
	return NewAuthServiceWithLogger(accounts, sessions, hasher, cfg, slog.New(slog.DiscardHandler))
}

// NewAuthServiceWithLogger creates a new Service with the provided logger.
func NewAuthServiceWithLogger(
	accounts account.Repository,
	sessions WebSessionRepository,
	hasher account.PasswordHasher,
	cfg Config,
	logger *slog.Logger,
) (*Service, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if cfg.Identity == "" {
		cfg.Identity = account.IdentityEmail
	}
	if !cfg.Identity.Valid() {
		return nil, oops.Code("CONFIG_INVALID").With("identity_field", cfg.Identity).Errorf("unknown identity field")
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// WithRecorder returns s reporting login outcomes to r.
func (s *Service) WithRecorder(r LoginRecorder) *Service {
	s.recorder = r
	return s
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Login authenticates an account by its identity field and creates a web
// session. Unknown and inactive accounts fail exactly like a wrong password.
// Returns the session, plaintext token, and any error.
func (s *Service) Login(ctx context.Context, identity, password, userAgent, ipAddress string) (*WebSession, string, error) {
	acct, lookupErr := account.GetByIdentity(ctx, s.accounts, s.cfg.Identity, identity)

	targetHash := dummyPasswordHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = acct.PasswordHash
		exists = true
	case !errors.Is(lookupErr, account.ErrNotFound):
		s.record(LoginError)
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by identity").
			Wrap(lookupErr)
	}

	// Always verify, even for unknown accounts, so timing does not leak existence.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && exists {
		s.record(LoginError)
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !exists || !valid || !acct.IsActive {
		if exists && !valid {
			if err := s.accounts.RecordLoginFailure(ctx, acct.ID); err != nil {
				s.logger.WarnContext(ctx, "failed to record login failure", "account_id", acct.ID, "error", err)
			}
		}
		s.record(LoginFailed)
		return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid credentials")
	}

	// Lockout is checked after verification to keep timing constant.
	if acct.IsLocked() {
		s.record(LoginLocked)
		return nil, "", oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", acct.LockedUntil).
			Errorf("account is temporarily locked")
	}

	if s.hasher.NeedsUpgrade(acct.PasswordHash) {
		s.upgradeHash(ctx, acct, password)
	}

	session, tok, err := s.StartSession(ctx, acct, userAgent, ipAddress)
	if err != nil {
		s.record(LoginError)
		return nil, "", err
	}
	s.record(LoginSucceeded)
	return session, tok, nil
}

// upgradeHash rehashes password with the current parameters. The swap is
// skipped when the stored hash changed since acct was read.
func (s *Service) upgradeHash(ctx context.Context, acct *account.Account, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "account_id", acct.ID, "error", err)
		return
	}
	swapped, err := s.accounts.ReplacePasswordHash(ctx, acct.ID, acct.PasswordHash, newHash)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash not stored", "account_id", acct.ID, "error", err)
		return
	}
	if swapped {
		acct.PasswordHash = newHash
	}
}

// StartSession signs acct in without a password check. It is used after
// registration, invitation completion and password reset. The account's
// last login time is updated, which invalidates outstanding reset tokens.
// Only the login columns are written, so a concurrent password change
// is never overwritten.
func (s *Service) StartSession(ctx context.Context, acct *account.Account, userAgent, ipAddress string) (*WebSession, string, error) {
	acct.RecordSuccess(time.Now().UTC().Truncate(time.Second))
	if err := s.accounts.RecordLogin(ctx, acct.ID, *acct.LastLogin); err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "update last login").
			With("account_id", acct.ID).
			Wrap(err)
	}

	tok, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewWebSession(acct.ID, tokenHash, userAgent, ipAddress, time.Now().Add(SessionTokenExpiry))
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create web session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account signed in", "account_id", acct.ID, "session_id", session.ID.String())
	return session, tok, nil
}

// Logout invalidates a web session.
func (s *Service) Logout(ctx context.Context, sessionID ulid.ULID) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("session_id", sessionID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	return nil
}

// RevokeSessions signs an account out everywhere except the session keep.
// Pass the zero ULID to end every session, as after a password reset.
func (s *Service) RevokeSessions(ctx context.Context, accountID int64, keep ulid.ULID) error {
	n, err := s.sessions.DeleteByAccount(ctx, accountID, keep)
	if err != nil {
		return oops.Code("AUTH_REVOKE_FAILED").With("account_id", accountID).Wrap(err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "sessions revoked", "account_id", accountID, "count", n)
	}
	return nil
}

// ValidateSession validates a session token and returns the session if valid.
// Also updates the LastSeenAt timestamp.
func (s *Service) ValidateSession(ctx context.Context, token string) (*WebSession, error) {
	if token == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpired() {
		return nil, oops.Code("SESSION_EXPIRED").Errorf("session has expired")
	}

	if err := s.sessions.UpdateLastSeen(ctx, session.ID, time.Now()); err != nil {
		s.logger.DebugContext(ctx, "failed to update session last seen", "session_id", session.ID.String(), "error", err)
	}
	return session, nil
}

// Authenticate resolves a session token to its session and active account.
func (s *Service) Authenticate(ctx context.Context, token string) (*WebSession, *account.Account, error) {
	session, err := s.ValidateSession(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	acct, err := s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, nil, oops.Code("SESSION_INVALID").Errorf("session account no longer exists")
		}
		return nil, nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session account").
			Wrap(err)
	}
	if !acct.IsActive {
		return nil, nil, oops.Code("SESSION_INVALID").Errorf("session account is inactive")
	}
	return session, acct, nil
}

// PrepareRegistration validates a self-service registration. The returned
// write creates the account when applied.
func (s *Service) PrepareRegistration(ctx context.Context, in account.RegistrationInput) (*account.PreparedWrite[*account.Account], error) {
	reg := account.Registration{
		Accounts: s.accounts,
		Hasher:   s.hasher,
		Policy:   s.cfg.Policy,
		Identity: s.cfg.Identity,
	}
	acct, err := reg.Build(ctx, in)
	if err != nil {
		return nil, err
	}
	return account.Prepare(acct, func(ctx context.Context, a *account.Account) error {
		if err := s.accounts.Create(ctx, a); err != nil {
			return account.DuplicateError(err)
		}
		s.logger.InfoContext(ctx, "account registered", "account_id", a.ID)
		return nil
	}), nil
}

// ChangePassword verifies the current password and stores a new one.
// Form problems are returned as a *account.ValidationError.
func (s *Service) ChangePassword(ctx context.Context, acct *account.Account, oldPassword, newPassword1, newPassword2 string) error {
	v := &account.ValidationError{}
	if oldPassword == "" {
		v.Add(FieldOldPassword, "This field is required.")
	} else {
		ok, err := s.hasher.Verify(oldPassword, acct.PasswordHash)
		if err != nil {
			return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").
				With("operation", "verify old password").
				With("account_id", acct.ID).
				Wrap(err)
		}
		if !ok {
			v.Add(FieldOldPassword, MsgOldPasswordIncorrect)
		}
	}
	s.cfg.Policy.CheckPair(v, FieldNewPassword1, newPassword1, FieldNewPassword2, newPassword2)
	if err := v.OrNil(); err != nil {
		return err
	}
	if err := setPassword(ctx, s.accounts, s.hasher, acct, newPassword1); err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("account_id", acct.ID).Errorf("change password: %v", err)
	}
	s.logger.InfoContext(ctx, "password changed", "account_id", acct.ID)
	return nil
}

// setPassword hashes password, stores it and updates acct in place.
func setPassword(ctx context.Context, accounts account.Repository, hasher account.PasswordHasher, acct *account.Account, password string) error {
	hash, err := hasher.Hash(password)
	if err != nil {
		return oops.With("operation", "hash password").Wrap(err)
	}
	if err := accounts.UpdatePassword(ctx, acct.ID, hash); err != nil {
		return oops.With("operation", "update password").Wrap(err)
	}
	acct.PasswordHash = hash
	return nil
}

func (s *Service) record(status string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(status)
	}
}
