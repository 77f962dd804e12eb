// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package invite

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/mail"
	"github.com/holomush/visitor/internal/token"
	"github.com/holomush/visitor/internal/verify"
)

// Field errors on the email input.
const (
	MsgAlreadyInvited = "Invited user with this email already exists."
	MsgNotInvited     = "There is no pending invitation for this email."
)

// Config holds the settings the invitation flow needs.
type Config struct {
	// LinkBase is the absolute URL prefix of the completion route,
	// e.g. "https://example.com/user/invitation".
	LinkBase string
	Site     mail.Site
	Policy   account.PasswordPolicy
	Identity account.IdentityField
}

// Service issues invitations and completes them.
type Service struct {
	accounts  account.Repository
	invites   Repository
	registrar Registrar
	hasher    account.PasswordHasher
	tokens    verify.TokenVerifier
	mailer    mail.TemplateSender
	cfg       Config
	logger    *slog.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Accounts  account.Repository
	Invites   Repository
	Registrar Registrar
	Hasher    account.PasswordHasher
	Tokens    verify.TokenVerifier
	Mailer    mail.TemplateSender
}

// NewService creates a Service with a no-op logger.
func NewService(deps Deps, cfg Config) (*Service, error) {
	return NewServiceWithLogger(deps, cfg, slog.New(slog.DiscardHandler))
}

// NewServiceWithLogger creates a Service with the provided logger.
func NewServiceWithLogger(deps Deps, cfg Config, logger *slog.Logger) (*Service, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Errorf("accounts repository is required")
	case deps.Invites == nil:
		return nil, oops.Errorf("invitations repository is required")
	case deps.Registrar == nil:
		return nil, oops.Errorf("registrar is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case deps.Tokens == nil:
		return nil, oops.Errorf("token verifier is required")
	case deps.Mailer == nil:
		return nil, oops.Errorf("mailer is required")
	case logger == nil:
		return nil, oops.Errorf("logger is required")
	}
	if cfg.LinkBase == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("invitation link base is required")
	}
	if cfg.Identity == "" {
		cfg.Identity = account.IdentityEmail
	}
	return &Service{
		accounts:  deps.Accounts,
		invites:   deps.Invites,
		registrar: deps.Registrar,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		mailer:    deps.Mailer,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Issue creates an invitation for email and sends the invitation email.
// An email that is already invited, or that belongs to an account, is
// rejected with a *account.ValidationError on the email field.
func (s *Service) Issue(ctx context.Context, email string) (*InvitedAccount, error) {
	email = account.NormalizeEmail(email)
	if msg := account.ValidateEmail(email); msg != "" {
		return nil, account.NewValidationError(account.FieldEmail, msg)
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, account.NewValidationError(account.FieldEmail, account.MsgDuplicateEmail)
	} else if !errors.Is(err, account.ErrNotFound) {
		return nil, oops.Code("INVITE_ISSUE_FAILED").With("operation", "GetByEmail").Wrap(err)
	}

	if _, err := s.invites.GetByEmail(ctx, email); err == nil {
		return nil, account.NewValidationError(account.FieldEmail, MsgAlreadyInvited)
	} else if !errors.Is(err, account.ErrNotFound) {
		return nil, oops.Code("INVITE_ISSUE_FAILED").With("operation", "GetInvitationByEmail").Wrap(err)
	}

	inv, err := NewInvitedAccount(email)
	if err != nil {
		return nil, err
	}
	if err := s.invites.Create(ctx, inv); err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			return nil, account.NewValidationError(account.FieldEmail, MsgAlreadyInvited)
		}
		return nil, oops.Code("INVITE_ISSUE_FAILED").With("operation", "Create").Wrap(err)
	}

	s.logger.InfoContext(ctx, "invitation issued", "invitation_id", inv.ID, "email", inv.Email)

	if err := s.Send(ctx, inv); err != nil {
		return inv, err
	}
	return inv, nil
}

// Resend emails the completion link again for the pending invitation of
// email, for instance after the first send failed. Unknown and completed
// invitations are rejected with a *account.ValidationError on the email
// field.
func (s *Service) Resend(ctx context.Context, email string) (*InvitedAccount, error) {
	email = account.NormalizeEmail(email)
	if msg := account.ValidateEmail(email); msg != "" {
		return nil, account.NewValidationError(account.FieldEmail, msg)
	}

	inv, err := s.invites.GetByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return nil, account.NewValidationError(account.FieldEmail, MsgNotInvited)
	}
	if err != nil {
		return nil, oops.Code("INVITE_RESEND_FAILED").With("operation", "GetInvitationByEmail").Wrap(err)
	}
	if !inv.IsPending() {
		return nil, account.NewValidationError(account.FieldEmail, MsgNotInvited)
	}

	if err := s.Send(ctx, inv); err != nil {
		return inv, err
	}
	s.logger.InfoContext(ctx, "invitation resent", "invitation_id", inv.ID)
	return inv, nil
}

// Send emails the completion link for a pending invitation.
func (s *Service) Send(ctx context.Context, inv *InvitedAccount) error {
	if !inv.IsPending() {
		return oops.Code("INVITE_ALREADY_REGISTERED").
			With("invitation_id", inv.ID).
			Errorf("invitation already registered")
	}
	tok := s.tokens.MakeToken(inv)
	data := mail.Context{
		User:     inv,
		UID:      token.EncodeID(inv.ID),
		Token:    tok,
		TokenURL: token.FormatLink(s.cfg.LinkBase, inv.ID, tok),
		Site:     s.cfg.Site,
	}
	if err := s.mailer.SendEmail(ctx, mail.TemplateInvitation, inv.Email, data); err != nil {
		return oops.Code("INVITE_SEND_FAILED").
			With("invitation_id", inv.ID).
			Errorf("send invitation: %v", err)
	}
	return nil
}

// PrepareCompletion validates registration input for a pending invitation.
// The returned write creates the account and flips the invitation when
// applied; nothing is stored before that. The email always comes from the
// invitation.
func (s *Service) PrepareCompletion(ctx context.Context, inv *InvitedAccount, in account.RegistrationInput) (*account.PreparedWrite[*account.Account], error) {
	if inv == nil || !inv.IsPending() {
		return nil, oops.Code("INVITE_ALREADY_REGISTERED").Errorf("invitation is not pending")
	}
	in.Email = inv.Email

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
		if err := s.registrar.CompleteRegistration(ctx, inv, a); err != nil {
			return account.DuplicateError(err)
		}
		if err := inv.MarkRegistered(a.ID, time.Now()); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "invitation completed",
			"invitation_id", inv.ID,
			"account_id", a.ID,
		)
		return nil
	}), nil
}

// Lookup returns pending invitations by id for a verify.Resolver.
// Completed invitations are reported as not found.
func (s *Service) Lookup(ctx context.Context, id int64) (*InvitedAccount, error) {
	inv, err := s.invites.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.IsPending() {
		return nil, oops.Code("INVITE_NOT_PENDING").With("invitation_id", id).Wrap(account.ErrNotFound)
	}
	return inv, nil
}
