// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package invite implements invitation-based account creation.
//
// An InvitedAccount is a placeholder for a pending invitation. It moves from
// StatusInvited to StatusRegistered exactly once, when the invited person
// completes registration through a valid invitation link.
package invite

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/token"
)

// Status is the lifecycle state of an invitation.
type Status string

// Invitation states.
const (
	StatusInvited    Status = "invited"
	StatusRegistered Status = "registered"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusInvited || s == StatusRegistered
}

// InvitedAccount is a pending (or completed) invitation.
type InvitedAccount struct {
	ID               int64
	Email            string
	Status           Status
	CreatedAccountID *int64
	// CreatedAccountLastLogin is loaded from the created account, if any.
	CreatedAccountLastLogin *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// NewInvitedAccount creates an unsaved invitation for email.
func NewInvitedAccount(email string) (*InvitedAccount, error) {
	email = account.NormalizeEmail(email)
	if msg := account.ValidateEmail(email); msg != "" {
		return nil, oops.Code("INVITE_INVALID_EMAIL").With("email", email).Errorf("%s", msg)
	}
	now := time.Now()
	return &InvitedAccount{
		Email:     email,
		Status:    StatusInvited,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsPending reports whether the invitation can still be completed.
func (i *InvitedAccount) IsPending() bool {
	return i.Status == StatusInvited
}

// MarkRegistered records the account created from this invitation.
// It fails if the invitation was already completed.
func (i *InvitedAccount) MarkRegistered(accountID int64, at time.Time) error {
	if !i.IsPending() {
		return oops.Code("INVITE_ALREADY_REGISTERED").
			With("invitation_id", i.ID).
			Errorf("invitation already registered")
	}
	if accountID <= 0 {
		return oops.Code("INVITE_INVALID_ACCOUNT").
			With("account_id", accountID).
			Errorf("created account id must be positive")
	}
	i.Status = StatusRegistered
	i.CreatedAccountID = &accountID
	i.UpdatedAt = at
	return nil
}

// TokenSubjectID implements token.Subject.
func (i *InvitedAccount) TokenSubjectID() int64 { return i.ID }

// TokenCredential implements token.Subject. Invitations have no password.
func (i *InvitedAccount) TokenCredential() string { return "" }

// TokenLastLogin implements token.Subject. It reports the created account's
// last login once there is one, and the placeholder epoch before that.
func (i *InvitedAccount) TokenLastLogin() time.Time {
	if i.CreatedAccountLastLogin != nil {
		return *i.CreatedAccountLastLogin
	}
	return token.PlaceholderLastLogin
}

// Repository manages invitation persistence.
type Repository interface {
	// Create stores a new invitation and assigns its ID.
	// Returns account.ErrDuplicate if the email was already invited.
	Create(ctx context.Context, inv *InvitedAccount) error

	// GetByID retrieves an invitation by ID.
	GetByID(ctx context.Context, id int64) (*InvitedAccount, error)

	// GetByEmail retrieves an invitation by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*InvitedAccount, error)
}

// Registrar completes invitations.
type Registrar interface {
	// CompleteRegistration creates acct and marks inv registered with a
	// back-reference to it, atomically. On failure neither change is kept.
	// It assigns acct.ID and leaves inv itself untouched.
	// Returns an INVITE_ALREADY_REGISTERED error if inv is no longer pending.
	CompleteRegistration(ctx context.Context, inv *InvitedAccount, acct *account.Account) error
}
