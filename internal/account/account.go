// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/token"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxEmailLength    = 254
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// IdentityField names the account column used to log in.
type IdentityField string

// Supported identity fields.
const (
	IdentityEmail    IdentityField = "email"
	IdentityUsername IdentityField = "username"
)

// Valid reports whether f is a supported identity field.
func (f IdentityField) Valid() bool {
	return f == IdentityEmail || f == IdentityUsername
}

// Account represents a registered user.
type Account struct {
	ID             int64
	Username       string
	Email          string
	PasswordHash   string
	IsActive       bool
	LastLogin      *time.Time
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAccount creates a validated, active Account that has not been persisted.
// Username is optional; email and password hash are required.
func NewAccount(email, username, passwordHash string) (*Account, error) {
	email = NormalizeEmail(email)
	if msg := ValidateEmail(email); msg != "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").With("email", email).Errorf("%s", msg)
	}
	if username != "" {
		if err := ValidateUsername(username); err != nil {
			return nil, err
		}
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_PASSWORD").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &Account{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Identity returns the value of the given identity field.
func (a *Account) Identity(field IdentityField) string {
	if field == IdentityUsername {
		return a.Username
	}
	return a.Email
}

// IsLocked returns true if the account is currently locked out.
func (a *Account) IsLocked() bool {
	return IsLockedOut(a.LockedUntil)
}

// RecordFailure increments the failure counter and sets lockout if threshold reached.
func (a *Account) RecordFailure() {
	a.FailedAttempts++
	a.LockedUntil = ComputeLockoutTime(a.FailedAttempts)
	a.UpdatedAt = time.Now()
}

// RecordSuccess resets failure counter and lockout and stamps the login time.
func (a *Account) RecordSuccess(at time.Time) {
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.LastLogin = &at
	a.UpdatedAt = at
}

// TokenSubjectID implements token.Subject.
func (a *Account) TokenSubjectID() int64 { return a.ID }

// TokenCredential implements token.Subject.
func (a *Account) TokenCredential() string { return a.PasswordHash }

// TokenLastLogin implements token.Subject. Accounts that never logged in
// report the placeholder epoch so tokens are still well defined.
func (a *Account) TokenLastLogin() time.Time {
	if a.LastLogin == nil {
		return token.PlaceholderLastLogin
	}
	return *a.LastLogin
}

// NormalizeEmail trims whitespace and lowercases the domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

// ValidateEmail returns a user-facing message when email is unusable, or "".
func ValidateEmail(email string) string {
	if email == "" {
		return "This field is required."
	}
	if len(email) > MaxEmailLength {
		return "Enter a valid email address."
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "Enter a valid email address."
	}
	return ""
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("ACCOUNT_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// Repository manages account persistence.
type Repository interface {
	// Create stores a new account and assigns its ID.
	// Returns ErrDuplicate if the email or username is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id int64) (*Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByUsername retrieves an account by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// Update updates an existing account.
	Update(ctx context.Context, account *Account) error

	// UpdatePassword updates only the password hash for an account.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	// ReplacePasswordHash stores newHash only while the stored hash is still
	// oldHash and reports whether it did.
	ReplacePasswordHash(ctx context.Context, id int64, oldHash, newHash string) (bool, error)

	// RecordLoginFailure counts one failed login against the stored row and
	// locks the account once LockoutThreshold is reached.
	RecordLoginFailure(ctx context.Context, id int64) error

	// RecordLogin stamps the last login time and clears the failure count
	// and lockout.
	RecordLogin(ctx context.Context, id int64, at time.Time) error
}

// GetByIdentity looks an account up by the configured identity field.
func GetByIdentity(ctx context.Context, repo Repository, field IdentityField, value string) (*Account, error) {
	if field == IdentityUsername {
		return repo.GetByUsername(ctx, value)
	}
	return repo.GetByEmail(ctx, NormalizeEmail(value))
}
