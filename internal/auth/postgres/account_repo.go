// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements the account and web session repositories on
// PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/store"
)

const accountColumns = `id, username, email, password_hash, is_active, last_login,
	failed_attempts, locked_until, created_at, updated_at`

// Unique indexes on the accounts table.
const (
	emailIndex    = "accounts_email_key"
	usernameIndex = "accounts_username_key"
)

// AccountRepository implements account.Repository using PostgreSQL.
type AccountRepository struct {
	db store.DB
}

var _ account.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db store.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// InsertAccount inserts a and assigns its ID using q, which may be a pool or
// a transaction. Unique violations become account.ErrDuplicate with the
// offending field in the "field" context value.
func InsertAccount(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, a *account.Account,
) error {
	err := q.QueryRow(ctx, `
		INSERT INTO accounts (username, email, password_hash, is_active, last_login,
			failed_attempts, locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		nullable(a.Username),
		a.Email,
		a.PasswordHash,
		a.IsActive,
		a.LastLogin,
		a.FailedAttempts,
		a.LockedUntil,
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return mapWriteError(err, "ACCOUNT_CREATE_FAILED", "insert account")
	}
	return nil
}

// Create stores a new account and assigns its ID.
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	return InsertAccount(ctx, r.db, a)
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	return r.getOne(ctx, "id", id, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`)
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	return r.getOne(ctx, "email", email, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`)
}

// GetByUsername retrieves an account by username (case-insensitive).
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	return r.getOne(ctx, "username", username, `SELECT `+accountColumns+` FROM accounts WHERE lower(username) = lower($1)`)
}

func (r *AccountRepository) getOne(ctx context.Context, key string, value any, query string) (*account.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, query, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With(key, value).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "get account by "+key).
			With(key, value).
			Wrap(err)
	}
	return a, nil
}

// Update updates an existing account.
func (r *AccountRepository) Update(ctx context.Context, a *account.Account) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			username = $2,
			email = $3,
			password_hash = $4,
			is_active = $5,
			last_login = $6,
			failed_attempts = $7,
			locked_until = $8,
			updated_at = now()
		WHERE id = $1
	`,
		a.ID,
		nullable(a.Username),
		a.Email,
		a.PasswordHash,
		a.IsActive,
		a.LastLogin,
		a.FailedAttempts,
		a.LockedUntil,
	)
	if err != nil {
		return mapWriteError(err, "ACCOUNT_UPDATE_FAILED", "update account")
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", a.ID).Wrap(account.ErrNotFound)
	}
	return nil
}

// UpdatePassword updates only the password hash for an account.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", id).Wrap(account.ErrNotFound)
	}
	return nil
}

// ReplacePasswordHash swaps the hash only if it still equals oldHash.
func (r *AccountRepository) ReplacePasswordHash(ctx context.Context, id int64, oldHash, newHash string) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $3, updated_at = now()
		WHERE id = $1 AND password_hash = $2
	`, id, oldHash, newHash)
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "replace password hash").
			With("id", id).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// RecordLoginFailure increments failed_attempts in place. Every SET
// expression sees the pre-update row.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			failed_attempts = failed_attempts + 1,
			locked_until = CASE WHEN failed_attempts + 1 >= $2
				THEN now() + make_interval(secs => $3) END,
			updated_at = now()
		WHERE id = $1
	`, id, account.LockoutThreshold, account.LockoutDuration.Seconds())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "record login failure").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", id).Wrap(account.ErrNotFound)
	}
	return nil
}

// RecordLogin stamps last_login and clears the lockout state.
func (r *AccountRepository) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			last_login = $2,
			failed_attempts = 0,
			locked_until = NULL,
			updated_at = now()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "record login").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", id).Wrap(account.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	var username *string
	if err := row.Scan(
		&a.ID,
		&username,
		&a.Email,
		&a.PasswordHash,
		&a.IsActive,
		&a.LastLogin,
		&a.FailedAttempts,
		&a.LockedUntil,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if username != nil {
		a.Username = *username
	}
	return &a, nil
}

func mapWriteError(err error, code, operation string) error {
	if index, ok := store.UniqueViolation(err); ok {
		field := account.FieldEmail
		if index == usernameIndex {
			field = account.FieldUsername
		}
		return oops.Code("ACCOUNT_DUPLICATE").
			With("field", field).
			With("constraint", index).
			Wrap(account.ErrDuplicate)
	}
	return oops.Code(code).With("operation", operation).Wrap(err)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
