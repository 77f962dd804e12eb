// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres stores invitations in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/account"
	authpg "github.com/holomush/visitor/internal/auth/postgres"
	"github.com/holomush/visitor/internal/invite"
	"github.com/holomush/visitor/internal/store"
)

const selectInvitation = `
	SELECT i.id, i.email, i.status, i.created_account_id, a.last_login, i.created_at, i.updated_at
	FROM invited_accounts i
	LEFT JOIN accounts a ON a.id = i.created_account_id
`

// InvitationRepository implements invite.Repository using PostgreSQL.
type InvitationRepository struct {
	db store.DB
}

var _ invite.Repository = (*InvitationRepository)(nil)

// NewInvitationRepository creates a new InvitationRepository.
func NewInvitationRepository(db store.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create stores a new invitation and assigns its ID.
func (r *InvitationRepository) Create(ctx context.Context, inv *invite.InvitedAccount) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO invited_accounts (email, status, created_account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, inv.Email, string(inv.Status), inv.CreatedAccountID, inv.CreatedAt, inv.UpdatedAt).Scan(&inv.ID)
	if _, dup := store.UniqueViolation(err); dup {
		return oops.Code("INVITE_DUPLICATE").
			With("field", account.FieldEmail).
			With("email", inv.Email).
			Wrap(account.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("INVITE_CREATE_FAILED").
			With("operation", "insert invitation").
			With("email", inv.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an invitation by ID.
func (r *InvitationRepository) GetByID(ctx context.Context, id int64) (*invite.InvitedAccount, error) {
	return r.getOne(ctx, "id", id, selectInvitation+` WHERE i.id = $1`)
}

// GetByEmail retrieves an invitation by email (case-insensitive).
func (r *InvitationRepository) GetByEmail(ctx context.Context, email string) (*invite.InvitedAccount, error) {
	return r.getOne(ctx, "email", email, selectInvitation+` WHERE lower(i.email) = lower($1)`)
}

func (r *InvitationRepository) getOne(ctx context.Context, key string, value any, query string) (*invite.InvitedAccount, error) {
	var (
		inv    invite.InvitedAccount
		status string
	)
	err := r.db.QueryRow(ctx, query, value).Scan(
		&inv.ID,
		&inv.Email,
		&status,
		&inv.CreatedAccountID,
		&inv.CreatedAccountLastLogin,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With(key, value).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("INVITE_QUERY_FAILED").
			With("operation", "get invitation by "+key).
			With(key, value).
			Wrap(err)
	}
	inv.Status = invite.Status(status)
	if !inv.Status.Valid() {
		return nil, oops.Code("INVITE_CORRUPT_STATUS").
			With("id", inv.ID).
			With("status", status).
			Errorf("unknown invitation status")
	}
	return &inv, nil
}

// Registrar implements invite.Registrar with a single transaction.
type Registrar struct {
	db store.DB
}

var _ invite.Registrar = (*Registrar)(nil)

// NewRegistrar creates a new Registrar.
func NewRegistrar(db store.DB) *Registrar {
	return &Registrar{db: db}
}

// CompleteRegistration locks the invitation row, inserts acct and links it
// to the invitation. Nothing is kept unless every step succeeds.
func (r *Registrar) CompleteRegistration(ctx context.Context, inv *invite.InvitedAccount, acct *account.Account) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code("INVITE_COMPLETE_FAILED").With("operation", "begin").Wrap(err)
	}
	if err := completeInTx(ctx, tx, inv.ID, acct); err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // the original error matters more
		acct.ID = 0
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		acct.ID = 0
		return oops.Code("INVITE_COMPLETE_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

func completeInTx(ctx context.Context, tx pgx.Tx, invitationID int64, acct *account.Account) error {
	var status string
	err := tx.QueryRow(ctx,
		`SELECT status FROM invited_accounts WHERE id = $1 FOR UPDATE`, invitationID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.With("invitation_id", invitationID).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return oops.Code("INVITE_COMPLETE_FAILED").
			With("operation", "lock invitation").
			With("invitation_id", invitationID).
			Wrap(err)
	}
	if invite.Status(status) != invite.StatusInvited {
		return oops.Code("INVITE_ALREADY_REGISTERED").
			With("invitation_id", invitationID).
			Errorf("invitation already registered")
	}

	if err := authpg.InsertAccount(ctx, tx, acct); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE invited_accounts
		SET status = $2, created_account_id = $3, updated_at = $4
		WHERE id = $1
	`, invitationID, string(invite.StatusRegistered), acct.ID, time.Now()); err != nil {
		return oops.Code("INVITE_COMPLETE_FAILED").
			With("operation", "mark invitation registered").
			With("invitation_id", invitationID).
			Wrap(err)
	}
	return nil
}
