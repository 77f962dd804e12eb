// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/auth"
	"github.com/holomush/visitor/internal/store"
)

// WebSessionRepository implements auth.WebSessionRepository using PostgreSQL.
type WebSessionRepository struct {
	db store.DB
}

var _ auth.WebSessionRepository = (*WebSessionRepository)(nil)

// NewWebSessionRepository creates a new WebSessionRepository.
func NewWebSessionRepository(db store.DB) *WebSessionRepository {
	return &WebSessionRepository{db: db}
}

// Create stores a new web session.
func (r *WebSessionRepository) Create(ctx context.Context, session *auth.WebSession) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO web_sessions (id, account_id, token_hash, user_agent, ip_address, expires_at, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		session.ID.String(),
		session.AccountID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.CreatedAt,
		session.LastSeenAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert web_session").
			With("account_id", session.AccountID).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *WebSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.WebSession, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, account_id, token_hash, user_agent, ip_address, expires_at, created_at, last_seen_at
		FROM web_sessions
		WHERE token_hash = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrSessionNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *WebSessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	result, err := r.db.Exec(ctx, `UPDATE web_sessions SET last_seen_at = $2 WHERE id = $1`, id.String(), lastSeen)
	if err != nil {
		return oops.Code("SESSION_UPDATE_LAST_SEEN_FAILED").
			With("operation", "update last_seen_at").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrSessionNotFound)
	}
	return nil
}

// Delete removes a session by ID.
func (r *WebSessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM web_sessions WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete web_session").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrSessionNotFound)
	}
	return nil
}

// DeleteByAccount removes the sessions of an account other than keep.
func (r *WebSessionRepository) DeleteByAccount(ctx context.Context, accountID int64, keep ulid.ULID) (int64, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM web_sessions WHERE account_id = $1 AND id <> $2`,
		accountID, keep.String(),
	)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_FAILED").
			With("account_id", accountID).
			With("keep", keep.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes all expired sessions.
func (r *WebSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM web_sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*auth.WebSession, error) {
	var (
		s         auth.WebSession
		idStr     string
		userAgent *string
		ipAddress *string
	)
	if err := row.Scan(&idStr, &s.AccountID, &s.TokenHash, &userAgent, &ipAddress, &s.ExpiresAt, &s.CreatedAt, &s.LastSeenAt); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	s.ID = id
	if userAgent != nil {
		s.UserAgent = *userAgent
	}
	if ipAddress != nil {
		s.IPAddress = *ipAddress
	}
	return &s, nil
}
