// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store opens the PostgreSQL database and manages its schema.
// Repositories live next to their domain packages (auth/postgres,
// invite/postgres) and share the DB interface defined here.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DB is the subset of *pgxpool.Pool used by repositories.
// pgxmock.PgxPoolIface satisfies it in unit tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// OpenOptions tunes connection retries.
type OpenOptions struct {
	// Attempts is the number of connection attempts; zero means 5.
	Attempts uint64
	// Backoff is the initial delay between attempts; zero means 500ms.
	Backoff time.Duration
	Logger  *slog.Logger
}

// Open creates a connection pool and waits until the database answers a
// ping, retrying with exponential backoff while it starts up.
func Open(ctx context.Context, dsn string, opts OpenOptions) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if opts.Attempts == 0 {
		opts.Attempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("host", cfg.ConnConfig.Host).Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.Attempts-1, retry.NewExponential(opts.Backoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			opts.Logger.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"host", cfg.ConnConfig.Host,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}
