// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

// Package storetest starts a migrated PostgreSQL container for integration
// suites.
package storetest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/visitor/internal/store"
)

// Database is a running container with the schema applied.
type Database struct {
	DSN       string
	Pool      *pgxpool.Pool
	container *postgres.PostgresContainer
}

// StartPostgres starts postgres:16-alpine. When migrate is true every
// migration is applied before returning.
func StartPostgres(ctx context.Context, migrate bool) (*Database, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("visitor_test"),
		postgres.WithUsername("visitor"),
		postgres.WithPassword("visitor"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, oops.With("operation", "start container").Wrap(err)
	}
	db := &Database{container: container}

	db.DSN, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		db.Terminate(ctx)
		return nil, oops.With("operation", "connection string").Wrap(err)
	}

	if migrate {
		m, err := store.NewMigrator(db.DSN)
		if err != nil {
			db.Terminate(ctx)
			return nil, err
		}
		upErr := m.Up()
		_ = m.Close() //nolint:errcheck // migration result matters more
		if upErr != nil {
			db.Terminate(ctx)
			return nil, upErr
		}
	}

	db.Pool, err = store.Open(ctx, db.DSN, store.OpenOptions{})
	if err != nil {
		db.Terminate(ctx)
		return nil, err
	}
	return db, nil
}

// Truncate empties every visitor table.
func (d *Database) Truncate(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, `TRUNCATE invited_accounts, web_sessions, accounts RESTART IDENTITY CASCADE`)
	return err
}

// Terminate closes the pool and stops the container.
func (d *Database) Terminate(ctx context.Context) {
	if d.Pool != nil {
		d.Pool.Close()
	}
	_ = d.container.Terminate(ctx) //nolint:errcheck // best effort cleanup
}
