// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/visitor/internal/config"
	"github.com/holomush/visitor/internal/store"
)

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// migratorFactory opens a Migrator; tests replace it.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back or inspect the PostgreSQL schema. Without a subcommand, pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateUp)
		},
	})

	var yes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all tables)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all data; pass --yes to confirm")
			}
			return withMigrator(cmd, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&yes, "yes", false, "confirm rolling back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateStatus)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it (clears the dirty flag)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced version %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator opens a Migrator for DATABASE_URL, runs fn and closes it.
func withMigrator(cmd *cobra.Command, fn func(*cobra.Command, Migrator) error) (err error) {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(path, nil)
	if err != nil {
		return err
	}
	if cfg.Secrets.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	m, err := migratorFactory(cfg.Secrets.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(cmd, m)
}

func runMigrateUp(cmd *cobra.Command, m Migrator) error {
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := m.Up(); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("Current version: %d (%s)\n", version, state)
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Printf("Pending migrations: %d\n", len(pending))
	for _, v := range pending {
		name, nameErr := store.MigrationName(v)
		if nameErr != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Println("  " + name)
	}
	return nil
}

// parseForceVersion reads a leading integer from s. Trailing characters
// are ignored, so "3abc" is 3.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer: %v", err)
	}
	return version, nil
}
