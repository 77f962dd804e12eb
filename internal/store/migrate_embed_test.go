// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/visitor/pkg/errutil"
)

func TestMigrationsFS_EveryUpHasDown(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		assert.Regexp(t, pattern, entry.Name())
		names[entry.Name()] = true
	}
	for name := range names {
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			assert.True(t, names[base+".down.sql"], "missing down migration for %s", name)
		}
	}
	assert.True(t, names["000001_accounts.up.sql"])
	assert.True(t, names["000002_invitations.up.sql"])
}

func TestMigrationVersions(t *testing.T) {
	versions, err := MigrationVersions()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, versions)

	fsys := fstest.MapFS{
		"m/000003_c.up.sql":   {},
		"m/000001_a.up.sql":   {},
		"m/000001_a.down.sql": {},
		"m/README.md":         {},
	}
	versions, err = migrationVersions(fsys, "m")
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 3}, versions)

	_, err = migrationVersions(fstest.MapFS{"m/abc.up.sql": {}}, "m")
	errutil.AssertErrorCode(t, err, "MIGRATION_NAME_INVALID")
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(1)
	require.NoError(t, err)
	assert.Equal(t, "000001_accounts", name)

	name, err = MigrationName(99)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://h/db", migrateURL("postgres://h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("postgresql://h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}
