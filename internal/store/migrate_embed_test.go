// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries, "no migration files embedded")

	// Every up migration needs its matching down migration.
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %q", name)
		}
	}
	assert.Equal(t, ups, downs, "up/down migrations are not paired")
}

func TestMigrationsFS_InitialSchema(t *testing.T) {
	content, err := migrationsFS.ReadFile("migrations/000001_initial.up.sql")
	require.NoError(t, err)

	schema := string(content)
	for _, table := range []string{"users", "sessions", "security_events", "destruction_logs", "subscriptions"} {
		assert.Contains(t, schema, table)
	}
}
