package store

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndMigrate(t *testing.T) {
	s, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var version string
	err = s.DB().QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, "2", version)

	// Tables exist and are writable.
	_, err = s.DB().Exec(`INSERT INTO workflow_states (project_id, doc, created_at, updated_at) VALUES ('p1', '{}', 1, 1)`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO projects (id, name, created_at, updated_at) VALUES ('p1', 'Test', 1, 1)`)
	require.NoError(t, err)
}

func TestMigrateIdempotent(t *testing.T) {
	s, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// Re-running migrations against the same connection must be a no-op.
	require.NoError(t, s.migrate())
}

func TestMigrateVersionComparesNumerically(t *testing.T) {
	s, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// A future multi-digit version must not be mistaken for pre-v2.
	_, err = s.DB().Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '10')`)
	require.NoError(t, err)

	require.NoError(t, s.migrateV2())

	var version string
	err = s.DB().QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, "10", version)
}

func TestPing(t *testing.T) {
	s, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, s.Ping())
	s.Close()
}
