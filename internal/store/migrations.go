package store

import (
	"fmt"
	"strconv"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflow_states (
		project_id TEXT PRIMARY KEY,
		doc        TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workflow_events (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL,
		project_id  TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		data        TEXT,
		created_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wf_events_project ON workflow_events(project_id, seq);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}

func (s *Store) migrateV2() error {
	// Check current version. The value is stored as text, so compare
	// numerically: "10" must not read as older than "2".
	var raw string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if err != nil {
		return nil
	}
	if version, convErr := strconv.Atoi(raw); convErr == nil && version >= 2 {
		return nil // already at v2+
	}

	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		client      TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		topic       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'active',
		site_url    TEXT,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL,
		archived_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
	CREATE INDEX IF NOT EXISTS idx_projects_client ON projects(client);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v2 (tables): %w", err)
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}
