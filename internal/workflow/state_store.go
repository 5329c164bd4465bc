package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
	"github.com/blogsmith/blogsmith/internal/store"
)

// StateStore is durable, process-external storage for project state
// documents and their append-only event timelines, keyed by project id.
// It carries no business logic.
type StateStore interface {
	// Create persists a new state document. Returns ErrConflict if a
	// document already exists for the project id.
	Create(ctx context.Context, st *State) error

	// Get returns the stored document verbatim. A missing project yields a
	// synthetic NOT_FOUND document and an unreachable store a synthetic
	// ERROR document; the read path never fails hard.
	Get(ctx context.Context, projectID string) *State

	// Update merges the given top-level keys into the existing document and
	// refreshes updated_at. Returns ErrNotFound if no document exists; it
	// never creates one implicitly. Nested objects are merged key-wise so a
	// partial update cannot clobber sibling fields.
	Update(ctx context.Context, projectID string, updates map[string]any) error

	// Delete removes the state document and its timeline.
	Delete(ctx context.Context, projectID string) error

	// AppendEvent appends to the project's timeline, stamping the timestamp
	// if absent. The timeline is append-only: events are never edited.
	AppendEvent(ctx context.Context, projectID string, ev TimelineEvent) error

	// ListEvents returns the timeline in insertion order, oldest first.
	// An empty timeline is an empty slice, not an error.
	ListEvents(ctx context.Context, projectID string) ([]TimelineEvent, error)

	// ListActive returns a lightweight summary per known project. max <= 0
	// means unbounded.
	ListActive(ctx context.Context, max int) (map[string]Summary, error)
}

// SQLiteStateStore implements StateStore on the shared sqlite database: one
// JSON document row per project plus an append-only event table.
type SQLiteStateStore struct {
	ds     *store.Store
	logger zerolog.Logger
}

// NewSQLiteStateStore creates a state store over the shared database.
func NewSQLiteStateStore(ds *store.Store, logger zerolog.Logger) *SQLiteStateStore {
	return &SQLiteStateStore{
		ds:     ds,
		logger: logger.With().Str("component", "workflow.state").Logger(),
	}
}

func (s *SQLiteStateStore) Create(ctx context.Context, st *State) error {
	if st.ProjectID == "" {
		return fmt.Errorf("%w: empty project id", perrors.ErrInvalidInput)
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = st.CreatedAt
	}

	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = s.ds.DB().ExecContext(ctx,
		`INSERT INTO workflow_states (project_id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		st.ProjectID, string(doc), st.CreatedAt.UnixMilli(), st.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: %s", perrors.ErrConflict, st.ProjectID)
		}
		return fmt.Errorf("%w: %v", perrors.ErrStoreUnavailable, err)
	}

	s.logger.Info().Str("project_id", st.ProjectID).Msg("created project state")
	return nil
}

func (s *SQLiteStateStore) Get(ctx context.Context, projectID string) *State {
	var doc string
	err := s.ds.DB().QueryRowContext(ctx,
		`SELECT doc FROM workflow_states WHERE project_id = ?`, projectID,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return notFoundState(projectID)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("project_id", projectID).Msg("failed to read project state")
		return errorState(projectID, err)
	}

	st := &State{}
	if err := json.Unmarshal([]byte(doc), st); err != nil {
		s.logger.Error().Err(err).Str("project_id", projectID).Msg("corrupt state document")
		return errorState(projectID, err)
	}
	return st
}

func (s *SQLiteStateStore) Update(ctx context.Context, projectID string, updates map[string]any) error {
	var doc string
	err := s.ds.DB().QueryRowContext(ctx,
		`SELECT doc FROM workflow_states WHERE project_id = ?`, projectID,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", perrors.ErrNotFound, projectID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", perrors.ErrStoreUnavailable, err)
	}

	current := map[string]any{}
	if err := json.Unmarshal([]byte(doc), &current); err != nil {
		return fmt.Errorf("corrupt state document for %s: %w", projectID, err)
	}

	patch, err := toJSONMap(updates)
	if err != nil {
		return fmt.Errorf("normalize updates: %w", err)
	}
	mergeDoc(current, patch)

	now := time.Now().UTC()
	current["updated_at"] = now.Format(time.RFC3339Nano)

	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("marshal merged state: %w", err)
	}

	res, err := s.ds.DB().ExecContext(ctx,
		`UPDATE workflow_states SET doc = ?, updated_at = ? WHERE project_id = ?`,
		string(merged), now.UnixMilli(), projectID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", perrors.ErrStoreUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", perrors.ErrNotFound, projectID)
	}
	return nil
}

func (s *SQLiteStateStore) Delete(ctx context.Context, projectID string) error {
	tx, err := s.ds.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", perrors.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM workflow_states WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", perrors.ErrNotFound, projectID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_events WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to delete timeline: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	s.logger.Info().Str("project_id", projectID).Msg("deleted project state")
	return nil
}

func (s *SQLiteStateStore) AppendEvent(ctx context.Context, projectID string, ev TimelineEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var data sql.NullString
	if len(ev.Data) > 0 {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		data = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.ds.DB().ExecContext(ctx,
		`INSERT INTO workflow_events (id, project_id, event_type, description, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, projectID, ev.EventType, ev.Description, data, ev.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", perrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStateStore) ListEvents(ctx context.Context, projectID string) ([]TimelineEvent, error) {
	rows, err := s.ds.DB().QueryContext(ctx,
		`SELECT id, event_type, description, data, created_at FROM workflow_events WHERE project_id = ? ORDER BY seq ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", perrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	events := []TimelineEvent{}
	for rows.Next() {
		var ev TimelineEvent
		var data sql.NullString
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Description, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if data.Valid && data.String != "" {
			_ = json.Unmarshal([]byte(data.String), &ev.Data)
		}
		ev.Timestamp = time.UnixMilli(createdAt).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStateStore) ListActive(ctx context.Context, max int) (map[string]Summary, error) {
	query := `SELECT project_id, doc FROM workflow_states ORDER BY updated_at DESC`
	var args []interface{}
	if max > 0 {
		query += ` LIMIT ?`
		args = append(args, max)
	}

	rows, err := s.ds.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", perrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	results := make(map[string]Summary)
	for rows.Next() {
		var projectID, doc string
		if err := rows.Scan(&projectID, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan state row: %w", err)
		}
		st := &State{}
		if err := json.Unmarshal([]byte(doc), st); err != nil {
			s.logger.Error().Err(err).Str("project_id", projectID).Msg("skipping corrupt state document")
			continue
		}
		status := st.Status
		if status == "" {
			status = StatusUnknown
		}
		results[projectID] = Summary{
			Status:    status,
			Stage:     st.CurrentStage,
			Progress:  st.Progress,
			CreatedAt: st.CreatedAt,
			UpdatedAt: st.UpdatedAt,
		}
	}
	return results, rows.Err()
}

// toJSONMap normalizes arbitrary update values into a plain JSON object map
// so merging operates on one representation.
func toJSONMap(v map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeDoc merges src into dst. Object values merge key-wise; everything
// else replaces, so a partial update touches only the keys it names.
func mergeDoc(dst, src map[string]any) {
	for k, v := range src {
		sv, srcIsMap := v.(map[string]any)
		dv, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeDoc(dv, sv)
			continue
		}
		dst[k] = v
	}
}
