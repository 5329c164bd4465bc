// Package catalog stores business metadata about content projects: who the
// site is for, what it is about, and where it ended up. Workflow state lives
// in the workflow package; the catalog only mirrors the latest status for
// reporting.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
	"github.com/blogsmith/blogsmith/internal/store"
)

// Project is one catalog row.
type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Client      string     `json:"client,omitempty"`
	Description string     `json:"description,omitempty"`
	Topic       string     `json:"topic"`
	Status      string     `json:"status"`
	SiteURL     string     `json:"site_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// CreateProjectInput carries the fields callers may set on creation.
type CreateProjectInput struct {
	ID          string
	Name        string
	Client      string
	Description string
	Topic       string
}

// Store handles project catalog operations on the shared database.
type Store struct {
	ds     *store.Store
	logger zerolog.Logger
}

// NewStore creates a catalog store.
func NewStore(ds *store.Store, logger zerolog.Logger) *Store {
	return &Store{
		ds:     ds,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

const projectColumns = `id, name, client, description, topic, status, site_url, created_at, updated_at, archived_at`

// CreateProject inserts a catalog row. The id defaults to a fresh UUID when
// the caller does not supply one.
func (s *Store) CreateProject(ctx context.Context, input CreateProjectInput) (*Project, error) {
	if input.Topic == "" {
		return nil, fmt.Errorf("%w: topic is required", perrors.ErrInvalidInput)
	}
	if input.Name == "" {
		input.Name = input.Topic
	}

	now := time.Now().UTC()
	p := &Project{
		ID:          input.ID,
		Name:        input.Name,
		Client:      input.Client,
		Description: input.Description,
		Topic:       input.Topic,
		Status:      "INITIALIZING",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	_, err := s.ds.DB().ExecContext(ctx, `
	INSERT INTO projects (id, name, client, description, topic, status, site_url, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		p.ID, p.Name, p.Client, p.Description, p.Topic, p.Status,
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, fmt.Errorf("%w: project %s", perrors.ErrConflict, p.ID)
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info().Str("project_id", p.ID).Str("topic", p.Topic).Msg("catalog project created")
	return p, nil
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.scanProject(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
}

// ListProjects returns projects, newest first. Archived rows are excluded
// unless includeArchived is set.
func (s *Store) ListProjects(ctx context.Context, includeArchived bool) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	if !includeArchived {
		query += ` WHERE archived_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.ds.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// SetWorkflowStatus mirrors the latest workflow status onto the catalog row.
// Missing rows are ignored: a project can run through the workflow without a
// catalog entry.
func (s *Store) SetWorkflowStatus(ctx context.Context, id string, status string) error {
	_, err := s.ds.DB().ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	return nil
}

// SetSiteURL records the deployed site URL.
func (s *Store) SetSiteURL(ctx context.Context, id, siteURL string) error {
	res, err := s.ds.DB().ExecContext(ctx,
		`UPDATE projects SET site_url = ?, updated_at = ? WHERE id = ?`,
		siteURL, time.Now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set site url: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: project %s", perrors.ErrNotFound, id)
	}
	return nil
}

// ArchiveProject soft-deletes a catalog row.
func (s *Store) ArchiveProject(ctx context.Context, id string) error {
	res, err := s.ds.DB().ExecContext(ctx,
		`UPDATE projects SET archived_at = ?, updated_at = ? WHERE id = ? AND archived_at IS NULL`,
		time.Now().UTC().UnixMilli(), time.Now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to archive project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: project %s", perrors.ErrNotFound, id)
	}
	s.logger.Info().Str("project_id", id).Msg("catalog project archived")
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanProject(ctx context.Context, query string, args ...any) (*Project, error) {
	p, err := scanRow(s.ds.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: project", perrors.ErrNotFound)
	}
	return p, err
}

func scanRow(row rowScanner) (*Project, error) {
	var p Project
	var siteURL sql.NullString
	var createdAt, updatedAt int64
	var archivedAt sql.NullInt64

	err := row.Scan(&p.ID, &p.Name, &p.Client, &p.Description, &p.Topic,
		&p.Status, &siteURL, &createdAt, &updatedAt, &archivedAt)
	if err != nil {
		return nil, err
	}

	p.SiteURL = siteURL.String
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if archivedAt.Valid {
		ts := time.UnixMilli(archivedAt.Int64).UTC()
		p.ArchivedAt = &ts
	}
	return &p, nil
}
