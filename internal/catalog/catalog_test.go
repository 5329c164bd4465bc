package catalog

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
	"github.com/blogsmith/blogsmith/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ds, err := store.New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return NewStore(ds, zerolog.Nop())
}

func TestCreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, CreateProjectInput{
		ID:     "proj-1",
		Name:   "Garden Guides",
		Client: "acme-media",
		Topic:  "sustainable gardening",
	})
	require.NoError(t, err)
	assert.Equal(t, "proj-1", p.ID)
	assert.Equal(t, "INITIALIZING", p.Status)

	got, err := s.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "Garden Guides", got.Name)
	assert.Equal(t, "acme-media", got.Client)
	assert.Empty(t, got.SiteURL)
	assert.Nil(t, got.ArchivedAt)
}

func TestCreateProjectDefaults(t *testing.T) {
	s := newTestStore(t)

	p, err := s.CreateProject(context.Background(), CreateProjectInput{Topic: "keto recipes"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "keto recipes", p.Name)

	_, err = s.CreateProject(context.Background(), CreateProjectInput{})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestCreateProjectConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProject(ctx, CreateProjectInput{ID: "proj-1", Topic: "a"})
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, CreateProjectInput{ID: "proj-1", Topic: "b"})
	assert.True(t, perrors.IsConflict(err))
}

func TestGetProjectNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProject(context.Background(), "missing")
	assert.True(t, perrors.IsNotFound(err))
}

func TestSetWorkflowStatusAndSiteURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProject(ctx, CreateProjectInput{ID: "proj-1", Topic: "a"})
	require.NoError(t, err)

	require.NoError(t, s.SetWorkflowStatus(ctx, "proj-1", "COMPLETED"))
	require.NoError(t, s.SetSiteURL(ctx, "proj-1", "https://garden-guides.vercel.app"))

	p, err := s.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", p.Status)
	assert.Equal(t, "https://garden-guides.vercel.app", p.SiteURL)

	// Status mirroring tolerates rows that never entered the catalog.
	assert.NoError(t, s.SetWorkflowStatus(ctx, "ghost", "FAILED"))
	assert.True(t, perrors.IsNotFound(s.SetSiteURL(ctx, "ghost", "x")))
}

func TestArchiveAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProject(ctx, CreateProjectInput{ID: "proj-1", Topic: "a"})
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, CreateProjectInput{ID: "proj-2", Topic: "b"})
	require.NoError(t, err)

	require.NoError(t, s.ArchiveProject(ctx, "proj-1"))

	active, err := s.ListProjects(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "proj-2", active[0].ID)

	all, err := s.ListProjects(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Double archive is rejected.
	assert.True(t, perrors.IsNotFound(s.ArchiveProject(ctx, "proj-1")))
	assert.True(t, perrors.IsNotFound(s.ArchiveProject(ctx, "ghost")))
}
