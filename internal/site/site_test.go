package site

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	return NewBuilder(t.TempDir(), zerolog.Nop())
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Sustainable Gardening", "sustainable-gardening"},
		{"  Hello,   World!  ", "hello-world"},
		{"already-a-slug", "already-a-slug"},
		{"Çüß", ""},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestCreateSite(t *testing.T) {
	b := newTestBuilder(t)

	s, err := b.CreateSite("proj-1", Config{Title: "Garden Guides", Description: "All about gardens"})
	require.NoError(t, err)
	assert.Equal(t, "garden-guides", s.Name)
	assert.True(t, strings.HasPrefix(s.ID, "SITE-"))

	for _, dir := range []string{"content/posts", "content/pages", "public"} {
		info, err := os.Stat(filepath.Join(s.Path, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}

	// The config round-trips through LoadSite.
	loaded, err := b.LoadSite("garden-guides")
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, "Garden Guides", loaded.Title)

	_, err = b.LoadSite("missing")
	assert.True(t, perrors.IsNotFound(err))

	_, err = b.CreateSite("proj-1", Config{Title: "!!!"})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestAddContent(t *testing.T) {
	b := newTestBuilder(t)
	s, err := b.CreateSite("proj-1", Config{Title: "Garden Guides"})
	require.NoError(t, err)

	path, err := b.AddContent(s, Article{
		Title:    "Composting 101",
		Keyword:  "composting",
		Tags:     []string{"soil"},
		Markdown: "## Why compost\n\nBecause soil.",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Path, "content", "posts", "composting-101.md"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.True(t, strings.HasPrefix(text, "---\n"))
	assert.Contains(t, text, "title: Composting 101")
	assert.Contains(t, text, "composting")
	assert.Contains(t, text, "## Why compost")
}

func TestBuildRendersPagesAndIndex(t *testing.T) {
	b := newTestBuilder(t)
	s, err := b.CreateSite("proj-1", Config{Title: "Garden Guides"})
	require.NoError(t, err)

	_, err = b.AddContent(s, Article{Title: "Composting 101", Markdown: "# Compost\n\nGood dirt."})
	require.NoError(t, err)
	_, err = b.AddContent(s, Article{Title: "Mulch Basics", Markdown: "Mulch retains moisture."})
	require.NoError(t, err)
	_, err = b.AddContent(s, Article{Title: "Unfinished", Markdown: "wip", Draft: true})
	require.NoError(t, err)

	res, err := b.Build(s)
	require.NoError(t, err)
	// Two published posts plus the index; the draft is skipped.
	assert.Equal(t, 3, res.Pages)

	index, err := os.ReadFile(filepath.Join(res.OutputDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), `href="/composting-101.html"`)
	assert.Contains(t, string(index), "Mulch Basics")
	assert.NotContains(t, string(index), "Unfinished")

	page, err := os.ReadFile(filepath.Join(res.OutputDir, "composting-101.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<title>Composting 101</title>")
	assert.Contains(t, string(page), "<p>Good dirt.</p>")
}

func TestSplitFrontmatter(t *testing.T) {
	fm, body := splitFrontmatter("---\ntitle: Hi\ndraft: true\n---\n\nBody text.")
	assert.Equal(t, "Hi", fm.Title)
	assert.True(t, fm.Draft)
	assert.Equal(t, "Body text.", body)

	fm, body = splitFrontmatter("no frontmatter here")
	assert.Empty(t, fm.Title)
	assert.Equal(t, "no frontmatter here", body)
}
