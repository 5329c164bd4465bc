// Package site generates and deploys the static blog site. Articles are
// written as markdown files with YAML frontmatter under the site's content
// directory, then built into a plain HTML tree that the deployers upload.
package site

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
)

// Site describes one generated site on disk.
type Site struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"` // URL-safe slug, also the directory name
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Config carries the caller-provided site settings.
type Config struct {
	Title       string
	Description string
	// Name overrides the slug derived from the title.
	Name string
}

// Article is one content item added to a site.
type Article struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Keyword     string   `json:"keyword,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Markdown    string   `json:"markdown"`
	Draft       bool     `json:"draft,omitempty"`
}

// BuildResult summarizes a completed build.
type BuildResult struct {
	Pages     int       `json:"pages"`
	OutputDir string    `json:"output_dir"`
	BuiltAt   time.Time `json:"built_at"`
}

var slugRe = regexp.MustCompile(`[^a-z0-9-]+`)

// Slugify converts a title into a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugRe.ReplaceAllString(s, "")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// Builder creates site directories, writes content, and builds HTML output.
type Builder struct {
	sitesDir string
	logger   zerolog.Logger
}

// NewBuilder creates a builder rooted at sitesDir.
func NewBuilder(sitesDir string, logger zerolog.Logger) *Builder {
	return &Builder{
		sitesDir: sitesDir,
		logger:   logger.With().Str("component", "site.builder").Logger(),
	}
}

// CreateSite lays out the directory structure for a new site.
func (b *Builder) CreateSite(projectID string, cfg Config) (*Site, error) {
	name := cfg.Name
	if name == "" {
		name = Slugify(cfg.Title)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: site title produces an empty slug", perrors.ErrInvalidInput)
	}

	path := filepath.Join(b.sitesDir, name)
	for _, dir := range []string{
		filepath.Join(path, "content", "posts"),
		filepath.Join(path, "content", "pages"),
		filepath.Join(path, "public"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating site directory: %w", err)
		}
	}

	s := &Site{
		ID:          "SITE-" + strings.ToUpper(uuid.New().String()[:8]),
		ProjectID:   projectID,
		Name:        name,
		Title:       cfg.Title,
		Description: cfg.Description,
		Path:        path,
		CreatedAt:   time.Now().UTC(),
	}

	raw, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal site config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "site.yaml"), raw, 0o644); err != nil {
		return nil, fmt.Errorf("writing site config: %w", err)
	}

	b.logger.Info().Str("site_id", s.ID).Str("name", name).Msg("site created")
	return s, nil
}

// LoadSite reads a previously created site's config from disk.
func (b *Builder) LoadSite(name string) (*Site, error) {
	raw, err := os.ReadFile(filepath.Join(b.sitesDir, name, "site.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: site %s", perrors.ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading site config: %w", err)
	}
	var s Site
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing site config: %w", err)
	}
	return &s, nil
}

type frontmatter struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description,omitempty"`
	Date        string   `yaml:"date"`
	Tags        []string `yaml:"tags,omitempty"`
	SEOKeywords []string `yaml:"seoKeywords,omitempty"`
	Draft       bool     `yaml:"draft"`
}

// AddContent writes an article as markdown with YAML frontmatter. Returns
// the file path.
func (b *Builder) AddContent(s *Site, a Article) (string, error) {
	if a.Slug == "" {
		a.Slug = Slugify(a.Title)
	}
	if a.Slug == "" {
		return "", fmt.Errorf("%w: article title produces an empty slug", perrors.ErrInvalidInput)
	}

	fm := frontmatter{
		Title:       a.Title,
		Description: a.Description,
		Date:        time.Now().UTC().Format(time.RFC3339),
		Tags:        a.Tags,
		Draft:       a.Draft,
	}
	if a.Keyword != "" {
		fm.SEOKeywords = []string{a.Keyword}
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("---\n")
	buf.Write(head)
	buf.WriteString("---\n\n")
	buf.WriteString(a.Markdown)

	path := filepath.Join(s.Path, "content", "posts", a.Slug+".md")
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing article: %w", err)
	}

	b.logger.Info().Str("site_id", s.ID).Str("slug", a.Slug).Msg("article added")
	return path, nil
}

// Build renders every non-draft post into the site's public directory and
// writes an index page linking them.
func (b *Builder) Build(s *Site) (*BuildResult, error) {
	postsDir := filepath.Join(s.Path, "content", "posts")
	entries, err := os.ReadDir(postsDir)
	if err != nil {
		return nil, fmt.Errorf("reading posts: %w", err)
	}

	publicDir := filepath.Join(s.Path, "public")
	type page struct{ slug, title string }
	var pages []page

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(postsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading post %s: %w", e.Name(), err)
		}
		fm, body := splitFrontmatter(string(raw))
		if fm.Draft {
			continue
		}
		slug := strings.TrimSuffix(e.Name(), ".md")
		html := renderPage(fm.Title, fm.Description, body)
		if err := os.WriteFile(filepath.Join(publicDir, slug+".html"), []byte(html), 0o644); err != nil {
			return nil, fmt.Errorf("writing page %s: %w", slug, err)
		}
		pages = append(pages, page{slug: slug, title: fm.Title})
	}

	var index strings.Builder
	fmt.Fprintf(&index, "<!doctype html><html><head><title>%s</title></head><body><h1>%s</h1><ul>", s.Title, s.Title)
	for _, p := range pages {
		fmt.Fprintf(&index, `<li><a href="/%s.html">%s</a></li>`, p.slug, p.title)
	}
	index.WriteString("</ul></body></html>")
	if err := os.WriteFile(filepath.Join(publicDir, "index.html"), []byte(index.String()), 0o644); err != nil {
		return nil, fmt.Errorf("writing index: %w", err)
	}

	res := &BuildResult{
		Pages:     len(pages) + 1,
		OutputDir: publicDir,
		BuiltAt:   time.Now().UTC(),
	}
	b.logger.Info().Str("site_id", s.ID).Int("pages", res.Pages).Msg("site built")
	return res, nil
}

func splitFrontmatter(raw string) (frontmatter, string) {
	var fm frontmatter
	if !strings.HasPrefix(raw, "---\n") {
		return fm, raw
	}
	rest := raw[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm, raw
	}
	_ = yaml.Unmarshal([]byte(rest[:end]), &fm)
	return fm, strings.TrimLeft(rest[end+4:], "\n")
}

// renderPage produces minimal HTML: paragraphs plus h1-h3 from markdown
// heading syntax. Full markdown rendering belongs to the site template, not
// the pipeline.
func renderPage(title, description, markdown string) string {
	var body strings.Builder
	for _, block := range strings.Split(markdown, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		switch {
		case strings.HasPrefix(block, "### "):
			fmt.Fprintf(&body, "<h3>%s</h3>", strings.TrimPrefix(block, "### "))
		case strings.HasPrefix(block, "## "):
			fmt.Fprintf(&body, "<h2>%s</h2>", strings.TrimPrefix(block, "## "))
		case strings.HasPrefix(block, "# "):
			fmt.Fprintf(&body, "<h1>%s</h1>", strings.TrimPrefix(block, "# "))
		default:
			fmt.Fprintf(&body, "<p>%s</p>", block)
		}
	}
	return fmt.Sprintf(`<!doctype html><html><head><title>%s</title><meta name="description" content=%q></head><body><h1>%s</h1>%s</body></html>`,
		title, description, title, body.String())
}
