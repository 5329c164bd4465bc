package site

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
)

// Deployment describes one completed deployment.
type Deployment struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	URL       string    `json:"url"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Deployer publishes a built site to a hosting provider.
type Deployer interface {
	Name() string
	Deploy(ctx context.Context, s *Site) (*Deployment, error)
}

// readPublicFiles collects the built output as path → content, with paths
// relative to the public directory.
func readPublicFiles(s *Site) (map[string][]byte, error) {
	publicDir := filepath.Join(s.Path, "public")
	files := make(map[string][]byte)
	err := filepath.Walk(publicDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(publicDir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading built site: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: site %s has no built output", perrors.ErrInvalidInput, s.Name)
	}
	return files, nil
}

// VercelDeployer publishes through the Vercel deployments API.
type VercelDeployer struct {
	token   string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewVercelDeployer creates a Vercel deployer.
func NewVercelDeployer(token string, logger zerolog.Logger) *VercelDeployer {
	return &VercelDeployer{
		token:   token,
		baseURL: "https://api.vercel.com",
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With().Str("component", "site.vercel").Logger(),
	}
}

// SetBaseURL overrides the API endpoint, for tests.
func (d *VercelDeployer) SetBaseURL(u string) { d.baseURL = u }

func (d *VercelDeployer) Name() string { return "vercel" }

// Deploy uploads the built files inline in a single deployment request.
func (d *VercelDeployer) Deploy(ctx context.Context, s *Site) (*Deployment, error) {
	files, err := readPublicFiles(s)
	if err != nil {
		return nil, err
	}

	type vercelFile struct {
		File string `json:"file"`
		Data string `json:"data"`
	}
	payload := struct {
		Name   string       `json:"name"`
		Files  []vercelFile `json:"files"`
		Target string       `json:"target"`
	}{Name: s.Name, Target: "production"}
	for path, data := range files {
		payload.Files = append(payload.Files, vercelFile{File: path, Data: string(data)})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal deployment: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.baseURL+"/v13/deployments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vercel http: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, perrors.NewAPIError("vercel", resp.StatusCode, string(raw))
	}

	var out struct {
		ID         string `json:"id"`
		URL        string `json:"url"`
		ReadyState string `json:"readyState"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal deployment: %w", err)
	}

	dep := &Deployment{
		ID:        out.ID,
		Provider:  d.Name(),
		URL:       "https://" + out.URL,
		State:     out.ReadyState,
		CreatedAt: time.Now().UTC(),
	}
	d.logger.Info().Str("site", s.Name).Str("url", dep.URL).Msg("deployed to vercel")
	return dep, nil
}

// NetlifyDeployer publishes through the Netlify API: the site is created on
// first deploy, then each deploy uploads a zip of the built output.
type NetlifyDeployer struct {
	token   string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewNetlifyDeployer creates a Netlify deployer.
func NewNetlifyDeployer(token string, logger zerolog.Logger) *NetlifyDeployer {
	return &NetlifyDeployer{
		token:   token,
		baseURL: "https://api.netlify.com/api/v1",
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With().Str("component", "site.netlify").Logger(),
	}
}

// SetBaseURL overrides the API endpoint, for tests.
func (d *NetlifyDeployer) SetBaseURL(u string) { d.baseURL = u }

func (d *NetlifyDeployer) Name() string { return "netlify" }

func (d *NetlifyDeployer) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("netlify http: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return raw, resp.StatusCode, nil
}

func (d *NetlifyDeployer) findOrCreateSite(ctx context.Context, name string) (string, error) {
	raw, code, err := d.do(ctx, http.MethodGet, "/sites?name="+url.QueryEscape(name), "", nil)
	if err != nil {
		return "", err
	}
	if code == http.StatusOK {
		var sites []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &sites); err == nil {
			for _, s := range sites {
				if s.Name == name {
					return s.ID, nil
				}
			}
		}
	}

	body, _ := json.Marshal(map[string]string{"name": name})
	raw, code, err = d.do(ctx, http.MethodPost, "/sites", "application/json", body)
	if err != nil {
		return "", err
	}
	if code < 200 || code >= 300 {
		return "", perrors.NewAPIError("netlify", code, string(raw))
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("unmarshal site: %w", err)
	}
	return created.ID, nil
}

// Deploy zips the built output and uploads it as one deploy.
func (d *NetlifyDeployer) Deploy(ctx context.Context, s *Site) (*Deployment, error) {
	files, err := readPublicFiles(s)
	if err != nil {
		return nil, err
	}

	siteID, err := d.findOrCreateSite(ctx, s.Name)
	if err != nil {
		return nil, err
	}

	archive, err := zipFiles(files)
	if err != nil {
		return nil, fmt.Errorf("zip built site: %w", err)
	}
	raw, code, err := d.do(ctx, http.MethodPost, "/sites/"+siteID+"/deploys", "application/zip", archive)
	if err != nil {
		return nil, err
	}
	if code < 200 || code >= 300 {
		return nil, perrors.NewAPIError("netlify", code, string(raw))
	}

	var out struct {
		ID    string `json:"id"`
		URL   string `json:"ssl_url"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal deploy: %w", err)
	}

	dep := &Deployment{
		ID:        out.ID,
		Provider:  d.Name(),
		URL:       out.URL,
		State:     out.State,
		CreatedAt: time.Now().UTC(),
	}
	d.logger.Info().Str("site", s.Name).Str("url", dep.URL).Msg("deployed to netlify")
	return dep, nil
}

// LocalDeployer "publishes" by leaving the built output in place. Used in
// development when no hosting token is configured.
type LocalDeployer struct {
	logger zerolog.Logger
}

// NewLocalDeployer creates a local no-op deployer.
func NewLocalDeployer(logger zerolog.Logger) *LocalDeployer {
	return &LocalDeployer{logger: logger.With().Str("component", "site.local").Logger()}
}

func (d *LocalDeployer) Name() string { return "local" }

func (d *LocalDeployer) Deploy(_ context.Context, s *Site) (*Deployment, error) {
	publicDir := filepath.Join(s.Path, "public")
	if _, err := os.Stat(filepath.Join(publicDir, "index.html")); err != nil {
		return nil, fmt.Errorf("%w: site %s has no built output", perrors.ErrInvalidInput, s.Name)
	}
	dep := &Deployment{
		ID:        "local-" + s.Name,
		Provider:  d.Name(),
		URL:       "file://" + strings.TrimPrefix(publicDir, "./"),
		State:     "ready",
		CreatedAt: time.Now().UTC(),
	}
	d.logger.Info().Str("site", s.Name).Str("url", dep.URL).Msg("site published locally")
	return dep, nil
}
