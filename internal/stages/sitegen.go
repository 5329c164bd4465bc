package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/blogsmith/blogsmith/internal/retry"
	"github.com/blogsmith/blogsmith/internal/site"
	"github.com/blogsmith/blogsmith/internal/workflow"
)

// SiteGenerationPayload is the site_generation stage payload.
type SiteGenerationPayload struct {
	Site  site.Site        `json:"site"`
	Build site.BuildResult `json:"build"`
}

// SiteGenerationExecutor runs the fifth stage: laying out the site, writing
// the generated articles into it, and building the static output.
type SiteGenerationExecutor struct {
	builder *site.Builder
	logger  zerolog.Logger
}

// SiteGenerationOptions is the preferences section for site_generation.
type SiteGenerationOptions struct {
	// Title overrides the site title derived from the topic.
	Title string `json:"title"`
	// Description is the site-wide meta description.
	Description string `json:"description"`
	// Name overrides the slug derived from the title.
	Name string `json:"name"`
}

// NewSiteGenerationExecutor creates the site generation stage.
func NewSiteGenerationExecutor(builder *site.Builder, logger zerolog.Logger) *SiteGenerationExecutor {
	return &SiteGenerationExecutor{
		builder: builder,
		logger:  logger.With().Str("component", "stages.site_generation").Logger(),
	}
}

func (e *SiteGenerationExecutor) Name() string { return workflow.StageSiteGeneration }

func (e *SiteGenerationExecutor) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error) {
	var opts SiteGenerationOptions
	if err := decodeOptions(in.Preferences, workflow.StageSiteGeneration, &opts); err != nil {
		return nil, err
	}

	var content ContentCreationPayload
	hasContent, err := in.Result(workflow.StageContentCreation, &content)
	if err != nil {
		return nil, fmt.Errorf("reading content payload: %w", err)
	}
	if !hasContent || len(content.Articles) == 0 {
		return nil, fmt.Errorf("site generation requires generated articles")
	}

	title := opts.Title
	if title == "" {
		title = titleFromTopic(in.Topic)
	}
	s, err := e.builder.CreateSite(in.ProjectID, site.Config{
		Title:       title,
		Description: opts.Description,
		Name:        opts.Name,
	})
	if err != nil {
		return nil, err
	}

	for _, a := range content.Articles {
		_, err := e.builder.AddContent(s, site.Article{
			Slug:        a.Slug,
			Title:       a.Title,
			Description: a.Meta.Description,
			Keyword:     a.Keyword,
			Markdown:    a.Markdown,
		})
		if err != nil {
			return nil, fmt.Errorf("adding article %q: %w", a.Title, err)
		}
	}

	build, err := e.builder.Build(s)
	if err != nil {
		return nil, err
	}

	return &workflow.StageResult{
		Payload: &SiteGenerationPayload{Site: *s, Build: *build},
		Summary: fmt.Sprintf("Generated site %s with %d pages", s.Name, build.Pages),
		Data:    map[string]any{"site_id": s.ID, "pages": build.Pages},
	}, nil
}

func titleFromTopic(topic string) string {
	words := strings.Fields(topic)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// SiteURLRecorder receives the deployed site URL. The catalog implements it.
type SiteURLRecorder interface {
	SetSiteURL(ctx context.Context, projectID, siteURL string) error
}

// DeploymentExecutor runs the final stage: publishing the built site through
// the configured hosting provider.
type DeploymentExecutor struct {
	deployers map[string]site.Deployer
	fallback  string
	recorder  SiteURLRecorder
	retryCfg  retry.Config
	logger    zerolog.Logger
}

// DeploymentOptions is the preferences section for deployment.
type DeploymentOptions struct {
	// Provider selects the deployer ("vercel", "netlify", "local").
	// Defaults to the configured default provider.
	Provider string `json:"provider"`
}

// NewDeploymentExecutor creates the deployment stage. fallback names the
// deployer used when the project preferences do not pick one.
func NewDeploymentExecutor(deployers []site.Deployer, fallback string, logger zerolog.Logger) *DeploymentExecutor {
	byName := make(map[string]site.Deployer, len(deployers))
	for _, d := range deployers {
		byName[d.Name()] = d
	}
	return &DeploymentExecutor{
		deployers: byName,
		fallback:  fallback,
		retryCfg:  retry.DefaultConfig(),
		logger:    logger.With().Str("component", "stages.deployment").Logger(),
	}
}

// SetRecorder sets the optional site-URL recorder.
func (e *DeploymentExecutor) SetRecorder(r SiteURLRecorder) { e.recorder = r }

func (e *DeploymentExecutor) Name() string { return workflow.StageDeployment }

func (e *DeploymentExecutor) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error) {
	var opts DeploymentOptions
	if err := decodeOptions(in.Preferences, workflow.StageDeployment, &opts); err != nil {
		return nil, err
	}

	var generated SiteGenerationPayload
	hasSite, err := in.Result(workflow.StageSiteGeneration, &generated)
	if err != nil {
		return nil, fmt.Errorf("reading site payload: %w", err)
	}
	if !hasSite {
		return nil, fmt.Errorf("deployment requires a generated site")
	}

	provider := opts.Provider
	if provider == "" {
		provider = e.fallback
	}
	deployer, ok := e.deployers[provider]
	if !ok {
		return nil, fmt.Errorf("no deployer configured for provider %q", provider)
	}

	var dep *site.Deployment
	err = retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
		var err error
		dep, err = deployer.Deploy(ctx, &generated.Site)
		return err
	})
	if err != nil {
		return nil, err
	}

	if e.recorder != nil {
		if err := e.recorder.SetSiteURL(ctx, in.ProjectID, dep.URL); err != nil {
			e.logger.Warn().Err(err).Str("project_id", in.ProjectID).Msg("failed to record site url")
		}
	}

	return &workflow.StageResult{
		Payload: dep,
		Summary: fmt.Sprintf("Deployed site to %s: %s", dep.Provider, dep.URL),
		Data:    map[string]any{"provider": dep.Provider, "url": dep.URL},
	}, nil
}
