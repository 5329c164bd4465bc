package stages

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blogsmith/blogsmith/internal/llm"
	"github.com/blogsmith/blogsmith/internal/retry"
	"github.com/blogsmith/blogsmith/internal/seo"
	"github.com/blogsmith/blogsmith/internal/site"
	"github.com/blogsmith/blogsmith/internal/workflow"
)

// GeneratedArticle is one article produced by the content creation stage.
type GeneratedArticle struct {
	Slug              string       `json:"slug"`
	Title             string       `json:"title"`
	Keyword           string       `json:"keyword"`
	Markdown          string       `json:"markdown"`
	Meta              seo.MetaTags `json:"meta"`
	OptimizationScore int          `json:"optimization_score"`
	Pillar            bool         `json:"pillar,omitempty"`
}

// ContentCreationPayload is the content_creation stage payload.
type ContentCreationPayload struct {
	Articles []GeneratedArticle `json:"articles"`
}

// ContentCreationExecutor runs the fourth stage: writing the planned
// articles with the LLM provider and scoring them with the SEO helpers.
type ContentCreationExecutor struct {
	writer   llm.Provider
	retryCfg retry.Config
	logger   zerolog.Logger
}

// ContentCreationOptions is the preferences section for content_creation.
type ContentCreationOptions struct {
	// WordCount is the target article length. Defaults to 1200.
	WordCount int `json:"word_count"`
	// Tone steers the writing style. Defaults to "informative".
	Tone string `json:"tone"`
}

// NewContentCreationExecutor creates the content creation stage.
func NewContentCreationExecutor(writer llm.Provider, logger zerolog.Logger) *ContentCreationExecutor {
	return &ContentCreationExecutor{
		writer:   writer,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.With().Str("component", "stages.content_creation").Logger(),
	}
}

func (e *ContentCreationExecutor) Name() string { return workflow.StageContentCreation }

func (e *ContentCreationExecutor) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error) {
	opts := ContentCreationOptions{WordCount: 1200, Tone: "informative"}
	if err := decodeOptions(in.Preferences, workflow.StageContentCreation, &opts); err != nil {
		return nil, err
	}

	var plan seo.ContentPlan
	hasPlan, err := in.Result(workflow.StageContentPlanning, &plan)
	if err != nil {
		return nil, fmt.Errorf("reading content plan payload: %w", err)
	}
	if !hasPlan {
		return nil, fmt.Errorf("content creation requires a content plan payload")
	}

	var related []string
	for _, c := range plan.Clusters {
		related = append(related, c.Keyword)
	}

	payload := &ContentCreationPayload{}
	pillar, err := e.writeArticle(ctx, plan.Pillar, opts, related)
	if err != nil {
		return nil, fmt.Errorf("writing pillar article: %w", err)
	}
	pillar.Pillar = true
	payload.Articles = append(payload.Articles, *pillar)

	for _, planned := range plan.Clusters {
		article, err := e.writeArticle(ctx, planned, opts, []string{plan.Pillar.Keyword})
		if err != nil {
			return nil, fmt.Errorf("writing article %q: %w", planned.Title, err)
		}
		payload.Articles = append(payload.Articles, *article)
	}

	return &workflow.StageResult{
		Payload: payload,
		Summary: fmt.Sprintf("Created %d articles for: %s", len(payload.Articles), in.Topic),
		Data:    map[string]any{"articles": len(payload.Articles)},
	}, nil
}

func (e *ContentCreationExecutor) writeArticle(ctx context.Context, planned seo.PlannedArticle, opts ContentCreationOptions, related []string) (*GeneratedArticle, error) {
	prompt := fmt.Sprintf(`Write a blog article titled %q targeting the keyword %q.
Tone: %s. Target length: about %d words. Use markdown with ## section headings.
Follow this outline: %v. Start with the title as a # heading.`,
		planned.Title, planned.Keyword, opts.Tone, opts.WordCount, planned.Outline)

	var resp *llm.Response
	err := retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
		var err error
		resp, err = e.writer.Complete(ctx, llm.Request{
			System:      "You are an expert blog writer producing publication-ready markdown.",
			Prompt:      prompt,
			Temperature: 0.7,
			MaxTokens:   4096,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	markdown := resp.Text
	meta := seo.GenerateMetaTags(planned.Title, markdown, planned.Keyword)
	score := seo.OptimizationScore(markdown, planned.Keyword, related)
	e.logger.Debug().Str("title", planned.Title).Int("score", score).Msg("article written")

	return &GeneratedArticle{
		Slug:              site.Slugify(planned.Title),
		Title:             planned.Title,
		Keyword:           planned.Keyword,
		Markdown:          markdown,
		Meta:              meta,
		OptimizationScore: score,
	}, nil
}
