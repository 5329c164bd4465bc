package stages

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blogsmith/blogsmith/internal/retry"
	"github.com/blogsmith/blogsmith/internal/seo"
	"github.com/blogsmith/blogsmith/internal/workflow"
)

// TopicAnalysisExecutor runs the first stage: analyzing the project topic.
type TopicAnalysisExecutor struct {
	svc      *seo.Service
	retryCfg retry.Config
	logger   zerolog.Logger
}

// TopicAnalysisOptions is the preferences section for topic_analysis. The
// stage currently takes no options; the empty struct still rejects unknown
// keys.
type TopicAnalysisOptions struct{}

// NewTopicAnalysisExecutor creates the topic analysis stage.
func NewTopicAnalysisExecutor(svc *seo.Service, logger zerolog.Logger) *TopicAnalysisExecutor {
	return &TopicAnalysisExecutor{
		svc:      svc,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.With().Str("component", "stages.topic_analysis").Logger(),
	}
}

func (e *TopicAnalysisExecutor) Name() string { return workflow.StageTopicAnalysis }

func (e *TopicAnalysisExecutor) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error) {
	var opts TopicAnalysisOptions
	if err := decodeOptions(in.Preferences, workflow.StageTopicAnalysis, &opts); err != nil {
		return nil, err
	}

	var analysis *seo.TopicAnalysis
	err := retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
		var err error
		analysis, err = e.svc.AnalyzeTopic(ctx, in.Topic)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &workflow.StageResult{
		Payload: analysis,
		Summary: fmt.Sprintf("Completed topic analysis for: %s", in.Topic),
		Data:    map[string]any{"competition_level": analysis.CompetitionLevel, "subtopics": len(analysis.Subtopics)},
	}, nil
}

// NicheResearchExecutor runs the second stage: keyword and competitor
// research, steered by the topic analysis payload.
type NicheResearchExecutor struct {
	svc      *seo.Service
	retryCfg retry.Config
	logger   zerolog.Logger
}

// NicheResearchOptions is the preferences section for niche_research.
type NicheResearchOptions struct {
	// MaxKeywords caps the keyword list carried forward. 0 keeps all.
	MaxKeywords int `json:"max_keywords"`
}

// NewNicheResearchExecutor creates the niche research stage.
func NewNicheResearchExecutor(svc *seo.Service, logger zerolog.Logger) *NicheResearchExecutor {
	return &NicheResearchExecutor{
		svc:      svc,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.With().Str("component", "stages.niche_research").Logger(),
	}
}

func (e *NicheResearchExecutor) Name() string { return workflow.StageNicheResearch }

func (e *NicheResearchExecutor) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error) {
	var opts NicheResearchOptions
	if err := decodeOptions(in.Preferences, workflow.StageNicheResearch, &opts); err != nil {
		return nil, err
	}

	var analysis seo.TopicAnalysis
	hasAnalysis, err := in.Result(workflow.StageTopicAnalysis, &analysis)
	if err != nil {
		return nil, fmt.Errorf("reading topic analysis payload: %w", err)
	}
	var prior *seo.TopicAnalysis
	if hasAnalysis {
		prior = &analysis
	}

	var research *seo.NicheResearch
	err = retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
		var err error
		research, err = e.svc.ResearchNiche(ctx, in.Topic, prior)
		return err
	})
	if err != nil {
		return nil, err
	}
	if opts.MaxKeywords > 0 && len(research.Keywords) > opts.MaxKeywords {
		research.Keywords = research.Keywords[:opts.MaxKeywords]
	}

	return &workflow.StageResult{
		Payload: research,
		Summary: fmt.Sprintf("Completed niche research for: %s", in.Topic),
		Data:    map[string]any{"keywords": len(research.Keywords), "content_gaps": len(research.ContentGaps)},
	}, nil
}

// ContentPlanningExecutor runs the third stage: building the pillar and
// cluster article plan from the research payload.
type ContentPlanningExecutor struct {
	svc      *seo.Service
	retryCfg retry.Config
	logger   zerolog.Logger
}

// ContentPlanningOptions is the preferences section for content_planning.
type ContentPlanningOptions struct {
	// NumArticles is the cluster article count. Defaults to 10.
	NumArticles int `json:"num_articles"`
}

// NewContentPlanningExecutor creates the content planning stage.
func NewContentPlanningExecutor(svc *seo.Service, logger zerolog.Logger) *ContentPlanningExecutor {
	return &ContentPlanningExecutor{
		svc:      svc,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.With().Str("component", "stages.content_planning").Logger(),
	}
}

func (e *ContentPlanningExecutor) Name() string { return workflow.StageContentPlanning }

func (e *ContentPlanningExecutor) Execute(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error) {
	opts := ContentPlanningOptions{NumArticles: 10}
	if err := decodeOptions(in.Preferences, workflow.StageContentPlanning, &opts); err != nil {
		return nil, err
	}

	var research seo.NicheResearch
	hasResearch, err := in.Result(workflow.StageNicheResearch, &research)
	if err != nil {
		return nil, fmt.Errorf("reading niche research payload: %w", err)
	}
	var prior *seo.NicheResearch
	if hasResearch {
		prior = &research
	}

	var plan *seo.ContentPlan
	err = retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
		var err error
		plan, err = e.svc.CreateContentPlan(ctx, in.Topic, prior, opts.NumArticles)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &workflow.StageResult{
		Payload: plan,
		Summary: fmt.Sprintf("Created content plan for: %s", in.Topic),
		Data:    map[string]any{"pillar": plan.Pillar.Title, "clusters": len(plan.Clusters)},
	}, nil
}
