// Package seo produces the research artifacts of the pipeline's first three
// stages: topic analysis, niche research, and the content plan. Analysis and
// planning run on the Anthropic provider; research runs on OpenAI.
package seo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blogsmith/blogsmith/internal/llm"
)

// TopicAnalysis is the structured result of analyzing a topic.
type TopicAnalysis struct {
	Topic            string   `json:"topic"`
	Summary          string   `json:"summary"`
	Audience         []string `json:"audience"`
	Subtopics        []string `json:"subtopics"`
	CompetitionLevel string   `json:"competition_level"`
}

// Keyword is one researched keyword with its search intent.
type Keyword struct {
	Term       string `json:"term"`
	Intent     string `json:"intent"`
	Difficulty string `json:"difficulty"`
}

// NicheResearch is the structured result of researching a niche.
type NicheResearch struct {
	Topic       string    `json:"topic"`
	Keywords    []Keyword `json:"keywords"`
	Competitors []string  `json:"competitors"`
	ContentGaps []string  `json:"content_gaps"`
}

// PlannedArticle is one article in the content plan.
type PlannedArticle struct {
	Title   string   `json:"title"`
	Keyword string   `json:"keyword"`
	Outline []string `json:"outline"`
}

// ContentPlan is a pillar-and-cluster article plan.
type ContentPlan struct {
	Topic    string           `json:"topic"`
	Pillar   PlannedArticle   `json:"pillar"`
	Clusters []PlannedArticle `json:"clusters"`
}

// Service runs SEO research through language model providers.
type Service struct {
	analyst    llm.Provider // topic analysis + planning
	researcher llm.Provider // niche research
	logger     zerolog.Logger
}

// NewService creates an SEO service. researcher may equal analyst when only
// one provider is configured.
func NewService(analyst, researcher llm.Provider, logger zerolog.Logger) *Service {
	return &Service{
		analyst:    analyst,
		researcher: researcher,
		logger:     logger.With().Str("component", "seo").Logger(),
	}
}

const analyzeSystem = `You are an SEO analyst. Respond with a single JSON object and nothing else.`

// AnalyzeTopic evaluates a topic's scope, audience, and competitive landscape.
func (s *Service) AnalyzeTopic(ctx context.Context, topic string) (*TopicAnalysis, error) {
	prompt := fmt.Sprintf(`Analyze the blog topic %q for a new content site.
Return JSON with keys: "summary" (2-3 sentences), "audience" (array of reader
profiles), "subtopics" (array of 5-8 coverage areas), "competition_level"
(one of "low", "medium", "high").`, topic)

	var out TopicAnalysis
	err := llm.CompleteJSON(ctx, s.analyst, llm.Request{
		System:      analyzeSystem,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   2000,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("topic analysis: %w", err)
	}
	out.Topic = topic

	s.logger.Info().Str("topic", topic).Int("subtopics", len(out.Subtopics)).Msg("topic analyzed")
	return &out, nil
}

// ResearchNiche finds keywords, competitors, and content gaps. The prior
// topic analysis steers the research when present.
func (s *Service) ResearchNiche(ctx context.Context, topic string, analysis *TopicAnalysis) (*NicheResearch, error) {
	prior := "none"
	if analysis != nil {
		raw, err := json.Marshal(analysis)
		if err == nil {
			prior = string(raw)
		}
	}
	prompt := fmt.Sprintf(`Research the content niche for topic %q.
Prior topic analysis: %s
Return JSON with keys: "keywords" (array of objects with "term", "intent",
"difficulty"), "competitors" (array of site names), "content_gaps" (array of
underserved questions).`, topic, prior)

	var out NicheResearch
	err := llm.CompleteJSON(ctx, s.researcher, llm.Request{
		System:      `You are a market researcher. Respond with a single JSON object and nothing else.`,
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   3000,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("niche research: %w", err)
	}
	out.Topic = topic

	s.logger.Info().Str("topic", topic).Int("keywords", len(out.Keywords)).Msg("niche researched")
	return &out, nil
}

// CreateContentPlan builds a pillar article plus cluster articles from the
// research. numArticles bounds the cluster count.
func (s *Service) CreateContentPlan(ctx context.Context, topic string, research *NicheResearch, numArticles int) (*ContentPlan, error) {
	if numArticles <= 0 {
		numArticles = 10
	}
	priorKeywords := "none"
	if research != nil {
		raw, err := json.Marshal(research.Keywords)
		if err == nil {
			priorKeywords = string(raw)
		}
	}
	prompt := fmt.Sprintf(`Create a pillar-and-cluster content plan for topic %q
with 1 pillar article and %d cluster articles. Researched keywords: %s
Return JSON with keys: "pillar" (object with "title", "keyword", "outline"
array of section headings) and "clusters" (array of the same shape).`,
		topic, numArticles, priorKeywords)

	var out ContentPlan
	err := llm.CompleteJSON(ctx, s.analyst, llm.Request{
		System:      `You are a content strategist. Respond with a single JSON object and nothing else.`,
		Prompt:      prompt,
		Temperature: 0.4,
		MaxTokens:   3000,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("content plan: %w", err)
	}
	out.Topic = topic
	if out.Pillar.Title == "" {
		return nil, fmt.Errorf("content plan: model returned no pillar article")
	}
	if len(out.Clusters) > numArticles {
		out.Clusters = out.Clusters[:numArticles]
	}

	s.logger.Info().Str("topic", topic).Int("clusters", len(out.Clusters)).Msg("content plan created")
	return &out, nil
}
