// Package llm defines the language model provider interface used by the
// content pipeline. Providers are interchangeable behind this interface:
// topic analysis and content creation run on Anthropic, niche research on
// OpenAI, and tests on fakes.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is the input to a provider's Complete call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int     // override provider default if > 0
	Temperature float64 // 0 means provider default
	Model       string  // override provider default if set
}

// Response is the completed generation.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is the abstraction over language model backends.
type Provider interface {
	// Complete sends a completion request and waits for the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the current model identifier string.
	ModelID() string
}

// CompleteJSON runs a completion and unmarshals the response text into out.
// Models often wrap JSON in a markdown fence; the fence is stripped before
// decoding.
func CompleteJSON(ctx context.Context, p Provider, req Request, out any) error {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	text := stripFence(resp.Text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decoding %s response as JSON: %w", p.ModelID(), err)
	}
	return nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
