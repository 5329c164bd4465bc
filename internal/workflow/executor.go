package workflow

import (
	"context"
	"encoding/json"
)

// StageInput is the view of project state passed to a stage executor. Each
// executor receives only its documented inputs, not the whole state document.
type StageInput struct {
	ProjectID   string
	Topic       string
	Preferences map[string]any
	// Results holds the payloads of previously completed stages, keyed by
	// stage name. Read-only to the executor.
	Results map[string]json.RawMessage
}

// Result decodes a prior stage's payload into out. Returns false if that
// stage has no payload.
func (in StageInput) Result(stage string, out any) (bool, error) {
	raw, ok := in.Results[stage]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// StageResult is the structured outcome of a successful stage execution.
// Payload is merged verbatim into the state document under the stage's name;
// it is owned by the producing stage and read-only to all later stages.
type StageResult struct {
	Payload any
	// Summary is the human-readable line for the <stage>_completed event.
	Summary string
	// Data is the structured payload attached to the completion event.
	Data map[string]any
}

// StageExecutor performs the work of one stage. Executors must not mutate
// workflow state themselves: the orchestrator owns stage status and
// lifecycle timeline events. Executors may have non-idempotent side effects
// on external systems (a retried stage may re-issue a generation request).
type StageExecutor interface {
	Name() string
	Execute(ctx context.Context, in StageInput) (*StageResult, error)
}

// ExecutorFunc adapts a function to the StageExecutor interface.
type ExecutorFunc struct {
	StageName string
	Fn        func(ctx context.Context, in StageInput) (*StageResult, error)
}

func (e ExecutorFunc) Name() string { return e.StageName }

func (e ExecutorFunc) Execute(ctx context.Context, in StageInput) (*StageResult, error) {
	return e.Fn(ctx, in)
}
