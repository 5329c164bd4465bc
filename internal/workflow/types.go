// Package workflow implements the project workflow state machine: the
// persistent state store, the stage registry, the orchestrator that drives a
// project through its stages, and the background runner that executes them.
package workflow

import (
	"encoding/json"
	"time"
)

// ProjectStatus is the global status of a project.
type ProjectStatus string

const (
	StatusInitializing ProjectStatus = "INITIALIZING"
	StatusInProgress   ProjectStatus = "IN_PROGRESS"
	StatusPaused       ProjectStatus = "PAUSED"
	StatusCompleted    ProjectStatus = "COMPLETED"
	StatusFailed       ProjectStatus = "FAILED"

	// Synthetic statuses returned by the read path only; never persisted.
	StatusNotFound ProjectStatus = "NOT_FOUND"
	StatusError    ProjectStatus = "ERROR"
	StatusUnknown  ProjectStatus = "UNKNOWN"
)

// Terminal reports whether no further stage execution occurs automatically.
func (s ProjectStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Synthetic reports whether the status is a read-path artifact.
func (s ProjectStatus) Synthetic() bool {
	return s == StatusNotFound || s == StatusError || s == StatusUnknown
}

// StageStatus is the status of a single stage within a project.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// StageRecord tracks one stage's lifecycle within a project.
type StageRecord struct {
	Status      StageStatus `json:"status"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// State is the per-project workflow state document. It is owned exclusively
// by the orchestrator; external callers see it only through read accessors.
type State struct {
	ProjectID    string                     `json:"project_id"`
	Topic        string                     `json:"topic"`
	Preferences  map[string]any             `json:"preferences,omitempty"`
	Status       ProjectStatus              `json:"status"`
	CurrentStage string                     `json:"current_stage,omitempty"`
	Progress     int                        `json:"progress"`
	Stages       map[string]*StageRecord    `json:"stages"`
	Results      map[string]json.RawMessage `json:"results,omitempty"`
	Error        string                     `json:"error,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// Stage returns the record for the named stage, or nil if unknown.
func (s *State) Stage(name string) *StageRecord {
	if s.Stages == nil {
		return nil
	}
	return s.Stages[name]
}

// TimelineEvent is one entry in a project's append-only audit timeline.
type TimelineEvent struct {
	ID          string         `json:"id,omitempty"`
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Summary is the lightweight per-project view returned by ListActive.
type Summary struct {
	Status    ProjectStatus `json:"status"`
	Stage     string        `json:"stage"`
	Progress  int           `json:"progress"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusView is the user-facing status of a project: the state document plus
// the most recent timeline events. The full timeline is a separate accessor.
type StatusView struct {
	State
	RecentEvents []TimelineEvent `json:"recent_events,omitempty"`
}

// Outcome is the structured result of an orchestrator operation.
type Outcome struct {
	ProjectID string        `json:"project_id"`
	Stage     string        `json:"stage,omitempty"`
	Status    ProjectStatus `json:"status"`
	NextStage string        `json:"next_stage,omitempty"`
	Failure   string        `json:"failure,omitempty"`
}

// notFoundState builds the synthetic document for a missing project.
func notFoundState(projectID string) *State {
	return &State{
		ProjectID: projectID,
		Status:    StatusNotFound,
		Error:     "project not found",
	}
}

// errorState builds the synthetic document for an unreachable store.
func errorState(projectID string, err error) *State {
	return &State{
		ProjectID: projectID,
		Status:    StatusError,
		Error:     "error retrieving project state: " + err.Error(),
	}
}
