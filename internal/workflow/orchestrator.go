package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
	"github.com/blogsmith/blogsmith/internal/metrics"
)

// Notifier is told when a project reaches a terminal status.
type Notifier interface {
	ProjectTerminal(ctx context.Context, projectID string, status ProjectStatus, message string)
}

// CatalogSync mirrors workflow status into the business catalog. The state
// store stays authoritative for workflow state; the catalog is a system of
// record for reporting only.
type CatalogSync interface {
	SetWorkflowStatus(ctx context.Context, projectID string, status string) error
}

// Orchestrator drives a project from creation to a terminal status by
// invoking stage executors in registry order. All state mutations go through
// the state store's partial Update, never a whole-document write-back, so
// concurrent field appends are not clobbered.
type Orchestrator struct {
	states    StateStore
	registry  *Registry
	executors map[string]StageExecutor
	locks     *projectLocks
	logger    zerolog.Logger

	metrics  *metrics.Metrics
	notifier Notifier
	catalog  CatalogSync
}

// New creates an orchestrator. Executors are registered separately so the
// pipeline definition stays data-driven.
func New(states StateStore, registry *Registry, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		states:    states,
		registry:  registry,
		executors: make(map[string]StageExecutor),
		locks:     newProjectLocks(),
		logger:    logger.With().Str("component", "workflow.orchestrator").Logger(),
	}
}

// RegisterExecutor binds an executor to its stage. Registering for a stage
// the registry does not contain is an error.
func (o *Orchestrator) RegisterExecutor(e StageExecutor) error {
	if !o.registry.Contains(e.Name()) {
		return fmt.Errorf("%w: stage %q is not in the registry", perrors.ErrInvalidInput, e.Name())
	}
	o.executors[e.Name()] = e
	return nil
}

// SetMetrics sets the optional metrics collector.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) { o.metrics = m }

// SetNotifier sets the optional terminal-state notifier.
func (o *Orchestrator) SetNotifier(n Notifier) { o.notifier = n }

// SetCatalog sets the optional business-catalog mirror.
func (o *Orchestrator) SetCatalog(c CatalogSync) { o.catalog = c }

// Registry returns the stage registry the orchestrator runs.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Start initializes project state with every stage pending, appends the
// project_started event, and marks the first stage in_progress. Stage
// execution itself is asynchronous: the caller submits the returned
// NextStage to the runner. Returns ErrConflict if state already exists.
func (o *Orchestrator) Start(ctx context.Context, projectID, topic string, preferences map[string]any) (*Outcome, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: empty project id", perrors.ErrInvalidInput)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: empty topic", perrors.ErrInvalidInput)
	}

	unlock := o.locks.acquire(projectID)
	defer unlock()

	first := o.registry.First()
	stages := make(map[string]*StageRecord, o.registry.Len())
	for _, name := range o.registry.Names() {
		stages[name] = &StageRecord{Status: StagePending}
	}

	st := &State{
		ProjectID:    projectID,
		Topic:        topic,
		Preferences:  preferences,
		Status:       StatusInitializing,
		CurrentStage: first,
		Progress:     0,
		Stages:       stages,
	}
	if err := o.states.Create(ctx, st); err != nil {
		return nil, err
	}

	o.appendEvent(ctx, projectID, TimelineEvent{
		EventType:   "project_started",
		Description: fmt.Sprintf("Started new project for topic: %s", topic),
		Data:        map[string]any{"topic": topic, "preferences": preferences},
	})

	// The first stage is armed here but the project stays INITIALIZING
	// until the runner actually executes it.
	if err := o.states.Update(ctx, projectID, map[string]any{
		"stages":        map[string]any{first: map[string]any{"status": StageInProgress}},
		"current_stage": first,
	}); err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.ProjectsActive.Inc()
	}
	o.logger.Info().Str("project_id", projectID).Str("topic", topic).Msg("project started")

	return &Outcome{
		ProjectID: projectID,
		Status:    StatusInitializing,
		NextStage: first,
	}, nil
}

// RunStage executes one stage to completion. An executor failure never
// propagates: it is converted into state (failed stage, FAILED project,
// timeline event) and reported through the outcome. The per-project lock is
// held for state mutations only, not across the executor call, so Cancel
// can land while a stage is in flight; the orchestrator re-checks status
// before chaining and stops on PAUSED.
func (o *Orchestrator) RunStage(ctx context.Context, projectID, stage string) (*Outcome, error) {
	if !o.registry.Contains(stage) {
		return nil, fmt.Errorf("%w: unknown stage %q", perrors.ErrInvalidInput, stage)
	}
	exec, ok := o.executors[stage]
	if !ok {
		return nil, fmt.Errorf("%w: no executor registered for stage %q", perrors.ErrInvalidInput, stage)
	}

	input, outcome, err := o.beginStage(ctx, projectID, stage)
	if err != nil || outcome != nil {
		return outcome, err
	}

	started := time.Now()
	result, execErr := exec.Execute(ctx, *input)
	elapsed := time.Since(started).Seconds()
	if o.metrics != nil {
		o.metrics.ObserveStageDuration(stage, elapsed)
	}

	if execErr != nil {
		return o.failStage(ctx, projectID, stage, execErr)
	}
	if result == nil {
		result = &StageResult{}
	}
	return o.completeStage(ctx, projectID, stage, result)
}

// beginStage loads state, validates the transition, and marks the stage
// in_progress. It returns a non-nil outcome for idempotent no-ops (already
// completed, already failed, project paused).
func (o *Orchestrator) beginStage(ctx context.Context, projectID, stage string) (*StageInput, *Outcome, error) {
	unlock := o.locks.acquire(projectID)
	defer unlock()

	st := o.states.Get(ctx, projectID)
	switch st.Status {
	case StatusNotFound:
		return nil, nil, fmt.Errorf("%w: %s", perrors.ErrNotFound, projectID)
	case StatusError:
		return nil, nil, fmt.Errorf("%w: %s", perrors.ErrStoreUnavailable, st.Error)
	case StatusPaused:
		// Cancellation is a pause, not a rollback. Resume resubmits.
		return nil, &Outcome{ProjectID: projectID, Stage: stage, Status: StatusPaused}, nil
	}

	rec := st.Stage(stage)
	if rec == nil {
		return nil, nil, fmt.Errorf("%w: project %s has no record for stage %q", perrors.ErrInvalidInput, projectID, stage)
	}
	switch rec.Status {
	case StageCompleted:
		// Duplicate submission; nothing to do and nothing to chain.
		return nil, &Outcome{ProjectID: projectID, Stage: stage, Status: st.Status}, nil
	case StageFailed:
		// Terminal for the stage until an explicit external retry.
		return nil, &Outcome{ProjectID: projectID, Stage: stage, Status: StatusFailed, Failure: st.Error}, nil
	}
	if st.Status == StatusFailed {
		// Another stage already failed; failure isolation keeps the rest pending.
		return nil, &Outcome{ProjectID: projectID, Stage: stage, Status: StatusFailed, Failure: st.Error}, nil
	}

	// Stages run strictly in registry order.
	if prev, ok := o.registry.Prev(stage); ok {
		if p := st.Stage(prev); p == nil || p.Status != StageCompleted {
			return nil, nil, fmt.Errorf("%w: stage %q cannot run before %q is completed", perrors.ErrInvalidInput, stage, prev)
		}
	}

	now := time.Now().UTC()
	firstStart := rec.StartedAt == nil
	recPatch := map[string]any{"status": StageInProgress}
	if firstStart {
		recPatch["started_at"] = now
	}
	if err := o.states.Update(ctx, projectID, map[string]any{
		"stages":        map[string]any{stage: recPatch},
		"current_stage": stage,
		"status":        StatusInProgress,
	}); err != nil {
		return nil, nil, err
	}

	// Re-entry is allowed but must not duplicate the stage's start event.
	if firstStart {
		o.appendEvent(ctx, projectID, TimelineEvent{
			EventType:   stage + "_started",
			Description: fmt.Sprintf("Started stage %s", stage),
		})
	}

	o.logger.Info().Str("project_id", projectID).Str("stage", stage).Msg("stage running")
	return &StageInput{
		ProjectID:   projectID,
		Topic:       st.Topic,
		Preferences: st.Preferences,
		Results:     st.Results,
	}, nil, nil
}

// completeStage merges the stage result, advances progress to the stage's
// checkpoint, marks the stage completed, and either arms the next stage or
// marks the whole project COMPLETED.
func (o *Orchestrator) completeStage(ctx context.Context, projectID, stage string, result *StageResult) (*Outcome, error) {
	unlock := o.locks.acquire(projectID)
	defer unlock()

	now := time.Now().UTC()
	updates := map[string]any{
		"stages":   map[string]any{stage: map[string]any{"status": StageCompleted, "completed_at": now}},
		"progress": o.registry.Checkpoint(stage),
	}
	if result.Payload != nil {
		updates["results"] = map[string]any{stage: result.Payload}
	}

	st := o.states.Get(ctx, projectID)
	if st.Status.Synthetic() {
		return nil, fmt.Errorf("%w: %s", perrors.ErrNotFound, projectID)
	}

	// COMPLETED is derived from the stage records alone: every other stage
	// must already be completed, even for the final stage.
	next, hasNext := o.registry.Next(stage)
	done := o.allOthersCompleted(st, stage)
	paused := st.Status == StatusPaused

	switch {
	case done:
		updates["status"] = StatusCompleted
	case paused:
		// A cancel raced the in-flight stage. Record the completed work but
		// stay PAUSED and do not chain.
	default:
		updates["status"] = StatusInProgress
	}

	if err := o.states.Update(ctx, projectID, updates); err != nil {
		return nil, err
	}

	desc := result.Summary
	if desc == "" {
		desc = fmt.Sprintf("Completed stage %s", stage)
	}
	o.appendEvent(ctx, projectID, TimelineEvent{
		EventType:   stage + "_completed",
		Description: desc,
		Data:        result.Data,
	})

	if o.metrics != nil {
		o.metrics.RecordStage(stage, "completed")
	}

	outcome := &Outcome{ProjectID: projectID, Stage: stage, Status: StatusInProgress}
	switch {
	case done:
		outcome.Status = StatusCompleted
		o.appendEvent(ctx, projectID, TimelineEvent{
			EventType:   "project_completed",
			Description: "All pipeline stages completed",
		})
		o.projectTerminal(ctx, projectID, StatusCompleted, desc)
	case paused:
		outcome.Status = StatusPaused
	case hasNext:
		// Arm the next stage; its own RunStage stamps started_at and the
		// start event.
		if err := o.states.Update(ctx, projectID, map[string]any{
			"stages":        map[string]any{next: map[string]any{"status": StageInProgress}},
			"current_stage": next,
		}); err != nil {
			return nil, err
		}
		outcome.NextStage = next
	}

	o.logger.Info().
		Str("project_id", projectID).
		Str("stage", stage).
		Str("next", outcome.NextStage).
		Msg("stage completed")
	return outcome, nil
}

// failStage converts an executor error into state: failed stage, FAILED
// project, error text on the document, and a <stage>_failed timeline event.
// The failure is terminal for the project unless externally retried.
func (o *Orchestrator) failStage(ctx context.Context, projectID, stage string, execErr error) (*Outcome, error) {
	unlock := o.locks.acquire(projectID)
	defer unlock()

	serr := perrors.NewStageError(stage, execErr)
	now := time.Now().UTC()

	if err := o.states.Update(ctx, projectID, map[string]any{
		"stages": map[string]any{stage: map[string]any{"status": StageFailed, "completed_at": now}},
		"status": StatusFailed,
		"error":  serr.Error(),
	}); err != nil {
		// The store rejected the failure write; surface both problems.
		o.appendEvent(ctx, projectID, TimelineEvent{
			EventType:   "workflow_error",
			Description: "Failed to persist stage failure",
			Data:        map[string]any{"stage": stage, "error": err.Error()},
		})
		return nil, fmt.Errorf("recording failure of stage %s: %w", stage, err)
	}

	o.appendEvent(ctx, projectID, TimelineEvent{
		EventType:   stage + "_failed",
		Description: fmt.Sprintf("Failed to complete %s: %v", stage, execErr),
		Data:        map[string]any{"error": execErr.Error()},
	})

	if o.metrics != nil {
		o.metrics.RecordStage(stage, "failed")
	}
	o.projectTerminal(ctx, projectID, StatusFailed, serr.Error())

	o.logger.Error().
		Err(execErr).
		Str("project_id", projectID).
		Str("stage", stage).
		Msg("stage failed")
	return &Outcome{
		ProjectID: projectID,
		Stage:     stage,
		Status:    StatusFailed,
		Failure:   serr.Error(),
	}, nil
}

// Cancel pauses a project. In-flight stage work is not interrupted; the
// orchestrator stops chaining once it observes the PAUSED status.
func (o *Orchestrator) Cancel(ctx context.Context, projectID string) (*Outcome, error) {
	unlock := o.locks.acquire(projectID)
	defer unlock()

	st := o.states.Get(ctx, projectID)
	switch st.Status {
	case StatusNotFound:
		return nil, fmt.Errorf("%w: %s", perrors.ErrNotFound, projectID)
	case StatusError:
		return nil, fmt.Errorf("%w: %s", perrors.ErrStoreUnavailable, st.Error)
	}

	prior := st.Status
	if err := o.states.Update(ctx, projectID, map[string]any{"status": StatusPaused}); err != nil {
		return nil, err
	}
	o.appendEvent(ctx, projectID, TimelineEvent{
		EventType:   "project_cancelled",
		Description: "Project cancelled by user request",
		Data:        map[string]any{"previous_status": string(prior)},
	})

	o.logger.Info().Str("project_id", projectID).Str("previous_status", string(prior)).Msg("project cancelled")
	return &Outcome{ProjectID: projectID, Status: StatusPaused}, nil
}

// Resume moves a PAUSED project back to IN_PROGRESS and re-arms the first
// non-completed stage; the caller resubmits it to the runner.
func (o *Orchestrator) Resume(ctx context.Context, projectID string) (*Outcome, error) {
	unlock := o.locks.acquire(projectID)
	defer unlock()

	st := o.states.Get(ctx, projectID)
	switch st.Status {
	case StatusNotFound:
		return nil, fmt.Errorf("%w: %s", perrors.ErrNotFound, projectID)
	case StatusError:
		return nil, fmt.Errorf("%w: %s", perrors.ErrStoreUnavailable, st.Error)
	}
	if st.Status != StatusPaused {
		return nil, fmt.Errorf("%w: project %s is %s, not PAUSED", perrors.ErrInvalidInput, projectID, st.Status)
	}

	// A paused project resumes from its first incomplete stage. A project
	// that failed before pausing stays failed on resume.
	var resumeStage string
	for _, name := range o.registry.Names() {
		rec := st.Stage(name)
		if rec == nil {
			continue
		}
		if rec.Status == StageFailed {
			if err := o.states.Update(ctx, projectID, map[string]any{"status": StatusFailed}); err != nil {
				return nil, err
			}
			return &Outcome{ProjectID: projectID, Status: StatusFailed, Failure: st.Error}, nil
		}
		if rec.Status != StageCompleted {
			resumeStage = name
			break
		}
	}

	if resumeStage == "" {
		// Everything completed before the pause took effect.
		if err := o.states.Update(ctx, projectID, map[string]any{"status": StatusCompleted}); err != nil {
			return nil, err
		}
		return &Outcome{ProjectID: projectID, Status: StatusCompleted}, nil
	}

	if err := o.states.Update(ctx, projectID, map[string]any{
		"stages":        map[string]any{resumeStage: map[string]any{"status": StageInProgress}},
		"current_stage": resumeStage,
		"status":        StatusInProgress,
	}); err != nil {
		return nil, err
	}
	o.appendEvent(ctx, projectID, TimelineEvent{
		EventType:   "project_resumed",
		Description: fmt.Sprintf("Project resumed at stage %s", resumeStage),
		Data:        map[string]any{"stage": resumeStage},
	})

	return &Outcome{ProjectID: projectID, Status: StatusInProgress, NextStage: resumeStage}, nil
}

// Retry re-arms the failed stage of a FAILED project. This is the explicit
// external retry action: nothing transitions out of a failed stage
// automatically, and a retried stage may re-issue external side effects.
func (o *Orchestrator) Retry(ctx context.Context, projectID string) (*Outcome, error) {
	unlock := o.locks.acquire(projectID)
	defer unlock()

	st := o.states.Get(ctx, projectID)
	switch st.Status {
	case StatusNotFound:
		return nil, fmt.Errorf("%w: %s", perrors.ErrNotFound, projectID)
	case StatusError:
		return nil, fmt.Errorf("%w: %s", perrors.ErrStoreUnavailable, st.Error)
	}
	if st.Status != StatusFailed {
		return nil, fmt.Errorf("%w: project %s is %s, not FAILED", perrors.ErrInvalidInput, projectID, st.Status)
	}

	var failed string
	for _, name := range o.registry.Names() {
		if rec := st.Stage(name); rec != nil && rec.Status == StageFailed {
			failed = name
			break
		}
	}
	if failed == "" {
		return nil, fmt.Errorf("%w: project %s is FAILED but no stage record is failed", perrors.ErrInvalidInput, projectID)
	}

	now := time.Now().UTC()
	if err := o.states.Update(ctx, projectID, map[string]any{
		"stages": map[string]any{failed: map[string]any{
			"status":       StageInProgress,
			"started_at":   now,
			"completed_at": nil,
		}},
		"current_stage": failed,
		"status":        StatusInProgress,
		"error":         "",
	}); err != nil {
		return nil, err
	}
	o.appendEvent(ctx, projectID, TimelineEvent{
		EventType:   failed + "_retried",
		Description: fmt.Sprintf("Retrying stage %s", failed),
		Data:        map[string]any{"previous_error": st.Error},
	})

	o.logger.Info().Str("project_id", projectID).Str("stage", failed).Msg("stage retry armed")
	return &Outcome{ProjectID: projectID, Stage: failed, Status: StatusInProgress, NextStage: failed}, nil
}

// Status returns the state document plus the most recent timeline events.
// It never fails for a missing project: the view carries the synthetic
// NOT_FOUND status instead.
func (o *Orchestrator) Status(ctx context.Context, projectID string) *StatusView {
	const recentEvents = 10

	st := o.states.Get(ctx, projectID)
	view := &StatusView{State: *st}
	if st.Status == StatusNotFound {
		return view
	}

	events, err := o.states.ListEvents(ctx, projectID)
	if err != nil {
		o.logger.Warn().Err(err).Str("project_id", projectID).Msg("failed to load recent events")
		return view
	}
	if len(events) > recentEvents {
		events = events[len(events)-recentEvents:]
	}
	view.RecentEvents = events
	return view
}

// Timeline returns the full event timeline, oldest first.
func (o *Orchestrator) Timeline(ctx context.Context, projectID string) ([]TimelineEvent, error) {
	return o.states.ListEvents(ctx, projectID)
}

// Delete removes a project's state document and its timeline.
func (o *Orchestrator) Delete(ctx context.Context, projectID string) error {
	unlock := o.locks.acquire(projectID)
	defer unlock()
	return o.states.Delete(ctx, projectID)
}

// ListActive returns project summaries for operational visibility.
func (o *Orchestrator) ListActive(ctx context.Context, max int) (map[string]Summary, error) {
	return o.states.ListActive(ctx, max)
}

// allOthersCompleted reports whether every stage except the one being
// completed is already completed (the loaded state predates this stage's
// completion write).
func (o *Orchestrator) allOthersCompleted(st *State, completing string) bool {
	for _, name := range o.registry.Names() {
		if name == completing {
			continue
		}
		rec := st.Stage(name)
		if rec == nil || rec.Status != StageCompleted {
			return false
		}
	}
	return true
}

// projectTerminal fans a terminal transition out to the catalog and notifier
// and adjusts the active-projects gauge. Best-effort: failures are logged,
// never propagated into workflow state.
func (o *Orchestrator) projectTerminal(ctx context.Context, projectID string, status ProjectStatus, message string) {
	if o.metrics != nil {
		o.metrics.ProjectsActive.Dec()
	}
	if o.catalog != nil {
		if err := o.catalog.SetWorkflowStatus(ctx, projectID, string(status)); err != nil {
			o.logger.Warn().Err(err).Str("project_id", projectID).Msg("catalog sync failed")
		}
	}
	if o.notifier != nil {
		o.notifier.ProjectTerminal(ctx, projectID, status, message)
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, projectID string, ev TimelineEvent) {
	if err := o.states.AppendEvent(ctx, projectID, ev); err != nil {
		o.logger.Error().Err(err).
			Str("project_id", projectID).
			Str("event_type", ev.EventType).
			Msg("failed to append timeline event")
	}
}
