package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
)

type stageJob struct {
	projectID string
	stage     string
}

// RunnerConfig holds configuration for the background runner.
type RunnerConfig struct {
	Workers   int
	QueueSize int
	// StageTimeout bounds a single stage execution. Zero means the default.
	StageTimeout time.Duration
}

// Runner executes stages on a worker pool and chains each completed stage
// into the next one. At most one stage per project is in flight at a time;
// the chain itself provides that ordering, and the busy set rejects
// concurrent external submissions for the same project.
type Runner struct {
	orch    *Orchestrator
	queue   chan stageJob
	workers int
	timeout time.Duration
	logger  zerolog.Logger

	busyMu sync.Mutex
	busy   map[string]bool

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewRunner creates a runner over the orchestrator.
func NewRunner(cfg RunnerConfig, orch *Orchestrator, logger zerolog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 10 * time.Minute
	}
	return &Runner{
		orch:    orch,
		queue:   make(chan stageJob, cfg.QueueSize),
		workers: cfg.Workers,
		timeout: cfg.StageTimeout,
		busy:    make(map[string]bool),
		logger:  logger.With().Str("component", "workflow.runner").Logger(),
	}
}

// Start launches worker goroutines.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return // already running
	}

	ctx, r.cancel = context.WithCancel(ctx)

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}

	r.logger.Info().Int("workers", r.workers).Msg("workflow runner started")
}

// Stop shuts the runner down and waits for in-flight stages to finish.
func (r *Runner) Stop() {
	if !r.running.Swap(false) {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info().Msg("workflow runner stopped")
}

// StartProject creates state for a new project and submits its first stage.
func (r *Runner) StartProject(ctx context.Context, projectID, topic string, preferences map[string]any) (*Outcome, error) {
	out, err := r.orch.Start(ctx, projectID, topic, preferences)
	if err != nil {
		return nil, err
	}
	if err := r.submit(out.ProjectID, out.NextStage); err != nil {
		return out, err
	}
	return out, nil
}

// Resume resumes a paused project and resubmits its next stage.
func (r *Runner) Resume(ctx context.Context, projectID string) (*Outcome, error) {
	out, err := r.orch.Resume(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if out.NextStage != "" {
		if err := r.submit(out.ProjectID, out.NextStage); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Retry re-arms the failed stage of a FAILED project and resubmits it.
func (r *Runner) Retry(ctx context.Context, projectID string) (*Outcome, error) {
	out, err := r.orch.Retry(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if out.NextStage != "" {
		if err := r.submit(out.ProjectID, out.NextStage); err != nil {
			return out, err
		}
	}
	return out, nil
}

// submit enqueues a stage job unless the project already has one in flight.
func (r *Runner) submit(projectID, stage string) error {
	if !r.running.Load() {
		return fmt.Errorf("%w: runner is not started", perrors.ErrInvalidInput)
	}

	r.busyMu.Lock()
	if r.busy[projectID] {
		r.busyMu.Unlock()
		return fmt.Errorf("%w: project %s already has a stage in flight", perrors.ErrConflict, projectID)
	}
	r.busy[projectID] = true
	r.busyMu.Unlock()

	select {
	case r.queue <- stageJob{projectID: projectID, stage: stage}:
		r.logger.Info().Str("project_id", projectID).Str("stage", stage).Msg("stage enqueued")
		return nil
	default:
		r.clearBusy(projectID)
		return fmt.Errorf("%w: stage queue is full", perrors.ErrStoreUnavailable)
	}
}

// chain re-enqueues the next stage of a project that already holds the busy
// flag, bypassing the external-submission check.
func (r *Runner) chain(projectID, stage string) {
	select {
	case r.queue <- stageJob{projectID: projectID, stage: stage}:
	default:
		// Queue full mid-pipeline; drop the busy flag so a later resume can
		// pick the project back up.
		r.clearBusy(projectID)
		r.logger.Error().
			Str("project_id", projectID).
			Str("stage", stage).
			Msg("stage queue full, pipeline halted")
	}
}

func (r *Runner) clearBusy(projectID string) {
	r.busyMu.Lock()
	delete(r.busy, projectID)
	r.busyMu.Unlock()
}

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.logger.With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("worker stopping")
			return
		case job := <-r.queue:
			r.runJob(ctx, job, log)
		}
	}
}

func (r *Runner) runJob(ctx context.Context, job stageJob, log zerolog.Logger) {
	stageCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.orch.RunStage(stageCtx, job.projectID, job.stage)
	if err != nil {
		r.clearBusy(job.projectID)
		log.Error().Err(err).
			Str("project_id", job.projectID).
			Str("stage", job.stage).
			Msg("stage run aborted")
		return
	}

	if out.NextStage != "" {
		r.chain(job.projectID, out.NextStage)
		return
	}
	r.clearBusy(job.projectID)
}

// Busy reports whether a project has a stage in flight or queued.
func (r *Runner) Busy(projectID string) bool {
	r.busyMu.Lock()
	defer r.busyMu.Unlock()
	return r.busy[projectID]
}
