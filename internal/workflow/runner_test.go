package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
)

func newTestRunner(t *testing.T, p *testPipeline) *Runner {
	t.Helper()
	r := NewRunner(RunnerConfig{Workers: 2, QueueSize: 32, StageTimeout: 5 * time.Second}, p.orch, zerolog.Nop())
	r.Start(context.Background())
	t.Cleanup(r.Stop)
	return r
}

func waitForStatus(t *testing.T, p *testPipeline, projectID string, want ProjectStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.orch.Status(context.Background(), projectID).Status == want
	}, 5*time.Second, 10*time.Millisecond, "project %s never reached %s", projectID, want)
}

func TestRunnerDrivesPipelineToCompletion(t *testing.T) {
	p := newTestPipeline(t)
	r := newTestRunner(t, p)
	ctx := context.Background()

	out, err := r.StartProject(ctx, "proj-1", "solar balcony setups", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusInitializing, out.Status)

	waitForStatus(t, p, "proj-1", StatusCompleted)

	st := p.orch.Status(ctx, "proj-1")
	assert.Equal(t, 100, st.Progress)
	assert.Len(t, st.Results, 6)

	require.Eventually(t, func() bool { return !r.Busy("proj-1") },
		time.Second, 10*time.Millisecond)
}

func TestRunnerStopsChainOnFailure(t *testing.T) {
	p := newTestPipeline(t)
	p.failures[StageContentCreation] = errors.New("generation backend down")
	r := newTestRunner(t, p)
	ctx := context.Background()

	_, err := r.StartProject(ctx, "proj-1", "topic", nil)
	require.NoError(t, err)

	waitForStatus(t, p, "proj-1", StatusFailed)

	st := p.orch.Status(ctx, "proj-1")
	assert.Equal(t, StageFailed, st.Stage(StageContentCreation).Status)
	assert.Equal(t, StagePending, st.Stage(StageSiteGeneration).Status)

	// Retry clears the failure and drives the rest of the pipeline.
	delete(p.failures, StageContentCreation)
	require.Eventually(t, func() bool { return !r.Busy("proj-1") },
		time.Second, 10*time.Millisecond)
	_, err = r.Retry(ctx, "proj-1")
	require.NoError(t, err)

	waitForStatus(t, p, "proj-1", StatusCompleted)
}

func TestRunnerRejectsConcurrentSubmission(t *testing.T) {
	p := newTestPipeline(t)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.orch.RegisterExecutor(ExecutorFunc{
		StageName: StageTopicAnalysis,
		Fn: func(_ context.Context, _ StageInput) (*StageResult, error) {
			close(started)
			<-release
			return &StageResult{Payload: map[string]any{}}, nil
		},
	}))
	r := newTestRunner(t, p)
	ctx := context.Background()

	_, err := r.StartProject(ctx, "proj-1", "topic", nil)
	require.NoError(t, err)
	<-started

	// The project already has a stage in flight.
	err = r.submit("proj-1", StageNicheResearch)
	require.Error(t, err)
	assert.True(t, perrors.IsConflict(err))

	close(release)
	waitForStatus(t, p, "proj-1", StatusCompleted)
}

func TestRunnerResumeAfterCancel(t *testing.T) {
	p := newTestPipeline(t)
	gate := make(chan struct{})
	require.NoError(t, p.orch.RegisterExecutor(ExecutorFunc{
		StageName: StageNicheResearch,
		Fn: func(_ context.Context, in StageInput) (*StageResult, error) {
			<-gate
			return &StageResult{Payload: map[string]any{"stage": StageNicheResearch}}, nil
		},
	}))
	r := newTestRunner(t, p)
	ctx := context.Background()

	_, err := r.StartProject(ctx, "proj-1", "topic", nil)
	require.NoError(t, err)

	// Cancel while niche_research blocks; the in-flight stage finishes but
	// nothing chains past it.
	require.Eventually(t, func() bool {
		return p.orch.Status(ctx, "proj-1").CurrentStage == StageNicheResearch
	}, 5*time.Second, 10*time.Millisecond)
	_, err = p.orch.Cancel(ctx, "proj-1")
	require.NoError(t, err)
	close(gate)

	waitForStatus(t, p, "proj-1", StatusPaused)
	require.Eventually(t, func() bool { return !r.Busy("proj-1") },
		time.Second, 10*time.Millisecond)
	st := p.orch.Status(ctx, "proj-1")
	assert.Equal(t, StageCompleted, st.Stage(StageNicheResearch).Status)
	assert.Equal(t, StagePending, st.Stage(StageContentPlanning).Status)

	_, err = r.Resume(ctx, "proj-1")
	require.NoError(t, err)
	waitForStatus(t, p, "proj-1", StatusCompleted)
}

func TestRunnerRequiresStart(t *testing.T) {
	p := newTestPipeline(t)
	r := NewRunner(RunnerConfig{}, p.orch, zerolog.Nop())

	_, err := r.StartProject(context.Background(), "proj-1", "topic", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}
