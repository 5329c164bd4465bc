package mgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogsmith/blogsmith/internal/catalog"
	"github.com/blogsmith/blogsmith/internal/health"
	"github.com/blogsmith/blogsmith/internal/metrics"
	"github.com/blogsmith/blogsmith/internal/store"
	"github.com/blogsmith/blogsmith/internal/workflow"
)

// testStack wires the full management stack over an in-memory database.
// Stage behavior can be overridden per stage name before a project starts.
type testStack struct {
	server *Server
	orch   *workflow.Orchestrator
	runner *workflow.Runner

	mu     sync.Mutex
	stages map[string]func(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error)
}

func (ts *testStack) setStage(name string, fn func(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.stages[name] = fn
}

func (ts *testStack) stageFn(name string) func(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.stages[name]
}

func newTestStack(t *testing.T, auth AuthConfig) *testStack {
	t.Helper()
	logger := zerolog.Nop()

	ds, err := store.New(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	registry := workflow.DefaultRegistry()
	states := workflow.NewSQLiteStateStore(ds, logger)
	orch := workflow.New(states, registry, logger)

	ts := &testStack{
		orch:   orch,
		stages: make(map[string]func(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error)),
	}

	for _, name := range registry.Names() {
		name := name
		require.NoError(t, orch.RegisterExecutor(workflow.ExecutorFunc{
			StageName: name,
			Fn: func(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error) {
				if fn := ts.stageFn(name); fn != nil {
					return fn(ctx, in)
				}
				return &workflow.StageResult{
					Payload: map[string]any{"stage": name},
					Summary: name + " finished",
				}, nil
			},
		}))
	}

	projects := catalog.NewStore(ds, logger)
	orch.SetCatalog(projects)

	runner := workflow.NewRunner(workflow.RunnerConfig{Workers: 2, QueueSize: 32}, orch, logger)
	runner.Start(context.Background())
	t.Cleanup(runner.Stop)
	ts.runner = runner

	checker := health.NewChecker(logger)
	checker.Register("sqlite", func(ctx context.Context) health.Status {
		if err := ds.Ping(); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	handlers := NewHandlers(runner, orch, projects, checker, logger)
	ts.server = NewServer(ServerConfig{AuthConfig: auth}, handlers, metrics.New(), logger)
	return ts
}

func newOpenStack(t *testing.T) *testStack {
	return newTestStack(t, AuthConfig{Mode: "none"})
}

func (ts *testStack) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.server.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (ts *testStack) waitForStatus(t *testing.T, projectID string, want workflow.ProjectStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		view := ts.orch.Status(context.Background(), projectID)
		return view.Status == want
	}, 5*time.Second, 10*time.Millisecond, "project %s never reached %s", projectID, want)
}

func TestCreateProjectRunsToCompletion(t *testing.T) {
	ts := newOpenStack(t)

	resp := ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{
		ID:    "proj-1",
		Name:  "Garden Blog",
		Topic: "urban gardening",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	created := decodeBody[CreateProjectResponse](t, resp)
	assert.Equal(t, "proj-1", created.Project.ID)
	assert.Equal(t, "urban gardening", created.Project.Topic)
	require.NotNil(t, created.Workflow)
	assert.Equal(t, workflow.StatusInitializing, created.Workflow.Status)

	ts.waitForStatus(t, "proj-1", workflow.StatusCompleted)

	resp = ts.do(t, "GET", "/api/v1/projects/proj-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status := decodeBody[ProjectStatusResponse](t, resp)
	assert.Equal(t, workflow.StatusCompleted, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.False(t, status.Running)
}

func TestCreateProjectValidation(t *testing.T) {
	ts := newOpenStack(t)

	resp := ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{Name: "no topic"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decodeBody[ProblemDetail](t, resp)
	assert.Equal(t, "invalid_request", problem.Type)
}

func TestCreateProjectDuplicateConflicts(t *testing.T) {
	ts := newOpenStack(t)

	resp := ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{ID: "dup", Topic: "sourdough"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ts.waitForStatus(t, "dup", workflow.StatusCompleted)

	resp = ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{ID: "dup", Topic: "sourdough"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	problem := decodeBody[ProblemDetail](t, resp)
	assert.Equal(t, "conflict", problem.Type)
}

func TestCreateProjectRollsBackCatalogOnWorkflowConflict(t *testing.T) {
	ts := newOpenStack(t)

	// Workflow state exists for the id but no catalog row does.
	_, err := ts.orch.Start(context.Background(), "stray", "beekeeping", nil)
	require.NoError(t, err)

	resp := ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{ID: "stray", Topic: "beekeeping"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// The catalog row created by the failed request must not linger.
	resp = ts.do(t, "GET", "/api/v1/projects", nil)
	list := decodeBody[ProjectListResponse](t, resp)
	assert.Equal(t, 0, list.Count)

	resp = ts.do(t, "GET", "/api/v1/projects?include_archived=true", nil)
	list = decodeBody[ProjectListResponse](t, resp)
	assert.Equal(t, 1, list.Count)
}

func TestGetProjectMissing(t *testing.T) {
	ts := newOpenStack(t)

	resp := ts.do(t, "GET", "/api/v1/projects/ghost", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	problem := decodeBody[ProblemDetail](t, resp)
	assert.Equal(t, "project_not_found", problem.Type)
	assert.Equal(t, "/api/v1/projects/ghost", problem.Instance)
}

func TestListProjects(t *testing.T) {
	ts := newOpenStack(t)

	for i := 0; i < 3; i++ {
		resp := ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{
			ID:    fmt.Sprintf("list-%d", i),
			Topic: "topic",
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	for i := 0; i < 3; i++ {
		ts.waitForStatus(t, fmt.Sprintf("list-%d", i), workflow.StatusCompleted)
	}

	resp := ts.do(t, "GET", "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decodeBody[ProjectListResponse](t, resp)
	assert.Equal(t, 3, list.Count)
	assert.Len(t, list.Projects, 3)
}

func TestTimelineEndpoint(t *testing.T) {
	ts := newOpenStack(t)

	resp := ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{ID: "tl", Topic: "espresso"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ts.waitForStatus(t, "tl", workflow.StatusCompleted)

	resp = ts.do(t, "GET", "/api/v1/projects/tl/timeline", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	timeline := decodeBody[TimelineResponse](t, resp)
	assert.Equal(t, "tl", timeline.ProjectID)
	require.NotEmpty(t, timeline.Events)
	assert.Equal(t, "project_started", timeline.Events[0].EventType)
	assert.Equal(t, "project_completed", timeline.Events[len(timeline.Events)-1].EventType)

	resp = ts.do(t, "GET", "/api/v1/projects/ghost/timeline", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelAndResume(t *testing.T) {
	ts := newOpenStack(t)

	gate := make(chan struct{})
	ts.setStage(workflow.StageTopicAnalysis, func(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error) {
		<-gate
		return &workflow.StageResult{Payload: map[string]any{"ok": true}}, nil
	})

	resp := ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{ID: "pause-me", Topic: "bonsai"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/v1/projects/pause-me/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	outcome := decodeBody[OutcomeResponse](t, resp)
	assert.Equal(t, workflow.StatusPaused, outcome.Outcome.Status)

	// Let the in-flight stage finish; the project must stay paused.
	close(gate)
	require.Eventually(t, func() bool { return !ts.runner.Busy("pause-me") },
		5*time.Second, 10*time.Millisecond)
	view := ts.orch.Status(context.Background(), "pause-me")
	assert.Equal(t, workflow.StatusPaused, view.Status)

	resp = ts.do(t, "POST", "/api/v1/projects/pause-me/resume", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ts.waitForStatus(t, "pause-me", workflow.StatusCompleted)
}

func TestRetryEndpoint(t *testing.T) {
	ts := newOpenStack(t)

	var attempts int
	var mu sync.Mutex
	ts.setStage(workflow.StageNicheResearch, func(ctx context.Context, in workflow.StageInput) (*workflow.StageResult, error) {
		mu.Lock()
		attempts++
		first := attempts == 1
		mu.Unlock()
		if first {
			return nil, fmt.Errorf("keyword service unreachable")
		}
		return &workflow.StageResult{Payload: map[string]any{"ok": true}}, nil
	})

	resp := ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{ID: "flaky", Topic: "homebrewing"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ts.waitForStatus(t, "flaky", workflow.StatusFailed)

	resp = ts.do(t, "POST", "/api/v1/projects/flaky/retry", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	outcome := decodeBody[OutcomeResponse](t, resp)
	assert.Equal(t, workflow.StageNicheResearch, outcome.Outcome.NextStage)

	ts.waitForStatus(t, "flaky", workflow.StatusCompleted)
}

func TestRetryRequiresFailedProject(t *testing.T) {
	ts := newOpenStack(t)

	resp := ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{ID: "fine", Topic: "kayaking"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ts.waitForStatus(t, "fine", workflow.StatusCompleted)

	resp = ts.do(t, "POST", "/api/v1/projects/fine/retry", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteProject(t *testing.T) {
	ts := newOpenStack(t)

	resp := ts.do(t, "POST", "/api/v1/projects", CreateProjectRequest{ID: "gone", Topic: "origami"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ts.waitForStatus(t, "gone", workflow.StatusCompleted)

	resp = ts.do(t, "DELETE", "/api/v1/projects/gone", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/v1/projects/gone", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Archived catalog rows drop out of the default listing.
	resp = ts.do(t, "GET", "/api/v1/projects", nil)
	list := decodeBody[ProjectListResponse](t, resp)
	assert.Equal(t, 0, list.Count)

	resp = ts.do(t, "GET", "/api/v1/projects?include_archived=true", nil)
	list = decodeBody[ProjectListResponse](t, resp)
	assert.Equal(t, 1, list.Count)

	resp = ts.do(t, "DELETE", "/api/v1/projects/gone", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProbeAndHealthEndpoints(t *testing.T) {
	ts := newOpenStack(t)

	resp := ts.do(t, "GET", "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "GET", "/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	detail := decodeBody[HealthDetailResponse](t, resp)
	assert.Equal(t, "ok", detail.Status)
	assert.Equal(t, "ok", detail.Integrations["sqlite"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newOpenStack(t)

	resp := ts.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	ts := newOpenStack(t)

	resp := ts.do(t, "GET", "/healthz", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest("GET", "/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-abc")
	resp, err = ts.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-abc", resp.Header.Get("X-Request-ID"))
}
