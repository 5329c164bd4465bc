package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.RecordStage("topic_analysis", "completed")
	m.RecordStage("niche_research", "failed")
	m.ObserveStageDuration("topic_analysis", 1.5)
	m.ProjectsActive.Set(2)
	m.RecordError("site", "deploy")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `pipeline_stages_total{outcome="completed",stage="topic_analysis"} 1`)
	assert.Contains(t, body, `pipeline_stages_total{outcome="failed",stage="niche_research"} 1`)
	assert.Contains(t, body, "pipeline_projects_active 2")
	assert.Contains(t, body, `pipeline_errors_total{module="site",type="deploy"} 1`)
}
