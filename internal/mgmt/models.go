package mgmt

import (
	"github.com/blogsmith/blogsmith/internal/catalog"
	"github.com/blogsmith/blogsmith/internal/workflow"
)

// ProblemDetail is an RFC 7807 error response body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// CreateProjectRequest is the body of POST /api/v1/projects.
type CreateProjectRequest struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name,omitempty"`
	Client      string         `json:"client,omitempty"`
	Description string         `json:"description,omitempty"`
	Topic       string         `json:"topic"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// CreateProjectResponse pairs the catalog record with the workflow outcome.
type CreateProjectResponse struct {
	Project  *catalog.Project  `json:"project"`
	Workflow *workflow.Outcome `json:"workflow"`
}

// ProjectListResponse is the body of GET /api/v1/projects.
type ProjectListResponse struct {
	Projects []*catalog.Project          `json:"projects"`
	Active   map[string]workflow.Summary `json:"active,omitempty"`
	Count    int                         `json:"count"`
}

// ProjectStatusResponse is the body of GET /api/v1/projects/:id.
type ProjectStatusResponse struct {
	*workflow.StatusView
	Running bool `json:"running"`
}

// TimelineResponse is the body of GET /api/v1/projects/:id/timeline.
type TimelineResponse struct {
	ProjectID string                   `json:"project_id"`
	Events    []workflow.TimelineEvent `json:"events"`
	Count     int                      `json:"count"`
}

// OutcomeResponse wraps a workflow outcome for the control endpoints.
type OutcomeResponse struct {
	Outcome *workflow.Outcome `json:"outcome"`
}

// HealthDetailResponse is the body of GET /api/v1/health.
type HealthDetailResponse struct {
	Status       string            `json:"status"`
	Integrations map[string]string `json:"integrations"`
	Uptime       string            `json:"uptime"`
	Version      string            `json:"version"`
}
