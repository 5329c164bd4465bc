package mgmt

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/blogsmith/blogsmith/internal/catalog"
	perrors "github.com/blogsmith/blogsmith/internal/errors"
	"github.com/blogsmith/blogsmith/internal/health"
	"github.com/blogsmith/blogsmith/internal/workflow"
)

// Handlers implements the management API endpoints.
type Handlers struct {
	runner    *workflow.Runner
	orch      *workflow.Orchestrator
	projects  *catalog.Store
	checker   *health.Checker
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates the handler set for the management API.
func NewHandlers(
	runner *workflow.Runner,
	orch *workflow.Orchestrator,
	projects *catalog.Store,
	checker *health.Checker,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		runner:    runner,
		orch:      orch,
		projects:  projects,
		checker:   checker,
		logger:    logger.With().Str("component", "mgmt_handlers").Logger(),
		startTime: time.Now(),
	}
}

// CreateProject handles POST /api/v1/projects. It registers the project in
// the catalog, creates the workflow state, and queues the first stage.
func (h *Handlers) CreateProject(c *fiber.Ctx) error {
	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_request", "Bad Request",
			"Request body must be valid JSON")
	}

	if req.Topic == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_request", "Bad Request",
			"topic is required")
	}

	project, err := h.projects.CreateProject(c.Context(), catalog.CreateProjectInput{
		ID:          req.ID,
		Name:        req.Name,
		Client:      req.Client,
		Description: req.Description,
		Topic:       req.Topic,
	})
	if err != nil {
		return h.problemFromError(c, err)
	}

	outcome, err := h.runner.StartProject(c.Context(), project.ID, req.Topic, req.Preferences)
	if err != nil {
		// Don't leave a catalog row with no workflow behind it.
		if archiveErr := h.projects.ArchiveProject(c.Context(), project.ID); archiveErr != nil {
			h.logger.Warn().Err(archiveErr).Str("project_id", project.ID).
				Msg("rolling back catalog record failed")
		}
		return h.problemFromError(c, err)
	}

	h.logger.Info().
		Str("project_id", project.ID).
		Str("topic", req.Topic).
		Msg("project created")

	return c.Status(fiber.StatusAccepted).JSON(CreateProjectResponse{
		Project:  project,
		Workflow: outcome,
	})
}

// ListProjects handles GET /api/v1/projects.
func (h *Handlers) ListProjects(c *fiber.Ctx) error {
	includeArchived := c.QueryBool("include_archived", false)

	projects, err := h.projects.ListProjects(c.Context(), includeArchived)
	if err != nil {
		return h.problemFromError(c, err)
	}

	active, err := h.orch.ListActive(c.Context(), 100)
	if err != nil {
		h.logger.Warn().Err(err).Msg("listing active workflows failed")
		active = nil
	}

	return c.JSON(ProjectListResponse{
		Projects: projects,
		Active:   active,
		Count:    len(projects),
	})
}

// GetProject handles GET /api/v1/projects/:id.
func (h *Handlers) GetProject(c *fiber.Ctx) error {
	id := c.Params("id")

	view := h.orch.Status(c.Context(), id)
	switch view.Status {
	case workflow.StatusNotFound:
		return problemResponse(c, fiber.StatusNotFound,
			"project_not_found", "Not Found",
			"No project with id "+id)
	case workflow.StatusError:
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"store_unavailable", "Service Unavailable",
			"Workflow state store is unavailable")
	}

	return c.JSON(ProjectStatusResponse{
		StatusView: view,
		Running:    h.runner.Busy(id),
	})
}

// GetTimeline handles GET /api/v1/projects/:id/timeline.
func (h *Handlers) GetTimeline(c *fiber.Ctx) error {
	id := c.Params("id")

	events, err := h.orch.Timeline(c.Context(), id)
	if err != nil {
		return h.problemFromError(c, err)
	}

	return c.JSON(TimelineResponse{
		ProjectID: id,
		Events:    events,
		Count:     len(events),
	})
}

// CancelProject handles POST /api/v1/projects/:id/cancel.
func (h *Handlers) CancelProject(c *fiber.Ctx) error {
	id := c.Params("id")

	outcome, err := h.orch.Cancel(c.Context(), id)
	if err != nil {
		return h.problemFromError(c, err)
	}

	h.logger.Info().Str("project_id", id).Msg("project cancelled")
	return c.JSON(OutcomeResponse{Outcome: outcome})
}

// ResumeProject handles POST /api/v1/projects/:id/resume.
func (h *Handlers) ResumeProject(c *fiber.Ctx) error {
	id := c.Params("id")

	outcome, err := h.runner.Resume(c.Context(), id)
	if err != nil {
		return h.problemFromError(c, err)
	}

	h.logger.Info().Str("project_id", id).Msg("project resumed")
	return c.Status(fiber.StatusAccepted).JSON(OutcomeResponse{Outcome: outcome})
}

// RetryProject handles POST /api/v1/projects/:id/retry.
func (h *Handlers) RetryProject(c *fiber.Ctx) error {
	id := c.Params("id")

	outcome, err := h.runner.Retry(c.Context(), id)
	if err != nil {
		return h.problemFromError(c, err)
	}

	h.logger.Info().Str("project_id", id).Msg("failed stage requeued")
	return c.Status(fiber.StatusAccepted).JSON(OutcomeResponse{Outcome: outcome})
}

// DeleteProject handles DELETE /api/v1/projects/:id. The workflow state and
// timeline are removed; the catalog record is archived, not deleted.
func (h *Handlers) DeleteProject(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.orch.Delete(c.Context(), id); err != nil {
		return h.problemFromError(c, err)
	}

	if err := h.projects.ArchiveProject(c.Context(), id); err != nil && !perrors.IsNotFound(err) {
		h.logger.Warn().Err(err).Str("project_id", id).Msg("archiving catalog record failed")
	}

	h.logger.Info().Str("project_id", id).Msg("project deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.Context())

	integrations := make(map[string]string, len(results))
	overall := "ok"
	for name, status := range results {
		integrations[name] = string(status)
		if status == health.StatusDown {
			overall = "degraded"
		}
	}

	uptime := time.Since(h.startTime).Round(time.Second).String()

	return c.JSON(HealthDetailResponse{
		Status:       overall,
		Integrations: integrations,
		Uptime:       uptime,
		Version:      "1.0.0",
	})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	ready := h.checker.IsReady(c.Context())
	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// problemFromError maps domain errors to RFC 7807 responses.
func (h *Handlers) problemFromError(c *fiber.Ctx, err error) error {
	switch {
	case perrors.IsConflict(err):
		return problemResponse(c, fiber.StatusConflict,
			"conflict", "Conflict", err.Error())
	case perrors.IsNotFound(err):
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found", err.Error())
	case errors.Is(err, perrors.ErrInvalidInput):
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_request", "Bad Request", err.Error())
	case errors.Is(err, perrors.ErrStoreUnavailable):
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"store_unavailable", "Service Unavailable", err.Error())
	default:
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return problemResponse(c, fiber.StatusInternalServerError,
			"internal_error", "Internal Server Error",
			"An internal error occurred")
	}
}
