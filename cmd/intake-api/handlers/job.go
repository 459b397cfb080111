package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/auditflow/automation-engine/cmd/intake-api/service"
	"github.com/auditflow/automation-engine/common/bootstrap"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/repository"
)

// JobHandler handles job intake and status operations
type JobHandler struct {
	components *bootstrap.Components
	intake     *service.IntakeService
}

// NewJobHandler creates a new job handler
func NewJobHandler(components *bootstrap.Components, intake *service.IntakeService) *JobHandler {
	return &JobHandler{
		components: components,
		intake:     intake,
	}
}

// jobResponse is the status shape returned for a single job
type jobResponse struct {
	JobID        uuid.UUID                 `json:"job_id"`
	Status       models.JobStatus          `json:"status"`
	Progress     int                       `json:"progress"`
	ErrorMessage *string                   `json:"error_message,omitempty"`
	Workflow     *models.GeneratedWorkflow `json:"workflow,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

func toJobResponse(job *models.AutomationJob, includeWorkflow bool) jobResponse {
	resp := jobResponse{
		JobID:        job.JobID,
		Status:       job.Status,
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	if includeWorkflow {
		resp.Workflow = job.Workflow
	}
	return resp
}

// CreateJob enqueues a generation job
// POST /api/v1/jobs
func (h *JobHandler) CreateJob(c echo.Context) error {
	var req service.EnqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	job, created, err := h.intake.Enqueue(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.components.Logger.Error("enqueue failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue job")
	}

	// Replayed ids return the existing row instead of a new accept
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	return c.JSON(status, toJobResponse(job, false))
}

// GetJob returns the job status, including the workflow once completed
// GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c echo.Context) error {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid job id format")
	}

	job, err := h.intake.GetJob(c.Request().Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		h.components.Logger.Error("failed to get job", "job_id", jobID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get job")
	}

	return c.JSON(http.StatusOK, toJobResponse(job, true))
}

// ListJobs returns recent jobs, newest first
// GET /api/v1/jobs?limit=20
func (h *JobHandler) ListJobs(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	jobs, err := h.intake.ListJobs(c.Request().Context(), limit)
	if err != nil {
		h.components.Logger.Error("failed to list jobs", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list jobs")
	}

	responses := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, toJobResponse(job, false))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs":  responses,
		"count": len(responses),
	})
}

// GetJobArtifact returns the finished deliverable for a completed job
// GET /api/v1/jobs/:id/artifact
func (h *JobHandler) GetJobArtifact(c echo.Context) error {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid job id format")
	}

	artifact, err := h.intake.GetArtifact(c.Request().Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrArtifactNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no artifact for this job")
		}
		h.components.Logger.Error("failed to get artifact", "job_id", jobID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get artifact")
	}

	return c.JSON(http.StatusOK, artifact)
}
