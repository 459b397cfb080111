package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/auditflow/automation-engine/cmd/intake-api/container"
	"github.com/auditflow/automation-engine/cmd/intake-api/handlers"
	"github.com/auditflow/automation-engine/common/middleware"
)

// RegisterJobRoutes registers the job intake and status routes
func RegisterJobRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewJobHandler(c.Components, c.Intake)
	limits := c.Components.Config.Limits

	jobs := e.Group("/api/v1/jobs")
	jobs.Use(middleware.GlobalRateLimit(c.Limiter, int64(limits.GlobalRequests), limits.IntakeWindow))
	{
		// Enqueue is the expensive path; it carries the per-client limit
		jobs.POST("", h.CreateJob,
			middleware.ClientRateLimit(c.Limiter, int64(limits.IntakeRequests), limits.IntakeWindow))
		jobs.GET("", h.ListJobs)                    // GET /api/v1/jobs?limit=20
		jobs.GET("/:id", h.GetJob)                  // GET /api/v1/jobs/{job_id}
		jobs.GET("/:id/artifact", h.GetJobArtifact) // GET /api/v1/jobs/{job_id}/artifact
	}
}
