package container

import (
	"github.com/auditflow/automation-engine/cmd/intake-api/service"
	"github.com/auditflow/automation-engine/common/bootstrap"
	"github.com/auditflow/automation-engine/common/ratelimit"
	"github.com/auditflow/automation-engine/common/repository"
)

// Container holds all initialized services and repositories
type Container struct {
	Components *bootstrap.Components

	JobRepo      *repository.JobRepository
	ArtifactRepo *repository.ArtifactRepository

	Intake  *service.IntakeService
	Limiter *ratelimit.Limiter
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	jobRepo := repository.NewJobRepository(components.DB)
	artifactRepo := repository.NewArtifactRepository(components.DB)

	intake := service.NewIntakeService(
		jobRepo,
		artifactRepo,
		components.Queue,
		components.Config.Queue.Stream,
		components.Logger,
	)

	return &Container{
		Components:   components,
		JobRepo:      jobRepo,
		ArtifactRepo: artifactRepo,
		Intake:       intake,
		Limiter:      ratelimit.NewLimiter(ratelimit.SystemClock(), components.Logger),
	}, nil
}
