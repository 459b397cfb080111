package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/auditflow/automation-engine/common/db"
	"github.com/auditflow/automation-engine/common/models"
)

// ErrArtifactNotFound is returned when a job has no artifact yet
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactRepository handles database operations for automation artifacts
type ArtifactRepository struct {
	db *db.DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(database *db.DB) *ArtifactRepository {
	return &ArtifactRepository{db: database}
}

// SaveArtifact upserts the artifact for a job. One artifact per job;
// queue redelivery overwrites in place rather than duplicating.
func (r *ArtifactRepository) SaveArtifact(ctx context.Context, artifact *models.AutomationArtifact) error {
	query := `
		INSERT INTO automation_artifact
			(artifact_id, job_id, name, description, platform, workflow_json, instructions, strategy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (job_id) DO UPDATE SET
			name          = EXCLUDED.name,
			description   = EXCLUDED.description,
			platform      = EXCLUDED.platform,
			workflow_json = EXCLUDED.workflow_json,
			instructions  = EXCLUDED.instructions,
			strategy      = EXCLUDED.strategy,
			updated_at    = now()
	`

	_, err := r.db.Exec(
		ctx,
		query,
		artifact.ArtifactID,
		artifact.JobID,
		artifact.Name,
		artifact.Description,
		artifact.Platform,
		artifact.WorkflowJSON,
		artifact.Instructions,
		artifact.Strategy,
	)

	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}

	return nil
}

// GetByJobID retrieves the artifact produced for a job
func (r *ArtifactRepository) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.AutomationArtifact, error) {
	query := `
		SELECT artifact_id, job_id, name, description, platform, workflow_json, instructions, strategy, created_at, updated_at
		FROM automation_artifact
		WHERE job_id = $1
	`

	artifact := &models.AutomationArtifact{}
	err := r.db.QueryRow(ctx, query, jobID).Scan(
		&artifact.ArtifactID,
		&artifact.JobID,
		&artifact.Name,
		&artifact.Description,
		&artifact.Platform,
		&artifact.WorkflowJSON,
		&artifact.Instructions,
		&artifact.Strategy,
		&artifact.CreatedAt,
		&artifact.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return artifact, nil
}
