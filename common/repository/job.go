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

// ErrJobNotFound is returned when a job id has no row
var ErrJobNotFound = errors.New("job not found")

// JobRepository handles database operations for automation jobs
type JobRepository struct {
	db *db.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(database *db.DB) *JobRepository {
	return &JobRepository{db: database}
}

// Create inserts a new automation job in queued state
func (r *JobRepository) Create(ctx context.Context, job *models.AutomationJob) error {
	query := `
		INSERT INTO automation_job (job_id, status, progress, input, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		job.JobID,
		job.Status,
		job.Progress,
		job.Input,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID
func (r *JobRepository) GetByID(ctx context.Context, jobID uuid.UUID) (*models.AutomationJob, error) {
	query := `
		SELECT job_id, status, progress, input, workflow, error_message, created_at, updated_at
		FROM automation_job
		WHERE job_id = $1
	`

	job := &models.AutomationJob{}
	err := r.db.QueryRow(ctx, query, jobID).Scan(
		&job.JobID,
		&job.Status,
		&job.Progress,
		&job.Input,
		&job.Workflow,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// UpdateProgress writes a progress checkpoint. Writes are idempotent and
// forward-only: progress never decreases, terminal rows never change, and
// repeating a checkpoint is a no-op. A missing job id is an error.
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID uuid.UUID, progress int, status models.JobStatus, errorMessage *string) error {
	query := `
		UPDATE automation_job
		SET status = $2,
		    progress = GREATEST(progress, $3),
		    error_message = COALESCE($4, error_message),
		    updated_at = now()
		WHERE job_id = $1
		  AND status NOT IN ('completed', 'failed')
	`

	tag, err := r.db.Exec(ctx, query, jobID, status, progress, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either the job is already terminal (fine, redelivery) or it
		// never existed (caller bug)
		exists, err := r.exists(ctx, jobID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("update progress for %s: %w", jobID, ErrJobNotFound)
		}
	}

	return nil
}

// SetWorkflow attaches the generated workflow payload to a job still in
// flight. Terminal rows are left untouched.
func (r *JobRepository) SetWorkflow(ctx context.Context, jobID uuid.UUID, workflow *models.GeneratedWorkflow) error {
	query := `
		UPDATE automation_job
		SET workflow = $2, updated_at = now()
		WHERE job_id = $1
		  AND status = 'processing'
	`

	_, err := r.db.Exec(ctx, query, jobID, workflow)
	if err != nil {
		return fmt.Errorf("failed to set job workflow: %w", err)
	}

	return nil
}

// ListRecent retrieves the most recently created jobs
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*models.AutomationJob, error) {
	query := `
		SELECT job_id, status, progress, input, workflow, error_message, created_at, updated_at
		FROM automation_job
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.AutomationJob
	for rows.Next() {
		job := &models.AutomationJob{}
		err := rows.Scan(
			&job.JobID,
			&job.Status,
			&job.Progress,
			&job.Input,
			&job.Workflow,
			&job.ErrorMessage,
			&job.CreatedAt,
			&job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// exists reports whether a job row is present
func (r *JobRepository) exists(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM automation_job WHERE job_id = $1)`, jobID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}
	return found, nil
}
