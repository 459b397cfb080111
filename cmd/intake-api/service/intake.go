package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/auditflow/automation-engine/common/logger"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/repository"
)

// ErrInvalidRequest marks enqueue payloads the service refuses to accept
var ErrInvalidRequest = errors.New("invalid enqueue request")

// JobStore is the persistence surface the intake service needs
type JobStore interface {
	Create(ctx context.Context, job *models.AutomationJob) error
	GetByID(ctx context.Context, jobID uuid.UUID) (*models.AutomationJob, error)
	ListRecent(ctx context.Context, limit int) ([]*models.AutomationJob, error)
	UpdateProgress(ctx context.Context, jobID uuid.UUID, progress int, status models.JobStatus, errorMessage *string) error
}

// ArtifactStore reads finished deliverables
type ArtifactStore interface {
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.AutomationArtifact, error)
}

// Publisher enqueues job messages for the worker
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
}

// EnqueueRequest is the intake payload as the upstream audit layer
// sends it. Field names follow that contract; the service maps them
// onto the internal job input.
type EnqueueRequest struct {
	ID                      *uuid.UUID                     `json:"id,omitempty"`
	ProcessData             ProcessDataPayload             `json:"processData"`
	AutomationOpportunities []models.AutomationOpportunity `json:"automationOpportunities,omitempty"`
	AutomationType          string                         `json:"automationType"`
	Preferences             map[string]string              `json:"preferences,omitempty"`
}

// ProcessDataPayload carries the process description and questionnaire
// answers in the upstream wire shape
type ProcessDataPayload struct {
	ProcessDescription string            `json:"processDescription"`
	Answers            map[string]string `json:"answers,omitempty"`
}

// toInput maps the wire payload onto the internal job input
func (r EnqueueRequest) toInput() models.JobInput {
	automationType := strings.TrimSpace(r.AutomationType)
	if automationType == "" {
		automationType = "workflow"
	}
	return models.JobInput{
		ProcessData: models.ProcessData{
			ProcessDescription: strings.TrimSpace(r.ProcessData.ProcessDescription),
			Answers:            r.ProcessData.Answers,
		},
		Opportunities:  r.AutomationOpportunities,
		AutomationType: automationType,
		Preferences:    r.Preferences,
	}
}

// IntakeService accepts generation jobs: persist the row, hand the
// message to the worker stream, and answer status queries.
type IntakeService struct {
	jobs      JobStore
	artifacts ArtifactStore
	publisher Publisher
	stream    string
	log       *logger.Logger
}

// NewIntakeService creates the intake service
func NewIntakeService(jobs JobStore, artifacts ArtifactStore, publisher Publisher, stream string, log *logger.Logger) *IntakeService {
	return &IntakeService{
		jobs:      jobs,
		artifacts: artifacts,
		publisher: publisher,
		stream:    stream,
		log:       log,
	}
}

// Enqueue validates the request, persists the queued job row, and
// publishes the job message. When the caller supplies an id that
// already has a row, that row is returned as-is and nothing is
// re-published: enqueue is idempotent per id. The returned bool
// reports whether a new job was created.
func (s *IntakeService) Enqueue(ctx context.Context, req EnqueueRequest) (*models.AutomationJob, bool, error) {
	input := req.toInput()
	if input.ProcessData.ProcessDescription == "" {
		return nil, false, fmt.Errorf("%w: process description is required", ErrInvalidRequest)
	}

	jobID := uuid.New()
	if req.ID != nil && *req.ID != uuid.Nil {
		jobID = *req.ID

		existing, err := s.jobs.GetByID(ctx, jobID)
		switch {
		case err == nil:
			s.log.Info("enqueue replay for existing job", "job_id", jobID, "status", existing.Status)
			return existing, false, nil
		case !errors.Is(err, repository.ErrJobNotFound):
			return nil, false, fmt.Errorf("check job %s: %w", jobID, err)
		}
	}

	job := &models.AutomationJob{
		JobID:    jobID,
		Status:   models.JobStatusQueued,
		Progress: 0,
		Input:    input,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, false, fmt.Errorf("create job %s: %w", jobID, err)
	}

	payload, err := json.Marshal(models.JobMessage{JobID: jobID, Input: input})
	if err != nil {
		return nil, false, fmt.Errorf("encode job message: %w", err)
	}

	if err := s.publisher.Publish(ctx, s.stream, jobID.String(), payload); err != nil {
		// The row exists but no worker will ever see it; park it in
		// failed rather than leaving a queued row nothing consumes.
		msg := fmt.Sprintf("enqueue: %v", err)
		if markErr := s.jobs.UpdateProgress(ctx, jobID, 0, models.JobStatusFailed, &msg); markErr != nil {
			s.log.Error("failed to park unpublished job", "job_id", jobID, "error", markErr)
		}
		return nil, false, fmt.Errorf("publish job %s: %w", jobID, err)
	}

	s.log.Info("job enqueued",
		"job_id", jobID,
		"automation_type", input.AutomationType,
		"opportunities", len(input.Opportunities))

	return job, true, nil
}

// GetJob returns the job row by id
func (s *IntakeService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.AutomationJob, error) {
	return s.jobs.GetByID(ctx, jobID)
}

// ListJobs returns the most recent jobs, newest first
func (s *IntakeService) ListJobs(ctx context.Context, limit int) ([]*models.AutomationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.jobs.ListRecent(ctx, limit)
}

// GetArtifact returns the finished deliverable for a job
func (s *IntakeService) GetArtifact(ctx context.Context, jobID uuid.UUID) (*models.AutomationArtifact, error) {
	return s.artifacts.GetByJobID(ctx, jobID)
}
