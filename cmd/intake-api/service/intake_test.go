package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/automation-engine/common/logger"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/repository"
)

type progressCall struct {
	progress int
	status   models.JobStatus
	errMsg   string
}

type fakeJobs struct {
	rows      map[uuid.UUID]*models.AutomationJob
	createErr error

	created  []*models.AutomationJob
	progress []progressCall
	listArgs []int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{rows: make(map[uuid.UUID]*models.AutomationJob)}
}

func (f *fakeJobs) Create(_ context.Context, job *models.AutomationJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, job)
	f.rows[job.JobID] = job
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, jobID uuid.UUID) (*models.AutomationJob, error) {
	job, ok := f.rows[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, repository.ErrJobNotFound)
	}
	return job, nil
}

func (f *fakeJobs) ListRecent(_ context.Context, limit int) ([]*models.AutomationJob, error) {
	f.listArgs = append(f.listArgs, limit)
	return nil, nil
}

func (f *fakeJobs) UpdateProgress(_ context.Context, _ uuid.UUID, progress int, status models.JobStatus, errorMessage *string) error {
	call := progressCall{progress: progress, status: status}
	if errorMessage != nil {
		call.errMsg = *errorMessage
	}
	f.progress = append(f.progress, call)
	return nil
}

type fakeArtifacts struct {
	artifact *models.AutomationArtifact
}

func (f *fakeArtifacts) GetByJobID(_ context.Context, jobID uuid.UUID) (*models.AutomationArtifact, error) {
	if f.artifact == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, repository.ErrArtifactNotFound)
	}
	return f.artifact, nil
}

type publishedMessage struct {
	topic   string
	key     string
	payload []byte
}

type fakePublisher struct {
	err       error
	published []publishedMessage
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key string, message []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{topic: topic, key: key, payload: message})
	return nil
}

type intakeFixture struct {
	service   *IntakeService
	jobs      *fakeJobs
	artifacts *fakeArtifacts
	publisher *fakePublisher
}

func newIntakeFixture() *intakeFixture {
	f := &intakeFixture{
		jobs:      newFakeJobs(),
		artifacts: &fakeArtifacts{},
		publisher: &fakePublisher{},
	}
	f.service = NewIntakeService(f.jobs, f.artifacts, f.publisher, "automation.jobs", logger.New("error", "text"))
	return f
}

func enqueueRequest() EnqueueRequest {
	return EnqueueRequest{
		ProcessData: ProcessDataPayload{
			ProcessDescription: "  When a support ticket arrives, classify it and notify the triage channel.  ",
			Answers:            map[string]string{"volume": "50 per day"},
		},
		AutomationOpportunities: []models.AutomationOpportunity{
			{Title: "Auto-triage tickets", Impact: "high"},
		},
	}
}

func TestIntake_EnqueuePersistsAndPublishes(t *testing.T) {
	f := newIntakeFixture()

	job, created, err := f.service.Enqueue(context.Background(), enqueueRequest())
	require.NoError(t, err)
	require.True(t, created)

	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.NotEqual(t, uuid.Nil, job.JobID)

	// Wire payload is normalized into the internal input shape
	assert.Equal(t, "When a support ticket arrives, classify it and notify the triage channel.", job.Input.ProcessData.ProcessDescription)
	assert.Equal(t, "workflow", job.Input.AutomationType)
	assert.Equal(t, "50 per day", job.Input.ProcessData.Answers["volume"])
	require.Len(t, job.Input.Opportunities, 1)

	require.Len(t, f.jobs.created, 1)
	require.Len(t, f.publisher.published, 1)

	published := f.publisher.published[0]
	assert.Equal(t, "automation.jobs", published.topic)
	assert.Equal(t, job.JobID.String(), published.key)

	var msg models.JobMessage
	require.NoError(t, json.Unmarshal(published.payload, &msg))
	assert.Equal(t, job.JobID, msg.JobID)
	assert.Equal(t, job.Input, msg.Input)
}

func TestIntake_RejectsEmptyDescription(t *testing.T) {
	f := newIntakeFixture()

	req := enqueueRequest()
	req.ProcessData.ProcessDescription = "   "

	_, _, err := f.service.Enqueue(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, f.jobs.created)
	assert.Empty(t, f.publisher.published)
}

func TestIntake_ReplayedIDReturnsExistingJob(t *testing.T) {
	f := newIntakeFixture()
	jobID := uuid.New()
	f.jobs.rows[jobID] = &models.AutomationJob{
		JobID:    jobID,
		Status:   models.JobStatusProcessing,
		Progress: models.ProgressPlanned,
	}

	req := enqueueRequest()
	req.ID = &jobID

	job, created, err := f.service.Enqueue(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, jobID, job.JobID)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Empty(t, f.jobs.created)
	assert.Empty(t, f.publisher.published)
}

func TestIntake_ClientSuppliedIDCreatesWhenMissing(t *testing.T) {
	f := newIntakeFixture()
	jobID := uuid.New()

	req := enqueueRequest()
	req.ID = &jobID

	job, created, err := f.service.Enqueue(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, jobID, job.JobID)
	require.Len(t, f.publisher.published, 1)
}

func TestIntake_PublishFailureParksJobAsFailed(t *testing.T) {
	f := newIntakeFixture()
	f.publisher.err = errors.New("stream unavailable")

	_, _, err := f.service.Enqueue(context.Background(), enqueueRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish job")

	require.Len(t, f.jobs.progress, 1)
	parked := f.jobs.progress[0]
	assert.Equal(t, models.JobStatusFailed, parked.status)
	assert.Contains(t, parked.errMsg, "enqueue:")
}

func TestIntake_ListClampsLimit(t *testing.T) {
	f := newIntakeFixture()
	ctx := context.Background()

	_, err := f.service.ListJobs(ctx, 0)
	require.NoError(t, err)
	_, err = f.service.ListJobs(ctx, 500)
	require.NoError(t, err)
	_, err = f.service.ListJobs(ctx, 5)
	require.NoError(t, err)

	assert.Equal(t, []int{20, 100, 5}, f.jobs.listArgs)
}

func TestIntake_GetArtifact(t *testing.T) {
	f := newIntakeFixture()
	jobID := uuid.New()

	_, err := f.service.GetArtifact(context.Background(), jobID)
	require.ErrorIs(t, err, repository.ErrArtifactNotFound)

	f.artifacts.artifact = &models.AutomationArtifact{JobID: jobID, Name: "Support Ticket Triage"}
	artifact, err := f.service.GetArtifact(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "Support Ticket Triage", artifact.Name)
}
