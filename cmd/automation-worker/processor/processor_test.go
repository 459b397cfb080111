package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/automation-engine/cmd/automation-worker/complexity"
	"github.com/auditflow/automation-engine/cmd/automation-worker/contextopt"
	"github.com/auditflow/automation-engine/cmd/automation-worker/generator"
	"github.com/auditflow/automation-engine/cmd/automation-worker/knowledge"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/repository"
)

type testLogger struct{}

func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Debug(string, ...interface{}) {}

type progressCall struct {
	progress int
	status   models.JobStatus
	errMsg   string
}

// fakeJobs records progress writes in order; progressErrs injects an
// error at the nth UpdateProgress call.
type fakeJobs struct {
	job    *models.AutomationJob
	getErr error

	progressErrs map[int]error
	setErr       error

	calls    []progressCall
	workflow *models.GeneratedWorkflow
	setCalls int
}

func (f *fakeJobs) GetByID(_ context.Context, jobID uuid.UUID) (*models.AutomationJob, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, repository.ErrJobNotFound)
	}
	return f.job, nil
}

func (f *fakeJobs) UpdateProgress(_ context.Context, _ uuid.UUID, progress int, status models.JobStatus, errorMessage *string) error {
	n := len(f.calls)
	call := progressCall{progress: progress, status: status}
	if errorMessage != nil {
		call.errMsg = *errorMessage
	}
	f.calls = append(f.calls, call)
	return f.progressErrs[n]
}

func (f *fakeJobs) SetWorkflow(_ context.Context, _ uuid.UUID, workflow *models.GeneratedWorkflow) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.workflow = workflow
	return nil
}

type fakeArtifacts struct {
	err   error
	saved []*models.AutomationArtifact
}

func (f *fakeArtifacts) SaveArtifact(_ context.Context, artifact *models.AutomationArtifact) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, artifact)
	return nil
}

type fakeEvents struct {
	err    error
	events []models.JobEvent
}

func (f *fakeEvents) PublishJobEvent(_ context.Context, event models.JobEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

// fakeLeases grants by default; held simulates another worker already
// owning the job.
type fakeLeases struct {
	held       bool
	acquireErr error

	acquires []uuid.UUID
	releases []uuid.UUID
}

func (f *fakeLeases) Acquire(_ context.Context, jobID uuid.UUID) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	f.acquires = append(f.acquires, jobID)
	return !f.held, nil
}

func (f *fakeLeases) Release(_ context.Context, jobID uuid.UUID) {
	f.releases = append(f.releases, jobID)
}

type fakePlanner struct {
	plan   *models.OrchestrationPlan
	err    error
	inputs []models.JobInput
}

func (f *fakePlanner) Plan(_ context.Context, input models.JobInput) (*models.OrchestrationPlan, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return f.plan, nil
}

type fakeGenerator struct {
	wf   *models.GeneratedWorkflow
	err  error
	jobs []generator.GenerationJob
}

func (f *fakeGenerator) Generate(_ context.Context, job generator.GenerationJob) (*models.GeneratedWorkflow, error) {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return nil, f.err
	}
	return f.wf, nil
}

// stepClock advances 250ms on every reading, making stage durations
// deterministic: each tracked stage spans exactly one step.
func stepClock() func() time.Time {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	return func() time.Time {
		step++
		return base.Add(time.Duration(step) * 250 * time.Millisecond)
	}
}

type processorFixture struct {
	processor *Processor
	jobs      *fakeJobs
	artifacts *fakeArtifacts
	events    *fakeEvents
	leases    *fakeLeases
	planner   *fakePlanner
	generator *fakeGenerator
}

func newFixture(t *testing.T) *processorFixture {
	t.Helper()

	corpus, err := knowledge.LoadCorpus()
	require.NoError(t, err)

	f := &processorFixture{
		jobs:      &fakeJobs{},
		artifacts: &fakeArtifacts{},
		events:    &fakeEvents{},
		leases:    &fakeLeases{},
		planner:   &fakePlanner{plan: triagePlan()},
		generator: &fakeGenerator{wf: triageWorkflow()},
	}
	f.processor = NewProcessor(ProcessorOpts{
		Planner:   f.planner,
		Generator: f.generator,
		Assessor:  complexity.NewAssessor(),
		Analyzer:  knowledge.NewAnalyzer(corpus),
		Optimizer: contextopt.NewOptimizer(registry.New(), 0),
		Jobs:      f.jobs,
		Artifacts: f.artifacts,
		Events:    f.events,
		Leases:    f.leases,
		Logger:    testLogger{},
		Clock:     stepClock(),
	})
	return f
}

func triageInput() models.JobInput {
	return models.JobInput{
		ProcessData: models.ProcessData{
			ProcessDescription: "When a support ticket arrives, classify it and notify the triage channel.",
		},
		AutomationType: "workflow",
	}
}

func triagePlan() *models.OrchestrationPlan {
	return &models.OrchestrationPlan{
		WorkflowName: "Support Ticket Triage",
		Description:  "Classify inbound tickets and alert the on-call channel",
		Triggers:     []models.PlanTrigger{{Type: "webhook"}},
		Steps: []models.PlanStep{
			{ID: "classify", Name: "Classify Ticket", Type: "openai", Description: "Label the ticket by urgency"},
			{ID: "notify", Name: "Notify Channel", Type: "slack", Description: "Post the label to the triage channel"},
		},
		Connections: []models.PlanConnection{{From: "classify", To: "notify"}},
	}
}

func triageWorkflow() *models.GeneratedWorkflow {
	return &models.GeneratedWorkflow{
		Name: "Support Ticket Triage",
		Nodes: []models.WorkflowNode{
			{
				ID:          "a1",
				Name:        "Webhook Trigger",
				Type:        "n8n-nodes-base.webhook",
				TypeVersion: 2,
				Position:    []float64{250, 300},
				Parameters: map[string]interface{}{
					"httpMethod":   "POST",
					"path":         "support-ticket-triage",
					"responseMode": "onReceived",
				},
			},
			{
				ID:          "a2",
				Name:        "Notify Channel",
				Type:        "n8n-nodes-base.slack",
				TypeVersion: 2.1,
				Position:    []float64{470, 300},
				Parameters:  map[string]interface{}{"resource": "message", "operation": "post"},
				Credentials: map[string]models.CredentialRef{
					"slackApi": {Name: "slackApi placeholder"},
				},
			},
		},
		Connections: map[string]models.NodePorts{
			"Webhook Trigger": {"main": {{{Node: "Notify Channel", Port: "main", Index: 0}}}},
		},
		Settings: map[string]interface{}{"executionOrder": "v1"},
		Meta:     &models.GenerationMeta{Strategy: "template", Validation: "passed"},
	}
}

func queuedJob(jobID uuid.UUID) *models.AutomationJob {
	return &models.AutomationJob{
		JobID:  jobID,
		Status: models.JobStatusQueued,
		Input:  triageInput(),
	}
}

func TestProcessor_CompletesJobThroughCheckpoints(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID, Input: triageInput()})
	require.NoError(t, err)

	require.Equal(t, []progressCall{
		{progress: models.ProgressAccepted, status: models.JobStatusProcessing},
		{progress: models.ProgressPlanned, status: models.JobStatusProcessing},
		{progress: models.ProgressGenerated, status: models.JobStatusProcessing},
		{progress: models.ProgressCompleted, status: models.JobStatusCompleted},
	}, f.jobs.calls)

	require.Len(t, f.events.events, 4)
	for i, event := range f.events.events {
		assert.Equal(t, jobID, event.JobID)
		assert.Equal(t, f.jobs.calls[i].progress, event.Progress)
		assert.Equal(t, f.jobs.calls[i].status, event.Status)
		assert.Empty(t, event.Error)
		assert.False(t, event.Timestamp.IsZero())
	}

	assert.Equal(t, 1, f.jobs.setCalls)
	require.NotNil(t, f.jobs.workflow)
	assert.Equal(t, "Support Ticket Triage", f.jobs.workflow.Name)
}

func TestProcessor_SavesArtifactWithInstructions(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	require.Len(t, f.artifacts.saved, 1)
	artifact := f.artifacts.saved[0]
	assert.NotEqual(t, uuid.Nil, artifact.ArtifactID)
	assert.Equal(t, jobID, artifact.JobID)
	assert.Equal(t, "Support Ticket Triage", artifact.Name)
	assert.Equal(t, "Classify inbound tickets and alert the on-call channel", artifact.Description)
	assert.Equal(t, models.PlatformN8N, artifact.Platform)
	assert.Equal(t, "template", artifact.Strategy)
	assert.Contains(t, artifact.Instructions, "Import \"Support Ticket Triage\" into n8n")
	assert.Contains(t, artifact.Instructions, "slackApi")

	stored, err := artifact.Workflow()
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 2)
	assert.Equal(t, "template", stored.Meta.Strategy)
}

func TestProcessor_RecordsStageDurations(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	require.NotNil(t, f.jobs.workflow.Meta)
	assert.Equal(t, map[string]int64{"plan": 250, "generate": 250}, f.jobs.workflow.Meta.DurationsMS)
}

func TestProcessor_GeneratorReceivesAssessmentAndProfile(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	require.Len(t, f.planner.inputs, 1)
	require.Len(t, f.generator.jobs, 1)
	genJob := f.generator.jobs[0]
	assert.Equal(t, triageInput(), genJob.Input)
	assert.Same(t, f.planner.plan, genJob.Plan)
	assert.NotEmpty(t, genJob.Assessment.Class)
	assert.NotEmpty(t, genJob.Assessment.ModelTier)
	assert.Greater(t, genJob.Profile.NodeDocs, 0)
	require.NotNil(t, genJob.Analysis)
}

func TestProcessor_PlanFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)
	f.planner.err = errors.New("completion provider unavailable")

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	require.Equal(t, []progressCall{
		{progress: models.ProgressAccepted, status: models.JobStatusProcessing},
		{progress: models.ProgressAccepted, status: models.JobStatusFailed, errMsg: "plan: completion provider unavailable"},
	}, f.jobs.calls)

	assert.Empty(t, f.generator.jobs)
	assert.Empty(t, f.artifacts.saved)

	require.Len(t, f.events.events, 2)
	last := f.events.events[1]
	assert.Equal(t, models.JobStatusFailed, last.Status)
	assert.Contains(t, last.Error, "plan:")
}

func TestProcessor_GenerateFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)
	f.generator.err = fmt.Errorf("all generation strategies failed: %w", generator.ErrInvalidWorkflow)

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	require.Len(t, f.jobs.calls, 3)
	last := f.jobs.calls[2]
	assert.Equal(t, models.ProgressPlanned, last.progress)
	assert.Equal(t, models.JobStatusFailed, last.status)
	assert.Contains(t, last.errMsg, "generate:")
	assert.Contains(t, last.errMsg, "all generation strategies failed")

	assert.Empty(t, f.artifacts.saved)
	assert.Zero(t, f.jobs.setCalls)
}

func TestProcessor_PersistFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)
	f.artifacts.err = errors.New("connection reset by peer")

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	require.Len(t, f.jobs.calls, 4)
	last := f.jobs.calls[3]
	assert.Equal(t, models.ProgressGenerated, last.progress)
	assert.Equal(t, models.JobStatusFailed, last.status)
	assert.Contains(t, last.errMsg, "persist: connection reset by peer")

	// SetWorkflow landed before the artifact write failed; retries upsert over it
	assert.Equal(t, 1, f.jobs.setCalls)
}

func TestProcessor_CheckpointWriteFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)
	f.jobs.progressErrs = map[int]error{0: errors.New("database is down")}

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint 10")

	assert.Empty(t, f.planner.inputs)
	assert.Empty(t, f.events.events)
}

func TestProcessor_FailureRecordingErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)
	f.planner.err = errors.New("completion provider unavailable")
	f.jobs.progressErrs = map[int]error{1: errors.New("database is down")}

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording failure after plan")
}

func TestProcessor_TerminalRedeliverySkipped(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	job := queuedJob(jobID)
	job.Status = models.JobStatusCompleted
	job.Progress = models.ProgressCompleted
	f.jobs.job = job

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	assert.Empty(t, f.jobs.calls)
	assert.Empty(t, f.planner.inputs)
	assert.Empty(t, f.artifacts.saved)
	assert.Empty(t, f.events.events)
	assert.Empty(t, f.leases.acquires, "terminal rows are skipped before the lease")
}

func TestProcessor_SkipsJobHeldByAnotherWorker(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)
	f.leases.held = true

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	assert.Empty(t, f.jobs.calls)
	assert.Empty(t, f.planner.inputs)
	assert.Empty(t, f.leases.releases, "never acquired, nothing to release")
}

func TestProcessor_LeaseAcquireErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)
	f.leases.acquireErr = errors.New("redis connection refused")

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire lease")
	assert.Empty(t, f.jobs.calls)
}

func TestProcessor_ReleasesLeaseOnCompletion(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{jobID}, f.leases.acquires)
	assert.Equal(t, []uuid.UUID{jobID}, f.leases.releases)
}

func TestProcessor_ReleasesLeaseAfterStageFailure(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)
	f.planner.err = errors.New("completion provider unavailable")

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{jobID}, f.leases.releases)
}

func TestProcessor_MissingRowFallsBackToMessageInput(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	// No row yet: the message raced its own insert

	msgInput := triageInput()
	msgInput.ProcessData.ProcessDescription = "Escalate refund requests above the approval threshold."

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID, Input: msgInput})
	require.NoError(t, err)

	require.Len(t, f.planner.inputs, 1)
	assert.Equal(t, msgInput, f.planner.inputs[0])
	assert.Equal(t, models.JobStatusCompleted, f.jobs.calls[len(f.jobs.calls)-1].status)
}

func TestProcessor_RowInputAuthoritative(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)

	staleInput := triageInput()
	staleInput.ProcessData.ProcessDescription = "stale envelope copy"

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID, Input: staleInput})
	require.NoError(t, err)

	require.Len(t, f.planner.inputs, 1)
	assert.Equal(t, f.jobs.job.Input, f.planner.inputs[0])
}

func TestProcessor_LoadErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.getErr = errors.New("query timeout")

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load job")
	assert.Empty(t, f.jobs.calls)
}

func TestProcessor_EventPublishFailureDoesNotFailJob(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)
	f.events.err = errors.New("redis connection refused")

	err := f.processor.Process(context.Background(), models.JobMessage{JobID: jobID})
	require.NoError(t, err)

	last := f.jobs.calls[len(f.jobs.calls)-1]
	assert.Equal(t, models.JobStatusCompleted, last.status)
	assert.Len(t, f.artifacts.saved, 1)
}

func TestProcessor_RejectsMissingJobID(t *testing.T) {
	f := newFixture(t)

	err := f.processor.Process(context.Background(), models.JobMessage{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing job id")
}

func TestHandleMessage_DecodesEnvelope(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.job = queuedJob(jobID)

	payload, err := json.Marshal(models.JobMessage{JobID: jobID, Input: triageInput()})
	require.NoError(t, err)

	require.NoError(t, f.processor.HandleMessage(context.Background(), jobID.String(), payload))
	assert.Len(t, f.planner.inputs, 1)
}

func TestHandleMessage_MalformedPayload(t *testing.T) {
	f := newFixture(t)

	err := f.processor.HandleMessage(context.Background(), "k1", []byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode job message")
	assert.Empty(t, f.jobs.calls)
}
