package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/auditflow/automation-engine/cmd/automation-worker/complexity"
	"github.com/auditflow/automation-engine/cmd/automation-worker/contextopt"
	"github.com/auditflow/automation-engine/cmd/automation-worker/generator"
	"github.com/auditflow/automation-engine/cmd/automation-worker/knowledge"
	"github.com/auditflow/automation-engine/common/clients"
	"github.com/auditflow/automation-engine/common/metrics"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/ratelimit"
	"github.com/auditflow/automation-engine/common/repository"
)

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// JobStore is the persistence surface the processor drives. Progress
// writes must be idempotent and forward-only with immutable terminal
// states; the pgx implementation in common/repository guarantees that.
type JobStore interface {
	GetByID(ctx context.Context, jobID uuid.UUID) (*models.AutomationJob, error)
	UpdateProgress(ctx context.Context, jobID uuid.UUID, progress int, status models.JobStatus, errorMessage *string) error
	SetWorkflow(ctx context.Context, jobID uuid.UUID, workflow *models.GeneratedWorkflow) error
}

// ArtifactStore persists the finished deliverable; saves upsert by job
// id so queue redelivery overwrites instead of duplicating.
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, artifact *models.AutomationArtifact) error
}

// EventSink publishes lifecycle events. Publish failures never fail the
// job; the persisted row is the source of truth.
type EventSink interface {
	PublishJobEvent(ctx context.Context, event models.JobEvent) error
}

// JobLease keeps two workers off the same job when a redelivered
// message overlaps a slow original. Optional; without one the
// idempotent writes still keep redelivery safe, just not exclusive.
type JobLease interface {
	Acquire(ctx context.Context, jobID uuid.UUID) (bool, error)
	Release(ctx context.Context, jobID uuid.UUID)
}

// Planner produces the orchestration plan for a job input
type Planner interface {
	Plan(ctx context.Context, input models.JobInput) (*models.OrchestrationPlan, error)
}

// WorkflowGenerator renders an accepted plan into a validated workflow
type WorkflowGenerator interface {
	Generate(ctx context.Context, job generator.GenerationJob) (*models.GeneratedWorkflow, error)
}

// ProcessorOpts wires the processor's collaborators
type ProcessorOpts struct {
	Planner   Planner
	Generator WorkflowGenerator
	Assessor  *complexity.Assessor
	Analyzer  *knowledge.Analyzer
	Optimizer *contextopt.Optimizer
	Jobs      JobStore
	Artifacts ArtifactStore
	Events    EventSink
	Leases    JobLease
	Platform  models.ArtifactPlatform
	Logger    Logger
	Clock     func() time.Time
}

// Processor drives one automation job through the pipeline stages:
// plan (10→30), generate (→70), persist (→100 completed), or failed
// with the triggering error. One invocation handles one job; re-invoking
// on the same job id is safe because every write is idempotent and
// terminal rows never change.
type Processor struct {
	planner   Planner
	generator WorkflowGenerator
	assessor  *complexity.Assessor
	analyzer  *knowledge.Analyzer
	optimizer *contextopt.Optimizer
	jobs      JobStore
	artifacts ArtifactStore
	events    EventSink
	leases    JobLease
	platform  models.ArtifactPlatform
	logger    Logger
	clock     func() time.Time
}

// NewProcessor creates the job processor
func NewProcessor(opts ProcessorOpts) *Processor {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	platform := opts.Platform
	if platform == "" {
		platform = models.PlatformN8N
	}
	return &Processor{
		planner:   opts.Planner,
		generator: opts.Generator,
		assessor:  opts.Assessor,
		analyzer:  opts.Analyzer,
		optimizer: opts.Optimizer,
		jobs:      opts.Jobs,
		artifacts: opts.Artifacts,
		events:    opts.Events,
		leases:    opts.Leases,
		platform:  platform,
		logger:    opts.Logger,
		clock:     clock,
	}
}

// HandleMessage is the queue entry point: decode the envelope and
// process the job. Designed to plug straight into queue.Subscribe.
func (p *Processor) HandleMessage(ctx context.Context, key string, value []byte) error {
	var msg models.JobMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode job message (key=%s): %w", key, err)
	}
	return p.Process(ctx, msg)
}

// Process runs the full pipeline for one job. A nil return means the
// job reached a terminal state (completed or failed); a non-nil return
// means the infrastructure prevented even that, and the message should
// be treated as unhandled.
func (p *Processor) Process(ctx context.Context, msg models.JobMessage) error {
	if msg.JobID == uuid.Nil {
		return errors.New("job message missing job id")
	}

	// Outbound HTTP calls pick this up as the X-Job-ID header
	ctx = clients.WithJobID(ctx, msg.JobID.String())

	input := msg.Input
	job, err := p.jobs.GetByID(ctx, msg.JobID)
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		// Freshly enqueued jobs can race their own row; the envelope
		// carries enough to proceed.
		p.logger.Debug("job row not found, using message input", "job_id", msg.JobID)
	case err != nil:
		return fmt.Errorf("load job %s: %w", msg.JobID, err)
	case job.Status.IsTerminal():
		p.logger.Info("skipping redelivered terminal job",
			"job_id", msg.JobID,
			"status", job.Status)
		return nil
	default:
		input = job.Input
	}

	if p.leases != nil {
		acquired, err := p.leases.Acquire(ctx, msg.JobID)
		if err != nil {
			return fmt.Errorf("acquire lease for %s: %w", msg.JobID, err)
		}
		if !acquired {
			p.logger.Info("job held by another worker, skipping", "job_id", msg.JobID)
			return nil
		}
		defer p.leases.Release(ctx, msg.JobID)
	}

	runtimeMetrics := metrics.CaptureStart(ctx)
	timer := metrics.NewStageTimer(p.clock)

	if err := p.checkpoint(ctx, msg.JobID, models.ProgressAccepted, models.JobStatusProcessing); err != nil {
		return err
	}

	stopPlan := timer.Track("plan")
	plan, err := p.planner.Plan(ctx, input)
	stopPlan()
	if err != nil {
		return p.fail(ctx, msg.JobID, models.ProgressAccepted, "plan", err)
	}

	if err := p.checkpoint(ctx, msg.JobID, models.ProgressPlanned, models.JobStatusProcessing); err != nil {
		return err
	}

	stopGenerate := timer.Track("generate")
	wf, err := p.generate(ctx, input, plan)
	stopGenerate()
	if err != nil {
		return p.fail(ctx, msg.JobID, models.ProgressPlanned, "generate", err)
	}

	if err := p.checkpoint(ctx, msg.JobID, models.ProgressGenerated, models.JobStatusProcessing); err != nil {
		return err
	}

	if wf.Meta == nil {
		wf.Meta = &models.GenerationMeta{}
	}
	wf.Meta.DurationsMS = timer.Durations()

	if err := p.persist(ctx, msg.JobID, plan, wf); err != nil {
		return p.fail(ctx, msg.JobID, models.ProgressGenerated, "persist", err)
	}

	if err := p.checkpoint(ctx, msg.JobID, models.ProgressCompleted, models.JobStatusCompleted); err != nil {
		return err
	}

	runtimeMetrics.Finalize(ctx)
	p.logger.Info("job completed",
		append([]interface{}{
			"job_id", msg.JobID,
			"strategy", wf.Meta.Strategy,
			"nodes", len(wf.Nodes),
			"durations_ms", wf.Meta.DurationsMS,
		}, runtimeMetrics.Fields()...)...)

	return nil
}

// generate reassesses complexity against the accepted plan, derives the
// retrieval profile and knowledge analysis, and runs the strategy chain.
// The plan's call tier rides the context so the provider throttle can
// budget model calls against the right window.
func (p *Processor) generate(ctx context.Context, input models.JobInput, plan *models.OrchestrationPlan) (*models.GeneratedWorkflow, error) {
	ctx = ratelimit.WithTier(ctx, ratelimit.InspectPlan(plan).Tier)

	assessment := p.assessor.Assess(input, plan)

	analysis, err := p.analyzer.Analyze(plan)
	if err != nil {
		// Advisory layer only; generation proceeds without it
		p.logger.Warn("knowledge analysis failed, continuing without it", "error", err)
		analysis = nil
	}

	profile := p.optimizer.Optimize(input, plan, assessment.Class)

	return p.generator.Generate(ctx, generator.GenerationJob{
		Input:      input,
		Plan:       plan,
		Assessment: assessment,
		Profile:    profile,
		Analysis:   analysis,
	})
}

// persist stores the workflow on the job row and upserts the artifact
func (p *Processor) persist(ctx context.Context, jobID uuid.UUID, plan *models.OrchestrationPlan, wf *models.GeneratedWorkflow) error {
	if err := p.jobs.SetWorkflow(ctx, jobID, wf); err != nil {
		return err
	}

	raw, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}

	artifact := &models.AutomationArtifact{
		ArtifactID:   uuid.New(),
		JobID:        jobID,
		Name:         wf.Name,
		Description:  plan.Description,
		Platform:     p.platform,
		WorkflowJSON: raw,
		Instructions: BuildInstructions(p.platform, wf),
		Strategy:     wf.Meta.Strategy,
	}
	return p.artifacts.SaveArtifact(ctx, artifact)
}

// checkpoint persists a progress boundary and emits the matching event
func (p *Processor) checkpoint(ctx context.Context, jobID uuid.UUID, progress int, status models.JobStatus) error {
	if err := p.jobs.UpdateProgress(ctx, jobID, progress, status, nil); err != nil {
		return fmt.Errorf("checkpoint %d for %s: %w", progress, jobID, err)
	}
	p.publishEvent(ctx, jobID, status, progress, "")
	return nil
}

// fail drives the job to its failed terminal state, preserving the
// triggering error on the row. Returns nil when the failure was
// recorded; the job is then handled as far as the queue is concerned.
func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, progress int, stage string, cause error) error {
	p.logger.Error("job stage failed",
		"job_id", jobID,
		"stage", stage,
		"error", cause)

	msg := fmt.Sprintf("%s: %v", stage, cause)
	if err := p.jobs.UpdateProgress(ctx, jobID, progress, models.JobStatusFailed, &msg); err != nil {
		return fmt.Errorf("recording failure after %s error: %w", stage, err)
	}
	p.publishEvent(ctx, jobID, models.JobStatusFailed, progress, msg)
	return nil
}

func (p *Processor) publishEvent(ctx context.Context, jobID uuid.UUID, status models.JobStatus, progress int, errMsg string) {
	event := models.JobEvent{
		JobID:     jobID,
		Status:    status,
		Progress:  progress,
		Error:     errMsg,
		Timestamp: p.clock().UTC(),
	}
	if err := p.events.PublishJobEvent(ctx, event); err != nil {
		p.logger.Warn("event publish failed",
			"job_id", jobID,
			"status", status,
			"error", err)
	}
}
