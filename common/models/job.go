package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an automation job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress checkpoints written by the job processor.
// Each stage boundary is persisted exactly once per job.
const (
	ProgressAccepted  = 10
	ProgressPlanned   = 30
	ProgressGenerated = 70
	ProgressCompleted = 100
)

// AutomationOpportunity is one automation candidate identified upstream
// during the process audit
type AutomationOpportunity struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Impact      string   `json:"impact,omitempty"`
}

// ProcessData carries the natural-language process description plus any
// structured questionnaire answers collected by the audit flow
type ProcessData struct {
	ProcessDescription string            `json:"process_description"`
	Answers            map[string]string `json:"answers,omitempty"`
}

// JobInput is the payload enqueued by the intake layer
type JobInput struct {
	ProcessData    ProcessData             `json:"process_data"`
	Opportunities  []AutomationOpportunity `json:"automation_opportunities"`
	AutomationType string                  `json:"automation_type"`
	Preferences    map[string]string       `json:"preferences,omitempty"`
}

// AutomationJob represents a generation job.
// Maps to: automation_job table.
type AutomationJob struct {
	JobID uuid.UUID `db:"job_id" json:"job_id"`

	Status   JobStatus `db:"status" json:"status"`
	Progress int       `db:"progress" json:"progress"`

	// Input payload as submitted by the intake layer (JSONB)
	Input JobInput `db:"input" json:"input"`

	// Resulting workflow (JSONB), set only on completion
	Workflow *GeneratedWorkflow `db:"workflow" json:"workflow,omitempty"`

	// Last error for failed jobs
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// JobMessage is the queue envelope for one job. The worker reloads the
// authoritative job row by id; the inline input lets it proceed when the
// row and the message race on freshly enqueued jobs.
type JobMessage struct {
	JobID uuid.UUID `json:"job_id"`
	Input JobInput  `json:"input"`
}

// JobEvent is published on the lifecycle channel after each persisted
// checkpoint so the excluded UI layer can stream progress
type JobEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
