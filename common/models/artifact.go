package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ArtifactPlatform identifies the automation platform an artifact targets.
type ArtifactPlatform string

const (
	PlatformN8N ArtifactPlatform = "n8n"
)

// AutomationArtifact is the finished deliverable for a job: the generated
// workflow document plus everything a user needs to import it.
// Maps to: automation_artifact table (one row per job, upserted on retry).
type AutomationArtifact struct {
	// Unique artifact ID
	ArtifactID uuid.UUID `db:"artifact_id" json:"artifact_id"`

	// Owning job; unique, retries overwrite in place
	JobID uuid.UUID `db:"job_id" json:"job_id"`

	// Workflow name as it will appear after import
	Name string `db:"name" json:"name"`

	// Short human-readable summary of what the automation does
	Description string `db:"description" json:"description"`

	// Target platform: 'n8n'
	Platform ArtifactPlatform `db:"platform" json:"platform"`

	// Complete importable workflow document (JSONB)
	WorkflowJSON json.RawMessage `db:"workflow_json" json:"workflow_json"`

	// Step-by-step import and setup instructions (markdown)
	Instructions string `db:"instructions" json:"instructions"`

	// Strategy that produced the workflow: 'template', 'capability', 'direct'
	Strategy string `db:"strategy" json:"strategy"`

	// Audit fields
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Workflow decodes the stored workflow document.
func (a *AutomationArtifact) Workflow() (*GeneratedWorkflow, error) {
	var wf GeneratedWorkflow
	if err := json.Unmarshal(a.WorkflowJSON, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}
