package db

import (
	"context"
	"fmt"
)

// schemaStatements is the idempotent DDL for the engine's two tables.
// Statements run in order at service startup; re-running them against a
// provisioned database is a no-op.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS automation_job (
		job_id        UUID PRIMARY KEY,
		status        TEXT NOT NULL DEFAULT 'queued',
		progress      INT  NOT NULL DEFAULT 0,
		input         JSONB NOT NULL,
		workflow      JSONB,
		error_message TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// ListRecent reads newest-first
	`CREATE INDEX IF NOT EXISTS automation_job_created_at_idx
		ON automation_job (created_at DESC)`,

	// job_id is UNIQUE so redelivered jobs upsert their artifact in place
	`CREATE TABLE IF NOT EXISTS automation_artifact (
		artifact_id   UUID PRIMARY KEY,
		job_id        UUID NOT NULL UNIQUE REFERENCES automation_job (job_id) ON DELETE CASCADE,
		name          TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		platform      TEXT NOT NULL,
		workflow_json JSONB NOT NULL,
		instructions  TEXT NOT NULL DEFAULT '',
		strategy      TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate brings the schema up to date. Every service that touches the
// database runs this at startup; concurrent first boots may race on the
// IF NOT EXISTS statements, in which case one side fails and retries on
// its next start.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	db.log.Info("database schema up to date")
	return nil
}
