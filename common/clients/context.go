package clients

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// JobIDKey is the context key for job ID (for X-Job-ID header)
	JobIDKey contextKey = "job-id"
)

// WithJobID adds a job ID to the context
// This will be automatically extracted and added as X-Job-ID header in HTTP requests
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// GetJobID retrieves the job ID from context
// Returns the job ID and true if found, empty string and false otherwise
func GetJobID(ctx context.Context) (string, bool) {
	jobID, ok := ctx.Value(JobIDKey).(string)
	return jobID, ok && jobID != ""
}
