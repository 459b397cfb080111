package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/auditflow/automation-engine/common/redis"
)

// JobLeaser serializes work on a job across worker instances. The
// stream's consumer group already hands each message to one consumer;
// the lease covers the gap left by redelivery, where a reclaimed
// message can overlap a slow original holder. Leases expire on their
// own, so a crashed worker never blocks a job past the TTL.
type JobLeaser struct {
	redis  *redis.Client
	ttl    time.Duration
	logger Logger
}

// NewJobLeaser creates a job leaser. The TTL must exceed the worst-case
// job duration or two workers can end up on the same job.
func NewJobLeaser(client *redis.Client, ttl time.Duration, logger Logger) *JobLeaser {
	return &JobLeaser{redis: client, ttl: ttl, logger: logger}
}

// Acquire claims the job for this worker. False means another worker
// holds it; the caller should treat the message as handled and move on.
func (l *JobLeaser) Acquire(ctx context.Context, jobID uuid.UUID) (bool, error) {
	acquired, err := l.redis.AcquireLease(ctx, leaseKey(jobID), "1", l.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to acquire job lease: %w", err)
	}
	return acquired, nil
}

// Release drops the lease once the job reached a terminal state or the
// worker is handing the message back. Failures are logged only; the TTL
// is the backstop.
func (l *JobLeaser) Release(ctx context.Context, jobID uuid.UUID) {
	// Runs on the way out of a possibly cancelled job context
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := l.redis.ReleaseLease(ctx, leaseKey(jobID)); err != nil {
		l.logger.Warn("job lease release failed, waiting out the ttl",
			"job_id", jobID,
			"error", err)
	}
}

func leaseKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:lease:%s", jobID)
}
