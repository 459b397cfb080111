package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/redis"
)

// EventsChannel is the redis pub/sub channel carrying job lifecycle
// events for the UI layer
const EventsChannel = "automation.events"

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// EventPublisher fans job lifecycle events out over redis pub/sub.
// Events are fire-and-forget for the pipeline: a publish failure is
// reported to the caller but must never fail the job.
type EventPublisher struct {
	redis   *redis.Client
	channel string
	logger  Logger
}

// NewEventPublisher creates a lifecycle event publisher. An empty
// channel falls back to EventsChannel; the relay applies the same
// fallback on its subscribe side.
func NewEventPublisher(client *redis.Client, channel string, logger Logger) *EventPublisher {
	if channel == "" {
		channel = EventsChannel
	}
	return &EventPublisher{redis: client, channel: channel, logger: logger}
}

// PublishJobEvent emits one lifecycle event after a persisted progress
// checkpoint. The timestamp is stamped here when the caller left it zero.
func (p *EventPublisher) PublishJobEvent(ctx context.Context, event models.JobEvent) error {
	if event.JobID == uuid.Nil {
		return fmt.Errorf("job id is required")
	}
	if event.Status == "" {
		return fmt.Errorf("status is required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	if err := p.redis.PublishEvent(ctx, p.channel, string(payload)); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}

	p.logger.Debug("published job event",
		"job_id", event.JobID,
		"status", event.Status,
		"progress", event.Progress)

	return nil
}
