package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/auditflow/automation-engine/common/logger"
	"github.com/auditflow/automation-engine/common/models"
)

// subscriber bridges the worker's lifecycle channel onto the hub. A
// single channel carries every job's events; routing happens on the
// decoded job id.
type subscriber struct {
	redis   *goredis.Client
	hub     *hub
	channel string
	log     *logger.Logger
}

func newSubscriber(client *goredis.Client, h *hub, channel string, log *logger.Logger) *subscriber {
	return &subscriber{
		redis:   client,
		hub:     h,
		channel: channel,
		log:     log,
	}
}

// run subscribes and forwards events until the context ends. The pubsub
// connection resubscribes on its own after transient failures, so only
// the initial subscribe is fatal.
func (s *subscriber) run(ctx context.Context) error {
	pubsub := s.redis.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	s.log.Info("subscribed to lifecycle events", "channel", s.channel)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("subscription to %s closed", s.channel)
			}

			update, err := routeEvent([]byte(msg.Payload))
			if err != nil {
				s.log.Warn("dropping malformed lifecycle event", "error", err)
				continue
			}
			s.hub.updates <- update
		}
	}
}

// routeEvent extracts the routing key from a published lifecycle event.
// The raw payload travels on unchanged so followers see exactly what the
// worker wrote.
func routeEvent(payload []byte) (*jobUpdate, error) {
	var event models.JobEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode job event: %w", err)
	}
	if event.JobID == uuid.Nil {
		return nil, fmt.Errorf("job event has no job id")
	}

	return &jobUpdate{
		jobID:    event.JobID,
		payload:  payload,
		terminal: event.Status.IsTerminal(),
	}, nil
}
