package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/auditflow/automation-engine/common/config"
	"github.com/auditflow/automation-engine/common/logger"
)

// StreamQueue is a Redis streams implementation of Queue using consumer
// groups. Each subscriber reads one message at a time and acknowledges it
// after the handler returns, so a crashed consumer leaves the message
// pending; a reclaim pass adopts pending messages once they sit idle
// past the reclaim window, which is how redelivery happens.
type StreamQueue struct {
	redis       *redis.Client
	log         *logger.Logger
	group       string
	consumer    string
	block       time.Duration
	reclaimIdle time.Duration
}

// NewStreamQueue creates a Redis streams queue
func NewStreamQueue(redisClient *redis.Client, cfg config.QueueConfig, log *logger.Logger) *StreamQueue {
	consumer := cfg.Consumer
	if consumer == "" {
		consumer = fmt.Sprintf("worker_%s", uuid.New().String()[:8])
	}

	block := cfg.BlockTimeout
	if block <= 0 {
		block = 5 * time.Second
	}

	reclaimIdle := cfg.ReclaimIdle
	if reclaimIdle <= 0 {
		reclaimIdle = 20 * time.Minute
	}

	return &StreamQueue{
		redis:       redisClient,
		log:         log,
		group:       cfg.Group,
		consumer:    consumer,
		block:       block,
		reclaimIdle: reclaimIdle,
	}
}

// Publish appends a message to a stream (XADD)
func (q *StreamQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	id, err := q.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"key":     key,
			"message": string(message),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add to stream %s: %w", topic, err)
	}

	q.log.Debug("published to stream", "stream", topic, "key", key, "id", id)
	return nil
}

// Subscribe joins the consumer group on a stream and processes messages
// until the context is cancelled
func (q *StreamQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	// Create consumer group if it doesn't exist
	err := q.redis.XGroupCreateMkStream(ctx, topic, q.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	q.log.Info("subscribing to stream",
		"stream", topic,
		"group", q.group,
		"consumer", q.consumer)

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.log.Info("stream subscription cancelled", "stream", topic)
				return
			default:
				if err := q.processNext(ctx, topic, handler); err != nil {
					q.log.Error("failed to process message", "stream", topic, "error", err)
					time.Sleep(1 * time.Second) // Back off on error
				}
			}
		}
	}()

	return nil
}

// processNext adopts one abandoned pending message if there is one,
// otherwise reads one new message from the stream
func (q *StreamQueue) processNext(ctx context.Context, topic string, handler MessageHandler) error {
	claimed, err := q.reclaimNext(ctx, topic, handler)
	if err != nil || claimed {
		return err
	}

	streams, err := q.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{topic, ">"},
		Count:    1,
		Block:    q.block,
	}).Result()

	if err == redis.Nil {
		// No messages, continue
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("XREADGROUP error: %w", err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			q.handleAndAck(ctx, topic, message, handler)
		}
	}

	return nil
}

// reclaimNext takes over one message another consumer read but never
// acknowledged. A message only sits pending that long when its consumer
// died mid-handling; the config layer guarantees the idle window
// outlives the job lease, so the adopted message reprocesses instead of
// bouncing off a stale lease.
func (q *StreamQueue) reclaimNext(ctx context.Context, topic string, handler MessageHandler) (bool, error) {
	messages, _, err := q.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   topic,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.reclaimIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("XAUTOCLAIM error: %w", err)
	}
	if len(messages) == 0 {
		return false, nil
	}

	for _, message := range messages {
		q.log.Warn("reclaimed abandoned message",
			"stream", topic,
			"message_id", message.ID,
			"idle_over", q.reclaimIdle)
		q.handleAndAck(ctx, topic, message, handler)
	}

	return true, nil
}

// handleAndAck runs the handler and acknowledges the message either
// way: the handler owns failure semantics
func (q *StreamQueue) handleAndAck(ctx context.Context, topic string, message redis.XMessage, handler MessageHandler) {
	key, _ := message.Values["key"].(string)
	value, ok := message.Values["message"].(string)
	if !ok {
		q.log.Error("message missing payload field", "message_id", message.ID)
	} else if err := handler(ctx, key, []byte(value)); err != nil {
		q.log.Error("message handler error", "message_id", message.ID, "error", err)
	}

	if err := q.redis.XAck(ctx, topic, q.group, message.ID).Err(); err != nil {
		q.log.Error("failed to ACK message", "message_id", message.ID, "error", err)
	}
}

// Close closes the queue. The Redis client itself is owned by the
// bootstrap layer.
func (q *StreamQueue) Close() error {
	return nil
}
