package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/auditflow/automation-engine/common/logger"
)

// Queue carries job messages between the intake side and the workers.
// Subscribe starts the consume pump and returns; the context stops it.
type Queue interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// MessageHandler processes one message. Failures are terminal for the
// message on every backend; the job processor persists its own failure
// state rather than relying on redelivery for handler errors.
type MessageHandler func(ctx context.Context, key string, value []byte) error

// topicBuffer bounds how many undelivered messages a topic may hold
// before Publish starts failing
const topicBuffer = 1024

type message struct {
	key   string
	value []byte
}

// MemoryQueue is the process-local backend selected by queue.type
// "memory". Tests and single-binary development runs use it; messages
// do not survive a restart.
type MemoryQueue struct {
	topics map[string]chan *message
	mu     sync.Mutex
	closed bool
	log    *logger.Logger
}

// NewMemoryQueue creates an in-process queue
func NewMemoryQueue(log *logger.Logger) *MemoryQueue {
	return &MemoryQueue{
		topics: make(map[string]chan *message),
		log:    log,
	}
}

func (q *MemoryQueue) topic(name string) (chan *message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, fmt.Errorf("queue is closed")
	}
	ch, ok := q.topics[name]
	if !ok {
		ch = make(chan *message, topicBuffer)
		q.topics[name] = ch
	}
	return ch, nil
}

// Publish enqueues one message. A full topic is a hard error: job
// intake must surface backpressure, not drop work on the floor.
func (q *MemoryQueue) Publish(ctx context.Context, topic string, key string, value []byte) error {
	ch, err := q.topic(topic)
	if err != nil {
		return err
	}

	select {
	case ch <- &message{key: key, value: value}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("topic %s is full (%d pending)", topic, topicBuffer)
	}
}

// Subscribe starts the consume pump for a topic. Subscribers on the
// same topic share the channel, so each message reaches exactly one of
// them, matching the consumer-group semantics of the streams backend.
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	ch, err := q.topic(topic)
	if err != nil {
		return err
	}

	q.log.Info("subscribing to topic", "topic", topic)

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.log.Info("subscription cancelled", "topic", topic)
				return
			case msg, ok := <-ch:
				if !ok {
					q.log.Info("topic closed", "topic", topic)
					return
				}
				if err := handler(ctx, msg.key, msg.value); err != nil {
					q.log.Error("message handler error", "topic", topic, "key", msg.key, "error", err)
				}
			}
		}
	}()

	return nil
}

// Close rejects further publishes and stops the pumps once the buffered
// messages are drained
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	for name, ch := range q.topics {
		close(ch)
		q.log.Debug("closed topic", "topic", name)
	}
	return nil
}
