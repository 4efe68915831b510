package queue

import (
	"context"
	"sync"
	"time"

	"github.com/convexa/nameforge/common/logger"
	rediscommon "github.com/convexa/nameforge/common/redis"
)

// Queue interface for job dispatch between the API service and the
// propagation worker
type Queue interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// MessageHandler processes messages
type MessageHandler func(ctx context.Context, key string, value []byte) error

// Message represents a queue message
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// MemoryQueue is an in-memory queue used in tests and single-process mode
type MemoryQueue struct {
	topics map[string]chan *Message
	mu     sync.RWMutex
	log    *logger.Logger
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(log *logger.Logger) *MemoryQueue {
	return &MemoryQueue{
		topics: make(map[string]chan *Message),
		log:    log,
	}
}

// Publish publishes a message to a topic
func (q *MemoryQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, exists := q.topics[topic]
	if !exists {
		ch = make(chan *Message, 1000) // Buffered channel
		q.topics[topic] = ch
	}

	msg := &Message{
		Topic: topic,
		Key:   key,
		Value: message,
	}

	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Channel full, log warning
		q.log.Warn("queue full", "topic", topic)
		return nil
	}
}

// Subscribe subscribes to a topic and processes messages
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	q.mu.Lock()
	ch, exists := q.topics[topic]
	if !exists {
		ch = make(chan *Message, 1000)
		q.topics[topic] = ch
	}
	q.mu.Unlock()

	q.log.Info("subscribing to topic", "topic", topic)

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.log.Info("subscription cancelled", "topic", topic)
				return
			case msg := <-ch:
				if err := handler(ctx, msg.Key, msg.Value); err != nil {
					q.log.Error("message handler error", "topic", topic, "key", msg.Key, "error", err)
				}
			}
		}
	}()

	return nil
}

// Close closes the queue
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for topic, ch := range q.topics {
		close(ch)
		q.log.Info("closed topic", "topic", topic)
	}

	return nil
}

// RedisQueue dispatches messages through redis lists so jobs survive the
// submitting process and can be consumed by a separate worker binary
type RedisQueue struct {
	client      *rediscommon.Client
	pollTimeout time.Duration
	log         *logger.Logger
}

// NewRedisQueue creates a redis-list-backed queue
func NewRedisQueue(client *rediscommon.Client, pollTimeout time.Duration, log *logger.Logger) *RedisQueue {
	return &RedisQueue{
		client:      client,
		pollTimeout: pollTimeout,
		log:         log,
	}
}

// Publish appends a message to the topic's list
func (q *RedisQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	return q.client.PushQueue(ctx, topic, message)
}

// Subscribe polls the topic's list with BLPOP until the context is done
func (q *RedisQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	q.log.Info("subscribing to redis queue", "topic", topic)

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.log.Info("subscription cancelled", "topic", topic)
				return
			default:
				payload, err := q.client.PopQueue(ctx, topic, q.pollTimeout)
				if err != nil {
					q.log.Error("failed to read from queue", "topic", topic, "error", err)
					continue
				}
				if payload == nil {
					// Timeout, continue loop
					continue
				}
				if err := handler(ctx, topic, payload); err != nil {
					q.log.Error("message handler error", "topic", topic, "error", err)
				}
			}
		}
	}()

	return nil
}

// Close is a no-op; the underlying redis client is owned by the container
func (q *RedisQueue) Close() error {
	return nil
}
