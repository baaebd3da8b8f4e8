// Package queue carries sync jobs from the api to the worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/metrics"
)

// TypeSync is the message type of an attendance sync job.
const TypeSync = "attendance.sync"

// Message represents work to be processed.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// SyncJob asks the worker to synchronize one session.
type SyncJob struct {
	ID         string    `json:"id"`
	SessionID  int64     `json:"session_id"`
	Start      int64     `json:"start,omitempty"`
	End        int64     `json:"end,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// PublishSync assigns a job id when missing and enqueues the job.
func PublishSync(ctx context.Context, q Queue, job SyncJob) (SyncJob, error) {
	if job.SessionID <= 0 {
		return SyncJob{}, errors.New("sync job requires a session id")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return SyncJob{}, err
	}
	if err := q.Publish(ctx, Message{Type: TypeSync, Body: body}); err != nil {
		return SyncJob{}, fmt.Errorf("publish sync job: %w", err)
	}
	metrics.QueueJobs.WithLabelValues("published").Inc()
	return job, nil
}

// DecodeSync reads a SyncJob from a TypeSync message.
func DecodeSync(msg Message) (SyncJob, error) {
	if msg.Type != TypeSync {
		return SyncJob{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var job SyncJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return SyncJob{}, fmt.Errorf("decode sync job: %w", err)
	}
	if job.SessionID <= 0 {
		return SyncJob{}, errors.New("sync job without session id")
	}
	return job, nil
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "attendance:sync"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	data, err := serialize(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					logging.Warn().Err(err).Str("queue", q.key).Msg("brpop failed")
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			msg, err := deserialize(res[1])
			if err != nil {
				logging.Warn().Err(err).Str("queue", q.key).Msg("dropping malformed message")
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func serialize(msg Message) (string, error) {
	b, err := json.Marshal(msg)
	return string(b), err
}

func deserialize(s string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(s), &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, errors.New("message without type")
	}
	return msg, nil
}
