// Package queue implements the durable Redis-backed job queue shared by the
// pipeline workers. Envelopes travel through a ready list per queue plus a
// delayed set for scheduled and backed-off retries; delivery is at-least-once
// and consumers are expected to be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Store is the narrow Redis surface the queue relies on.
type Store interface {
	PushReady(ctx context.Context, queueKey string, envelope string) error
	PopReady(ctx context.Context, queueKey string, block time.Duration) (string, error)
	Schedule(ctx context.Context, delayedKey string, envelope string, runAt time.Time) error
	PromoteDue(ctx context.Context, delayedKey, queueKey string, now time.Time, batch int64) (int, error)
	QueueKey(name string) string
	DelayedKey(name string) string
	FailedKey(name string) string
}

// Job is the envelope carried through Redis for one unit of work.
type Job struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Payload      json.RawMessage `json:"payload"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	KeepOnFail   bool            `json:"keepOnFail"`
	EnqueuedAt   time.Time       `json:"enqueuedAt"`
	ScheduledAt  time.Time       `json:"scheduledAt"`
}

// FinalAttempt reports whether the attempt currently being processed is the
// last one before the retry budget runs out.
func (j *Job) FinalAttempt() bool {
	return j.AttemptsMade+1 >= j.MaxAttempts
}

// UnmarshalPayload decodes the job payload into the given value.
func (j *Job) UnmarshalPayload(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Queue, err)
	}
	return nil
}

// Options control retry budget, scheduling, and retention per enqueue.
type Options struct {
	Attempts         int           `validate:"gte=0,lte=25"`
	Delay            time.Duration `validate:"gte=0"`
	RemoveOnComplete bool
	RemoveOnFail     bool
}

const defaultAttempts = 3

// Producer enqueues jobs onto named queues.
type Producer struct {
	store    Store
	validate *validator.Validate
}

// NewProducer builds a producer over the given store.
func NewProducer(store Store) (*Producer, error) {
	if store == nil {
		return nil, fmt.Errorf("queue store is required")
	}
	return &Producer{
		store:    store,
		validate: validator.New(),
	}, nil
}

// Enqueue marshals the payload into an envelope and places it on the ready
// list, or in the delayed set when a delay is requested. It returns the job
// handle so callers can reference the job id.
func (p *Producer) Enqueue(ctx context.Context, queueName string, payload any, opts Options) (*Job, error) {
	if queueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if err := p.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid enqueue options: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", queueName, err)
	}

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	now := time.Now().UTC()
	job := &Job{
		ID:           uuid.NewString(),
		Queue:        queueName,
		Payload:      raw,
		AttemptsMade: 0,
		MaxAttempts:  attempts,
		KeepOnFail:   !opts.RemoveOnFail,
		EnqueuedAt:   now,
		ScheduledAt:  now.Add(opts.Delay),
	}

	envelope, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", queueName, err)
	}

	if opts.Delay > 0 {
		if err := p.store.Schedule(ctx, p.store.DelayedKey(queueName), string(envelope), job.ScheduledAt); err != nil {
			return nil, fmt.Errorf("schedule %s job: %w", queueName, err)
		}
		return job, nil
	}

	if err := p.store.PushReady(ctx, p.store.QueueKey(queueName), string(envelope)); err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", queueName, err)
	}
	return job, nil
}
