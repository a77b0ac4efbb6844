package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/michaeladamstrickland/convexa-backend/pkg/errors"
	"github.com/michaeladamstrickland/convexa-backend/pkg/logger"
)

// Handler processes one job attempt. Returning nil completes the job;
// returning an error lets the worker re-schedule it with backoff until the
// attempt budget runs out.
type Handler func(ctx context.Context, job *Job) error

// Metrics is the collector surface the worker reports into.
type Metrics interface {
	ObserveJobDuration(queue string, duration time.Duration)
	IncJob(queue, status string)
}

const (
	statusCompleted = "completed"
	statusRetried   = "retried"
	statusFailed    = "failed"
	statusDiscarded = "discarded"

	promoteBatch = 100
)

// WorkerParams configure one queue consumer pool.
type WorkerParams struct {
	Queue           string
	Store           Store
	Handler         Handler
	Logger          *logger.Logger
	Metrics         Metrics
	Concurrency     int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	PromoteInterval time.Duration
	PopBlock        time.Duration
}

// Worker pulls jobs from one named queue with a bounded number of in-flight
// handlers. Close stops pickup, drains in-flight work, and is safe to call
// more than once.
type Worker struct {
	queue           string
	store           Store
	handler         Handler
	logg            *logger.Logger
	metrics         Metrics
	concurrency     int
	backoffBase     time.Duration
	backoffMax      time.Duration
	promoteInterval time.Duration
	popBlock        time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWorker validates params and builds a worker for one queue.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Queue == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("queue store is required")
	}
	if params.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	backoffBase := params.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	backoffMax := params.BackoffMax
	if backoffMax <= 0 {
		backoffMax = 5 * time.Minute
	}
	promoteInterval := params.PromoteInterval
	if promoteInterval <= 0 {
		promoteInterval = time.Second
	}
	popBlock := params.PopBlock
	if popBlock <= 0 {
		popBlock = 5 * time.Second
	}
	return &Worker{
		queue:           params.Queue,
		store:           params.Store,
		handler:         params.Handler,
		logg:            params.Logger,
		metrics:         params.Metrics,
		concurrency:     concurrency,
		backoffBase:     backoffBase,
		backoffMax:      backoffMax,
		promoteInterval: promoteInterval,
		popBlock:        popBlock,
	}, nil
}

// Run blocks consuming jobs until the context is canceled or Close is called.
func (w *Worker) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		cancel()
		return nil
	}
	w.cancel = cancel
	w.mu.Unlock()

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.consumeLoop(runCtx)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.promoteLoop(runCtx)
	}()

	w.wg.Wait()
	return runCtx.Err()
}

// Close stops job pickup and waits for in-flight handlers to drain.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		cancel := w.cancel
		w.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
	w.wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context) {
	readyKey := w.store.QueueKey(w.queue)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		envelope, err := w.store.PopReady(ctx, readyKey, w.popBlock)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logg.Error(w.logg.WithQueue(ctx, w.queue), "queue pop failed", err)
			w.sleep(ctx, w.backoffBase)
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(envelope), &job); err != nil {
			w.logg.Error(w.logg.WithQueue(ctx, w.queue), "discarding undecodable envelope", err)
			w.incJob(statusDiscarded)
			continue
		}
		w.process(ctx, &job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	logCtx := w.logg.WithFields(ctx, map[string]any{
		"queue":   w.queue,
		"job_id":  job.ID,
		"attempt": job.AttemptsMade + 1,
	})

	start := time.Now()
	err := w.handler(logCtx, job)
	duration := time.Since(start)
	if w.metrics != nil {
		w.metrics.ObserveJobDuration(w.queue, duration)
	}
	logCtx = w.logg.WithField(logCtx, "duration_ms", duration.Milliseconds())

	if err == nil {
		w.incJob(statusCompleted)
		w.logg.Info(logCtx, "job completed")
		return
	}

	job.AttemptsMade++
	if pkgerrors.IsRetryable(err) && job.AttemptsMade < job.MaxAttempts {
		delay := backoffFor(job.AttemptsMade, w.backoffBase, w.backoffMax)
		job.ScheduledAt = time.Now().UTC().Add(delay)
		if scheduleErr := w.reschedule(ctx, job); scheduleErr != nil {
			w.logg.Error(logCtx, "failed to reschedule job", scheduleErr)
			w.incJob(statusFailed)
			return
		}
		w.incJob(statusRetried)
		w.logg.Warn(w.logg.WithField(logCtx, "error", err.Error()), "job attempt failed, retrying")
		return
	}

	w.incJob(statusFailed)
	w.logg.Error(logCtx, "job failed permanently", err)
	if job.KeepOnFail {
		if keepErr := w.pushFailed(ctx, job); keepErr != nil {
			w.logg.Error(logCtx, "failed to retain exhausted envelope", keepErr)
		}
	}
}

func (w *Worker) reschedule(ctx context.Context, job *Job) error {
	envelope, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return w.store.Schedule(ctx, w.store.DelayedKey(w.queue), string(envelope), job.ScheduledAt)
}

func (w *Worker) pushFailed(ctx context.Context, job *Job) error {
	envelope, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return w.store.PushReady(ctx, w.store.FailedKey(w.queue), string(envelope))
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.promoteInterval)
	defer ticker.Stop()
	delayedKey := w.store.DelayedKey(w.queue)
	readyKey := w.store.QueueKey(w.queue)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.store.PromoteDue(ctx, delayedKey, readyKey, time.Now(), promoteBatch); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				w.logg.Error(w.logg.WithQueue(ctx, w.queue), "promoting delayed jobs failed", err)
			}
		}
	}
}

func (w *Worker) incJob(status string) {
	if w.metrics != nil {
		w.metrics.IncJob(w.queue, status)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
