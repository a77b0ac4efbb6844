package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/michaeladamstrickland/convexa-backend/pkg/errors"
	"github.com/michaeladamstrickland/convexa-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "queue-test", Output: discardWriter{}})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func startWorker(t *testing.T, params WorkerParams) *Worker {
	t.Helper()
	if params.Logger == nil {
		params.Logger = testLogger()
	}
	if params.BackoffBase == 0 {
		params.BackoffBase = time.Millisecond
	}
	if params.BackoffMax == 0 {
		params.BackoffMax = 2 * time.Millisecond
	}
	if params.PromoteInterval == 0 {
		params.PromoteInterval = time.Millisecond
	}
	if params.PopBlock == 0 {
		params.PopBlock = time.Millisecond
	}
	worker, err := NewWorker(params)
	require.NoError(t, err)
	go func() { _ = worker.Run(context.Background()) }()
	t.Cleanup(func() { _ = worker.Close() })
	return worker
}

func TestWorker_RetriesUntilSuccess(t *testing.T) {
	store := newFakeStore()
	producer, err := NewProducer(store)
	require.NoError(t, err)

	var attempts atomic.Int32
	handler := func(ctx context.Context, job *Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient failure")
		}
		return nil
	}
	startWorker(t, WorkerParams{Queue: "enrichment", Store: store, Handler: handler})

	_, err = producer.Enqueue(context.Background(), "enrichment", map[string]string{"propertyId": "p-1"}, Options{Attempts: 5})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return attempts.Load() == 3
	}, 5*time.Second, 5*time.Millisecond, "want 3 attempts, got %d", attempts.Load())
}

func TestWorker_ExhaustionRetainsEnvelope(t *testing.T) {
	store := newFakeStore()
	producer, err := NewProducer(store)
	require.NoError(t, err)

	var attempts atomic.Int32
	handler := func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return errors.New("always failing")
	}
	startWorker(t, WorkerParams{Queue: "webhook", Store: store, Handler: handler})

	_, err = producer.Enqueue(context.Background(), "webhook", map[string]string{}, Options{Attempts: 2})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(store.failedEnvelopes("webhook")) == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.EqualValues(t, 2, attempts.Load())

	var retained Job
	require.NoError(t, json.Unmarshal([]byte(store.failedEnvelopes("webhook")[0]), &retained))
	require.Equal(t, 2, retained.AttemptsMade)
	require.Equal(t, 2, retained.MaxAttempts)
}

func TestWorker_NonRetryableFailsImmediately(t *testing.T) {
	store := newFakeStore()
	producer, err := NewProducer(store)
	require.NoError(t, err)

	var attempts atomic.Int32
	handler := func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription missing")
	}
	startWorker(t, WorkerParams{Queue: "webhook", Store: store, Handler: handler})

	_, err = producer.Enqueue(context.Background(), "webhook", map[string]string{}, Options{Attempts: 5, RemoveOnFail: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return attempts.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	// RemoveOnFail drops the envelope instead of retaining it.
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, attempts.Load())
	require.Empty(t, store.failedEnvelopes("webhook"))
}

func TestWorker_DelayedJobIsPromoted(t *testing.T) {
	store := newFakeStore()
	producer, err := NewProducer(store)
	require.NoError(t, err)

	var done atomic.Bool
	handler := func(ctx context.Context, job *Job) error {
		done.Store(true)
		return nil
	}
	startWorker(t, WorkerParams{Queue: "matchmaking", Store: store, Handler: handler})

	_, err = producer.Enqueue(context.Background(), "matchmaking", map[string]string{}, Options{Delay: 10 * time.Millisecond})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return done.Load() }, 5*time.Second, 5*time.Millisecond)
}

func TestWorker_CloseIsIdempotent(t *testing.T) {
	store := newFakeStore()
	worker := startWorker(t, WorkerParams{
		Queue:   "enrichment",
		Store:   store,
		Handler: func(ctx context.Context, job *Job) error { return nil },
	})

	require.NoError(t, worker.Close())
	require.NoError(t, worker.Close())
}
