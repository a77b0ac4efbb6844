package webhooks

import (
	"context"
	"encoding/json"

	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
	pkgerrors "github.com/michaeladamstrickland/convexa-backend/pkg/errors"
	"github.com/michaeladamstrickland/convexa-backend/pkg/logger"
	"github.com/michaeladamstrickland/convexa-backend/pkg/queue"
)

// Enqueuer is the producer slice the fan-out needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts queue.Options) (*queue.Job, error)
}

// deliveryPayload is the envelope payload of one webhook delivery job.
// FailureID and ReplayMode are set only on replays.
type deliveryPayload struct {
	SubscriptionID string          `json:"subscriptionId"`
	EventType      string          `json:"eventType"`
	Payload        json.RawMessage `json:"payload"`
	FailureID      string          `json:"failureId,omitempty"`
	ReplayMode     string          `json:"replayMode,omitempty"`
}

// FanOut turns one domain event into one delivery job per interested
// subscriber. A subscriber with no matching registration costs nothing.
type FanOut struct {
	repo     Repository
	producer Enqueuer
	logg     *logger.Logger
	attempts int
}

// FanOutParams wire the fan-out producer.
type FanOutParams struct {
	Repo     Repository
	Producer Enqueuer
	Logger   *logger.Logger
	Attempts int
}

// NewFanOut validates dependencies and returns the fan-out producer.
func NewFanOut(params FanOutParams) (*FanOut, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhooks repository required")
	}
	if params.Producer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "queue producer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	attempts := params.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	return &FanOut{
		repo:     params.Repo,
		producer: params.Producer,
		logg:     params.Logger,
		attempts: attempts,
	}, nil
}

// Publish enqueues one delivery job per active subscription registered for
// the event type and returns how many jobs were created.
func (f *FanOut) Publish(ctx context.Context, eventType enums.WebhookEventType, data any) (int, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode event data")
	}

	subs, err := f.repo.ListActiveForEvent(ctx, eventType)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}

	enqueued := 0
	for _, sub := range subs {
		payload := deliveryPayload{
			SubscriptionID: sub.ID.String(),
			EventType:      string(eventType),
			Payload:        raw,
		}
		if _, err := f.producer.Enqueue(ctx, string(enums.QueueWebhook), payload, queue.Options{Attempts: f.attempts}); err != nil {
			return enqueued, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue delivery job")
		}
		enqueued++
	}

	if enqueued > 0 {
		ctx = f.logg.WithFields(ctx, map[string]any{"event": string(eventType), "deliveries": enqueued})
		f.logg.Info(ctx, "event fanned out")
	}
	return enqueued, nil
}
