package webhooks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
	pkgerrors "github.com/michaeladamstrickland/convexa-backend/pkg/errors"
	"github.com/michaeladamstrickland/convexa-backend/pkg/logger"
	"github.com/michaeladamstrickland/convexa-backend/pkg/queue"
)

// Metrics is the collector slice the delivery worker reports into.
type Metrics interface {
	IncDelivery(status string)
	IncReplay(mode, status string)
}

// Guard is the Redis-backed idempotency surface. The delayed-set promoter
// can re-deliver an envelope after a crash, so the worker marks each job id
// before sending and drops the copy that loses the SETNX race.
type Guard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// ServiceParams wire the delivery worker. Metrics and Guard are optional.
type ServiceParams struct {
	Repo     Repository
	Sender   *Sender
	Producer Enqueuer
	Metrics  Metrics
	Guard    Guard
	Logger   *logger.Logger
	Attempts int
}

// Service processes webhook delivery jobs and owns the dead-letter replay
// surface consumed by the admin HTTP layer.
type Service struct {
	repo     Repository
	sender   *Sender
	producer Enqueuer
	metrics  Metrics
	guard    Guard
	logg     *logger.Logger
	attempts int
}

const (
	guardScope = "delivery"
	guardTTL   = 24 * time.Hour
)

// NewService validates dependencies and returns the delivery service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhooks repository required")
	}
	if params.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "delivery sender required")
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
	return &Service{
		repo:     params.Repo,
		sender:   params.Sender,
		producer: params.Producer,
		metrics:  params.Metrics,
		guard:    params.Guard,
		logg:     params.Logger,
		attempts: attempts,
	}, nil
}

// Handle is the queue handler for delivery jobs. Missing or inactive
// subscriptions are dropped without error so stale fan-out jobs drain
// cleanly after a subscriber is disabled.
func (s *Service) Handle(ctx context.Context, job *queue.Job) error {
	var payload deliveryPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery payload")
	}
	subscriptionID, err := uuid.Parse(payload.SubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription id")
	}
	ctx = s.logg.WithSubscriptionID(ctx, subscriptionID.String())
	ctx = s.logg.WithField(ctx, "event", payload.EventType)

	sub, err := s.repo.FindSubscription(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil || !sub.IsActive {
		s.logg.Info(ctx, "subscription missing or inactive, dropping delivery")
		s.incDelivery("dropped")
		return nil
	}

	if s.guard != nil {
		acquired, err := s.guard.SetNX(ctx, s.guard.IdempotencyKey(guardScope, job.ID), 1, guardTTL)
		if err != nil {
			s.logg.Error(ctx, "idempotency guard unavailable, delivering anyway", err)
		} else if !acquired {
			s.logg.Info(ctx, "duplicate delivery suppressed")
			s.incDelivery("duplicate")
			return nil
		}
	}

	sendErr := s.sender.Send(ctx, sub, payload.EventType, payload.Payload, job.ID)
	if sendErr == nil {
		return s.handleSuccess(ctx, job, sub, payload)
	}
	return s.handleFailure(ctx, job, sub, payload, sendErr)
}

// releaseGuard frees the job id so a retried envelope is not mistaken for a
// duplicate.
func (s *Service) releaseGuard(ctx context.Context, job *queue.Job) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Del(ctx, s.guard.IdempotencyKey(guardScope, job.ID)); err != nil {
		s.logg.Error(ctx, "releasing idempotency guard", err)
	}
}

func (s *Service) handleSuccess(ctx context.Context, job *queue.Job, sub *models.WebhookSubscription, payload deliveryPayload) error {
	now := time.Now().UTC()
	log := &models.WebhookDeliveryLog{
		SubscriptionID: sub.ID,
		EventType:      enums.WebhookEventType(payload.EventType),
		JobID:          job.ID,
		Status:         enums.DeliveryDelivered,
		AttemptsMade:   job.AttemptsMade + 1,
		LastAttemptAt:  now,
	}
	if err := s.repo.CreateLog(ctx, log); err != nil {
		s.logg.Error(ctx, "recording delivered log failed", err)
	}
	s.incDelivery(string(enums.DeliveryDelivered))
	s.logg.Info(ctx, "webhook delivered")

	if payload.FailureID != "" {
		s.resolveReplayedFailure(ctx, job, sub, payload, now)
	}
	return nil
}

// resolveReplayedFailure closes out the dead-letter record a successful
// replay belonged to. The conditional resolve means only the first replay
// to succeed stamps the failure; later ones find it already closed.
func (s *Service) resolveReplayedFailure(ctx context.Context, job *queue.Job, sub *models.WebhookSubscription, payload deliveryPayload, now time.Time) {
	failureID, err := uuid.Parse(payload.FailureID)
	if err != nil {
		s.logg.Error(ctx, "replay carried an invalid failure id", err)
		return
	}

	resolved, err := s.repo.ResolveFailure(ctx, failureID, job.ID, now)
	if err != nil {
		s.logg.Error(ctx, "resolving replayed failure", err)
		return
	}
	if resolved {
		eventType := enums.WebhookEventType(payload.EventType)
		if _, err := s.repo.ResolveFailedLogs(ctx, sub.ID, eventType); err != nil {
			s.logg.Error(ctx, "resolving prior failed logs", err)
		}
	}
	s.incReplay(payload.ReplayMode, "success")
}

func (s *Service) handleFailure(ctx context.Context, job *queue.Job, sub *models.WebhookSubscription, payload deliveryPayload, sendErr error) error {
	s.releaseGuard(ctx, job)

	// A non-retryable error kills the job at the queue regardless of the
	// attempts left, so it must dead-letter now or never.
	if !job.FinalAttempt() && pkgerrors.IsRetryable(sendErr) {
		s.logg.Warn(ctx, "delivery attempt failed, queue will retry")
		return sendErr
	}

	now := time.Now().UTC()
	message := sendErr.Error()
	attempts := job.AttemptsMade + 1

	log := &models.WebhookDeliveryLog{
		SubscriptionID: sub.ID,
		EventType:      enums.WebhookEventType(payload.EventType),
		JobID:          job.ID,
		Status:         enums.DeliveryFailed,
		AttemptsMade:   attempts,
		LastError:      &message,
		LastAttemptAt:  now,
	}
	if err := s.repo.CreateLog(ctx, log); err != nil {
		s.logg.Error(ctx, "recording failed log", err)
	}
	s.incDelivery(string(enums.DeliveryFailed))

	if payload.FailureID != "" {
		// A failed replay leaves the original dead-letter record open.
		s.incReplay(payload.ReplayMode, "failed")
		s.logg.Error(ctx, "replay exhausted attempts", sendErr)
		return sendErr
	}

	failure := &models.WebhookDeliveryFailure{
		SubscriptionID: sub.ID,
		EventType:      enums.WebhookEventType(payload.EventType),
		Payload:        payload.Payload,
		Attempts:       attempts,
		FinalError:     message,
	}
	if err := s.repo.CreateFailure(ctx, failure); err != nil {
		s.logg.Error(ctx, "recording delivery failure", err)
	}
	s.logg.Error(ctx, "delivery exhausted attempts, dead-lettered", sendErr)
	return sendErr
}

func (s *Service) incDelivery(status string) {
	if s.metrics != nil {
		s.metrics.IncDelivery(status)
	}
}

func (s *Service) incReplay(mode, status string) {
	if mode == "" {
		mode = string(enums.ReplaySingle)
	}
	if s.metrics != nil {
		s.metrics.IncReplay(mode, status)
	}
}
