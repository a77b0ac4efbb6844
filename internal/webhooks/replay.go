package webhooks

import (
	"context"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
	pkgerrors "github.com/michaeladamstrickland/convexa-backend/pkg/errors"
	"github.com/michaeladamstrickland/convexa-backend/pkg/queue"
)

// ReplayFailure enqueues a fresh delivery job for one dead-letter record.
// The record stays unresolved until the replay actually lands.
func (s *Service) ReplayFailure(ctx context.Context, failureID uuid.UUID) (*queue.Job, error) {
	failure, err := s.repo.FindFailure(ctx, failureID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery failure")
	}
	if failure == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery failure not found")
	}
	if failure.IsResolved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivery failure already resolved")
	}
	return s.enqueueReplay(ctx, failure, enums.ReplaySingle)
}

// ReplayAll enqueues replays for up to limit unresolved failures, oldest
// first, and returns how many were scheduled.
func (s *Service) ReplayAll(ctx context.Context, limit int) (int, error) {
	failures, err := s.repo.ListUnresolvedFailures(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unresolved failures")
	}

	replayed := 0
	for i := range failures {
		if _, err := s.enqueueReplay(ctx, &failures[i], enums.ReplayBulk); err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

func (s *Service) enqueueReplay(ctx context.Context, failure *models.WebhookDeliveryFailure, mode enums.ReplayMode) (*queue.Job, error) {
	payload := deliveryPayload{
		SubscriptionID: failure.SubscriptionID.String(),
		EventType:      string(failure.EventType),
		Payload:        failure.Payload,
		FailureID:      failure.ID.String(),
		ReplayMode:     string(mode),
	}
	job, err := s.producer.Enqueue(ctx, string(enums.QueueWebhook), payload, queue.Options{Attempts: s.attempts})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue replay")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"failure_id": failure.ID.String(),
		"mode":       string(mode),
		"job_id":     job.ID,
	})
	s.logg.Info(ctx, "delivery replay enqueued")
	return job, nil
}
