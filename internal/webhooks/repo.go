package webhooks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
)

// Repository exposes persistence for subscriptions, delivery logs, and the
// dead-letter store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindSubscription(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error)
	ListActiveForEvent(ctx context.Context, eventType enums.WebhookEventType) ([]models.WebhookSubscription, error)

	CreateLog(ctx context.Context, log *models.WebhookDeliveryLog) error
	ResolveFailedLogs(ctx context.Context, subscriptionID uuid.UUID, eventType enums.WebhookEventType) (int64, error)

	CreateFailure(ctx context.Context, failure *models.WebhookDeliveryFailure) error
	FindFailure(ctx context.Context, id uuid.UUID) (*models.WebhookDeliveryFailure, error)
	ResolveFailure(ctx context.Context, id uuid.UUID, replayJobID string, now time.Time) (bool, error)
	ListUnresolvedFailures(ctx context.Context, limit int) ([]models.WebhookDeliveryFailure, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a webhooks repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindSubscription(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error) {
	var sub models.WebhookSubscription
	err := r.db.WithContext(ctx).First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListActiveForEvent loads active subscriptions and filters the event match
// in Go; the event list is a small JSON column and the subscription table
// stays small enough that a containment query buys nothing.
func (r *repositoryImpl) ListActiveForEvent(ctx context.Context, eventType enums.WebhookEventType) ([]models.WebhookSubscription, error) {
	var subs []models.WebhookSubscription
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&subs).Error; err != nil {
		return nil, err
	}

	matched := subs[:0]
	for _, sub := range subs {
		if sub.AcceptsEvent(string(eventType)) {
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

func (r *repositoryImpl) CreateLog(ctx context.Context, log *models.WebhookDeliveryLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repositoryImpl) ResolveFailedLogs(ctx context.Context, subscriptionID uuid.UUID, eventType enums.WebhookEventType) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WebhookDeliveryLog{}).
		Where("subscription_id = ? AND event_type = ? AND status = ? AND is_resolved = ?",
			subscriptionID, eventType, enums.DeliveryFailed, false).
		UpdateColumn("is_resolved", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repositoryImpl) CreateFailure(ctx context.Context, failure *models.WebhookDeliveryFailure) error {
	return r.db.WithContext(ctx).Create(failure).Error
}

func (r *repositoryImpl) FindFailure(ctx context.Context, id uuid.UUID) (*models.WebhookDeliveryFailure, error) {
	var failure models.WebhookDeliveryFailure
	err := r.db.WithContext(ctx).First(&failure, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &failure, nil
}

// ResolveFailure marks a dead-letter row resolved exactly once. Concurrent
// replays race on the conditional update and only the first success wins.
func (r *repositoryImpl) ResolveFailure(ctx context.Context, id uuid.UUID, replayJobID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WebhookDeliveryFailure{}).
		Where("id = ? AND is_resolved = ?", id, false).
		UpdateColumns(map[string]any{
			"is_resolved":   true,
			"replayed_at":   now,
			"replay_job_id": replayJobID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repositoryImpl) ListUnresolvedFailures(ctx context.Context, limit int) ([]models.WebhookDeliveryFailure, error) {
	if limit <= 0 {
		limit = 100
	}
	var failures []models.WebhookDeliveryFailure
	err := r.db.WithContext(ctx).
		Where("is_resolved = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&failures).Error
	if err != nil {
		return nil, err
	}
	return failures, nil
}
