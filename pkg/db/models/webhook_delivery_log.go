package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
)

// WebhookDeliveryLog records one delivery attempt outcome, delivered or
// failed. Rows are append-only except for the IsResolved flag, which a
// successful replay flips on older failed rows.
type WebhookDeliveryLog struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID              `gorm:"column:subscription_id;type:uuid;not null"`
	EventType      enums.WebhookEventType `gorm:"column:event_type;type:text;not null"`
	JobID          string                 `gorm:"column:job_id;type:text;not null"`
	Status         enums.DeliveryStatus   `gorm:"column:status;type:text;not null"`
	AttemptsMade   int                    `gorm:"column:attempts_made;not null;default:0"`
	LastError      *string                `gorm:"column:last_error"`
	LastAttemptAt  time.Time              `gorm:"column:last_attempt_at;not null"`
	IsResolved     bool                   `gorm:"column:is_resolved;not null;default:false"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (WebhookDeliveryLog) TableName() string { return "webhook_delivery_logs" }
