package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
)

// WebhookDeliveryFailure is the dead-letter record created when a delivery
// job exhausts its attempt budget. It holds the full payload so the event
// can be replayed later; the first successful replay marks it resolved.
type WebhookDeliveryFailure struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID              `gorm:"column:subscription_id;type:uuid;not null"`
	EventType      enums.WebhookEventType `gorm:"column:event_type;type:text;not null"`
	Payload        json.RawMessage        `gorm:"column:payload;type:jsonb;not null"`
	Attempts       int                    `gorm:"column:attempts;not null"`
	FinalError     string                 `gorm:"column:final_error;type:text;not null"`
	IsResolved     bool                   `gorm:"column:is_resolved;not null;default:false"`
	ReplayedAt     *time.Time             `gorm:"column:replayed_at"`
	ReplayJobID    *string                `gorm:"column:replay_job_id;type:text"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (WebhookDeliveryFailure) TableName() string { return "webhook_delivery_failures" }
