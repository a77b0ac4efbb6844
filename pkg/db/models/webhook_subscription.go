package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/michaeladamstrickland/convexa-backend/pkg/db/types"
)

// WebhookSubscription is a registered external CRM endpoint. The delivery
// worker treats these rows as read-only; subscription management lives in
// the HTTP layer.
type WebhookSubscription struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TargetURL     string             `gorm:"column:target_url;type:text;not null"`
	SigningSecret string             `gorm:"column:signing_secret;type:text;not null"`
	EventTypes    dbtypes.StringList `gorm:"column:event_types;type:jsonb;not null;default:'[]'"`
	IsActive      bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (WebhookSubscription) TableName() string { return "webhook_subscriptions" }

// AcceptsEvent reports whether the subscription is live and registered for
// the given event type.
func (s WebhookSubscription) AcceptsEvent(eventType string) bool {
	return s.IsActive && s.EventTypes.Contains(eventType)
}
