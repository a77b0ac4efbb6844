package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
)

// CrmActivity is an append-only log row for significant pipeline events.
// Rows are never mutated after creation.
type CrmActivity struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type       enums.CrmActivityType `gorm:"column:type;type:text;not null"`
	PropertyID *uuid.UUID            `gorm:"column:property_id;type:uuid"`
	LeadID     *uuid.UUID            `gorm:"column:lead_id;type:uuid"`
	UserID     *uuid.UUID            `gorm:"column:user_id;type:uuid"`
	Metadata   json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (CrmActivity) TableName() string { return "crm_activities" }
