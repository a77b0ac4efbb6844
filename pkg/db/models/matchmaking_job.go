package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
)

// MatchmakingJob tracks one evaluation of a stored buyer filter against the
// property set. Status moves queued -> running -> completed|failed and never
// leaves a terminal state; replays create a new row instead of re-running.
type MatchmakingJob struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FilterJSON   json.RawMessage         `gorm:"column:filter_json;type:jsonb;not null"`
	Origin       enums.JobOrigin         `gorm:"column:origin;type:text;not null;default:'admin'"`
	Status       enums.MatchmakingStatus `gorm:"column:status;type:text;not null;default:'queued'"`
	MatchedCount *int                    `gorm:"column:matched_count"`
	CompletedAt  *time.Time              `gorm:"column:completed_at"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (MatchmakingJob) TableName() string { return "matchmaking_jobs" }
