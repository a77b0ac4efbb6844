package matchmaking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
)

// Repository exposes persistence helpers for matchmaking jobs. Status
// transitions are conditional updates; zero rows affected means another
// worker already moved the job or it sits in a terminal state.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.MatchmakingJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MatchmakingJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, matchedCount int, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
	CountMatches(ctx context.Context, filter Filter) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a matchmaking repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, job *models.MatchmakingJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.MatchmakingJob, error) {
	var job models.MatchmakingJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repositoryImpl) MarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.MatchmakingJob{}).
		Where("id = ? AND status = ?", id, enums.MatchmakingQueued).
		UpdateColumn("status", enums.MatchmakingRunning)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkCompleted(ctx context.Context, id uuid.UUID, matchedCount int, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.MatchmakingJob{}).
		Where("id = ? AND status = ?", id, enums.MatchmakingRunning).
		UpdateColumns(map[string]any{
			"status":        enums.MatchmakingCompleted,
			"matched_count": matchedCount,
			"completed_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.MatchmakingJob{}).
		Where("id = ? AND status IN ?", id, []enums.MatchmakingStatus{enums.MatchmakingQueued, enums.MatchmakingRunning}).
		UpdateColumn("status", enums.MatchmakingFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repositoryImpl) CountMatches(ctx context.Context, filter Filter) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ScrapedProperty{})
	if filter.PropertyID != nil {
		query = query.Where("id = ?", *filter.PropertyID)
	}
	if filter.MinScore != nil {
		query = query.Where("investment_score IS NOT NULL AND investment_score >= ?", *filter.MinScore)
	}
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
