package crm

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
)

// Repository exposes persistence helpers for the append-only activity log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, activity *models.CrmActivity) error
	ListByProperty(ctx context.Context, propertyID uuid.UUID, limit int) ([]models.CrmActivity, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an activity repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, activity *models.CrmActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *repositoryImpl) ListByProperty(ctx context.Context, propertyID uuid.UUID, limit int) ([]models.CrmActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	var activities []models.CrmActivity
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("created_at DESC").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}
