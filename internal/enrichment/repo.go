package enrichment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	dbtypes "github.com/michaeladamstrickland/convexa-backend/pkg/db/types"
)

// Repository exposes persistence helpers for the enrichment worker.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.ScrapedProperty, error)
	ApplyEnrichment(ctx context.Context, id uuid.UUID, result ScoreResult) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an enrichment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.ScrapedProperty, error) {
	var property models.ScrapedProperty
	err := r.db.WithContext(ctx).First(&property, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// ApplyEnrichment writes the scoring output at most once. The WHERE clause
// re-checks the unprocessed guard so a concurrent duplicate delivery loses
// the race and reports zero rows instead of overwriting.
func (r *repositoryImpl) ApplyEnrichment(ctx context.Context, id uuid.UUID, result ScoreResult) (bool, error) {
	tags := dbtypes.StringList(result.Tags)
	if tags == nil {
		tags = dbtypes.StringList{}
	}
	reasons := dbtypes.StringList(result.Reasons)
	if reasons == nil {
		reasons = dbtypes.StringList{}
	}
	tagReasons := dbtypes.StringList(result.TagReasons)
	if tagReasons == nil {
		tagReasons = dbtypes.StringList{}
	}

	res := r.db.WithContext(ctx).
		Model(&models.ScrapedProperty{}).
		Where("id = ? AND investment_score IS NULL AND (enrichment_tags IS NULL OR enrichment_tags = ?)", id, "[]").
		UpdateColumns(map[string]any{
			"investment_score": result.Score,
			"enrichment_tags":  tags,
			"reasons":          reasons,
			"tag_reasons":      tagReasons,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
