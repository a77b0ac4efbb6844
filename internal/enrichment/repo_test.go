package enrichment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
)

func setupEnrichmentTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	properties := `
CREATE TABLE IF NOT EXISTS scraped_properties (
  id TEXT PRIMARY KEY,
  address TEXT NOT NULL,
  source TEXT NOT NULL,
  price NUMERIC NOT NULL,
  sqft INTEGER NOT NULL DEFAULT 0,
  condition TEXT,
  enrichment_tags TEXT NOT NULL DEFAULT '[]',
  investment_score INTEGER,
  reasons TEXT NOT NULL DEFAULT '[]',
  tag_reasons TEXT NOT NULL DEFAULT '[]',
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(properties).Error)
	return db
}

func seedProperty(t *testing.T, db *gorm.DB) *models.ScrapedProperty {
	t.Helper()
	property := &models.ScrapedProperty{
		ID:        uuid.New(),
		Address:   "42 Maple St",
		Source:    "county-records",
		Price:     decimal.NewFromInt(120_000),
		Sqft:      1500,
		Condition: "fair",
	}
	require.NoError(t, db.Create(property).Error)
	return property
}

func TestApplyEnrichmentWritesOnce(t *testing.T) {
	db := setupEnrichmentTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	property := seedProperty(t, db)
	result := Score(property.Price, property.Sqft, property.Condition)

	updated, err := repo.ApplyEnrichment(ctx, property.ID, result)
	require.NoError(t, err)
	require.True(t, updated)

	reloaded, err := repo.FindByID(ctx, property.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.InvestmentScore)
	require.Equal(t, result.Score, *reloaded.InvestmentScore)
	require.True(t, reloaded.Enriched())

	// A second pass loses to the guard and must not overwrite.
	updated, err = repo.ApplyEnrichment(ctx, property.ID, ScoreResult{Score: 1})
	require.NoError(t, err)
	require.False(t, updated)

	reloaded, err = repo.FindByID(ctx, property.ID)
	require.NoError(t, err)
	require.Equal(t, result.Score, *reloaded.InvestmentScore)
}

func TestApplyEnrichmentGuardsOnTagsAlone(t *testing.T) {
	db := setupEnrichmentTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	// A row carrying tags but no score is already processed and must not
	// be overwritten while the score write is still in flight elsewhere.
	property := seedProperty(t, db)
	require.NoError(t, db.Model(&models.ScrapedProperty{}).
		Where("id = ?", property.ID).
		UpdateColumn("enrichment_tags", `["fixer"]`).Error)

	updated, err := repo.ApplyEnrichment(ctx, property.ID, ScoreResult{Score: 1, Tags: []string{"entry-level"}})
	require.NoError(t, err)
	require.False(t, updated)

	reloaded, err := repo.FindByID(ctx, property.ID)
	require.NoError(t, err)
	require.Nil(t, reloaded.InvestmentScore)
	require.Equal(t, []string{"fixer"}, []string(reloaded.EnrichmentTags))
}

func TestFindByIDMissingReturnsNil(t *testing.T) {
	db := setupEnrichmentTestDB(t)
	repo := NewRepository(db)

	property, err := repo.FindByID(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, property)
}
