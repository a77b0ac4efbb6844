package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
)

func setupMatchmakingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	jobs := `
CREATE TABLE IF NOT EXISTS matchmaking_jobs (
  id TEXT PRIMARY KEY,
  filter_json TEXT NOT NULL,
  origin TEXT NOT NULL DEFAULT 'admin',
  status TEXT NOT NULL DEFAULT 'queued',
  matched_count INTEGER,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
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
	require.NoError(t, db.Exec(jobs).Error)
	require.NoError(t, db.Exec(properties).Error)
	require.NoError(t, db.Exec("DELETE FROM matchmaking_jobs").Error)
	require.NoError(t, db.Exec("DELETE FROM scraped_properties").Error)
	return db
}

func seedJob(t *testing.T, repo Repository, status enums.MatchmakingStatus) *models.MatchmakingJob {
	t.Helper()
	job := &models.MatchmakingJob{
		ID:         uuid.New(),
		FilterJSON: []byte(`{}`),
		Origin:     enums.OriginAdmin,
		Status:     status,
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func seedScoredProperty(t *testing.T, db *gorm.DB, source string, score int) *models.ScrapedProperty {
	t.Helper()
	property := &models.ScrapedProperty{
		ID:              uuid.New(),
		Address:         "1 Elm St",
		Source:          source,
		Price:           decimal.NewFromInt(100_000),
		Sqft:            900,
		InvestmentScore: &score,
	}
	require.NoError(t, db.Create(property).Error)
	return property
}

func TestStateMachineHappyPath(t *testing.T) {
	db := setupMatchmakingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	job := seedJob(t, repo, enums.MatchmakingQueued)

	picked, err := repo.MarkRunning(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, picked)

	// A second pickup attempt loses the conditional update.
	picked, err = repo.MarkRunning(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, picked)

	done, err := repo.MarkCompleted(ctx, job.ID, 4, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, done)

	reloaded, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, enums.MatchmakingCompleted, reloaded.Status)
	require.NotNil(t, reloaded.MatchedCount)
	require.Equal(t, 4, *reloaded.MatchedCount)
	require.NotNil(t, reloaded.CompletedAt)
}

func TestNoExitFromTerminalState(t *testing.T) {
	db := setupMatchmakingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	job := seedJob(t, repo, enums.MatchmakingCompleted)

	picked, err := repo.MarkRunning(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, picked)

	failed, err := repo.MarkFailed(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, failed)

	reloaded, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, enums.MatchmakingCompleted, reloaded.Status)
}

func TestMarkFailedFromQueuedAndRunning(t *testing.T) {
	db := setupMatchmakingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	queued := seedJob(t, repo, enums.MatchmakingQueued)
	running := seedJob(t, repo, enums.MatchmakingRunning)

	for _, job := range []*models.MatchmakingJob{queued, running} {
		failed, err := repo.MarkFailed(ctx, job.ID)
		require.NoError(t, err)
		require.True(t, failed)
	}
}

func TestCountMatchesFilters(t *testing.T) {
	db := setupMatchmakingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	high := seedScoredProperty(t, db, "mls-import", 90)
	seedScoredProperty(t, db, "mls-import", 60)
	seedScoredProperty(t, db, "county-records", 95)

	min := 85
	count, err := repo.CountMatches(ctx, Filter{MinScore: &min})
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	count, err = repo.CountMatches(ctx, Filter{MinScore: &min, Source: "mls-import"})
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	count, err = repo.CountMatches(ctx, Filter{PropertyID: &high.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestCountMatchesIgnoresOrigin(t *testing.T) {
	db := setupMatchmakingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	// No property carries source "auto"; a filter whose provenance is auto
	// must still match everything because origin is not a property field.
	seedScoredProperty(t, db, "mls-import", 90)
	seedScoredProperty(t, db, "county-records", 70)

	count, err := repo.CountMatches(ctx, Filter{Origin: "auto"})
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestCountMatchesMinScoreExcludesUnscored(t *testing.T) {
	db := setupMatchmakingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	unscored := &models.ScrapedProperty{
		ID:      uuid.New(),
		Address: "9 Pine Rd",
		Source:  "mls-import",
		Price:   decimal.NewFromInt(80_000),
		Sqft:    700,
	}
	require.NoError(t, db.Create(unscored).Error)

	min := 0
	count, err := repo.CountMatches(ctx, Filter{MinScore: &min})
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}
