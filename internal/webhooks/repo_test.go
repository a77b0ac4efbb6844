package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	dbtypes "github.com/michaeladamstrickland/convexa-backend/pkg/db/types"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
)

func setupWebhooksTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	subscriptions := `
CREATE TABLE IF NOT EXISTS webhook_subscriptions (
  id TEXT PRIMARY KEY,
  target_url TEXT NOT NULL,
  signing_secret TEXT NOT NULL,
  event_types TEXT NOT NULL DEFAULT '[]',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	logs := `
CREATE TABLE IF NOT EXISTS webhook_delivery_logs (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  job_id TEXT NOT NULL,
  status TEXT NOT NULL,
  attempts_made INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  last_attempt_at DATETIME NOT NULL,
  is_resolved INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`
	failures := `
CREATE TABLE IF NOT EXISTS webhook_delivery_failures (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  payload TEXT NOT NULL,
  attempts INTEGER NOT NULL,
  final_error TEXT NOT NULL,
  is_resolved INTEGER NOT NULL DEFAULT 0,
  replayed_at DATETIME,
  replay_job_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	for _, ddl := range []string{subscriptions, logs, failures} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	for _, table := range []string{"webhook_subscriptions", "webhook_delivery_logs", "webhook_delivery_failures"} {
		require.NoError(t, db.Exec("DELETE FROM "+table).Error)
	}
	return db
}

func seedSubscription(t *testing.T, db *gorm.DB, active bool, events ...string) *models.WebhookSubscription {
	t.Helper()
	sub := &models.WebhookSubscription{
		ID:            uuid.New(),
		TargetURL:     "https://crm.example.com/hooks",
		SigningSecret: "topsecret",
		EventTypes:    dbtypes.StringList(events),
		IsActive:      active,
	}
	require.NoError(t, db.Create(sub).Error)
	if !active {
		// GORM substitutes the model's default:true for a zero-value bool on
		// insert, so an inactive row has to be flipped with an explicit update.
		require.NoError(t, db.Model(sub).UpdateColumn("is_active", false).Error)
	}
	return sub
}

func seedFailure(t *testing.T, db *gorm.DB, subID uuid.UUID, createdAt time.Time) *models.WebhookDeliveryFailure {
	t.Helper()
	failure := &models.WebhookDeliveryFailure{
		ID:             uuid.New(),
		SubscriptionID: subID,
		EventType:      enums.EventCrmActivity,
		Payload:        []byte(`{"x":1}`),
		Attempts:       5,
		FinalError:     "subscriber responded 500",
		CreatedAt:      createdAt,
	}
	require.NoError(t, db.Create(failure).Error)
	return failure
}

func TestListActiveForEvent(t *testing.T) {
	db := setupWebhooksTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	matching := seedSubscription(t, db, true, "crm.activity", "enrichment.completed")
	seedSubscription(t, db, true, "matchmaking.completed")
	seedSubscription(t, db, false, "crm.activity")

	subs, err := repo.ListActiveForEvent(ctx, enums.EventCrmActivity)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, matching.ID, subs[0].ID)
}

func TestResolveFailureFirstSuccessWins(t *testing.T) {
	db := setupWebhooksTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sub := seedSubscription(t, db, true, "crm.activity")
	failure := seedFailure(t, db, sub.ID, time.Now())

	now := time.Now().UTC()
	resolved, err := repo.ResolveFailure(ctx, failure.ID, "replay-job-1", now)
	require.NoError(t, err)
	require.True(t, resolved)

	// A second replay must not re-stamp the record.
	resolved, err = repo.ResolveFailure(ctx, failure.ID, "replay-job-2", now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, resolved)

	reloaded, err := repo.FindFailure(ctx, failure.ID)
	require.NoError(t, err)
	require.True(t, reloaded.IsResolved)
	require.NotNil(t, reloaded.ReplayJobID)
	require.Equal(t, "replay-job-1", *reloaded.ReplayJobID)
	require.NotNil(t, reloaded.ReplayedAt)
}

func TestResolveFailedLogsScopedToSubscriptionAndEvent(t *testing.T) {
	db := setupWebhooksTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sub := seedSubscription(t, db, true, "crm.activity")
	other := seedSubscription(t, db, true, "crm.activity")

	makeLog := func(subID uuid.UUID, event enums.WebhookEventType, status enums.DeliveryStatus) {
		require.NoError(t, repo.CreateLog(ctx, &models.WebhookDeliveryLog{
			ID:             uuid.New(),
			SubscriptionID: subID,
			EventType:      event,
			JobID:          uuid.NewString(),
			Status:         status,
			LastAttemptAt:  time.Now().UTC(),
		}))
	}
	makeLog(sub.ID, enums.EventCrmActivity, enums.DeliveryFailed)
	makeLog(sub.ID, enums.EventCrmActivity, enums.DeliveryFailed)
	makeLog(sub.ID, enums.EventEnrichmentCompleted, enums.DeliveryFailed)
	makeLog(sub.ID, enums.EventCrmActivity, enums.DeliveryDelivered)
	makeLog(other.ID, enums.EventCrmActivity, enums.DeliveryFailed)

	count, err := repo.ResolveFailedLogs(ctx, sub.ID, enums.EventCrmActivity)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	var unresolved int64
	require.NoError(t, db.Model(&models.WebhookDeliveryLog{}).
		Where("is_resolved = ?", false).Count(&unresolved).Error)
	require.EqualValues(t, 3, unresolved)
}

func TestListUnresolvedFailuresOldestFirst(t *testing.T) {
	db := setupWebhooksTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sub := seedSubscription(t, db, true, "crm.activity")
	oldest := seedFailure(t, db, sub.ID, time.Now().Add(-2*time.Hour))
	middle := seedFailure(t, db, sub.ID, time.Now().Add(-time.Hour))
	newest := seedFailure(t, db, sub.ID, time.Now())

	_, err := repo.ResolveFailure(ctx, middle.ID, "replay-x", time.Now().UTC())
	require.NoError(t, err)

	failures, err := repo.ListUnresolvedFailures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	require.Equal(t, oldest.ID, failures[0].ID)
	require.Equal(t, newest.ID, failures[1].ID)

	limited, err := repo.ListUnresolvedFailures(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, oldest.ID, limited[0].ID)
}
