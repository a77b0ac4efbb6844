package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/michaeladamstrickland/convexa-backend/internal/crm"
	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
	"github.com/michaeladamstrickland/convexa-backend/pkg/logger"
	"github.com/michaeladamstrickland/convexa-backend/pkg/queue"
)

type fakeRepo struct {
	row          *models.MatchmakingJob
	created      []*models.MatchmakingJob
	running      []uuid.UUID
	runningOK    bool
	completed    []int
	completedOK  bool
	failed       []uuid.UUID
	matched      int64
	countErr     error
	completedErr error
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, job *models.MatchmakingJob) error {
	job.ID = uuid.New()
	f.created = append(f.created, job)
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.MatchmakingJob, error) {
	return f.row, nil
}

func (f *fakeRepo) MarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	f.running = append(f.running, id)
	return f.runningOK, nil
}

func (f *fakeRepo) MarkCompleted(ctx context.Context, id uuid.UUID, matchedCount int, now time.Time) (bool, error) {
	f.completed = append(f.completed, matchedCount)
	return f.completedOK, f.completedErr
}

func (f *fakeRepo) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	f.failed = append(f.failed, id)
	return true, nil
}

func (f *fakeRepo) CountMatches(ctx context.Context, filter Filter) (int64, error) {
	return f.matched, f.countErr
}

type fakeEnqueuer struct {
	queues []string
	err    error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, queueName string, payload any, opts queue.Options) (*queue.Job, error) {
	f.queues = append(f.queues, queueName)
	if f.err != nil {
		return nil, f.err
	}
	raw, _ := json.Marshal(payload)
	return &queue.Job{ID: uuid.NewString(), Queue: queueName, Payload: raw}, nil
}

type fakeActivities struct {
	records []crm.RecordParams
}

func (f *fakeActivities) Record(ctx context.Context, params crm.RecordParams) (*models.CrmActivity, error) {
	f.records = append(f.records, params)
	return &models.CrmActivity{ID: uuid.New(), Type: params.Type}, nil
}

func (f *fakeActivities) ListByProperty(ctx context.Context, propertyID uuid.UUID, limit int) ([]models.CrmActivity, error) {
	return nil, nil
}

type fakePublisher struct {
	events []enums.WebhookEventType
}

func (f *fakePublisher) Publish(ctx context.Context, eventType enums.WebhookEventType, data any) (int, error) {
	f.events = append(f.events, eventType)
	return 1, nil
}

type fakeMetrics struct {
	statuses []string
}

func (f *fakeMetrics) IncMatchmaking(status string) {
	f.statuses = append(f.statuses, status)
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
}

func newTestService(t *testing.T, repo *fakeRepo, producer *fakeEnqueuer, metrics *fakeMetrics) (*Service, *fakeActivities, *fakePublisher) {
	t.Helper()
	activities := &fakeActivities{}
	pub := &fakePublisher{}
	var m Metrics
	if metrics != nil {
		m = metrics
	}
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Producer:   producer,
		Activities: activities,
		Publisher:  pub,
		Metrics:    m,
		Logger:     newTestLogger(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, activities, pub
}

func queuedRow() *models.MatchmakingJob {
	return &models.MatchmakingJob{
		ID:         uuid.New(),
		FilterJSON: []byte(`{"minScore":80}`),
		Origin:     enums.OriginAdmin,
		Status:     enums.MatchmakingQueued,
	}
}

func makeJob(t *testing.T, jobID uuid.UUID) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"matchmakingJobId": jobID.String()})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Job{ID: uuid.NewString(), Queue: string(enums.QueueMatchmaking), Payload: raw, MaxAttempts: 3}
}

func TestCreateJobPersistsAndEnqueues(t *testing.T) {
	repo := &fakeRepo{}
	producer := &fakeEnqueuer{}
	svc, _, _ := newTestService(t, repo, producer, nil)

	job, err := svc.CreateJob(context.Background(), CreateJobParams{Filter: Filter{}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Origin != enums.OriginAdmin {
		t.Fatalf("expected default admin origin, got %q", job.Origin)
	}
	if len(producer.queues) != 1 || producer.queues[0] != string(enums.QueueMatchmaking) {
		t.Fatalf("expected one matchmaking enqueue, got %v", producer.queues)
	}
}

func TestTriggerAutoSetsOriginAndScope(t *testing.T) {
	repo := &fakeRepo{}
	producer := &fakeEnqueuer{}
	svc, _, _ := newTestService(t, repo, producer, nil)

	propertyID := uuid.New()
	job, err := svc.TriggerAuto(context.Background(), propertyID)
	if err != nil {
		t.Fatalf("trigger auto: %v", err)
	}
	if job.Origin != enums.OriginAuto {
		t.Fatalf("expected auto origin, got %q", job.Origin)
	}

	filter, err := ParseFilter(job.FilterJSON)
	if err != nil {
		t.Fatalf("parse stored filter: %v", err)
	}
	if filter.PropertyID == nil || *filter.PropertyID != propertyID {
		t.Fatalf("expected filter scoped to property, got %+v", filter)
	}
	if filter.Source != "" {
		t.Fatalf("origin must not be stored as property source, got %q", filter.Source)
	}
}

func TestHandleCompletesJob(t *testing.T) {
	row := queuedRow()
	repo := &fakeRepo{row: row, runningOK: true, completedOK: true, matched: 7}
	metrics := &fakeMetrics{}
	svc, activities, pub := newTestService(t, repo, &fakeEnqueuer{}, metrics)

	if err := svc.Handle(context.Background(), makeJob(t, row.ID)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(repo.completed) != 1 || repo.completed[0] != 7 {
		t.Fatalf("expected completion with 7 matches, got %v", repo.completed)
	}
	if len(activities.records) != 1 || activities.records[0].Type != enums.ActivityMatchmakingCompleted {
		t.Fatalf("expected matchmaking activity, got %+v", activities.records)
	}
	if len(pub.events) != 1 || pub.events[0] != enums.EventMatchmakingCompleted {
		t.Fatalf("expected matchmaking.completed fan-out, got %v", pub.events)
	}
	if len(metrics.statuses) != 1 || metrics.statuses[0] != "completed" {
		t.Fatalf("expected completed metric, got %v", metrics.statuses)
	}
}

func TestHandleMissingRowNoOps(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(t, repo, &fakeEnqueuer{}, nil)

	if err := svc.Handle(context.Background(), makeJob(t, uuid.New())); err != nil {
		t.Fatalf("missing row should no-op, got %v", err)
	}
	if len(repo.running) != 0 {
		t.Fatal("missing row must not be transitioned")
	}
}

func TestHandleAlreadyPickedUpNoOps(t *testing.T) {
	row := queuedRow()
	row.Status = enums.MatchmakingRunning
	repo := &fakeRepo{row: row, runningOK: false}
	svc, activities, _ := newTestService(t, repo, &fakeEnqueuer{}, nil)

	if err := svc.Handle(context.Background(), makeJob(t, row.ID)); err != nil {
		t.Fatalf("lost pickup race should no-op, got %v", err)
	}
	if len(repo.completed) != 0 || len(activities.records) != 0 {
		t.Fatal("no completion expected when pickup is lost")
	}
}

func TestHandleEvaluationErrorMarksFailed(t *testing.T) {
	row := queuedRow()
	repo := &fakeRepo{row: row, runningOK: true, countErr: errors.New("db down")}
	metrics := &fakeMetrics{}
	svc, _, pub := newTestService(t, repo, &fakeEnqueuer{}, metrics)

	if err := svc.Handle(context.Background(), makeJob(t, row.ID)); err == nil {
		t.Fatal("expected evaluation error to propagate")
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected job marked failed, got %v", repo.failed)
	}
	if len(pub.events) != 0 {
		t.Fatal("no fan-out on failure")
	}
	if len(metrics.statuses) != 1 || metrics.statuses[0] != "failed" {
		t.Fatalf("expected failed metric, got %v", metrics.statuses)
	}
}

func TestHandleBadFilterMarksFailed(t *testing.T) {
	row := queuedRow()
	row.FilterJSON = []byte(`{`)
	repo := &fakeRepo{row: row, runningOK: true}
	svc, _, _ := newTestService(t, repo, &fakeEnqueuer{}, nil)

	if err := svc.Handle(context.Background(), makeJob(t, row.ID)); err == nil {
		t.Fatal("expected filter parse error")
	}
	if len(repo.failed) != 1 {
		t.Fatal("expected job marked failed on bad filter")
	}
}
