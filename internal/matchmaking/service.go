package matchmaking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/convexa-backend/internal/crm"
	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
	pkgerrors "github.com/michaeladamstrickland/convexa-backend/pkg/errors"
	"github.com/michaeladamstrickland/convexa-backend/pkg/logger"
	"github.com/michaeladamstrickland/convexa-backend/pkg/queue"
)

// Enqueuer is the producer slice the service needs to schedule work.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts queue.Options) (*queue.Job, error)
}

// Publisher fans an outbound event to registered webhook subscribers.
type Publisher interface {
	Publish(ctx context.Context, eventType enums.WebhookEventType, data any) (int, error)
}

// Metrics is the collector slice the matchmaking worker reports into.
type Metrics interface {
	IncMatchmaking(status string)
}

// ServiceParams wires matchmaking dependencies. Activities, Publisher, and
// Metrics are optional.
type ServiceParams struct {
	Repo       Repository
	Producer   Enqueuer
	Activities crm.Service
	Publisher  Publisher
	Metrics    Metrics
	Logger     *logger.Logger
	Attempts   int
}

// Service owns the matchmaking job state machine: it creates queued rows,
// schedules queue work for them, and drives queued -> running ->
// completed|failed as jobs execute.
type Service struct {
	repo       Repository
	producer   Enqueuer
	activities crm.Service
	publisher  Publisher
	metrics    Metrics
	logg       *logger.Logger
	attempts   int
}

// NewService validates dependencies and returns the matchmaking service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "matchmaking repository required")
	}
	if params.Producer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "queue producer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{
		repo:       params.Repo,
		producer:   params.Producer,
		activities: params.Activities,
		publisher:  params.Publisher,
		metrics:    params.Metrics,
		logg:       params.Logger,
		attempts:   params.Attempts,
	}, nil
}

// CreateJobParams describe a new matchmaking run.
type CreateJobParams struct {
	Filter Filter
	Origin enums.JobOrigin
}

type jobPayload struct {
	MatchmakingJobID string `json:"matchmakingJobId"`
}

// CreateJob persists a queued job row and schedules queue work for it.
func (s *Service) CreateJob(ctx context.Context, params CreateJobParams) (*models.MatchmakingJob, error) {
	if params.Origin == "" {
		params.Origin = enums.OriginAdmin
	}

	raw, err := params.Filter.Encode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid matchmaking filter")
	}

	job := &models.MatchmakingJob{
		FilterJSON: raw,
		Origin:     params.Origin,
		Status:     enums.MatchmakingQueued,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create matchmaking job")
	}

	payload := jobPayload{MatchmakingJobID: job.ID.String()}
	if _, err := s.producer.Enqueue(ctx, string(enums.QueueMatchmaking), payload, queue.Options{Attempts: s.attempts}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue matchmaking job")
	}
	return job, nil
}

// TriggerAuto creates an automatic matchmaking job scoped to one property.
func (s *Service) TriggerAuto(ctx context.Context, propertyID uuid.UUID) (*models.MatchmakingJob, error) {
	if propertyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "property id required")
	}
	id := propertyID
	return s.CreateJob(ctx, CreateJobParams{
		Filter: Filter{PropertyID: &id},
		Origin: enums.OriginAuto,
	})
}

// Handle is the queue handler for matchmaking jobs. Missing rows and rows
// already moved out of queued are no-ops; any evaluation error marks the
// row failed before propagating, so a redelivered attempt finds a terminal
// state and drops out.
func (s *Service) Handle(ctx context.Context, job *queue.Job) error {
	var payload jobPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid matchmaking payload")
	}
	jobID, err := uuid.Parse(payload.MatchmakingJobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid matchmaking job id")
	}
	ctx = s.logg.WithField(ctx, "matchmaking_job_id", jobID.String())

	row, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load matchmaking job")
	}
	if row == nil {
		s.logg.Warn(ctx, "matchmaking job row missing, dropping")
		return nil
	}

	picked, err := s.repo.MarkRunning(ctx, jobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark matchmaking running")
	}
	if !picked {
		s.logg.Info(ctx, "matchmaking job already picked up or terminal, skipping")
		return nil
	}

	filter, err := ParseFilter(row.FilterJSON)
	if err != nil {
		s.fail(ctx, jobID)
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse matchmaking filter")
	}

	matched, err := s.repo.CountMatches(ctx, filter)
	if err != nil {
		s.fail(ctx, jobID)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "evaluate matchmaking filter")
	}

	now := time.Now().UTC()
	completed, err := s.repo.MarkCompleted(ctx, jobID, int(matched), now)
	if err != nil {
		s.fail(ctx, jobID)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark matchmaking completed")
	}
	if !completed {
		s.logg.Warn(ctx, "matchmaking job left running state concurrently, skipping")
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncMatchmaking(string(enums.MatchmakingCompleted))
	}
	ctx = s.logg.WithField(ctx, "matched_count", matched)
	s.logg.Info(ctx, "matchmaking completed")

	s.recordActivity(ctx, row, filter, matched)
	s.publishCompleted(ctx, jobID, row, matched)
	return nil
}

func (s *Service) fail(ctx context.Context, jobID uuid.UUID) {
	if _, err := s.repo.MarkFailed(ctx, jobID); err != nil {
		s.logg.Error(ctx, "marking matchmaking job failed", err)
	}
	if s.metrics != nil {
		s.metrics.IncMatchmaking(string(enums.MatchmakingFailed))
	}
}

func (s *Service) recordActivity(ctx context.Context, row *models.MatchmakingJob, filter Filter, matched int64) {
	if s.activities == nil {
		return
	}
	_, err := s.activities.Record(ctx, crm.RecordParams{
		Type:       enums.ActivityMatchmakingCompleted,
		PropertyID: filter.PropertyID,
		Metadata: map[string]any{
			"matchmakingJobId": row.ID.String(),
			"origin":           string(row.Origin),
			"matchedCount":     matched,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "recording matchmaking activity failed", err)
	}
}

func (s *Service) publishCompleted(ctx context.Context, jobID uuid.UUID, row *models.MatchmakingJob, matched int64) {
	if s.publisher == nil {
		return
	}
	payload := map[string]any{
		"matchmakingJobId": jobID.String(),
		"origin":           string(row.Origin),
		"matchedCount":     matched,
	}
	if _, err := s.publisher.Publish(ctx, enums.EventMatchmakingCompleted, payload); err != nil {
		s.logg.Error(ctx, "matchmaking fan-out failed", err)
	}
}
