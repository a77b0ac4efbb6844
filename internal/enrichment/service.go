package enrichment

import (
	"context"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/convexa-backend/internal/crm"
	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
	pkgerrors "github.com/michaeladamstrickland/convexa-backend/pkg/errors"
	"github.com/michaeladamstrickland/convexa-backend/pkg/logger"
	"github.com/michaeladamstrickland/convexa-backend/pkg/queue"
)

// MatchmakingTrigger spawns an automatic matchmaking job for a property.
// The matchmaking service implements it; enrichment only needs this slice.
type MatchmakingTrigger interface {
	TriggerAuto(ctx context.Context, propertyID uuid.UUID) (*models.MatchmakingJob, error)
}

// Publisher fans an outbound event to registered webhook subscribers.
type Publisher interface {
	Publish(ctx context.Context, eventType enums.WebhookEventType, data any) (int, error)
}

// ServiceParams wires enrichment worker dependencies. Activities, Publisher,
// and Trigger are optional; the core property update runs without them.
type ServiceParams struct {
	Repo       Repository
	Activities crm.Service
	Publisher  Publisher
	Trigger    MatchmakingTrigger
	Logger     *logger.Logger
}

// Service processes enrichment jobs.
type Service struct {
	repo       Repository
	activities crm.Service
	publisher  Publisher
	trigger    MatchmakingTrigger
	logg       *logger.Logger
}

// NewService validates dependencies and returns the enrichment service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "enrichment repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{
		repo:       params.Repo,
		activities: params.Activities,
		publisher:  params.Publisher,
		trigger:    params.Trigger,
		logg:       params.Logger,
	}, nil
}

type jobPayload struct {
	PropertyID string `json:"propertyId"`
}

// Handle is the queue handler for enrichment jobs. A property that is
// missing or already enriched is a no-op; the conditional update in the
// repository makes duplicate deliveries harmless.
func (s *Service) Handle(ctx context.Context, job *queue.Job) error {
	var payload jobPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid enrichment payload")
	}
	propertyID, err := uuid.Parse(payload.PropertyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid property id")
	}
	ctx = s.logg.WithPropertyID(ctx, propertyID.String())

	property, err := s.repo.FindByID(ctx, propertyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load property")
	}
	if property == nil {
		s.logg.Warn(ctx, "enrichment job for missing property, dropping")
		return nil
	}
	if property.Enriched() {
		s.logg.Info(ctx, "property already enriched, skipping")
		return nil
	}

	result := Score(property.Price, property.Sqft, property.Condition)

	updated, err := s.repo.ApplyEnrichment(ctx, propertyID, result)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist enrichment")
	}
	if !updated {
		// Lost the race to a concurrent delivery of the same job.
		s.logg.Info(ctx, "property enriched concurrently, skipping")
		return nil
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"score": result.Score, "tags": result.Tags})
	s.logg.Info(ctx, "property enriched")

	s.recordActivity(ctx, property, result)
	s.publishCompleted(ctx, property, result)
	s.maybeTriggerMatchmaking(ctx, propertyID, result)
	return nil
}

// The side steps below are best-effort and isolated from one another;
// the property update is already committed when they run.

func (s *Service) recordActivity(ctx context.Context, property *models.ScrapedProperty, result ScoreResult) {
	if s.activities == nil {
		return
	}
	propertyID := property.ID
	_, err := s.activities.Record(ctx, crm.RecordParams{
		Type:       enums.ActivityEnrichmentCompleted,
		PropertyID: &propertyID,
		Metadata: map[string]any{
			"score": result.Score,
			"tags":  result.Tags,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "recording enrichment activity failed", err)
	}
}

func (s *Service) publishCompleted(ctx context.Context, property *models.ScrapedProperty, result ScoreResult) {
	if s.publisher == nil {
		return
	}
	payload := map[string]any{
		"propertyId": property.ID.String(),
		"address":    property.Address,
		"score":      result.Score,
		"tags":       result.Tags,
		"reasons":    result.Reasons,
	}
	if _, err := s.publisher.Publish(ctx, enums.EventEnrichmentCompleted, payload); err != nil {
		s.logg.Error(ctx, "enrichment fan-out failed", err)
	}
}

func (s *Service) maybeTriggerMatchmaking(ctx context.Context, propertyID uuid.UUID, result ScoreResult) {
	if s.trigger == nil || !result.AutoTrigger() {
		return
	}
	job, err := s.trigger.TriggerAuto(ctx, propertyID)
	if err != nil {
		s.logg.Error(ctx, "auto matchmaking trigger failed", err)
		return
	}
	ctx = s.logg.WithField(ctx, "matchmaking_job_id", job.ID.String())
	s.logg.Info(ctx, "auto matchmaking triggered")
}
