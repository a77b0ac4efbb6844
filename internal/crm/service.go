package crm

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
	pkgerrors "github.com/michaeladamstrickland/convexa-backend/pkg/errors"
	"github.com/michaeladamstrickland/convexa-backend/pkg/logger"
)

// Publisher fans an outbound event to registered webhook subscribers. The
// delivery worker implements it; the activity log only needs this slice.
type Publisher interface {
	Publish(ctx context.Context, eventType enums.WebhookEventType, data any) (int, error)
}

// Service records pipeline activity. Every recorded row also fans out a
// crm.activity webhook event; fan-out failures are logged, never returned,
// so a broken subscriber cannot block the pipeline.
type Service interface {
	Record(ctx context.Context, params RecordParams) (*models.CrmActivity, error)
	ListByProperty(ctx context.Context, propertyID uuid.UUID, limit int) ([]models.CrmActivity, error)
}

// RecordParams describes one activity row.
type RecordParams struct {
	Type       enums.CrmActivityType
	PropertyID *uuid.UUID
	LeadID     *uuid.UUID
	UserID     *uuid.UUID
	Metadata   map[string]any
}

// ServiceParams wires activity log dependencies.
type ServiceParams struct {
	Repo      Repository
	Publisher Publisher
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	publisher Publisher
	logg      *logger.Logger
}

// NewService validates dependencies and returns the activity service.
// Publisher is optional; without one activities are recorded silently.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "crm repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:      params.Repo,
		publisher: params.Publisher,
		logg:      params.Logger,
	}, nil
}

func (s *service) Record(ctx context.Context, params RecordParams) (*models.CrmActivity, error) {
	if params.Type == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "activity type required")
	}

	activity := &models.CrmActivity{
		Type:       params.Type,
		PropertyID: params.PropertyID,
		LeadID:     params.LeadID,
		UserID:     params.UserID,
	}
	if params.Metadata != nil {
		raw, err := json.Marshal(params.Metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode activity metadata")
		}
		activity.Metadata = raw
	}

	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create crm activity")
	}

	if s.publisher != nil {
		payload := map[string]any{
			"activityId": activity.ID.String(),
			"type":       string(activity.Type),
			"metadata":   params.Metadata,
		}
		if activity.PropertyID != nil {
			payload["propertyId"] = activity.PropertyID.String()
		}
		if _, err := s.publisher.Publish(ctx, enums.EventCrmActivity, payload); err != nil {
			s.logg.Error(ctx, "crm activity fan-out failed", err)
		}
	}

	return activity, nil
}

func (s *service) ListByProperty(ctx context.Context, propertyID uuid.UUID, limit int) ([]models.CrmActivity, error) {
	if propertyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "property id required")
	}
	activities, err := s.repo.ListByProperty(ctx, propertyID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list crm activities")
	}
	return activities, nil
}
