package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
)

// Service manages the event publication lifecycle. Tier inventory is
// managed by the inventory package; this surface only gates whether a
// tier can be sold at all via the event status.
type Service interface {
	Create(ctx context.Context, input CreateEventInput) (*models.Event, error)
	Update(ctx context.Context, input UpdateEventInput) (*models.Event, error)
	Publish(ctx context.Context, eventID, organizerID uuid.UUID) (*models.Event, error)
	Cancel(ctx context.Context, eventID, organizerID uuid.UUID) (*models.Event, error)
	Complete(ctx context.Context, eventID, organizerID uuid.UUID) (*models.Event, error)
	Get(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	ListForOrganizer(ctx context.Context, organizerID uuid.UUID) ([]models.Event, error)
	ListUpcoming(ctx context.Context, limit int) ([]models.Event, error)
}

// CreateEventInput carries the fields required to open a draft event.
type CreateEventInput struct {
	OrganizerID uuid.UUID
	Title       string
	Description *string
	Venue       *string
	StartsAt    time.Time
	EndsAt      *time.Time
}

// UpdateEventInput updates mutable event fields. Nil means keep.
type UpdateEventInput struct {
	EventID     uuid.UUID
	OrganizerID uuid.UUID
	Title       *string
	Description *string
	Venue       *string
	StartsAt    *time.Time
	EndsAt      *time.Time
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds an event service with the required dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("event repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateEventInput) (*models.Event, error) {
	if input.OrganizerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "organizer identity missing")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event title required")
	}
	if input.StartsAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event start time required")
	}
	if input.EndsAt != nil && !input.EndsAt.After(input.StartsAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event must end after it starts")
	}

	event := &models.Event{
		ID:          uuid.New(),
		OrganizerID: input.OrganizerID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Venue:       input.Venue,
		Status:      enums.EventStatusDraft,
		StartsAt:    input.StartsAt,
		EndsAt:      input.EndsAt,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create event")
	}
	return event, nil
}

func (s *service) Update(ctx context.Context, input UpdateEventInput) (*models.Event, error) {
	event, err := s.ownedEvent(ctx, input.EventID, input.OrganizerID)
	if err != nil {
		return nil, err
	}
	if event.Status == enums.EventStatusCancelled || event.Status == enums.EventStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "closed events cannot be edited")
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "event title required")
		}
		event.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		event.Description = input.Description
	}
	if input.Venue != nil {
		event.Venue = input.Venue
	}
	if input.StartsAt != nil {
		event.StartsAt = *input.StartsAt
	}
	if input.EndsAt != nil {
		event.EndsAt = input.EndsAt
	}
	if event.EndsAt != nil && !event.EndsAt.After(event.StartsAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event must end after it starts")
	}

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update event")
	}
	return event, nil
}

func (s *service) Publish(ctx context.Context, eventID, organizerID uuid.UUID) (*models.Event, error) {
	return s.transition(ctx, eventID, organizerID, enums.EventStatusDraft, enums.EventStatusPublished,
		"only draft events can be published")
}

func (s *service) Cancel(ctx context.Context, eventID, organizerID uuid.UUID) (*models.Event, error) {
	event, err := s.ownedEvent(ctx, eventID, organizerID)
	if err != nil {
		return nil, err
	}
	if event.Status == enums.EventStatusCancelled {
		return event, nil
	}
	if event.Status == enums.EventStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "completed events cannot be cancelled")
	}

	ok, err := s.repo.UpdateStatus(ctx, eventID, event.Status, enums.EventStatusCancelled)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel event")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "event changed concurrently")
	}
	event.Status = enums.EventStatusCancelled
	return event, nil
}

func (s *service) Complete(ctx context.Context, eventID, organizerID uuid.UUID) (*models.Event, error) {
	return s.transition(ctx, eventID, organizerID, enums.EventStatusPublished, enums.EventStatusCompleted,
		"only published events can be completed")
}

func (s *service) Get(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	event, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	return event, nil
}

func (s *service) ListForOrganizer(ctx context.Context, organizerID uuid.UUID) ([]models.Event, error) {
	if organizerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "organizer identity missing")
	}
	events, err := s.repo.ListByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list events")
	}
	return events, nil
}

func (s *service) ListUpcoming(ctx context.Context, limit int) ([]models.Event, error) {
	events, err := s.repo.ListPublished(ctx, s.now(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list events")
	}
	return events, nil
}

func (s *service) ownedEvent(ctx context.Context, eventID, organizerID uuid.UUID) (*models.Event, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	event, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	if organizerID != uuid.Nil && event.OrganizerID != organizerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "event does not belong to organizer")
	}
	return event, nil
}

func (s *service) transition(ctx context.Context, eventID, organizerID uuid.UUID, from, to enums.EventStatus, msg string) (*models.Event, error) {
	event, err := s.ownedEvent(ctx, eventID, organizerID)
	if err != nil {
		return nil, err
	}
	if event.Status == to {
		return event, nil
	}
	if event.Status != from {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, msg)
	}

	ok, err := s.repo.UpdateStatus(ctx, eventID, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update event status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "event changed concurrently")
	}
	event.Status = to
	return event, nil
}
