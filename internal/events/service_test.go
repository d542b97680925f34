package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
)

type fakeEventRepo struct {
	events map[uuid.UUID]*models.Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: map[uuid.UUID]*models.Event{}}
}

func (f *fakeEventRepo) WithTx(_ *gorm.DB) Repository { return f }

func (f *fakeEventRepo) Create(_ context.Context, event *models.Event) error {
	clone := *event
	f.events[event.ID] = &clone
	return nil
}

func (f *fakeEventRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	event, ok := f.events[id]
	if !ok {
		return nil, nil
	}
	clone := *event
	return &clone, nil
}

func (f *fakeEventRepo) Update(_ context.Context, event *models.Event) error {
	stored, ok := f.events[event.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Title = event.Title
	stored.Description = event.Description
	stored.Venue = event.Venue
	stored.StartsAt = event.StartsAt
	stored.EndsAt = event.EndsAt
	return nil
}

func (f *fakeEventRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to enums.EventStatus) (bool, error) {
	stored, ok := f.events[id]
	if !ok || stored.Status != from {
		return false, nil
	}
	stored.Status = to
	return true, nil
}

func (f *fakeEventRepo) ListByOrganizer(_ context.Context, organizerID uuid.UUID) ([]models.Event, error) {
	var out []models.Event
	for _, event := range f.events {
		if event.OrganizerID == organizerID {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) ListPublished(_ context.Context, after time.Time, _ int) ([]models.Event, error) {
	var out []models.Event
	for _, event := range f.events {
		if event.Status == enums.EventStatusPublished && event.StartsAt.After(after) {
			out = append(out, *event)
		}
	}
	return out, nil
}

func newEventFixture(t *testing.T) (Service, *fakeEventRepo) {
	t.Helper()
	repo := newFakeEventRepo()
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc, repo
}

func seedEvent(t *testing.T, svc Service, organizerID uuid.UUID) *models.Event {
	t.Helper()
	event, err := svc.Create(context.Background(), CreateEventInput{
		OrganizerID: organizerID,
		Title:       "Warehouse Sessions",
		StartsAt:    time.Now().Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return event
}

func TestCreateEventStartsAsDraft(t *testing.T) {
	svc, _ := newEventFixture(t)
	organizer := uuid.New()

	event := seedEvent(t, svc, organizer)
	assert.Equal(t, enums.EventStatusDraft, event.Status)
	assert.False(t, event.Status.AllowsSales())

	_, err := svc.Create(context.Background(), CreateEventInput{
		OrganizerID: organizer,
		Title:       "   ",
		StartsAt:    time.Now(),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestPublishOpensSales(t *testing.T) {
	svc, _ := newEventFixture(t)
	organizer := uuid.New()
	event := seedEvent(t, svc, organizer)

	published, err := svc.Publish(context.Background(), event.ID, organizer)
	require.NoError(t, err)
	assert.True(t, published.Status.AllowsSales())

	// publishing again is a no-op
	again, err := svc.Publish(context.Background(), event.ID, organizer)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusPublished, again.Status)
}

func TestPublishRequiresOwner(t *testing.T) {
	svc, _ := newEventFixture(t)
	event := seedEvent(t, svc, uuid.New())

	_, err := svc.Publish(context.Background(), event.ID, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestCancelFromAnyOpenState(t *testing.T) {
	svc, _ := newEventFixture(t)
	organizer := uuid.New()

	draft := seedEvent(t, svc, organizer)
	cancelled, err := svc.Cancel(context.Background(), draft.ID, organizer)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusCancelled, cancelled.Status)

	// idempotent
	_, err = svc.Cancel(context.Background(), draft.ID, organizer)
	require.NoError(t, err)

	live := seedEvent(t, svc, organizer)
	_, err = svc.Publish(context.Background(), live.ID, organizer)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), live.ID, organizer)
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), live.ID, organizer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestCompletedEventIsFrozen(t *testing.T) {
	svc, _ := newEventFixture(t)
	organizer := uuid.New()
	event := seedEvent(t, svc, organizer)

	_, err := svc.Publish(context.Background(), event.ID, organizer)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), event.ID, organizer)
	require.NoError(t, err)

	title := "New Title"
	_, err = svc.Update(context.Background(), UpdateEventInput{
		EventID:     event.ID,
		OrganizerID: organizer,
		Title:       &title,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestCompleteRequiresPublished(t *testing.T) {
	svc, _ := newEventFixture(t)
	organizer := uuid.New()
	event := seedEvent(t, svc, organizer)

	_, err := svc.Complete(context.Background(), event.ID, organizer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}
