package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
)

// Repository provides persistence for events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	Update(ctx context.Context, event *models.Event) error
	// UpdateStatus flips from → to and reports whether the row moved.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.EventStatus) (bool, error)
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]models.Event, error)
	ListPublished(ctx context.Context, after time.Time, limit int) ([]models.Event, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed event repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, created_at ASC")
		}).
		First(&event, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) Update(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"title":       event.Title,
			"description": event.Description,
			"venue":       event.Venue,
			"starts_at":   event.StartsAt,
			"ends_at":     event.EndsAt,
		}).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.EventStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).
		Where("organizer_id = ?", organizerID).
		Order("starts_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListPublished(ctx context.Context, after time.Time, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.Event
	err := r.db.WithContext(ctx).
		Where("status = ? AND starts_at > ?", enums.EventStatusPublished, after).
		Order("starts_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
