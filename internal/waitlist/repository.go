package waitlist

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/ticketloom/ticketloom-backend/pkg/db"
	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
)

// Repository manages persistence for waitlist entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.WaitlistEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WaitlistEntry, error)
	FindMember(ctx context.Context, eventID, userID, tierID uuid.UUID) (*models.WaitlistEntry, error)
	// FindNotified returns the user's open offer for a tier, if any.
	FindNotified(ctx context.Context, tierID, userID uuid.UUID) (*models.WaitlistEntry, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// MaxPosition returns the highest position ever assigned for a tier.
	// Callers hold the tier row lock so concurrent joins serialize.
	MaxPosition(ctx context.Context, tierID uuid.UUID) (int64, error)

	// ListWaiting returns waiting entries in position order.
	ListWaiting(ctx context.Context, tierID uuid.UUID, limit int) ([]models.WaitlistEntry, error)
	// ListExpiredOffers returns notified entries whose window lapsed.
	ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]models.WaitlistEntry, error)

	// MarkNotified claims a waiting entry. Returns false when another
	// release claimed it first.
	MarkNotified(ctx context.Context, id uuid.UUID, notifiedAt, expiresAt time.Time) (bool, error)
	// MarkExpired retires a notified entry whose offer lapsed.
	MarkExpired(ctx context.Context, id uuid.UUID) (bool, error)
	// MarkFulfilled closes a notified entry that converted into a hold.
	MarkFulfilled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a waitlist repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.WaitlistEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindMember(ctx context.Context, eventID, userID, tierID uuid.UUID) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := r.db.WithContext(ctx).
		First(&entry, "event_id = ? AND user_id = ? AND tier_id = ?", eventID, userID, tierID).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindNotified(ctx context.Context, tierID, userID uuid.UUID) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := r.db.WithContext(ctx).
		First(&entry, "tier_id = ? AND user_id = ? AND status = ?", tierID, userID, enums.WaitlistStatusNotified).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.WaitlistEntry{}, "id = ?", id).Error
}

func (r *repository) MaxPosition(ctx context.Context, tierID uuid.UUID) (int64, error) {
	var max *int64
	err := r.db.WithContext(ctx).Model(&models.WaitlistEntry{}).
		Where("tier_id = ?", tierID).
		Select("MAX(position)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *repository) ListWaiting(ctx context.Context, tierID uuid.UUID, limit int) ([]models.WaitlistEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.WaitlistEntry
	err := dbpkg.LockForUpdate(r.db.WithContext(ctx)).
		Where("tier_id = ? AND status = ?", tierID, enums.WaitlistStatusWaiting).
		Order("position ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *repository) ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]models.WaitlistEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND notification_expires_at IS NOT NULL AND notification_expires_at <= ?",
			enums.WaitlistStatusNotified, now).
		Order("notification_expires_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *repository) MarkNotified(ctx context.Context, id uuid.UUID, notifiedAt, expiresAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.WaitlistEntry{}).
		Where("id = ? AND status = ?", id, enums.WaitlistStatusWaiting).
		Updates(map[string]any{
			"status":                  enums.WaitlistStatusNotified,
			"notified_at":             notifiedAt,
			"notification_expires_at": expiresAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.WaitlistEntry{}).
		Where("id = ? AND status = ?", id, enums.WaitlistStatusNotified).
		Update("status", enums.WaitlistStatusExpired)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkFulfilled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.WaitlistEntry{}).
		Where("id = ? AND status = ?", id, enums.WaitlistStatusNotified).
		Updates(map[string]any{
			"status":       enums.WaitlistStatusFulfilled,
			"fulfilled_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
