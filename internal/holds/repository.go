package holds

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

// Repository manages persistence for checkout holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, hold *models.Hold) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Hold, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Hold, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Hold, error)

	// MarkCommitted flips an active hold to committed. Returns false when the
	// hold already left the active state.
	MarkCommitted(ctx context.Context, id uuid.UUID, orderID uuid.UUID, at time.Time) (bool, error)
	// MarkReleased flips an active hold to released.
	MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// UpdateExpiry extends an active hold's TTL and bumps the extension count.
	UpdateExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time, extensions int) (bool, error)

	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Hold, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.Hold, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Hold, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a hold repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, hold *models.Hold) error {
	return r.db.WithContext(ctx).Create(hold).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Hold, error) {
	var hold models.Hold
	err := r.db.WithContext(ctx).First(&hold, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &hold, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Hold, error) {
	var hold models.Hold
	err := dbpkg.LockForUpdate(r.db.WithContext(ctx)).
		First(&hold, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &hold, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Hold, error) {
	var hold models.Hold
	err := r.db.WithContext(ctx).First(&hold, "idempotency_key = ?", key).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &hold, nil
}

func (r *repository) MarkCommitted(ctx context.Context, id uuid.UUID, orderID uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Hold{}).
		Where("id = ? AND status = ?", id, enums.HoldStatusActive).
		Updates(map[string]any{
			"status":       enums.HoldStatusCommitted,
			"order_id":     orderID,
			"committed_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Hold{}).
		Where("id = ? AND status = ?", id, enums.HoldStatusActive).
		Updates(map[string]any{
			"status":      enums.HoldStatusReleased,
			"released_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) UpdateExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time, extensions int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Hold{}).
		Where("id = ? AND status = ?", id, enums.HoldStatusActive).
		Updates(map[string]any{
			"expires_at": expiresAt,
			"extensions": extensions,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Hold, error) {
	if limit <= 0 {
		limit = 100
	}
	var holds []models.Hold
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.HoldStatusActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&holds).Error
	return holds, err
}

func (r *repository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.Hold, error) {
	var holds []models.Hold
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.HoldStatusActive).
		Order("created_at DESC").
		Find(&holds).Error
	return holds, err
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Hold, error) {
	var holds []models.Hold
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&holds).Error
	return holds, err
}
