package inventory

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/ticketloom/ticketloom-backend/pkg/db"
	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
)

// Repository manages persistence for ticket tiers and their ledger counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, tier *models.TicketTier) error
	Update(ctx context.Context, tier *models.TicketTier) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.TicketTier, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.TicketTier, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.TicketTier, error)

	// Reserve moves qty from available to reserved. Returns false when the
	// tier no longer has qty seats available.
	Reserve(ctx context.Context, tierID uuid.UUID, qty int) (bool, error)
	// CommitReserved converts qty reserved seats into sold seats.
	CommitReserved(ctx context.Context, tierID uuid.UUID, qty int) (bool, error)
	// ReleaseReserved returns qty reserved seats to available.
	ReleaseReserved(ctx context.Context, tierID uuid.UUID, qty int) (bool, error)
	// ReleaseSold returns qty sold seats to available (refund restock).
	ReleaseSold(ctx context.Context, tierID uuid.UUID, qty int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a tier repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, tier *models.TicketTier) error {
	return r.db.WithContext(ctx).Create(tier).Error
}

func (r *repository) Update(ctx context.Context, tier *models.TicketTier) error {
	return r.db.WithContext(ctx).Save(tier).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.TicketTier{}, "id = ?", id).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := r.db.WithContext(ctx).First(&tier, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := dbpkg.LockForUpdate(r.db.WithContext(ctx)).
		First(&tier, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

func (r *repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("position ASC").
		Order("created_at ASC").
		Find(&tiers).Error
	return tiers, err
}

func (r *repository) Reserve(ctx context.Context, tierID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.TicketTier{}).
		Where("id = ? AND quantity - sold - reserved >= ?", tierID, qty).
		Update("reserved", gorm.Expr("reserved + ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CommitReserved(ctx context.Context, tierID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.TicketTier{}).
		Where("id = ? AND reserved >= ?", tierID, qty).
		Updates(map[string]any{
			"sold":     gorm.Expr("sold + ?", qty),
			"reserved": gorm.Expr("reserved - ?", qty),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ReleaseReserved(ctx context.Context, tierID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.TicketTier{}).
		Where("id = ? AND reserved >= ?", tierID, qty).
		Update("reserved", gorm.Expr("reserved - ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ReleaseSold(ctx context.Context, tierID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.TicketTier{}).
		Where("id = ? AND sold >= ?", tierID, qty).
		Update("sold", gorm.Expr("sold - ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
