package orders

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/ticketloom/ticketloom-backend/pkg/db"
	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
)

// Repository manages persistence for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByOrderNumber(ctx context.Context, number string) (*models.Order, error)

	// MarkConfirmed flips a pending order to confirmed. Returns false when
	// the order already left the pending state.
	MarkConfirmed(ctx context.Context, id uuid.UUID, providerRef *string, at time.Time) (bool, error)
	// MarkCancelled flips a pending order to cancelled.
	MarkCancelled(ctx context.Context, id uuid.UUID, paymentStatus enums.PaymentStatus, at time.Time) (bool, error)
	// MarkRefunded flips a confirmed order to refunded.
	MarkRefunded(ctx context.Context, id uuid.UUID, amount decimal.Decimal, reason *string, at time.Time) (bool, error)

	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := dbpkg.LockForUpdate(r.db.WithContext(ctx)).
		First(&order, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	// items load separately: FOR UPDATE does not mix with joined preloads
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", id).
		Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByOrderNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "order_number = ?", number).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) MarkConfirmed(ctx context.Context, id uuid.UUID, providerRef *string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":         enums.OrderStatusConfirmed,
			"payment_status": enums.PaymentStatusCompleted,
			"payment_ref":    providerRef,
			"confirmed_at":   at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID, paymentStatus enums.PaymentStatus, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":         enums.OrderStatusCancelled,
			"payment_status": paymentStatus,
			"cancelled_at":   at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID, amount decimal.Decimal, reason *string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusConfirmed).
		Updates(map[string]any{
			"status":         enums.OrderStatusRefunded,
			"payment_status": enums.PaymentStatusRefunded,
			"refund_amount":  amount,
			"refund_reason":  reason,
			"refunded_at":    at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", enums.OrderStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
