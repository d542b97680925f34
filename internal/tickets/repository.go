package tickets

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

// Repository manages persistence for issued tickets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, tickets []models.Ticket) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	GetByCode(ctx context.Context, code string) (*models.Ticket, error)

	// MarkUsed flips a valid ticket to used. Returns false when the ticket
	// already left the valid state, so concurrent gate scans race safely.
	MarkUsed(ctx context.Context, code string, at time.Time) (bool, error)
	// UpdateOwner reassigns a valid ticket to a new holder.
	UpdateOwner(ctx context.Context, id uuid.UUID, fromUser, toUser uuid.UUID, at time.Time) (bool, error)
	UpdateAttendee(ctx context.Context, id uuid.UUID, name, email *string) error

	// UpdateStatusForOrder bulk-moves an order's valid tickets to the given
	// status and returns the affected ticket ids.
	UpdateStatusForOrder(ctx context.Context, orderID uuid.UUID, to enums.TicketStatus) ([]uuid.UUID, error)

	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Ticket, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Ticket, error)
	CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ticket repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBatch(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&tickets).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).First(&ticket, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := dbpkg.LockForUpdate(r.db.WithContext(ctx)).
		First(&ticket, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).First(&ticket, "ticket_code = ?", code).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) MarkUsed(ctx context.Context, code string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("ticket_code = ? AND status = ?", code, enums.TicketStatusValid).
		Updates(map[string]any{
			"status":        enums.TicketStatusUsed,
			"checked_in_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) UpdateOwner(ctx context.Context, id uuid.UUID, fromUser, toUser uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND owner_id = ? AND status = ?", id, fromUser, enums.TicketStatusValid).
		Updates(map[string]any{
			"owner_id":         toUser,
			"transferred_from": fromUser,
			"transferred_at":   at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) UpdateAttendee(ctx context.Context, id uuid.UUID, name, email *string) error {
	return r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attendee_name":  name,
			"attendee_email": email,
		}).Error
}

func (r *repository) UpdateStatusForOrder(ctx context.Context, orderID uuid.UUID, to enums.TicketStatus) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("order_id = ? AND status = ?", orderID, enums.TicketStatusValid).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err = r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id IN ? AND status = ?", ids, enums.TicketStatusValid).
		Update("status", to).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&tickets).Error
	return tickets, err
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&tickets).Error
	return tickets, err
}

func (r *repository) CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}
