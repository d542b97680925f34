package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
	"github.com/ticketloom/ticketloom-backend/pkg/metrics"
)

// Service defines admin and query operations over tier inventory. Counter
// mutations happen through Repository inside checkout transactions; this
// surface covers tier lifecycle and availability reads.
type Service interface {
	CreateTier(ctx context.Context, input CreateTierInput) (*models.TicketTier, error)
	UpdateTier(ctx context.Context, input UpdateTierInput) (*models.TicketTier, error)
	DeleteTier(ctx context.Context, tierID uuid.UUID) error
	GetTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error)
	ListTiers(ctx context.Context, eventID uuid.UUID) ([]models.TicketTier, error)
	Availability(ctx context.Context, tierID uuid.UUID) (*Availability, error)
}

// Availability is the point-in-time ledger snapshot for a tier.
type Availability struct {
	TierID    uuid.UUID `json:"tier_id"`
	Quantity  int       `json:"quantity"`
	Sold      int       `json:"sold"`
	Reserved  int       `json:"reserved"`
	Available int       `json:"available"`
}

// CreateTierInput carries the fields required to open a new tier.
type CreateTierInput struct {
	EventID      uuid.UUID
	Name         string
	Description  *string
	Price        decimal.Decimal
	CurrencyCode string
	Quantity     int
	MinPurchase  int
	MaxPurchase  int
	SalesStartAt *time.Time
	SalesEndAt   *time.Time
	Transferable *bool
	Position     int
}

// UpdateTierInput carries a partial tier update. Nil fields stay unchanged.
type UpdateTierInput struct {
	TierID       uuid.UUID
	Name         *string
	Description  *string
	Price        *decimal.Decimal
	Quantity     *int
	MinPurchase  *int
	MaxPurchase  *int
	SalesStartAt *time.Time
	SalesEndAt   *time.Time
	IsActive     *bool
	Transferable *bool
	Position     *int
}

type service struct {
	repo    Repository
	metrics *metrics.InventoryMetrics
	now     func() time.Time
}

// NewService wires an inventory service with the provided repository.
func NewService(repo Repository, inv *metrics.InventoryMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{
		repo:    repo,
		metrics: inv,
		now:     time.Now,
	}, nil
}

func (s *service) CreateTier(ctx context.Context, input CreateTierInput) (*models.TicketTier, error) {
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier name required")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	minPurchase := input.MinPurchase
	if minPurchase == 0 {
		minPurchase = 1
	}
	maxPurchase := input.MaxPurchase
	if maxPurchase == 0 {
		maxPurchase = 10
	}
	if minPurchase < 1 || maxPurchase < minPurchase {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase bounds")
	}
	if input.SalesStartAt != nil && input.SalesEndAt != nil && !input.SalesEndAt.After(*input.SalesStartAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sales window must end after it starts")
	}

	currency := input.CurrencyCode
	if currency == "" {
		currency = "USD"
	}
	transferable := true
	if input.Transferable != nil {
		transferable = *input.Transferable
	}

	tier := &models.TicketTier{
		EventID:      input.EventID,
		Name:         input.Name,
		Description:  input.Description,
		Price:        input.Price,
		CurrencyCode: currency,
		Quantity:     input.Quantity,
		MinPurchase:  minPurchase,
		MaxPurchase:  maxPurchase,
		SalesStartAt: input.SalesStartAt,
		SalesEndAt:   input.SalesEndAt,
		IsActive:     true,
		Transferable: transferable,
		Position:     input.Position,
	}
	if err := s.repo.Create(ctx, tier); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tier")
	}
	return tier, nil
}

func (s *service) UpdateTier(ctx context.Context, input UpdateTierInput) (*models.TicketTier, error) {
	if input.TierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	}

	tier, err := s.repo.GetByID(ctx, input.TierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if tier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
	}

	hasSales := tier.Sold > 0 || tier.Reserved > 0

	if input.Price != nil && !input.Price.Equal(tier.Price) {
		if hasSales {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "price cannot change after sales started")
		}
		if input.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
		}
		tier.Price = *input.Price
	}
	if input.Quantity != nil {
		if *input.Quantity < tier.Sold+tier.Reserved {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "quantity cannot drop below sold plus reserved").
				WithDetails(map[string]any{"sold": tier.Sold, "reserved": tier.Reserved})
		}
		tier.Quantity = *input.Quantity
	}
	if input.Name != nil {
		if *input.Name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier name required")
		}
		tier.Name = *input.Name
	}
	if input.Description != nil {
		tier.Description = input.Description
	}
	if input.MinPurchase != nil {
		tier.MinPurchase = *input.MinPurchase
	}
	if input.MaxPurchase != nil {
		tier.MaxPurchase = *input.MaxPurchase
	}
	if tier.MinPurchase < 1 || tier.MaxPurchase < tier.MinPurchase {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase bounds")
	}
	if input.SalesStartAt != nil {
		tier.SalesStartAt = input.SalesStartAt
	}
	if input.SalesEndAt != nil {
		tier.SalesEndAt = input.SalesEndAt
	}
	if tier.SalesStartAt != nil && tier.SalesEndAt != nil && !tier.SalesEndAt.After(*tier.SalesStartAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sales window must end after it starts")
	}
	if input.IsActive != nil {
		tier.IsActive = *input.IsActive
	}
	if input.Transferable != nil {
		tier.Transferable = *input.Transferable
	}
	if input.Position != nil {
		tier.Position = *input.Position
	}

	if err := s.repo.Update(ctx, tier); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tier")
	}
	return tier, nil
}

func (s *service) DeleteTier(ctx context.Context, tierID uuid.UUID) error {
	if tierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	}
	tier, err := s.repo.GetByID(ctx, tierID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if tier == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
	}
	if tier.Sold > 0 || tier.Reserved > 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "tier with sold or reserved seats cannot be deleted")
	}
	if err := s.repo.Delete(ctx, tierID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete tier")
	}
	return nil
}

func (s *service) GetTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error) {
	if tierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	}
	tier, err := s.repo.GetByID(ctx, tierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if tier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
	}
	return tier, nil
}

func (s *service) ListTiers(ctx context.Context, eventID uuid.UUID) ([]models.TicketTier, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	tiers, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tiers")
	}
	return tiers, nil
}

func (s *service) Availability(ctx context.Context, tierID uuid.UUID) (*Availability, error) {
	tier, err := s.GetTier(ctx, tierID)
	if err != nil {
		return nil, err
	}
	avail := &Availability{
		TierID:    tier.ID,
		Quantity:  tier.Quantity,
		Sold:      tier.Sold,
		Reserved:  tier.Reserved,
		Available: tier.Available(),
	}
	s.metrics.SetAvailable(tier.ID.String(), avail.Available)
	return avail, nil
}

// ValidatePurchase checks tier state, sales window, remaining capacity, and
// per-order purchase bounds for the requested quantity.
func ValidatePurchase(tier *models.TicketTier, qty int, now time.Time) error {
	if tier == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
	}
	if !tier.IsActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "tier is not on sale")
	}
	if tier.SalesStartAt != nil && now.Before(*tier.SalesStartAt) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "sales have not started")
	}
	if tier.SalesEndAt != nil && !now.Before(*tier.SalesEndAt) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "sales have ended")
	}
	if qty < tier.MinPurchase || qty > tier.MaxPurchase {
		return pkgerrors.New(pkgerrors.CodePurchaseLimit, "quantity outside purchase bounds").
			WithDetails(map[string]any{"min": tier.MinPurchase, "max": tier.MaxPurchase})
	}
	if tier.Available() < qty {
		return pkgerrors.New(pkgerrors.CodeInsufficientInventory, "not enough seats available").
			WithDetails(map[string]any{"available": tier.Available(), "requested": qty})
	}
	return nil
}
