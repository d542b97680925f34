package holds

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ticketloom/ticketloom-backend/internal/inventory"
	"github.com/ticketloom/ticketloom-backend/pkg/config"
	dbpkg "github.com/ticketloom/ticketloom-backend/pkg/db"
	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
	"github.com/ticketloom/ticketloom-backend/pkg/metrics"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// FreedNotifier lets the waitlist react to inventory returning to the pool.
type FreedNotifier interface {
	OnInventoryFreed(ctx context.Context, tx *gorm.DB, tierID uuid.UUID, qty int) error
}

// OfferResolver closes a buyer's open waitlist offer once their hold claims
// the seats it promised.
type OfferResolver interface {
	FulfillOffer(ctx context.Context, tx *gorm.DB, tierID, userID uuid.UUID) error
}

// Service manages the lifecycle of checkout holds: create, extend, release,
// commit, and the expiry sweep. A hold terminates exactly once.
type Service interface {
	CreateHold(ctx context.Context, input CreateHoldInput) (*models.Hold, error)
	ExtendHold(ctx context.Context, holdID, userID uuid.UUID) (*models.Hold, error)
	ReleaseHold(ctx context.Context, holdID, userID uuid.UUID) error
	GetHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]models.Hold, error)

	// CreateInTx claims tier inventory inside the caller's transaction. A
	// rollback returns the reserved seats without any compensation step.
	CreateInTx(ctx context.Context, tx *gorm.DB, input CreateHoldInput) (*models.Hold, error)

	// CommitInTx converts an active hold into sold inventory inside the
	// caller's transaction. Late commits on expired holds release the hold
	// and fail with a hold-expired error.
	CommitInTx(ctx context.Context, tx *gorm.DB, holdID, orderID uuid.UUID) (*models.Hold, error)

	// ReleaseInTx terminates a hold inside the caller's transaction. Already
	// released holds are a no-op, committed holds are a state conflict.
	ReleaseInTx(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) error

	// ListForOrderInTx returns the holds backing an order.
	ListForOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.Hold, error)

	// ExpireBatch releases up to limit expired holds and returns how many
	// were reclaimed.
	ExpireBatch(ctx context.Context, limit int) (int, error)

	// SetFreedNotifier wires the waitlist reaction after construction.
	SetFreedNotifier(n FreedNotifier)

	// SetOfferResolver wires waitlist offer fulfillment after construction.
	SetOfferResolver(r OfferResolver)
}

// CreateHoldInput carries the request to claim tier inventory. OrderID is
// set when the hold is created as part of order checkout.
type CreateHoldInput struct {
	UserID         uuid.UUID
	TierID         uuid.UUID
	Quantity       int
	IdempotencyKey *string
	OrderID        *uuid.UUID
}

type service struct {
	repo     Repository
	tierRepo inventory.Repository
	tx       txRunner
	outbox   outboxPublisher
	freed    FreedNotifier
	offers   OfferResolver
	cfg      config.CheckoutConfig
	metrics  *metrics.InventoryMetrics
	now      func() time.Time
}

// NewService builds a hold service with the required dependencies.
func NewService(repo Repository, tierRepo inventory.Repository, tx txRunner, ob outboxPublisher, cfg config.CheckoutConfig, inv *metrics.InventoryMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("holds repository required")
	}
	if tierRepo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cfg.HoldTTL <= 0 {
		return nil, fmt.Errorf("hold ttl must be positive")
	}
	return &service{
		repo:     repo,
		tierRepo: tierRepo,
		tx:       tx,
		outbox:   ob,
		cfg:      cfg,
		metrics:  inv,
		now:      time.Now,
	}, nil
}

func (s *service) SetFreedNotifier(n FreedNotifier) {
	s.freed = n
}

func (s *service) SetOfferResolver(r OfferResolver) {
	s.offers = r
}

func (s *service) CreateHold(ctx context.Context, input CreateHoldInput) (*models.Hold, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.TierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	now := s.now()

	if input.IdempotencyKey != nil && *input.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, *input.IdempotencyKey)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup idempotency key")
		}
		if existing != nil {
			if existing.UserID == input.UserID &&
				existing.TierID == input.TierID &&
				existing.Quantity == input.Quantity &&
				existing.Status == enums.HoldStatusActive &&
				!existing.Expired(now) {
				return existing, nil
			}
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key already used")
		}
	}

	var hold *models.Hold
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.createLocked(ctx, tx, input, now)
		if err != nil {
			return err
		}
		hold = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

func (s *service) CreateInTx(ctx context.Context, tx *gorm.DB, input CreateHoldInput) (*models.Hold, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.createLocked(ctx, tx, input, s.now())
}

// createLocked reserves tier inventory under a row lock and inserts the hold.
func (s *service) createLocked(ctx context.Context, tx *gorm.DB, input CreateHoldInput, now time.Time) (*models.Hold, error) {
	tierRepo := s.tierRepo.WithTx(tx)
	tier, err := tierRepo.GetForUpdate(ctx, input.TierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if tier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
	}
	if err := inventory.ValidatePurchase(tier, input.Quantity, now); err != nil {
		return nil, err
	}

	ok, err := tierRepo.Reserve(ctx, input.TierID, input.Quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve inventory")
	}
	if !ok {
		s.metrics.IncInsufficient(input.TierID.String())
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientInventory, "not enough seats available").
			WithDetails(map[string]any{"tier_id": input.TierID, "requested": input.Quantity})
	}

	hold := &models.Hold{
		ID:             uuid.New(),
		TierID:         input.TierID,
		UserID:         input.UserID,
		Quantity:       input.Quantity,
		Status:         enums.HoldStatusActive,
		IdempotencyKey: input.IdempotencyKey,
		OrderID:        input.OrderID,
		ExpiresAt:      now.Add(s.cfg.HoldTTL),
	}
	if err := s.repo.WithTx(tx).Create(ctx, hold); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_holds_idempotency_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key already used")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create hold")
	}

	// a notified waitlist buyer claiming their seats closes the offer, so
	// the sweep does not expire it and re-offer capacity this hold consumes
	if s.offers != nil && input.UserID != uuid.Nil {
		if err := s.offers.FulfillOffer(ctx, tx, input.TierID, input.UserID); err != nil {
			return nil, err
		}
	}
	return hold, nil
}

func (s *service) ExtendHold(ctx context.Context, holdID, userID uuid.UUID) (*models.Hold, error) {
	if holdID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold id required")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var extended *models.Hold
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		hold, err := repo.GetForUpdate(ctx, holdID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold")
		}
		if hold == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "hold not found")
		}
		if hold.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "hold does not belong to user")
		}
		if hold.Status != enums.HoldStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "hold already terminated")
		}
		now := s.now()
		if hold.Expired(now) {
			if err := s.releaseLocked(ctx, tx, hold, true); err != nil {
				return err
			}
			return pkgerrors.New(pkgerrors.CodeHoldExpired, "hold expired")
		}
		if hold.Extensions >= s.cfg.MaxHoldExtensions {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "hold extension limit reached")
		}

		expiresAt := now.Add(s.cfg.HoldTTL)
		ok, err := repo.UpdateExpiry(ctx, hold.ID, expiresAt, hold.Extensions+1)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend hold")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "hold changed concurrently")
		}
		hold.ExpiresAt = expiresAt
		hold.Extensions++
		extended = hold
		return nil
	})
	if err != nil {
		return nil, err
	}
	return extended, nil
}

func (s *service) ReleaseHold(ctx context.Context, holdID, userID uuid.UUID) error {
	if holdID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "hold id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		hold, err := repo.GetForUpdate(ctx, holdID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold")
		}
		if hold == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "hold not found")
		}
		if userID != uuid.Nil && hold.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "hold does not belong to user")
		}
		if hold.Status == enums.HoldStatusReleased {
			return nil
		}
		if hold.Status == enums.HoldStatusCommitted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "hold already committed to an order")
		}
		return s.releaseLocked(ctx, tx, hold, hold.Expired(s.now()))
	})
}

func (s *service) ReleaseInTx(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	hold, err := s.repo.WithTx(tx).GetForUpdate(ctx, holdID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold")
	}
	if hold == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "hold not found")
	}
	switch hold.Status {
	case enums.HoldStatusReleased:
		return nil
	case enums.HoldStatusCommitted:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "hold already committed to an order")
	}
	return s.releaseLocked(ctx, tx, hold, hold.Expired(s.now()))
}

// releaseLocked terminates an active hold under the caller's row lock and
// returns its seats to the pool.
func (s *service) releaseLocked(ctx context.Context, tx *gorm.DB, hold *models.Hold, expired bool) error {
	repo := s.repo.WithTx(tx)
	now := s.now()

	ok, err := repo.MarkReleased(ctx, hold.ID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release hold")
	}
	if !ok {
		s.metrics.IncConflict("hold_release")
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "hold changed concurrently")
	}

	ok, err = s.tierRepo.WithTx(tx).ReleaseReserved(ctx, hold.TierID, hold.Quantity)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return reserved seats")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "reserved counter underflow")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventHoldReleased,
		AggregateType: enums.AggregateHold,
		AggregateID:   hold.ID,
		Version:       1,
		Data: payloads.HoldReleasedEvent{
			HoldID:   hold.ID,
			TierID:   hold.TierID,
			Quantity: hold.Quantity,
			Expired:  expired,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return err
	}

	if s.freed != nil {
		return s.freed.OnInventoryFreed(ctx, tx, hold.TierID, hold.Quantity)
	}
	return nil
}

func (s *service) ListForOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.Hold, error) {
	holds, err := s.repo.WithTx(tx).ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list holds for order")
	}
	return holds, nil
}

func (s *service) GetHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error) {
	if holdID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold id required")
	}
	hold, err := s.repo.GetByID(ctx, holdID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold")
	}
	if hold == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "hold not found")
	}
	return hold, nil
}

func (s *service) ListActive(ctx context.Context, userID uuid.UUID) ([]models.Hold, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	holds, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list holds")
	}
	return holds, nil
}

func (s *service) CommitInTx(ctx context.Context, tx *gorm.DB, holdID, orderID uuid.UUID) (*models.Hold, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	hold, err := repo.GetForUpdate(ctx, holdID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold")
	}
	if hold == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "hold not found")
	}

	switch hold.Status {
	case enums.HoldStatusCommitted:
		// double commit for the same order is a no-op
		if hold.OrderID != nil && *hold.OrderID == orderID {
			return hold, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "hold committed to another order")
	case enums.HoldStatusReleased:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "hold already released")
	}

	now := s.now()
	if hold.Expired(now) {
		if err := s.releaseLocked(ctx, tx, hold, true); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeHoldExpired, "hold expired before commit")
	}

	ok, err := repo.MarkCommitted(ctx, hold.ID, orderID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit hold")
	}
	if !ok {
		s.metrics.IncConflict("hold_commit")
		return nil, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "hold changed concurrently")
	}

	ok, err = s.tierRepo.WithTx(tx).CommitReserved(ctx, hold.TierID, hold.Quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit reserved seats")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reserved counter underflow")
	}

	hold.Status = enums.HoldStatusCommitted
	hold.OrderID = &orderID
	hold.CommittedAt = &now
	return hold, nil
}

func (s *service) ExpireBatch(ctx context.Context, limit int) (int, error) {
	now := s.now()
	expired, err := s.repo.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired holds")
	}

	released := 0
	for _, candidate := range expired {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			hold, err := s.repo.WithTx(tx).GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold")
			}
			// a concurrent commit or release may have won
			if hold == nil || hold.Status != enums.HoldStatusActive || !hold.Expired(now) {
				return nil
			}
			if err := s.releaseLocked(ctx, tx, hold, true); err != nil {
				return err
			}
			released++
			return nil
		})
		if err != nil {
			return released, err
		}
	}
	s.metrics.AddHoldsExpired(released)
	return released, nil
}
