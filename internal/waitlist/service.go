package waitlist

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
	"github.com/ticketloom/ticketloom-backend/pkg/outbox"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service maintains the FIFO waitlist per tier and turns freed inventory
// into time-boxed purchase offers. Notification never reserves seats: the
// notified buyer still races everyone else for a hold.
type Service interface {
	Join(ctx context.Context, input JoinInput) (*models.WaitlistEntry, error)
	Leave(ctx context.Context, entryID, userID uuid.UUID) error
	GetEntry(ctx context.Context, entryID uuid.UUID) (*models.WaitlistEntry, error)

	// FulfillOffer closes the buyer's notified entry for a tier inside the
	// transaction that claims their hold. A buyer without an open offer is
	// a no-op, so the regular purchase path is unaffected.
	FulfillOffer(ctx context.Context, tx *gorm.DB, tierID, userID uuid.UUID) error

	// OnInventoryFreed claims up to freedQty waiting entries in position
	// order and offers them the freed capacity. Runs inside the releasing
	// transaction so offers and the release commit together.
	OnInventoryFreed(ctx context.Context, tx *gorm.DB, tierID uuid.UUID, freedQty int) error

	// ExpireOffers retires lapsed offers and re-offers the reclaimed
	// capacity down the queue. Returns how many offers lapsed.
	ExpireOffers(ctx context.Context, limit int) (int, error)
}

// JoinInput queues a buyer for a tier.
type JoinInput struct {
	EventID  uuid.UUID
	TierID   uuid.UUID
	UserID   uuid.UUID
	Quantity int
}

type service struct {
	repo     Repository
	tierRepo inventory.Repository
	tx       txRunner
	outbox   outboxPublisher
	cfg      config.WaitlistConfig
	now      func() time.Time
}

// NewService builds a waitlist service with the required dependencies.
func NewService(repo Repository, tierRepo inventory.Repository, tx txRunner, ob outboxPublisher, cfg config.WaitlistConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("waitlist repository required")
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
	if cfg.NotificationWindow <= 0 {
		return nil, fmt.Errorf("notification window must be positive")
	}
	return &service{
		repo:     repo,
		tierRepo: tierRepo,
		tx:       tx,
		outbox:   ob,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

func (s *service) Join(ctx context.Context, input JoinInput) (*models.WaitlistEntry, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.EventID == uuid.Nil || input.TierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event and tier ids required")
	}
	quantity := input.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var entry *models.WaitlistEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// the tier row lock serializes position assignment
		tier, err := s.tierRepo.WithTx(tx).GetForUpdate(ctx, input.TierID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
		}
		if tier == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
		}
		if tier.EventID != input.EventID {
			return pkgerrors.New(pkgerrors.CodeValidation, "tier belongs to a different event")
		}

		repo := s.repo.WithTx(tx)
		existing, err := repo.FindMember(ctx, input.EventID, input.UserID, input.TierID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "already on the waitlist for this tier")
		}

		position, err := repo.MaxPosition(ctx, input.TierID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign position")
		}

		entry = &models.WaitlistEntry{
			ID:       uuid.New(),
			EventID:  input.EventID,
			UserID:   input.UserID,
			TierID:   input.TierID,
			Quantity: quantity,
			Status:   enums.WaitlistStatusWaiting,
			Position: position + 1,
		}
		if err := repo.Create(ctx, entry); err != nil {
			if dbpkg.IsUniqueViolation(err, "idx_waitlist_member") {
				return pkgerrors.New(pkgerrors.CodeConflict, "already on the waitlist for this tier")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "join waitlist")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Leave(ctx context.Context, entryID, userID uuid.UUID) error {
	if entryID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "entry id required")
	}

	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entry")
	}
	if entry == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "waitlist entry not found")
	}
	if userID != uuid.Nil && entry.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "entry does not belong to user")
	}
	if entry.Status == enums.WaitlistStatusFulfilled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "fulfilled entries cannot leave")
	}

	if err := s.repo.Delete(ctx, entryID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "leave waitlist")
	}
	return nil
}

func (s *service) GetEntry(ctx context.Context, entryID uuid.UUID) (*models.WaitlistEntry, error) {
	if entryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry id required")
	}
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entry")
	}
	if entry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "waitlist entry not found")
	}
	return entry, nil
}

func (s *service) FulfillOffer(ctx context.Context, tx *gorm.DB, tierID, userID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if tierID == uuid.Nil || userID == uuid.Nil {
		return nil
	}

	repo := s.repo.WithTx(tx)
	entry, err := repo.FindNotified(ctx, tierID, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open offer")
	}
	if entry == nil {
		return nil
	}

	// a lost race with the expiry sweep is fine: the buyer still got their
	// seats through the regular pool
	if _, err := repo.MarkFulfilled(ctx, entry.ID, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfill entry")
	}
	return nil
}

func (s *service) OnInventoryFreed(ctx context.Context, tx *gorm.DB, tierID uuid.UUID, freedQty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if freedQty <= 0 {
		return nil
	}

	repo := s.repo.WithTx(tx)
	waiting, err := repo.ListWaiting(ctx, tierID, s.cfg.MaxBatch)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list waiting entries")
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.NotificationWindow)
	remaining := freedQty

	for _, entry := range waiting {
		if remaining <= 0 {
			break
		}
		// an entry wanting more than what is left waits for a bigger release
		if entry.Quantity > remaining {
			continue
		}
		ok, err := repo.MarkNotified(ctx, entry.ID, now, expiresAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim entry")
		}
		// another release claimed this entry first
		if !ok {
			continue
		}
		remaining -= entry.Quantity

		event := outbox.DomainEvent{
			EventType:     enums.EventWaitlistNotified,
			AggregateType: enums.AggregateWaitlist,
			AggregateID:   entry.ID,
			Version:       1,
			Data: payloads.WaitlistNotifiedEvent{
				EntryID:   entry.ID,
				EventID:   entry.EventID,
				TierID:    entry.TierID,
				UserID:    entry.UserID,
				Quantity:  entry.Quantity,
				ExpiresAt: expiresAt,
				Type:      enums.NotificationWaitlistOffer,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) ExpireOffers(ctx context.Context, limit int) (int, error) {
	now := s.now()
	lapsed, err := s.repo.ListExpiredOffers(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired offers")
	}

	expired := 0
	for _, candidate := range lapsed {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.MarkExpired(ctx, candidate.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire offer")
			}
			// the buyer fulfilled the offer between the sweep's read and now
			if !ok {
				return nil
			}
			expired++

			event := outbox.DomainEvent{
				EventType:     enums.EventWaitlistExpired,
				AggregateType: enums.AggregateWaitlist,
				AggregateID:   candidate.ID,
				Version:       1,
				Data: payloads.WaitlistExpiredEvent{
					EntryID:   candidate.ID,
					TierID:    candidate.TierID,
					UserID:    candidate.UserID,
					ExpiredAt: now,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}

			// the lapsed offer moves down the queue
			return s.OnInventoryFreed(ctx, tx, candidate.TierID, candidate.Quantity)
		})
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}
