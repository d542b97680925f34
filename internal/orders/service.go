package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ticketloom/ticketloom-backend/internal/holds"
	"github.com/ticketloom/ticketloom-backend/internal/inventory"
	"github.com/ticketloom/ticketloom-backend/internal/tickets"
	"github.com/ticketloom/ticketloom-backend/pkg/config"
	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives an order through pending, confirmed, cancelled, and
// refunded, orchestrating holds, inventory, and ticket issuance.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	ConfirmPayment(ctx context.Context, input PaymentResult) (*models.Order, error)
	HandlePaymentFailure(ctx context.Context, orderID uuid.UUID, reason string) error
	Cancel(ctx context.Context, orderID, userID uuid.UUID) error
	Refund(ctx context.Context, input RefundInput) (*models.Order, error)

	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)

	// ExpireBatch cancels up to limit pending orders past their expiry and
	// returns how many were reclaimed. Their holds release with them.
	ExpireBatch(ctx context.Context, limit int) (int, error)

	// SetFreedNotifier wires the waitlist reaction for refund restocking.
	// Hold releases notify the waitlist through the hold service on their own.
	SetFreedNotifier(n holds.FreedNotifier)
}

// CreateOrderInput starts checkout for one event across one or more tiers.
type CreateOrderInput struct {
	UserID  uuid.UUID
	EventID uuid.UUID
	Items   []OrderItemInput
}

// OrderItemInput requests a quantity from one tier.
type OrderItemInput struct {
	TierID   uuid.UUID
	Quantity int
}

// PaymentResult is the gateway's success callback payload.
type PaymentResult struct {
	OrderID     uuid.UUID
	Amount      decimal.Decimal
	ProviderRef string
}

// RefundInput requests a refund of a confirmed order. A nil Amount refunds
// the full total.
type RefundInput struct {
	OrderID uuid.UUID
	Amount  *decimal.Decimal
	Reason  *string
}

type service struct {
	repo     Repository
	holds    holds.Service
	tickets  tickets.Service
	tierRepo inventory.Repository
	tx       txRunner
	outbox   outboxPublisher
	cfg      config.CheckoutConfig
	refund   config.RefundConfig
	freed    holds.FreedNotifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order coordinator with the required dependencies.
func NewService(
	repo Repository,
	holdSvc holds.Service,
	ticketSvc tickets.Service,
	tierRepo inventory.Repository,
	tx txRunner,
	ob outboxPublisher,
	cfg config.CheckoutConfig,
	refund config.RefundConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if holdSvc == nil {
		return nil, fmt.Errorf("hold service required")
	}
	if ticketSvc == nil {
		return nil, fmt.Errorf("ticket service required")
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
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		holds:    holdSvc,
		tickets:  ticketSvc,
		tierRepo: tierRepo,
		tx:       tx,
		outbox:   ob,
		cfg:      cfg,
		refund:   refund,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// SetFreedNotifier wires the waitlist reaction for refund restocking. Hold
// releases notify the waitlist through the hold service on their own.
func (s *service) SetFreedNotifier(n holds.FreedNotifier) {
	s.freed = n
}

// newOrderNumber mints a human-readable order reference.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("TL-%s-%s", now.Format("20060102"), suffix)
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one item")
	}
	seen := make(map[uuid.UUID]bool, len(input.Items))
	for _, item := range input.Items {
		if item.TierID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier id required on every item")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if seen[item.TierID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate tier in order items")
		}
		seen[item.TierID] = true
	}

	now := s.now()
	orderID := uuid.New()

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var (
			items     []models.OrderItem
			subtotal  decimal.Decimal
			expiresAt time.Time
		)
		for _, item := range input.Items {
			// any failed reservation rolls back every hold acquired so far
			hold, err := s.holds.CreateInTx(ctx, tx, holds.CreateHoldInput{
				UserID:   input.UserID,
				TierID:   item.TierID,
				Quantity: item.Quantity,
				OrderID:  &orderID,
			})
			if err != nil {
				return err
			}
			if expiresAt.IsZero() || hold.ExpiresAt.Before(expiresAt) {
				expiresAt = hold.ExpiresAt
			}

			tier, err := s.tierRepo.WithTx(tx).GetByID(ctx, item.TierID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
			}
			if tier.EventID != input.EventID {
				return pkgerrors.New(pkgerrors.CodeValidation, "tier belongs to a different event")
			}

			lineTotal := tier.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			items = append(items, models.OrderItem{
				ID:        uuid.New(),
				OrderID:   orderID,
				TierID:    tier.ID,
				TierName:  tier.Name,
				Quantity:  item.Quantity,
				UnitPrice: tier.Price,
				Subtotal:  lineTotal,
			})
			subtotal = subtotal.Add(lineTotal)
		}

		fee := subtotal.
			Mul(decimal.NewFromInt(int64(s.cfg.ServiceFeePercent))).
			Div(decimal.NewFromInt(100)).
			Round(2)
		total := subtotal.Add(fee)

		order = &models.Order{
			ID:            orderID,
			UserID:        input.UserID,
			EventID:       input.EventID,
			OrderNumber:   newOrderNumber(now),
			Status:        enums.OrderStatusPending,
			PaymentStatus: enums.PaymentStatusPending,
			Subtotal:      subtotal,
			ServiceFee:    fee,
			Total:         total,
			ExpiresAt:     &expiresAt,
			Items:         items,
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Version:       1,
			Data: payloads.OrderCreatedEvent{
				OrderID:     orderID,
				EventID:     input.EventID,
				UserID:      input.UserID,
				OrderNumber: order.OrderNumber,
				Total:       total.StringFixed(2),
				ExpiresAt:   order.ExpiresAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithField(logCtx, "order_number", order.OrderNumber)
	s.logg.Info(logCtx, "order created")
	return order, nil
}

func (s *service) ConfirmPayment(ctx context.Context, input PaymentResult) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var (
		confirmed *models.Order
		lateErr   error
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetForUpdate(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		switch order.Status {
		case enums.OrderStatusConfirmed:
			// duplicate webhook: return the existing result, issue nothing
			confirmed = order
			return nil
		case enums.OrderStatusCancelled, enums.OrderStatusRefunded:
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s and cannot be confirmed", order.Status))
		}

		orderHolds, err := s.holds.ListForOrderInTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if len(orderHolds) == 0 {
			return pkgerrors.New(pkgerrors.CodeInternal, "pending order has no holds")
		}

		now := s.now()
		for i, hold := range orderHolds {
			if _, err := s.holds.CommitInTx(ctx, tx, hold.ID, order.ID); err != nil {
				if !pkgerrors.HasCode(err, pkgerrors.CodeHoldExpired) {
					return err
				}
				// the payment arrived too late: the expired hold already
				// released above, unwind the rest and cancel the order,
				// committing that outcome instead of rolling it back
				lateErr = err
				for _, remaining := range orderHolds[i+1:] {
					if relErr := s.holds.ReleaseInTx(ctx, tx, remaining.ID); relErr != nil {
						return relErr
					}
				}
				return s.cancelLocked(ctx, tx, order, enums.PaymentStatusCompleted, "payment confirmed after hold expiry")
			}
		}

		issued, err := s.tickets.IssueForOrder(ctx, tx, order)
		if err != nil {
			return err
		}

		ref := input.ProviderRef
		var providerRef *string
		if ref != "" {
			providerRef = &ref
		}
		ok, err := repo.MarkConfirmed(ctx, order.ID, providerRef, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order changed concurrently")
		}

		ticketIDs := make([]uuid.UUID, 0, len(issued))
		for _, ticket := range issued {
			ticketIDs = append(ticketIDs, ticket.ID)
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.OrderConfirmedEvent{
				OrderID:     order.ID,
				EventID:     order.EventID,
				UserID:      order.UserID,
				OrderNumber: order.OrderNumber,
				TicketIDs:   ticketIDs,
				ConfirmedAt: now,
			},
		}); err != nil {
			return err
		}

		order.Status = enums.OrderStatusConfirmed
		order.PaymentStatus = enums.PaymentStatusCompleted
		order.PaymentRef = providerRef
		order.ConfirmedAt = &now
		confirmed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lateErr != nil {
		return nil, lateErr
	}

	s.logg.Info(s.logg.WithOrderID(ctx, confirmed.ID.String()), "order confirmed")
	return confirmed, nil
}

func (s *service) HandlePaymentFailure(ctx context.Context, orderID uuid.UUID, reason string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).GetForUpdate(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		switch order.Status {
		case enums.OrderStatusCancelled:
			// duplicate failure webhook
			return nil
		case enums.OrderStatusConfirmed, enums.OrderStatusRefunded:
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s, payment failure cannot apply", order.Status))
		}

		if err := s.releaseHoldsLocked(ctx, tx, order.ID); err != nil {
			return err
		}
		if reason == "" {
			reason = "payment failed"
		}
		return s.cancelLocked(ctx, tx, order, enums.PaymentStatusFailed, reason)
	})
}

func (s *service) Cancel(ctx context.Context, orderID, userID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).GetForUpdate(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if userID != uuid.Nil && order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if order.Status == enums.OrderStatusCancelled {
			return nil
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s and cannot be cancelled", order.Status))
		}

		if err := s.releaseHoldsLocked(ctx, tx, order.ID); err != nil {
			return err
		}
		return s.cancelLocked(ctx, tx, order, enums.PaymentStatusPending, "cancelled by buyer")
	})
}

// releaseHoldsLocked releases every hold on the order, tolerating holds the
// expiry sweep already reclaimed.
func (s *service) releaseHoldsLocked(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	orderHolds, err := s.holds.ListForOrderInTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, hold := range orderHolds {
		if err := s.holds.ReleaseInTx(ctx, tx, hold.ID); err != nil {
			return err
		}
	}
	return nil
}

// cancelLocked moves a pending order to cancelled under the caller's row
// lock and emits the cancellation event.
func (s *service) cancelLocked(ctx context.Context, tx *gorm.DB, order *models.Order, paymentStatus enums.PaymentStatus, reason string) error {
	now := s.now()
	ok, err := s.repo.WithTx(tx).MarkCancelled(ctx, order.ID, paymentStatus, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order changed concurrently")
	}

	if err := s.tickets.CancelForOrder(ctx, tx, order.ID); err != nil {
		return err
	}

	order.Status = enums.OrderStatusCancelled
	order.PaymentStatus = paymentStatus
	order.CancelledAt = &now

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			EventID:     order.EventID,
			UserID:      order.UserID,
			CancelledAt: now,
			Reason:      reason,
		},
	})
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var refunded *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetForUpdate(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status != enums.OrderStatusConfirmed {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s and cannot be refunded", order.Status))
		}

		amount := order.Total
		if input.Amount != nil {
			amount = *input.Amount
		}
		if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(order.Total) {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive and within the order total")
		}

		now := s.now()
		ok, err := repo.MarkRefunded(ctx, order.ID, amount, input.Reason, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order changed concurrently")
		}

		if err := s.tickets.RefundForOrder(ctx, tx, order.ID); err != nil {
			return err
		}

		// refunded seats return to the pool only when the restock policy
		// says so; otherwise the seat stays sold and vacant
		if s.refund.Restock {
			tierRepo := s.tierRepo.WithTx(tx)
			for _, item := range order.Items {
				ok, err := tierRepo.ReleaseSold(ctx, item.TierID, item.Quantity)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock refunded seats")
				}
				if !ok {
					return pkgerrors.New(pkgerrors.CodeInternal, "sold counter underflow")
				}
				if s.freed != nil {
					if err := s.freed.OnInventoryFreed(ctx, tx, item.TierID, item.Quantity); err != nil {
						return err
					}
				}
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.OrderRefundedEvent{
				OrderID:      order.ID,
				EventID:      order.EventID,
				UserID:       order.UserID,
				RefundAmount: amount.StringFixed(2),
				Restocked:    s.refund.Restock,
				RefundedAt:   now,
			},
		}); err != nil {
			return err
		}

		order.Status = enums.OrderStatusRefunded
		order.PaymentStatus = enums.PaymentStatusRefunded
		order.RefundAmount = &amount
		order.RefundReason = input.Reason
		order.RefundedAt = &now
		refunded = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refunded, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, nil
}

func (s *service) ExpireBatch(ctx context.Context, limit int) (int, error) {
	now := s.now()
	expired, err := s.repo.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired orders")
	}

	cancelled := 0
	for _, candidate := range expired {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.repo.WithTx(tx).GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
			}
			// a concurrent confirmation or cancellation may have won
			if order == nil || order.Status != enums.OrderStatusPending {
				return nil
			}
			if order.ExpiresAt == nil || order.ExpiresAt.After(now) {
				return nil
			}

			if err := s.releaseHoldsLocked(ctx, tx, order.ID); err != nil {
				return err
			}
			if err := s.cancelLocked(ctx, tx, order, enums.PaymentStatusPending, "checkout expired"); err != nil {
				return err
			}

			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderExpired,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Version:       1,
				Data: payloads.OrderExpiredEvent{
					OrderID:   order.ID,
					EventID:   order.EventID,
					UserID:    order.UserID,
					ExpiredAt: now,
				},
			}); err != nil {
				return err
			}
			cancelled++
			return nil
		})
		if err != nil {
			return cancelled, err
		}
	}
	return cancelled, nil
}
