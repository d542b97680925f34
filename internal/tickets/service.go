package tickets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ticketloom/ticketloom-backend/internal/inventory"
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

// Service manages issued tickets: issuance on order confirmation, gate
// check-in, transfer, and attendee details.
type Service interface {
	// IssueForOrder creates one valid ticket per purchased unit inside the
	// caller's transaction. Safe to call only once per order; the order
	// coordinator guards that with its status machine.
	IssueForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.Ticket, error)

	CheckIn(ctx context.Context, code string) (*CheckInResult, error)
	Transfer(ctx context.Context, input TransferInput) (*models.Ticket, error)
	SetAttendee(ctx context.Context, input AttendeeInput) (*models.Ticket, error)

	GetByCode(ctx context.Context, code string) (*models.Ticket, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Ticket, error)
	ListForUser(ctx context.Context, ownerID uuid.UUID) ([]models.Ticket, error)

	// CancelForOrder and RefundForOrder bulk-move an order's valid tickets
	// inside the caller's transaction.
	CancelForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	RefundForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// CheckInResult is the gate response: the scanned ticket plus enough
// context for the scanner display.
type CheckInResult struct {
	Ticket      models.Ticket
	TierName    string
	CheckedInAt time.Time
}

// TransferInput moves a valid ticket between holders.
type TransferInput struct {
	TicketID uuid.UUID
	FromUser uuid.UUID
	ToUser   uuid.UUID
}

// AttendeeInput sets the attendee details on a ticket. Allowed until the
// ticket is used.
type AttendeeInput struct {
	TicketID uuid.UUID
	OwnerID  uuid.UUID
	Name     *string
	Email    *string
}

type service struct {
	repo     Repository
	tierRepo inventory.Repository
	tx       txRunner
	outbox   outboxPublisher
	now      func() time.Time
}

// NewService builds a ticket service with the required dependencies.
func NewService(repo Repository, tierRepo inventory.Repository, tx txRunner, ob outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ticket repository required")
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
	return &service{
		repo:     repo,
		tierRepo: tierRepo,
		tx:       tx,
		outbox:   ob,
		now:      time.Now,
	}, nil
}

// newTicketCode mints the scannable admission code.
func newTicketCode() string {
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

func (s *service) IssueForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.Ticket, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if order == nil || len(order.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order has no items to issue")
	}

	var tickets []models.Ticket
	for _, item := range order.Items {
		for unit := 0; unit < item.Quantity; unit++ {
			tickets = append(tickets, models.Ticket{
				ID:          uuid.New(),
				OrderID:     order.ID,
				OrderItemID: item.ID,
				EventID:     order.EventID,
				TierID:      item.TierID,
				OwnerID:     order.UserID,
				TicketCode:  newTicketCode(),
				Status:      enums.TicketStatusValid,
			})
		}
	}
	if err := s.repo.WithTx(tx).CreateBatch(ctx, tickets); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue tickets")
	}
	return tickets, nil
}

func (s *service) CheckIn(ctx context.Context, code string) (*CheckInResult, error) {
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket code required")
	}

	var result *CheckInResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()

		ok, err := repo.MarkUsed(ctx, code, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check in ticket")
		}

		ticket, err := repo.GetByCode(ctx, code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
		}
		if ticket == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}

		if !ok {
			// the CAS lost: map the state it lost to
			switch ticket.Status {
			case enums.TicketStatusUsed:
				e := pkgerrors.New(pkgerrors.CodeDuplicateCheckIn, "ticket already checked in")
				if ticket.CheckedInAt != nil {
					e = e.WithDetails(map[string]any{"checked_in_at": ticket.CheckedInAt})
				}
				return e
			default:
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("ticket is %s and cannot be checked in", ticket.Status))
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventTicketCheckedIn,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticket.ID,
			Version:       1,
			Data: payloads.TicketCheckedInEvent{
				TicketID:    ticket.ID,
				EventID:     ticket.EventID,
				TicketCode:  ticket.TicketCode,
				CheckedInAt: now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		tierName := ""
		if tier, err := s.tierRepo.WithTx(tx).GetByID(ctx, ticket.TierID); err == nil && tier != nil {
			tierName = tier.Name
		}
		result = &CheckInResult{Ticket: *ticket, TierName: tierName, CheckedInAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (*models.Ticket, error) {
	if input.TicketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
	}
	if input.FromUser == uuid.Nil || input.ToUser == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "both transfer parties required")
	}
	if input.FromUser == input.ToUser {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer a ticket to its current holder")
	}

	var transferred *models.Ticket
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ticket, err := repo.GetByIDForUpdate(ctx, input.TicketID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
		}
		if ticket == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		if ticket.OwnerID != input.FromUser {
			return pkgerrors.New(pkgerrors.CodeForbidden, "ticket does not belong to user")
		}
		if ticket.Status != enums.TicketStatusValid {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("ticket is %s and cannot be transferred", ticket.Status))
		}

		tier, err := s.tierRepo.WithTx(tx).GetByID(ctx, ticket.TierID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
		}
		if tier != nil && !tier.Transferable {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "tier does not allow transfers")
		}

		now := s.now()
		ok, err := repo.UpdateOwner(ctx, ticket.ID, input.FromUser, input.ToUser, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transfer ticket")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "ticket changed concurrently")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventTicketTransferred,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticket.ID,
			Version:       1,
			Data: payloads.TicketTransferredEvent{
				TicketID:      ticket.ID,
				EventID:       ticket.EventID,
				FromUserID:    input.FromUser,
				ToUserID:      input.ToUser,
				TransferredAt: now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		ticket.OwnerID = input.ToUser
		ticket.TransferredFrom = &input.FromUser
		ticket.TransferredAt = &now
		transferred = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transferred, nil
}

func (s *service) SetAttendee(ctx context.Context, input AttendeeInput) (*models.Ticket, error) {
	if input.TicketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
	}

	ticket, err := s.repo.GetByID(ctx, input.TicketID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}
	if ticket == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}
	if input.OwnerID != uuid.Nil && ticket.OwnerID != input.OwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "ticket does not belong to user")
	}
	// attendee details freeze once the ticket is scanned
	if ticket.Status == enums.TicketStatusUsed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "attendee cannot change after check-in")
	}

	if err := s.repo.UpdateAttendee(ctx, ticket.ID, input.Name, input.Email); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update attendee")
	}
	ticket.AttendeeName = input.Name
	ticket.AttendeeEmail = input.Email
	return ticket, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket code required")
	}
	ticket, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}
	if ticket == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}
	return ticket, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Ticket, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	tickets, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tickets")
	}
	return tickets, nil
}

func (s *service) ListForUser(ctx context.Context, ownerID uuid.UUID) ([]models.Ticket, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	tickets, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tickets")
	}
	return tickets, nil
}

func (s *service) CancelForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	_, err := s.repo.WithTx(tx).UpdateStatusForOrder(ctx, orderID, enums.TicketStatusCancelled)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel tickets")
	}
	return nil
}

func (s *service) RefundForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	_, err := s.repo.WithTx(tx).UpdateStatusForOrder(ctx, orderID, enums.TicketStatusRefunded)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund tickets")
	}
	return nil
}
