package tickets

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ticketloom/ticketloom-backend/internal/inventory"
	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeTicketRepo struct {
	tickets map[uuid.UUID]*models.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[uuid.UUID]*models.Ticket)}
}

func (f *fakeTicketRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeTicketRepo) CreateBatch(_ context.Context, tickets []models.Ticket) error {
	for i := range tickets {
		copied := tickets[i]
		f.tickets[copied.ID] = &copied
	}
	return nil
}

func (f *fakeTicketRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Ticket, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, nil
	}
	copied := *ticket
	return &copied, nil
}

func (f *fakeTicketRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeTicketRepo) GetByCode(_ context.Context, code string) (*models.Ticket, error) {
	for _, ticket := range f.tickets {
		if ticket.TicketCode == code {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeTicketRepo) MarkUsed(_ context.Context, code string, at time.Time) (bool, error) {
	for _, ticket := range f.tickets {
		if ticket.TicketCode == code && ticket.Status == enums.TicketStatusValid {
			ticket.Status = enums.TicketStatusUsed
			ticket.CheckedInAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTicketRepo) UpdateOwner(_ context.Context, id uuid.UUID, fromUser, toUser uuid.UUID, at time.Time) (bool, error) {
	ticket := f.tickets[id]
	if ticket == nil || ticket.OwnerID != fromUser || ticket.Status != enums.TicketStatusValid {
		return false, nil
	}
	ticket.OwnerID = toUser
	ticket.TransferredFrom = &fromUser
	ticket.TransferredAt = &at
	return true, nil
}

func (f *fakeTicketRepo) UpdateAttendee(_ context.Context, id uuid.UUID, name, email *string) error {
	if ticket := f.tickets[id]; ticket != nil {
		ticket.AttendeeName = name
		ticket.AttendeeEmail = email
	}
	return nil
}

func (f *fakeTicketRepo) UpdateStatusForOrder(_ context.Context, orderID uuid.UUID, to enums.TicketStatus) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, ticket := range f.tickets {
		if ticket.OrderID == orderID && ticket.Status == enums.TicketStatusValid {
			ticket.Status = to
			ids = append(ids, ticket.ID)
		}
	}
	return ids, nil
}

func (f *fakeTicketRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, ticket := range f.tickets {
		if ticket.OrderID == orderID {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (f *fakeTicketRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, ticket := range f.tickets {
		if ticket.OwnerID == ownerID {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (f *fakeTicketRepo) CountByOrder(_ context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	for _, ticket := range f.tickets {
		if ticket.OrderID == orderID {
			count++
		}
	}
	return count, nil
}

type fakeTierRepo struct {
	tiers map[uuid.UUID]*models.TicketTier
}

func newFakeTierRepo() *fakeTierRepo {
	return &fakeTierRepo{tiers: make(map[uuid.UUID]*models.TicketTier)}
}

func (f *fakeTierRepo) WithTx(tx *gorm.DB) inventory.Repository { return f }
func (f *fakeTierRepo) Create(_ context.Context, t *models.TicketTier) error {
	f.tiers[t.ID] = t
	return nil
}
func (f *fakeTierRepo) Update(_ context.Context, t *models.TicketTier) error {
	f.tiers[t.ID] = t
	return nil
}
func (f *fakeTierRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.tiers, id)
	return nil
}
func (f *fakeTierRepo) GetByID(_ context.Context, id uuid.UUID) (*models.TicketTier, error) {
	tier, ok := f.tiers[id]
	if !ok {
		return nil, nil
	}
	copied := *tier
	return &copied, nil
}
func (f *fakeTierRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.TicketTier, error) {
	return f.GetByID(ctx, id)
}
func (f *fakeTierRepo) ListByEvent(_ context.Context, _ uuid.UUID) ([]models.TicketTier, error) {
	return nil, nil
}
func (f *fakeTierRepo) Reserve(_ context.Context, _ uuid.UUID, _ int) (bool, error) {
	return true, nil
}
func (f *fakeTierRepo) CommitReserved(_ context.Context, _ uuid.UUID, _ int) (bool, error) {
	return true, nil
}
func (f *fakeTierRepo) ReleaseReserved(_ context.Context, _ uuid.UUID, _ int) (bool, error) {
	return true, nil
}
func (f *fakeTierRepo) ReleaseSold(_ context.Context, _ uuid.UUID, _ int) (bool, error) {
	return true, nil
}

type ticketsFixture struct {
	svc    Service
	repo   *fakeTicketRepo
	tiers  *fakeTierRepo
	outbox *fakeOutbox
	now    time.Time
}

func newTicketsFixture(t *testing.T) *ticketsFixture {
	t.Helper()

	repo := newFakeTicketRepo()
	tiers := newFakeTierRepo()
	ob := &fakeOutbox{}

	svc, err := NewService(repo, tiers, fakeTx{}, ob)
	require.NoError(t, err)

	now := time.Date(2026, 7, 4, 19, 30, 0, 0, time.UTC)
	svc.(*service).now = func() time.Time { return now }

	return &ticketsFixture{svc: svc, repo: repo, tiers: tiers, outbox: ob, now: now}
}

func (fx *ticketsFixture) seedTicket(status enums.TicketStatus) *models.Ticket {
	ticket := &models.Ticket{
		ID:         uuid.New(),
		OrderID:    uuid.New(),
		EventID:    uuid.New(),
		TierID:     uuid.New(),
		OwnerID:    uuid.New(),
		TicketCode: newTicketCode(),
		Status:     status,
	}
	// store a copy so repo mutations never reach the caller's expected values
	copied := *ticket
	fx.repo.tickets[ticket.ID] = &copied
	fx.tiers.tiers[ticket.TierID] = &models.TicketTier{
		ID: ticket.TierID, Name: "VIP", Transferable: true, IsActive: true,
	}
	return ticket
}

func TestIssueForOrderCreatesOneTicketPerUnit(t *testing.T) {
	fx := newTicketsFixture(t)

	order := &models.Order{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		EventID: uuid.New(),
		Items: []models.OrderItem{
			{ID: uuid.New(), TierID: uuid.New(), Quantity: 3},
			{ID: uuid.New(), TierID: uuid.New(), Quantity: 1},
		},
	}

	tickets, err := fx.svc.IssueForOrder(context.Background(), &gorm.DB{}, order)
	require.NoError(t, err)
	require.Len(t, tickets, 4)

	codes := make(map[string]bool)
	for _, ticket := range tickets {
		assert.Equal(t, enums.TicketStatusValid, ticket.Status)
		assert.Equal(t, order.UserID, ticket.OwnerID)
		assert.False(t, codes[ticket.TicketCode], "ticket codes must be unique")
		codes[ticket.TicketCode] = true
	}
}

func TestCheckInIsOneWay(t *testing.T) {
	fx := newTicketsFixture(t)
	ticket := fx.seedTicket(enums.TicketStatusValid)

	result, err := fx.svc.CheckIn(context.Background(), ticket.TicketCode)
	require.NoError(t, err)
	assert.Equal(t, fx.now, result.CheckedInAt)
	assert.Equal(t, "VIP", result.TierName)
	require.Len(t, fx.outbox.events, 1)
	assert.Equal(t, enums.EventTicketCheckedIn, fx.outbox.events[0].EventType)

	// a second scan reports the original check-in, not a new one
	_, err = fx.svc.CheckIn(context.Background(), ticket.TicketCode)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDuplicateCheckIn))
	assert.Equal(t, fx.now, *fx.repo.tickets[ticket.ID].CheckedInAt)
	assert.Len(t, fx.outbox.events, 1)
}

func TestCheckInRejectsCancelledTicket(t *testing.T) {
	fx := newTicketsFixture(t)
	ticket := fx.seedTicket(enums.TicketStatusCancelled)

	_, err := fx.svc.CheckIn(context.Background(), ticket.TicketCode)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestCheckInUnknownCode(t *testing.T) {
	fx := newTicketsFixture(t)

	_, err := fx.svc.CheckIn(context.Background(), "TKT-NOPE")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestTransferChangesHolder(t *testing.T) {
	fx := newTicketsFixture(t)
	ticket := fx.seedTicket(enums.TicketStatusValid)
	newOwner := uuid.New()

	transferred, err := fx.svc.Transfer(context.Background(), TransferInput{
		TicketID: ticket.ID,
		FromUser: ticket.OwnerID,
		ToUser:   newOwner,
	})
	require.NoError(t, err)
	assert.Equal(t, newOwner, transferred.OwnerID)
	assert.Equal(t, ticket.OwnerID, *transferred.TransferredFrom)
	assert.Equal(t, newOwner, fx.repo.tickets[ticket.ID].OwnerID)
	assert.Equal(t, enums.TicketStatusValid, transferred.Status)
	require.Len(t, fx.outbox.events, 1)
	assert.Equal(t, enums.EventTicketTransferred, fx.outbox.events[0].EventType)
}

func TestTransferBlockedByTierPolicy(t *testing.T) {
	fx := newTicketsFixture(t)
	ticket := fx.seedTicket(enums.TicketStatusValid)
	fx.tiers.tiers[ticket.TierID].Transferable = false

	_, err := fx.svc.Transfer(context.Background(), TransferInput{
		TicketID: ticket.ID,
		FromUser: ticket.OwnerID,
		ToUser:   uuid.New(),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestTransferRequiresCurrentHolder(t *testing.T) {
	fx := newTicketsFixture(t)
	ticket := fx.seedTicket(enums.TicketStatusValid)

	_, err := fx.svc.Transfer(context.Background(), TransferInput{
		TicketID: ticket.ID,
		FromUser: uuid.New(),
		ToUser:   uuid.New(),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestTransferRejectsUsedTicket(t *testing.T) {
	fx := newTicketsFixture(t)
	ticket := fx.seedTicket(enums.TicketStatusUsed)

	_, err := fx.svc.Transfer(context.Background(), TransferInput{
		TicketID: ticket.ID,
		FromUser: ticket.OwnerID,
		ToUser:   uuid.New(),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestSetAttendeeFreezesAfterCheckIn(t *testing.T) {
	fx := newTicketsFixture(t)
	ticket := fx.seedTicket(enums.TicketStatusValid)
	name := "Ada Lovelace"
	email := "ada@example.com"

	updated, err := fx.svc.SetAttendee(context.Background(), AttendeeInput{
		TicketID: ticket.ID,
		OwnerID:  ticket.OwnerID,
		Name:     &name,
		Email:    &email,
	})
	require.NoError(t, err)
	assert.Equal(t, &name, updated.AttendeeName)

	fx.repo.tickets[ticket.ID].Status = enums.TicketStatusUsed

	_, err = fx.svc.SetAttendee(context.Background(), AttendeeInput{
		TicketID: ticket.ID,
		OwnerID:  ticket.OwnerID,
		Name:     &name,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestRefundForOrderMovesOnlyValidTickets(t *testing.T) {
	fx := newTicketsFixture(t)
	orderID := uuid.New()

	valid := fx.seedTicket(enums.TicketStatusValid)
	fx.repo.tickets[valid.ID].OrderID = orderID
	used := fx.seedTicket(enums.TicketStatusUsed)
	fx.repo.tickets[used.ID].OrderID = orderID

	require.NoError(t, fx.svc.RefundForOrder(context.Background(), &gorm.DB{}, orderID))
	assert.Equal(t, enums.TicketStatusRefunded, fx.repo.tickets[valid.ID].Status)
	assert.Equal(t, enums.TicketStatusUsed, fx.repo.tickets[used.ID].Status)
}
