package waitlist

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ticketloom/ticketloom-backend/internal/holds"
	"github.com/ticketloom/ticketloom-backend/internal/inventory"
	"github.com/ticketloom/ticketloom-backend/pkg/config"
	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox"
)

var waitlistTestSchema = []string{
	`CREATE TABLE IF NOT EXISTS ticket_tiers (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  currency_code TEXT NOT NULL DEFAULT 'USD',
  quantity INTEGER NOT NULL,
  sold INTEGER NOT NULL DEFAULT 0,
  reserved INTEGER NOT NULL DEFAULT 0,
  min_purchase INTEGER NOT NULL DEFAULT 1,
  max_purchase INTEGER NOT NULL DEFAULT 10,
  sales_start_at DATETIME,
  sales_end_at DATETIME,
  is_active INTEGER NOT NULL DEFAULT 1,
  transferable INTEGER NOT NULL DEFAULT 1,
  position INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS holds (
  id TEXT PRIMARY KEY,
  tier_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  order_id TEXT,
  quantity INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  idempotency_key TEXT UNIQUE,
  expires_at DATETIME NOT NULL,
  extensions INTEGER NOT NULL DEFAULT 0,
  released_at DATETIME,
  committed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS waitlist_entries (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  tier_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  status TEXT NOT NULL DEFAULT 'waiting',
  position INTEGER NOT NULL,
  notified_at DATETIME,
  notification_expires_at DATETIME,
  fulfilled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (event_id, user_id, tier_id)
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type waitlistFixture struct {
	db    *gorm.DB
	svc   Service
	holds holds.Service
	tier  *models.TicketTier
	event uuid.UUID
}

func newWaitlistFixture(t *testing.T, tierQuantity int) *waitlistFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:waitlistsvc?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	for _, ddl := range waitlistTestSchema {
		require.NoError(t, db.Exec(ddl).Error)
	}
	for _, table := range []string{"ticket_tiers", "holds", "waitlist_entries", "outbox_events"} {
		require.NoError(t, db.Exec("DELETE FROM "+table).Error)
	}

	logg := logger.New(logger.Options{ServiceName: "waitlist-test", Output: io.Discard})
	runner := gormTxRunner{db: db}
	tierRepo := inventory.NewRepository(db)
	outboxSvc := outbox.NewService(outbox.NewRepository(db), logg)

	wlSvc, err := NewService(NewRepository(db), tierRepo, runner, outboxSvc, config.WaitlistConfig{
		NotificationWindow: 24 * time.Hour,
		MaxBatch:           50,
	})
	require.NoError(t, err)

	holdSvc, err := holds.NewService(holds.NewRepository(db), tierRepo, runner, outboxSvc, config.CheckoutConfig{
		HoldTTL:           10 * time.Minute,
		MaxHoldExtensions: 1,
		ServiceFeePercent: 5,
	}, nil)
	require.NoError(t, err)
	holdSvc.SetFreedNotifier(wlSvc)
	holdSvc.SetOfferResolver(wlSvc)

	fx := &waitlistFixture{
		db:    db,
		svc:   wlSvc,
		holds: holdSvc,
		event: uuid.New(),
	}
	fx.tier = &models.TicketTier{
		ID:           uuid.New(),
		EventID:      fx.event,
		Name:         "General Admission",
		Price:        decimal.NewFromInt(50),
		Quantity:     tierQuantity,
		MinPurchase:  1,
		MaxPurchase:  10,
		IsActive:     true,
		Transferable: true,
	}
	require.NoError(t, db.Create(fx.tier).Error)
	return fx
}

func (fx *waitlistFixture) join(t *testing.T, userID uuid.UUID, quantity int) *models.WaitlistEntry {
	t.Helper()
	entry, err := fx.svc.Join(context.Background(), JoinInput{
		EventID:  fx.event,
		TierID:   fx.tier.ID,
		UserID:   userID,
		Quantity: quantity,
	})
	require.NoError(t, err)
	return entry
}

func (fx *waitlistFixture) reload(t *testing.T, id uuid.UUID) *models.WaitlistEntry {
	t.Helper()
	var entry models.WaitlistEntry
	require.NoError(t, fx.db.First(&entry, "id = ?", id).Error)
	return &entry
}

func (fx *waitlistFixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, fx.db.Table("outbox_events").Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestJoinAssignsPositionsInOrder(t *testing.T) {
	fx := newWaitlistFixture(t, 2)

	first := fx.join(t, uuid.New(), 1)
	second := fx.join(t, uuid.New(), 1)
	third := fx.join(t, uuid.New(), 2)

	assert.Equal(t, int64(1), first.Position)
	assert.Equal(t, int64(2), second.Position)
	assert.Equal(t, int64(3), third.Position)
	assert.Equal(t, enums.WaitlistStatusWaiting, first.Status)
}

func TestJoinRejectsDuplicateMember(t *testing.T) {
	fx := newWaitlistFixture(t, 2)
	user := uuid.New()

	fx.join(t, user, 1)
	_, err := fx.svc.Join(context.Background(), JoinInput{
		EventID:  fx.event,
		TierID:   fx.tier.ID,
		UserID:   user,
		Quantity: 1,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestJoinRejectsMismatchedEvent(t *testing.T) {
	fx := newWaitlistFixture(t, 2)

	_, err := fx.svc.Join(context.Background(), JoinInput{
		EventID:  uuid.New(),
		TierID:   fx.tier.ID,
		UserID:   uuid.New(),
		Quantity: 1,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestLeaveRequiresOwner(t *testing.T) {
	fx := newWaitlistFixture(t, 2)
	owner := uuid.New()
	entry := fx.join(t, owner, 1)

	err := fx.svc.Leave(context.Background(), entry.ID, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, fx.svc.Leave(context.Background(), entry.ID, owner))
	var count int64
	require.NoError(t, fx.db.Table("waitlist_entries").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestReleasedHoldOffersSeatsInQueueOrder(t *testing.T) {
	fx := newWaitlistFixture(t, 2)
	buyer := uuid.New()

	hold, err := fx.holds.CreateHold(context.Background(), holds.CreateHoldInput{
		UserID:   buyer,
		TierID:   fx.tier.ID,
		Quantity: 2,
	})
	require.NoError(t, err)

	alice := fx.join(t, uuid.New(), 1)
	bob := fx.join(t, uuid.New(), 1)
	carol := fx.join(t, uuid.New(), 1)

	require.NoError(t, fx.holds.ReleaseHold(context.Background(), hold.ID, buyer))

	// two freed seats reach the first two entries, the third keeps waiting
	assert.Equal(t, enums.WaitlistStatusNotified, fx.reload(t, alice.ID).Status)
	assert.Equal(t, enums.WaitlistStatusNotified, fx.reload(t, bob.ID).Status)
	assert.Equal(t, enums.WaitlistStatusWaiting, fx.reload(t, carol.ID).Status)

	notified := fx.reload(t, alice.ID)
	require.NotNil(t, notified.NotifiedAt)
	require.NotNil(t, notified.NotificationExpiresAt)
	assert.Equal(t, int64(2), fx.countEvents(t, enums.EventWaitlistNotified))
}

func TestExpiredOfferMovesDownTheQueue(t *testing.T) {
	fx := newWaitlistFixture(t, 1)
	buyer := uuid.New()

	hold, err := fx.holds.CreateHold(context.Background(), holds.CreateHoldInput{
		UserID:   buyer,
		TierID:   fx.tier.ID,
		Quantity: 1,
	})
	require.NoError(t, err)

	alice := fx.join(t, uuid.New(), 1)
	bob := fx.join(t, uuid.New(), 1)

	require.NoError(t, fx.holds.ReleaseHold(context.Background(), hold.ID, buyer))
	require.Equal(t, enums.WaitlistStatusNotified, fx.reload(t, alice.ID).Status)
	require.Equal(t, enums.WaitlistStatusWaiting, fx.reload(t, bob.ID).Status)

	fx.svc.(*service).now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	expired, err := fx.svc.ExpireOffers(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	assert.Equal(t, enums.WaitlistStatusExpired, fx.reload(t, alice.ID).Status)
	assert.Equal(t, enums.WaitlistStatusNotified, fx.reload(t, bob.ID).Status)
	assert.Equal(t, int64(1), fx.countEvents(t, enums.EventWaitlistExpired))
	assert.Equal(t, int64(2), fx.countEvents(t, enums.EventWaitlistNotified))
}

func TestNotifiedBuyerHoldFulfillsOffer(t *testing.T) {
	fx := newWaitlistFixture(t, 1)
	buyer := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	hold, err := fx.holds.CreateHold(context.Background(), holds.CreateHoldInput{
		UserID:   buyer,
		TierID:   fx.tier.ID,
		Quantity: 1,
	})
	require.NoError(t, err)

	aliceEntry := fx.join(t, alice, 1)
	bobEntry := fx.join(t, bob, 1)

	require.NoError(t, fx.holds.ReleaseHold(context.Background(), hold.ID, buyer))
	require.Equal(t, enums.WaitlistStatusNotified, fx.reload(t, aliceEntry.ID).Status)

	// alice converts the offer into a hold; the entry closes in the same tx
	_, err = fx.holds.CreateHold(context.Background(), holds.CreateHoldInput{
		UserID:   alice,
		TierID:   fx.tier.ID,
		Quantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.WaitlistStatusFulfilled, fx.reload(t, aliceEntry.ID).Status)

	// the sweep has nothing to expire and bob gets no phantom offer
	fx.svc.(*service).now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	expired, err := fx.svc.ExpireOffers(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
	assert.Equal(t, enums.WaitlistStatusFulfilled, fx.reload(t, aliceEntry.ID).Status)
	assert.Equal(t, enums.WaitlistStatusWaiting, fx.reload(t, bobEntry.ID).Status)
}

func TestFulfillOfferIgnoresBuyersWithoutOffer(t *testing.T) {
	fx := newWaitlistFixture(t, 2)
	alice := uuid.New()

	entry := fx.join(t, alice, 1)
	require.Equal(t, enums.WaitlistStatusWaiting, entry.Status)

	// a plain purchase with no open offer leaves the queue untouched
	_, err := fx.holds.CreateHold(context.Background(), holds.CreateHoldInput{
		UserID:   alice,
		TierID:   fx.tier.ID,
		Quantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.WaitlistStatusWaiting, fx.reload(t, entry.ID).Status)

	require.NoError(t, fx.svc.FulfillOffer(context.Background(), fx.db, fx.tier.ID, uuid.New()))
}

func TestOfferSkipsEntriesLargerThanFreedCapacity(t *testing.T) {
	fx := newWaitlistFixture(t, 1)
	buyer := uuid.New()

	hold, err := fx.holds.CreateHold(context.Background(), holds.CreateHoldInput{
		UserID:   buyer,
		TierID:   fx.tier.ID,
		Quantity: 1,
	})
	require.NoError(t, err)

	big := fx.join(t, uuid.New(), 3)
	small := fx.join(t, uuid.New(), 1)

	require.NoError(t, fx.holds.ReleaseHold(context.Background(), hold.ID, buyer))

	// one freed seat cannot cover the three-seat entry, so the offer passes it
	assert.Equal(t, enums.WaitlistStatusWaiting, fx.reload(t, big.ID).Status)
	assert.Equal(t, enums.WaitlistStatusNotified, fx.reload(t, small.ID).Status)
	assert.Equal(t, int64(1), fx.countEvents(t, enums.EventWaitlistNotified))
}
