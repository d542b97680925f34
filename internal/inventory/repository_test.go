package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
)

func setupInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	tiers := `
CREATE TABLE IF NOT EXISTS ticket_tiers (
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
);`
	require.NoError(t, db.Exec(tiers).Error)
	require.NoError(t, db.Exec("DELETE FROM ticket_tiers").Error)
	return db
}

func seedTier(t *testing.T, db *gorm.DB, quantity, sold, reserved int) *models.TicketTier {
	t.Helper()
	tier := &models.TicketTier{
		ID:           uuid.New(),
		EventID:      uuid.New(),
		Name:         "General Admission",
		Price:        decimal.NewFromInt(45),
		CurrencyCode: "USD",
		Quantity:     quantity,
		Sold:         sold,
		Reserved:     reserved,
		MinPurchase:  1,
		MaxPurchase:  10,
		IsActive:     true,
	}
	require.NoError(t, db.Create(tier).Error)
	return tier
}

func TestReserveGuardsAvailability(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	tier := seedTier(t, db, 10, 4, 3)

	ok, err := repo.Reserve(ctx, tier.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := repo.GetByID(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, reloaded.Reserved)
	assert.Equal(t, 0, reloaded.Available())

	// nothing left
	ok, err = repo.Reserve(ctx, tier.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err = repo.GetByID(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, reloaded.Reserved)
	assert.Equal(t, 4, reloaded.Sold)
}

func TestReserveNeverOversellsUnderRepeatedAttempts(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	tier := seedTier(t, db, 5, 0, 0)

	granted := 0
	for i := 0; i < 20; i++ {
		ok, err := repo.Reserve(ctx, tier.ID, 1)
		require.NoError(t, err)
		if ok {
			granted++
		}
	}
	assert.Equal(t, 5, granted)

	reloaded, err := repo.GetByID(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Reserved)
	assert.LessOrEqual(t, reloaded.Sold+reloaded.Reserved, reloaded.Quantity)
}

func TestReserveNeverOversellsUnderConcurrentAttempts(t *testing.T) {
	db := setupInventoryTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection serializes sqlite writes; the goroutines still
	// race to the guarded update
	sqlDB.SetMaxOpenConns(1)

	repo := NewRepository(db)
	ctx := context.Background()
	tier := seedTier(t, db, 5, 0, 0)

	const attempts = 20
	var wg sync.WaitGroup
	var granted int64
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Reserve(ctx, tier.ID, 1)
			if err != nil {
				errs <- err
				return
			}
			if ok {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(5), granted)

	reloaded, err := repo.GetByID(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Reserved)
	assert.LessOrEqual(t, reloaded.Sold+reloaded.Reserved, reloaded.Quantity)
}

func TestCommitReservedMovesSeatsToSold(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	tier := seedTier(t, db, 10, 0, 4)

	ok, err := repo.CommitReserved(ctx, tier.ID, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := repo.GetByID(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, reloaded.Sold)
	assert.Equal(t, 0, reloaded.Reserved)

	// cannot commit more than reserved
	ok, err = repo.CommitReserved(ctx, tier.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseReservedReturnsSeats(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	tier := seedTier(t, db, 10, 2, 3)

	ok, err := repo.ReleaseReserved(ctx, tier.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := repo.GetByID(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Reserved)
	assert.Equal(t, 8, reloaded.Available())

	ok, err = repo.ReleaseReserved(ctx, tier.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseSoldRestocksSeats(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	tier := seedTier(t, db, 10, 6, 0)

	ok, err := repo.ReleaseSold(ctx, tier.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := repo.GetByID(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, reloaded.Sold)
	assert.Equal(t, 6, reloaded.Available())
}

func TestListByEventOrdersByPosition(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	eventID := uuid.New()
	for i, name := range []string{"VIP", "General", "Balcony"} {
		tier := &models.TicketTier{
			ID:       uuid.New(),
			EventID:  eventID,
			Name:     name,
			Price:    decimal.NewFromInt(int64(20 * (i + 1))),
			Quantity: 10,
			Position: 2 - i,
			IsActive: true,
		}
		require.NoError(t, db.Create(tier).Error)
	}

	tiers, err := repo.ListByEvent(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, "Balcony", tiers[0].Name)
	assert.Equal(t, "VIP", tiers[2].Name)
}
