//go:build integration

package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/events"
	"github.com/bartek5186/stockhub/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	c, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("stockhub"),
		postgres.WithUsername("stockhub"),
		postgres.WithPassword("stockhub"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(c) })

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	h, err := db.Open(db.Options{Driver: "postgres", DSN: dsn, MaxOpenConns: 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	require.NoError(t, h.Migrate())
	// second run must be a no-op for the CHECK constraints
	require.NoError(t, h.Migrate())
	return h.DB
}

func TestPostgres_ConcurrentReservationsNeverOversell(t *testing.T) {
	gdb := setupPostgres(t)
	svc := New(gdb, events.Nop{}, zerolog.Nop())
	item := testutil.Item(t, gdb, db.InventoryItem{SKU: "MAT-PG-00001"})
	wh := testutil.Warehouse(t, gdb, "PG")
	ctx := auth.WithActor(context.Background(), "alice")

	_, err := svc.ReceiveStock(ctx, ReceiveInput{ItemID: item.ID, WarehouseID: wh.ID, Quantity: 10})
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ReserveStock(ctx, ReserveInput{ItemID: item.ID, WarehouseID: wh.ID, Quantity: 1})
			if err != nil {
				t.Error(err)
				return
			}
			if res.Success {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	lvl, err := svc.GetStockLevel(ctx, item.ID, wh.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, lvl.QuantityReserved)
	assert.Zero(t, lvl.QuantityAvailable)

	v, err := svc.CheckInvariants(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestPostgres_ConcurrentWritesKeepItemSummary(t *testing.T) {
	gdb := setupPostgres(t)
	svc := New(gdb, events.Nop{}, zerolog.Nop())
	item := testutil.Item(t, gdb, db.InventoryItem{SKU: "MAT-PG-00003"})
	a := testutil.Warehouse(t, gdb, "PGA")
	b := testutil.Warehouse(t, gdb, "PGB")
	ctx := auth.WithActor(context.Background(), "alice")

	_, err := svc.ReceiveStock(ctx, ReceiveInput{ItemID: item.ID, WarehouseID: a.ID, Quantity: 100})
	require.NoError(t, err)

	cost := decimal.NewFromInt(3)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := svc.ReceiveStock(ctx, ReceiveInput{ItemID: item.ID, WarehouseID: a.ID, Quantity: 1})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			// cost receipts update the item row as well
			_, err := svc.ReceiveStock(ctx, ReceiveInput{ItemID: item.ID, WarehouseID: b.ID, Quantity: 2, UnitCost: &cost})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			res, err := svc.ReserveStock(ctx, ReserveInput{ItemID: item.ID, WarehouseID: a.ID, Quantity: 1})
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	var got db.InventoryItem
	require.NoError(t, gdb.Where("id = ?", item.ID).Take(&got).Error)
	assert.Equal(t, 160.0, got.TotalOnHand)
	assert.Equal(t, 20.0, got.TotalReserved)
	assert.Equal(t, 140.0, got.TotalAvailable)

	v, err := svc.CheckInvariants(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestPostgres_CheckConstraintsGuardLevels(t *testing.T) {
	gdb := setupPostgres(t)
	svc := New(gdb, events.Nop{}, zerolog.Nop())
	item := testutil.Item(t, gdb, db.InventoryItem{SKU: "MAT-PG-00002"})
	wh := testutil.Warehouse(t, gdb, "PG")

	lvl, err := svc.ReceiveStock(context.Background(), ReceiveInput{ItemID: item.ID, WarehouseID: wh.ID, Quantity: 2})
	require.NoError(t, err)

	err = gdb.Model(&db.StockLevel{}).Where("id = ?", lvl.ID).
		Update("quantity_on_hand", -1).Error
	assert.Error(t, err, "negative on hand must be rejected by the database")

	err = gdb.Model(&db.StockLevel{}).Where("id = ?", lvl.ID).
		Update("quantity_available", 5).Error
	assert.Error(t, err, "available must equal on hand minus reserved")
}
