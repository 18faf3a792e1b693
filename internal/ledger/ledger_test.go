package ledger

import (
	"context"
	"errors"
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
	"gorm.io/gorm"
)

type recorder struct {
	mu   sync.Mutex
	evts []events.StockEvent
	err  error
}

func (r *recorder) Publish(_ context.Context, evts ...events.StockEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evts = append(r.evts, evts...)
	return r.err
}

func (r *recorder) Close() error { return nil }

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.evts {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	gdb  *gorm.DB
	svc  *Service
	pub  *recorder
	item *db.InventoryItem
	a, b *db.Warehouse
	ctx  context.Context
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gdb := testutil.DB(t)
	pub := &recorder{}
	return &fixture{
		gdb:  gdb,
		svc:  New(gdb, pub, zerolog.Nop()),
		pub:  pub,
		item: testutil.Item(t, gdb, db.InventoryItem{SKU: "MAT-OAK-00001", Name: "Oak board"}),
		a:    testutil.Warehouse(t, gdb, "A"),
		b:    testutil.Warehouse(t, gdb, "B"),
		ctx:  auth.WithActor(context.Background(), "alice"),
	}
}

func (f *fixture) receive(t *testing.T, wh *db.Warehouse, qty float64) *db.StockLevel {
	t.Helper()
	lvl, err := f.svc.ReceiveStock(f.ctx, ReceiveInput{ItemID: f.item.ID, WarehouseID: wh.ID, Quantity: qty})
	require.NoError(t, err)
	return lvl
}

func (f *fixture) itemRow(t *testing.T) db.InventoryItem {
	t.Helper()
	var it db.InventoryItem
	require.NoError(t, f.gdb.Where("id = ?", f.item.ID).Take(&it).Error)
	return it
}

func (f *fixture) movements(t *testing.T) []db.StockMovement {
	t.Helper()
	var ms []db.StockMovement
	require.NoError(t, f.gdb.Where("inventory_item_id = ?", f.item.ID).Order("created_at, on_hand_before").Find(&ms).Error)
	return ms
}

func assertConsistent(t *testing.T, f *fixture) {
	t.Helper()
	v, err := f.svc.CheckInvariants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestReceiveStock_CreatesLevelAndMovement(t *testing.T) {
	f := setup(t)

	lvl := f.receive(t, f.a, 10)
	assert.Equal(t, 10.0, lvl.QuantityOnHand)
	assert.Equal(t, 0.0, lvl.QuantityReserved)
	assert.Equal(t, 10.0, lvl.QuantityAvailable)
	assert.Equal(t, "MAT-OAK-00001", lvl.SKU)
	assert.Equal(t, "Warehouse A", lvl.WarehouseName)

	lvl = f.receive(t, f.a, 5)
	assert.Equal(t, 15.0, lvl.QuantityOnHand)

	ms := f.movements(t)
	require.Len(t, ms, 2)
	assert.Equal(t, db.MovementReceipt, ms[1].Type)
	assert.Equal(t, 5.0, ms[1].Quantity)
	assert.Equal(t, 10.0, ms[1].OnHandBefore)
	assert.Equal(t, 15.0, ms[1].OnHandAfter)
	assert.Equal(t, "alice", ms[1].Actor)

	it := f.itemRow(t)
	assert.Equal(t, 15.0, it.TotalOnHand)
	assert.Equal(t, 15.0, it.TotalAvailable)
	assert.Equal(t, []string{events.KindStockChanged, events.KindStockChanged}, f.pub.kinds())
	assertConsistent(t, f)
}

func TestReceiveStock_Validation(t *testing.T) {
	f := setup(t)

	_, err := f.svc.ReceiveStock(f.ctx, ReceiveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.ReceiveStock(f.ctx, ReceiveInput{ItemID: "missing", WarehouseID: f.a.ID, Quantity: 1})
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = f.svc.ReceiveStock(f.ctx, ReceiveInput{ItemID: f.item.ID, WarehouseID: "missing", Quantity: 1})
	assert.ErrorIs(t, err, ErrWarehouseNotFound)

	require.NoError(t, f.gdb.Model(&db.Warehouse{}).Where("id = ?", f.b.ID).Update("is_active", false).Error)
	_, err = f.svc.ReceiveStock(f.ctx, ReceiveInput{ItemID: f.item.ID, WarehouseID: f.b.ID, Quantity: 1})
	assert.ErrorIs(t, err, ErrWarehouseInactive)

	assert.Empty(t, f.movements(t))
}

func TestReserveStock(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 10)

	res, err := f.svc.ReserveStock(f.ctx, ReserveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 4,
		Reference: Reference{Type: "sales_order", ID: "SO-1"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.MovementID)
	assert.Equal(t, 6.0, res.Available)
	assert.Equal(t, 4.0, res.Level.QuantityReserved)

	res, err = f.svc.ReserveStock(f.ctx, ReserveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 8})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 2.0, res.Shortfall)
	assert.Equal(t, 6.0, res.Available)

	ms := f.movements(t)
	require.Len(t, ms, 2)
	assert.Equal(t, db.MovementReservation, ms[1].Type)
	assert.Equal(t, -4.0, ms[1].Quantity)
	assert.Equal(t, "SO-1", ms[1].ReferenceID)
	assert.Equal(t, 4.0, ms[1].ReservedAfter)
	assertConsistent(t, f)
}

func TestReserveStock_NoLevelIsShortfall(t *testing.T) {
	f := setup(t)

	res, err := f.svc.ReserveStock(f.ctx, ReserveInput{ItemID: f.item.ID, WarehouseID: f.b.ID, Quantity: 3})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 3.0, res.Shortfall)
	assert.Equal(t, 0.0, res.Available)
}

// The in-memory database has a single connection, so these calls run one
// transaction at a time. Contended reservations are covered by the postgres
// integration test.
func TestReserveStock_ManyCallersNeverOversell(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ReserveStock(f.ctx, ReserveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 1})
			if assert.NoError(t, err) && res.Success {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	lvl, err := f.svc.GetStockLevel(f.ctx, f.item.ID, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, lvl.QuantityReserved)
	assert.Equal(t, 0.0, lvl.QuantityAvailable)
	assertConsistent(t, f)
}

func TestReleaseStock(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 10)
	_, err := f.svc.ReserveStock(f.ctx, ReserveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 5})
	require.NoError(t, err)

	lvl, err := f.svc.ReleaseStock(f.ctx, MoveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 3.0, lvl.QuantityReserved)
	assert.Equal(t, 7.0, lvl.QuantityAvailable)

	_, err = f.svc.ReleaseStock(f.ctx, MoveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 4})
	var se *ShortfallError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, ErrInsufficientReserved)
	assert.Equal(t, 1.0, se.Shortfall())

	ms := f.movements(t)
	assert.Equal(t, db.MovementRelease, ms[len(ms)-1].Type)
	assert.Equal(t, 2.0, ms[len(ms)-1].Quantity)
	assertConsistent(t, f)
}

func TestConsumeStock(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 10)
	_, err := f.svc.ReserveStock(f.ctx, ReserveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 6})
	require.NoError(t, err)

	// available is 4
	_, err = f.svc.ConsumeStock(f.ctx, ConsumeInput{MoveInput: MoveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 5}})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	lvl, err := f.svc.ConsumeStock(f.ctx, ConsumeInput{MoveInput: MoveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, 7.0, lvl.QuantityOnHand)
	assert.Equal(t, 6.0, lvl.QuantityReserved)
	assert.Equal(t, 1.0, lvl.QuantityAvailable)

	lvl, err = f.svc.ConsumeStock(f.ctx, ConsumeInput{
		MoveInput:    MoveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 6},
		FromReserved: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, lvl.QuantityOnHand)
	assert.Equal(t, 0.0, lvl.QuantityReserved)
	assert.Equal(t, 1.0, lvl.QuantityAvailable)

	_, err = f.svc.ConsumeStock(f.ctx, ConsumeInput{
		MoveInput:    MoveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 1},
		FromReserved: true,
	})
	assert.ErrorIs(t, err, ErrInsufficientReserved)

	_, err = f.svc.ConsumeStock(f.ctx, ConsumeInput{MoveInput: MoveInput{ItemID: f.item.ID, WarehouseID: f.b.ID, Quantity: 1}})
	assert.ErrorIs(t, err, ErrStockLevelNotFound)

	ms := f.movements(t)
	last := ms[len(ms)-1]
	assert.Equal(t, db.MovementConsumption, last.Type)
	assert.Equal(t, -6.0, last.Quantity)
	assertConsistent(t, f)
}

func TestTransferStock(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 10)

	res, err := f.svc.TransferStock(f.ctx, TransferInput{ItemID: f.item.ID, FromWarehouseID: f.a.ID, ToWarehouseID: f.b.ID, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 6.0, res.From.QuantityOnHand)
	assert.Equal(t, 4.0, res.To.QuantityOnHand)
	assert.Equal(t, "Warehouse B", res.To.WarehouseName)

	var ms []db.StockMovement
	require.NoError(t, f.gdb.Where("type = ?", db.MovementTransfer).Order("quantity").Find(&ms).Error)
	require.Len(t, ms, 2)
	assert.Equal(t, -4.0, ms[0].Quantity)
	assert.Equal(t, f.a.ID, ms[0].WarehouseID)
	assert.Equal(t, f.b.ID, ms[0].CounterpartWarehouseID)
	assert.Equal(t, 4.0, ms[1].Quantity)
	assert.Equal(t, f.b.ID, ms[1].WarehouseID)
	assert.Equal(t, f.a.ID, ms[1].CounterpartWarehouseID)

	it := f.itemRow(t)
	assert.Equal(t, 10.0, it.TotalOnHand)
	assertConsistent(t, f)
}

func TestTransferStock_Rejections(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 5)
	_, err := f.svc.ReserveStock(f.ctx, ReserveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 3})
	require.NoError(t, err)

	_, err = f.svc.TransferStock(f.ctx, TransferInput{ItemID: f.item.ID, FromWarehouseID: f.a.ID, ToWarehouseID: f.a.ID, Quantity: 1})
	assert.ErrorIs(t, err, ErrSameWarehouse)

	_, err = f.svc.TransferStock(f.ctx, TransferInput{ItemID: f.item.ID, FromWarehouseID: f.a.ID, ToWarehouseID: f.b.ID, Quantity: 3})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// nothing from the failed transfer may remain
	_, err = f.svc.GetStockLevel(f.ctx, f.item.ID, f.b.ID)
	assert.ErrorIs(t, err, ErrStockLevelNotFound)
	assertConsistent(t, f)
}

func TestAdjustStock(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 10)
	_, err := f.svc.ReserveStock(f.ctx, ReserveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 4})
	require.NoError(t, err)

	lvl, err := f.svc.AdjustStock(f.ctx, AdjustInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Delta: -5, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, 5.0, lvl.QuantityOnHand)
	assert.Equal(t, 1.0, lvl.QuantityAvailable)

	_, err = f.svc.AdjustStock(f.ctx, AdjustInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Delta: -2})
	assert.ErrorIs(t, err, ErrBelowReserved)

	_, err = f.svc.AdjustStock(f.ctx, AdjustInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Delta: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	lvl, err = f.svc.AdjustStock(f.ctx, AdjustInput{ItemID: f.item.ID, WarehouseID: f.b.ID, Delta: 2, Reason: "found"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, lvl.QuantityOnHand)

	ms, total, err := f.svc.ListMovements(f.ctx, MovementFilter{ItemID: f.item.ID, Type: db.MovementAdjustment})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, ms, 2)
	assertConsistent(t, f)
}

func TestSetStockCount(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 10)

	lvl, delta, err := f.svc.SetStockCount(f.ctx, CountInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Counted: 7})
	require.NoError(t, err)
	assert.Equal(t, -3.0, delta)
	assert.Equal(t, 7.0, lvl.QuantityOnHand)

	_, delta, err = f.svc.SetStockCount(f.ctx, CountInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Counted: 7})
	require.NoError(t, err)
	assert.Equal(t, 0.0, delta)

	_, delta, err = f.svc.SetStockCount(f.ctx, CountInput{ItemID: f.item.ID, WarehouseID: f.b.ID, Counted: 4,
		Reference: Reference{Type: "import", ID: "stock_1.xml"}})
	require.NoError(t, err)
	assert.Equal(t, 4.0, delta)

	ms, _, err := f.svc.ListMovements(f.ctx, MovementFilter{ReferenceType: "import"})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "stock count", ms[0].Reason)

	all := f.movements(t)
	assert.Len(t, all, 3) // receipt + two counts, the no-op count writes nothing
	assertConsistent(t, f)
}

func TestMovementsAreImmutable(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 1)
	m := f.movements(t)[0]

	m.Quantity = 100
	assert.ErrorIs(t, f.gdb.Save(&m).Error, db.ErrImmutable)
	assert.ErrorIs(t, f.gdb.Delete(&m).Error, db.ErrImmutable)

	assert.Equal(t, 1.0, f.movements(t)[0].Quantity)
}

func TestLowStockEvent(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 10)
	_, err := f.svc.SetReorderPoint(f.ctx, f.item.ID, f.a.ID, 5)
	require.NoError(t, err)

	_, err = f.svc.ConsumeStock(f.ctx, ConsumeInput{MoveInput: MoveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 6}})
	require.NoError(t, err)
	assert.Contains(t, f.pub.kinds(), events.KindLowStock)

	low, err := f.svc.LowStock(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, 4.0, low[0].QuantityAvailable)
}

func TestPublishErrorDoesNotFailMutation(t *testing.T) {
	f := setup(t)
	f.pub.err = errors.New("broker down")

	lvl := f.receive(t, f.a, 3)
	assert.Equal(t, 3.0, lvl.QuantityOnHand)
}

func TestListStockLevels_Paging(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 1)
	f.receive(t, f.b, 2)

	levels, total, err := f.svc.ListStockLevels(f.ctx, LevelFilter{ItemID: f.item.ID, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, levels, 1)
	assert.Equal(t, "Warehouse A", levels[0].WarehouseName)

	levels, _, err = f.svc.ListStockLevels(f.ctx, LevelFilter{ItemID: f.item.ID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, "Warehouse B", levels[0].WarehouseName)
}

func TestReconcileItemSummaries(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 4)
	require.NoError(t, f.gdb.Model(&db.InventoryItem{}).Where("id = ?", f.item.ID).
		UpdateColumn("total_on_hand", 99).Error)

	v, err := f.svc.CheckInvariants(f.ctx)
	require.NoError(t, err)
	require.Len(t, v, 1)

	n, err := f.svc.ReconcileItemSummaries(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4.0, f.itemRow(t).TotalOnHand)
	assertConsistent(t, f)
}

func TestReceiveStockWithCost(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.gdb.Model(&db.InventoryItem{}).Where("id = ?", f.item.ID).
		UpdateColumn("unit_cost", decimal.NewFromInt(10)).Error)
	f.receive(t, f.a, 10)

	cost := decimal.NewFromInt(16)
	_, err := f.svc.ReceiveStock(f.ctx, ReceiveInput{
		ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 10,
		UnitCost: &cost, LandedCost: decimal.NewFromInt(20), PurchaseOrderRef: "PO-7",
	})
	require.NoError(t, err)

	// effective 16 + 20/10 = 18; (10*10 + 10*18) / 20 = 14
	it := f.itemRow(t)
	assert.True(t, it.UnitCost.Equal(decimal.NewFromInt(14)), it.UnitCost.String())
	assert.Equal(t, 20.0, it.TotalOnHand)

	hist, err := f.svc.ListCostHistory(f.ctx, f.item.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, db.CostSourceReceipt, hist[0].Source)
	assert.Equal(t, "PO-7", hist[0].PurchaseOrderRef)
	assert.True(t, hist[0].PreviousCost.Equal(decimal.NewFromInt(10)))

	ms, _, err := f.svc.ListMovements(f.ctx, MovementFilter{ReferenceType: "purchase_order", ReferenceID: "PO-7"})
	require.NoError(t, err)
	assert.Len(t, ms, 1)
}

func TestStockChanges_QueueShopifyUpdate(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.gdb.Model(&db.InventoryItem{}).Where("id = ?", f.item.ID).
		Updates(map[string]any{"shopify_enabled": true, "shopify_product_id": "gid://1"}).Error)
	other := testutil.Item(t, f.gdb, db.InventoryItem{SKU: "MAT-GEN-00099", ShopifyEnabled: true})

	pending := func(itemID string) int64 {
		var n int64
		require.NoError(t, f.gdb.Model(&db.SyncTask{}).
			Where("inventory_item_id = ? AND kind = ? AND status = ?", itemID, db.TaskProductUpdate, db.TaskPending).
			Count(&n).Error)
		return n
	}

	f.receive(t, f.a, 7)
	assert.Equal(t, int64(1), pending(f.item.ID))

	// a waiting task is reused
	_, err := f.svc.ReserveStock(f.ctx, ReserveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.svc.TransferStock(f.ctx, TransferInput{ItemID: f.item.ID, FromWarehouseID: f.a.ID, ToWarehouseID: f.b.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending(f.item.ID))

	require.NoError(t, f.gdb.Model(&db.SyncTask{}).Where("inventory_item_id = ?", f.item.ID).
		Update("status", db.TaskDone).Error)
	_, err = f.svc.ConsumeStock(f.ctx, ConsumeInput{MoveInput: MoveInput{ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending(f.item.ID))

	// not linked to a Shopify product yet
	_, err = f.svc.ReceiveStock(f.ctx, ReceiveInput{ItemID: other.ID, WarehouseID: f.a.ID, Quantity: 3})
	require.NoError(t, err)
	assert.Zero(t, pending(other.ID))
}
