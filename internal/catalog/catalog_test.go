package catalog

import (
	"context"
	"testing"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*Service, *gorm.DB, context.Context) {
	t.Helper()
	gdb := testutil.DB(t)
	return New(gdb, zerolog.Nop()), gdb, auth.WithActor(context.Background(), "bob")
}

func TestSKUPrefix(t *testing.T) {
	cases := []struct {
		cls  db.Classification
		cat  string
		want string
	}{
		{db.ClassMaterial, "wood", "MAT-WOO"},
		{db.ClassProduct, "Chairs", "PRD-CHA"},
		{db.ClassProduct, "", "PRD-GEN"},
		{db.ClassMaterial, "  -- ", "MAT-GEN"},
		{db.ClassMaterial, "3d print", "MAT-3DP"},
		{db.ClassMaterial, "ab", "MAT-AB"},
		{db.ClassMaterial, "żółw tile", "MAT-WTI"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SKUPrefix(tc.cls, tc.cat), tc.cat)
	}
}

func TestCreateItem_GeneratesSequentialSKUs(t *testing.T) {
	svc, _, ctx := newService(t)

	a, err := svc.CreateItem(ctx, NewItem{Name: "Oak board", Category: "wood"})
	require.NoError(t, err)
	assert.Equal(t, "MAT-WOO-00001", a.SKU)
	assert.Equal(t, "USD", a.Currency)
	assert.Equal(t, "pcs", a.Unit)
	assert.Equal(t, "bob", a.CreatedBy)

	b, err := svc.CreateItem(ctx, NewItem{Name: "Pine board", Category: "Wood"})
	require.NoError(t, err)
	assert.Equal(t, "MAT-WOO-00002", b.SKU)

	c, err := svc.CreateItem(ctx, NewItem{Name: "Chair", Classification: db.ClassProduct})
	require.NoError(t, err)
	assert.Equal(t, "PRD-GEN-00001", c.SKU)
}

func TestCreateItem_SkipsManuallyTakenSKU(t *testing.T) {
	svc, _, ctx := newService(t)

	_, err := svc.CreateItem(ctx, NewItem{Name: "Manual", SKU: "mat-woo-00001"})
	require.NoError(t, err)

	auto, err := svc.CreateItem(ctx, NewItem{Name: "Auto", Category: "wood"})
	require.NoError(t, err)
	assert.Equal(t, "MAT-WOO-00002", auto.SKU)

	_, err = svc.CreateItem(ctx, NewItem{Name: "Dup", SKU: "MAT-WOO-00002"})
	assert.ErrorIs(t, err, ErrSKUExists)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateItem_Validation(t *testing.T) {
	svc, _, ctx := newService(t)

	_, err := svc.CreateItem(ctx, NewItem{
		Classification: "gadget",
		Currency:       "dollars",
		UnitCost:       decimal.NewFromInt(-1),
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "name")
	assert.Contains(t, ve.Fields, "classification")
	assert.Contains(t, ve.Fields, "currency")
	assert.Contains(t, ve.Fields, "unitCost")
}

func TestCreateItem_ShopifyEnqueuesSync(t *testing.T) {
	svc, gdb, ctx := newService(t)

	item, err := svc.CreateItem(ctx, NewItem{Name: "Lamp", Classification: db.ClassProduct, ShopifyEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, "pending", item.ShopifySyncStatus)

	var tasks []db.SyncTask
	require.NoError(t, gdb.Find(&tasks).Error)
	require.Len(t, tasks, 1)
	assert.Equal(t, db.TaskProductSync, tasks[0].Kind)
	assert.Equal(t, item.ID, tasks[0].InventoryItemID)

	// a second request while the first is waiting does not duplicate it
	_, err = svc.RequestShopSync(ctx, item.ID)
	require.NoError(t, err)
	require.NoError(t, gdb.Find(&tasks).Error)
	assert.Len(t, tasks, 1)
}

func TestUpdateItem_CostChangeWritesHistory(t *testing.T) {
	svc, gdb, ctx := newService(t)
	item, err := svc.CreateItem(ctx, NewItem{Name: "Screw", UnitCost: decimal.RequireFromString("0.10")})
	require.NoError(t, err)

	cost := decimal.RequireFromString("0.12")
	name := "Screw M4"
	up, err := svc.UpdateItem(ctx, item.ID, ItemPatch{UnitCost: &cost, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Screw M4", up.Name)
	assert.True(t, up.UnitCost.Equal(cost))
	assert.Equal(t, item.SKU, up.SKU)

	var hist []db.CostHistoryEntry
	require.NoError(t, gdb.Find(&hist).Error)
	require.Len(t, hist, 1)
	assert.Equal(t, db.CostSourceManual, hist[0].Source)
	assert.Equal(t, "bob", hist[0].Actor)
	assert.True(t, hist[0].PreviousCost.Equal(decimal.RequireFromString("0.1")))

	// same cost again is not a change
	_, err = svc.UpdateItem(ctx, item.ID, ItemPatch{UnitCost: &cost})
	require.NoError(t, err)
	require.NoError(t, gdb.Find(&hist).Error)
	assert.Len(t, hist, 1)

	_, err = svc.UpdateItem(ctx, "missing", ItemPatch{Name: &name})
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateItem_RenameUpdatesStockLevels(t *testing.T) {
	svc, gdb, ctx := newService(t)
	item, err := svc.CreateItem(ctx, NewItem{Name: "Bolt"})
	require.NoError(t, err)
	wh := testutil.Warehouse(t, gdb, "WH1")
	require.NoError(t, gdb.Create(&db.StockLevel{
		InventoryItemID: item.ID, WarehouseID: wh.ID, SKU: item.SKU, ItemName: "Bolt",
		QuantityOnHand: 4, QuantityAvailable: 4,
	}).Error)

	name := "Bolt M8"
	_, err = svc.UpdateItem(ctx, item.ID, ItemPatch{Name: &name})
	require.NoError(t, err)

	var lvl db.StockLevel
	require.NoError(t, gdb.Where("inventory_item_id = ?", item.ID).Take(&lvl).Error)
	assert.Equal(t, "Bolt M8", lvl.ItemName)
	assert.Equal(t, 4.0, lvl.QuantityOnHand)
}

func TestListItems(t *testing.T) {
	svc, gdb, ctx := newService(t)
	for _, n := range []string{"Oak board", "Oak veneer", "Steel rod"} {
		_, err := svc.CreateItem(ctx, NewItem{Name: n, Category: "raw"})
		require.NoError(t, err)
	}
	rod, err := svc.GetItemBySKU(ctx, "mat-raw-00003")
	require.NoError(t, err)
	_, err = svc.SetItemStatus(ctx, rod.ID, db.ItemDiscontinued)
	require.NoError(t, err)

	items, total, err := svc.ListItems(ctx, ItemFilter{Query: "oak"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = svc.ListItems(ctx, ItemFilter{Status: db.ItemActive, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Oak board", items[0].Name)

	require.NoError(t, gdb.Model(&db.InventoryItem{}).Where("id = ?", rod.ID).
		Updates(map[string]any{"reorder_point": 5, "total_available": 2}).Error)
	items, _, err = svc.ListItems(ctx, ItemFilter{LowStock: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, rod.ID, items[0].ID)

	_, err = svc.SetItemStatus(ctx, rod.ID, "deleted")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSupplierPrices_SinglePreferred(t *testing.T) {
	svc, gdb, ctx := newService(t)
	item, err := svc.CreateItem(ctx, NewItem{Name: "Glue"})
	require.NoError(t, err)

	a, err := svc.AddSupplierPrice(ctx, item.ID, SupplierPriceInput{SupplierName: "Acme", UnitCost: decimal.NewFromInt(3), IsPreferred: true})
	require.NoError(t, err)
	assert.True(t, a.IsPreferred)
	assert.Equal(t, "USD", a.Currency)

	// the item had no cost, so it takes the preferred supplier's
	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.UnitCost.Equal(decimal.NewFromInt(3)))
	var hist []db.CostHistoryEntry
	require.NoError(t, gdb.Find(&hist).Error)
	require.Len(t, hist, 1)
	assert.Equal(t, db.CostSourceSupplierPrice, hist[0].Source)

	b, err := svc.AddSupplierPrice(ctx, item.ID, SupplierPriceInput{SupplierName: "Bolt Co", UnitCost: decimal.NewFromInt(2)})
	require.NoError(t, err)
	_, err = svc.SetPreferredSupplier(ctx, item.ID, b.ID)
	require.NoError(t, err)

	prices, err := svc.ListSupplierPrices(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, b.ID, prices[0].ID)
	assert.True(t, prices[0].IsPreferred)
	assert.False(t, prices[1].IsPreferred)

	// cost already set, preferring another supplier leaves it alone
	got, err = svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.UnitCost.Equal(decimal.NewFromInt(3)))

	require.NoError(t, svc.RemoveSupplierPrice(ctx, item.ID, a.ID))
	assert.ErrorIs(t, svc.RemoveSupplierPrice(ctx, item.ID, a.ID), ErrSupplierNotFound)

	_, err = svc.AddSupplierPrice(ctx, item.ID, SupplierPriceInput{UnitCost: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestWarehouses(t *testing.T) {
	svc, gdb, ctx := newService(t)

	main, err := svc.CreateWarehouse(ctx, WarehouseInput{SubsidiaryID: "eu", Code: " wh1 ", Name: "Main"})
	require.NoError(t, err)
	assert.Equal(t, "WH1", main.Code)
	assert.Equal(t, db.WarehouseMain, main.Type)
	assert.True(t, main.IsActive)

	_, err = svc.CreateWarehouse(ctx, WarehouseInput{SubsidiaryID: "eu", Code: "WH1", Name: "Other"})
	assert.ErrorIs(t, err, ErrWarehouseCodeExists)

	// same code in another subsidiary is fine
	us, err := svc.CreateWarehouse(ctx, WarehouseInput{SubsidiaryID: "us", Code: "WH1", Name: "US", Type: db.WarehouseSatellite})
	require.NoError(t, err)

	_, err = svc.CreateWarehouse(ctx, WarehouseInput{Code: "X", Name: "X", Type: "cloud"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	list, err := svc.ListWarehouses(ctx, WarehouseFilter{SubsidiaryID: "us"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, us.ID, list[0].ID)

	item := testutil.Item(t, gdb, db.InventoryItem{SKU: "MAT-GEN-00009", Name: "Nail"})
	require.NoError(t, gdb.Create(&db.StockLevel{
		InventoryItemID: item.ID, WarehouseID: main.ID, WarehouseName: "Main",
		QuantityOnHand: 3, QuantityAvailable: 3,
	}).Error)

	_, err = svc.DeactivateWarehouse(ctx, main.ID)
	assert.ErrorIs(t, err, ErrWarehouseHasStock)

	renamed, err := svc.UpdateWarehouse(ctx, main.ID, WarehouseInput{SubsidiaryID: "eu", Code: "WH1", Name: "Central"})
	require.NoError(t, err)
	assert.Equal(t, "Central", renamed.Name)
	var lvl db.StockLevel
	require.NoError(t, gdb.Where("warehouse_id = ?", main.ID).Take(&lvl).Error)
	assert.Equal(t, "Central", lvl.WarehouseName)

	wh, err := svc.DeactivateWarehouse(ctx, us.ID)
	require.NoError(t, err)
	assert.False(t, wh.IsActive)
	active, err := svc.ListWarehouses(ctx, WarehouseFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	byCode, err := svc.WarehouseByCode(ctx, "wh1")
	require.NoError(t, err)
	assert.Equal(t, main.ID, byCode.ID)
}

func TestPromoteProjectPart(t *testing.T) {
	svc, gdb, ctx := newService(t)

	part, err := svc.AddProjectPart(ctx, ProjectPartInput{
		ProjectID: "proj-1", Name: "Table top", Category: "furniture",
		UnitCost: decimal.NewFromInt(40), LinkedMaterialID: "mat-1",
	})
	require.NoError(t, err)

	item, created, err := svc.PromoteProjectPart(ctx, part.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "PRD-FUR-00001", item.SKU)
	assert.Equal(t, db.StringList{"proj-1"}, item.LinkedProjectIDs)
	assert.Equal(t, "mat-1", item.LinkedMaterialID)

	again, created, err := svc.PromoteProjectPart(ctx, part.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, item.ID, again.ID)

	var n int64
	require.NoError(t, gdb.Model(&db.InventoryItem{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	parts, err := svc.ListProjectParts(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, item.ID, parts[0].PromotedItemID)

	_, _, err = svc.PromoteProjectPart(ctx, "missing")
	assert.ErrorIs(t, err, ErrPartNotFound)
}
