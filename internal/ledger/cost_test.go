package ledger

import (
	"testing"

	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveUnitCost(t *testing.T) {
	d := testutil.Dec
	assert.Equal(t, "12.5", EffectiveUnitCost(d("10"), d("25"), 10).String())
	assert.Equal(t, "10", EffectiveUnitCost(d("10"), decimal.Zero, 10).String())
	assert.Equal(t, "10", EffectiveUnitCost(d("10"), d("5"), 0).String())
}

func TestWeightedAverageCost(t *testing.T) {
	d := testutil.Dec
	cases := []struct {
		name      string
		existing  float64
		cost      string
		received  float64
		effective string
		want      string
	}{
		{"blend", 10, "10", 10, "20", "15"},
		{"empty stock takes receipt cost", 0, "99", 5, "7.25", "7.25"},
		{"negative stock is floored", -3, "99", 5, "7.25", "7.25"},
		{"nothing at all", 0, "3", 0, "4.12345", "4.1235"},
		{"rounds to four places", 3, "1", 7, "2", "1.7"},
		{"uneven", 1, "1", 2, "1", "1"},
		{"thirds", 2, "1", 1, "2", "1.3333"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WeightedAverageCost(tc.existing, d(tc.cost), tc.received, d(tc.effective))
			assert.True(t, got.Equal(d(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestUpdateInventoryItemCostFromReceipt(t *testing.T) {
	f := setup(t)
	f.receive(t, f.a, 4)

	up, err := f.svc.UpdateInventoryItemCostFromReceipt(f.ctx, CostReceiptInput{
		ItemID:           f.item.ID,
		ReceivedQuantity: 4,
		UnitCost:         decimal.NewFromInt(8),
		Currency:         "usd",
		PurchaseOrderRef: "PO-1",
	})
	require.NoError(t, err)
	// item cost was 0 with 4 on hand: (4*0 + 4*8) / 8
	assert.True(t, up.NewCost.Equal(decimal.NewFromInt(4)), up.NewCost.String())
	assert.True(t, up.PreviousCost.IsZero())
	assert.Equal(t, 4.0, up.ExistingQuantity)
	assert.NotEmpty(t, up.HistoryID)

	// stock did not change
	assert.Equal(t, 4.0, f.itemRow(t).TotalOnHand)

	var h db.CostHistoryEntry
	require.NoError(t, f.gdb.Where("id = ?", up.HistoryID).Take(&h).Error)
	assert.Equal(t, "alice", h.Actor)
	assert.Equal(t, 4.0, h.QuantityReceived)
}

func TestUpdateInventoryItemCostFromReceipt_Rejections(t *testing.T) {
	f := setup(t)

	_, err := f.svc.UpdateInventoryItemCostFromReceipt(f.ctx, CostReceiptInput{
		ItemID: f.item.ID, ReceivedQuantity: 1, UnitCost: decimal.NewFromInt(1), Currency: "EUR",
	})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = f.svc.UpdateInventoryItemCostFromReceipt(f.ctx, CostReceiptInput{
		ItemID: f.item.ID, ReceivedQuantity: 1, UnitCost: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, ErrInvalidCost)

	_, err = f.svc.UpdateInventoryItemCostFromReceipt(f.ctx, CostReceiptInput{
		ItemID: f.item.ID, ReceivedQuantity: 0, UnitCost: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	// a failed cost update inside a receipt rolls the receipt back
	cost := decimal.NewFromInt(5)
	_, err = f.svc.ReceiveStock(f.ctx, ReceiveInput{
		ItemID: f.item.ID, WarehouseID: f.a.ID, Quantity: 2, UnitCost: &cost, Currency: "GBP",
	})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	assert.Empty(t, f.movements(t))

	var n int64
	require.NoError(t, f.gdb.Model(&db.CostHistoryEntry{}).Count(&n).Error)
	assert.Zero(t, n)
}
