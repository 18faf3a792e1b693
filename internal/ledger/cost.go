package ledger

import (
	"context"
	"math"
	"strings"

	"github.com/bartek5186/stockhub/internal/db"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const costPlaces = 4

// EffectiveUnitCost spreads the landed cost of a receipt over its units.
func EffectiveUnitCost(unitCost, landedCost decimal.Decimal, receivedQty float64) decimal.Decimal {
	if receivedQty <= 0 || landedCost.IsZero() {
		return unitCost
	}
	return unitCost.Add(landedCost.Div(decimal.NewFromFloat(receivedQty)))
}

// WeightedAverageCost blends the cost of the stock already held with the
// cost of a new receipt. When nothing is held the effective cost wins.
func WeightedAverageCost(existingQty float64, existingCost decimal.Decimal, receivedQty float64, effectiveCost decimal.Decimal) decimal.Decimal {
	existingQty = math.Max(existingQty, 0)
	total := existingQty + receivedQty
	if total <= 0 {
		return effectiveCost.Round(costPlaces)
	}
	eq := decimal.NewFromFloat(existingQty)
	rq := decimal.NewFromFloat(receivedQty)
	sum := eq.Mul(existingCost).Add(rq.Mul(effectiveCost))
	return sum.Div(decimal.NewFromFloat(total)).Round(costPlaces)
}

// UpdateInventoryItemCostFromReceipt recomputes the item's weighted-average
// unit cost for a purchase order receipt and appends a cost history entry.
// It does not change stock; ReceiveStock calls it with the same data when a
// unit cost is passed.
func (s *Service) UpdateInventoryItemCostFromReceipt(ctx context.Context, in CostReceiptInput) (CostUpdate, error) {
	var out CostUpdate
	if err := checkQty(in.ReceivedQuantity); err != nil {
		return out, err
	}
	err := s.run(ctx, func(tx *gorm.DB, st *txState) error {
		item, err := lockItem(tx, in.ItemID)
		if err != nil {
			return err
		}
		out, err = s.applyReceiptCost(tx, st, item, in)
		return err
	})
	return out, err
}

func (s *Service) applyReceiptCost(tx *gorm.DB, st *txState, item *db.InventoryItem, in CostReceiptInput) (CostUpdate, error) {
	if in.UnitCost.IsNegative() || in.LandedCost.IsNegative() {
		return CostUpdate{}, ErrInvalidCost
	}
	cur := strings.ToUpper(strings.TrimSpace(in.Currency))
	if cur == "" {
		cur = item.Currency
	}
	if !strings.EqualFold(cur, item.Currency) {
		return CostUpdate{}, ErrCurrencyMismatch
	}

	existing := math.Max(item.TotalOnHand, 0)
	effective := EffectiveUnitCost(in.UnitCost, in.LandedCost, in.ReceivedQuantity)
	newCost := WeightedAverageCost(existing, item.UnitCost, in.ReceivedQuantity, effective)

	h := db.CostHistoryEntry{
		InventoryItemID:  item.ID,
		PreviousCost:     item.UnitCost,
		NewCost:          newCost,
		Currency:         item.Currency,
		Source:           db.CostSourceReceipt,
		PurchaseOrderRef: in.PurchaseOrderRef,
		QuantityReceived: in.ReceivedQuantity,
		Actor:            st.actor,
		CreatedAt:        st.now,
	}
	if err := tx.Create(&h).Error; err != nil {
		return CostUpdate{}, err
	}
	if err := tx.Model(&db.InventoryItem{}).Where("id = ?", item.ID).
		UpdateColumns(map[string]any{"unit_cost": newCost, "updated_at": st.now}).Error; err != nil {
		return CostUpdate{}, err
	}

	s.log.Debug().
		Str("item", item.ID).
		Str("previous", item.UnitCost.String()).
		Str("new", newCost.String()).
		Float64("received", in.ReceivedQuantity).
		Msg("unit cost updated from receipt")

	prev := item.UnitCost
	item.UnitCost = newCost
	return CostUpdate{
		PreviousCost:      prev,
		NewCost:           newCost,
		EffectiveUnitCost: effective,
		ExistingQuantity:  existing,
		Currency:          item.Currency,
		HistoryID:         h.ID,
	}, nil
}
