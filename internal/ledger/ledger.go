// Package ledger keeps per-warehouse stock levels and their append-only
// movement history. Every mutation runs in one database transaction that
// covers the stock level row, the movement record(s) and the item's stock
// summary, so quantityAvailable == quantityOnHand - quantityReserved holds
// after each committed change.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/events"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db  *gorm.DB
	pub events.Publisher
	log zerolog.Logger
	now func() time.Time
}

func New(gdb *gorm.DB, pub events.Publisher, log zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		db:  gdb,
		pub: pub,
		log: log.With().Str("component", "ledger").Logger(),
		now: time.Now,
	}
}

// txState collects what a transaction produced; events go out after commit.
type txState struct {
	actor  string
	now    time.Time
	events []events.StockEvent
}

func (s *Service) run(ctx context.Context, fn func(tx *gorm.DB, st *txState) error) error {
	st := &txState{actor: auth.ActorFromContext(ctx), now: s.now().UTC()}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, st)
	}); err != nil {
		return err
	}
	s.publish(ctx, st.events)
	return nil
}

func (s *Service) publish(ctx context.Context, evts []events.StockEvent) {
	if len(evts) == 0 {
		return
	}
	if err := s.pub.Publish(context.WithoutCancel(ctx), evts...); err != nil {
		s.log.Warn().Err(err).Int("events", len(evts)).Msg("publish stock events failed")
	}
}

// ReceiveStock books incoming goods: on hand += qty and a receipt movement.
// With a unit cost it also recomputes the item's weighted-average cost.
func (s *Service) ReceiveStock(ctx context.Context, in ReceiveInput) (*db.StockLevel, error) {
	if err := checkQty(in.Quantity); err != nil {
		return nil, err
	}
	var out *db.StockLevel
	err := s.run(ctx, func(tx *gorm.DB, st *txState) error {
		item, err := lockItem(tx, in.ItemID)
		if err != nil {
			return err
		}
		wh, err := loadWarehouse(tx, in.WarehouseID)
		if err != nil {
			return err
		}
		if !wh.IsActive {
			return ErrWarehouseInactive
		}

		// cost first: the average uses the quantity on hand before this receipt
		if in.UnitCost != nil {
			if _, err := s.applyReceiptCost(tx, st, item, CostReceiptInput{
				ItemID:           item.ID,
				ReceivedQuantity: in.Quantity,
				UnitCost:         *in.UnitCost,
				LandedCost:       in.LandedCost,
				Currency:         in.Currency,
				PurchaseOrderRef: in.PurchaseOrderRef,
			}); err != nil {
				return err
			}
		}

		lvl, err := ensureLevel(tx, item, wh)
		if err != nil {
			return err
		}
		before := lvl.QuantityOnHand
		if _, err := applyDelta(tx, lvl.ID, in.Quantity, 0, st.now, ""); err != nil {
			return err
		}
		if lvl, err = reloadLevel(tx, lvl.ID); err != nil {
			return err
		}
		ref := in.Reference
		if ref.Type == "" && in.PurchaseOrderRef != "" {
			ref = Reference{Type: "purchase_order", ID: in.PurchaseOrderRef}
		}
		if err := s.record(tx, st, lvl, db.MovementReceipt, in.Quantity, before, ref, in.Reason, ""); err != nil {
			return err
		}
		if err := settleItem(tx, item); err != nil {
			return err
		}
		out = lvl
		return nil
	})
	return out, err
}

// ReserveStock sets stock aside for a reference. It reads the level inside
// the transaction and only reserves when enough is available; a shortfall
// is reported in the result, not as an error.
func (s *Service) ReserveStock(ctx context.Context, in ReserveInput) (ReserveResult, error) {
	res := ReserveResult{Requested: in.Quantity}
	if err := checkQty(in.Quantity); err != nil {
		return res, err
	}
	err := s.run(ctx, func(tx *gorm.DB, st *txState) error {
		item, err := lockItem(tx, in.ItemID)
		if err != nil {
			return err
		}
		lvl, err := findLevel(tx, in.ItemID, in.WarehouseID)
		if err != nil {
			return err
		}
		if lvl == nil {
			if _, err := loadWarehouse(tx, in.WarehouseID); err != nil {
				return err
			}
			res.Shortfall = in.Quantity
			return nil
		}
		if lvl.QuantityAvailable < in.Quantity {
			res.Available = lvl.QuantityAvailable
			res.Shortfall = in.Quantity - lvl.QuantityAvailable
			res.Level = lvl
			return nil
		}

		before := lvl.QuantityOnHand
		ok, err := applyDelta(tx, lvl.ID, 0, in.Quantity, st.now,
			"quantity_on_hand - quantity_reserved >= ?", in.Quantity)
		if err != nil {
			return err
		}
		if lvl, err = reloadLevel(tx, lvl.ID); err != nil {
			return err
		}
		if !ok {
			// changed between read and write
			res.Available = lvl.QuantityAvailable
			res.Shortfall = math.Max(in.Quantity-lvl.QuantityAvailable, 0)
			res.Level = lvl
			return nil
		}
		if err := s.record(tx, st, lvl, db.MovementReservation, -in.Quantity, before, in.Reference, "", ""); err != nil {
			return err
		}
		if err := settleItem(tx, item); err != nil {
			return err
		}
		res.Success = true
		res.Available = lvl.QuantityAvailable
		res.Level = lvl
		res.MovementID = st.lastMovementID()
		return nil
	})
	if err != nil {
		return ReserveResult{Requested: in.Quantity}, err
	}
	if !res.Success {
		s.log.Info().
			Str("item", in.ItemID).
			Str("warehouse", in.WarehouseID).
			Float64("requested", in.Quantity).
			Float64("shortfall", res.Shortfall).
			Msg("reservation rejected: insufficient stock")
	}
	return res, nil
}

// ReleaseStock returns reserved stock to available.
func (s *Service) ReleaseStock(ctx context.Context, in MoveInput) (*db.StockLevel, error) {
	if err := checkQty(in.Quantity); err != nil {
		return nil, err
	}
	var out *db.StockLevel
	err := s.run(ctx, func(tx *gorm.DB, st *txState) error {
		item, err := lockItem(tx, in.ItemID)
		if err != nil {
			return err
		}
		lvl, err := mustLevel(tx, in.ItemID, in.WarehouseID)
		if err != nil {
			return err
		}
		before := lvl.QuantityOnHand
		ok, err := applyDelta(tx, lvl.ID, 0, -in.Quantity, st.now, "quantity_reserved >= ?", in.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return &ShortfallError{Base: ErrInsufficientReserved, Requested: in.Quantity, Available: lvl.QuantityReserved}
		}
		if lvl, err = reloadLevel(tx, lvl.ID); err != nil {
			return err
		}
		if err := s.record(tx, st, lvl, db.MovementRelease, in.Quantity, before, in.Reference, in.Reason, ""); err != nil {
			return err
		}
		if err := settleItem(tx, item); err != nil {
			return err
		}
		out = lvl
		return nil
	})
	return out, err
}

// ConsumeStock takes stock out of the warehouse (production, sale, scrap),
// either from a reservation or straight from available stock.
func (s *Service) ConsumeStock(ctx context.Context, in ConsumeInput) (*db.StockLevel, error) {
	if err := checkQty(in.Quantity); err != nil {
		return nil, err
	}
	var out *db.StockLevel
	err := s.run(ctx, func(tx *gorm.DB, st *txState) error {
		item, err := lockItem(tx, in.ItemID)
		if err != nil {
			return err
		}
		lvl, err := mustLevel(tx, in.ItemID, in.WarehouseID)
		if err != nil {
			return err
		}
		before := lvl.QuantityOnHand

		var ok bool
		if in.FromReserved {
			ok, err = applyDelta(tx, lvl.ID, -in.Quantity, -in.Quantity, st.now,
				"quantity_reserved >= ? AND quantity_on_hand >= ?", in.Quantity, in.Quantity)
			if err == nil && !ok {
				return &ShortfallError{Base: ErrInsufficientReserved, Requested: in.Quantity, Available: lvl.QuantityReserved}
			}
		} else {
			ok, err = applyDelta(tx, lvl.ID, -in.Quantity, 0, st.now,
				"quantity_on_hand - quantity_reserved >= ?", in.Quantity)
			if err == nil && !ok {
				return &ShortfallError{Base: ErrInsufficientStock, Requested: in.Quantity, Available: lvl.QuantityAvailable}
			}
		}
		if err != nil {
			return err
		}
		if lvl, err = reloadLevel(tx, lvl.ID); err != nil {
			return err
		}
		if err := s.record(tx, st, lvl, db.MovementConsumption, -in.Quantity, before, in.Reference, in.Reason, ""); err != nil {
			return err
		}
		if err := settleItem(tx, item); err != nil {
			return err
		}
		out = lvl
		return nil
	})
	return out, err
}

// TransferStock moves available stock between two warehouses and writes a
// transfer movement on each side.
func (s *Service) TransferStock(ctx context.Context, in TransferInput) (TransferResult, error) {
	var out TransferResult
	if err := checkQty(in.Quantity); err != nil {
		return out, err
	}
	if in.FromWarehouseID == in.ToWarehouseID {
		return out, ErrSameWarehouse
	}
	err := s.run(ctx, func(tx *gorm.DB, st *txState) error {
		item, err := lockItem(tx, in.ItemID)
		if err != nil {
			return err
		}
		src, err := mustLevel(tx, in.ItemID, in.FromWarehouseID)
		if err != nil {
			return err
		}
		dstWh, err := loadWarehouse(tx, in.ToWarehouseID)
		if err != nil {
			return err
		}
		if !dstWh.IsActive {
			return ErrWarehouseInactive
		}

		srcBefore := src.QuantityOnHand
		ok, err := applyDelta(tx, src.ID, -in.Quantity, 0, st.now,
			"quantity_on_hand - quantity_reserved >= ?", in.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return &ShortfallError{Base: ErrInsufficientStock, Requested: in.Quantity, Available: src.QuantityAvailable}
		}

		dst, err := ensureLevel(tx, item, dstWh)
		if err != nil {
			return err
		}
		dstBefore := dst.QuantityOnHand
		if _, err := applyDelta(tx, dst.ID, in.Quantity, 0, st.now, ""); err != nil {
			return err
		}

		if src, err = reloadLevel(tx, src.ID); err != nil {
			return err
		}
		if dst, err = reloadLevel(tx, dst.ID); err != nil {
			return err
		}
		if err := s.record(tx, st, src, db.MovementTransfer, -in.Quantity, srcBefore, in.Reference, in.Reason, dst.WarehouseID); err != nil {
			return err
		}
		if err := s.record(tx, st, dst, db.MovementTransfer, in.Quantity, dstBefore, in.Reference, in.Reason, src.WarehouseID); err != nil {
			return err
		}
		if err := settleItem(tx, item); err != nil {
			return err
		}
		out = TransferResult{From: src, To: dst}
		return nil
	})
	return out, err
}

// AdjustStock corrects on hand by a signed delta (count differences,
// damage, found stock). On hand may not drop below what is reserved.
func (s *Service) AdjustStock(ctx context.Context, in AdjustInput) (*db.StockLevel, error) {
	if in.Delta == 0 || math.IsNaN(in.Delta) || math.IsInf(in.Delta, 0) {
		return nil, ErrInvalidQuantity
	}
	var out *db.StockLevel
	err := s.run(ctx, func(tx *gorm.DB, st *txState) error {
		lvl, err := s.adjustTx(tx, st, in)
		out = lvl
		return err
	})
	return out, err
}

// SetStockCount records a physical count: the difference to the current
// on hand is booked as an adjustment. A zero difference writes nothing.
func (s *Service) SetStockCount(ctx context.Context, in CountInput) (*db.StockLevel, float64, error) {
	if in.Counted < 0 || math.IsNaN(in.Counted) || math.IsInf(in.Counted, 0) {
		return nil, 0, ErrInvalidQuantity
	}
	var (
		out   *db.StockLevel
		delta float64
	)
	err := s.run(ctx, func(tx *gorm.DB, st *txState) error {
		item, err := lockItem(tx, in.ItemID)
		if err != nil {
			return err
		}
		wh, err := loadWarehouse(tx, in.WarehouseID)
		if err != nil {
			return err
		}
		lvl, err := ensureLevel(tx, item, wh)
		if err != nil {
			return err
		}
		delta = in.Counted - lvl.QuantityOnHand
		if delta == 0 {
			out = lvl
			return nil
		}
		reason := in.Reason
		if reason == "" {
			reason = "stock count"
		}
		out, err = s.adjustTx(tx, st, AdjustInput{
			ItemID:      in.ItemID,
			WarehouseID: in.WarehouseID,
			Delta:       delta,
			Reason:      reason,
			Reference:   in.Reference,
		})
		return err
	})
	return out, delta, err
}

func (s *Service) adjustTx(tx *gorm.DB, st *txState, in AdjustInput) (*db.StockLevel, error) {
	item, err := lockItem(tx, in.ItemID)
	if err != nil {
		return nil, err
	}
	wh, err := loadWarehouse(tx, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	var lvl *db.StockLevel
	if in.Delta > 0 {
		lvl, err = ensureLevel(tx, item, wh)
	} else {
		lvl, err = mustLevel(tx, in.ItemID, in.WarehouseID)
	}
	if err != nil {
		return nil, err
	}
	before := lvl.QuantityOnHand
	ok, err := applyDelta(tx, lvl.ID, in.Delta, 0, st.now,
		"quantity_on_hand + ? >= quantity_reserved", in.Delta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: on hand %g, reserved %g, delta %g",
			ErrBelowReserved, lvl.QuantityOnHand, lvl.QuantityReserved, in.Delta)
	}
	if lvl, err = reloadLevel(tx, lvl.ID); err != nil {
		return nil, err
	}
	if err := s.record(tx, st, lvl, db.MovementAdjustment, in.Delta, before, in.Reference, in.Reason, ""); err != nil {
		return nil, err
	}
	if err := settleItem(tx, item); err != nil {
		return nil, err
	}
	return lvl, nil
}

// SetReorderPoint changes the low-stock threshold of one stock level.
func (s *Service) SetReorderPoint(ctx context.Context, itemID, warehouseID string, point float64) (*db.StockLevel, error) {
	if point < 0 || math.IsNaN(point) {
		return nil, ErrInvalidQuantity
	}
	var out *db.StockLevel
	err := s.run(ctx, func(tx *gorm.DB, st *txState) error {
		item, err := lockItem(tx, itemID)
		if err != nil {
			return err
		}
		wh, err := loadWarehouse(tx, warehouseID)
		if err != nil {
			return err
		}
		lvl, err := ensureLevel(tx, item, wh)
		if err != nil {
			return err
		}
		if err := tx.Model(&db.StockLevel{}).Where("id = ?", lvl.ID).
			Updates(map[string]any{"reorder_point": point, "updated_at": st.now}).Error; err != nil {
			return err
		}
		out, err = reloadLevel(tx, lvl.ID)
		return err
	})
	return out, err
}

// record appends the movement and queues the matching events.
func (s *Service) record(tx *gorm.DB, st *txState, lvl *db.StockLevel, typ db.MovementType,
	qty, onHandBefore float64, ref Reference, reason, counterpart string) error {
	m := db.StockMovement{
		StockLevelID:           lvl.ID,
		InventoryItemID:        lvl.InventoryItemID,
		WarehouseID:            lvl.WarehouseID,
		Type:                   typ,
		Quantity:               qty,
		OnHandBefore:           onHandBefore,
		OnHandAfter:            lvl.QuantityOnHand,
		ReservedAfter:          lvl.QuantityReserved,
		ReferenceType:          ref.Type,
		ReferenceID:            ref.ID,
		CounterpartWarehouseID: counterpart,
		Reason:                 reason,
		Actor:                  st.actor,
		CreatedAt:              st.now,
	}
	if err := tx.Create(&m).Error; err != nil {
		return fmt.Errorf("append movement: %w", err)
	}

	ev := events.StockEvent{
		Kind:            events.KindStockChanged,
		InventoryItemID: lvl.InventoryItemID,
		SKU:             lvl.SKU,
		WarehouseID:     lvl.WarehouseID,
		MovementID:      m.ID,
		MovementType:    string(typ),
		Quantity:        qty,
		OnHand:          lvl.QuantityOnHand,
		Reserved:        lvl.QuantityReserved,
		Available:       lvl.QuantityAvailable,
		ReorderPoint:    lvl.ReorderPoint,
		ReferenceType:   ref.Type,
		ReferenceID:     ref.ID,
		Actor:           st.actor,
		At:              st.now,
	}
	st.events = append(st.events, ev)
	if lvl.ReorderPoint > 0 && lvl.QuantityAvailable <= lvl.ReorderPoint && qty < 0 {
		low := ev
		low.Kind = events.KindLowStock
		st.events = append(st.events, low)
	}
	return nil
}

func (st *txState) lastMovementID() string {
	for i := len(st.events) - 1; i >= 0; i-- {
		if st.events[i].Kind == events.KindStockChanged {
			return st.events[i].MovementID
		}
	}
	return ""
}

// applyDelta shifts on hand and reserved of one level and re-derives
// available from the same old values. An optional guard turns the update
// into a conditional one; the bool reports whether a row was changed.
// Map keys are applied in sorted order, so quantity_available is assigned
// before the other columns on databases that evaluate SET left to right.
func applyDelta(tx *gorm.DB, levelID string, dOnHand, dReserved float64, now time.Time, guard string, guardArgs ...any) (bool, error) {
	q := tx.Model(&db.StockLevel{}).Where("id = ?", levelID)
	if guard != "" {
		q = q.Where(guard, guardArgs...)
	}
	res := q.Updates(map[string]any{
		"quantity_available": gorm.Expr("(quantity_on_hand + ?) - (quantity_reserved + ?)", dOnHand, dReserved),
		"quantity_on_hand":   gorm.Expr("quantity_on_hand + ?", dOnHand),
		"quantity_reserved":  gorm.Expr("quantity_reserved + ?", dReserved),
		"updated_at":         now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func checkQty(q float64) error {
	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return ErrInvalidQuantity
	}
	return nil
}

func loadItem(tx *gorm.DB, id string) (*db.InventoryItem, error) {
	var item db.InventoryItem
	err := tx.Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// lockItem loads the item with a row lock held until commit. Every mutation
// takes it first, so writers of one item are serialized and always lock the
// item before its stock levels. SQLite locks the whole database instead.
func lockItem(tx *gorm.DB, id string) (*db.InventoryItem, error) {
	if tx.Dialector.Name() != "sqlite" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return loadItem(tx, id)
}

func loadWarehouse(tx *gorm.DB, id string) (*db.Warehouse, error) {
	var wh db.Warehouse
	err := tx.Where("id = ?", id).Take(&wh).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWarehouseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

// findLevel returns nil without error when the level does not exist.
func findLevel(tx *gorm.DB, itemID, warehouseID string) (*db.StockLevel, error) {
	var lvl db.StockLevel
	err := tx.Where("inventory_item_id = ? AND warehouse_id = ?", itemID, warehouseID).Take(&lvl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lvl, nil
}

func mustLevel(tx *gorm.DB, itemID, warehouseID string) (*db.StockLevel, error) {
	lvl, err := findLevel(tx, itemID, warehouseID)
	if err != nil {
		return nil, err
	}
	if lvl == nil {
		return nil, ErrStockLevelNotFound
	}
	return lvl, nil
}

func reloadLevel(tx *gorm.DB, id string) (*db.StockLevel, error) {
	var lvl db.StockLevel
	if err := tx.Where("id = ?", id).Take(&lvl).Error; err != nil {
		return nil, err
	}
	return &lvl, nil
}

// ensureLevel creates the (item, warehouse) row on first use, copying the
// SKU and names onto it.
func ensureLevel(tx *gorm.DB, item *db.InventoryItem, wh *db.Warehouse) (*db.StockLevel, error) {
	lvl, err := findLevel(tx, item.ID, wh.ID)
	if err != nil || lvl != nil {
		return lvl, err
	}
	lvl = &db.StockLevel{
		InventoryItemID: item.ID,
		WarehouseID:     wh.ID,
		SKU:             item.SKU,
		ItemName:        item.Name,
		WarehouseName:   wh.Name,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(lvl).Error; err != nil {
		return nil, fmt.Errorf("create stock level: %w", err)
	}
	return mustLevel(tx, item.ID, wh.ID)
}

// settleItem refreshes the item's stock summary and, for items linked to a
// Shopify product, queues a product update so the shop sees the new stock.
func settleItem(tx *gorm.DB, item *db.InventoryItem) error {
	if err := refreshItemSummary(tx, item.ID); err != nil {
		return err
	}
	if item.ShopifyEnabled && item.ShopifyProductID != "" {
		return db.EnqueueSyncTask(tx, item.ID, db.TaskProductUpdate)
	}
	return nil
}

type stockTotals struct {
	OnHand   float64
	Reserved float64
}

// refreshItemSummary copies the sums over all warehouses onto the item.
func refreshItemSummary(tx *gorm.DB, itemID string) error {
	var t stockTotals
	if err := tx.Model(&db.StockLevel{}).
		Select("COALESCE(SUM(quantity_on_hand), 0) AS on_hand, COALESCE(SUM(quantity_reserved), 0) AS reserved").
		Where("inventory_item_id = ?", itemID).
		Scan(&t).Error; err != nil {
		return fmt.Errorf("sum stock levels: %w", err)
	}
	return tx.Model(&db.InventoryItem{}).Where("id = ?", itemID).
		UpdateColumns(map[string]any{
			"total_on_hand":   t.OnHand,
			"total_reserved":  t.Reserved,
			"total_available": t.OnHand - t.Reserved,
		}).Error
}
