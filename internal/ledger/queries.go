package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bartek5186/stockhub/internal/db"
	"gorm.io/gorm"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) GetStockLevel(ctx context.Context, itemID, warehouseID string) (*db.StockLevel, error) {
	lvl, err := findLevel(s.db.WithContext(ctx), itemID, warehouseID)
	if err != nil {
		return nil, err
	}
	if lvl == nil {
		return nil, ErrStockLevelNotFound
	}
	return lvl, nil
}

// ListStockLevels returns levels ordered by SKU then warehouse name.
// LowStockOnly keeps levels with a reorder point whose available stock is
// at or below it.
func (s *Service) ListStockLevels(ctx context.Context, f LevelFilter) ([]db.StockLevel, int64, error) {
	q := s.db.WithContext(ctx).Model(&db.StockLevel{})
	if f.ItemID != "" {
		q = q.Where("inventory_item_id = ?", f.ItemID)
	}
	if f.WarehouseID != "" {
		q = q.Where("warehouse_id = ?", f.WarehouseID)
	}
	if f.LowStockOnly {
		q = q.Where("reorder_point > 0 AND quantity_available <= reorder_point")
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit, offset := page(f.Limit, f.Offset)
	var out []db.StockLevel
	err := q.Order("sku ASC").Order("warehouse_name ASC").
		Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

// ListMovements returns movements newest first.
func (s *Service) ListMovements(ctx context.Context, f MovementFilter) ([]db.StockMovement, int64, error) {
	q := s.db.WithContext(ctx).Model(&db.StockMovement{})
	if f.ItemID != "" {
		q = q.Where("inventory_item_id = ?", f.ItemID)
	}
	if f.WarehouseID != "" {
		q = q.Where("warehouse_id = ?", f.WarehouseID)
	}
	if f.Type != "" {
		if !f.Type.Valid() {
			return nil, 0, fmt.Errorf("unknown movement type %q", f.Type)
		}
		q = q.Where("type = ?", f.Type)
	}
	if f.ReferenceType != "" {
		q = q.Where("reference_type = ?", f.ReferenceType)
	}
	if f.ReferenceID != "" {
		q = q.Where("reference_id = ?", f.ReferenceID)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit, offset := page(f.Limit, f.Offset)
	var out []db.StockMovement
	// movements of one transaction share a timestamp; id keeps the order stable
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

func (s *Service) ListCostHistory(ctx context.Context, itemID string) ([]db.CostHistoryEntry, error) {
	if _, err := loadItem(s.db.WithContext(ctx), itemID); err != nil {
		return nil, err
	}
	var out []db.CostHistoryEntry
	err := s.db.WithContext(ctx).
		Where("inventory_item_id = ?", itemID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// Violation describes one broken ledger invariant.
type Violation struct {
	StockLevelID    string `json:"stockLevelId,omitempty"`
	InventoryItemID string `json:"inventoryItemId"`
	Problem         string `json:"problem"`
}

// CheckInvariants scans all stock levels and item summaries.
func (s *Service) CheckInvariants(ctx context.Context) ([]Violation, error) {
	gdb := s.db.WithContext(ctx)
	var out []Violation

	var levels []db.StockLevel
	if err := gdb.Find(&levels).Error; err != nil {
		return nil, err
	}
	sums := map[string]stockTotals{}
	for _, l := range levels {
		if l.QuantityOnHand < 0 || l.QuantityReserved < 0 || l.QuantityAvailable < 0 {
			out = append(out, Violation{l.ID, l.InventoryItemID, "negative quantity"})
		}
		if !near(l.QuantityAvailable, l.QuantityOnHand-l.QuantityReserved) {
			out = append(out, Violation{l.ID, l.InventoryItemID, "available != on hand - reserved"})
		}
		t := sums[l.InventoryItemID]
		t.OnHand += l.QuantityOnHand
		t.Reserved += l.QuantityReserved
		sums[l.InventoryItemID] = t
	}

	var items []db.InventoryItem
	if err := gdb.Select("id", "total_on_hand", "total_reserved", "total_available").Find(&items).Error; err != nil {
		return nil, err
	}
	for _, it := range items {
		t := sums[it.ID]
		if !near(it.TotalOnHand, t.OnHand) || !near(it.TotalReserved, t.Reserved) ||
			!near(it.TotalAvailable, t.OnHand-t.Reserved) {
			out = append(out, Violation{InventoryItemID: it.ID, Problem: "item summary differs from stock levels"})
		}
	}
	return out, nil
}

// ReconcileItemSummaries recomputes every item's stock summary and returns
// how many items were processed.
func (s *Service) ReconcileItemSummaries(ctx context.Context) (int, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&db.InventoryItem{}).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	for i, id := range ids {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := lockItem(tx, id); err != nil {
				return err
			}
			return refreshItemSummary(tx, id)
		})
		if err != nil {
			return i, fmt.Errorf("reconcile %s: %w", id, err)
		}
	}
	s.log.Info().Int("items", len(ids)).Msg("item stock summaries reconciled")
	return len(ids), nil
}

// LowStock lists levels at or below their reorder point.
func (s *Service) LowStock(ctx context.Context, limit int) ([]db.StockLevel, error) {
	out, _, err := s.ListStockLevels(ctx, LevelFilter{LowStockOnly: true, Limit: limit})
	return out, err
}

// IsNotFound reports whether err is one of the ledger's not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrWarehouseNotFound) ||
		errors.Is(err, ErrStockLevelNotFound)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
