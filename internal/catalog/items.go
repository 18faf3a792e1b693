package catalog

import (
	"context"
	"strings"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type NewItem struct {
	SKU              string            `json:"sku"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Classification   db.Classification `json:"classification"`
	Category         string            `json:"category"`
	UnitCost         decimal.Decimal   `json:"unitCost"`
	SalePrice        decimal.Decimal   `json:"salePrice"`
	Currency         string            `json:"currency"`
	Unit             string            `json:"unit"`
	ReorderPoint     float64           `json:"reorderPoint"`
	ShopifyEnabled   bool              `json:"shopifyEnabled"`
	LinkedMaterialID string            `json:"linkedMaterialId"`
	LinkedProjectIDs []string          `json:"linkedProjectIds"`
}

// ItemPatch changes only the fields that are set.
type ItemPatch struct {
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	Category         *string          `json:"category"`
	UnitCost         *decimal.Decimal `json:"unitCost"`
	SalePrice        *decimal.Decimal `json:"salePrice"`
	Currency         *string          `json:"currency"`
	Unit             *string          `json:"unit"`
	ReorderPoint     *float64         `json:"reorderPoint"`
	ShopifyEnabled   *bool            `json:"shopifyEnabled"`
	LinkedMaterialID *string          `json:"linkedMaterialId"`
}

type ItemFilter struct {
	Query          string
	Classification db.Classification
	Category       string
	Status         db.ItemStatus
	LowStock       bool
	Limit          int
	Offset         int
}

func (in *NewItem) validate() error {
	f := apperr.Fields{}
	f.Require("name", in.Name)
	if in.Classification == "" {
		in.Classification = db.ClassMaterial
	}
	if !validClassification(in.Classification) {
		f.Add("classification", "must be material or product")
	}
	in.Currency = normCurrency(in.Currency)
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if !validCurrency(in.Currency) {
		f.Add("currency", "must be a 3-letter ISO code")
	}
	if in.UnitCost.IsNegative() {
		f.Add("unitCost", "must not be negative")
	}
	if in.SalePrice.IsNegative() {
		f.Add("salePrice", "must not be negative")
	}
	if in.ReorderPoint < 0 {
		f.Add("reorderPoint", "must not be negative")
	}
	return f.Err()
}

// CreateItem stores a new item, generating the SKU when none is given.
func (s *Service) CreateItem(ctx context.Context, in NewItem) (*db.InventoryItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = "pcs"
	}
	item := &db.InventoryItem{
		SKU:              normSKU(in.SKU),
		Name:             strings.TrimSpace(in.Name),
		Description:      in.Description,
		Classification:   in.Classification,
		Category:         strings.TrimSpace(in.Category),
		Status:           db.ItemActive,
		UnitCost:         in.UnitCost.Round(4),
		SalePrice:        in.SalePrice.Round(4),
		Currency:         in.Currency,
		Unit:             unit,
		ReorderPoint:     in.ReorderPoint,
		ShopifyEnabled:   in.ShopifyEnabled,
		LinkedMaterialID: in.LinkedMaterialID,
		LinkedProjectIDs: db.StringList(in.LinkedProjectIDs),
		CreatedBy:        auth.ActorFromContext(ctx),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.createItemTx(tx, item)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("item", item.ID).Str("sku", item.SKU).Msg("item created")
	return item, nil
}

func (s *Service) createItemTx(tx *gorm.DB, item *db.InventoryItem) error {
	if item.SKU == "" {
		sku, err := nextSKU(tx, item.Classification, item.Category)
		if err != nil {
			return err
		}
		item.SKU = sku
	} else if taken, err := skuTaken(tx, item.SKU); err != nil {
		return err
	} else if taken {
		return ErrSKUExists
	}
	if item.ShopifyEnabled {
		item.ShopifySyncStatus = "pending"
	}
	if err := tx.Create(item).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrSKUExists
		}
		return err
	}
	if item.ShopifyEnabled {
		return db.EnqueueSyncTask(tx, item.ID, db.TaskProductSync)
	}
	return nil
}

func (s *Service) GetItem(ctx context.Context, id string) (*db.InventoryItem, error) {
	var item db.InventoryItem
	err := s.db.WithContext(ctx).Preload("SupplierPrices").Where("id = ?", id).Take(&item).Error
	if err != nil {
		return nil, notFound(err, ErrItemNotFound)
	}
	return &item, nil
}

func (s *Service) GetItemBySKU(ctx context.Context, sku string) (*db.InventoryItem, error) {
	var item db.InventoryItem
	err := s.db.WithContext(ctx).Preload("SupplierPrices").Where("sku = ?", normSKU(sku)).Take(&item).Error
	if err != nil {
		return nil, notFound(err, ErrItemNotFound)
	}
	return &item, nil
}

func (s *Service) ListItems(ctx context.Context, f ItemFilter) ([]db.InventoryItem, int64, error) {
	q := s.db.WithContext(ctx).Model(&db.InventoryItem{})
	if qs := strings.ToLower(strings.TrimSpace(f.Query)); qs != "" {
		like := "%" + qs + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}
	if f.Classification != "" {
		q = q.Where("classification = ?", f.Classification)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.LowStock {
		q = q.Where("reorder_point > 0 AND total_available <= reorder_point")
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit, offset := page(f.Limit, f.Offset)
	var out []db.InventoryItem
	err := q.Order("name ASC").Order("sku ASC").Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

// UpdateItem applies a patch. A changed unit cost is written to the cost
// history as a manual change; shop-enabled items get a sync task.
func (s *Service) UpdateItem(ctx context.Context, id string, p ItemPatch) (*db.InventoryItem, error) {
	fields := apperr.Fields{}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		fields.Add("name", "is required")
	}
	if p.UnitCost != nil && p.UnitCost.IsNegative() {
		fields.Add("unitCost", "must not be negative")
	}
	if p.SalePrice != nil && p.SalePrice.IsNegative() {
		fields.Add("salePrice", "must not be negative")
	}
	if p.ReorderPoint != nil && *p.ReorderPoint < 0 {
		fields.Add("reorderPoint", "must not be negative")
	}
	if p.Currency != nil && !validCurrency(normCurrency(*p.Currency)) {
		fields.Add("currency", "must be a 3-letter ISO code")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	actor := auth.ActorFromContext(ctx)
	var out db.InventoryItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&out).Error; err != nil {
			return notFound(err, ErrItemNotFound)
		}
		upd := map[string]any{}
		if p.Name != nil {
			upd["name"] = strings.TrimSpace(*p.Name)
		}
		if p.Description != nil {
			upd["description"] = *p.Description
		}
		if p.Category != nil {
			upd["category"] = strings.TrimSpace(*p.Category)
		}
		if p.SalePrice != nil {
			upd["sale_price"] = p.SalePrice.Round(4)
		}
		if p.Currency != nil {
			upd["currency"] = normCurrency(*p.Currency)
		}
		if p.Unit != nil {
			upd["unit"] = strings.TrimSpace(*p.Unit)
		}
		if p.ReorderPoint != nil {
			upd["reorder_point"] = *p.ReorderPoint
		}
		if p.ShopifyEnabled != nil {
			upd["shopify_enabled"] = *p.ShopifyEnabled
		}
		if p.LinkedMaterialID != nil {
			upd["linked_material_id"] = *p.LinkedMaterialID
		}
		if p.UnitCost != nil {
			newCost := p.UnitCost.Round(4)
			if !newCost.Equal(out.UnitCost) {
				upd["unit_cost"] = newCost
				cur := out.Currency
				if c, ok := upd["currency"].(string); ok {
					cur = c
				}
				if err := tx.Create(&db.CostHistoryEntry{
					InventoryItemID: out.ID,
					PreviousCost:    out.UnitCost,
					NewCost:         newCost,
					Currency:        cur,
					Source:          db.CostSourceManual,
					Actor:           actor,
					CreatedAt:       s.now().UTC(),
				}).Error; err != nil {
					return err
				}
			}
		}
		if len(upd) == 0 {
			return nil
		}

		shop := out.ShopifyEnabled
		if p.ShopifyEnabled != nil {
			shop = *p.ShopifyEnabled
		}
		if shop {
			upd["shopify_sync_status"] = "pending"
		}
		if err := tx.Model(&db.InventoryItem{}).Where("id = ?", id).Updates(upd).Error; err != nil {
			return err
		}
		if name, ok := upd["name"].(string); ok && name != out.Name {
			if err := tx.Model(&db.StockLevel{}).Where("inventory_item_id = ?", id).
				Update("item_name", name).Error; err != nil {
				return err
			}
		}
		if shop {
			kind := db.TaskProductUpdate
			if out.ShopifyProductID == "" {
				kind = db.TaskProductSync
			}
			if err := db.EnqueueSyncTask(tx, id, kind); err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Take(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetItemStatus is the soft delete: items are never removed.
func (s *Service) SetItemStatus(ctx context.Context, id string, status db.ItemStatus) (*db.InventoryItem, error) {
	if !validStatus(status) {
		return nil, apperr.Invalid("status", "must be active, inactive or discontinued")
	}
	res := s.db.WithContext(ctx).Model(&db.InventoryItem{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrItemNotFound
	}
	s.log.Info().Str("item", id).Str("status", string(status)).Msg("item status changed")
	return s.GetItem(ctx, id)
}

// RequestShopSync queues a shop sync for an item and marks it pending.
func (s *Service) RequestShopSync(ctx context.Context, id string) (*db.SyncTask, error) {
	var task db.SyncTask
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item db.InventoryItem
		if err := tx.Where("id = ?", id).Take(&item).Error; err != nil {
			return notFound(err, ErrItemNotFound)
		}
		kind := db.TaskProductUpdate
		if item.ShopifyProductID == "" {
			kind = db.TaskProductSync
		}
		if err := db.EnqueueSyncTask(tx, id, kind); err != nil {
			return err
		}
		if err := tx.Model(&db.InventoryItem{}).Where("id = ?", id).
			Updates(map[string]any{"shopify_enabled": true, "shopify_sync_status": "pending"}).Error; err != nil {
			return err
		}
		return tx.Where("inventory_item_id = ? AND kind = ? AND status = ?", id, kind, db.TaskPending).
			Order("task_id DESC").Take(&task).Error
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}
