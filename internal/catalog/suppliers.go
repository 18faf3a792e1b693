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

type SupplierPriceInput struct {
	SupplierName string          `json:"supplierName"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	Currency     string          `json:"currency"`
	MinOrderQty  float64         `json:"minOrderQty"`
	LeadTimeDays int             `json:"leadTimeDays"`
	IsPreferred  bool            `json:"isPreferred"`
}

func (in *SupplierPriceInput) validate(itemCurrency string) error {
	f := apperr.Fields{}
	f.Require("supplierName", in.SupplierName)
	if in.UnitCost.IsNegative() {
		f.Add("unitCost", "must not be negative")
	}
	in.Currency = normCurrency(in.Currency)
	if in.Currency == "" {
		in.Currency = itemCurrency
	}
	if !validCurrency(in.Currency) {
		f.Add("currency", "must be a 3-letter ISO code")
	}
	if in.MinOrderQty < 0 {
		f.Add("minOrderQty", "must not be negative")
	}
	if in.LeadTimeDays < 0 {
		f.Add("leadTimeDays", "must not be negative")
	}
	return f.Err()
}

func (s *Service) ListSupplierPrices(ctx context.Context, itemID string) ([]db.SupplierPrice, error) {
	var out []db.SupplierPrice
	err := s.db.WithContext(ctx).
		Where("inventory_item_id = ?", itemID).
		Order("is_preferred DESC").Order("unit_cost ASC").
		Find(&out).Error
	return out, err
}

func (s *Service) AddSupplierPrice(ctx context.Context, itemID string, in SupplierPriceInput) (*db.SupplierPrice, error) {
	var sp db.SupplierPrice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item db.InventoryItem
		if err := tx.Where("id = ?", itemID).Take(&item).Error; err != nil {
			return notFound(err, ErrItemNotFound)
		}
		if err := in.validate(item.Currency); err != nil {
			return err
		}
		sp = db.SupplierPrice{
			InventoryItemID: itemID,
			SupplierName:    strings.TrimSpace(in.SupplierName),
			UnitCost:        in.UnitCost.Round(4),
			Currency:        in.Currency,
			MinOrderQty:     in.MinOrderQty,
			LeadTimeDays:    in.LeadTimeDays,
		}
		if err := tx.Create(&sp).Error; err != nil {
			return err
		}
		if in.IsPreferred {
			return s.preferTx(ctx, tx, &item, &sp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *Service) UpdateSupplierPrice(ctx context.Context, itemID, priceID string, in SupplierPriceInput) (*db.SupplierPrice, error) {
	var sp db.SupplierPrice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item db.InventoryItem
		if err := tx.Where("id = ?", itemID).Take(&item).Error; err != nil {
			return notFound(err, ErrItemNotFound)
		}
		if err := tx.Where("id = ? AND inventory_item_id = ?", priceID, itemID).Take(&sp).Error; err != nil {
			return notFound(err, ErrSupplierNotFound)
		}
		if err := in.validate(item.Currency); err != nil {
			return err
		}
		if err := tx.Model(&db.SupplierPrice{}).Where("id = ?", sp.ID).Updates(map[string]any{
			"supplier_name":  strings.TrimSpace(in.SupplierName),
			"unit_cost":      in.UnitCost.Round(4),
			"currency":       in.Currency,
			"min_order_qty":  in.MinOrderQty,
			"lead_time_days": in.LeadTimeDays,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", sp.ID).Take(&sp).Error; err != nil {
			return err
		}
		if in.IsPreferred && !sp.IsPreferred {
			return s.preferTx(ctx, tx, &item, &sp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *Service) RemoveSupplierPrice(ctx context.Context, itemID, priceID string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND inventory_item_id = ?", priceID, itemID).
		Delete(&db.SupplierPrice{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSupplierNotFound
	}
	return nil
}

// SetPreferredSupplier makes one supplier price the preferred one for the
// item and clears the flag on all others.
func (s *Service) SetPreferredSupplier(ctx context.Context, itemID, priceID string) (*db.SupplierPrice, error) {
	var sp db.SupplierPrice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item db.InventoryItem
		if err := tx.Where("id = ?", itemID).Take(&item).Error; err != nil {
			return notFound(err, ErrItemNotFound)
		}
		if err := tx.Where("id = ? AND inventory_item_id = ?", priceID, itemID).Take(&sp).Error; err != nil {
			return notFound(err, ErrSupplierNotFound)
		}
		return s.preferTx(ctx, tx, &item, &sp)
	})
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// preferTx flips the preferred flag. An item without a cost takes the
// preferred supplier's cost when the currencies match.
func (s *Service) preferTx(ctx context.Context, tx *gorm.DB, item *db.InventoryItem, sp *db.SupplierPrice) error {
	if err := tx.Model(&db.SupplierPrice{}).
		Where("inventory_item_id = ? AND id <> ?", item.ID, sp.ID).
		Update("is_preferred", false).Error; err != nil {
		return err
	}
	if err := tx.Model(&db.SupplierPrice{}).Where("id = ?", sp.ID).Update("is_preferred", true).Error; err != nil {
		return err
	}
	sp.IsPreferred = true

	if !item.UnitCost.IsZero() || sp.UnitCost.IsZero() || sp.Currency != item.Currency {
		return nil
	}
	if err := tx.Create(&db.CostHistoryEntry{
		InventoryItemID: item.ID,
		PreviousCost:    item.UnitCost,
		NewCost:         sp.UnitCost,
		Currency:        item.Currency,
		Source:          db.CostSourceSupplierPrice,
		Actor:           auth.ActorFromContext(ctx),
		CreatedAt:       s.now().UTC(),
	}).Error; err != nil {
		return err
	}
	return tx.Model(&db.InventoryItem{}).Where("id = ?", item.ID).Update("unit_cost", sp.UnitCost).Error
}
