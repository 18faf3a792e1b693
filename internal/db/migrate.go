package db

import (
	"fmt"
)

// Migrate creates/updates the schema.
//  1. AutoMigrate all tables
//  2. postgres only: CHECK constraints guarding the stock invariants
func (h *Handle) Migrate() error {
	gdb := h.DB

	if err := gdb.AutoMigrate(
		&InventoryItem{},
		&SupplierPrice{},
		&Warehouse{},
		&StockLevel{},
		&StockMovement{},
		&CostHistoryEntry{},
		&ProjectPart{},
		&MarketingCampaign{},
		&SocialMediaPost{},
		&ContentTemplate{},
		&ImportFile{},
		&SyncTask{},
		&KV{},
	); err != nil {
		return fmt.Errorf("AutoMigrate error: %w", err)
	}

	if gdb.Dialector.Name() != "postgres" {
		return nil
	}

	checks := []struct{ table, name, expr string }{
		{"stock_levels", "chk_stock_levels_non_negative",
			"quantity_on_hand >= 0 AND quantity_reserved >= 0 AND quantity_available >= 0"},
		{"stock_levels", "chk_stock_levels_available",
			"quantity_available = quantity_on_hand - quantity_reserved"},
		{"stock_movements", "chk_stock_movements_type",
			"type IN ('receipt','consumption','reservation','release','transfer','adjustment')"},
		{"inventory_items", "chk_inventory_items_classification",
			"classification IN ('material','product')"},
		{"inventory_items", "chk_inventory_items_cost_non_negative",
			"unit_cost >= 0"},
	}
	for _, c := range checks {
		if err := gdb.Exec(fmt.Sprintf(`
ALTER TABLE %s
	DROP CONSTRAINT IF EXISTS %s,
	ADD CONSTRAINT %s CHECK (%s);
`, c.table, c.name, c.name, c.expr)).Error; err != nil {
			return fmt.Errorf("create %s: %w", c.name, err)
		}
	}
	return nil
}
