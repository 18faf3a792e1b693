package importer

import (
	"context"

	"github.com/bartek5186/stockhub/internal/db"
)

// markKatanaSynced records that the item's stock now matches the MRP
// export. An empty katanaID keeps the id already stored.
func (i *Importer) markKatanaSynced(ctx context.Context, itemID, katanaID string) error {
	upd := map[string]any{
		"katana_synced":         true,
		"katana_last_synced_at": i.now().UTC(),
	}
	if katanaID != "" {
		upd["katana_id"] = katanaID
	}
	return i.db.WithContext(ctx).Model(&db.InventoryItem{}).Where("id = ?", itemID).Updates(upd).Error
}

// History lists the most recent import files, newest first.
func (i *Importer) History(ctx context.Context, limit int) ([]db.ImportFile, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []db.ImportFile
	err := i.db.WithContext(ctx).Order("import_id DESC").Limit(limit).Find(&out).Error
	return out, err
}
