package db

import "gorm.io/gorm"

// EnqueueSyncTask adds a pending shop sync task unless an identical one is
// already waiting.
func EnqueueSyncTask(tx *gorm.DB, itemID, kind string) error {
	var n int64
	if err := tx.Model(&SyncTask{}).
		Where("inventory_item_id = ? AND kind = ? AND status = ?", itemID, kind, TaskPending).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return tx.Create(&SyncTask{Kind: kind, InventoryItemID: itemID, Status: TaskPending}).Error
}
