package db

import (
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
)

// NextSequence increments the integer counter stored under key and returns
// the new value. The compare-and-swap update makes concurrent callers retry
// instead of handing out the same number twice.
func NextSequence(tx *gorm.DB, key string) (int64, error) {
	for attempt := 0; attempt < 10; attempt++ {
		var kv KV
		err := tx.Where("k = ?", key).Take(&kv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			res := tx.Create(&KV{K: key, V: "1"})
			if res.Error == nil {
				return 1, nil
			}
			// lost the race on insert, read again
			continue
		}
		if err != nil {
			return 0, err
		}

		cur, err := strconv.ParseInt(kv.V, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("kv %q holds non-integer %q", key, kv.V)
		}
		next := cur + 1
		res := tx.Model(&KV{}).
			Where("k = ? AND v = ?", key, kv.V).
			Update("v", strconv.FormatInt(next, 10))
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 1 {
			return next, nil
		}
	}
	return 0, fmt.Errorf("kv %q: too much contention", key)
}

func GetKV(tx *gorm.DB, key string) (string, bool, error) {
	var kv KV
	err := tx.Where("k = ?", key).Take(&kv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return kv.V, true, nil
}

func SetKV(tx *gorm.DB, key, value string) error {
	return tx.Save(&KV{K: key, V: value}).Error
}
