package catalog

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/bartek5186/stockhub/internal/db"
	"gorm.io/gorm"
)

// SKUPrefix builds "<CLS>-<CAT>": MAT or PRD, then up to three upper-cased
// alphanumerics of the category, GEN when it has none.
func SKUPrefix(cls db.Classification, category string) string {
	c := "MAT"
	if cls == db.ClassProduct {
		c = "PRD"
	}
	var b strings.Builder
	for _, r := range category {
		if b.Len() == 3 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	cat := b.String()
	if cat == "" {
		cat = "GEN"
	}
	return c + "-" + cat
}

// nextSKU draws numbers from the prefix counter until it finds one that no
// item uses yet (manual SKUs may sit on the same pattern).
func nextSKU(tx *gorm.DB, cls db.Classification, category string) (string, error) {
	prefix := SKUPrefix(cls, category)
	for i := 0; i < 1000; i++ {
		n, err := db.NextSequence(tx, "sku:"+prefix)
		if err != nil {
			return "", fmt.Errorf("sku sequence: %w", err)
		}
		sku := fmt.Sprintf("%s-%05d", prefix, n)
		taken, err := skuTaken(tx, sku)
		if err != nil {
			return "", err
		}
		if !taken {
			return sku, nil
		}
	}
	return "", fmt.Errorf("no free sku for prefix %s", prefix)
}

func skuTaken(tx *gorm.DB, sku string) (bool, error) {
	var n int64
	err := tx.Model(&db.InventoryItem{}).Where("sku = ?", sku).Count(&n).Error
	return n > 0, err
}

func normSKU(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
