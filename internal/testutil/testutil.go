// Package testutil opens migrated in-memory databases and seeds fixtures
// for package tests.
package testutil

import (
	"testing"

	"github.com/bartek5186/stockhub/internal/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// DB returns a fresh migrated in-memory database closed at test cleanup.
func DB(t testing.TB) *gorm.DB {
	t.Helper()
	h, err := db.OpenMemory()
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })
	return h.DB
}

// Item inserts an active item. Zero fields get usable defaults.
func Item(t testing.TB, gdb *gorm.DB, it db.InventoryItem) *db.InventoryItem {
	t.Helper()
	if it.SKU == "" {
		it.SKU = "TST-" + it.Name
	}
	if it.Name == "" {
		it.Name = it.SKU
	}
	if it.Classification == "" {
		it.Classification = db.ClassMaterial
	}
	if it.Status == "" {
		it.Status = db.ItemActive
	}
	if it.Currency == "" {
		it.Currency = "USD"
	}
	if it.Unit == "" {
		it.Unit = "pcs"
	}
	require.NoError(t, gdb.Create(&it).Error)
	return &it
}

// Warehouse inserts an active warehouse with the given code.
func Warehouse(t testing.TB, gdb *gorm.DB, code string) *db.Warehouse {
	t.Helper()
	wh := db.Warehouse{Code: code, Name: "Warehouse " + code, Type: db.WarehouseMain, IsActive: true}
	require.NoError(t, gdb.Create(&wh).Error)
	return &wh
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
