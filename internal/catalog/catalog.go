// Package catalog manages inventory items, their supplier prices and the
// warehouses stock is kept in. Stock quantities themselves belong to the
// ledger; catalog only reads the summary the ledger maintains.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrItemNotFound      = fmt.Errorf("inventory item %w", apperr.ErrNotFound)
	ErrWarehouseNotFound = fmt.Errorf("warehouse %w", apperr.ErrNotFound)
	ErrSupplierNotFound  = fmt.Errorf("supplier price %w", apperr.ErrNotFound)
	ErrPartNotFound      = fmt.Errorf("project part %w", apperr.ErrNotFound)

	ErrSKUExists           = fmt.Errorf("%w: sku already exists", apperr.ErrConflict)
	ErrWarehouseCodeExists = fmt.Errorf("%w: warehouse code already exists for subsidiary", apperr.ErrConflict)
	ErrWarehouseHasStock   = fmt.Errorf("%w: warehouse still holds stock", apperr.ErrConflict)
)

type Service struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

func New(gdb *gorm.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  gdb,
		log: log.With().Str("component", "catalog").Logger(),
		now: time.Now,
	}
}

const (
	defaultLimit = 50
	maxLimit     = 500
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

func notFound(err error, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

// isUniqueViolation recognises duplicate key errors of the supported
// drivers without importing them.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

func normCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func validClassification(c db.Classification) bool {
	return c == db.ClassMaterial || c == db.ClassProduct
}

func validStatus(s db.ItemStatus) bool {
	return s == db.ItemActive || s == db.ItemInactive || s == db.ItemDiscontinued
}
