package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity      = errors.New("quantity must be a positive number")
	ErrItemNotFound         = errors.New("inventory item not found")
	ErrWarehouseNotFound    = errors.New("warehouse not found")
	ErrWarehouseInactive    = errors.New("warehouse is inactive")
	ErrStockLevelNotFound   = errors.New("stock level not found")
	ErrInsufficientStock    = errors.New("insufficient available stock")
	ErrInsufficientReserved = errors.New("insufficient reserved stock")
	ErrSameWarehouse        = errors.New("source and destination warehouse are the same")
	ErrBelowReserved        = errors.New("on hand would drop below reserved quantity")
	ErrCurrencyMismatch     = errors.New("receipt currency differs from item currency")
	ErrInvalidCost          = errors.New("unit cost must not be negative")
)

// ShortfallError reports how much was missing. It matches ErrInsufficientStock
// or ErrInsufficientReserved through errors.Is.
type ShortfallError struct {
	Base      error
	Requested float64
	Available float64
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("%v: requested %g, available %g", e.Base, e.Requested, e.Available)
}

func (e *ShortfallError) Unwrap() error { return e.Base }

func (e *ShortfallError) Shortfall() float64 {
	if d := e.Requested - e.Available; d > 0 {
		return d
	}
	return 0
}
