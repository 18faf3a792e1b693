package ledger

import (
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/shopspring/decimal"
)

// Reference ties a movement to the document that caused it
// (purchase order, sales order, project, import file...).
type Reference struct {
	Type string `json:"type,omitempty"`
	ID   string `json:"id,omitempty"`
}

type ReceiveInput struct {
	ItemID      string
	WarehouseID string
	Quantity    float64
	Reference   Reference
	Reason      string

	// optional: when UnitCost is set the item's average cost is recomputed
	UnitCost         *decimal.Decimal
	LandedCost       decimal.Decimal // total extra cost of this receipt (freight, duty)
	Currency         string
	PurchaseOrderRef string
}

type ReserveInput struct {
	ItemID      string
	WarehouseID string
	Quantity    float64
	Reference   Reference
}

// ReserveResult is returned for both outcomes; an insufficient quantity is
// not an error.
type ReserveResult struct {
	Success    bool           `json:"success"`
	Requested  float64        `json:"requested"`
	Available  float64        `json:"available"`
	Shortfall  float64        `json:"shortfall"`
	MovementID string         `json:"movementId,omitempty"`
	Level      *db.StockLevel `json:"stockLevel,omitempty"`
}

type MoveInput struct {
	ItemID      string
	WarehouseID string
	Quantity    float64
	Reference   Reference
	Reason      string
}

type ConsumeInput struct {
	MoveInput
	// FromReserved consumes a previous reservation; otherwise the quantity
	// is taken from available stock.
	FromReserved bool
}

type TransferInput struct {
	ItemID          string
	FromWarehouseID string
	ToWarehouseID   string
	Quantity        float64
	Reference       Reference
	Reason          string
}

type TransferResult struct {
	From *db.StockLevel `json:"from"`
	To   *db.StockLevel `json:"to"`
}

type AdjustInput struct {
	ItemID      string
	WarehouseID string
	Delta       float64
	Reason      string
	Reference   Reference
}

type CountInput struct {
	ItemID      string
	WarehouseID string
	Counted     float64
	Reason      string
	Reference   Reference
}

type CostReceiptInput struct {
	ItemID           string
	ReceivedQuantity float64
	UnitCost         decimal.Decimal
	LandedCost       decimal.Decimal
	Currency         string
	PurchaseOrderRef string
}

type CostUpdate struct {
	PreviousCost      decimal.Decimal `json:"previousCost"`
	NewCost           decimal.Decimal `json:"newCost"`
	EffectiveUnitCost decimal.Decimal `json:"effectiveUnitCost"`
	ExistingQuantity  float64         `json:"existingQuantity"`
	Currency          string          `json:"currency"`
	HistoryID         string          `json:"historyId"`
}

type LevelFilter struct {
	ItemID       string
	WarehouseID  string
	LowStockOnly bool
	Limit        int
	Offset       int
}

type MovementFilter struct {
	ItemID        string
	WarehouseID   string
	Type          db.MovementType
	ReferenceType string
	ReferenceID   string
	Limit         int
	Offset        int
}
