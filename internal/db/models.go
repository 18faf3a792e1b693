// internal/db/models.go
package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrImmutable is returned when code tries to update or delete an
// append-only record (stock movements, cost history).
var ErrImmutable = errors.New("record is append-only")

type Classification string

const (
	ClassMaterial Classification = "material"
	ClassProduct  Classification = "product"
)

type ItemStatus string

const (
	ItemActive       ItemStatus = "active"
	ItemInactive     ItemStatus = "inactive"
	ItemDiscontinued ItemStatus = "discontinued"
)

// inventory_items
type InventoryItem struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	SKU            string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"sku"`
	Name           string         `gorm:"not null" json:"name"`
	Description    string         `gorm:"type:text" json:"description"`
	Classification Classification `gorm:"type:varchar(16);not null;index" json:"classification"`
	Category       string         `gorm:"index" json:"category"`
	Status         ItemStatus     `gorm:"type:varchar(16);not null;default:active;index" json:"status"`

	UnitCost  decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0" json:"unitCost"`
	SalePrice decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0" json:"salePrice"`
	Currency  string          `gorm:"type:char(3);not null;default:'USD'" json:"currency"`
	Unit      string          `gorm:"type:varchar(16);not null;default:'pcs'" json:"unit"`

	// stock summary, recomputed from stock_levels by the ledger
	TotalOnHand    float64 `gorm:"not null;default:0" json:"totalOnHand"`
	TotalReserved  float64 `gorm:"not null;default:0" json:"totalReserved"`
	TotalAvailable float64 `gorm:"not null;default:0" json:"totalAvailable"`
	ReorderPoint   float64 `gorm:"not null;default:0" json:"reorderPoint"`

	KatanaID           string     `gorm:"index" json:"katanaId,omitempty"`
	KatanaSynced       bool       `gorm:"not null;default:false" json:"katanaSynced"`
	KatanaLastSyncedAt *time.Time `json:"katanaLastSyncedAt,omitempty"`

	ShopifyEnabled      bool       `gorm:"not null;default:false" json:"shopifyEnabled"`
	ShopifyProductID    string     `gorm:"index" json:"shopifyProductId,omitempty"`
	ShopifyVariantID    string     `json:"shopifyVariantId,omitempty"`
	ShopifySyncStatus   string     `gorm:"type:varchar(16)" json:"shopifySyncStatus,omitempty"` // pending/synced/error
	ShopifyLastSyncedAt *time.Time `json:"shopifyLastSyncedAt,omitempty"`
	ShopifyLastError    string     `gorm:"type:text" json:"shopifyLastError,omitempty"`

	LinkedMaterialID string     `gorm:"type:varchar(36)" json:"linkedMaterialId,omitempty"`
	LinkedProjectIDs StringList `gorm:"type:text" json:"linkedProjectIds"`

	SupplierPrices []SupplierPrice `gorm:"foreignKey:InventoryItemID" json:"supplierPrices,omitempty"`

	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// supplier_prices
type SupplierPrice struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	InventoryItemID string          `gorm:"type:varchar(36);not null;index" json:"inventoryItemId"`
	SupplierName    string          `gorm:"not null" json:"supplierName"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0" json:"unitCost"`
	Currency        string          `gorm:"type:char(3);not null" json:"currency"`
	MinOrderQty     float64         `gorm:"not null;default:0" json:"minOrderQty"`
	LeadTimeDays    int             `gorm:"not null;default:0" json:"leadTimeDays"`
	IsPreferred     bool            `gorm:"not null;default:false" json:"isPreferred"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

type WarehouseType string

const (
	WarehouseMain      WarehouseType = "main"
	WarehouseSatellite WarehouseType = "satellite"
	WarehouseTransit   WarehouseType = "transit"
	WarehouseVirtual   WarehouseType = "virtual"
)

// warehouses
type Warehouse struct {
	ID           string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	SubsidiaryID string        `gorm:"type:varchar(64);not null;default:'';uniqueIndex:ux_warehouses_subsidiary_code" json:"subsidiaryId"`
	Code         string        `gorm:"type:varchar(32);not null;uniqueIndex:ux_warehouses_subsidiary_code" json:"code"`
	Name         string        `gorm:"not null" json:"name"`
	Type         WarehouseType `gorm:"type:varchar(16);not null;default:main" json:"type"`
	Address      string        `gorm:"type:text" json:"address"`
	IsActive     bool          `gorm:"not null;default:true;index" json:"isActive"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

// stock_levels: one row per (item, warehouse)
type StockLevel struct {
	ID                string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	InventoryItemID   string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_stock_levels_item_warehouse" json:"inventoryItemId"`
	WarehouseID       string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_stock_levels_item_warehouse;index" json:"warehouseId"`
	SKU               string    `gorm:"type:varchar(64);index" json:"sku"`
	ItemName          string    `json:"itemName"`
	WarehouseName     string    `json:"warehouseName"`
	QuantityOnHand    float64   `gorm:"not null;default:0" json:"quantityOnHand"`
	QuantityReserved  float64   `gorm:"not null;default:0" json:"quantityReserved"`
	QuantityAvailable float64   `gorm:"not null;default:0" json:"quantityAvailable"`
	ReorderPoint      float64   `gorm:"not null;default:0" json:"reorderPoint"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

type MovementType string

const (
	MovementReceipt     MovementType = "receipt"
	MovementConsumption MovementType = "consumption"
	MovementReservation MovementType = "reservation"
	MovementRelease     MovementType = "release"
	MovementTransfer    MovementType = "transfer"
	MovementAdjustment  MovementType = "adjustment"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementReceipt, MovementConsumption, MovementReservation,
		MovementRelease, MovementTransfer, MovementAdjustment:
		return true
	}
	return false
}

// stock_movements (append-only)
type StockMovement struct {
	ID                     string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	StockLevelID           string       `gorm:"type:varchar(36);not null;index" json:"stockLevelId"`
	InventoryItemID        string       `gorm:"type:varchar(36);not null;index:ix_movements_item_created" json:"inventoryItemId"`
	WarehouseID            string       `gorm:"type:varchar(36);not null;index" json:"warehouseId"`
	Type                   MovementType `gorm:"type:varchar(16);not null;index" json:"type"`
	Quantity               float64      `gorm:"not null" json:"quantity"` // signed
	OnHandBefore           float64      `gorm:"not null" json:"onHandBefore"`
	OnHandAfter            float64      `gorm:"not null" json:"onHandAfter"`
	ReservedAfter          float64      `gorm:"not null" json:"reservedAfter"`
	ReferenceType          string       `gorm:"type:varchar(32);index:ix_movements_reference" json:"referenceType,omitempty"`
	ReferenceID            string       `gorm:"type:varchar(64);index:ix_movements_reference" json:"referenceId,omitempty"`
	CounterpartWarehouseID string       `gorm:"type:varchar(36)" json:"counterpartWarehouseId,omitempty"`
	Reason                 string       `gorm:"type:text" json:"reason,omitempty"`
	Actor                  string       `gorm:"type:varchar(64)" json:"actor"`
	CreatedAt              time.Time    `gorm:"not null;index:ix_movements_item_created" json:"createdAt"`
}

func (m *StockMovement) BeforeUpdate(*gorm.DB) error { return ErrImmutable }
func (m *StockMovement) BeforeDelete(*gorm.DB) error { return ErrImmutable }

type CostSource string

const (
	CostSourceManual        CostSource = "manual"
	CostSourceReceipt       CostSource = "purchase_order_receipt"
	CostSourceSupplierPrice CostSource = "supplier_price"
	CostSourceImport        CostSource = "import"
)

// cost_history (append-only)
type CostHistoryEntry struct {
	ID               string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	InventoryItemID  string          `gorm:"type:varchar(36);not null;index" json:"inventoryItemId"`
	PreviousCost     decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"previousCost"`
	NewCost          decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"newCost"`
	Currency         string          `gorm:"type:char(3);not null" json:"currency"`
	Source           CostSource      `gorm:"type:varchar(32);not null" json:"source"`
	PurchaseOrderRef string          `gorm:"type:varchar(64)" json:"purchaseOrderRef,omitempty"`
	QuantityReceived float64         `gorm:"not null;default:0" json:"quantityReceived,omitempty"`
	Actor            string          `gorm:"type:varchar(64)" json:"actor"`
	CreatedAt        time.Time       `gorm:"not null;index" json:"createdAt"`
}

func (CostHistoryEntry) TableName() string { return "cost_history" }

func (e *CostHistoryEntry) BeforeUpdate(*gorm.DB) error { return ErrImmutable }
func (e *CostHistoryEntry) BeforeDelete(*gorm.DB) error { return ErrImmutable }

// project_parts: parts of design projects that can be promoted to inventory items
type ProjectPart struct {
	ID               string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProjectID        string          `gorm:"type:varchar(36);not null;index" json:"projectId"`
	Name             string          `gorm:"not null" json:"name"`
	Category         string          `json:"category"`
	Classification   Classification  `gorm:"type:varchar(16);not null;default:product" json:"classification"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0" json:"unitCost"`
	Currency         string          `gorm:"type:char(3);not null;default:'USD'" json:"currency"`
	LinkedMaterialID string          `gorm:"type:varchar(36)" json:"linkedMaterialId,omitempty"`
	PromotedItemID   string          `gorm:"type:varchar(36);index" json:"promotedItemId,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// import_files: processed stock export files
type ImportFile struct {
	ImportID    uint       `gorm:"primaryKey;column:import_id" json:"importId"`
	Filename    string     `gorm:"uniqueIndex" json:"filename"`
	ExportID    string     `gorm:"index" json:"exportId"`
	SHA256      string     `gorm:"uniqueIndex" json:"sha256"`
	SizeBytes   int64      `json:"sizeBytes"`
	Status      int        `gorm:"index" json:"status"` // 0=pending, 1=done, 2=error
	Applied     int        `json:"applied"`
	Skipped     int        `json:"skipped"`
	LastError   string     `gorm:"type:text" json:"lastError,omitempty"`
	ReceivedAt  time.Time  `gorm:"autoCreateTime" json:"receivedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

const (
	ImportPending = 0
	ImportDone    = 1
	ImportError   = 2
)

// sync_tasks: shop sync queue
type SyncTask struct {
	TaskID          uint      `gorm:"primaryKey;column:task_id" json:"taskId"`
	Kind            string    `gorm:"index" json:"kind"` // product.sync, product.update
	InventoryItemID string    `gorm:"type:varchar(36);index" json:"inventoryItemId"`
	Status          string    `gorm:"index;default:pending" json:"status"` // pending/done/error
	Attempts        int       `gorm:"not null;default:0" json:"attempts"`
	LastError       string    `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

const (
	TaskProductSync   = "product.sync"
	TaskProductUpdate = "product.update"

	TaskPending = "pending"
	TaskDone    = "done"
	TaskError   = "error"
)

// kv: counters and small state
type KV struct {
	K string `gorm:"primaryKey"`
	V string
}

func (KV) TableName() string { return "kv" }

// ids are generated client-side so every driver behaves the same
func (m *InventoryItem) BeforeCreate(*gorm.DB) error    { m.ID = ensureID(m.ID); return nil }
func (m *SupplierPrice) BeforeCreate(*gorm.DB) error    { m.ID = ensureID(m.ID); return nil }
func (m *Warehouse) BeforeCreate(*gorm.DB) error        { m.ID = ensureID(m.ID); return nil }
func (m *StockLevel) BeforeCreate(*gorm.DB) error       { m.ID = ensureID(m.ID); return nil }
func (m *StockMovement) BeforeCreate(*gorm.DB) error    { m.ID = ensureID(m.ID); return nil }
func (m *CostHistoryEntry) BeforeCreate(*gorm.DB) error { m.ID = ensureID(m.ID); return nil }
func (m *ProjectPart) BeforeCreate(*gorm.DB) error      { m.ID = ensureID(m.ID); return nil }

func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}
