// Package events carries stock change notifications out of the ledger:
// to in-process subscribers (the HTTP stream) and optionally to Kafka or Redis.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const (
	KindStockChanged = "stock.changed"
	KindLowStock     = "stock.low"
)

type StockEvent struct {
	Kind            string    `json:"kind"`
	InventoryItemID string    `json:"inventoryItemId"`
	SKU             string    `json:"sku"`
	WarehouseID     string    `json:"warehouseId"`
	MovementID      string    `json:"movementId,omitempty"`
	MovementType    string    `json:"movementType,omitempty"`
	Quantity        float64   `json:"quantity"`
	OnHand          float64   `json:"onHand"`
	Reserved        float64   `json:"reserved"`
	Available       float64   `json:"available"`
	ReorderPoint    float64   `json:"reorderPoint,omitempty"`
	ReferenceType   string    `json:"referenceType,omitempty"`
	ReferenceID     string    `json:"referenceId,omitempty"`
	Actor           string    `json:"actor,omitempty"`
	At              time.Time `json:"at"`
}

// Key groups events of one stock level, used as the Kafka message key.
func (e StockEvent) Key() string {
	return e.InventoryItemID + ":" + e.WarehouseID
}

type Publisher interface {
	Publish(ctx context.Context, evts ...StockEvent) error
	Close() error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evts ...StockEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, evts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to the logger at debug level.
type Log struct {
	L zerolog.Logger
}

func (l Log) Publish(_ context.Context, evts ...StockEvent) error {
	for _, e := range evts {
		l.L.Debug().
			Str("kind", e.Kind).
			Str("item", e.InventoryItemID).
			Str("warehouse", e.WarehouseID).
			Str("movement", e.MovementType).
			Float64("qty", e.Quantity).
			Float64("available", e.Available).
			Msg("stock event")
	}
	return nil
}

func (Log) Close() error { return nil }

// Nop drops everything.
type Nop struct{}

func (Nop) Publish(context.Context, ...StockEvent) error { return nil }
func (Nop) Close() error                                 { return nil }
