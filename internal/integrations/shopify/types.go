// internal/integrations/shopify/types.go
package shopify

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// body of POST /shopify/sync-product
type SyncProductRequest struct {
	InventoryItemID string          `json:"inventoryItemId"`
	SKU             string          `json:"sku"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	Quantity        float64         `json:"quantity"`
	Status          string          `json:"status"` // active | draft | archived
}

// body of POST /shopify/update-product
type UpdateProductRequest struct {
	InventoryItemID  string          `json:"inventoryItemId"`
	ShopifyProductID string          `json:"shopifyProductId"`
	ShopifyVariantID string          `json:"shopifyVariantId,omitempty"`
	Price            decimal.Decimal `json:"price"`
	Quantity         float64         `json:"quantity"`
	Status           string          `json:"status"`
}

type ProductResponse struct {
	Success          bool   `json:"success"`
	ShopifyProductID string `json:"shopifyProductId"`
	ShopifyVariantID string `json:"shopifyVariantId"`
	Message          string `json:"message,omitempty"`
	Error            string `json:"error,omitempty"`
}

// HTTPError is a non-2xx answer of the sync endpoint.
type HTTPError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.Status, e.Body)
}

// Retryable reports whether trying again later can help.
func (e *HTTPError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}
