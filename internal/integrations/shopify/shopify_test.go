package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/integrations"
	"github.com/bartek5186/stockhub/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type fakeEndpoint struct {
	mu       sync.Mutex
	calls    []string
	bodies   []map[string]any
	status   int
	response ProductResponse
}

func (f *fakeEndpoint) handler(t *testing.T) http.Handler {
	signer := auth.NewSigner(secret, "")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := signer.Parse(tok)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "sync-bot", claims.Subject)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		f.calls = append(f.calls, r.URL.Path)
		f.bodies = append(f.bodies, body)
		status, resp := f.status, f.response
		f.mu.Unlock()

		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

func setup(t *testing.T, ep *fakeEndpoint) (*Shop, *db.InventoryItem) {
	t.Helper()
	srv := httptest.NewServer(ep.handler(t))
	t.Cleanup(srv.Close)

	gdb := testutil.DB(t)
	shop, err := New(zerolog.Nop(), Config{
		BaseURL:        srv.URL + "/",
		ServiceAccount: "sync-bot",
		TokenSecret:    secret,
		MaxAttempts:    2,
	}, gdb, srv.Client())
	require.NoError(t, err)

	item := testutil.Item(t, gdb, db.InventoryItem{
		SKU: "PRD-LAM-00001", Name: "Desk lamp", Classification: db.ClassProduct,
		SalePrice: decimal.RequireFromString("49.90"), TotalAvailable: 7, ShopifyEnabled: true,
	})
	require.NoError(t, gdb.Create(&db.SyncTask{Kind: db.TaskProductSync, InventoryItemID: item.ID, Status: db.TaskPending}).Error)
	return shop, item
}

func TestProcessPending_SyncsNewProduct(t *testing.T) {
	ep := &fakeEndpoint{response: ProductResponse{Success: true, ShopifyProductID: "gid://p/1", ShopifyVariantID: "gid://v/1"}}
	shop, item := setup(t, ep)

	n, err := shop.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Equal(t, []string{"/shopify/sync-product"}, ep.calls)
	assert.Equal(t, "PRD-LAM-00001", ep.bodies[0]["sku"])
	assert.Equal(t, "Desk lamp", ep.bodies[0]["title"])
	assert.Equal(t, "49.9", ep.bodies[0]["price"])
	assert.Equal(t, 7.0, ep.bodies[0]["quantity"])

	var got db.InventoryItem
	require.NoError(t, shop.db.Where("id = ?", item.ID).Take(&got).Error)
	assert.Equal(t, "gid://p/1", got.ShopifyProductID)
	assert.Equal(t, "gid://v/1", got.ShopifyVariantID)
	assert.Equal(t, "synced", got.ShopifySyncStatus)
	assert.NotNil(t, got.ShopifyLastSyncedAt)

	var task db.SyncTask
	require.NoError(t, shop.db.Take(&task).Error)
	assert.Equal(t, db.TaskDone, task.Status)
	assert.Equal(t, 1, task.Attempts)

	// nothing left
	n, err = shop.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessPending_UpdatesLinkedProduct(t *testing.T) {
	ep := &fakeEndpoint{response: ProductResponse{Success: true}}
	shop, item := setup(t, ep)
	require.NoError(t, shop.db.Model(&db.InventoryItem{}).Where("id = ?", item.ID).
		Updates(map[string]any{"shopify_product_id": "gid://p/9"}).Error)
	require.NoError(t, shop.db.Model(&db.SyncTask{}).Where("1 = 1").Update("kind", db.TaskProductUpdate).Error)

	_, err := shop.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"/shopify/update-product"}, ep.calls)
	assert.Equal(t, "gid://p/9", ep.bodies[0]["shopifyProductId"])

	var got db.InventoryItem
	require.NoError(t, shop.db.Where("id = ?", item.ID).Take(&got).Error)
	assert.Equal(t, "gid://p/9", got.ShopifyProductID)
}

func TestProcessPending_RetriesServerErrorsThenGivesUp(t *testing.T) {
	ep := &fakeEndpoint{status: http.StatusBadGateway}
	shop, item := setup(t, ep)

	_, err := shop.ProcessPending(context.Background())
	require.NoError(t, err)
	var task db.SyncTask
	require.NoError(t, shop.db.Take(&task).Error)
	assert.Equal(t, db.TaskPending, task.Status)
	assert.Contains(t, task.LastError, "http 502")

	_, err = shop.ProcessPending(context.Background())
	require.NoError(t, err)
	require.NoError(t, shop.db.Take(&task).Error)
	assert.Equal(t, db.TaskError, task.Status)
	assert.Equal(t, 2, task.Attempts)

	var got db.InventoryItem
	require.NoError(t, shop.db.Where("id = ?", item.ID).Take(&got).Error)
	assert.Equal(t, "error", got.ShopifySyncStatus)
	assert.Contains(t, got.ShopifyLastError, "boom")
}

func TestProcessPending_ClientErrorIsFinal(t *testing.T) {
	ep := &fakeEndpoint{status: http.StatusBadRequest}
	shop, _ := setup(t, ep)

	_, err := shop.ProcessPending(context.Background())
	require.NoError(t, err)
	var task db.SyncTask
	require.NoError(t, shop.db.Take(&task).Error)
	assert.Equal(t, db.TaskError, task.Status)
	assert.Equal(t, 1, task.Attempts)
}

func TestClient_ReusesToken(t *testing.T) {
	var (
		mu     sync.Mutex
		tokens = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokens[r.Header.Get("Authorization")]++
		mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true,"shopifyProductId":"1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), auth.NewSigner(secret, ""), "sync-bot", 0)
	for i := 0; i < 3; i++ {
		resp, err := c.SyncProduct(context.Background(), SyncProductRequest{SKU: "X"})
		require.NoError(t, err)
		assert.Equal(t, "1", resp.ShopifyProductID)
	}
	assert.Len(t, tokens, 1)
}

func TestClient_UnsuccessfulBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"sku taken"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), auth.NewSigner(secret, ""), "sync-bot", 0)
	_, err := c.SyncProduct(context.Background(), SyncProductRequest{SKU: "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sku taken")
}

func TestFactoryRegistered(t *testing.T) {
	f, ok := integrations.Get("shopify")
	require.True(t, ok)

	_, err := f(zerolog.Nop(), json.RawMessage(`{"base_url":""}`), integrations.Deps{})
	assert.Error(t, err)

	inst, err := f(zerolog.Nop(), json.RawMessage(`{"base_url":"http://x","token_secret":"s"}`),
		integrations.Deps{DB: testutil.DB(t)})
	require.NoError(t, err)
	assert.Equal(t, "shopify", inst.Name())
}
