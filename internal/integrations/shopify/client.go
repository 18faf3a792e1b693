// internal/integrations/shopify/client.go
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bartek5186/stockhub/internal/auth"
)

const userAgent = "stockhub-sync/1.0"

// Client calls the shop sync endpoints with a short-lived bearer ID token
// minted for the service account.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *auth.Signer
	subject string
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewClient(baseURL string, hc *http.Client, signer *auth.Signer, subject string, ttl time.Duration) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		signer:  signer,
		subject: subject,
		ttl:     ttl,
		now:     time.Now,
	}
}

// idToken reuses the current token until a minute before it expires.
func (c *Client) idToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.token != "" && now.Add(time.Minute).Before(c.expires) {
		return c.token, nil
	}
	tok, err := c.signer.Issue(c.subject, auth.RoleSystem, c.ttl)
	if err != nil {
		return "", fmt.Errorf("mint id token: %w", err)
	}
	c.token, c.expires = tok, now.Add(c.ttl)
	return tok, nil
}

func (c *Client) SyncProduct(ctx context.Context, req SyncProductRequest) (*ProductResponse, error) {
	return c.post(ctx, "/shopify/sync-product", req)
}

func (c *Client) UpdateProduct(ctx context.Context, req UpdateProductRequest) (*ProductResponse, error) {
	return c.post(ctx, "/shopify/update-product", req)
}

func (c *Client) post(ctx context.Context, path string, body any) (*ProductResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	tok, err := c.idToken()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
		}
		return nil, &HTTPError{Endpoint: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out ProductResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", path, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		if msg == "" {
			msg = "unsuccessful response"
		}
		return &out, errors.New(path + ": " + msg)
	}
	return &out, nil
}
