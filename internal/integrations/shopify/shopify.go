// internal/integrations/shopify/shopify.go
package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/integrations"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Config struct {
	BaseURL         string `json:"base_url"`        // https://<region>-<project>.cloudfunctions.net/api
	ServiceAccount  string `json:"service_account"` // token subject
	TokenSecret     string `json:"token_secret"`    // HS256 key shared with the endpoint
	TokenTTLMinutes int    `json:"token_ttl_minutes"`
	PollSec         int    `json:"poll_sec"`
	BatchSize       int    `json:"batch_size"`
	MaxAttempts     int    `json:"max_attempts"`
}

type Shop struct {
	log    zerolog.Logger
	cfg    Config
	db     *gorm.DB
	client *Client
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *Shop) Name() string { return "shopify" }

func (s *Shop) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.log.Info().Str("integration", s.Name()).Str("endpoint", s.cfg.BaseURL).Msg("start")

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	s.tick()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Str("integration", s.Name()).Msg("stop")
			return nil
		case <-ticker.C:
			s.tick()
			ticker.Reset(s.interval())
		}
	}
}

func (s *Shop) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Shop) interval() time.Duration {
	sec := s.cfg.PollSec
	if sec <= 0 {
		sec = 30
	}
	return time.Duration(sec) * time.Second
}

func (s *Shop) maxAttempts() int {
	if s.cfg.MaxAttempts <= 0 {
		return 5
	}
	return s.cfg.MaxAttempts
}

func (s *Shop) tick() {
	n, err := s.ProcessPending(s.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Str("integration", s.Name()).Msg("sync batch failed")
		return
	}
	if n > 0 {
		s.log.Info().Str("integration", s.Name()).Int("tasks", n).Msg("sync batch done")
	}
}

// ProcessPending runs one batch of pending sync tasks and returns how many
// it handled. Failures are recorded on the task and the item.
func (s *Shop) ProcessPending(ctx context.Context) (int, error) {
	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}
	var tasks []db.SyncTask
	if err := s.db.WithContext(ctx).
		Where("status = ? AND attempts < ?", db.TaskPending, s.maxAttempts()).
		Where("kind IN ?", []string{db.TaskProductSync, db.TaskProductUpdate}).
		Order("task_id ASC").Limit(batch).
		Find(&tasks).Error; err != nil {
		return 0, err
	}

	done := 0
	for _, t := range tasks {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		claimed, err := s.claim(ctx, &t)
		if err != nil {
			return done, err
		}
		if !claimed {
			continue
		}
		s.run(ctx, &t)
		done++
	}
	return done, nil
}

// claim bumps attempts only if nobody else did since the task was read.
func (s *Shop) claim(ctx context.Context, t *db.SyncTask) (bool, error) {
	res := s.db.WithContext(ctx).Model(&db.SyncTask{}).
		Where("task_id = ? AND status = ? AND attempts = ?", t.TaskID, db.TaskPending, t.Attempts).
		Update("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	t.Attempts++
	return res.RowsAffected == 1, nil
}

func (s *Shop) run(ctx context.Context, t *db.SyncTask) {
	log := s.log.With().Uint("task", t.TaskID).Str("kind", t.Kind).Str("item", t.InventoryItemID).Logger()

	var item db.InventoryItem
	err := s.db.WithContext(ctx).Where("id = ?", t.InventoryItemID).Take(&item).Error
	if err == nil {
		err = s.push(ctx, t, &item)
	}
	now := s.now().UTC()

	if err == nil {
		s.finish(ctx, t, db.TaskDone, "")
		log.Info().Str("sku", item.SKU).Msg("item synced to shop")
		return
	}

	status := db.TaskPending
	var he *HTTPError
	if errors.Is(err, gorm.ErrRecordNotFound) || (errors.As(err, &he) && !he.Retryable()) || t.Attempts >= s.maxAttempts() {
		status = db.TaskError
	}
	s.finish(ctx, t, status, err.Error())
	if item.ID != "" {
		if uerr := s.db.WithContext(ctx).Model(&db.InventoryItem{}).Where("id = ?", item.ID).
			Updates(map[string]any{
				"shopify_sync_status": "error",
				"shopify_last_error":  err.Error(),
				"updated_at":          now,
			}).Error; uerr != nil {
			log.Error().Err(uerr).Msg("cannot record sync error on item")
		}
	}
	log.Warn().Err(err).Int("attempts", t.Attempts).Str("status", status).Msg("shop sync failed")
}

func (s *Shop) push(ctx context.Context, t *db.SyncTask, item *db.InventoryItem) error {
	status := "active"
	if item.Status != db.ItemActive {
		status = "archived"
	}
	qty := item.TotalAvailable
	if qty < 0 {
		qty = 0
	}

	var (
		resp *ProductResponse
		err  error
	)
	if t.Kind == db.TaskProductUpdate && item.ShopifyProductID != "" {
		resp, err = s.client.UpdateProduct(ctx, UpdateProductRequest{
			InventoryItemID:  item.ID,
			ShopifyProductID: item.ShopifyProductID,
			ShopifyVariantID: item.ShopifyVariantID,
			Price:            item.SalePrice,
			Quantity:         qty,
			Status:           status,
		})
	} else {
		resp, err = s.client.SyncProduct(ctx, SyncProductRequest{
			InventoryItemID: item.ID,
			SKU:             item.SKU,
			Title:           item.Name,
			Description:     item.Description,
			Price:           item.SalePrice,
			Currency:        item.Currency,
			Quantity:        qty,
			Status:          status,
		})
	}
	if err != nil {
		return err
	}

	now := s.now().UTC()
	upd := map[string]any{
		"shopify_sync_status":    "synced",
		"shopify_last_error":     "",
		"shopify_last_synced_at": now,
		"updated_at":             now,
	}
	if resp.ShopifyProductID != "" {
		upd["shopify_product_id"] = resp.ShopifyProductID
	}
	if resp.ShopifyVariantID != "" {
		upd["shopify_variant_id"] = resp.ShopifyVariantID
	}
	return s.db.WithContext(ctx).Model(&db.InventoryItem{}).Where("id = ?", item.ID).Updates(upd).Error
}

func (s *Shop) finish(ctx context.Context, t *db.SyncTask, status, lastErr string) {
	if err := s.db.WithContext(ctx).Model(&db.SyncTask{}).Where("task_id = ?", t.TaskID).
		Updates(map[string]any{"status": status, "last_error": lastErr}).Error; err != nil {
		s.log.Error().Err(err).Uint("task", t.TaskID).Msg("cannot update task")
	}
	t.Status, t.LastError = status, lastErr
}

// New builds the integration directly; the registry uses factory.
func New(log zerolog.Logger, cfg Config, gdb *gorm.DB, hc *http.Client) (*Shop, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("shopify: base_url is required")
	}
	if cfg.TokenSecret == "" {
		return nil, errors.New("shopify: token_secret is required")
	}
	if gdb == nil {
		return nil, errors.New("shopify: database handle is required")
	}
	subject := cfg.ServiceAccount
	if subject == "" {
		subject = "stockhub-sync"
	}
	ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	return &Shop{
		log:    log,
		cfg:    cfg,
		db:     gdb,
		client: NewClient(cfg.BaseURL, hc, auth.NewSigner(cfg.TokenSecret, ""), subject, ttl),
		now:    time.Now,
	}, nil
}

func factory(log zerolog.Logger, raw json.RawMessage, deps integrations.Deps) (integrations.Integration, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("shopify config: %w", err)
	}
	return New(log, cfg, deps.DB, nil)
}

func init() {
	integrations.Register("shopify", factory)
}
