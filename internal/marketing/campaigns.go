package marketing

import (
	"context"
	"strings"
	"time"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CampaignInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Channel     string          `json:"channel"`
	Objective   string          `json:"objective"`
	Budget      decimal.Decimal `json:"budget"`
	Spent       decimal.Decimal `json:"spent"`
	Currency    string          `json:"currency"`
	StartDate   *time.Time      `json:"startDate"`
	EndDate     *time.Time      `json:"endDate"`
	TargetSKUs  []string        `json:"targetSkus"`
}

type CampaignFilter struct {
	Status  string
	Channel string
	Query   string
	Limit   int
	Offset  int
}

// validate checks form rules; spent over budget is allowed.
func (in *CampaignInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if in.Status == "" {
		in.Status = StatusDraft
	}
	f := apperr.Fields{}
	f.Require("name", in.Name)
	if !oneOf(in.Status, campaignStatuses) {
		f.Add("status", "must be one of "+strings.Join(campaignStatuses, ", "))
	}
	if in.Budget.IsNegative() {
		f.Add("budget", "must not be negative")
	}
	if in.Spent.IsNegative() {
		f.Add("spent", "must not be negative")
	}
	if len(in.Currency) != 3 {
		f.Add("currency", "must be a 3-letter ISO code")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		f.Add("endDate", "must not be before startDate")
	}
	return f.Err()
}

func (in CampaignInput) columns() map[string]any {
	return map[string]any{
		"name":        in.Name,
		"description": in.Description,
		"status":      in.Status,
		"channel":     in.Channel,
		"objective":   in.Objective,
		"budget":      in.Budget.Round(2),
		"spent":       in.Spent.Round(2),
		"currency":    in.Currency,
		"start_date":  in.StartDate,
		"end_date":    in.EndDate,
		"target_skus": db.StringList(in.TargetSKUs),
	}
}

func (s *Service) CreateCampaign(ctx context.Context, in CampaignInput) (*db.MarketingCampaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	c := &db.MarketingCampaign{
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
		Channel:     in.Channel,
		Objective:   in.Objective,
		Budget:      in.Budget.Round(2),
		Spent:       in.Spent.Round(2),
		Currency:    in.Currency,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		TargetSKUs:  db.StringList(in.TargetSKUs),
		CreatedBy:   auth.ActorFromContext(ctx),
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	s.log.Info().Str("campaign", c.ID).Str("status", c.Status).Msg("campaign created")
	return c, nil
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*db.MarketingCampaign, error) {
	var c db.MarketingCampaign
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, notFound(err, ErrCampaignNotFound)
	}
	return &c, nil
}

// UpdateCampaign replaces the editable fields of a campaign.
func (s *Service) UpdateCampaign(ctx context.Context, id string, in CampaignInput) (*db.MarketingCampaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Model(&db.MarketingCampaign{}).Where("id = ?", id).Updates(in.columns())
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrCampaignNotFound
	}
	return s.GetCampaign(ctx, id)
}

func (s *Service) ListCampaigns(ctx context.Context, f CampaignFilter) ([]db.MarketingCampaign, int64, error) {
	q := s.db.WithContext(ctx).Model(&db.MarketingCampaign{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Channel != "" {
		q = q.Where("channel = ?", f.Channel)
	}
	if qs := strings.ToLower(strings.TrimSpace(f.Query)); qs != "" {
		like := "%" + qs + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit, offset := page(f.Limit, f.Offset)
	var out []db.MarketingCampaign
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

// DeleteCampaign removes the campaign and detaches its posts.
func (s *Service) DeleteCampaign(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&db.MarketingCampaign{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCampaignNotFound
		}
		return tx.Model(&db.SocialMediaPost{}).Where("campaign_id = ?", id).Update("campaign_id", "").Error
	})
}
