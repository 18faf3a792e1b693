package marketing

import (
	"context"

	"github.com/bartek5186/stockhub/internal/db"
	"github.com/shopspring/decimal"
)

// Summary is the analytics overview of the marketing module. Budget
// totals are summed per currency.
type Summary struct {
	Campaigns         int64                      `json:"campaigns"`
	CampaignsByStatus map[string]int64           `json:"campaignsByStatus"`
	Budget            map[string]decimal.Decimal `json:"budget"`
	Spent             map[string]decimal.Decimal `json:"spent"`
	Posts             int64                      `json:"posts"`
	PostsByStatus     map[string]int64           `json:"postsByStatus"`
	PostsByPlatform   map[string]int64           `json:"postsByPlatform"`
	UpcomingPosts     int64                      `json:"upcomingPosts"`
}

type groupCount struct {
	Grp string
	N   int64
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	gdb := s.db.WithContext(ctx)
	out := &Summary{
		CampaignsByStatus: map[string]int64{},
		Budget:            map[string]decimal.Decimal{},
		Spent:             map[string]decimal.Decimal{},
		PostsByStatus:     map[string]int64{},
		PostsByPlatform:   map[string]int64{},
	}

	var rows []groupCount
	if err := gdb.Model(&db.MarketingCampaign{}).
		Select("status AS grp, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.CampaignsByStatus[r.Grp] = r.N
		out.Campaigns += r.N
	}

	// decimals are summed in Go so every driver rounds the same way
	var money []db.MarketingCampaign
	if err := gdb.Select("currency", "budget", "spent").Find(&money).Error; err != nil {
		return nil, err
	}
	for _, c := range money {
		out.Budget[c.Currency] = out.Budget[c.Currency].Add(c.Budget)
		out.Spent[c.Currency] = out.Spent[c.Currency].Add(c.Spent)
	}

	rows = nil
	if err := gdb.Model(&db.SocialMediaPost{}).
		Select("status AS grp, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.PostsByStatus[r.Grp] = r.N
		out.Posts += r.N
	}

	rows = nil
	if err := gdb.Model(&db.SocialMediaPost{}).
		Select("platform AS grp, COUNT(*) AS n").Group("platform").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.PostsByPlatform[r.Grp] = r.N
	}

	if err := gdb.Model(&db.SocialMediaPost{}).
		Where("status = ? AND scheduled_at >= ?", PostScheduled, s.now().UTC()).
		Count(&out.UpcomingPosts).Error; err != nil {
		return nil, err
	}
	return out, nil
}
