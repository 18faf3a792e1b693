package marketing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/db"
	"gorm.io/gorm"
)

type PostInput struct {
	CampaignID  string     `json:"campaignId"`
	TemplateID  string     `json:"templateId"`
	Platform    string     `json:"platform"`
	Content     string     `json:"content"`
	MediaURLs   []string   `json:"mediaUrls"`
	Hashtags    []string   `json:"hashtags"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

type PostFilter struct {
	CampaignID string
	Platform   string
	Status     string
	From, To   *time.Time
	Limit      int
	Offset     int
}

// CalendarDay groups the posts scheduled on one day (UTC).
type CalendarDay struct {
	Date  string               `json:"date"`
	Posts []db.SocialMediaPost `json:"posts"`
}

func (in *PostInput) validate(tx *gorm.DB) error {
	in.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
	in.Content = strings.TrimSpace(in.Content)
	if in.Status == "" {
		in.Status = PostDraft
		if in.ScheduledAt != nil {
			in.Status = PostScheduled
		}
	}
	in.Hashtags = normHashtags(in.Hashtags)

	f := apperr.Fields{}
	limit, ok := platformLimits[in.Platform]
	if !ok {
		f.Add("platform", "must be one of "+strings.Join(Platforms(), ", "))
	}
	f.Require("content", in.Content)
	if ok && utf8.RuneCountInString(in.Content) > limit {
		f.Add("content", fmt.Sprintf("exceeds %d characters for %s", limit, in.Platform))
	}
	if !oneOf(in.Status, postStatuses) {
		f.Add("status", "must be one of "+strings.Join(postStatuses, ", "))
	}
	if in.Status == PostScheduled && in.ScheduledAt == nil {
		f.Add("scheduledAt", "is required for scheduled posts")
	}
	if err := f.Err(); err != nil {
		return err
	}

	if in.CampaignID != "" {
		var n int64
		if err := tx.Model(&db.MarketingCampaign{}).Where("id = ?", in.CampaignID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.Invalid("campaignId", "campaign does not exist")
		}
	}
	if in.TemplateID != "" {
		var n int64
		if err := tx.Model(&db.ContentTemplate{}).Where("id = ?", in.TemplateID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.Invalid("templateId", "template does not exist")
		}
	}
	return nil
}

func normHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimLeft(strings.TrimSpace(t), "#")
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}

func (s *Service) CreatePost(ctx context.Context, in PostInput) (*db.SocialMediaPost, error) {
	p := &db.SocialMediaPost{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := in.validate(tx); err != nil {
			return err
		}
		*p = db.SocialMediaPost{
			CampaignID:  in.CampaignID,
			TemplateID:  in.TemplateID,
			Platform:    in.Platform,
			Content:     in.Content,
			MediaURLs:   db.StringList(in.MediaURLs),
			Hashtags:    db.StringList(in.Hashtags),
			Status:      in.Status,
			ScheduledAt: utc(in.ScheduledAt),
			CreatedBy:   auth.ActorFromContext(ctx),
		}
		if in.Status == PostPublished {
			now := s.now().UTC()
			p.PublishedAt = &now
		}
		return tx.Create(p).Error
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPost(ctx context.Context, id string) (*db.SocialMediaPost, error) {
	var p db.SocialMediaPost
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, notFound(err, ErrPostNotFound)
	}
	return &p, nil
}

func (s *Service) UpdatePost(ctx context.Context, id string, in PostInput) (*db.SocialMediaPost, error) {
	var p db.SocialMediaPost
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&p).Error; err != nil {
			return notFound(err, ErrPostNotFound)
		}
		if err := in.validate(tx); err != nil {
			return err
		}
		upd := map[string]any{
			"campaign_id":  in.CampaignID,
			"template_id":  in.TemplateID,
			"platform":     in.Platform,
			"content":      in.Content,
			"media_urls":   db.StringList(in.MediaURLs),
			"hashtags":     db.StringList(in.Hashtags),
			"status":       in.Status,
			"scheduled_at": utc(in.ScheduledAt),
		}
		if in.Status == PostPublished && p.PublishedAt == nil {
			upd["published_at"] = s.now().UTC()
		}
		if err := tx.Model(&db.SocialMediaPost{}).Where("id = ?", id).Updates(upd).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Take(&p).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) DeletePost(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&db.SocialMediaPost{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (s *Service) ListPosts(ctx context.Context, f PostFilter) ([]db.SocialMediaPost, int64, error) {
	q := s.db.WithContext(ctx).Model(&db.SocialMediaPost{})
	if f.CampaignID != "" {
		q = q.Where("campaign_id = ?", f.CampaignID)
	}
	if f.Platform != "" {
		q = q.Where("platform = ?", strings.ToLower(f.Platform))
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("scheduled_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("scheduled_at < ?", f.To.UTC())
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit, offset := page(f.Limit, f.Offset)
	var out []db.SocialMediaPost
	err := q.Order("scheduled_at DESC").Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

// Calendar returns the posts scheduled in [from, to) grouped per UTC day,
// days in ascending order and posts by time within a day.
func (s *Service) Calendar(ctx context.Context, from, to time.Time) ([]CalendarDay, error) {
	if !to.After(from) {
		return nil, apperr.Invalid("to", "must be after from")
	}
	var posts []db.SocialMediaPost
	err := s.db.WithContext(ctx).
		Where("scheduled_at IS NOT NULL AND scheduled_at >= ? AND scheduled_at < ?", from.UTC(), to.UTC()).
		Order("scheduled_at ASC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}

	byDay := map[string][]db.SocialMediaPost{}
	for _, p := range posts {
		d := p.ScheduledAt.UTC().Format(time.DateOnly)
		byDay[d] = append(byDay[d], p)
	}
	days := make([]CalendarDay, 0, len(byDay))
	for d, ps := range byDay {
		days = append(days, CalendarDay{Date: d, Posts: ps})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
