package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// marketing_campaigns
type MarketingCampaign struct {
	ID          string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string          `gorm:"not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Status      string          `gorm:"type:varchar(16);not null;default:draft;index" json:"status"`
	Channel     string          `gorm:"type:varchar(32);index" json:"channel"`
	Objective   string          `json:"objective"`
	Budget      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"budget"`
	Spent       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"spent"`
	Currency    string          `gorm:"type:char(3);not null;default:'USD'" json:"currency"`
	StartDate   *time.Time      `json:"startDate,omitempty"`
	EndDate     *time.Time      `json:"endDate,omitempty"`
	TargetSKUs  StringList      `gorm:"type:text" json:"targetSkus"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// social_media_posts
type SocialMediaPost struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	CampaignID  string     `gorm:"type:varchar(36);index" json:"campaignId,omitempty"`
	TemplateID  string     `gorm:"type:varchar(36)" json:"templateId,omitempty"`
	Platform    string     `gorm:"type:varchar(16);not null;index" json:"platform"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	MediaURLs   StringList `gorm:"type:text" json:"mediaUrls"`
	Hashtags    StringList `gorm:"type:text" json:"hashtags"`
	Status      string     `gorm:"type:varchar(16);not null;default:draft;index" json:"status"`
	ScheduledAt *time.Time `gorm:"index" json:"scheduledAt,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// content_templates
type ContentTemplate struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Platform  string    `gorm:"type:varchar(16)" json:"platform,omitempty"`
	Category  string    `gorm:"index" json:"category"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (m *MarketingCampaign) BeforeCreate(*gorm.DB) error { m.ID = ensureID(m.ID); return nil }
func (m *SocialMediaPost) BeforeCreate(*gorm.DB) error   { m.ID = ensureID(m.ID); return nil }
func (m *ContentTemplate) BeforeCreate(*gorm.DB) error   { m.ID = ensureID(m.ID); return nil }
