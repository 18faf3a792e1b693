// Package marketing stores campaigns, social media posts and content
// templates, and builds the calendar and summary views over them.
package marketing

import (
	"errors"
	"fmt"
	"time"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrCampaignNotFound = fmt.Errorf("campaign %w", apperr.ErrNotFound)
	ErrPostNotFound     = fmt.Errorf("post %w", apperr.ErrNotFound)
	ErrTemplateNotFound = fmt.Errorf("template %w", apperr.ErrNotFound)
)

const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"

	PostDraft     = "draft"
	PostScheduled = "scheduled"
	PostPublished = "published"
	PostFailed    = "failed"
)

var campaignStatuses = []string{StatusDraft, StatusScheduled, StatusActive, StatusPaused, StatusCompleted}

var postStatuses = []string{PostDraft, PostScheduled, PostPublished, PostFailed}

// platform -> max content length
var platformLimits = map[string]int{
	"instagram": 2200,
	"facebook":  2200,
	"twitter":   280,
	"linkedin":  3000,
	"tiktok":    2200,
}

// Platforms lists the supported social platforms.
func Platforms() []string {
	return []string{"instagram", "facebook", "twitter", "linkedin", "tiktok"}
}

// ContentLimit returns the content length limit of a platform, 0 if the
// platform is unknown.
func ContentLimit(platform string) int {
	return platformLimits[platform]
}

type Service struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

func New(gdb *gorm.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  gdb,
		log: log.With().Str("component", "marketing").Logger(),
		now: time.Now,
	}
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func notFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
