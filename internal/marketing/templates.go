package marketing

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/db"
)

type TemplateInput struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Category string `json:"category"`
	Body     string `json:"body"`
}

// Rendered is a template filled with variables. Missing lists placeholders
// that had no value; they are left in the content as written.
type Rendered struct {
	Content   string   `json:"content"`
	Missing   []string `json:"missing,omitempty"`
	Length    int      `json:"length"`
	Limit     int      `json:"limit,omitempty"`
	OverLimit bool     `json:"overLimit,omitempty"`
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

func (in *TemplateInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
	f := apperr.Fields{}
	f.Require("name", in.Name)
	f.Require("body", in.Body)
	if in.Platform != "" {
		if _, ok := platformLimits[in.Platform]; !ok {
			f.Add("platform", "must be one of "+strings.Join(Platforms(), ", "))
		}
	}
	return f.Err()
}

func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (*db.ContentTemplate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	t := &db.ContentTemplate{
		Name:      in.Name,
		Platform:  in.Platform,
		Category:  strings.TrimSpace(in.Category),
		Body:      in.Body,
		CreatedBy: auth.ActorFromContext(ctx),
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) GetTemplate(ctx context.Context, id string) (*db.ContentTemplate, error) {
	var t db.ContentTemplate
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error; err != nil {
		return nil, notFound(err, ErrTemplateNotFound)
	}
	return &t, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, id string, in TemplateInput) (*db.ContentTemplate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Model(&db.ContentTemplate{}).Where("id = ?", id).Updates(map[string]any{
		"name":     in.Name,
		"platform": in.Platform,
		"category": strings.TrimSpace(in.Category),
		"body":     in.Body,
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrTemplateNotFound
	}
	return s.GetTemplate(ctx, id)
}

func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&db.ContentTemplate{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (s *Service) ListTemplates(ctx context.Context, platform, category string) ([]db.ContentTemplate, error) {
	q := s.db.WithContext(ctx).Model(&db.ContentTemplate{})
	if platform != "" {
		q = q.Where("platform = ? OR platform = ''", strings.ToLower(platform))
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var out []db.ContentTemplate
	err := q.Order("name ASC").Find(&out).Error
	return out, err
}

// RenderTemplate loads a template and fills it; see Render.
func (s *Service) RenderTemplate(ctx context.Context, id string, vars map[string]string) (Rendered, error) {
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return Rendered{}, err
	}
	return Render(t.Body, t.Platform, vars), nil
}

// Render substitutes {{name}} placeholders. For a known platform the result
// is also measured against its content limit.
func Render(body, platform string, vars map[string]string) Rendered {
	missing := map[string]bool{}
	out := placeholderRe.ReplaceAllStringFunc(body, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		missing[name] = true
		return m
	})
	r := Rendered{Content: out, Length: len([]rune(out))}
	for k := range missing {
		r.Missing = append(r.Missing, k)
	}
	sort.Strings(r.Missing)
	if limit := ContentLimit(strings.ToLower(platform)); limit > 0 {
		r.Limit = limit
		r.OverLimit = r.Length > limit
	}
	return r
}
