package api

import (
	"net/http"
	"time"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/marketing"
	"github.com/gin-gonic/gin"
)

func (s *Server) listCampaigns(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	list, total, err := s.marketing.ListCampaigns(c.Request.Context(), marketing.CampaignFilter{
		Status:  c.Query("status"),
		Channel: c.Query("channel"),
		Query:   c.Query("q"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.MarketingCampaign]{Data: list, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) createCampaign(c *gin.Context) {
	var in marketing.CampaignInput
	if !bindJSON(c, &in) {
		return
	}
	cmp, err := s.marketing.CreateCampaign(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cmp)
}

func (s *Server) getCampaign(c *gin.Context) {
	cmp, err := s.marketing.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (s *Server) updateCampaign(c *gin.Context) {
	var in marketing.CampaignInput
	if !bindJSON(c, &in) {
		return
	}
	cmp, err := s.marketing.UpdateCampaign(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (s *Server) deleteCampaign(c *gin.Context) {
	if err := s.marketing.DeleteCampaign(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listPosts(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	from, err := queryTime(c, "from")
	if err != nil {
		s.respondError(c, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		s.respondError(c, err)
		return
	}
	list, total, err := s.marketing.ListPosts(c.Request.Context(), marketing.PostFilter{
		CampaignID: c.Query("campaignId"),
		Platform:   c.Query("platform"),
		Status:     c.Query("status"),
		From:       from,
		To:         to,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.SocialMediaPost]{Data: list, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) createPost(c *gin.Context) {
	var in marketing.PostInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := s.marketing.CreatePost(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) getPost(c *gin.Context) {
	p, err := s.marketing.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updatePost(c *gin.Context) {
	var in marketing.PostInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := s.marketing.UpdatePost(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deletePost(c *gin.Context) {
	if err := s.marketing.DeletePost(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// calendar defaults to the next 30 days.
func (s *Server) calendar(c *gin.Context) {
	from, err := queryTime(c, "from")
	if err != nil {
		s.respondError(c, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		s.respondError(c, err)
		return
	}
	if from == nil {
		now := time.Now().UTC().Truncate(24 * time.Hour)
		from = &now
	}
	if to == nil {
		t := from.AddDate(0, 0, 30)
		to = &t
	}
	if to.Before(*from) {
		s.respondError(c, apperr.Invalid("to", "must not be before from"))
		return
	}
	days, err := s.marketing.Calendar(c.Request.Context(), *from, *to)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "days": days})
}

func (s *Server) listTemplates(c *gin.Context) {
	list, err := s.marketing.ListTemplates(c.Request.Context(), c.Query("platform"), c.Query("category"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.ContentTemplate]{Data: list, Total: int64(len(list))})
}

func (s *Server) createTemplate(c *gin.Context) {
	var in marketing.TemplateInput
	if !bindJSON(c, &in) {
		return
	}
	t, err := s.marketing.CreateTemplate(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) getTemplate(c *gin.Context) {
	t, err := s.marketing.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTemplate(c *gin.Context) {
	var in marketing.TemplateInput
	if !bindJSON(c, &in) {
		return
	}
	t, err := s.marketing.UpdateTemplate(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	if err := s.marketing.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) renderTemplate(c *gin.Context) {
	var body struct {
		Variables map[string]string `json:"variables"`
	}
	if !bindJSON(c, &body) {
		return
	}
	out, err := s.marketing.RenderTemplate(c.Request.Context(), c.Param("id"), body.Variables)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// renderAdHoc renders a body that is not stored as a template.
func (s *Server) renderAdHoc(c *gin.Context) {
	var body struct {
		Body      string            `json:"body"`
		Platform  string            `json:"platform"`
		Variables map[string]string `json:"variables"`
	}
	if !bindJSON(c, &body) {
		return
	}
	c.JSON(http.StatusOK, marketing.Render(body.Body, body.Platform, body.Variables))
}

func (s *Server) marketingSummary(c *gin.Context) {
	sum, err := s.marketing.Summary(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) platforms(c *gin.Context) {
	out := make([]gin.H, 0)
	for _, p := range marketing.Platforms() {
		out = append(out, gin.H{"platform": p, "contentLimit": marketing.ContentLimit(p)})
	}
	c.JSON(http.StatusOK, out)
}
