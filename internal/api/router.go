package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/catalog"
	"github.com/bartek5186/stockhub/internal/events"
	"github.com/bartek5186/stockhub/internal/ledger"
	"github.com/bartek5186/stockhub/internal/marketing"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Deps struct {
	Log          zerolog.Logger
	Ledger       *ledger.Service
	Catalog      *catalog.Service
	Marketing    *marketing.Service
	Hub          *events.Hub
	Signer       *auth.Signer
	AllowOrigins []string
	// Status is reported by /health when set (syncer state).
	Status func() any
}

type Server struct {
	log       zerolog.Logger
	ledger    *ledger.Service
	catalog   *catalog.Service
	marketing *marketing.Service
	hub       *events.Hub
	status    func() any
}

func Router(d Deps) *gin.Engine {
	s := &Server{
		log:       d.Log,
		ledger:    d.Ledger,
		catalog:   d.Catalog,
		marketing: d.Marketing,
		hub:       d.Hub,
		status:    d.Status,
	}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(d.Log))

	origins := d.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsStar(origins),
	}))

	r.GET("/health", s.health)

	v1 := r.Group("/api/v1", authRequired(d.Signer), writeAccess())

	items := v1.Group("/items")
	items.GET("", s.listItems)
	items.POST("", s.createItem)
	items.GET("/by-sku/:sku", s.getItemBySKU)
	items.GET("/:id", s.getItem)
	items.PATCH("/:id", s.updateItem)
	items.PUT("/:id/status", s.setItemStatus)
	items.POST("/:id/shop-sync", s.requestShopSync)
	items.GET("/:id/stock", s.itemStock)
	items.GET("/:id/cost-history", s.costHistory)
	items.POST("/:id/cost-receipts", s.costReceipt)
	items.GET("/:id/suppliers", s.listSupplierPrices)
	items.POST("/:id/suppliers", s.addSupplierPrice)
	items.PUT("/:id/suppliers/:priceId", s.updateSupplierPrice)
	items.DELETE("/:id/suppliers/:priceId", s.removeSupplierPrice)
	items.POST("/:id/suppliers/:priceId/preferred", s.preferSupplier)

	wh := v1.Group("/warehouses")
	wh.GET("", s.listWarehouses)
	wh.POST("", s.createWarehouse)
	wh.GET("/:id", s.getWarehouse)
	wh.PUT("/:id", s.updateWarehouse)
	wh.POST("/:id/deactivate", s.deactivateWarehouse)
	wh.POST("/:id/activate", s.activateWarehouse)

	st := v1.Group("/stock")
	st.GET("/levels", s.listLevels)
	st.GET("/levels/:itemId/:warehouseId", s.getLevel)
	st.PUT("/levels/:itemId/:warehouseId/reorder-point", s.setReorderPoint)
	st.GET("/movements", s.listMovements)
	st.POST("/receive", s.receive)
	st.POST("/reserve", s.reserve)
	st.POST("/release", s.release)
	st.POST("/consume", s.consume)
	st.POST("/transfer", s.transfer)
	st.POST("/adjust", s.adjust)
	st.POST("/count", s.count)
	st.GET("/check", s.checkInvariants)
	st.POST("/reconcile", s.reconcile)
	st.GET("/stream", s.stream)

	v1.GET("/projects/:projectId/parts", s.listProjectParts)
	v1.POST("/projects/:projectId/parts", s.addProjectPart)
	v1.POST("/project-parts/:id/promote", s.promoteProjectPart)

	cmp := v1.Group("/campaigns")
	cmp.GET("", s.listCampaigns)
	cmp.POST("", s.createCampaign)
	cmp.GET("/:id", s.getCampaign)
	cmp.PUT("/:id", s.updateCampaign)
	cmp.DELETE("/:id", s.deleteCampaign)

	posts := v1.Group("/posts")
	posts.GET("", s.listPosts)
	posts.POST("", s.createPost)
	posts.GET("/:id", s.getPost)
	posts.PUT("/:id", s.updatePost)
	posts.DELETE("/:id", s.deletePost)

	tpl := v1.Group("/templates")
	tpl.GET("", s.listTemplates)
	tpl.POST("", s.createTemplate)
	tpl.POST("/render", s.renderAdHoc)
	tpl.GET("/:id", s.getTemplate)
	tpl.PUT("/:id", s.updateTemplate)
	tpl.DELETE("/:id", s.deleteTemplate)
	tpl.POST("/:id/render", s.renderTemplate)

	v1.GET("/calendar", s.calendar)
	v1.GET("/marketing/summary", s.marketingSummary)
	v1.GET("/marketing/platforms", s.platforms)

	return r
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.status != nil {
		body["syncer"] = s.status()
	}
	c.JSON(http.StatusOK, body)
}

func containsStar(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Invalid(key, "must be an integer")
	}
	return n, nil
}

func paging(c *gin.Context) (limit, offset int, err error) {
	if limit, err = queryInt(c, "limit"); err != nil {
		return
	}
	offset, err = queryInt(c, "offset")
	return
}

func queryBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(c.Query(key))
	return b
}

// queryTime accepts RFC 3339 or a plain date (UTC midnight).
func queryTime(c *gin.Context, key string) (*time.Time, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, apperr.Invalid(key, "must be RFC 3339 or YYYY-MM-DD")
	}
	return &t, nil
}
