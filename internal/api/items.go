package api

import (
	"net/http"

	"github.com/bartek5186/stockhub/internal/catalog"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/ledger"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (s *Server) listItems(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	items, total, err := s.catalog.ListItems(c.Request.Context(), catalog.ItemFilter{
		Query:          c.Query("q"),
		Classification: db.Classification(c.Query("classification")),
		Category:       c.Query("category"),
		Status:         db.ItemStatus(c.Query("status")),
		LowStock:       queryBool(c, "lowStock"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.InventoryItem]{Data: items, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) createItem(c *gin.Context) {
	var in catalog.NewItem
	if !bindJSON(c, &in) {
		return
	}
	item, err := s.catalog.CreateItem(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) getItem(c *gin.Context) {
	item, err := s.catalog.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) getItemBySKU(c *gin.Context) {
	item, err := s.catalog.GetItemBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) updateItem(c *gin.Context) {
	var p catalog.ItemPatch
	if !bindJSON(c, &p) {
		return
	}
	item, err := s.catalog.UpdateItem(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) setItemStatus(c *gin.Context) {
	var body struct {
		Status db.ItemStatus `json:"status"`
	}
	if !bindJSON(c, &body) {
		return
	}
	item, err := s.catalog.SetItemStatus(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) requestShopSync(c *gin.Context) {
	task, err := s.catalog.RequestShopSync(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, task)
}

func (s *Server) itemStock(c *gin.Context) {
	levels, total, err := s.ledger.ListStockLevels(c.Request.Context(), ledger.LevelFilter{ItemID: c.Param("id")})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.StockLevel]{Data: levels, Total: total})
}

func (s *Server) costHistory(c *gin.Context) {
	hist, err := s.ledger.ListCostHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.CostHistoryEntry]{Data: hist, Total: int64(len(hist))})
}

type costReceiptRequest struct {
	ReceivedQuantity float64         `json:"receivedQuantity"`
	UnitCost         decimal.Decimal `json:"unitCost"`
	LandedCost       decimal.Decimal `json:"landedCost"`
	Currency         string          `json:"currency"`
	PurchaseOrderRef string          `json:"purchaseOrderRef"`
}

// costReceipt recomputes the average cost without moving stock.
func (s *Server) costReceipt(c *gin.Context) {
	var req costReceiptRequest
	if !bindJSON(c, &req) {
		return
	}
	upd, err := s.ledger.UpdateInventoryItemCostFromReceipt(c.Request.Context(), ledger.CostReceiptInput{
		ItemID:           c.Param("id"),
		ReceivedQuantity: req.ReceivedQuantity,
		UnitCost:         req.UnitCost,
		LandedCost:       req.LandedCost,
		Currency:         req.Currency,
		PurchaseOrderRef: req.PurchaseOrderRef,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, upd)
}

func (s *Server) listSupplierPrices(c *gin.Context) {
	prices, err := s.catalog.ListSupplierPrices(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.SupplierPrice]{Data: prices, Total: int64(len(prices))})
}

func (s *Server) addSupplierPrice(c *gin.Context) {
	var in catalog.SupplierPriceInput
	if !bindJSON(c, &in) {
		return
	}
	sp, err := s.catalog.AddSupplierPrice(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sp)
}

func (s *Server) updateSupplierPrice(c *gin.Context) {
	var in catalog.SupplierPriceInput
	if !bindJSON(c, &in) {
		return
	}
	sp, err := s.catalog.UpdateSupplierPrice(c.Request.Context(), c.Param("id"), c.Param("priceId"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sp)
}

func (s *Server) removeSupplierPrice(c *gin.Context) {
	if err := s.catalog.RemoveSupplierPrice(c.Request.Context(), c.Param("id"), c.Param("priceId")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) preferSupplier(c *gin.Context) {
	sp, err := s.catalog.SetPreferredSupplier(c.Request.Context(), c.Param("id"), c.Param("priceId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sp)
}

func (s *Server) listProjectParts(c *gin.Context) {
	parts, err := s.catalog.ListProjectParts(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.ProjectPart]{Data: parts, Total: int64(len(parts))})
}

func (s *Server) addProjectPart(c *gin.Context) {
	var in catalog.ProjectPartInput
	if !bindJSON(c, &in) {
		return
	}
	in.ProjectID = c.Param("projectId")
	part, err := s.catalog.AddProjectPart(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, part)
}

func (s *Server) promoteProjectPart(c *gin.Context) {
	item, created, err := s.catalog.PromoteProjectPart(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"item": item, "created": created})
}
