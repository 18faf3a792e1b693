package api

import (
	"net/http"

	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/ledger"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type moveRequest struct {
	ItemID      string           `json:"itemId"`
	WarehouseID string           `json:"warehouseId"`
	Quantity    float64          `json:"quantity"`
	Reason      string           `json:"reason"`
	Reference   ledger.Reference `json:"reference"`
}

func (r moveRequest) input() ledger.MoveInput {
	return ledger.MoveInput{
		ItemID:      r.ItemID,
		WarehouseID: r.WarehouseID,
		Quantity:    r.Quantity,
		Reference:   r.Reference,
		Reason:      r.Reason,
	}
}

type receiveRequest struct {
	moveRequest
	UnitCost         *decimal.Decimal `json:"unitCost"`
	LandedCost       decimal.Decimal  `json:"landedCost"`
	Currency         string           `json:"currency"`
	PurchaseOrderRef string           `json:"purchaseOrderRef"`
}

type consumeRequest struct {
	moveRequest
	FromReserved bool `json:"fromReserved"`
}

type transferRequest struct {
	ItemID          string           `json:"itemId"`
	FromWarehouseID string           `json:"fromWarehouseId"`
	ToWarehouseID   string           `json:"toWarehouseId"`
	Quantity        float64          `json:"quantity"`
	Reason          string           `json:"reason"`
	Reference       ledger.Reference `json:"reference"`
}

type adjustRequest struct {
	ItemID      string           `json:"itemId"`
	WarehouseID string           `json:"warehouseId"`
	Delta       float64          `json:"delta"`
	Reason      string           `json:"reason"`
	Reference   ledger.Reference `json:"reference"`
}

type countRequest struct {
	ItemID      string           `json:"itemId"`
	WarehouseID string           `json:"warehouseId"`
	Counted     float64          `json:"counted"`
	Reason      string           `json:"reason"`
	Reference   ledger.Reference `json:"reference"`
}

func (s *Server) listLevels(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	levels, total, err := s.ledger.ListStockLevels(c.Request.Context(), ledger.LevelFilter{
		ItemID:       c.Query("itemId"),
		WarehouseID:  c.Query("warehouseId"),
		LowStockOnly: queryBool(c, "lowStock"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.StockLevel]{Data: levels, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) getLevel(c *gin.Context) {
	lvl, err := s.ledger.GetStockLevel(c.Request.Context(), c.Param("itemId"), c.Param("warehouseId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lvl)
}

func (s *Server) setReorderPoint(c *gin.Context) {
	var body struct {
		ReorderPoint float64 `json:"reorderPoint"`
	}
	if !bindJSON(c, &body) {
		return
	}
	lvl, err := s.ledger.SetReorderPoint(c.Request.Context(), c.Param("itemId"), c.Param("warehouseId"), body.ReorderPoint)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lvl)
}

func (s *Server) listMovements(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	list, total, err := s.ledger.ListMovements(c.Request.Context(), ledger.MovementFilter{
		ItemID:        c.Query("itemId"),
		WarehouseID:   c.Query("warehouseId"),
		Type:          db.MovementType(c.Query("type")),
		ReferenceType: c.Query("referenceType"),
		ReferenceID:   c.Query("referenceId"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.StockMovement]{Data: list, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) receive(c *gin.Context) {
	var req receiveRequest
	if !bindJSON(c, &req) {
		return
	}
	lvl, err := s.ledger.ReceiveStock(c.Request.Context(), ledger.ReceiveInput{
		ItemID:           req.ItemID,
		WarehouseID:      req.WarehouseID,
		Quantity:         req.Quantity,
		Reference:        req.Reference,
		Reason:           req.Reason,
		UnitCost:         req.UnitCost,
		LandedCost:       req.LandedCost,
		Currency:         req.Currency,
		PurchaseOrderRef: req.PurchaseOrderRef,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lvl)
}

// reserve answers 409 with the shortfall when not enough is available.
func (s *Server) reserve(c *gin.Context) {
	var req moveRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.ledger.ReserveStock(c.Request.Context(), ledger.ReserveInput{
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		Reference:   req.Reference,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !res.Success {
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    CodeConflict,
			Message: ledger.ErrInsufficientStock.Error(),
			Details: res,
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) release(c *gin.Context) {
	var req moveRequest
	if !bindJSON(c, &req) {
		return
	}
	lvl, err := s.ledger.ReleaseStock(c.Request.Context(), req.input())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lvl)
}

func (s *Server) consume(c *gin.Context) {
	var req consumeRequest
	if !bindJSON(c, &req) {
		return
	}
	lvl, err := s.ledger.ConsumeStock(c.Request.Context(), ledger.ConsumeInput{
		MoveInput:    req.input(),
		FromReserved: req.FromReserved,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lvl)
}

func (s *Server) transfer(c *gin.Context) {
	var req transferRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.ledger.TransferStock(c.Request.Context(), ledger.TransferInput{
		ItemID:          req.ItemID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Quantity:        req.Quantity,
		Reference:       req.Reference,
		Reason:          req.Reason,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) adjust(c *gin.Context) {
	var req adjustRequest
	if !bindJSON(c, &req) {
		return
	}
	lvl, err := s.ledger.AdjustStock(c.Request.Context(), ledger.AdjustInput{
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Delta:       req.Delta,
		Reason:      req.Reason,
		Reference:   req.Reference,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lvl)
}

func (s *Server) count(c *gin.Context) {
	var req countRequest
	if !bindJSON(c, &req) {
		return
	}
	lvl, delta, err := s.ledger.SetStockCount(c.Request.Context(), ledger.CountInput{
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Counted:     req.Counted,
		Reason:      req.Reason,
		Reference:   req.Reference,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stockLevel": lvl, "delta": delta})
}

func (s *Server) checkInvariants(c *gin.Context) {
	v, err := s.ledger.CheckInvariants(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": len(v) == 0, "violations": v})
}

func (s *Server) reconcile(c *gin.Context) {
	n, err := s.ledger.ReconcileItemSummaries(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": n})
}
