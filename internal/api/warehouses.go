package api

import (
	"net/http"

	"github.com/bartek5186/stockhub/internal/catalog"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/gin-gonic/gin"
)

func (s *Server) listWarehouses(c *gin.Context) {
	list, err := s.catalog.ListWarehouses(c.Request.Context(), catalog.WarehouseFilter{
		SubsidiaryID: c.Query("subsidiaryId"),
		ActiveOnly:   queryBool(c, "active"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Page[db.Warehouse]{Data: list, Total: int64(len(list))})
}

func (s *Server) createWarehouse(c *gin.Context) {
	var in catalog.WarehouseInput
	if !bindJSON(c, &in) {
		return
	}
	wh, err := s.catalog.CreateWarehouse(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wh)
}

func (s *Server) getWarehouse(c *gin.Context) {
	wh, err := s.catalog.GetWarehouse(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wh)
}

func (s *Server) updateWarehouse(c *gin.Context) {
	var in catalog.WarehouseInput
	if !bindJSON(c, &in) {
		return
	}
	wh, err := s.catalog.UpdateWarehouse(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wh)
}

func (s *Server) deactivateWarehouse(c *gin.Context) {
	wh, err := s.catalog.DeactivateWarehouse(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wh)
}

func (s *Server) activateWarehouse(c *gin.Context) {
	wh, err := s.catalog.ActivateWarehouse(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wh)
}
