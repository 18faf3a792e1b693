package api

import (
	"io"
	"net/http"
	"time"

	"github.com/bartek5186/stockhub/internal/events"
	"github.com/gin-gonic/gin"
)

const keepAlive = 25 * time.Second

// stream sends stock events as Server-Sent Events. Optional itemId,
// warehouseId and kind query parameters narrow the feed.
func (s *Server) stream(c *gin.Context) {
	if s.hub == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Code: CodeInternal, Message: "event stream disabled"})
		return
	}
	itemID, whID, kind := c.Query("itemId"), c.Query("warehouseId"), c.Query("kind")
	ch, cancel := s.hub.Subscribe(128, func(e events.StockEvent) bool {
		return (itemID == "" || e.InventoryItemID == itemID) &&
			(whID == "" || e.WarehouseID == whID) &&
			(kind == "" || e.Kind == kind)
	})
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()
	ctx := c.Request.Context()

	c.SSEvent("ready", gin.H{"subscribers": s.hub.Subscribers()})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(e.Kind, e)
			return true
		case <-ping.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
