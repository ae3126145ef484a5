package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marketpulse/internal/market"
)

type MarketHandler struct {
	Adapter *market.Adapter
}

func (h *MarketHandler) Register(r *gin.Engine) {
	group := r.Group("/market")
	group.GET("/ticker/:symbol", h.ticker)
	group.GET("/ohlcv/:symbol", h.ohlcv)
}

func (h *MarketHandler) ticker(c *gin.Context) {
	symbol := h.Adapter.Canonicalize(strings.TrimSpace(c.Param("symbol")))
	tk, err := h.Adapter.Ticker(c.Request.Context(), symbol)
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, tk)
}

func (h *MarketHandler) ohlcv(c *gin.Context) {
	symbol := h.Adapter.Canonicalize(strings.TrimSpace(c.Param("symbol")))
	timeframe := c.DefaultQuery("timeframe", "1h")
	limit := intQuery(c, "limit", 100)
	if limit <= 0 || limit > 1000 {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "limit must be within (0,1000]")
		return
	}
	candles, err := h.Adapter.OHLCV(c.Request.Context(), symbol, timeframe, limit)
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, gin.H{
		"symbol":    symbol,
		"timeframe": timeframe,
		"candles":   candles,
	})
}
