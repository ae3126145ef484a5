package handler

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"marketpulse/internal/models"
	"marketpulse/internal/trading"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,12}/[A-Z0-9]{2,12}$`)

// TradingHandler proxies the external trading engine. No order state lives
// here; validation happens before the call goes out.
type TradingHandler struct {
	Client *trading.Client
}

func (h *TradingHandler) Register(r *gin.Engine) {
	group := r.Group("/trading")
	group.GET("/balance", h.balance)
	group.GET("/positions", h.positions)
	group.POST("/positions", h.open)
	group.DELETE("/positions/:id", h.close)
	group.PATCH("/positions/:id/stop-loss", h.stopLoss)
	group.PATCH("/positions/:id/trailing-stop", h.trailingStop)
}

// positionID pulls the path parameter and URL-decodes it; engines embed
// symbols like BTC%2FUSDT-1 in position IDs.
func positionID(c *gin.Context) (string, bool) {
	raw := c.Param("id")
	id, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(id) == "" {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "position id required")
		return "", false
	}
	return id, true
}

func (h *TradingHandler) balance(c *gin.Context) {
	b, err := h.Client.GetBalance(c.Request.Context())
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, b)
}

func (h *TradingHandler) positions(c *gin.Context) {
	ps, err := h.Client.GetPositions(c.Request.Context())
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, gin.H{"positions": ps, "total": len(ps)})
}

type openPositionRequest struct {
	Symbol              string          `json:"symbol"`
	Side                string          `json:"side"`
	Amount              decimal.Decimal `json:"amount"`
	StopLossPercent     *float64        `json:"stop_loss_percent"`
	TrailingStopPercent *float64        `json:"trailing_stop_percent"`
}

func (h *TradingHandler) open(c *gin.Context) {
	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "invalid body")
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if !symbolPattern.MatchString(req.Symbol) {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "symbol must match BASE/QUOTE")
		return
	}
	if req.Side != models.SideLong && req.Side != models.SideShort {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "side must be long or short")
		return
	}
	if !req.Amount.IsPositive() {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "amount must be positive")
		return
	}
	if !percentInRange(req.StopLossPercent) || !percentInRange(req.TrailingStopPercent) {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "percent values must be within [0,100]")
		return
	}

	p, err := h.Client.OpenPosition(c.Request.Context(), trading.OpenRequest{
		Symbol:              req.Symbol,
		Side:                req.Side,
		Amount:              req.Amount,
		StopLossPercent:     req.StopLossPercent,
		TrailingStopPercent: req.TrailingStopPercent,
	})
	if err != nil {
		FromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *TradingHandler) close(c *gin.Context) {
	id, ok := positionID(c)
	if !ok {
		return
	}
	p, err := h.Client.ClosePosition(c.Request.Context(), id)
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, p)
}

type stopLossRequest struct {
	StopLoss        *float64 `json:"stop_loss"`
	StopLossPercent *float64 `json:"stop_loss_percent"`
}

func (h *TradingHandler) stopLoss(c *gin.Context) {
	id, ok := positionID(c)
	if !ok {
		return
	}
	var req stopLossRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "invalid body")
		return
	}
	if req.StopLoss == nil && req.StopLossPercent == nil {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "stop_loss or stop_loss_percent required")
		return
	}
	if req.StopLoss != nil && *req.StopLoss <= 0 {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "stop_loss must be positive")
		return
	}
	if !percentInRange(req.StopLossPercent) {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "stop_loss_percent must be within [0,100]")
		return
	}
	p, err := h.Client.SetStopLoss(c.Request.Context(), id, trading.StopRequest{
		StopLoss:        req.StopLoss,
		StopLossPercent: req.StopLossPercent,
	})
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, p)
}

type trailingStopRequest struct {
	Percent float64 `json:"percent"`
}

func (h *TradingHandler) trailingStop(c *gin.Context) {
	id, ok := positionID(c)
	if !ok {
		return
	}
	var req trailingStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "invalid body")
		return
	}
	if req.Percent <= 0 || req.Percent > 100 {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "percent must be within (0,100]")
		return
	}
	p, err := h.Client.SetTrailingStop(c.Request.Context(), id, req.Percent)
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, p)
}

func percentInRange(v *float64) bool {
	return v == nil || (*v >= 0 && *v <= 100)
}
