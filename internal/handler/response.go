package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"marketpulse/internal/market"
	"marketpulse/internal/repository"
	"marketpulse/internal/store"
	"marketpulse/internal/trading"
	"marketpulse/internal/tts"
)

// Error codes shared across the surface.
const (
	CodeInvalidInput         = "invalid_input"
	CodeNotFound             = "not_found"
	CodeInsufficientBalance  = "insufficient_balance"
	CodeUpstreamUnavailable  = "upstream_unavailable"
	CodeSynthesisUnavailable = "synthesis_unavailable"
	CodeInternal             = "internal"
)

type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
}

func Ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, apiError{ErrorCode: code, Message: message})
}

// FromError maps typed errors from the collaborators onto the wire shape.
func FromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, repository.ErrNotFound),
		errors.Is(err, trading.ErrNotFound):
		Error(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, store.ErrInvalid), errors.Is(err, trading.ErrInvalidInput),
		errors.Is(err, market.ErrUnknownSymbol):
		Error(c, http.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, trading.ErrInsufficientBalance):
		Error(c, http.StatusConflict, CodeInsufficientBalance, err.Error())
	case errors.Is(err, trading.ErrUpstreamUnavailable), errors.Is(err, market.ErrUpstreamUnavailable),
		errors.Is(err, market.ErrRateLimited):
		Error(c, http.StatusServiceUnavailable, CodeUpstreamUnavailable, err.Error())
	case errors.Is(err, tts.ErrSynthesisUnavailable):
		Error(c, http.StatusServiceUnavailable, CodeSynthesisUnavailable, err.Error())
	case errors.Is(err, tts.ErrEmptyAfterSanitize), errors.Is(err, tts.ErrUnknownProvider):
		Error(c, http.StatusBadRequest, CodeInvalidInput, err.Error())
	default:
		Error(c, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func boolQuery(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}
