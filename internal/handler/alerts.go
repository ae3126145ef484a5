package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketpulse/internal/market"
	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

type AlertHandler struct {
	Repo    repository.AlertRepository
	Adapter *market.Adapter
}

func (h *AlertHandler) Register(r *gin.Engine) {
	group := r.Group("/alerts")
	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/:id", h.get)
	group.PATCH("/:id", h.patch)
	group.DELETE("/:id", h.delete)
}

func (h *AlertHandler) list(c *gin.Context) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	if symbol != "" && h.Adapter != nil {
		symbol = h.Adapter.Canonicalize(symbol)
	}
	items, err := h.Repo.ListAlerts(c.Request.Context(), symbol)
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, gin.H{"alerts": items, "total": len(items)})
}

func (h *AlertHandler) get(c *gin.Context) {
	a, err := h.Repo.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, a)
}

type createAlertRequest struct {
	Symbol             string   `json:"symbol"`
	AlertType          string   `json:"alert_type"`
	PriceThreshold     *float64 `json:"price_threshold"`
	PriceCondition     string   `json:"price_condition"`
	IndicatorName      string   `json:"indicator_name"`
	IndicatorCondition string   `json:"indicator_condition"`
	IndicatorValue     *float64 `json:"indicator_value"`
	Description        string   `json:"description"`
}

func (h *AlertHandler) create(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "invalid body")
		return
	}
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.Symbol == "" {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "symbol required")
		return
	}
	if h.Adapter != nil {
		req.Symbol = h.Adapter.Canonicalize(req.Symbol)
	}
	if msg := validateAlertFields(req.AlertType, req.PriceThreshold, req.PriceCondition,
		req.IndicatorName, req.IndicatorCondition, req.IndicatorValue); msg != "" {
		Error(c, http.StatusBadRequest, CodeInvalidInput, msg)
		return
	}

	now := time.Now().UTC()
	a := &models.Alert{
		ID:                 uuid.NewString(),
		Symbol:             req.Symbol,
		AlertType:          req.AlertType,
		PriceThreshold:     req.PriceThreshold,
		PriceCondition:     req.PriceCondition,
		IndicatorName:      req.IndicatorName,
		IndicatorCondition: req.IndicatorCondition,
		IndicatorValue:     req.IndicatorValue,
		Enabled:            true,
		Description:        req.Description,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := h.Repo.CreateAlert(c.Request.Context(), a); err != nil {
		FromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func validateAlertFields(alertType string, priceThreshold *float64, priceCondition,
	indicatorName, indicatorCondition string, indicatorValue *float64) string {
	switch alertType {
	case models.AlertTypePrice:
		if priceThreshold == nil || *priceThreshold <= 0 {
			return "price_threshold must be positive"
		}
		if priceCondition != models.PriceAbove && priceCondition != models.PriceBelow {
			return "price_condition must be above or below"
		}
	case models.AlertTypeIndicator:
		if !models.ValidIndicator(indicatorName) {
			return "unknown indicator " + indicatorName
		}
		switch indicatorCondition {
		case models.IndicatorAbove, models.IndicatorBelow,
			models.IndicatorCrossesAbove, models.IndicatorCrossesBelow:
		default:
			return "unknown indicator_condition " + indicatorCondition
		}
		if indicatorValue == nil {
			return "indicator_value required"
		}
	default:
		return "alert_type must be price or indicator"
	}
	return ""
}

type patchAlertRequest struct {
	Enabled        *bool    `json:"enabled"`
	PriceThreshold *float64 `json:"price_threshold"`
	IndicatorValue *float64 `json:"indicator_value"`
	Description    *string  `json:"description"`
	Rearm          *bool    `json:"rearm"`
}

func (h *AlertHandler) patch(c *gin.Context) {
	var req patchAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "invalid body")
		return
	}
	ctx := c.Request.Context()
	a, err := h.Repo.GetAlert(ctx, c.Param("id"))
	if err != nil {
		FromError(c, err)
		return
	}
	if req.Enabled != nil {
		a.Enabled = *req.Enabled
	}
	if req.PriceThreshold != nil {
		if a.AlertType != models.AlertTypePrice || *req.PriceThreshold <= 0 {
			Error(c, http.StatusBadRequest, CodeInvalidInput, "price_threshold invalid for this alert")
			return
		}
		a.PriceThreshold = req.PriceThreshold
	}
	if req.IndicatorValue != nil {
		if a.AlertType != models.AlertTypeIndicator {
			Error(c, http.StatusBadRequest, CodeInvalidInput, "indicator_value invalid for this alert")
			return
		}
		a.IndicatorValue = req.IndicatorValue
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.Rearm != nil && *req.Rearm {
		a.Triggered = false
		a.TriggeredAt = nil
		a.PrevIndicatorValue = nil
	}
	a.UpdatedAt = time.Now().UTC()
	if err := h.Repo.UpdateAlert(ctx, a); err != nil {
		FromError(c, err)
		return
	}
	Ok(c, a)
}

func (h *AlertHandler) delete(c *gin.Context) {
	if err := h.Repo.DeleteAlert(c.Request.Context(), c.Param("id")); err != nil {
		FromError(c, err)
		return
	}
	Ok(c, gin.H{"deleted": true})
}
