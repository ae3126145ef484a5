package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketpulse/internal/source"
	"marketpulse/internal/store"
	"marketpulse/internal/ws"
)

type SystemHandler struct {
	Sources   *source.Hub
	Delivery  *ws.Hub
	Store     *store.Store
	StartedAt time.Time

	// BaseCtx scopes restarted collectors to the process, not the request.
	BaseCtx context.Context
}

func (h *SystemHandler) Register(r *gin.Engine) {
	group := r.Group("/system")
	group.GET("/status", h.status)
	group.POST("/sources/:name/start", h.startSource)
	group.POST("/sources/:name/stop", h.stopSource)
	group.POST("/sources/:name/kick", h.kickSource)
}

func (h *SystemHandler) status(c *gin.Context) {
	stats, err := h.Store.StatsSummary(c.Request.Context())
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, gin.H{
		"uptime_seconds": int(time.Since(h.StartedAt).Seconds()),
		"sources":        h.Sources.Status(),
		"sessions":       h.Delivery.SessionCount(),
		"notifications":  stats,
	})
}

func (h *SystemHandler) startSource(c *gin.Context) {
	name := c.Param("name")
	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := h.Sources.StartSource(ctx, name); err != nil {
		Error(c, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	Ok(c, gin.H{"source": name, "running": true})
}

func (h *SystemHandler) stopSource(c *gin.Context) {
	name := c.Param("name")
	if err := h.Sources.StopSource(name); err != nil {
		Error(c, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	Ok(c, gin.H{"source": name, "running": false})
}

func (h *SystemHandler) kickSource(c *gin.Context) {
	name := c.Param("name")
	if !h.Sources.Kick(name) {
		Error(c, http.StatusNotFound, CodeNotFound, "source does not support kick: "+name)
		return
	}
	Ok(c, gin.H{"source": name, "kicked": true})
}
