package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marketpulse/internal/models"
	"marketpulse/internal/tts"
)

type VoiceHandler struct {
	Engine *tts.Engine
}

func (h *VoiceHandler) Register(r *gin.Engine) {
	group := r.Group("/voice")
	group.GET("/providers", h.providers)
	group.POST("/synthesize", h.synthesize)
}

func (h *VoiceHandler) providers(c *gin.Context) {
	Ok(c, gin.H{"providers": h.Engine.Providers()})
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Priority string `json:"priority"`
	Provider string `json:"provider"`
}

func (h *VoiceHandler) synthesize(c *gin.Context) {
	var req synthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "invalid body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "text required")
		return
	}
	priority := models.Priority(req.Priority)
	if req.Priority != "" && !priority.Valid() {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "unknown priority "+req.Priority)
		return
	}
	if req.Priority == "" {
		priority = models.PriorityMedium
	}

	res, err := h.Engine.Synthesize(c.Request.Context(), tts.Request{
		Text:     req.Text,
		Priority: priority,
		Provider: req.Provider,
	})
	if err != nil {
		FromError(c, err)
		return
	}
	c.Header("X-Voice-Provider", res.Provider)
	if res.Cached {
		c.Header("X-Voice-Cache", "hit")
	}
	c.Data(http.StatusOK, res.MimeType, res.Audio)
}
