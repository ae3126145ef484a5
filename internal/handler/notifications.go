package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marketpulse/internal/enrich"
	"marketpulse/internal/models"
	"marketpulse/internal/store"
)

type NotificationHandler struct {
	Store    *store.Store
	Enricher *enrich.Enricher
}

func (h *NotificationHandler) Register(r *gin.Engine) {
	group := r.Group("/notifications")
	group.GET("", h.list)
	group.GET("/stats/summary", h.stats)
	group.GET("/:id", h.get)
	group.POST("", h.create)
	group.PATCH("/:id", h.patch)
	group.POST("/:id/respond", h.respond)
	group.DELETE("/:id", h.delete)
}

func (h *NotificationHandler) list(c *gin.Context) {
	opts := store.ListOptions{
		Limit:      intQuery(c, "limit", 100),
		UnreadOnly: boolQuery(c, "unread_only"),
		Symbol:     strings.TrimSpace(c.Query("symbol")),
		Source:     strings.TrimSpace(c.Query("source")),
	}
	items, err := h.Store.List(c.Request.Context(), opts)
	if err != nil {
		FromError(c, err)
		return
	}
	stats, err := h.Store.StatsSummary(c.Request.Context())
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, gin.H{
		"notifications": items,
		"total":         stats.Total,
		"unread_count":  stats.Unread,
	})
}

func (h *NotificationHandler) get(c *gin.Context) {
	n, err := h.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, n)
}

type createNotificationRequest struct {
	Type            string         `json:"type"`
	Priority        string         `json:"priority"`
	Source          string         `json:"source"`
	Title           string         `json:"title"`
	Message         string         `json:"message"`
	Symbol          string         `json:"symbol"`
	ConfidenceScore *float64       `json:"confidence_score"`
	UrgencyScore    *float64       `json:"urgency_score"`
	PromiseScore    *float64       `json:"promise_score"`
	Metadata        map[string]any `json:"metadata"`
	Actions         []string       `json:"actions"`
	ExternalID      string         `json:"external_id"`
}

// create is idempotent: a draft whose derived dedup key already exists comes
// back with the stored notification and duplicate=true.
func (h *NotificationHandler) create(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "invalid body")
		return
	}
	if !models.ValidType(req.Type) {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "unknown type "+req.Type)
		return
	}
	if req.Source == "" {
		req.Source = models.SourceUser
	}
	if !models.ValidSource(req.Source) {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "unknown source "+req.Source)
		return
	}
	if req.Priority != "" && !models.Priority(req.Priority).Valid() {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "unknown priority "+req.Priority)
		return
	}
	for _, a := range req.Actions {
		if !models.ValidAction(a) {
			Error(c, http.StatusBadRequest, CodeInvalidInput, "unknown action "+a)
			return
		}
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Message) == "" {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "title or message required")
		return
	}

	n := models.Notification{
		Type:            req.Type,
		Priority:        models.Priority(req.Priority),
		Source:          req.Source,
		Title:           req.Title,
		Message:         req.Message,
		Symbol:          req.Symbol,
		ConfidenceScore: req.ConfidenceScore,
		UrgencyScore:    req.UrgencyScore,
		PromiseScore:    req.PromiseScore,
		Metadata:        req.Metadata,
		Actions:         req.Actions,
		ExternalID:      req.ExternalID,
	}
	stored, created, err := h.Enricher.Enrich(c.Request.Context(), n)
	if err != nil {
		FromError(c, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"notification": stored, "duplicate": !created})
}

type patchNotificationRequest struct {
	Read              *bool   `json:"read"`
	Responded         *bool   `json:"responded"`
	ResponseAction    *string `json:"response_action"`
	SummarizedMessage *string `json:"summarized_message"`
}

func (h *NotificationHandler) patch(c *gin.Context) {
	var req patchNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "invalid body")
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	var out models.Notification
	var err error
	switch {
	case req.Responded != nil && *req.Responded:
		action := ""
		if req.ResponseAction != nil {
			action = *req.ResponseAction
		}
		if action != "" && !models.ValidAction(action) {
			Error(c, http.StatusBadRequest, CodeInvalidInput, "unknown action "+action)
			return
		}
		out, err = h.Store.Respond(ctx, id, action, "")
	case req.SummarizedMessage != nil:
		if strings.TrimSpace(*req.SummarizedMessage) == "" {
			Error(c, http.StatusBadRequest, CodeInvalidInput, "summarized_message must not be blank")
			return
		}
		out, err = h.Store.PatchSummary(ctx, id, *req.SummarizedMessage)
	case req.Read != nil && *req.Read:
		out, err = h.Store.MarkRead(ctx, id)
	default:
		Error(c, http.StatusBadRequest, CodeInvalidInput, "nothing to update")
		return
	}
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, out)
}

func (h *NotificationHandler) respond(c *gin.Context) {
	action := strings.TrimSpace(c.Query("action"))
	if action == "" || !models.ValidAction(action) {
		Error(c, http.StatusBadRequest, CodeInvalidInput, "valid action required")
		return
	}
	custom := strings.TrimSpace(c.Query("custom_message"))
	out, err := h.Store.Respond(c.Request.Context(), c.Param("id"), action, custom)
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, out)
}

func (h *NotificationHandler) delete(c *gin.Context) {
	if err := h.Store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		FromError(c, err)
		return
	}
	Ok(c, gin.H{"deleted": true})
}

func (h *NotificationHandler) stats(c *gin.Context) {
	stats, err := h.Store.StatsSummary(c.Request.Context())
	if err != nil {
		FromError(c, err)
		return
	}
	Ok(c, stats)
}
