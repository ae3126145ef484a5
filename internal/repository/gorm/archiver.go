package gormrepository

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

// EvictionArchiver copies notifications evicted from the in-memory store into
// the archive table. Failures are logged and dropped; eviction never blocks on
// the database.
type EvictionArchiver struct {
	Repo   repository.ArchiveRepository
	Logger *zap.Logger
}

func (a *EvictionArchiver) Archive(ctx context.Context, n models.Notification) {
	row := &models.NotificationArchive{
		ID:         n.ID,
		Type:       n.Type,
		Priority:   string(n.Priority),
		Source:     n.Source,
		Title:      n.Title,
		Message:    n.Message,
		DedupKey:   n.DedupKey,
		Read:       n.Read,
		Responded:  n.Responded,
		CreatedAt:  n.CreatedAt,
		ArchivedAt: time.Now().UTC(),
	}
	if n.Symbol != "" {
		row.Symbol = &n.Symbol
	}
	if n.SummarizedMessage != "" {
		row.Summarized = &n.SummarizedMessage
	}
	if n.ResponseAction != "" {
		row.ResponseAction = &n.ResponseAction
	}
	if len(n.Metadata) > 0 {
		if raw, err := json.Marshal(n.Metadata); err == nil {
			row.Metadata = datatypes.JSON(raw)
		}
	}
	if err := a.Repo.InsertArchive(ctx, row); err != nil && a.Logger != nil {
		a.Logger.Warn("archive insert failed", zap.String("id", n.ID), zap.Error(err))
	}
}
