package repository

import (
	"context"
	"errors"

	"marketpulse/internal/models"
)

var ErrNotFound = errors.New("not found")

// AlertRepository persists user-defined alerts.
type AlertRepository interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, symbol string) ([]models.Alert, error)
	ListEnabledUntriggered(ctx context.Context) ([]models.Alert, error)
	UpdateAlert(ctx context.Context, a *models.Alert) error
	DeleteAlert(ctx context.Context, id string) error
}

// ArchiveRepository receives notifications evicted from the in-memory store.
type ArchiveRepository interface {
	InsertArchive(ctx context.Context, row *models.NotificationArchive) error
	PruneArchive(ctx context.Context, keep int) (int64, error)
}

// Repository is the unified persistence surface.
type Repository interface {
	AlertRepository
	ArchiveRepository
}
