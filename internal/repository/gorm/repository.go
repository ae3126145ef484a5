package gormrepository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ repository.Repository = (*Repository)(nil)

func (r *Repository) CreateAlert(ctx context.Context, a *models.Alert) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repository) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var out models.Alert
	err := r.db.WithContext(ctx).First(&out, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository) ListAlerts(ctx context.Context, symbol string) ([]models.Alert, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var out []models.Alert
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) ListEnabledUntriggered(ctx context.Context) ([]models.Alert, error) {
	var out []models.Alert
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND triggered = ?", true, false).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) UpdateAlert(ctx context.Context, a *models.Alert) error {
	res := r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ?", a.ID).
		Select("*").Omit("id", "created_at").
		Updates(a)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteAlert(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Alert{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) InsertArchive(ctx context.Context, row *models.NotificationArchive) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
		Create(row).Error
}

func (r *Repository) PruneArchive(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	sub := r.db.Model(&models.NotificationArchive{}).
		Select("id").
		Order("created_at DESC").
		Limit(keep)
	res := r.db.WithContext(ctx).
		Where("id NOT IN (?)", sub).
		Delete(&models.NotificationArchive{})
	return res.RowsAffected, res.Error
}
