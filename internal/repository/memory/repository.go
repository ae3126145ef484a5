package memoryrepository

import (
	"context"
	"sort"
	"sync"

	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

// Repository keeps alerts and the eviction archive in process memory. Used
// when the database is disabled; the surface behaves the same, it just does
// not survive a restart.
type Repository struct {
	mu      sync.RWMutex
	alerts  map[string]models.Alert
	archive []models.NotificationArchive
}

func New() *Repository {
	return &Repository{alerts: map[string]models.Alert{}}
}

var _ repository.Repository = (*Repository)(nil)

func (r *Repository) CreateAlert(ctx context.Context, a *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[a.ID] = *a
	return nil
}

func (r *Repository) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (r *Repository) ListAlerts(ctx context.Context, symbol string) ([]models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		if symbol != "" && a.Symbol != symbol {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) ListEnabledUntriggered(ctx context.Context) ([]models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Alert
	for _, a := range r.alerts {
		if a.Enabled && !a.Triggered {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *Repository) UpdateAlert(ctx context.Context, a *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[a.ID]; !ok {
		return repository.ErrNotFound
	}
	r.alerts[a.ID] = *a
	return nil
}

func (r *Repository) DeleteAlert(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.alerts, id)
	return nil
}

func (r *Repository) InsertArchive(ctx context.Context, row *models.NotificationArchive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.archive {
		if existing.DedupKey == row.DedupKey {
			return nil
		}
	}
	r.archive = append(r.archive, *row)
	return nil
}

func (r *Repository) PruneArchive(ctx context.Context, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if keep <= 0 || len(r.archive) <= keep {
		return 0, nil
	}
	pruned := int64(len(r.archive) - keep)
	r.archive = r.archive[len(r.archive)-keep:]
	return pruned, nil
}
