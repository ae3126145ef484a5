package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"marketpulse/internal/metrics"
	"marketpulse/internal/models"
)

// Append inserts n, maintaining the dedup, symbol, and source indexes. When
// the dedup key already exists, the stored notification is returned with
// created=false and nothing is mutated.
func (s *Store) Append(ctx context.Context, n models.Notification) (models.Notification, bool, error) {
	if n.Type == "" || n.Source == "" {
		return models.Notification{}, false, ErrInvalid
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if !n.Priority.Valid() {
		n.Priority = models.PriorityInfo
	}
	if n.DedupKey == "" {
		n.DedupKey = n.ComputeDedupKey()
	}

	var out models.Notification
	var created bool
	err := s.do(ctx, func() {
		if id, ok := s.byDedup[n.DedupKey]; ok {
			out = *s.byID[id]
			created = false
			metrics.NotificationsDeduped.Inc()
			return
		}
		cp := n
		s.byID[cp.ID] = &cp
		s.byDedup[cp.DedupKey] = cp.ID
		if cp.Symbol != "" {
			s.bySymbol[cp.Symbol] = append(s.bySymbol[cp.Symbol], cp.ID)
		}
		s.bySource[cp.Source] = append(s.bySource[cp.Source], cp.ID)
		s.order = append(s.order, cp.ID)
		s.evictLocked(ctx)
		out = cp
		created = true
		metrics.NotificationsCreated.WithLabelValues(cp.Source, string(cp.Priority)).Inc()
	})
	if err != nil {
		return models.Notification{}, false, err
	}
	if created {
		s.emit(EventCreated, out)
	}
	return out, created, nil
}

// evictLocked drops the oldest entries past the retention cap. Runs on the
// store loop.
func (s *Store) evictLocked(ctx context.Context) {
	for len(s.order) > s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		n, ok := s.byID[oldest]
		if !ok {
			continue
		}
		s.removeIndexes(n)
		delete(s.byID, oldest)
		metrics.NotificationsEvicted.Inc()
		if s.archiver != nil {
			s.archiver.Archive(ctx, *n)
		}
	}
}

func (s *Store) removeIndexes(n *models.Notification) {
	delete(s.byDedup, n.DedupKey)
	if n.Symbol != "" {
		s.bySymbol[n.Symbol] = removeID(s.bySymbol[n.Symbol], n.ID)
	}
	s.bySource[n.Source] = removeID(s.bySource[n.Source], n.ID)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (s *Store) Get(ctx context.Context, id string) (models.Notification, error) {
	var out models.Notification
	var found bool
	if err := s.do(ctx, func() {
		if n, ok := s.byID[id]; ok {
			out = *n
			found = true
		}
	}); err != nil {
		return models.Notification{}, err
	}
	if !found {
		return models.Notification{}, ErrNotFound
	}
	return out, nil
}

type ListOptions struct {
	Limit      int
	UnreadOnly bool
	Symbol     string
	Source     string
}

// List returns notifications newest-first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]models.Notification, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []models.Notification
	err := s.do(ctx, func() {
		ids := s.order
		switch {
		case opts.Symbol != "":
			ids = s.bySymbol[opts.Symbol]
		case opts.Source != "":
			ids = s.bySource[opts.Source]
		}
		for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
			n, ok := s.byID[ids[i]]
			if !ok {
				continue
			}
			if opts.UnreadOnly && n.Read {
				continue
			}
			out = append(out, *n)
		}
	})
	return out, err
}

// MarkRead is idempotent.
func (s *Store) MarkRead(ctx context.Context, id string) (models.Notification, error) {
	return s.mutate(ctx, id, func(n *models.Notification) {
		n.Read = true
	})
}

// Respond records the operator's action. Responding implies read. An optional
// custom message lands in the metadata bag.
func (s *Store) Respond(ctx context.Context, id, action, customMessage string) (models.Notification, error) {
	return s.mutate(ctx, id, func(n *models.Notification) {
		n.Responded = true
		n.Read = true
		n.ResponseAction = action
		if customMessage != "" {
			if n.Metadata == nil {
				n.Metadata = map[string]any{}
			}
			n.Metadata["custom_message"] = customMessage
		}
	})
}

// PatchSummary fills in a late-arriving AI summary.
func (s *Store) PatchSummary(ctx context.Context, id, summary string) (models.Notification, error) {
	return s.mutate(ctx, id, func(n *models.Notification) {
		n.SummarizedMessage = summary
	})
}

func (s *Store) mutate(ctx context.Context, id string, fn func(*models.Notification)) (models.Notification, error) {
	var out models.Notification
	var found bool
	if err := s.do(ctx, func() {
		n, ok := s.byID[id]
		if !ok {
			return
		}
		fn(n)
		out = *n
		found = true
	}); err != nil {
		return models.Notification{}, err
	}
	if !found {
		return models.Notification{}, ErrNotFound
	}
	s.emit(EventUpdated, out)
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	var out models.Notification
	var found bool
	if err := s.do(ctx, func() {
		n, ok := s.byID[id]
		if !ok {
			return
		}
		s.removeIndexes(n)
		delete(s.byID, id)
		s.order = removeID(s.order, id)
		out = *n
		found = true
	}); err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	s.emit(EventDeleted, out)
	return nil
}

// HasDedup reports whether a dedup key is already stored.
func (s *Store) HasDedup(ctx context.Context, key string) (models.Notification, bool, error) {
	var out models.Notification
	var found bool
	err := s.do(ctx, func() {
		if id, ok := s.byDedup[key]; ok {
			out = *s.byID[id]
			found = true
		}
	})
	return out, found, err
}

func (s *Store) StatsSummary(ctx context.Context) (Stats, error) {
	st := Stats{
		ByPriority: map[string]int{},
		BySource:   map[string]int{},
		ByType:     map[string]int{},
	}
	err := s.do(ctx, func() {
		for _, n := range s.byID {
			st.Total++
			if !n.Read {
				st.Unread++
			}
			if n.Responded {
				st.Responded++
			}
			st.ByPriority[string(n.Priority)]++
			st.BySource[n.Source]++
			st.ByType[n.Type]++
		}
	})
	return st, err
}
