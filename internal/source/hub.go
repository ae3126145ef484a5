package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/enrich"
	"marketpulse/internal/models"
)

// Hub runs collectors, pushes their notifications through enrichment, and
// fans price ticks out to subscribers. Collectors can be started and stopped
// individually through the system API.
type Hub struct {
	enricher *enrich.Enricher
	logger   *zap.Logger
	snap     *Snapshot

	mu         sync.RWMutex
	collectors map[string]*managed
	tickSubs   []chan models.PriceTick

	notifCh chan models.Notification
	tickCh  chan models.PriceTick
}

type managed struct {
	collector Collector
	cancel    context.CancelFunc
	running   bool
}

func NewHub(enricher *enrich.Enricher, snap *Snapshot, logger *zap.Logger) *Hub {
	return &Hub{
		enricher:   enricher,
		logger:     logger,
		snap:       snap,
		collectors: map[string]*managed{},
		notifCh:    make(chan models.Notification, 128),
		tickCh:     make(chan models.PriceTick, 256),
	}
}

func (h *Hub) Register(c Collector) {
	if h == nil || c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collectors[c.Name()] = &managed{collector: c}
}

// EmitNotification implements Emitter.
func (h *Hub) EmitNotification(n models.Notification) {
	select {
	case h.notifCh <- n:
	default:
		if h.logger != nil {
			h.logger.Warn("notification channel full, dropping", zap.String("source", n.Source))
		}
	}
}

// EmitTick implements Emitter.
func (h *Hub) EmitTick(t models.PriceTick) {
	select {
	case h.tickCh <- t:
	default:
	}
}

// SubscribeTicks returns a channel of price ticks. Slow subscribers lose
// ticks rather than blocking the hub.
func (h *Hub) SubscribeTicks(buf int) <-chan models.PriceTick {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan models.PriceTick, buf)
	h.mu.Lock()
	h.tickSubs = append(h.tickSubs, ch)
	h.mu.Unlock()
	return ch
}

// Run starts all registered collectors and processes their output until ctx
// is cancelled. The snapshot is flushed on the way out.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	names := make([]string, 0, len(h.collectors))
	for name := range h.collectors {
		names = append(names, name)
	}
	h.mu.Unlock()

	for _, name := range names {
		if err := h.StartSource(ctx, name); err != nil && h.logger != nil {
			h.logger.Warn("collector start failed", zap.String("source", name), zap.Error(err))
		}
	}

	flush := time.NewTicker(30 * time.Second)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			h.stopAll()
			if h.snap != nil {
				if err := h.snap.Flush(); err != nil && h.logger != nil {
					h.logger.Warn("final snapshot flush failed", zap.Error(err))
				}
			}
			return ctx.Err()
		case <-flush.C:
			if h.snap != nil {
				if err := h.snap.Flush(); err != nil && h.logger != nil {
					h.logger.Warn("snapshot flush failed", zap.Error(err))
				}
			}
		case n := <-h.notifCh:
			if _, _, err := h.enricher.Enrich(ctx, n); err != nil && h.logger != nil {
				h.logger.Warn("enrich failed",
					zap.String("source", n.Source),
					zap.String("type", n.Type),
					zap.Error(err),
				)
			}
		case t := <-h.tickCh:
			h.fanoutTick(t)
		}
	}
}

func (h *Hub) fanoutTick(t models.PriceTick) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.tickSubs {
		select {
		case ch <- t:
		default:
		}
	}
}

func (h *Hub) stopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, m := range h.collectors {
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.running = false
		if err := m.collector.Stop(); err != nil && h.logger != nil {
			h.logger.Warn("collector stop failed", zap.String("source", name), zap.Error(err))
		}
	}
}

// StartSource launches one collector. Idempotent while running.
func (h *Hub) StartSource(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.collectors[name]
	if !ok {
		return fmt.Errorf("unknown source %q", name)
	}
	if m.running {
		return nil
	}
	cctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	go func() {
		err := m.collector.Start(cctx, h)
		h.mu.Lock()
		m.running = false
		h.mu.Unlock()
		if err != nil && cctx.Err() == nil && h.logger != nil {
			h.logger.Warn("collector stopped", zap.String("source", name), zap.Error(err))
		}
	}()
	return nil
}

// StopSource cancels one collector's loop. The cancellation error from its
// in-flight call is swallowed by the collector itself.
func (h *Hub) StopSource(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.collectors[name]
	if !ok {
		return fmt.Errorf("unknown source %q", name)
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.running = false
	return m.collector.Stop()
}

// Kick wakes a poller ahead of its interval, when supported.
func (h *Hub) Kick(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if m, ok := h.collectors[name]; ok {
		if k, ok := m.collector.(Kicker); ok {
			k.Kick()
			return true
		}
	}
	return false
}

// Status reports health of every registered collector.
func (h *Hub) Status() []models.SourceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.SourceHealth, 0, len(h.collectors))
	for name, m := range h.collectors {
		hs := m.collector.Health()
		item := models.SourceHealth{
			Name:    name,
			Running: m.running,
			Status:  hs.Status,
		}
		if hs.LastPollAt != nil {
			item.LastPollAt = hs.LastPollAt
		}
		if hs.LastError != nil {
			item.LastError = *hs.LastError
		}
		if p, ok := m.collector.(InfoProvider); ok {
			info := p.SourceInfo()
			item.SourceType = info.SourceType
			if info.PollInterval > 0 {
				item.Interval = info.PollInterval.String()
			}
		}
		out = append(out, item)
	}
	return out
}
