package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"marketpulse/internal/config"
	"marketpulse/internal/market"
	"marketpulse/internal/models"
	"marketpulse/internal/store"
)

// Hub owns the live sessions and fans store events, price ticks, and market
// data refreshes out to them.
type Hub struct {
	Logger  *zap.Logger
	Config  config.DeliveryConfig
	Adapter *market.Adapter

	// Symbols and Timeframe drive the market-data topic refresh.
	Symbols   []string
	Timeframe string

	OriginPatterns []string

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub(cfg config.DeliveryConfig, adapter *market.Adapter, logger *zap.Logger) *Hub {
	return &Hub{
		Logger:   logger,
		Config:   cfg,
		Adapter:  adapter,
		sessions: map[string]*Session{},
	}
}

// Sink adapts the hub to the store's mutation event callback. It never
// blocks; per-session backpressure is handled inside Session.
func (h *Hub) Sink() store.Sink {
	return func(ev store.Event) { h.broadcastEvent(ev) }
}

func (h *Hub) broadcastEvent(ev store.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		s.HandleEvent(ev)
	}
}

// RunTicks drains a tick subscription and forwards to price subscribers.
// Ticks already queued are coalesced into one symbol-to-price map so a poll
// cycle over many positions produces a single consolidated frame.
func (h *Hub) RunTicks(ctx context.Context, ticks <-chan models.PriceTick) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-ticks:
			if !ok {
				return nil
			}
			batch := map[string]float64{t.Symbol: t.Price}
			ts := t.Timestamp
		coalesce:
			for {
				select {
				case t2, ok := <-ticks:
					if !ok {
						break coalesce
					}
					batch[t2.Symbol] = t2.Price
					if t2.Timestamp.After(ts) {
						ts = t2.Timestamp
					}
				default:
					break coalesce
				}
			}
			h.mu.RLock()
			for _, s := range h.sessions {
				s.HandleTicks(batch, ts)
			}
			h.mu.RUnlock()
		}
	}
}

// RunMarketData refreshes the candle tail for each tracked symbol on an
// interval and pushes it to market-data subscribers. Skips the fetch entirely
// when nobody is listening.
func (h *Hub) RunMarketData(ctx context.Context) error {
	interval := h.Config.OHLCVInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	limit := h.Config.OHLCVTailLimit
	if limit <= 0 {
		limit = 50
	}
	timeframe := h.Timeframe
	if timeframe == "" {
		timeframe = "1h"
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if !h.anySubscribed(TopicMarketData) {
				continue
			}
			for _, symbol := range h.Symbols {
				canonical := h.Adapter.Canonicalize(symbol)
				candles, err := h.Adapter.OHLCV(ctx, canonical, timeframe, limit)
				if err != nil {
					if ctx.Err() == nil && h.Logger != nil {
						h.Logger.Warn("market data refresh failed", zap.String("symbol", canonical), zap.Error(err))
					}
					continue
				}
				h.mu.RLock()
				for _, s := range h.sessions {
					s.HandleMarketData(canonical, timeframe, candles)
				}
				h.mu.RUnlock()
			}
		}
	}
}

func (h *Hub) anySubscribed(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if s.subscribedTo(topic) {
			return true
		}
	}
	return false
}

// SessionCount reports connected sessions for the system status endpoint.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Serve returns a gin handler that upgrades the request and runs a session
// pre-subscribed to the endpoint's topic.
func (h *Hub) Serve(topic string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origins := h.OriginPatterns
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns: origins,
		})
		if err != nil {
			if h.Logger != nil {
				h.Logger.Warn("websocket accept failed", zap.Error(err))
			}
			return
		}

		s := newSession(conn, topic, h.Config, h.Logger)
		h.mu.Lock()
		h.sessions[s.ID] = s
		h.mu.Unlock()

		s.run(c.Request.Context())

		h.mu.Lock()
		delete(h.sessions, s.ID)
		h.mu.Unlock()
	}
}
