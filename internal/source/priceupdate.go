package source

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/market"
	"marketpulse/internal/metrics"
	"marketpulse/internal/models"
)

// PositionSource is the trading engine read contract this poller needs.
type PositionSource interface {
	GetPositions(ctx context.Context) ([]models.Position, error)
}

// PriceUpdateCollector refreshes the current price for every open-position
// symbol and emits price ticks. Ticks are events, not notifications; they feed
// the price topics and the threat detector.
type PriceUpdateCollector struct {
	Adapter   *market.Adapter
	Positions PositionSource
	Logger    *zap.Logger
	Config    config.PriceUpdateConfig
	Tracker   *Tracker

	BackoffCap float64

	kick chan struct{}
}

func (c *PriceUpdateCollector) Name() string { return "price_update" }

func (c *PriceUpdateCollector) SourceInfo() SourceInfo {
	return SourceInfo{SourceType: "rest_poll", PollInterval: c.interval()}
}

func (c *PriceUpdateCollector) interval() time.Duration {
	if c.Config.PollInterval > 0 {
		return c.Config.PollInterval
	}
	return 3 * time.Second
}

func (c *PriceUpdateCollector) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *PriceUpdateCollector) Stop() error { return nil }

func (c *PriceUpdateCollector) Health() HealthStatus { return c.Tracker.health() }

func (c *PriceUpdateCollector) Start(ctx context.Context, out Emitter) error {
	if c.kick == nil {
		c.kick = make(chan struct{}, 1)
	}
	return pollLoop(ctx, c.interval(), c.BackoffCap, c.kick, func(ctx context.Context) pollResult {
		return c.pollOnce(ctx, out)
	})
}

func (c *PriceUpdateCollector) pollOnce(ctx context.Context, out Emitter) pollResult {
	now := time.Now().UTC()
	positions, err := c.Positions.GetPositions(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return pollFailed
		}
		metrics.PollerErrors.WithLabelValues(c.Name()).Inc()
		c.Tracker.Polled(now, err)
		return pollFailed
	}

	// One ticker fetch per distinct symbol, not per position.
	seen := map[string]struct{}{}
	result := pollOK
	var lastErr error
	for _, p := range positions {
		symbol := c.Adapter.Canonicalize(p.Symbol)
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}

		tk, err := c.Adapter.Ticker(ctx, symbol)
		if err != nil {
			if errors.Is(err, market.ErrRateLimited) {
				result = pollRateLimited
				break
			}
			metrics.PollerErrors.WithLabelValues(c.Name()).Inc()
			lastErr = err
			continue
		}
		out.EmitTick(models.PriceTick{
			Symbol:    symbol,
			Price:     tk.Last,
			Timestamp: tk.Timestamp,
		})
	}
	c.Tracker.Polled(now, lastErr)
	return result
}
