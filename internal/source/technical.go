package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/market"
	"marketpulse/internal/metrics"
	"marketpulse/internal/models"
	"marketpulse/internal/store"
)

// TechnicalCollector sweeps the configured symbol set on an interval and
// computes RSI, MACD, and moving-average crossovers. Signals where recent
// social sentiment agrees with the technical direction are upgraded to
// combined_signal.
type TechnicalCollector struct {
	Adapter *market.Adapter
	Store   *store.Store
	Logger  *zap.Logger
	Config  config.TechnicalConfig
	Tracker *Tracker

	BackoffCap float64

	mu       sync.Mutex
	prevMACD map[string]float64 // last MACD-signal delta per symbol, for crossover detection
	kick     chan struct{}
}

func (c *TechnicalCollector) Name() string { return "technical" }

func (c *TechnicalCollector) SourceInfo() SourceInfo {
	return SourceInfo{SourceType: "computed", PollInterval: c.interval()}
}

func (c *TechnicalCollector) interval() time.Duration {
	if c.Config.PollInterval > 0 {
		return c.Config.PollInterval
	}
	return 60 * time.Second
}

func (c *TechnicalCollector) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *TechnicalCollector) Stop() error { return nil }

func (c *TechnicalCollector) Health() HealthStatus { return c.Tracker.health() }

func (c *TechnicalCollector) Start(ctx context.Context, out Emitter) error {
	if c.kick == nil {
		c.kick = make(chan struct{}, 1)
	}
	if c.prevMACD == nil {
		c.prevMACD = map[string]float64{}
	}
	return pollLoop(ctx, c.interval(), c.BackoffCap, c.kick, func(ctx context.Context) pollResult {
		return c.sweep(ctx, out)
	})
}

func (c *TechnicalCollector) sweep(ctx context.Context, out Emitter) pollResult {
	now := time.Now().UTC()
	result := pollOK
	var lastErr error
	for _, symbol := range c.Config.Symbols {
		if ctx.Err() != nil {
			return pollFailed
		}
		if err := c.evalSymbol(ctx, symbol, out); err != nil {
			if errors.Is(err, market.ErrRateLimited) {
				result = pollRateLimited
				break
			}
			metrics.PollerErrors.WithLabelValues(c.Name()).Inc()
			lastErr = err
			result = pollFailed
		}
	}
	c.Tracker.Polled(now, lastErr)
	return result
}

type signalReading struct {
	direction  string // "bullish" or "bearish"
	reason     string
	confidence float64
}

func (c *TechnicalCollector) evalSymbol(ctx context.Context, symbol string, out Emitter) error {
	canonical := c.Adapter.Canonicalize(symbol)
	limit := c.Config.CandleLimit
	if limit <= 0 {
		limit = 100
	}
	candles, err := c.Adapter.OHLCV(ctx, canonical, c.timeframe(), limit)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}
	lastCandle := candles[len(candles)-1].OpenTime

	var readings []signalReading
	if rsi, ok := market.RSI(candles, 14); ok {
		switch {
		case rsi >= 70:
			readings = append(readings, signalReading{
				direction:  "bearish",
				reason:     fmt.Sprintf("RSI overbought at %.1f", rsi),
				confidence: clampScore((rsi - 70) / 30 * 100),
			})
		case rsi <= 30:
			readings = append(readings, signalReading{
				direction:  "bullish",
				reason:     fmt.Sprintf("RSI oversold at %.1f", rsi),
				confidence: clampScore((30 - rsi) / 30 * 100),
			})
		}
	}

	if macd, signalLine, ok := market.MACD(candles); ok {
		delta := macd - signalLine
		c.mu.Lock()
		prev, hadPrev := c.prevMACD[canonical]
		c.prevMACD[canonical] = delta
		c.mu.Unlock()
		if hadPrev && prev <= 0 && delta > 0 {
			readings = append(readings, signalReading{
				direction:  "bullish",
				reason:     "MACD crossed above signal line",
				confidence: clampScore(math.Abs(delta) / math.Max(math.Abs(signalLine), 1e-9) * 100),
			})
		}
		if hadPrev && prev >= 0 && delta < 0 {
			readings = append(readings, signalReading{
				direction:  "bearish",
				reason:     "MACD crossed below signal line",
				confidence: clampScore(math.Abs(delta) / math.Max(math.Abs(signalLine), 1e-9) * 100),
			})
		}
	}

	ma50, ok50 := market.SMA(candles, 50)
	ma200, ok200 := market.SMA(candles, 200)
	if ok50 && ok200 {
		last := candles[len(candles)-1].Close
		if last > ma50 && ma50 > ma200 {
			readings = append(readings, signalReading{
				direction:  "bullish",
				reason:     "price above MA50 above MA200",
				confidence: clampScore((last - ma50) / ma50 * 1000),
			})
		}
	}

	for _, r := range readings {
		c.emit(ctx, canonical, lastCandle, r, out)
	}
	return nil
}

func (c *TechnicalCollector) emit(ctx context.Context, symbol string, candleTime time.Time, r signalReading, out Emitter) {
	typ := models.TypeTechnicalBreakout
	confidence := r.confidence
	if c.sentimentAgrees(ctx, symbol, r.direction) {
		typ = models.TypeCombinedSignal
		confidence = clampScore(confidence + 15)
	}
	n := models.Notification{
		Type:     typ,
		Priority: models.PriorityHigh,
		Source:   models.SourceTechnical,
		Symbol:   symbol,
		Title:    fmt.Sprintf("%s %s signal", symbol, r.direction),
		Message:  fmt.Sprintf("%s: %s on %s candles", symbol, r.reason, c.timeframe()),
		// One emission per symbol, reason, and candle; the dedup key absorbs
		// repeat sweeps inside the same bar.
		ExternalID:      fmt.Sprintf("%s|%s|%d", symbol, r.reason, candleTime.Unix()),
		ConfidenceScore: &confidence,
		Metadata: map[string]any{
			"direction": r.direction,
			"timeframe": c.timeframe(),
		},
		Actions: []string{models.ActionApprove, models.ActionReject, models.ActionDismiss},
	}
	out.EmitNotification(n)
}

// sentimentAgrees checks the store for recent social posts mentioning the
// symbol; any surge inside the last hour counts as agreement with a bullish
// reading.
func (c *TechnicalCollector) sentimentAgrees(ctx context.Context, symbol, direction string) bool {
	if c.Store == nil || direction != "bullish" {
		return false
	}
	recent, err := c.Store.List(ctx, store.ListOptions{Limit: 20, Symbol: symbol})
	if err != nil {
		return false
	}
	cutoff := time.Now().UTC().Add(-time.Hour)
	for _, n := range recent {
		if n.Type == models.TypeSocialSurge && n.CreatedAt.After(cutoff) {
			return true
		}
	}
	return false
}

func (c *TechnicalCollector) timeframe() string {
	if c.Config.Timeframe != "" {
		return c.Config.Timeframe
	}
	return "1h"
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
