package alert

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/enrich"
	"marketpulse/internal/market"
	"marketpulse/internal/metrics"
	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

// Engine evaluates user-defined alerts on a fixed cadence. Lookups are
// coalesced so each symbol is fetched at most once per tick. Triggering is
// single-shot unless the rearm window is configured.
type Engine struct {
	Repo     repository.AlertRepository
	Adapter  *market.Adapter
	Enricher *enrich.Enricher
	Logger   *zap.Logger
	Config   config.AlertsConfig

	Timeframe   string
	CandleLimit int
}

func (e *Engine) Run(ctx context.Context) error {
	interval := e.Config.EvalInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := e.Tick(ctx); err != nil && ctx.Err() == nil && e.Logger != nil {
				e.Logger.Warn("alert tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one evaluation pass.
func (e *Engine) Tick(ctx context.Context) error {
	now := time.Now().UTC()
	if e.Config.RearmAfter > 0 {
		if err := e.rearm(ctx, now); err != nil && e.Logger != nil {
			e.Logger.Warn("alert rearm failed", zap.Error(err))
		}
	}

	alerts, err := e.Repo.ListEnabledUntriggered(ctx)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		return nil
	}

	bySymbol := map[string][]models.Alert{}
	for _, a := range alerts {
		symbol := e.Adapter.Canonicalize(a.Symbol)
		bySymbol[symbol] = append(bySymbol[symbol], a)
	}

	for symbol, group := range bySymbol {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.evalSymbol(ctx, now, symbol, group)
	}
	return nil
}

func (e *Engine) evalSymbol(ctx context.Context, now time.Time, symbol string, group []models.Alert) {
	tk, err := e.Adapter.Ticker(ctx, symbol)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("alert ticker fetch failed", zap.String("symbol", symbol), zap.Error(err))
		}
		return
	}

	// Candles fetched lazily, once per symbol, only when an indicator alert
	// needs them.
	var candles []models.Candle
	candlesLoaded := false
	loadCandles := func() []models.Candle {
		if candlesLoaded {
			return candles
		}
		candlesLoaded = true
		limit := e.CandleLimit
		if limit <= 0 {
			limit = 250
		}
		tf := e.Timeframe
		if tf == "" {
			tf = "1h"
		}
		c, err := e.Adapter.OHLCV(ctx, symbol, tf, limit)
		if err != nil {
			if e.Logger != nil {
				e.Logger.Warn("alert ohlcv fetch failed", zap.String("symbol", symbol), zap.Error(err))
			}
			return nil
		}
		candles = c
		return candles
	}

	for _, a := range group {
		switch a.AlertType {
		case models.AlertTypePrice:
			if evaluatePrice(a, tk.Last) {
				e.trigger(ctx, now, a, tk.Last)
			}
		case models.AlertTypeIndicator:
			cs := loadCandles()
			if cs == nil {
				continue
			}
			reading, ok := indicatorReading(a.IndicatorName, cs)
			if !ok {
				continue
			}
			fired := evaluateIndicator(a, reading, a.PrevIndicatorValue)
			// Persist the reading so the next tick can detect crossings.
			a.PrevIndicatorValue = &reading
			a.UpdatedAt = now
			if fired {
				e.trigger(ctx, now, a, reading)
			} else if err := e.Repo.UpdateAlert(ctx, &a); err != nil && e.Logger != nil {
				e.Logger.Warn("alert state update failed", zap.String("id", a.ID), zap.Error(err))
			}
		}
	}
}

func (e *Engine) trigger(ctx context.Context, now time.Time, a models.Alert, observed float64) {
	a.Triggered = true
	a.TriggeredAt = &now
	a.UpdatedAt = now
	if err := e.Repo.UpdateAlert(ctx, &a); err != nil {
		if e.Logger != nil {
			e.Logger.Warn("alert trigger persist failed", zap.String("id", a.ID), zap.Error(err))
		}
		return
	}
	metrics.AlertsTriggered.Inc()

	priority := models.PriorityHigh
	if a.AlertType == models.AlertTypePrice && a.PriceThreshold != nil && *a.PriceThreshold > 0 {
		overshoot := math.Abs(observed-*a.PriceThreshold) / *a.PriceThreshold * 100
		if overshoot >= e.emergencyBand() {
			priority = models.PriorityCritical
		}
	}

	n := models.Notification{
		Type:       models.TypeTechnicalBreakout,
		Priority:   priority,
		Source:     models.SourceTechnical,
		Symbol:     a.Symbol,
		Title:      fmt.Sprintf("Alert triggered: %s", a.Symbol),
		Message:    describeAlert(a, observed),
		ExternalID: fmt.Sprintf("alert|%s|%d", a.ID, now.Unix()),
		Metadata: map[string]any{
			"alert_id":   a.ID,
			"alert_type": a.AlertType,
			"observed":   observed,
		},
		Actions: []string{models.ActionApprove, models.ActionDismiss},
	}
	if _, _, err := e.Enricher.Enrich(ctx, n); err != nil && e.Logger != nil {
		e.Logger.Warn("alert notification failed", zap.String("id", a.ID), zap.Error(err))
	}
}

func describeAlert(a models.Alert, observed float64) string {
	switch a.AlertType {
	case models.AlertTypePrice:
		threshold := 0.0
		if a.PriceThreshold != nil {
			threshold = *a.PriceThreshold
		}
		return fmt.Sprintf("%s price %.8g is %s threshold %.8g", a.Symbol, observed, a.PriceCondition, threshold)
	case models.AlertTypeIndicator:
		value := 0.0
		if a.IndicatorValue != nil {
			value = *a.IndicatorValue
		}
		return fmt.Sprintf("%s %s reading %.4g %s %.4g", a.Symbol, a.IndicatorName, observed, a.IndicatorCondition, value)
	}
	return a.Description
}

func (e *Engine) emergencyBand() float64 {
	if e.Config.EmergencyBand > 0 {
		return e.Config.EmergencyBand
	}
	return 3.0
}

// rearm re-enables triggered alerts whose cool-off window elapsed.
func (e *Engine) rearm(ctx context.Context, now time.Time) error {
	all, err := e.Repo.ListAlerts(ctx, "")
	if err != nil {
		return err
	}
	for _, a := range all {
		if !a.Triggered || !a.Enabled || a.TriggeredAt == nil {
			continue
		}
		if now.Sub(*a.TriggeredAt) < e.Config.RearmAfter {
			continue
		}
		a.Triggered = false
		a.TriggeredAt = nil
		a.PrevIndicatorValue = nil
		a.UpdatedAt = now
		if err := e.Repo.UpdateAlert(ctx, &a); err != nil && e.Logger != nil {
			e.Logger.Warn("alert rearm persist failed", zap.String("id", a.ID), zap.Error(err))
		}
	}
	return nil
}
