package threat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/metrics"
	"marketpulse/internal/models"
)

// PositionSource is the trading engine read contract.
type PositionSource interface {
	GetPositions(ctx context.Context) ([]models.Position, error)
}

// Notifier pushes a raw notification through enrichment into the store.
type Notifier interface {
	Enrich(ctx context.Context, n models.Notification) (models.Notification, bool, error)
}

// Detector watches open positions against live price ticks and emits graded
// risk_alert notifications. It consumes ticks from the hub's pub/sub channel;
// it never holds a pointer to the price poller.
type Detector struct {
	Ticks     <-chan models.PriceTick
	Positions PositionSource
	Enricher  Notifier
	Logger    *zap.Logger
	Config    config.ThreatConfig

	mu        sync.Mutex
	positions []models.Position
	history   map[string][]models.PriceTick
	grades    map[string]*gradeState // keyed by positionID + "|" + grade
}

// gradeState implements the re-emission hysteresis: a grade may only fire
// again after the position has been out of that band for the full window.
type gradeState struct {
	inBand   bool
	exitedAt time.Time
}

const (
	gradeCritical = "critical"
	gradeHigh     = "high"
)

func (d *Detector) Run(ctx context.Context) error {
	if d.history == nil {
		d.history = map[string][]models.PriceTick{}
	}
	if d.grades == nil {
		d.grades = map[string]*gradeState{}
	}

	refresh := time.NewTicker(10 * time.Second)
	defer refresh.Stop()
	d.refreshPositions(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-refresh.C:
			d.refreshPositions(ctx)
		case tick, ok := <-d.Ticks:
			if !ok {
				return nil
			}
			d.HandleTick(ctx, tick)
		}
	}
}

func (d *Detector) refreshPositions(ctx context.Context) {
	positions, err := d.Positions.GetPositions(ctx)
	if err != nil {
		if ctx.Err() == nil && d.Logger != nil {
			d.Logger.Warn("threat position refresh failed", zap.Error(err))
		}
		return
	}
	d.mu.Lock()
	d.positions = positions
	d.mu.Unlock()
}

// HandleTick records the tick and evaluates every open position on its
// symbol. Out-of-order ticks are dropped.
func (d *Detector) HandleTick(ctx context.Context, tick models.PriceTick) {
	d.mu.Lock()
	hist := d.history[tick.Symbol]
	if len(hist) > 0 && !tick.Timestamp.After(hist[len(hist)-1].Timestamp) {
		d.mu.Unlock()
		return
	}
	hist = append(hist, tick)
	cutoff := tick.Timestamp.Add(-d.velocityWindow())
	for len(hist) > 1 && hist[0].Timestamp.Before(cutoff) {
		hist = hist[1:]
	}
	d.history[tick.Symbol] = hist
	positions := make([]models.Position, 0, 4)
	for _, p := range d.positions {
		if p.Symbol == tick.Symbol {
			positions = append(positions, p)
		}
	}
	d.mu.Unlock()

	for _, p := range positions {
		d.evaluate(ctx, p, tick)
	}
}

func (d *Detector) evaluate(ctx context.Context, p models.Position, tick models.PriceTick) {
	dsl, hasStop := distanceToStop(p, tick.Price)
	velocity := d.velocity(tick.Symbol)
	adverse := adverseVelocity(p, velocity)

	grade := ""
	switch {
	case (hasStop && dsl <= d.criticalStop()) || adverse >= d.criticalVelocity():
		grade = gradeCritical
	case (hasStop && dsl <= d.highStop()) || adverse >= d.highVelocity():
		grade = gradeHigh
	}

	now := tick.Timestamp
	d.mu.Lock()
	shouldEmit := false
	for _, g := range []string{gradeCritical, gradeHigh} {
		key := p.ID + "|" + g
		st := d.grades[key]
		if st == nil {
			st = &gradeState{}
			d.grades[key] = st
		}
		if g == grade {
			if !st.inBand {
				// Re-entry inside the hysteresis window stays silent.
				if st.exitedAt.IsZero() || now.Sub(st.exitedAt) >= d.hysteresis() {
					shouldEmit = true
				}
				st.inBand = true
			}
		} else if st.inBand {
			st.inBand = false
			st.exitedAt = now
		}
	}
	d.mu.Unlock()

	if grade == "" || !shouldEmit {
		return
	}
	d.emit(ctx, p, tick, grade, dsl, hasStop, adverse)
}

func (d *Detector) emit(ctx context.Context, p models.Position, tick models.PriceTick, grade string, dsl float64, hasStop bool, adverse float64) {
	metrics.ThreatsEmitted.WithLabelValues(grade).Inc()
	priority := models.PriorityHigh
	if grade == gradeCritical {
		priority = models.PriorityCritical
	}
	detail := fmt.Sprintf("%s %s position at risk", p.Symbol, p.Side)
	if hasStop {
		detail = fmt.Sprintf("%s: %.2f%% from stop-loss", detail, dsl)
	}
	if adverse > 0 {
		detail = fmt.Sprintf("%s, %.2f%% adverse move in %s", detail, adverse, d.velocityWindow())
	}

	urgency := 100 - dsl*10
	if urgency < 0 {
		urgency = 0
	}
	n := models.Notification{
		Type:       models.TypeRiskAlert,
		Priority:   priority,
		Source:     models.SourceSystem,
		Symbol:     p.Symbol,
		Title:      fmt.Sprintf("Position threat: %s", p.Symbol),
		Message:    detail,
		ExternalID: fmt.Sprintf("threat|%s|%s|%d", p.ID, grade, tick.Timestamp.Unix()),
		UrgencyScore: &urgency,
		Metadata: map[string]any{
			"position_id": p.ID,
			"grade":       grade,
			"price":       tick.Price,
		},
		Actions: []string{models.ActionClosePosition, models.ActionDismiss},
	}
	if _, _, err := d.Enricher.Enrich(ctx, n); err != nil && d.Logger != nil {
		d.Logger.Warn("threat notification failed", zap.String("position", p.ID), zap.Error(err))
	}
}

// distanceToStop returns the stop-loss distance as a percent of current
// price. Positions without any stop configuration report no stop.
func distanceToStop(p models.Position, price float64) (float64, bool) {
	if price <= 0 {
		return 0, false
	}
	stop := 0.0
	switch {
	case p.StopLoss != nil && *p.StopLoss > 0:
		stop = *p.StopLoss
	case p.StopLossPercent != nil && *p.StopLossPercent > 0 && p.EntryPrice > 0:
		if p.Side == models.SideLong {
			stop = p.EntryPrice * (1 - *p.StopLossPercent/100)
		} else {
			stop = p.EntryPrice * (1 + *p.StopLossPercent/100)
		}
	default:
		return 0, false
	}

	var dist float64
	if p.Side == models.SideLong {
		dist = (price - stop) / price * 100
	} else {
		dist = (stop - price) / price * 100
	}
	if dist < 0 {
		dist = 0
	}
	return dist, true
}

// velocity returns the percent price change over the retained window.
func (d *Detector) velocity(symbol string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	hist := d.history[symbol]
	if len(hist) < 2 {
		return 0
	}
	first, last := hist[0].Price, hist[len(hist)-1].Price
	if first <= 0 {
		return 0
	}
	return (last - first) / first * 100
}

// adverseVelocity maps signed velocity onto "moving against the position".
func adverseVelocity(p models.Position, velocity float64) float64 {
	if p.Side == models.SideLong && velocity < 0 {
		return -velocity
	}
	if p.Side == models.SideShort && velocity > 0 {
		return velocity
	}
	return 0
}

func (d *Detector) velocityWindow() time.Duration {
	if d.Config.VelocityWindow > 0 {
		return d.Config.VelocityWindow
	}
	return 5 * time.Minute
}

func (d *Detector) hysteresis() time.Duration {
	if d.Config.Hysteresis > 0 {
		return d.Config.Hysteresis
	}
	return 60 * time.Second
}

func (d *Detector) criticalStop() float64 {
	if d.Config.CriticalStopPct > 0 {
		return d.Config.CriticalStopPct
	}
	return 0.5
}

func (d *Detector) criticalVelocity() float64 {
	if d.Config.CriticalVelocity > 0 {
		return d.Config.CriticalVelocity
	}
	return 5.0
}

func (d *Detector) highStop() float64 {
	if d.Config.HighStopPct > 0 {
		return d.Config.HighStopPct
	}
	return 2.0
}

func (d *Detector) highVelocity() float64 {
	if d.Config.HighVelocity > 0 {
		return d.Config.HighVelocity
	}
	return 2.0
}
