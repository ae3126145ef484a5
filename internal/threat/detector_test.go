package threat

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketpulse/internal/config"
	"marketpulse/internal/models"
)

type staticPositions struct {
	positions []models.Position
}

func (s *staticPositions) GetPositions(ctx context.Context) ([]models.Position, error) {
	return s.positions, nil
}

type captureNotifier struct {
	mu      sync.Mutex
	emitted []models.Notification
}

func (c *captureNotifier) Enrich(ctx context.Context, n models.Notification) (models.Notification, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, n)
	return n, true, nil
}

func (c *captureNotifier) grades() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.emitted))
	for _, n := range c.emitted {
		out = append(out, n.Metadata["grade"].(string))
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func longPosition(id string, entry float64, stopPct float64) models.Position {
	return models.Position{
		ID:              id,
		Symbol:          "BTC/USDT",
		Side:            models.SideLong,
		EntryPrice:      entry,
		StopLossPercent: ptr(stopPct),
	}
}

func newTestDetector(positions ...models.Position) (*Detector, *captureNotifier) {
	sink := &captureNotifier{}
	d := &Detector{
		Positions: &staticPositions{positions: positions},
		Enricher:  sink,
		Config: config.ThreatConfig{
			Enabled:          true,
			VelocityWindow:   5 * time.Minute,
			Hysteresis:       60 * time.Second,
			CriticalStopPct:  0.5,
			CriticalVelocity: 5.0,
			HighStopPct:      2.0,
			HighVelocity:     2.0,
		},
		history: map[string][]models.PriceTick{},
		grades:  map[string]*gradeState{},
	}
	d.refreshPositions(context.Background())
	return d, sink
}

func tickAt(price float64, at time.Time) models.PriceTick {
	return models.PriceTick{Symbol: "BTC/USDT", Price: price, Timestamp: at}
}

func TestDistanceToStop(t *testing.T) {
	long := longPosition("p", 100, 10) // stop at 90
	dist, ok := distanceToStop(long, 100)
	if !ok || dist != 10 {
		t.Fatalf("distance = %v ok=%v, want 10", dist, ok)
	}

	absStop := models.Position{ID: "p", Side: models.SideLong, EntryPrice: 100, StopLoss: ptr(95)}
	dist, ok = distanceToStop(absStop, 100)
	if !ok || dist != 5 {
		t.Fatalf("absolute stop distance = %v ok=%v, want 5", dist, ok)
	}

	short := models.Position{ID: "s", Side: models.SideShort, EntryPrice: 100, StopLoss: ptr(110)}
	dist, ok = distanceToStop(short, 100)
	if !ok || dist != 10 {
		t.Fatalf("short distance = %v ok=%v, want 10", dist, ok)
	}

	if _, ok := distanceToStop(models.Position{ID: "n", Side: models.SideLong}, 100); ok {
		t.Fatalf("position without stop should report none")
	}
}

func TestStopProximityGrading(t *testing.T) {
	// Entry 100, stop 90. At 91 the distance is ~1.1% (high band); at 90.2
	// it is ~0.22% (critical band).
	d, sink := newTestDetector(longPosition("p1", 100, 10))
	base := time.Unix(1700000000, 0)

	d.HandleTick(context.Background(), tickAt(91, base))
	d.HandleTick(context.Background(), tickAt(90.2, base.Add(time.Second)))

	grades := sink.grades()
	if len(grades) != 2 || grades[0] != "high" || grades[1] != "critical" {
		t.Fatalf("grades = %v, want [high critical]", grades)
	}
}

func TestVelocityGrading(t *testing.T) {
	// No stop configured; grading comes from adverse velocity alone.
	d, sink := newTestDetector(models.Position{
		ID:         "p1",
		Symbol:     "BTC/USDT",
		Side:       models.SideLong,
		EntryPrice: 100,
	})
	base := time.Unix(1700000000, 0)

	d.HandleTick(context.Background(), tickAt(100, base))
	// 3% drop in the window: high.
	d.HandleTick(context.Background(), tickAt(97, base.Add(time.Minute)))
	// 6% total drop: critical.
	d.HandleTick(context.Background(), tickAt(94, base.Add(2*time.Minute)))

	grades := sink.grades()
	if len(grades) != 2 || grades[0] != "high" || grades[1] != "critical" {
		t.Fatalf("grades = %v, want [high critical]", grades)
	}
}

func TestVelocityIgnoresFavorableMove(t *testing.T) {
	d, sink := newTestDetector(models.Position{
		ID:         "p1",
		Symbol:     "BTC/USDT",
		Side:       models.SideShort,
		EntryPrice: 100,
	})
	base := time.Unix(1700000000, 0)

	// A drop is favorable for a short.
	d.HandleTick(context.Background(), tickAt(100, base))
	d.HandleTick(context.Background(), tickAt(90, base.Add(time.Minute)))

	if got := sink.grades(); len(got) != 0 {
		t.Fatalf("favorable move emitted %v", got)
	}
}

func TestHysteresisSuppressesFastReentry(t *testing.T) {
	d, sink := newTestDetector(longPosition("p1", 100, 10))
	base := time.Unix(1700000000, 0)

	d.HandleTick(context.Background(), tickAt(90.2, base)) // critical
	d.HandleTick(context.Background(), tickAt(95, base.Add(10*time.Second)))
	// Back in the critical band only 20s after leaving it: silent.
	d.HandleTick(context.Background(), tickAt(90.2, base.Add(30*time.Second)))

	grades := sink.grades()
	if len(grades) != 1 || grades[0] != "critical" {
		t.Fatalf("grades = %v, want single critical", grades)
	}
}

func TestHysteresisAllowsSlowReentry(t *testing.T) {
	d, sink := newTestDetector(longPosition("p1", 100, 10))
	base := time.Unix(1700000000, 0)

	d.HandleTick(context.Background(), tickAt(90.2, base)) // critical
	d.HandleTick(context.Background(), tickAt(95, base.Add(10*time.Second)))
	// 70s out of the band before re-entering: a fresh alert.
	d.HandleTick(context.Background(), tickAt(90.2, base.Add(80*time.Second)))

	grades := sink.grades()
	if len(grades) != 2 || grades[0] != "critical" || grades[1] != "critical" {
		t.Fatalf("grades = %v, want [critical critical]", grades)
	}
}

func TestSustainedBandEmitsOnce(t *testing.T) {
	d, sink := newTestDetector(longPosition("p1", 100, 10))
	base := time.Unix(1700000000, 0)

	for i := 0; i < 5; i++ {
		d.HandleTick(context.Background(), tickAt(90.2, base.Add(time.Duration(i)*time.Second)))
	}
	if got := sink.grades(); len(got) != 1 {
		t.Fatalf("sustained band emitted %v, want one alert", got)
	}
}

func TestOutOfOrderTickDropped(t *testing.T) {
	d, sink := newTestDetector(longPosition("p1", 100, 10))
	base := time.Unix(1700000000, 0)

	d.HandleTick(context.Background(), tickAt(100, base.Add(time.Minute)))
	// Stale tick deep in the critical band arrives late: ignored.
	d.HandleTick(context.Background(), tickAt(90.2, base))

	if got := sink.grades(); len(got) != 0 {
		t.Fatalf("stale tick emitted %v", got)
	}
}

func TestEmitShape(t *testing.T) {
	d, sink := newTestDetector(longPosition("p1", 100, 10))
	d.HandleTick(context.Background(), tickAt(90.2, time.Unix(1700000000, 0)))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.emitted) != 1 {
		t.Fatalf("emitted %d notifications, want 1", len(sink.emitted))
	}
	n := sink.emitted[0]
	if n.Type != models.TypeRiskAlert {
		t.Fatalf("type = %q, want %q", n.Type, models.TypeRiskAlert)
	}
	if n.Priority != models.PriorityCritical {
		t.Fatalf("priority = %q, want critical", n.Priority)
	}
	if n.Metadata["position_id"] != "p1" {
		t.Fatalf("metadata = %v, want position_id p1", n.Metadata)
	}
	if len(n.Actions) != 2 {
		t.Fatalf("actions = %v, want close_position and dismiss", n.Actions)
	}
}
