package alert

import (
	"testing"

	"marketpulse/internal/models"
)

func fptr(v float64) *float64 { return &v }

func TestEvaluatePrice(t *testing.T) {
	tests := []struct {
		cond      string
		threshold float64
		price     float64
		want      bool
	}{
		{models.PriceAbove, 100, 101, true},
		{models.PriceAbove, 100, 100, false},
		{models.PriceAbove, 100, 99, false},
		{models.PriceBelow, 100, 99, true},
		{models.PriceBelow, 100, 100, false},
		{models.PriceBelow, 100, 101, false},
	}
	for _, tt := range tests {
		a := models.Alert{
			AlertType:      models.AlertTypePrice,
			PriceCondition: tt.cond,
			PriceThreshold: fptr(tt.threshold),
		}
		if got := evaluatePrice(a, tt.price); got != tt.want {
			t.Fatalf("price %s %v at %v = %v, want %v", tt.cond, tt.threshold, tt.price, got, tt.want)
		}
	}

	if evaluatePrice(models.Alert{PriceCondition: models.PriceAbove}, 100) {
		t.Fatalf("alert without threshold fired")
	}
}

func TestEvaluateIndicatorLevels(t *testing.T) {
	above := models.Alert{IndicatorCondition: models.IndicatorAbove, IndicatorValue: fptr(70)}
	if !evaluateIndicator(above, 71, nil) {
		t.Fatalf("above 70 at 71 should fire")
	}
	if evaluateIndicator(above, 70, nil) {
		t.Fatalf("above 70 at 70 should not fire")
	}

	below := models.Alert{IndicatorCondition: models.IndicatorBelow, IndicatorValue: fptr(30)}
	if !evaluateIndicator(below, 29, nil) {
		t.Fatalf("below 30 at 29 should fire")
	}
}

func TestEvaluateIndicatorCrossing(t *testing.T) {
	a := models.Alert{IndicatorCondition: models.IndicatorCrossesAbove, IndicatorValue: fptr(70)}

	// Readings walk 65, 68, 71, 72: the crossing fires once, at 71.
	readings := []float64{65, 68, 71, 72}
	var prev *float64
	var fired []float64
	for _, r := range readings {
		if evaluateIndicator(a, r, prev) {
			fired = append(fired, r)
		}
		v := r
		prev = &v
	}
	if len(fired) != 1 || fired[0] != 71 {
		t.Fatalf("fired at %v, want exactly [71]", fired)
	}

	// Already above the threshold from the start: never a crossing.
	prev = nil
	fired = nil
	for _, r := range []float64{71, 72, 73} {
		if evaluateIndicator(a, r, prev) {
			fired = append(fired, r)
		}
		v := r
		prev = &v
	}
	if len(fired) != 0 {
		t.Fatalf("no-crossing sequence fired at %v", fired)
	}
}

func TestEvaluateIndicatorCrossingBelow(t *testing.T) {
	a := models.Alert{IndicatorCondition: models.IndicatorCrossesBelow, IndicatorValue: fptr(30)}

	if evaluateIndicator(a, 25, nil) {
		t.Fatalf("first reading fired without a previous value")
	}
	if !evaluateIndicator(a, 25, fptr(35)) {
		t.Fatalf("35 to 25 across 30 should fire")
	}
	if evaluateIndicator(a, 25, fptr(28)) {
		t.Fatalf("28 to 25 stays below, should not fire")
	}
}

func TestIndicatorReadingNames(t *testing.T) {
	candles := make([]models.Candle, 60)
	for i := range candles {
		candles[i].Close = 100 + float64(i)
	}
	for _, name := range []string{"RSI", "MACD", "MACD_crossover", "MA_50"} {
		if _, ok := indicatorReading(name, candles); !ok {
			t.Fatalf("indicator %s reported no reading", name)
		}
	}
	if _, ok := indicatorReading("MA_200", candles); ok {
		t.Fatalf("MA_200 with 60 candles should report insufficient data")
	}
	if _, ok := indicatorReading("bogus", candles); ok {
		t.Fatalf("unknown indicator produced a reading")
	}
}
