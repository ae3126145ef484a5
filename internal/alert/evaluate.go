package alert

import (
	"marketpulse/internal/market"
	"marketpulse/internal/models"
)

// evaluatePrice reports whether a price alert's condition holds for the tick.
func evaluatePrice(a models.Alert, price float64) bool {
	if a.PriceThreshold == nil {
		return false
	}
	switch a.PriceCondition {
	case models.PriceAbove:
		return price > *a.PriceThreshold
	case models.PriceBelow:
		return price < *a.PriceThreshold
	}
	return false
}

// evaluateIndicator reports whether an indicator alert fires given the current
// reading and, for crossing conditions, the previous one. Crossing requires
// two consecutive evaluations on opposite sides of the threshold; a first
// reading never fires.
func evaluateIndicator(a models.Alert, current float64, prev *float64) bool {
	if a.IndicatorValue == nil {
		return false
	}
	threshold := *a.IndicatorValue
	switch a.IndicatorCondition {
	case models.IndicatorAbove:
		return current > threshold
	case models.IndicatorBelow:
		return current < threshold
	case models.IndicatorCrossesAbove:
		return prev != nil && *prev <= threshold && current > threshold
	case models.IndicatorCrossesBelow:
		return prev != nil && *prev >= threshold && current < threshold
	}
	return false
}

// indicatorReading computes the requested indicator from candles.
func indicatorReading(name string, candles []models.Candle) (float64, bool) {
	switch name {
	case "RSI":
		return market.RSI(candles, 14)
	case "MACD":
		macd, _, ok := market.MACD(candles)
		return macd, ok
	case "MACD_crossover":
		macd, signal, ok := market.MACD(candles)
		return macd - signal, ok
	case "MA_50":
		return market.SMA(candles, 50)
	case "MA_200":
		return market.SMA(candles, 200)
	}
	return 0, false
}
