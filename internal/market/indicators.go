package market

import "marketpulse/internal/models"

// RSI computes the Wilder-smoothed relative strength index over the closes of
// the given candles. Returns (0, false) when there is not enough data.
func RSI(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 {
		period = 14
	}
	if len(candles) < period+1 {
		return 0, false
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		g, l := 0.0, 0.0
		if delta > 0 {
			g = delta
		} else {
			l = -delta
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// SMA computes the simple moving average of the last `period` closes.
func SMA(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period {
		return 0, false
	}
	var sum float64
	for _, c := range candles[len(candles)-period:] {
		sum += c.Close
	}
	return sum / float64(period), true
}

// MACD returns the MACD line (EMA12-EMA26) and signal line (EMA9 of MACD).
func MACD(candles []models.Candle) (macd, signalLine float64, ok bool) {
	const fast, slow, signal = 12, 26, 9
	if len(candles) < slow+signal {
		return 0, 0, false
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	fastEMA := emaSeries(closes, fast)
	slowEMA := emaSeries(closes, slow)

	// MACD series aligned from the point both EMAs exist.
	start := slow - 1
	macdSeries := make([]float64, 0, len(closes)-start)
	for i := start; i < len(closes); i++ {
		macdSeries = append(macdSeries, fastEMA[i]-slowEMA[i])
	}
	sig := emaSeries(macdSeries, signal)
	return macdSeries[len(macdSeries)-1], sig[len(sig)-1], true
}

func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}
