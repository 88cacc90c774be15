// Package indicator computes EMA, RSI and MACD series over candle
// sequences. All functions are pure: they derive everything from the
// input slice and are recomputed whenever the buffer changes.
package indicator

import (
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// EMA computes the exponential moving average of the closes, seeded with
// the simple average of the first period closes. The first output point
// carries the time of candles[period-1]. Returns nil if fewer than
// period bars are available.
func EMA(candles []model.Candle, period int) []model.IndicatorPoint {
	if period <= 0 || len(candles) < period {
		return nil
	}
	closes := make([]float64, len(candles))
	times := make([]int64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		times[i] = c.Time
	}
	values := emaSeries(closes, period)
	out := make([]model.IndicatorPoint, len(values))
	for i, v := range values {
		out[i] = model.IndicatorPoint{Time: times[period-1+i], Value: v}
	}
	return out
}

// emaSeries returns the SMA-seeded EMA values of data, one per index
// starting at period-1.
func emaSeries(data []float64, period int) []float64 {
	if period <= 0 || len(data) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	seed := 0.0
	for _, v := range data[:period] {
		seed += v
	}
	seed /= float64(period)

	out := make([]float64, 0, len(data)-period+1)
	out = append(out, seed)
	e := seed
	for i := period; i < len(data); i++ {
		e = data[i]*k + e*(1-k)
		out = append(out, e)
	}
	return out
}

// RSI computes the Wilder-smoothed relative strength index of the closes.
// The seed average gain/loss is the simple mean of the first period
// deltas, so the first output point carries the time of candles[period].
// A zero average loss maps to RSI 100.
func RSI(candles []model.Candle, period int) []model.IndicatorPoint {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]model.IndicatorPoint, 0, len(candles)-period)
	out = append(out, model.IndicatorPoint{Time: candles[period].Time, Value: rsiValue(avgGain, avgLoss)})

	for i := period + 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out = append(out, model.IndicatorPoint{Time: candles[i].Time, Value: rsiValue(avgGain, avgLoss)})
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD computes the MACD line (EMA fast − EMA slow), its signal EMA and
// the histogram. The MACD line is defined from index slow-1; the signal
// seeds its own SMA over the first signal MACD values and reads as zero
// until that seed completes. Histogram is MACD minus signal at every
// point. Returns nil if fewer than slow bars are available.
func MACD(candles []model.Candle, fast, slow, signal int) []model.MACDPoint {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow || len(candles) < slow {
		return nil
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fastEMA := emaSeries(closes, fast) // index i → bar fast-1+i
	slowEMA := emaSeries(closes, slow) // index i → bar slow-1+i

	// MACD line defined where both EMAs are, i.e. from bar slow-1.
	offset := slow - fast
	macdLine := make([]float64, len(slowEMA))
	for i := range slowEMA {
		macdLine[i] = fastEMA[i+offset] - slowEMA[i]
	}

	signalSeries := emaSeries(macdLine, signal) // index i → macdLine signal-1+i

	out := make([]model.MACDPoint, len(macdLine))
	for i := range macdLine {
		p := model.MACDPoint{
			Time: candles[slow-1+i].Time,
			MACD: macdLine[i],
		}
		if j := i - (signal - 1); j >= 0 && j < len(signalSeries) {
			p.Signal = signalSeries[j]
		}
		p.Histogram = p.MACD - p.Signal
		out[i] = p
	}
	return out
}

// FilterPoints clips an indicator series to [fromTime, toTime]. Consumers
// pass the visible window start and the cursor time so series never reveal
// values ahead of the replay cursor.
func FilterPoints(points []model.IndicatorPoint, fromTime, toTime int64) []model.IndicatorPoint {
	out := make([]model.IndicatorPoint, 0, len(points))
	for _, p := range points {
		if p.Time < fromTime || p.Time > toTime {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FilterMACD clips a MACD series to [fromTime, toTime].
func FilterMACD(points []model.MACDPoint, fromTime, toTime int64) []model.MACDPoint {
	out := make([]model.MACDPoint, 0, len(points))
	for _, p := range points {
		if p.Time < fromTime || p.Time > toTime {
			continue
		}
		out = append(out, p)
	}
	return out
}
