// Package trend derives a coarse trend label per timeframe from MACD
// output. Purely advisory: nothing feeds back into the order engine.
package trend

import (
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/indicator"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// minBars is the minimum history for a meaningful MACD(12,26,9) read.
const minBars = 50

// Classify labels the latest point of the candle sequence.
func Classify(candles []model.Candle) model.TrendLabel {
	if len(candles) < minBars {
		return model.TrendUnknown
	}
	points := indicator.MACD(candles, 12, 26, 9)
	if len(points) == 0 {
		return model.TrendUnknown
	}
	last := points[len(points)-1]

	if last.MACD > last.Signal {
		if last.MACD > 0 {
			return model.TrendBullish
		}
		return model.TrendSidewaysUp
	}
	if last.MACD < 0 {
		return model.TrendBearish
	}
	return model.TrendSidewaysDn
}

// ClassifyAll labels each timeframe's sequence for the advisory panel.
func ClassifyAll(byTimeframe map[model.Timeframe][]model.Candle) map[model.Timeframe]model.TrendLabel {
	out := make(map[model.Timeframe]model.TrendLabel, len(byTimeframe))
	for tf, candles := range byTimeframe {
		out[tf] = Classify(candles)
	}
	return out
}
