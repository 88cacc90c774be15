package indicator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/indicator"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

func candles(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Time: int64(i+1) * 60, Open: c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	return out
}

func TestEMA_SeededWithSMA(t *testing.T) {
	series := indicator.EMA(candles(1, 2, 3, 4, 5), 3)
	require.Len(t, series, 3)

	// First point is the SMA of the first three closes, at the third bar.
	assert.Equal(t, int64(180), series[0].Time)
	assert.InDelta(t, 2.0, series[0].Value, 1e-9)

	// k = 2/(3+1) = 0.5
	assert.InDelta(t, 3.0, series[1].Value, 1e-9) // 4*0.5 + 2*0.5
	assert.InDelta(t, 4.0, series[2].Value, 1e-9) // 5*0.5 + 3*0.5
}

func TestEMA_ConstantSeriesStaysFlat(t *testing.T) {
	series := indicator.EMA(candles(7, 7, 7, 7, 7, 7, 7, 7), 4)
	require.NotEmpty(t, series)
	for _, p := range series {
		assert.InDelta(t, 7.0, p.Value, 1e-9)
	}
}

func TestEMA_InsufficientData(t *testing.T) {
	assert.Nil(t, indicator.EMA(candles(1, 2), 3))
	assert.Nil(t, indicator.EMA(nil, 3))
}

func TestRSI_BoundsAndFirstTime(t *testing.T) {
	closes := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1,
		45.9, 46.3, 46.8, 46.4, 46.2, 45.6, 46.2, 46.2, 46.0, 46.0}
	series := indicator.RSI(candles(closes...), 14)
	require.Len(t, series, len(closes)-14)

	// First sample lands on the bar after the seed window.
	assert.Equal(t, int64(15*60), series[0].Time)
	for _, p := range series {
		assert.GreaterOrEqual(t, p.Value, 0.0)
		assert.LessOrEqual(t, p.Value, 100.0)
	}
}

func TestRSI_MonotonicRiseSaturatesAt100(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	series := indicator.RSI(candles(closes...), 14)
	require.NotEmpty(t, series)
	for _, p := range series {
		assert.InDelta(t, 100.0, p.Value, 1e-9)
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	assert.Nil(t, indicator.RSI(candles(1, 2, 3), 14))
}

func TestMACD_HistogramIdentity(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i%7) + float64(i)*0.3
	}
	series := indicator.MACD(candles(closes...), 12, 26, 9)
	require.NotEmpty(t, series)

	// Line starts at the slow EMA's first bar.
	assert.Equal(t, int64(26*60), series[0].Time)

	for i, p := range series {
		if i < 8 {
			// Signal not yet seeded.
			assert.Zero(t, p.Signal)
		}
		// Identity holds at every point, seeded or not.
		assert.InDelta(t, p.MACD-p.Signal, p.Histogram, 1e-9)
	}
}

func TestMACD_ConstantSeriesIsZero(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 50
	}
	series := indicator.MACD(candles(closes...), 12, 26, 9)
	require.NotEmpty(t, series)
	for _, p := range series {
		assert.InDelta(t, 0.0, p.MACD, 1e-9)
		assert.InDelta(t, 0.0, p.Signal, 1e-9)
	}
}

func TestMACD_RejectsBadPeriods(t *testing.T) {
	cs := candles(1, 2, 3, 4, 5)
	assert.Nil(t, indicator.MACD(cs, 26, 12, 9)) // fast >= slow
	assert.Nil(t, indicator.MACD(cs, 12, 26, 9)) // too few bars
}

func TestFilterPoints_ClipsToWindow(t *testing.T) {
	points := []model.IndicatorPoint{
		{Time: 60, Value: 1}, {Time: 120, Value: 2}, {Time: 180, Value: 3}, {Time: 240, Value: 4},
	}
	out := indicator.FilterPoints(points, 120, 180)
	require.Len(t, out, 2)
	assert.Equal(t, int64(120), out[0].Time)
	assert.Equal(t, int64(180), out[1].Time)
}
