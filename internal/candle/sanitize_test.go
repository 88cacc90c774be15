package candle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/candle"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

func bar(t int64, o, h, l, c float64) model.Candle {
	return model.Candle{Time: t, Open: o, High: h, Low: l, Close: c, Volume: 100}
}

func flatBar(t int64, price float64) model.Candle {
	return bar(t, price, price, price, price)
}

func TestSanitize_DropsInvalidBars(t *testing.T) {
	raw := []model.Candle{
		flatBar(60, 1.10),
		{Time: 0, Open: 1, High: 1, Low: 1, Close: 1},       // zero time
		{Time: 120, Open: -1, High: 1, Low: 1, Close: 1},    // negative price
		{Time: 180, Open: 1, High: 0.9, Low: 1, Close: 1},   // high < low
		{Time: 240, Open: 2, High: 1.5, Low: 1, Close: 1.2}, // open above high
		flatBar(300, 1.11),
	}

	out := candle.Sanitize(raw)
	require.Len(t, out, 2)
	assert.Equal(t, int64(60), out[0].Time)
	assert.Equal(t, int64(300), out[1].Time)
}

func TestSanitize_SortsAndDedups(t *testing.T) {
	raw := []model.Candle{
		flatBar(180, 1.12),
		flatBar(60, 1.10),
		flatBar(120, 1.11),
		flatBar(120, 1.20), // later record for same timestamp wins
	}

	out := candle.Sanitize(raw)
	require.Len(t, out, 3)
	assert.Equal(t, int64(60), out[0].Time)
	assert.Equal(t, int64(120), out[1].Time)
	assert.InDelta(t, 1.20, out[1].Close, 1e-9)
	assert.Equal(t, int64(180), out[2].Time)
}

func TestSanitize_FixesDecimalScaleOutliers(t *testing.T) {
	raw := []model.Candle{
		flatBar(60, 1.10),
		flatBar(120, 1.11),
		flatBar(180, 11200), // four orders of magnitude off
		flatBar(240, 1.13),
		flatBar(300, 1.14),
	}

	out := candle.Sanitize(raw)
	require.Len(t, out, 5)
	assert.InDelta(t, 1.12, out[2].Close, 1e-9)
	assert.InDelta(t, 1.12, out[2].High, 1e-9)
}

func TestResample_AggregatesBuckets(t *testing.T) {
	fine := []model.Candle{
		bar(0, 1.0, 1.2, 0.9, 1.1),
		bar(60, 1.1, 1.4, 1.0, 1.3),
		bar(120, 1.3, 1.35, 1.25, 1.3),
		bar(300, 1.3, 1.5, 1.2, 1.45),
	}

	out := candle.Resample(fine, 300)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, int64(0), first.Time)
	assert.InDelta(t, 1.0, first.Open, 1e-9)
	assert.InDelta(t, 1.4, first.High, 1e-9)
	assert.InDelta(t, 0.9, first.Low, 1e-9)
	assert.InDelta(t, 1.3, first.Close, 1e-9)
	assert.InDelta(t, 300, first.Volume, 1e-9)

	second := out[1]
	assert.Equal(t, int64(300), second.Time)
	assert.InDelta(t, 1.45, second.Close, 1e-9)
}

func TestResample_AlignsBucketOpenTime(t *testing.T) {
	fine := []model.Candle{bar(3720, 1.0, 1.1, 0.9, 1.05)} // 01:02
	out := candle.Resample(fine, 3600)
	require.Len(t, out, 1)
	assert.Equal(t, int64(3600), out[0].Time)
}

func TestSyntheticPad_FlagsAndPrices(t *testing.T) {
	first := bar(6000, 1.25, 1.30, 1.20, 1.28)
	pad := candle.SyntheticPad(first, 3, 60)
	require.Len(t, pad, 3)

	assert.Equal(t, int64(5820), pad[0].Time)
	assert.Equal(t, int64(5940), pad[2].Time)
	for _, p := range pad {
		assert.True(t, p.Synthetic)
		assert.InDelta(t, 1.25, p.Open, 1e-9)
		assert.InDelta(t, 1.25, p.Close, 1e-9)
		assert.Zero(t, p.Volume)
	}
}

func TestSyntheticPad_EmptyForZeroCount(t *testing.T) {
	assert.Nil(t, candle.SyntheticPad(flatBar(60, 1), 0, 60))
}
