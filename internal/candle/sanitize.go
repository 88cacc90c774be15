// Package candle normalizes raw bars from any upstream source into a
// canonical OHLCV sequence and provides resampling helpers.
package candle

import (
	"math"
	"sort"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// Sanitize normalizes a raw bar slice: invalid bars dropped, sorted by time,
// duplicates collapsed (the later record wins), and decimal-scale outliers
// corrected against the median close of the sequence.
func Sanitize(raw []model.Candle) []model.Candle {
	out := make([]model.Candle, 0, len(raw))
	for _, c := range raw {
		if !valid(c) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return out
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	// Dedup in place, keeping the later record per timestamp.
	w := 0
	for i := 0; i < len(out); i++ {
		if w > 0 && out[w-1].Time == out[i].Time {
			out[w-1] = out[i]
			continue
		}
		out[w] = out[i]
		w++
	}
	out = out[:w]

	fixScale(out)
	return out
}

// valid rejects bars with non-positive prices, negative volume,
// zero timestamps, or inconsistent high/low bounds.
func valid(c model.Candle) bool {
	if c.Time <= 0 || c.Volume < 0 {
		return false
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return false
	}
	if c.High < c.Low {
		return false
	}
	if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
		return false
	}
	return true
}

// fixScale rescales bars whose prices sit a power of ten away from the
// median close. Feeds occasionally deliver a chunk in the wrong decimal
// scale (e.g. 1.0835 vs 10835); a single bad bar skews every indicator.
func fixScale(bars []model.Candle) {
	if len(bars) < 3 {
		return
	}
	closes := make([]float64, len(bars))
	for i, c := range bars {
		closes[i] = c.Close
	}
	sort.Float64s(closes)
	median := closes[len(closes)/2]
	if median <= 0 {
		return
	}

	for i := range bars {
		ratio := bars[i].Close / median
		if ratio > 0.2 && ratio < 5 {
			continue
		}
		scale := math.Pow(10, math.Round(math.Log10(ratio)))
		if scale == 0 || scale == 1 {
			continue
		}
		bars[i].Open /= scale
		bars[i].High /= scale
		bars[i].Low /= scale
		bars[i].Close /= scale
	}
}

// Resample aggregates finer-granularity bars into buckets of the given
// width in seconds. Bucket time is the aligned open; open is the first
// bar's open, close the last bar's close, high/low the extremes, volume
// the sum. Input must be sanitized (sorted, unique).
func Resample(fine []model.Candle, bucketSeconds int64) []model.Candle {
	if bucketSeconds <= 0 || len(fine) == 0 {
		return nil
	}
	out := make([]model.Candle, 0, len(fine))
	for _, c := range fine {
		bucket := c.Time - (c.Time % bucketSeconds)
		if n := len(out); n > 0 && out[n-1].Time == bucket {
			agg := &out[n-1]
			agg.Close = c.Close
			agg.Volume += c.Volume
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			continue
		}
		out = append(out, model.Candle{
			Time:   bucket,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return out
}

// SyntheticPad fabricates n flat candles preceding first, one bar-step
// apart, all priced at first's open with zero volume. The bars are
// flagged Synthetic so indicator consumers can exclude them.
func SyntheticPad(first model.Candle, n int, stepSeconds int64) []model.Candle {
	if n <= 0 || stepSeconds <= 0 {
		return nil
	}
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		t := first.Time - int64(n-i)*stepSeconds
		out[i] = model.Candle{
			Time:      t,
			Open:      first.Open,
			High:      first.Open,
			Low:       first.Open,
			Close:     first.Open,
			Synthetic: true,
		}
	}
	return out
}
