package source

import (
	"context"
	"sort"
	"sync"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// Memory is an in-memory candle source used by tests and the demo
// session. It honors context cancellation like a real source.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[model.Timeframe][]model.Candle // symbol -> tf -> ascending bars
}

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[model.Timeframe][]model.Candle)}
}

// Put stores bars for a symbol+timeframe, sorted ascending.
func (m *Memory) Put(symbol string, tf model.Timeframe, candles []model.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[symbol] == nil {
		m.data[symbol] = make(map[model.Timeframe][]model.Candle)
	}
	bars := make([]model.Candle, len(candles))
	copy(bars, candles)
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })
	m.data[symbol][tf] = bars
}

func (m *Memory) bars(symbol string, tf model.Timeframe) []model.Candle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[symbol][tf]
}

// FetchContext returns up to limit bars with time <= beforeTime, ascending.
func (m *Memory) FetchContext(ctx context.Context, symbol string, tf model.Timeframe, beforeTime int64, limit int) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars := m.bars(symbol, tf)
	end := sort.Search(len(bars), func(i int) bool { return bars[i].Time > beforeTime })
	start := end - limit
	if start < 0 {
		start = 0
	}
	return clone(bars[start:end]), nil
}

// FetchFuture returns up to limit bars with time > afterTime, ascending.
func (m *Memory) FetchFuture(ctx context.Context, symbol string, tf model.Timeframe, afterTime int64, limit int) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars := m.bars(symbol, tf)
	start := sort.Search(len(bars), func(i int) bool { return bars[i].Time > afterTime })
	end := start + limit
	if end > len(bars) {
		end = len(bars)
	}
	return clone(bars[start:end]), nil
}

// FetchHistorical returns up to limit bars strictly older than beforeTime, ascending.
func (m *Memory) FetchHistorical(ctx context.Context, symbol string, tf model.Timeframe, beforeTime int64, limit int) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars := m.bars(symbol, tf)
	end := sort.Search(len(bars), func(i int) bool { return bars[i].Time >= beforeTime })
	start := end - limit
	if start < 0 {
		start = 0
	}
	return clone(bars[start:end]), nil
}

// FetchFirst returns the earliest bar; empty timeframe scans them all.
func (m *Memory) FetchFirst(ctx context.Context, symbol string, tf model.Timeframe) (*model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tf != "" {
		bars := m.data[symbol][tf]
		if len(bars) == 0 {
			return nil, nil
		}
		c := bars[0]
		return &c, nil
	}
	var first *model.Candle
	for _, bars := range m.data[symbol] {
		if len(bars) == 0 {
			continue
		}
		if first == nil || bars[0].Time < first.Time {
			c := bars[0]
			first = &c
		}
	}
	return first, nil
}

// FetchLast returns the latest bar; empty timeframe scans them all.
func (m *Memory) FetchLast(ctx context.Context, symbol string, tf model.Timeframe) (*model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tf != "" {
		bars := m.data[symbol][tf]
		if len(bars) == 0 {
			return nil, nil
		}
		c := bars[len(bars)-1]
		return &c, nil
	}
	var last *model.Candle
	for _, bars := range m.data[symbol] {
		if len(bars) == 0 {
			continue
		}
		if last == nil || bars[len(bars)-1].Time > last.Time {
			c := bars[len(bars)-1]
			last = &c
		}
	}
	return last, nil
}

func clone(bars []model.Candle) []model.Candle {
	out := make([]model.Candle, len(bars))
	copy(out, bars)
	return out
}
