// Package buffer owns the warmup and visible candle regions for the
// active symbol+timeframe and keeps them gap-free while the replay
// cursor moves, streams forward, or jumps.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/candle"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// ErrNoData is reported when every fetch strategy, including the
// earliest-available fallback, came back empty.
var ErrNoData = errors.New("no candle data available")

// ErrSuperseded is reported when a newer Load invalidated the request
// before its result could be committed. Callers treat it as a no-op.
var ErrSuperseded = errors.New("request superseded by a newer load")

// Config holds buffer sizing parameters.
type Config struct {
	WarmupBars         int             // minimum indicator warmup length
	VisibleCandles     int             // target visible window size
	LookaheadThreshold int             // remaining bars that trigger a forward fetch
	ChunkSize          int             // bars per streaming/backfill fetch
	FallbackTimeframe  model.Timeframe // finer timeframe for partial-bar rebuilds
}

// Manager maintains the candle regions for one symbol+timeframe at a time.
// All mutation is serialized; in-flight fetches for a superseded load never
// commit (last writer wins).
type Manager struct {
	mu     sync.Mutex
	src    Source
	cfg    Config
	logger *zap.Logger

	symbol string
	tf     model.Timeframe

	warmup  []model.Candle // strictly before visible[0], synthetic-padded
	visible []model.Candle

	realTime    float64 // partial-bar price, 0 when the anchor sits on a boundary
	hasRealTime bool

	version     uint64 // bumped on every buffer mutation
	generation  uint64 // bumped on every Load; stale fetches check it
	cancel      context.CancelFunc
	extending   bool
	backfilling bool
	exhausted   bool // forward stream ran dry
}

// New creates a buffer manager over the given source.
func New(src Source, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WarmupBars <= 0 {
		cfg.WarmupBars = 200
	}
	if cfg.VisibleCandles <= 0 {
		cfg.VisibleCandles = 1000
	}
	if cfg.LookaheadThreshold <= 0 {
		cfg.LookaheadThreshold = 50
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	if cfg.FallbackTimeframe == "" {
		cfg.FallbackTimeframe = model.TFM5
	}
	return &Manager{src: src, cfg: cfg, logger: logger}
}

// Load (re)builds the warmup and visible regions around anchor and
// returns the cursor index: the last visible bar with time <= anchor,
// or 0 if none. Any prior in-flight request is cancelled and discarded.
func (m *Manager) Load(ctx context.Context, symbol string, tf model.Timeframe, anchor int64) (int, error) {
	if !tf.Valid() {
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}

	m.mu.Lock()
	m.generation++
	gen := m.generation
	if m.cancel != nil {
		m.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	warmup, visible, realTime, hasRT, err := m.build(fetchCtx, symbol, tf, anchor)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		// A newer load owns the buffer now; a fetch error here is moot.
		return 0, ErrSuperseded
	}
	if err != nil {
		return 0, err
	}
	m.symbol = symbol
	m.tf = tf
	m.warmup = warmup
	m.visible = visible
	m.realTime = realTime
	m.hasRealTime = hasRT
	m.exhausted = false
	m.extending = false
	m.backfilling = false
	m.version++

	cursor := lastIndexAtOrBefore(visible, anchor)
	m.logger.Info("buffer_loaded",
		zap.String("symbol", symbol),
		zap.String("timeframe", string(tf)),
		zap.Int("warmup", len(warmup)),
		zap.Int("visible", len(visible)),
		zap.Int("cursor", cursor),
	)
	return cursor, nil
}

// build assembles the regions without touching manager state.
func (m *Manager) build(ctx context.Context, symbol string, tf model.Timeframe, anchor int64) (warmup, visible []model.Candle, realTime float64, hasRT bool, err error) {
	barSec := tf.Seconds()

	ctxBars, err := m.src.FetchContext(ctx, symbol, tf, anchor, m.cfg.VisibleCandles)
	if err != nil {
		return nil, nil, 0, false, fmt.Errorf("context fetch: %w", err)
	}
	futBars, err := m.src.FetchFuture(ctx, symbol, tf, anchor, m.cfg.VisibleCandles)
	if err != nil {
		return nil, nil, 0, false, fmt.Errorf("future fetch: %w", err)
	}

	if len(ctxBars) == 0 && len(futBars) == 0 {
		return m.buildFromEarliest(ctx, symbol, tf)
	}

	visible = mergeForwardWins(candle.Sanitize(ctxBars), candle.Sanitize(futBars))
	if len(visible) == 0 {
		// The fetches returned records but none survived sanitizing;
		// recover the same way as an empty window.
		return m.buildFromEarliest(ctx, symbol, tf)
	}

	// Partial-bar reconstruction: the anchor falls strictly inside the
	// interval of the bar it lands on.
	if i := lastIndexAtOrBefore(visible, anchor); i >= 0 {
		bar := visible[i]
		if anchor > bar.Time && anchor < bar.Time+barSec {
			if rebuilt, price, ok := m.rebuildPartial(ctx, symbol, bar, anchor); ok {
				visible[i] = rebuilt
				realTime, hasRT = price, true
			}
		}
	}

	warmup, err = m.fetchWarmup(ctx, symbol, tf, visible[0])
	if err != nil {
		return nil, nil, 0, false, err
	}
	return warmup, visible, realTime, hasRT, nil
}

// buildFromEarliest recovers from an empty window by anchoring at the
// symbol's earliest available bar, on any timeframe if needed.
func (m *Manager) buildFromEarliest(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Candle, []model.Candle, float64, bool, error) {
	first, err := m.src.FetchFirst(ctx, symbol, tf)
	if err != nil {
		return nil, nil, 0, false, fmt.Errorf("first-bar fetch: %w", err)
	}
	if first == nil {
		first, err = m.src.FetchFirst(ctx, symbol, "")
		if err != nil {
			return nil, nil, 0, false, fmt.Errorf("first-bar fetch (any timeframe): %w", err)
		}
	}
	if first == nil {
		return nil, nil, 0, false, ErrNoData
	}

	futBars, err := m.src.FetchFuture(ctx, symbol, tf, first.Time-1, m.cfg.VisibleCandles)
	if err != nil {
		return nil, nil, 0, false, fmt.Errorf("future fetch from first bar: %w", err)
	}
	visible := candle.Sanitize(futBars)
	if len(visible) == 0 {
		return nil, nil, 0, false, ErrNoData
	}

	warmup := candle.SyntheticPad(visible[0], m.cfg.WarmupBars, tf.Seconds())
	return warmup, visible, 0, false, nil
}

// rebuildPartial re-aggregates finer-granularity bars over the span of
// bar up to the anchor, replacing close/high/low/volume with the partial
// aggregate. Returns ok=false when no finer data covers the span.
func (m *Manager) rebuildPartial(ctx context.Context, symbol string, bar model.Candle, anchor int64) (model.Candle, float64, bool) {
	limit := int((anchor-bar.Time)/m.cfg.FallbackTimeframe.Seconds()) + 2
	fine, err := m.src.FetchContext(ctx, symbol, m.cfg.FallbackTimeframe, anchor, limit)
	if err != nil || len(fine) == 0 {
		return bar, 0, false
	}

	var inSpan []model.Candle
	for _, c := range candle.Sanitize(fine) {
		if c.Time >= bar.Time && c.Time <= anchor {
			inSpan = append(inSpan, c)
		}
	}
	if len(inSpan) == 0 {
		return bar, 0, false
	}

	partial := inSpan[0]
	for _, c := range inSpan[1:] {
		partial.Close = c.Close
		partial.Volume += c.Volume
		if c.High > partial.High {
			partial.High = c.High
		}
		if c.Low < partial.Low {
			partial.Low = c.Low
		}
	}

	bar.Close = partial.Close
	bar.High = partial.High
	bar.Low = partial.Low
	bar.Volume = partial.Volume
	return bar, partial.Close, true
}

// fetchWarmup fetches bars strictly before firstVisible and pads the
// front with synthetic flat candles up to the configured minimum.
func (m *Manager) fetchWarmup(ctx context.Context, symbol string, tf model.Timeframe, firstVisible model.Candle) ([]model.Candle, error) {
	hist, err := m.src.FetchHistorical(ctx, symbol, tf, firstVisible.Time, m.cfg.WarmupBars)
	if err != nil {
		return nil, fmt.Errorf("warmup fetch: %w", err)
	}
	warmup := candle.Sanitize(hist)

	// Defensive trim: a sloppy source may return the boundary bar itself.
	for len(warmup) > 0 && warmup[len(warmup)-1].Time >= firstVisible.Time {
		warmup = warmup[:len(warmup)-1]
	}

	if missing := m.cfg.WarmupBars - len(warmup); missing > 0 {
		seed := firstVisible
		if len(warmup) > 0 {
			seed = warmup[0]
		}
		pad := candle.SyntheticPad(seed, missing, tf.Seconds())
		warmup = append(pad, warmup...)
	}
	return warmup, nil
}

// ExtendIfNeeded streams the next chunk when the cursor is within the
// lookahead threshold of the visible tail. Returns the number of bars
// appended. Safe to call from a goroutine per tick; concurrent calls
// collapse to one fetch.
func (m *Manager) ExtendIfNeeded(ctx context.Context, cursor int) (int, error) {
	m.mu.Lock()
	if len(m.visible) == 0 || m.exhausted || m.extending {
		m.mu.Unlock()
		return 0, nil
	}
	if len(m.visible)-1-cursor > m.cfg.LookaheadThreshold {
		m.mu.Unlock()
		return 0, nil
	}
	m.extending = true
	gen := m.generation
	symbol, tf := m.symbol, m.tf
	tail := m.visible[len(m.visible)-1].Time
	m.mu.Unlock()

	bars, err := m.src.FetchFuture(ctx, symbol, tf, tail, m.cfg.ChunkSize)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.extending = false
	if gen != m.generation {
		return 0, ErrSuperseded
	}
	if err != nil {
		// Fetch failures resolve to empty results; the stream just stalls.
		m.logger.Warn("buffer_extend_failed", zap.Error(err))
		return 0, nil
	}

	appended := 0
	for _, c := range candle.Sanitize(bars) {
		if c.Time <= m.visible[len(m.visible)-1].Time {
			continue
		}
		m.visible = append(m.visible, c)
		appended++
	}
	if appended == 0 {
		m.exhausted = true
	} else {
		m.version++
	}
	return appended, nil
}

// LoadMoreHistory splices older bars onto the front of the visible
// window and returns how many were inserted, so the caller can shift
// its cursor by the same amount. The warmup region slides back with it,
// refilled from the source where real history exists. Concurrent calls
// collapse to one splice.
func (m *Manager) LoadMoreHistory(ctx context.Context) (int, error) {
	m.mu.Lock()
	if len(m.visible) == 0 || m.backfilling {
		m.mu.Unlock()
		return 0, nil
	}
	m.backfilling = true
	gen := m.generation
	symbol, tf := m.symbol, m.tf
	defer func() {
		m.mu.Lock()
		// A newer load already cleared the flag for its own buffer.
		if gen == m.generation {
			m.backfilling = false
		}
		m.mu.Unlock()
	}()

	// Promote the newest real warmup bars into the visible front.
	promoted := make([]model.Candle, 0, m.cfg.ChunkSize)
	cut := len(m.warmup)
	for cut > 0 && len(promoted) < m.cfg.ChunkSize && !m.warmup[cut-1].Synthetic {
		promoted = append([]model.Candle{m.warmup[cut-1]}, promoted...)
		cut--
	}
	if len(promoted) == 0 {
		// All warmup is synthetic: there is no older real history.
		m.mu.Unlock()
		return 0, nil
	}
	// Refill boundary: everything at or after the oldest remaining
	// warmup bar is already buffered.
	boundary := promoted[0].Time
	if cut > 0 {
		boundary = m.warmup[0].Time
	}
	m.mu.Unlock()

	hist, err := m.src.FetchHistorical(ctx, symbol, tf, boundary, len(promoted))
	if err != nil {
		return 0, fmt.Errorf("backfill fetch: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return 0, ErrSuperseded
	}

	m.visible = append(promoted, m.visible...)
	m.warmup = m.warmup[:cut]

	refill := candle.Sanitize(hist)
	for len(refill) > 0 && refill[len(refill)-1].Time >= boundary {
		refill = refill[:len(refill)-1]
	}
	m.warmup = append(refill, m.warmup...)
	if missing := m.cfg.WarmupBars - len(m.warmup); missing > 0 {
		seed := m.visible[0]
		if len(m.warmup) > 0 {
			seed = m.warmup[0]
		}
		m.warmup = append(candle.SyntheticPad(seed, missing, m.tf.Seconds()), m.warmup...)
	}

	m.version++
	return len(promoted), nil
}

// FirstDataTime resolves the earliest available bar time for the active
// symbol, preferring the active timeframe.
func (m *Manager) FirstDataTime(ctx context.Context) (int64, error) {
	m.mu.Lock()
	symbol, tf := m.symbol, m.tf
	m.mu.Unlock()

	first, err := m.src.FetchFirst(ctx, symbol, tf)
	if err != nil {
		return 0, fmt.Errorf("first-bar fetch: %w", err)
	}
	if first == nil {
		first, err = m.src.FetchFirst(ctx, symbol, "")
		if err != nil {
			return 0, err
		}
	}
	if first == nil {
		return 0, ErrNoData
	}
	return first.Time, nil
}

// Invalidate cancels any in-flight fetch and marks all pending results
// stale. Used on symbol/timeframe/session switches before a new Load.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Visible returns a copy of the visible region.
func (m *Manager) Visible() []model.Candle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Candle, len(m.visible))
	copy(out, m.visible)
	return out
}

// Combined returns warmup+visible as one sequence for indicator input.
func (m *Manager) Combined() []model.Candle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Candle, 0, len(m.warmup)+len(m.visible))
	out = append(out, m.warmup...)
	out = append(out, m.visible...)
	return out
}

// Len returns the visible region length (the clock's max index).
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visible)
}

// BarTime returns the open time of visible bar i, or 0 out of range.
func (m *Manager) BarTime(i int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.visible) {
		return 0
	}
	return m.visible[i].Time
}

// Bar returns visible bar i.
func (m *Manager) Bar(i int) (model.Candle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.visible) {
		return model.Candle{}, false
	}
	return m.visible[i], true
}

// RealTimePrice returns the partial-bar price when the load anchor fell
// inside the last bar's interval.
func (m *Manager) RealTimePrice() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realTime, m.hasRealTime
}

// Version increments on every buffer mutation; indicator consumers use
// it to decide when to recompute.
func (m *Manager) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Symbol returns the active symbol.
func (m *Manager) Symbol() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.symbol
}

// Timeframe returns the active timeframe.
func (m *Manager) Timeframe() model.Timeframe {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tf
}

// mergeForwardWins merges two ascending unique sequences; on duplicate
// timestamps the forward (second) sequence wins.
func mergeForwardWins(backward, forward []model.Candle) []model.Candle {
	out := make([]model.Candle, 0, len(backward)+len(forward))
	i, j := 0, 0
	for i < len(backward) && j < len(forward) {
		switch {
		case backward[i].Time < forward[j].Time:
			out = append(out, backward[i])
			i++
		case backward[i].Time > forward[j].Time:
			out = append(out, forward[j])
			j++
		default:
			out = append(out, forward[j])
			i++
			j++
		}
	}
	out = append(out, backward[i:]...)
	out = append(out, forward[j:]...)
	return out
}

// lastIndexAtOrBefore returns the index of the last bar with time <= t,
// or 0 if every bar is newer (and -1 only for an empty slice).
func lastIndexAtOrBefore(bars []model.Candle, t int64) int {
	if len(bars) == 0 {
		return -1
	}
	idx := 0
	for i, c := range bars {
		if c.Time <= t {
			idx = i
		} else {
			break
		}
	}
	return idx
}
