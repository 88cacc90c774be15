// Package sim implements the discrete replay clock: a cursor over the
// visible candle buffer with play/pause/step/jump controls.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// ErrPlaying is reported when a manual step is requested mid-playback.
var ErrPlaying = errors.New("clock is playing")

// BufferView is the read surface the clock needs from the buffer manager.
type BufferView interface {
	Len() int
	BarTime(i int) int64
}

// Reloader rebuilds the buffer around a target time and returns the new
// cursor index. The clock delegates jumpToDate/jumpToFirstData to it.
type Reloader interface {
	Load(ctx context.Context, symbol string, tf model.Timeframe, anchor int64) (int, error)
	FirstDataTime(ctx context.Context) (int64, error)
	Symbol() string
	Timeframe() model.Timeframe
}

// Clock owns the SimulationState and the playback timer. Index changes
// are serialized under its mutex; the per-tick callback runs outside
// the playback goroutine's select but under the same serialization.
type Clock struct {
	mu        sync.Mutex
	state     model.SimulationState
	view      BufferView
	reloader  Reloader
	logger    *zap.Logger
	onTick    func(index int)
	barSec    int64
	reloading bool

	stopCh chan struct{} // closes to stop the playback goroutine
}

// New creates a paused clock over the given buffer view.
func New(view BufferView, reloader Reloader, barSeconds int64, speedMs int, logger *zap.Logger) *Clock {
	if logger == nil {
		logger = zap.NewNop()
	}
	if speedMs <= 0 {
		speedMs = 1000
	}
	return &Clock{
		state:    model.SimulationState{Speed: speedMs, MaxIndex: view.Len()},
		view:     view,
		reloader: reloader,
		logger:   logger,
		barSec:   barSeconds,
	}
}

// SetOnTick registers the callback invoked after every index change.
func (c *Clock) SetOnTick(fn func(index int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = fn
}

// State returns a copy of the simulation state.
func (c *Clock) State() model.SimulationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.MaxIndex = c.view.Len()
	return st
}

// CurrentIndex returns the cursor position.
func (c *Clock) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CurrentIndex
}

// CurrentSimTime reports "now" from the trader's perspective: the next
// bar boundary after the bar under the cursor. Suppressed while a
// reload is in progress so downstream consumers see no spurious times.
func (c *Clock) CurrentSimTime() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reloading {
		return 0, false
	}
	t := c.view.BarTime(c.state.CurrentIndex)
	if t == 0 {
		return 0, false
	}
	return t + c.barSec, true
}

// Play starts periodic advancement. A no-op when already playing or when
// the cursor is at the end of the buffer.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsPlaying {
		return
	}
	if c.state.CurrentIndex+1 >= c.view.Len() {
		return
	}
	c.state.IsPlaying = true
	c.stopCh = make(chan struct{})
	go c.run(c.stopCh)
	c.logger.Info("clock_play", zap.Int("index", c.state.CurrentIndex), zap.Int("speed_ms", c.state.Speed))
}

// Pause stops periodic advancement and its timer.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseLocked()
}

func (c *Clock) pauseLocked() {
	if !c.state.IsPlaying {
		return
	}
	c.state.IsPlaying = false
	close(c.stopCh)
	c.stopCh = nil
	c.logger.Info("clock_pause", zap.Int("index", c.state.CurrentIndex))
}

// run is the playback goroutine. The ticker is recreated whenever the
// speed changes, taking effect on the next scheduled tick.
func (c *Clock) run(stop chan struct{}) {
	c.mu.Lock()
	period := time.Duration(c.state.Speed) * time.Millisecond
	c.mu.Unlock()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.advance() {
				return
			}
			c.mu.Lock()
			next := time.Duration(c.state.Speed) * time.Millisecond
			c.mu.Unlock()
			if next != period {
				period = next
				ticker.Reset(period)
			}
		}
	}
}

// advance moves the cursor one bar forward. Returns false after
// auto-pausing at the end of the buffer.
func (c *Clock) advance() bool {
	c.mu.Lock()
	if !c.state.IsPlaying || c.reloading {
		playing := c.state.IsPlaying
		c.mu.Unlock()
		return playing
	}
	if c.state.CurrentIndex+1 >= c.view.Len() {
		c.state.IsPlaying = false
		c.stopCh = nil
		c.logger.Info("clock_end_of_buffer", zap.Int("index", c.state.CurrentIndex))
		c.mu.Unlock()
		return false
	}
	c.state.CurrentIndex++
	idx := c.state.CurrentIndex
	fn := c.onTick
	c.mu.Unlock()

	if fn != nil {
		fn(idx)
	}
	return true
}

// Step advances exactly one bar. Refused while playing.
func (c *Clock) Step() error {
	c.mu.Lock()
	if c.state.IsPlaying {
		c.mu.Unlock()
		return ErrPlaying
	}
	if c.state.CurrentIndex+1 >= c.view.Len() {
		c.mu.Unlock()
		return nil
	}
	c.state.CurrentIndex++
	idx := c.state.CurrentIndex
	fn := c.onTick
	c.mu.Unlock()

	if fn != nil {
		fn(idx)
	}
	return nil
}

// SetBarSeconds updates the bar duration after a timeframe switch.
func (c *Clock) SetBarSeconds(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sec > 0 {
		c.barSec = sec
	}
}

// SetSpeed changes the tick period. Takes effect on the next scheduled
// tick, not retroactively.
func (c *Clock) SetSpeed(ms int) error {
	if ms <= 0 {
		return fmt.Errorf("invalid speed %d: must be positive milliseconds", ms)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Speed = ms
	return nil
}

// JumpToDate pauses, reloads the buffer around target and repositions
// the cursor at the last bar with time <= target (index 0 if none).
func (c *Clock) JumpToDate(ctx context.Context, target int64) error {
	c.mu.Lock()
	c.pauseLocked()
	c.reloading = true
	symbol, tf := c.reloader.Symbol(), c.reloader.Timeframe()
	c.mu.Unlock()

	cursor, err := c.reloader.Load(ctx, symbol, tf, target)

	c.mu.Lock()
	c.reloading = false
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("reloading buffer at %d: %w", target, err)
	}
	if cursor < 0 {
		cursor = 0
	}
	c.state.CurrentIndex = cursor
	c.state.MaxIndex = c.view.Len()
	fn := c.onTick
	c.mu.Unlock()

	c.logger.Info("clock_jump", zap.Int64("target", target), zap.Int("cursor", cursor))
	if fn != nil {
		fn(cursor)
	}
	return nil
}

// JumpToFirstData resolves the earliest available bar and jumps there.
func (c *Clock) JumpToFirstData(ctx context.Context) error {
	first, err := c.reloader.FirstDataTime(ctx)
	if err != nil {
		return fmt.Errorf("resolving first data: %w", err)
	}
	return c.JumpToDate(ctx, first)
}

// SyncMax refreshes MaxIndex after the buffer grew or shrank, clamping
// the cursor into range.
func (c *Clock) SyncMax() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.MaxIndex = c.view.Len()
	if c.state.CurrentIndex >= c.state.MaxIndex && c.state.MaxIndex > 0 {
		c.state.CurrentIndex = c.state.MaxIndex - 1
	}
}

// ShiftCursor moves the cursor by delta without firing the tick
// callback. Used after a backfill splice so the viewed bar stays put.
func (c *Clock) ShiftCursor(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.CurrentIndex += delta
	if c.state.CurrentIndex < 0 {
		c.state.CurrentIndex = 0
	}
	c.state.MaxIndex = c.view.Len()
}

// Close stops the playback timer.
func (c *Clock) Close() {
	c.Pause()
}
