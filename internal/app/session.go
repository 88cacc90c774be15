package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/buffer"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/config"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/engine"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/indicator"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/profile"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/sim"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/trend"
)

// advisoryTimeframes are the panels rendered by the trend widget.
var advisoryTimeframes = []model.Timeframe{model.TFD1, model.TFH4, model.TFH2, model.TFM30}

// Session binds the buffer manager, simulation clock and order engine
// into one replay timeline and exposes the read/command surface the UI
// consumes.
type Session struct {
	cfg    *config.Config
	src    buffer.Source
	buf    *buffer.Manager
	clock  *sim.Clock
	eng    *engine.Engine
	logger *zap.Logger

	mu           sync.Mutex
	invested     int64 // seconds of session wall time
	investedStop chan struct{}

	indicatorMu sync.Mutex
	cachedVer   uint64
	emaCache    map[int][]model.IndicatorPoint
	rsiCache    map[int][]model.IndicatorPoint
	macdCache   []model.MACDPoint
}

// NewSession wires up a session over the given data source.
func NewSession(cfg *config.Config, src buffer.Source, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	buf := buffer.New(src, buffer.Config{
		WarmupBars:         cfg.Buffer.WarmupBars,
		VisibleCandles:     cfg.Buffer.VisibleCandles,
		LookaheadThreshold: cfg.Buffer.LookaheadThreshold,
		ChunkSize:          cfg.Buffer.ChunkSize,
		FallbackTimeframe:  model.Timeframe(cfg.Buffer.FallbackTimeframe),
	}, logger)

	eng := engine.New(engine.Config{
		InitialBalance: cfg.Account.InitialBalance,
		Leverage:       cfg.Account.Leverage,
		StopOutPercent: cfg.Account.StopOutPercent,
	}, engine.NewStaticConverter(), logger)

	tf := model.Timeframe(cfg.Data.Timeframe)
	clock := sim.New(buf, buf, tf.Seconds(), cfg.Clock.SpeedMs, logger)
	eng.SetClock(clock)

	s := &Session{
		cfg:      cfg,
		src:      src,
		buf:      buf,
		clock:    clock,
		eng:      eng,
		logger:   logger,
		emaCache: make(map[int][]model.IndicatorPoint),
		rsiCache: make(map[int][]model.IndicatorPoint),
	}
	clock.SetOnTick(s.onTick)
	return s
}

// Start loads the buffer around anchor and begins the session timers.
func (s *Session) Start(ctx context.Context, anchor int64) error {
	symbol := s.cfg.Data.Symbol
	tf := model.Timeframe(s.cfg.Data.Timeframe)

	cursor, err := s.buf.Load(ctx, symbol, tf, anchor)
	if err != nil {
		return err
	}
	s.clock.SetBarSeconds(tf.Seconds())

	s.eng.SetActiveSymbol(symbol)
	if bar, ok := s.buf.Bar(cursor); ok {
		price := bar.Close
		if rt, has := s.buf.RealTimePrice(); has {
			price = rt
		}
		s.eng.OnBar(bar)
		s.eng.SetPrice(price)
	}
	s.clock.ShiftCursor(cursor - s.clock.CurrentIndex())

	s.startInvestedTimer()
	return nil
}

// onTick runs once per cursor advance: the just-closed bar drives the
// order engine, then the buffer streams ahead if the cursor is close to
// the tail.
func (s *Session) onTick(index int) {
	bar, ok := s.buf.Bar(index)
	if !ok {
		return
	}
	s.eng.OnBar(bar)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		appended, err := s.buf.ExtendIfNeeded(ctx, index)
		if err != nil || appended == 0 {
			return
		}
		s.clock.SyncMax()
	}()
}

// startInvestedTimer runs the independent "time invested" counter. It
// only accumulates while the clock is playing, so paused study time
// does not count.
func (s *Session) startInvestedTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.investedStop != nil {
		return
	}
	stop := make(chan struct{})
	s.investedStop = stop

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !s.clock.State().IsPlaying {
					continue
				}
				s.mu.Lock()
				s.invested++
				s.mu.Unlock()
			}
		}
	}()
}

// TimeInvested returns accumulated session seconds.
func (s *Session) TimeInvested() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invested
}

// Close stops all session timers.
func (s *Session) Close() {
	s.clock.Close()
	s.buf.Invalidate()
	s.mu.Lock()
	if s.investedStop != nil {
		close(s.investedStop)
		s.investedStop = nil
	}
	s.mu.Unlock()
}

// Clock exposes playback controls.
func (s *Session) Clock() *sim.Clock { return s.clock }

// Engine exposes order commands.
func (s *Session) Engine() *engine.Engine { return s.eng }

// Buffer exposes the candle regions.
func (s *Session) Buffer() *buffer.Manager { return s.buf }

// Playback passthroughs.

func (s *Session) Play()  { s.clock.Play() }
func (s *Session) Pause() { s.clock.Pause() }

func (s *Session) Step() error { return s.clock.Step() }

func (s *Session) SetSpeed(ms int) error { return s.clock.SetSpeed(ms) }

func (s *Session) JumpToDate(ctx context.Context, target int64) error {
	return s.clock.JumpToDate(ctx, target)
}

func (s *Session) JumpToFirstData(ctx context.Context) error {
	return s.clock.JumpToFirstData(ctx)
}

func (s *Session) State() model.SimulationState { return s.clock.State() }

// Order passthroughs.

func (s *Session) PlaceOrder(req engine.PlaceRequest) (*model.Trade, error) {
	return s.eng.PlaceOrder(req)
}

func (s *Session) CloseOrder(id string, exitPrice ...float64) (*model.Trade, error) {
	return s.eng.CloseOrder(id, exitPrice...)
}

func (s *Session) ModifyTrade(id string, sl, tp float64) error {
	return s.eng.ModifyTrade(id, sl, tp)
}

func (s *Session) ModifyPendingEntry(id string, entry float64) error {
	return s.eng.ModifyPendingEntry(id, entry)
}

func (s *Session) Annotate(id, note string) error { return s.eng.Annotate(id, note) }

func (s *Session) Account() model.AccountState { return s.eng.Account() }

func (s *Session) Trades(status model.OrderStatus) []model.Trade {
	return s.eng.Trades(status)
}

// VisibleCandles returns the visible bars up to and including the
// cursor, the slice a chart renders.
func (s *Session) VisibleCandles() []model.Candle {
	idx := s.clock.CurrentIndex()
	visible := s.buf.Visible()
	if idx+1 < len(visible) {
		visible = visible[:idx+1]
	}
	return visible
}

// CurrentPrice returns the tradable price at the cursor.
func (s *Session) CurrentPrice() float64 {
	return s.eng.CurrentPrice()
}

// CurrentSimTime reports the simulated "now", suppressed during reloads.
func (s *Session) CurrentSimTime() (int64, bool) {
	return s.clock.CurrentSimTime()
}

// LoadMoreHistory backfills older bars and shifts the cursor so the
// viewed bar stays put.
func (s *Session) LoadMoreHistory(ctx context.Context) (int, error) {
	inserted, err := s.buf.LoadMoreHistory(ctx)
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		s.clock.ShiftCursor(inserted)
	}
	return inserted, nil
}

// cursorWindow returns the visible start and cursor times used to clip
// indicator series so they never reveal values ahead of the cursor.
func (s *Session) cursorWindow() (int64, int64, bool) {
	visible := s.buf.Visible()
	if len(visible) == 0 {
		return 0, 0, false
	}
	idx := s.clock.CurrentIndex()
	if idx >= len(visible) {
		idx = len(visible) - 1
	}
	return visible[0].Time, visible[idx].Time, true
}

// refreshIndicators recomputes cached series when the buffer changed
// identity. Caller holds indicatorMu.
func (s *Session) refreshIndicators() {
	ver := s.buf.Version()
	if ver == s.cachedVer {
		return
	}
	s.cachedVer = ver
	s.emaCache = make(map[int][]model.IndicatorPoint)
	s.rsiCache = make(map[int][]model.IndicatorPoint)
	s.macdCache = nil
}

// EMA returns the EMA series clipped to the visible window and cursor.
func (s *Session) EMA(period int) []model.IndicatorPoint {
	from, to, ok := s.cursorWindow()
	if !ok {
		return nil
	}
	s.indicatorMu.Lock()
	s.refreshIndicators()
	series, cached := s.emaCache[period]
	if !cached {
		series = indicator.EMA(s.buf.Combined(), period)
		s.emaCache[period] = series
	}
	s.indicatorMu.Unlock()
	return indicator.FilterPoints(series, from, to)
}

// RSI returns the RSI series clipped to the visible window and cursor.
func (s *Session) RSI(period int) []model.IndicatorPoint {
	from, to, ok := s.cursorWindow()
	if !ok {
		return nil
	}
	s.indicatorMu.Lock()
	s.refreshIndicators()
	series, cached := s.rsiCache[period]
	if !cached {
		series = indicator.RSI(s.buf.Combined(), period)
		s.rsiCache[period] = series
	}
	s.indicatorMu.Unlock()
	return indicator.FilterPoints(series, from, to)
}

// MACD returns the MACD(12,26,9) series clipped to the window.
func (s *Session) MACD() []model.MACDPoint {
	from, to, ok := s.cursorWindow()
	if !ok {
		return nil
	}
	s.indicatorMu.Lock()
	s.refreshIndicators()
	if s.macdCache == nil {
		s.macdCache = indicator.MACD(s.buf.Combined(), 12, 26, 9)
	}
	series := s.macdCache
	s.indicatorMu.Unlock()
	return indicator.FilterMACD(series, from, to)
}

// TrendPanel classifies the advisory timeframes at the current sim
// time. Read-only: nothing here feeds the order engine.
func (s *Session) TrendPanel(ctx context.Context) map[model.Timeframe]model.TrendLabel {
	simTime, ok := s.clock.CurrentSimTime()
	if !ok {
		return nil
	}
	byTF := make(map[model.Timeframe][]model.Candle, len(advisoryTimeframes))
	for _, tf := range advisoryTimeframes {
		bars, err := s.src.FetchContext(ctx, s.buf.Symbol(), tf, simTime, 200)
		if err != nil {
			s.logger.Warn("trend_fetch_failed", zap.String("timeframe", string(tf)), zap.Error(err))
			continue
		}
		byTF[tf] = bars
	}
	return trend.ClassifyAll(byTF)
}

// Snapshot captures the session into a persistable profile record.
func (s *Session) Snapshot() profile.Snapshot {
	simTime, _ := s.clock.CurrentSimTime()
	return profile.Snapshot{
		Account:      s.eng.Account(),
		Symbol:       s.buf.Symbol(),
		Timeframe:    s.buf.Timeframe(),
		SimTime:      simTime,
		TimeInvested: s.TimeInvested(),
	}
}

// Restore rebuilds the session from a snapshot: buffer reloaded around
// the stored sim time, account state replayed in.
func (s *Session) Restore(ctx context.Context, snap profile.Snapshot) error {
	s.cfg.Data.Symbol = snap.Symbol
	s.cfg.Data.Timeframe = string(snap.Timeframe)
	// SimTime is the next bar boundary; anchoring a second earlier puts
	// the cursor back on the bar it was saved from.
	if err := s.Start(ctx, snap.SimTime-1); err != nil {
		return err
	}
	s.eng.RestoreAccount(snap.Account)
	s.mu.Lock()
	s.invested = snap.TimeInvested
	s.mu.Unlock()
	return nil
}
