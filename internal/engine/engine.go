// Package engine implements the order matching and account accounting
// core: order lifecycle (PENDING→OPEN→CLOSED), per-bar SL/TP and
// pending-trigger evaluation, margin and equity bookkeeping, and
// stop-out liquidation.
package engine

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// Command rejection reasons. All are synchronous, none mutate state.
var (
	ErrAccountBlown       = errors.New("account blown: equity is zero")
	ErrInvalidPrice       = errors.New("execution price must be positive")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInsufficientMargin = errors.New("required margin exceeds free margin")
	ErrWrongSidePrice     = errors.New("pending price is on the wrong side of the market")
	ErrInvalidStops       = errors.New("stop loss or take profit on the wrong side of entry")
	ErrTradeNotFound      = errors.New("trade not found")
	ErrTradeClosed        = errors.New("trade already closed")
)

// ClockPauser lets the engine halt playback on stop-out.
type ClockPauser interface {
	Pause()
}

// Config holds the simulated brokerage parameters.
type Config struct {
	InitialBalance float64
	Leverage       float64
	StopOutPercent float64 // margin level at or below which stop-out fires
}

// marginLevelSentinel stands in for "no margin used" so comparisons
// against the stop-out threshold never divide by zero.
const marginLevelSentinel = 1e9

// Engine is the order & account engine for one replay session. All
// mutations are serialized: one per simulated tick plus one per order
// action.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	conv   Converter
	clock  ClockPauser
	logger *zap.Logger

	balance     float64
	equity      float64
	maxEquity   float64
	maxDrawdown float64
	usedMargin  float64
	marginLevel float64
	blown       bool
	notified    bool

	trades []*model.Trade

	activeSymbol string
	price        float64            // current tradable price of the active symbol
	barTime      int64              // open time of the bar under the cursor
	lastPrice    map[string]float64 // freeze prices for inactive symbols

	onBlown func(equity float64)
}

// New creates an engine with a fresh account.
func New(cfg Config, conv Converter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conv == nil {
		conv = NewStaticConverter()
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 100
	}
	return &Engine{
		cfg:         cfg,
		conv:        conv,
		logger:      logger,
		balance:     cfg.InitialBalance,
		equity:      cfg.InitialBalance,
		maxEquity:   cfg.InitialBalance,
		marginLevel: marginLevelSentinel,
		lastPrice:   make(map[string]float64),
	}
}

// SetClock wires the clock the engine pauses on stop-out.
func (e *Engine) SetClock(c ClockPauser) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = c
}

// SetOnBlown registers the one-time blown-account notification.
func (e *Engine) SetOnBlown(fn func(equity float64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onBlown = fn
}

// SetActiveSymbol switches the priced instrument. Open trades on other
// symbols freeze at their last known price.
func (e *Engine) SetActiveSymbol(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.price > 0 && e.activeSymbol != "" {
		e.lastPrice[e.activeSymbol] = e.price
	}
	e.activeSymbol = symbol
	e.price = e.lastPrice[symbol]
}

// Account returns a snapshot of the account state including the full
// trade history.
func (e *Engine) Account() model.AccountState {
	e.mu.Lock()
	defer e.mu.Unlock()
	hist := make([]model.Trade, len(e.trades))
	for i, t := range e.trades {
		hist[i] = *t
	}
	return model.AccountState{
		Balance:     e.balance,
		Equity:      e.equity,
		MaxEquity:   e.maxEquity,
		MaxDrawdown: e.maxDrawdown,
		UsedMargin:  e.usedMargin,
		MarginLevel: e.marginLevel,
		Blown:       e.blown,
		History:     hist,
	}
}

// RestoreAccount replaces account state from a persisted snapshot.
func (e *Engine) RestoreAccount(st model.AccountState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance = st.Balance
	e.equity = st.Equity
	e.maxEquity = st.MaxEquity
	e.maxDrawdown = st.MaxDrawdown
	e.blown = st.Blown
	e.notified = st.Blown
	e.trades = e.trades[:0]
	for i := range st.History {
		t := st.History[i]
		e.trades = append(e.trades, &t)
	}
	e.revalueLocked()
}

// Trades returns copies of all trades with the given status.
func (e *Engine) Trades(status model.OrderStatus) []model.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Trade, 0, len(e.trades))
	for _, t := range e.trades {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	return out
}

// CurrentPrice returns the tradable price of the active symbol.
func (e *Engine) CurrentPrice() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.price
}

// find returns the trade with the given id, or nil.
func (e *Engine) find(id string) *model.Trade {
	for _, t := range e.trades {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// priceFor resolves the valuation price for a trade: the live price for
// the active symbol, the frozen last price otherwise, the entry price
// as the final fallback (zero floating PnL).
func (e *Engine) priceFor(t *model.Trade) float64 {
	if t.Symbol == e.activeSymbol && e.price > 0 {
		return e.price
	}
	if p, ok := e.lastPrice[t.Symbol]; ok && p > 0 {
		return p
	}
	return t.EntryPrice
}

// floating computes a trade's unrealized PnL in account currency.
func (e *Engine) floating(t *model.Trade, price float64) float64 {
	dir := 1.0
	if t.Side == model.SideShort {
		dir = -1
	}
	raw := (price - t.EntryPrice) * t.Quantity * Spec(t.Symbol).ContractSize * dir
	return e.conv.ToAccountCurrency(t.Symbol, raw, price)
}

// requiredMargin computes the margin a trade locks, in account currency.
func (e *Engine) requiredMargin(symbol string, qty, price float64) float64 {
	notional := qty * Spec(symbol).ContractSize * price
	return e.conv.ToAccountCurrency(symbol, notional, price) / e.cfg.Leverage
}

// revalueLocked recomputes floating PnL, equity, margin figures and the
// drawdown track. Caller holds the mutex.
func (e *Engine) revalueLocked() {
	floatSum := 0.0
	margin := 0.0
	for _, t := range e.trades {
		if t.Status != model.StatusOpen {
			continue
		}
		p := e.priceFor(t)
		t.PnL = e.floating(t, p)
		floatSum += t.PnL
		margin += e.requiredMargin(t.Symbol, t.Quantity, t.EntryPrice)
	}
	e.equity = e.balance + floatSum
	e.usedMargin = margin
	if margin > 0 {
		e.marginLevel = e.equity / margin * 100
	} else {
		e.marginLevel = marginLevelSentinel
	}
	if e.equity > e.maxEquity {
		e.maxEquity = e.equity
	}
	if dd := e.maxEquity - e.equity; dd > e.maxDrawdown {
		e.maxDrawdown = dd
	}
}
