package engine

import (
	"go.uber.org/zap"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// OnBar processes one just-closed bar of the active symbol: revalue all
// open trades, run the stop-out check, evaluate SL/TP against the bar's
// range, then trigger pending orders. Stop-out runs before SL/TP so
// liquidated trades are never processed twice.
func (e *Engine) OnBar(bar model.Candle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.barTime = bar.Time
	e.price = bar.Close
	e.lastPrice[e.activeSymbol] = bar.Close

	e.revalueLocked()

	if e.stopOutLocked() {
		return
	}

	e.evalStopsLocked(bar)
	e.triggerPendingLocked(bar)
	e.revalueLocked()
}

// SetPrice revalues at a price change without bar-range evaluation,
// e.g. after a partial-bar rebuild exposes a fresher tradable price.
func (e *Engine) SetPrice(price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if price <= 0 {
		return
	}
	e.price = price
	e.lastPrice[e.activeSymbol] = price
	e.revalueLocked()
}

// stopOutLocked force-closes everything when equity or margin level
// breaches the threshold. Returns true when the account was liquidated.
func (e *Engine) stopOutLocked() bool {
	if e.blown {
		return true
	}
	if e.equity > 0 && e.marginLevel > e.cfg.StopOutPercent {
		return false
	}
	hasOpen := false
	for _, t := range e.trades {
		if t.Status == model.StatusOpen {
			hasOpen = true
			break
		}
	}
	if !hasOpen && e.equity > 0 {
		return false
	}

	for _, t := range e.trades {
		if t.Status != model.StatusOpen {
			continue
		}
		e.closeTradeLocked(t, e.priceFor(t), e.barTime)
	}
	e.revalueLocked()
	if e.equity < 0 {
		e.equity = 0
	}
	if e.balance < 0 {
		e.balance = 0
	}
	e.blown = e.equity == 0
	e.usedMargin = 0
	e.marginLevel = marginLevelSentinel

	if e.clock != nil {
		e.clock.Pause()
	}
	if !e.notified {
		e.notified = true
		e.logger.Warn("stop_out",
			zap.Float64("equity", e.equity),
			zap.Float64("balance", e.balance),
		)
		if e.onBlown != nil {
			e.onBlown(e.equity)
		}
	}
	return true
}

// evalStopsLocked closes open trades whose SL or TP was touched by the
// bar's range. A bar touching both is assumed to have hit SL first.
func (e *Engine) evalStopsLocked(bar model.Candle) {
	for _, t := range e.trades {
		if t.Status != model.StatusOpen || t.Symbol != e.activeSymbol {
			continue
		}
		if t.Side == model.SideLong {
			if t.StopLoss != 0 && bar.Low <= t.StopLoss {
				e.closeTradeLocked(t, t.StopLoss, bar.Time)
				continue
			}
			if t.TakeProfit != 0 && bar.High >= t.TakeProfit {
				e.closeTradeLocked(t, t.TakeProfit, bar.Time)
			}
			continue
		}
		if t.StopLoss != 0 && bar.High >= t.StopLoss {
			e.closeTradeLocked(t, t.StopLoss, bar.Time)
			continue
		}
		if t.TakeProfit != 0 && bar.Low <= t.TakeProfit {
			e.closeTradeLocked(t, t.TakeProfit, bar.Time)
		}
	}
}

// triggerPendingLocked opens pending orders whose entry price the bar's
// range crossed. EntryTime is the bar's time, not wall time.
func (e *Engine) triggerPendingLocked(bar model.Candle) {
	for _, t := range e.trades {
		if t.Status != model.StatusPending || t.Symbol != e.activeSymbol {
			continue
		}
		if !pendingTouched(t, bar) {
			continue
		}
		t.Status = model.StatusOpen
		t.EntryTime = bar.Time
		e.logger.Info("pending_triggered",
			zap.String("id", t.ID),
			zap.String("side", string(t.Side)),
			zap.Float64("entry", t.EntryPrice),
			zap.Int64("bar_time", bar.Time),
		)
	}
}

// pendingTouched applies the trigger rule per side and order type.
func pendingTouched(t *model.Trade, bar model.Candle) bool {
	buy := t.Side == model.SideLong
	switch t.Type {
	case model.OrderLimit:
		if buy {
			return bar.Low <= t.EntryPrice
		}
		return bar.High >= t.EntryPrice
	case model.OrderStop:
		if buy {
			return bar.High >= t.EntryPrice
		}
		return bar.Low <= t.EntryPrice
	}
	return false
}
