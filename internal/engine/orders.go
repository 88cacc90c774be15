package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// PlaceRequest describes a new order.
type PlaceRequest struct {
	Side       model.Side      `json:"side"`
	Type       model.OrderType `json:"type"`
	Entry      float64         `json:"entry"`      // required for LIMIT/STOP, ignored for MARKET
	StopLoss   float64         `json:"stopLoss"`   // 0 = none
	TakeProfit float64         `json:"takeProfit"` // 0 = none
	Quantity   float64         `json:"quantity"`   // lots
}

// PlaceOrder validates and books a new trade on the active symbol.
// Market orders open immediately at the current tradable price;
// limit/stop orders enter PENDING. Rejections return an error and leave
// all state untouched.
func (e *Engine) PlaceOrder(req PlaceRequest) (*model.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.blown || e.equity <= 0 {
		return nil, ErrAccountBlown
	}

	exec := e.price
	if req.Type != model.OrderMarket {
		exec = req.Entry
	}
	if exec <= 0 {
		return nil, ErrInvalidPrice
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	if req.Type != model.OrderMarket {
		if err := checkPendingSide(req.Side, req.Type, req.Entry, e.price); err != nil {
			return nil, err
		}
	}
	if err := checkStops(req.Side, exec, req.StopLoss, req.TakeProfit); err != nil {
		return nil, err
	}

	need := e.requiredMargin(e.activeSymbol, req.Quantity, exec)
	if need > e.equity-e.usedMargin {
		return nil, ErrInsufficientMargin
	}

	t := &model.Trade{
		ID:              uuid.NewString(),
		Symbol:          e.activeSymbol,
		Side:            req.Side,
		Type:            req.Type,
		EntryPrice:      exec,
		InitialStopLoss: req.StopLoss,
		StopLoss:        req.StopLoss,
		TakeProfit:      req.TakeProfit,
		Quantity:        req.Quantity,
		OrderTime:       e.barTime,
	}
	if req.Type == model.OrderMarket {
		t.Status = model.StatusOpen
		t.EntryTime = e.barTime
	} else {
		t.Status = model.StatusPending
	}
	e.trades = append(e.trades, t)
	e.revalueLocked()

	e.logger.Info("order_placed",
		zap.String("id", t.ID),
		zap.String("symbol", t.Symbol),
		zap.String("side", string(t.Side)),
		zap.String("type", string(t.Type)),
		zap.Float64("entry", t.EntryPrice),
		zap.Float64("lots", t.Quantity),
		zap.String("status", string(t.Status)),
	)
	out := *t
	return &out, nil
}

// checkPendingSide enforces the limit/stop placement rules relative to
// the current market price.
func checkPendingSide(side model.Side, typ model.OrderType, entry, market float64) error {
	if market <= 0 {
		return ErrInvalidPrice
	}
	buy := side == model.SideLong
	switch typ {
	case model.OrderLimit:
		// Buy limit below market, sell limit above.
		if buy && entry >= market {
			return ErrWrongSidePrice
		}
		if !buy && entry <= market {
			return ErrWrongSidePrice
		}
	case model.OrderStop:
		// Buy stop above market, sell stop below.
		if buy && entry <= market {
			return ErrWrongSidePrice
		}
		if !buy && entry >= market {
			return ErrWrongSidePrice
		}
	}
	return nil
}

// checkStops enforces SL/TP placement relative to the entry price.
func checkStops(side model.Side, entry, sl, tp float64) error {
	if side == model.SideLong {
		if sl != 0 && sl >= entry {
			return ErrInvalidStops
		}
		if tp != 0 && tp <= entry {
			return ErrInvalidStops
		}
		return nil
	}
	if sl != 0 && sl <= entry {
		return ErrInvalidStops
	}
	if tp != 0 && tp >= entry {
		return ErrInvalidStops
	}
	return nil
}

// CloseOrder closes an OPEN trade, realizing PnL at exitPrice when
// given, at the current tradable price for the active symbol, or frozen
// at entry for inactive symbols. A PENDING trade is cancelled at zero
// PnL.
func (e *Engine) CloseOrder(id string, exitPrice ...float64) (*model.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.find(id)
	if t == nil {
		return nil, ErrTradeNotFound
	}

	switch t.Status {
	case model.StatusClosed:
		return nil, ErrTradeClosed
	case model.StatusPending:
		t.Status = model.StatusClosed
		t.CloseTime = e.barTime
		t.ClosePrice = 0
		t.PnL = 0
		e.revalueLocked()
		e.logger.Info("order_cancelled", zap.String("id", t.ID))
		out := *t
		return &out, nil
	}

	price := t.EntryPrice
	if len(exitPrice) > 0 && exitPrice[0] > 0 {
		price = exitPrice[0]
	} else if t.Symbol == e.activeSymbol && e.price > 0 {
		price = e.price
	}
	e.closeTradeLocked(t, price, e.barTime)
	e.revalueLocked()
	out := *t
	return &out, nil
}

// closeTradeLocked realizes a trade at price, moving its PnL into the
// balance. Caller holds the mutex and revalues afterwards.
func (e *Engine) closeTradeLocked(t *model.Trade, price float64, at int64) {
	realized := e.floating(t, price)
	t.Status = model.StatusClosed
	t.ClosePrice = price
	t.CloseTime = at
	t.PnL = realized
	e.balance += realized

	e.logger.Info("order_closed",
		zap.String("id", t.ID),
		zap.String("symbol", t.Symbol),
		zap.Float64("close", price),
		zap.Float64("pnl", realized),
	)
}

// ModifyTrade updates SL/TP on a non-closed trade. No effect on balance
// or equity.
func (e *Engine) ModifyTrade(id string, sl, tp float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.find(id)
	if t == nil {
		return ErrTradeNotFound
	}
	if t.Status == model.StatusClosed {
		return ErrTradeClosed
	}
	if err := checkStops(t.Side, t.EntryPrice, sl, tp); err != nil {
		return err
	}
	t.StopLoss = sl
	t.TakeProfit = tp
	return nil
}

// ModifyPendingEntry moves the entry price of a PENDING trade.
func (e *Engine) ModifyPendingEntry(id string, entry float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.find(id)
	if t == nil {
		return ErrTradeNotFound
	}
	if t.Status != model.StatusPending {
		return ErrTradeClosed
	}
	if entry <= 0 {
		return ErrInvalidPrice
	}
	if err := checkPendingSide(t.Side, t.Type, entry, e.price); err != nil {
		return err
	}
	t.EntryPrice = entry
	return nil
}

// Annotate attaches a journal note to a trade. Allowed in any status;
// never touches financial fields.
func (e *Engine) Annotate(id, note string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.find(id)
	if t == nil {
		return ErrTradeNotFound
	}
	t.Journal = note
	return nil
}
