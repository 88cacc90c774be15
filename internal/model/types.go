// Package model defines shared data types used across all replay-core modules.
package model

import "time"

// Side represents a trade direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// OrderType represents how an order enters the market.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
	OrderStop   OrderType = "STOP"
)

// OrderStatus represents the lifecycle state of a trade.
type OrderStatus string

const (
	StatusPending OrderStatus = "PENDING"
	StatusOpen    OrderStatus = "OPEN"
	StatusClosed  OrderStatus = "CLOSED"
)

// TrendLabel is the coarse trend classification derived from MACD.
type TrendLabel string

const (
	TrendBullish    TrendLabel = "BULLISH"
	TrendBearish    TrendLabel = "BEARISH"
	TrendSidewaysUp TrendLabel = "SIDEWAYS_UP"
	TrendSidewaysDn TrendLabel = "SIDEWAYS_DOWN"
	TrendUnknown    TrendLabel = "UNKNOWN"
)

// Timeframe is a bar duration identifier (M1, M5, M15, M30, H1, H2, H4, D1).
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH2  Timeframe = "H2"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

var timeframeSeconds = map[Timeframe]int64{
	TFM1: 60, TFM5: 300, TFM15: 900, TFM30: 1800,
	TFH1: 3600, TFH2: 7200, TFH4: 14400, TFD1: 86400,
}

// Timeframes lists all supported timeframes in ascending bar duration.
var Timeframes = []Timeframe{TFM1, TFM5, TFM15, TFM30, TFH1, TFH2, TFH4, TFD1}

// Seconds returns the bar duration of the timeframe in seconds, or 0 if unknown.
func (tf Timeframe) Seconds() int64 {
	return timeframeSeconds[tf]
}

// Valid reports whether tf is a recognized timeframe.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeSeconds[tf]
	return ok
}

// Candle is one OHLCV record for a fixed time bucket.
// Time is the bar open in unix seconds, unique per symbol+timeframe.
// Synthetic marks warmup padding fabricated from the first real bar.
type Candle struct {
	Time      int64   `json:"time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Synthetic bool    `json:"synthetic,omitempty"`
}

// SymbolSpec is static per-symbol contract metadata.
type SymbolSpec struct {
	Symbol       string  `json:"symbol"`
	ContractSize float64 `json:"contractSize"` // units per lot
	Digits       int     `json:"digits"`
	PipSize      float64 `json:"pipSize"`
}

// SimulationState is the replay cursor state owned by the Simulation Clock.
// CurrentIndex never exceeds MaxIndex-1 while playing.
type SimulationState struct {
	IsPlaying    bool `json:"isPlaying"`
	Speed        int  `json:"speed"` // ms per tick
	CurrentIndex int  `json:"currentIndex"`
	MaxIndex     int  `json:"maxIndex"`
}

// Trade is a simulated order through its whole lifecycle.
// Once Closed it is immutable except for the Journal annotation.
type Trade struct {
	ID              string      `json:"id"`
	Symbol          string      `json:"symbol"`
	Side            Side        `json:"side"`
	Type            OrderType   `json:"type"`
	EntryPrice      float64     `json:"entryPrice"`
	InitialStopLoss float64     `json:"initialStopLoss"`
	StopLoss        float64     `json:"stopLoss"`
	TakeProfit      float64     `json:"takeProfit"`
	Quantity        float64     `json:"quantity"` // lots
	Status          OrderStatus `json:"status"`
	OrderTime       int64       `json:"orderTime"`
	EntryTime       int64       `json:"entryTime,omitempty"`
	CloseTime       int64       `json:"closeTime,omitempty"`
	ClosePrice      float64     `json:"closePrice,omitempty"`
	PnL             float64     `json:"pnl"`
	Journal         string      `json:"journal,omitempty"`
}

// AccountState is the trader's bookkeeping state, mutated only by the
// Order & Account Engine.
type AccountState struct {
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	MaxEquity   float64 `json:"maxEquity"`
	MaxDrawdown float64 `json:"maxDrawdown"`
	UsedMargin  float64 `json:"usedMargin"`
	MarginLevel float64 `json:"marginLevel"`
	Blown       bool    `json:"blown"`
	History     []Trade `json:"history"`
}

// IndicatorPoint is a single {time, value} sample of a derived series.
type IndicatorPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// MACDPoint is a single MACD sample with its signal and histogram.
type MACDPoint struct {
	Time      int64   `json:"time"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// APIResponse is the standard REST API response envelope.
type APIResponse struct {
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
