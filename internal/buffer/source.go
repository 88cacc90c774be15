package buffer

import (
	"context"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// Source is the market-data collaborator the buffer manager fetches from.
// Every call may return fewer records than requested, or none at all;
// the manager treats short and empty results as "no more data there".
// Implementations must honor ctx cancellation.
type Source interface {
	// FetchContext returns up to limit bars with time <= beforeTime,
	// ordered ascending, the newest ones closest to beforeTime.
	FetchContext(ctx context.Context, symbol string, tf model.Timeframe, beforeTime int64, limit int) ([]model.Candle, error)

	// FetchFuture returns up to limit bars with time > afterTime,
	// ordered ascending, the oldest ones closest to afterTime.
	FetchFuture(ctx context.Context, symbol string, tf model.Timeframe, afterTime int64, limit int) ([]model.Candle, error)

	// FetchFirst returns the earliest bar for the symbol, or nil if the
	// symbol has no data. An empty timeframe means "any timeframe".
	FetchFirst(ctx context.Context, symbol string, tf model.Timeframe) (*model.Candle, error)

	// FetchLast returns the latest bar for the symbol, or nil.
	FetchLast(ctx context.Context, symbol string, tf model.Timeframe) (*model.Candle, error)

	// FetchHistorical returns up to limit bars strictly older than
	// beforeTime, ordered ascending. Used for warmup and backfill.
	FetchHistorical(ctx context.Context, symbol string, tf model.Timeframe, beforeTime int64, limit int) ([]model.Candle, error)
}
