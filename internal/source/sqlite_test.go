package source_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/source"
)

func seedBars(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		price := 1.10 + float64(i)*0.001
		out[i] = model.Candle{
			Time: int64(1000 + i*3600),
			Open: price, High: price + 0.001, Low: price - 0.001, Close: price,
			Volume: float64(10 + i),
		}
	}
	return out
}

func openSeeded(t *testing.T, n int) *source.SQLite {
	t.Helper()
	db, err := source.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Insert(context.Background(), "EURUSD", model.TFH1, seedBars(n)))
	return db
}

func TestSQLite_FetchContextAscendingWindow(t *testing.T) {
	db := openSeeded(t, 20)
	bars := seedBars(20)

	got, err := db.FetchContext(context.Background(), "EURUSD", model.TFH1, bars[10].Time, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)

	// The five newest bars at or before the anchor, oldest first.
	assert.Equal(t, bars[6].Time, got[0].Time)
	assert.Equal(t, bars[10].Time, got[4].Time)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Time, got[i-1].Time)
	}
}

func TestSQLite_FetchFutureExclusive(t *testing.T) {
	db := openSeeded(t, 20)
	bars := seedBars(20)

	got, err := db.FetchFuture(context.Background(), "EURUSD", model.TFH1, bars[10].Time, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, bars[11].Time, got[0].Time)
	assert.Equal(t, bars[14].Time, got[3].Time)
}

func TestSQLite_FetchHistoricalStrictlyOlder(t *testing.T) {
	db := openSeeded(t, 20)
	bars := seedBars(20)

	got, err := db.FetchHistorical(context.Background(), "EURUSD", model.TFH1, bars[5].Time, 10)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, bars[0].Time, got[0].Time)
	assert.Equal(t, bars[4].Time, got[4].Time)
}

func TestSQLite_FetchFirstAndLast(t *testing.T) {
	db := openSeeded(t, 20)
	bars := seedBars(20)
	ctx := context.Background()

	first, err := db.FetchFirst(ctx, "EURUSD", model.TFH1)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, bars[0].Time, first.Time)

	last, err := db.FetchLast(ctx, "EURUSD", model.TFH1)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, bars[19].Time, last.Time)

	// Unknown timeframe and unknown symbol resolve to nil, not an error.
	none, err := db.FetchFirst(ctx, "EURUSD", model.TFM5)
	require.NoError(t, err)
	assert.Nil(t, none)
	none, err = db.FetchLast(ctx, "GBPUSD", "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLite_FetchFirstAnyTimeframe(t *testing.T) {
	db := openSeeded(t, 5)
	ctx := context.Background()

	// An M5 bar older than every H1 bar.
	older := []model.Candle{{Time: 500, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}}
	require.NoError(t, db.Insert(ctx, "EURUSD", model.TFM5, older))

	first, err := db.FetchFirst(ctx, "EURUSD", "")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(500), first.Time)
}

func TestSQLite_InsertReplacesDuplicates(t *testing.T) {
	db := openSeeded(t, 5)
	ctx := context.Background()
	bars := seedBars(5)

	updated := bars[2]
	updated.Close = 9.99
	require.NoError(t, db.Insert(ctx, "EURUSD", model.TFH1, []model.Candle{updated}))

	got, err := db.FetchContext(ctx, "EURUSD", model.TFH1, bars[2].Time, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 9.99, got[0].Close, 1e-9)
}

func TestMemory_MatchesSourceContract(t *testing.T) {
	mem := source.NewMemory()
	bars := seedBars(20)
	mem.Put("EURUSD", model.TFH1, bars)
	ctx := context.Background()

	got, err := mem.FetchContext(ctx, "EURUSD", model.TFH1, bars[10].Time, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, bars[6].Time, got[0].Time)

	got, err = mem.FetchFuture(ctx, "EURUSD", model.TFH1, bars[10].Time, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, bars[11].Time, got[0].Time)

	got, err = mem.FetchHistorical(ctx, "EURUSD", model.TFH1, bars[5].Time, 10)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, bars[4].Time, got[4].Time)

	first, err := mem.FetchFirst(ctx, "EURUSD", "")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, bars[0].Time, first.Time)

	last, err := mem.FetchLast(ctx, "EURUSD", model.TFH1)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, bars[19].Time, last.Time)
}

func TestMemory_HonorsContextCancellation(t *testing.T) {
	mem := source.NewMemory()
	mem.Put("EURUSD", model.TFH1, seedBars(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mem.FetchContext(ctx, "EURUSD", model.TFH1, 999999, 5)
	assert.ErrorIs(t, err, context.Canceled)
}
