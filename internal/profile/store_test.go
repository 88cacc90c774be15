package profile_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/profile"
)

func sampleSnapshot() profile.Snapshot {
	return profile.Snapshot{
		Account: model.AccountState{
			Balance:   10250.50,
			Equity:    10300.00,
			MaxEquity: 10400.00,
			History: []model.Trade{{
				ID: "t-1", Symbol: "EURUSD", Side: model.SideLong,
				Type: model.OrderMarket, EntryPrice: 1.0850, ClosePrice: 1.0900,
				Quantity: 0.1, Status: model.StatusClosed, PnL: 50,
				Journal: "clean breakout",
			}},
		},
		Symbol:       "EURUSD",
		Timeframe:    model.TFH1,
		SimTime:      1_700_000_000,
		TimeInvested: 3640,
		Drawings:     json.RawMessage(`{"lines":[{"y":1.09}]}`),
	}
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	store, err := profile.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	snap := sampleSnapshot()
	require.NoError(t, store.Save(ctx, "swing-eu", snap))

	got, err := store.Load(ctx, "swing-eu")
	require.NoError(t, err)
	assert.Equal(t, snap.Symbol, got.Symbol)
	assert.Equal(t, snap.Timeframe, got.Timeframe)
	assert.Equal(t, snap.SimTime, got.SimTime)
	assert.Equal(t, snap.TimeInvested, got.TimeInvested)
	assert.InDelta(t, snap.Account.Balance, got.Account.Balance, 1e-9)
	require.Len(t, got.Account.History, 1)
	assert.Equal(t, "clean breakout", got.Account.History[0].Journal)
	assert.JSONEq(t, string(snap.Drawings), string(got.Drawings))
}

func TestStore_SaveOverwrites(t *testing.T) {
	store, err := profile.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	snap := sampleSnapshot()
	require.NoError(t, store.Save(ctx, "p", snap))

	snap.SimTime = 1_700_100_000
	require.NoError(t, store.Save(ctx, "p", snap))

	got, err := store.Load(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_100_000), got.SimTime)

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, names)
}

func TestStore_LoadMissing(t *testing.T) {
	store, err := profile.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, profile.ErrNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	store, err := profile.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "older", sampleSnapshot()))
	require.NoError(t, store.Save(ctx, "newer", sampleSnapshot()))

	names, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.Contains(t, names, "older")
	assert.Contains(t, names, "newer")
}

func TestEncodeDecode_RejectsGarbage(t *testing.T) {
	_, err := profile.Decode([]byte("{not json"))
	assert.Error(t, err)
}
