package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*CandleStore, *domain.Registry) {
	t.Helper()
	reg := domain.NewRegistry()
	store, err := NewCandleStore(filepath.Join(t.TempDir(), "test.db"), reg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, reg
}

func candle(m *domain.Market, open time.Time, closePx string) domain.Candlestick {
	px := domain.NewPrice(quant.MustParse(closePx), m)
	return domain.Candlestick{
		Market:    m,
		Interval:  domain.I1m,
		OpenTime:  open,
		CloseTime: open.Add(time.Minute - time.Millisecond),
		Open:      px,
		High:      px,
		Low:       px,
		Close:     px,
		Volume:    domain.NewQuantity(quant.MustParse("1.25"), m.Base),
		Trades:    7,
	}
}

func TestCandleStore_InsertIdempotent(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	m := reg.Market("BTC", "USDT")
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	c := candle(m, t0, "20000.5")
	require.NoError(t, c.Insert(ctx, store))
	// Same key, different payload: first write wins.
	require.NoError(t, store.InsertCandlestick(ctx, candle(m, t0, "1")))
	require.NoError(t, store.InsertCandlestick(ctx, candle(m, t0.Add(time.Minute), "20001")))

	loaded, err := store.LoadCandlesticks(ctx, m, domain.I1m, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	got := loaded[0]
	assert.Same(t, m, got.Market)
	assert.True(t, got.OpenTime.Equal(t0))
	assert.True(t, got.CloseTime.Equal(c.CloseTime))
	assert.True(t, got.Close.Value.Equal(quant.MustParse("20000.5")))
	assert.True(t, got.Volume.Value.Equal(quant.MustParse("1.25")))
	assert.Same(t, m.Base, got.Volume.Asset)
	assert.Equal(t, uint64(7), got.Trades)
}

func TestCandleStore_LoadRangeAndLimit(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	btc := reg.Market("BTC", "USDT")
	eth := reg.Market("ETH", "USDT")
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Inserted out of order.
	for _, i := range []int{3, 0, 4, 1, 2} {
		require.NoError(t, store.InsertCandlestick(ctx, candle(btc, t0.Add(time.Duration(i)*time.Minute), "100")))
	}
	require.NoError(t, store.InsertCandlestick(ctx, candle(eth, t0, "10")))

	loaded, err := store.LoadCandlesticks(ctx, btc, domain.I1m, t0.Add(time.Minute), 3)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, c := range loaded {
		assert.True(t, c.OpenTime.Equal(t0.Add(time.Duration(i+1)*time.Minute)))
	}

	other, err := store.LoadCandlesticks(ctx, btc, domain.I1h, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, other)

	last, err := store.LastOpenTime(ctx, btc, domain.I1m)
	require.NoError(t, err)
	assert.True(t, last.Equal(t0.Add(4*time.Minute)))

	none, err := store.LastOpenTime(ctx, btc, domain.I1d)
	require.NoError(t, err)
	assert.True(t, none.IsZero())

	markets, err := store.Markets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*domain.Market{btc, eth}, markets)
}

func TestCandleStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	reg := domain.NewRegistry()
	store, err := NewCandleStore(path, reg)
	require.NoError(t, err)
	require.NoError(t, store.InsertCandlestick(ctx, candle(reg.Market("BTC", "USDT"), t0, "1")))
	require.NoError(t, store.Close())

	reg2 := domain.NewRegistry()
	store2, err := NewCandleStore(path, reg2)
	require.NoError(t, err)
	defer store2.Close()
	require.NoError(t, store2.Ping(ctx))

	markets, err := store2.Markets(ctx)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Same(t, reg2.Market("BTC", "USDT"), markets[0])
}

func TestCandleStore_Intents(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	m := reg.Market("BTC", "USDT")
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	px := func(s string) domain.Price { return domain.NewPrice(quant.MustParse(s), m) }

	newIntent := func(id string, state domain.PositionState, unprotected bool, at time.Time) *domain.PositionIntent {
		return &domain.PositionIntent{
			ID:          id,
			State:       state,
			Side:        domain.SideBuy,
			EnterQty:    domain.NewQuantity(quant.MustParse("0.5"), m.Base),
			EnterPrice:  px("20000"),
			TakeProfit:  px("21000"),
			StopLoss:    px("19000"),
			Unprotected: unprotected,
			UpdatedAt:   at,
		}
	}

	bracketing := newIntent("a", domain.PositionBracketing, false, now)
	bracketing.EnteredQty = domain.NewQuantity(quant.MustParse("0.4"), m.Base)
	bracketing.EnteringID = "42"

	require.NoError(t, store.SaveIntent(ctx, bracketing))
	require.NoError(t, store.SaveIntent(ctx, newIntent("b", domain.PositionActive, false, now)))
	require.NoError(t, store.SaveIntent(ctx, newIntent("c", domain.PositionFailed, false, now)))
	require.NoError(t, store.SaveIntent(ctx, newIntent("d", domain.PositionFailed, true, now.Add(time.Second))))
	require.NoError(t, store.SaveIntent(ctx, newIntent("e", domain.PositionEntering, false, now.Add(2*time.Second))))

	pending, err := store.PendingIntents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "d", pending[1].ID)
	assert.Equal(t, "e", pending[2].ID)

	got := pending[0]
	assert.Equal(t, domain.PositionBracketing, got.State)
	assert.Equal(t, domain.SideBuy, got.Side)
	assert.Same(t, m, got.Market())
	assert.Same(t, m.Base, got.EnteredQty.Asset)
	assert.True(t, got.EnteredQty.Value.Equal(quant.MustParse("0.4")))
	assert.True(t, got.TakeProfit.Value.Equal(quant.MustParse("21000")))
	assert.Equal(t, "42", got.EnteringID)
	assert.True(t, got.UpdatedAt.Equal(now))
	assert.Nil(t, pending[2].EnteredQty.Asset)

	// Upsert moves the intent out of the pending set.
	got.Transition(domain.PositionActive, now.Add(time.Minute))
	got.LeavingID = "43"
	require.NoError(t, store.SaveIntent(ctx, got))

	pending, err = store.PendingIntents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "d", pending[0].ID)
	assert.True(t, pending[0].Unprotected)
}
