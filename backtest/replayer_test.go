package backtest

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/internal/exchange"
	"crypto_api/internal/storage"
	"crypto_api/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func bar(m *domain.Market, n int, low, high, closePx string) domain.Candlestick {
	open := t0.Add(time.Duration(n) * time.Minute)
	px := func(s string) domain.Price { return domain.NewPrice(quant.MustParse(s), m) }
	return domain.Candlestick{
		Market:    m,
		Interval:  domain.I1m,
		OpenTime:  open,
		CloseTime: open.Add(time.Minute - time.Millisecond),
		Open:      px(closePx),
		High:      px(high),
		Low:       px(low),
		Close:     px(closePx),
		Volume:    domain.NewQuantity(quant.FromInt(3), m.Base),
		Trades:    10,
	}
}

func seededStore(t *testing.T) (*storage.CandleStore, *domain.Registry, *domain.Market) {
	t.Helper()
	reg := domain.NewRegistry()
	store, err := storage.NewCandleStore(filepath.Join(t.TempDir(), "replay.db"), reg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := reg.Market("BTC", "USDT")
	ctx := context.Background()
	for _, c := range []domain.Candlestick{
		bar(m, 0, "19900", "20050", "20000"),
		bar(m, 1, "19950", "20500", "20400"),
		bar(m, 2, "20300", "21100", "21000"),
		bar(m, 3, "20900", "21050", "21000"),
	} {
		require.NoError(t, store.InsertCandlestick(ctx, c))
	}
	require.NoError(t, store.InsertCandlestick(ctx, bar(reg.Market("ETH", "BTC"), 0, "0.05", "0.05", "0.05")))
	return store, reg, m
}

func drain(t *testing.T, sub *exchange.Subscription) []domain.Candlestick {
	t.Helper()
	var out []domain.Candlestick
	for {
		c, err := sub.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, c)
	}
}

func TestReplayer_UpdateAndSubscribe(t *testing.T) {
	store, reg, m := seededStore(t)
	r := NewReplayer(store, t0.Add(time.Minute), t0.Add(3*time.Minute))

	require.NoError(t, r.Update(context.Background()))
	assert.Len(t, r.Markets(), 2)
	assert.Len(t, r.Assets(), 3)
	assert.Contains(t, r.Markets(), m)
	assert.Contains(t, r.Assets(), reg.Asset("ETH"))

	sub, err := r.Subscribe(context.Background(), m, domain.I1m)
	require.NoError(t, err)
	defer sub.Close()

	got := drain(t, sub)
	require.Len(t, got, 2)
	assert.True(t, got[0].OpenTime.Equal(t0.Add(time.Minute)))
	assert.True(t, got[1].OpenTime.Equal(t0.Add(2*time.Minute)))
}

func TestReplayer_OrderExecutesNothing(t *testing.T) {
	store, _, m := seededStore(t)
	r := NewReplayer(store, time.Time{}, time.Time{})

	_, err := r.Order(context.Background(), domain.NewLimitOrder(domain.SideBuy,
		domain.NewQuantity(quant.FromInt(1), m.Base),
		domain.NewPrice(quant.FromInt(20000), m)))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, domain.OrderErrOther, domain.AsOrderError(err).Kind)
}

func TestBacktest_PositionTakesProfit(t *testing.T) {
	store, _, m := seededStore(t)
	ctx := context.Background()

	venue := exchange.NewSimulated(NewReplayer(store, time.Time{}, time.Time{}), nil)
	require.NoError(t, venue.Update(ctx))
	venue.Deposit(m.Quote, quant.FromInt(10000))
	assert.Equal(t, "simulated/replay", venue.Name())

	sub, err := venue.Subscribe(ctx, m, domain.I1m)
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.Next(ctx)
	require.NoError(t, err)

	px := func(s string) domain.Price { return domain.NewPrice(quant.MustParse(s), m) }
	resp, err := exchange.EnterPosition(ctx, venue, domain.SideBuy,
		domain.NewQuantity(quant.MustParse("0.1"), m.Base),
		px("20100"), px("21000"), px("19000"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, resp.Entering.Status)
	assert.Equal(t, domain.StatusNew, resp.Leaving.Status)
	assert.True(t, resp.ExecutedQuantity.Value.Equal(quant.MustParse("0.1")))

	rest := drain(t, sub)
	assert.Len(t, rest, 3)

	assert.Zero(t, venue.OpenOrders())
	assert.Len(t, venue.Fills(), 2)
	assert.True(t, venue.Balance(m.Quote).Amount.Equal(quant.FromInt(10090)))
	assert.True(t, venue.Balance(m.Base).Amount.IsZero())
	assert.True(t, venue.Equity(m.Quote).Equal(quant.FromInt(10090)))
}
