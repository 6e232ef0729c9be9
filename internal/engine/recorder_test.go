package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/internal/exchange"
	"crypto_api/internal/storage"
	"crypto_api/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candle(m *domain.Market, n int, closePx string) domain.Candlestick {
	open := t0.Add(time.Duration(n) * time.Minute)
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
		Volume:    domain.NewQuantity(quant.FromInt(1), m.Base),
	}
}

// trackingSource records whether it was closed.
type trackingSource struct {
	exchange.Source
	mu     sync.Mutex
	closed bool
}

func (s *trackingSource) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Source.Close()
}

func (s *trackingSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type failingSource struct{}

func (failingSource) Next(ctx context.Context) (domain.Candlestick, error) {
	return domain.Candlestick{}, domain.ErrConnection
}
func (failingSource) Close() {}

type memRecorder struct {
	mu      sync.Mutex
	candles []domain.Candlestick
	err     error
}

func (m *memRecorder) InsertCandlestick(ctx context.Context, c domain.Candlestick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.candles = append(m.candles, c)
	return nil
}

func TestRecorder_PersistsInOrderAndSkipsStale(t *testing.T) {
	reg := domain.NewRegistry()
	m := reg.Market("BTC", "USDT")
	other := reg.Market("ETH", "USDT")

	src := &trackingSource{Source: exchange.NewSliceSource([]domain.Candlestick{
		candle(m, 0, "100"),
		candle(m, 1, "101"),
		candle(m, 1, "999"), // repeated
		candle(m, 0, "998"), // older
		candle(other, 2, "5"),
		candle(m, 4, "104"), // gap of two
	})}
	sub := exchange.NewSubscription(m, domain.I1m, src)

	store := &memRecorder{}
	var notified []domain.Candlestick
	rec := NewRecorder(store, func(c domain.Candlestick) { notified = append(notified, c) })

	require.NoError(t, rec.Run(context.Background(), sub))
	assert.True(t, src.isClosed())

	require.Len(t, store.candles, 3)
	assert.True(t, store.candles[1].Close.Value.Equal(quant.FromInt(101)))
	assert.True(t, store.candles[2].OpenTime.Equal(t0.Add(4*time.Minute)))
	assert.Len(t, notified, 3)

	recorded, skipped := rec.Stats()
	assert.Equal(t, uint64(3), recorded)
	assert.Equal(t, uint64(3), skipped)

	last, ok := rec.Last(m, domain.I1m)
	require.True(t, ok)
	assert.True(t, last.Close.Value.Equal(quant.FromInt(104)))
	_, ok = rec.Last(other, domain.I1m)
	assert.False(t, ok)
}

func TestRecorder_TransportErrorIsReturned(t *testing.T) {
	reg := domain.NewRegistry()
	m := reg.Market("BTC", "USDT")
	src := &trackingSource{Source: failingSource{}}

	err := NewRecorder(nil, nil).Run(context.Background(), exchange.NewSubscription(m, domain.I1m, src))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.True(t, src.isClosed())
}

func TestRecorder_PersistFailureStops(t *testing.T) {
	reg := domain.NewRegistry()
	m := reg.Market("BTC", "USDT")
	boom := errors.New("disk full")
	src := &trackingSource{Source: exchange.NewSliceSource([]domain.Candlestick{candle(m, 0, "1"), candle(m, 1, "2")})}

	rec := NewRecorder(&memRecorder{err: boom}, nil)
	err := rec.Run(context.Background(), exchange.NewSubscription(m, domain.I1m, src))
	require.ErrorIs(t, err, boom)
	assert.True(t, src.isClosed())

	recorded, _ := rec.Stats()
	assert.Zero(t, recorded)
}

func TestRecorder_CancelStopsLiveStream(t *testing.T) {
	reg := domain.NewRegistry()
	m := reg.Market("BTC", "USDT")

	ch := make(chan domain.Candlestick)
	src := &trackingSource{Source: exchange.NewChanSource(ch, func() error { return nil }, nil)}
	sub := exchange.NewSubscription(m, domain.I1m, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	rec := NewRecorder(nil, nil)
	go func() { done <- rec.Run(ctx, sub) }()

	ch <- candle(m, 0, "1")
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
	}
	assert.True(t, src.isClosed())
	recorded, _ := rec.Stats()
	assert.Equal(t, uint64(1), recorded)
}

func TestRecorder_RunAllIntoStore(t *testing.T) {
	reg := domain.NewRegistry()
	btc := reg.Market("BTC", "USDT")
	eth := reg.Market("ETH", "USDT")

	store, err := storage.NewCandleStore(filepath.Join(t.TempDir(), "rec.db"), reg)
	require.NoError(t, err)
	defer store.Close()

	subs := []*exchange.Subscription{
		exchange.NewSubscription(btc, domain.I1m, exchange.NewSliceSource([]domain.Candlestick{candle(btc, 0, "1"), candle(btc, 1, "2")})),
		exchange.NewSubscription(eth, domain.I1m, exchange.NewSliceSource([]domain.Candlestick{candle(eth, 0, "3")})),
		exchange.NewSubscription(eth, domain.I5m, failingSource{}),
	}

	rec := NewRecorder(store, nil)
	err = rec.RunAll(context.Background(), subs)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnection)

	loaded, err := store.LoadCandlesticks(context.Background(), btc, domain.I1m, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
	loaded, err = store.LoadCandlesticks(context.Background(), eth, domain.I1m, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestRecorder_DumpState(t *testing.T) {
	reg := domain.NewRegistry()
	m := reg.Market("BTC", "USDT")
	rec := NewRecorder(nil, nil)
	require.NoError(t, rec.Run(context.Background(),
		exchange.NewSubscription(m, domain.I1m, exchange.NewSliceSource([]domain.Candlestick{candle(m, 0, "1")}))))

	path := filepath.Join(t.TempDir(), "dump.json")
	rec.DumpState(path)
	assert.FileExists(t, path)
}
