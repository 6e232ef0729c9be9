package exchange

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/pkg/quant"

	"github.com/stretchr/testify/mock"
)

// mockApi is a testify mock of Api.
type mockApi struct {
	mock.Mock
}

var _ Api = (*mockApi)(nil)

func (m *mockApi) Name() string { return "mock" }

func (m *mockApi) Update(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockApi) Markets() []*domain.Market {
	return m.Called().Get(0).([]*domain.Market)
}

func (m *mockApi) Assets() []*domain.Asset {
	return m.Called().Get(0).([]*domain.Asset)
}

func (m *mockApi) Subscribe(ctx context.Context, market *domain.Market, interval domain.Interval) (*Subscription, error) {
	args := m.Called(ctx, market, interval)
	sub, _ := args.Get(0).(*Subscription)
	return sub, args.Error(1)
}

func (m *mockApi) Order(ctx context.Context, order domain.Order) (domain.OrderResponse, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(domain.OrderResponse), args.Error(1)
}

// countingSource tracks open connections the way a transport would.
type countingSource struct {
	Source
	open *atomic.Int32
}

func newCountingSource(src Source, open *atomic.Int32) *countingSource {
	open.Add(1)
	return &countingSource{Source: src, open: open}
}

func (c *countingSource) Close() {
	c.Source.Close()
	c.open.Add(-1)
}

type fixture struct {
	reg  *domain.Registry
	btc  *domain.Market
	eth  *domain.Market
	base time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := domain.NewRegistry()
	return &fixture{
		reg:  reg,
		btc:  reg.Market("BTC", "USDT"),
		eth:  reg.Market("ETH", "USDT"),
		base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) price(m *domain.Market, v string) domain.Price {
	return domain.NewPrice(quant.MustParse(v), m)
}

func (f *fixture) qty(a *domain.Asset, v string) domain.Quantity {
	return domain.NewQuantity(quant.MustParse(v), a)
}

// candle builds the n-th one minute candle of m.
func (f *fixture) candle(m *domain.Market, n int, low, high, close string) domain.Candlestick {
	open := f.base.Add(time.Duration(n) * time.Minute)
	return domain.Candlestick{
		Market:    m,
		Interval:  domain.I1m,
		OpenTime:  open,
		CloseTime: open.Add(time.Minute - time.Millisecond),
		Open:      f.price(m, close),
		High:      f.price(m, high),
		Low:       f.price(m, low),
		Close:     f.price(m, close),
		Volume:    f.qty(m.Base, "1"),
	}
}
