package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/internal/exchange"
)

// CandleSource is the read side of the candlestick store.
type CandleSource interface {
	Markets(ctx context.Context) ([]*domain.Market, error)
	LoadCandlesticks(ctx context.Context, market *domain.Market, interval domain.Interval,
		from time.Time, limit int) ([]domain.Candlestick, error)
}

// Replayer is a historical venue: it streams stored candlesticks and
// executes nothing. Wrap it in exchange.Simulated to backtest orders.
type Replayer struct {
	store CandleSource
	from  time.Time
	to    time.Time

	mu      sync.RWMutex
	markets []*domain.Market
	assets  []*domain.Asset
}

var _ exchange.Api = (*Replayer)(nil)

// NewReplayer replays samples with from <= open time < to. A zero bound is
// open.
func NewReplayer(store CandleSource, from, to time.Time) *Replayer {
	return &Replayer{store: store, from: from, to: to}
}

func (r *Replayer) Name() string { return "replay" }

// Update loads the markets that have stored candlesticks.
func (r *Replayer) Update(ctx context.Context) error {
	markets, err := r.store.Markets(ctx)
	if err != nil {
		return fmt.Errorf("replay update: %w: %w", domain.ErrConnection, err)
	}

	seen := make(map[*domain.Asset]bool)
	var assets []*domain.Asset
	for _, m := range markets {
		for _, a := range []*domain.Asset{m.Base, m.Quote} {
			if !seen[a] {
				seen[a] = true
				assets = append(assets, a)
			}
		}
	}
	domain.SortMarkets(markets)
	domain.SortAssets(assets)

	r.mu.Lock()
	r.markets, r.assets = markets, assets
	r.mu.Unlock()

	slog.Info("Replay markets loaded", slog.Int("markets", len(markets)))
	return nil
}

func (r *Replayer) Markets() []*domain.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Market, len(r.markets))
	copy(out, r.markets)
	return out
}

func (r *Replayer) Assets() []*domain.Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Asset, len(r.assets))
	copy(out, r.assets)
	return out
}

// Subscribe returns a finite subscription over the stored samples. It ends
// with io.EOF.
func (r *Replayer) Subscribe(ctx context.Context, market *domain.Market, interval domain.Interval) (*exchange.Subscription, error) {
	candles, err := r.store.LoadCandlesticks(ctx, market, interval, r.from, 0)
	if err != nil {
		return nil, fmt.Errorf("replay %s@%s: %w: %w", market, interval, domain.ErrConnection, err)
	}
	if !r.to.IsZero() {
		end := len(candles)
		for i, c := range candles {
			if !c.OpenTime.Before(r.to) {
				end = i
				break
			}
		}
		candles = candles[:end]
	}

	slog.Info("Replay subscription opened",
		slog.String("market", market.Symbol()),
		slog.String("interval", interval.String()),
		slog.Int("candles", len(candles)))
	return exchange.NewSubscription(market, interval, exchange.NewSliceSource(candles)), nil
}

// Order always fails: history cannot execute orders.
func (r *Replayer) Order(ctx context.Context, order domain.Order) (domain.OrderResponse, error) {
	return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrOther,
		fmt.Errorf("%w: replay venue executes nothing", domain.ErrConnection))
}
