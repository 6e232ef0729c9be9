package exchange

import (
	"context"

	"crypto_api/internal/domain"
)

// Orderer places single orders. It is the only order primitive; every
// higher level flow is built on repeated Order calls.
type Orderer interface {
	Order(ctx context.Context, order domain.Order) (domain.OrderResponse, error)
}

// Api is the capability contract every venue integration provides.
type Api interface {
	Orderer

	// Name identifies the venue in logs.
	Name() string

	// Update refreshes the cached markets and assets from the venue.
	// On failure the previous cache stays valid.
	Update(ctx context.Context) error

	// Markets and Assets return the cached, interned sets. They never do I/O.
	Markets() []*domain.Market
	Assets() []*domain.Asset

	// Subscribe returns a backlog-then-live candlestick stream. The caller
	// owns the subscription and must Close it.
	Subscribe(ctx context.Context, market *domain.Market, interval domain.Interval) (*Subscription, error)
}
