package domain

import (
	"context"
	"fmt"
	"time"
)

// Candlestick is an immutable OHLCV sample of one market over
// [OpenTime, CloseTime).
type Candlestick struct {
	Market    *Market
	Interval  Interval
	OpenTime  time.Time
	CloseTime time.Time
	Open      Price
	High      Price
	Low       Price
	Close     Price
	// Volume is denominated in the market's base asset.
	Volume Quantity
	Trades uint64
}

// CandleRecorder durably records candlesticks.
// Implementations must be idempotent per (market, interval, open time).
type CandleRecorder interface {
	InsertCandlestick(ctx context.Context, c Candlestick) error
}

// Insert persists the candlestick through recorder.
func (c Candlestick) Insert(ctx context.Context, recorder CandleRecorder) error {
	return recorder.InsertCandlestick(ctx, c)
}

// Touches reports whether price lies within [Low, High].
func (c Candlestick) Touches(price Price) bool {
	return !price.Less(c.Low) && !price.Greater(c.High)
}

func (c Candlestick) String() string {
	return fmt.Sprintf("%s@%s %s O=%s H=%s L=%s C=%s V=%s",
		c.Market, c.Interval, c.OpenTime.UTC().Format(time.RFC3339),
		c.Open.Value, c.High.Value, c.Low.Value, c.Close.Value, c.Volume.Value)
}
