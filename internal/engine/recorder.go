package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"crypto_api/internal/domain"
	"crypto_api/internal/exchange"
)

type seriesKey struct {
	market   *domain.Market
	interval domain.Interval
}

// Recorder drains subscriptions into a CandleRecorder. Each series must
// advance strictly in open time; older or repeated samples are skipped.
type Recorder struct {
	store    domain.CandleRecorder
	onCandle func(domain.Candlestick)

	// DumpPath receives the recorder state when a run panics.
	DumpPath string

	mu       sync.RWMutex
	last     map[seriesKey]domain.Candlestick
	recorded uint64
	skipped  uint64
}

// NewRecorder creates a recorder. store and onCandle may be nil.
func NewRecorder(store domain.CandleRecorder, onCandle func(domain.Candlestick)) *Recorder {
	return &Recorder{
		store:    store,
		onCandle: onCandle,
		DumpPath: "panic_dump.json",
		last:     make(map[seriesKey]domain.Candlestick),
	}
}

// Run consumes sub until ctx is cancelled or the stream ends. A finite
// stream ending with io.EOF is a clean exit. The subscription is closed
// on every return path.
func (r *Recorder) Run(ctx context.Context, sub *exchange.Subscription) (err error) {
	defer sub.Close()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.String("series", sub.String()), slog.Any("panic", p))
			r.DumpState(r.DumpPath)
			panic(fmt.Sprintf("HALTED: %v", p))
		}
	}()

	slog.Info("Recorder started", slog.String("series", sub.String()))
	for {
		c, err := sub.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				slog.Info("Recorder stopping...", slog.String("series", sub.String()))
				return nil
			case errors.Is(err, io.EOF):
				slog.Info("Recorder reached end of stream", slog.String("series", sub.String()))
				return nil
			default:
				return fmt.Errorf("recorder %s: %w", sub, err)
			}
		}

		if err := r.process(ctx, sub, c); err != nil {
			return err
		}
	}
}

func (r *Recorder) process(ctx context.Context, sub *exchange.Subscription, c domain.Candlestick) error {
	if !c.Market.Equal(sub.Market) || c.Interval != sub.Interval {
		slog.Warn("CANDLE_FOREIGN_IGNORED", slog.String("series", sub.String()), slog.String("candle", c.String()))
		r.skip()
		return nil
	}

	key := seriesKey{market: sub.Market, interval: sub.Interval}
	r.mu.RLock()
	prev, seen := r.last[key]
	r.mu.RUnlock()

	if seen {
		if !c.OpenTime.After(prev.OpenTime) {
			slog.Warn("CANDLE_STALE_IGNORED",
				slog.String("series", sub.String()),
				slog.Time("last", prev.OpenTime),
				slog.Time("got", c.OpenTime))
			r.skip()
			return nil
		}
		if step := sub.Interval.Duration(); step > 0 {
			if missing := int64(c.OpenTime.Sub(prev.OpenTime)/step) - 1; missing > 0 {
				slog.Warn("CANDLE_GAP_TOLERATED",
					slog.String("series", sub.String()),
					slog.Time("last", prev.OpenTime),
					slog.Time("got", c.OpenTime),
					slog.Int64("missing", missing))
			}
		}
	}

	if r.store != nil {
		if err := c.Insert(ctx, r.store); err != nil {
			return fmt.Errorf("recorder %s: persist %s: %w", sub, c.OpenTime, err)
		}
	}

	r.mu.Lock()
	r.last[key] = c
	r.recorded++
	r.mu.Unlock()

	if r.onCandle != nil {
		r.onCandle(c)
	}
	return nil
}

func (r *Recorder) skip() {
	r.mu.Lock()
	r.skipped++
	r.mu.Unlock()
}

// RunAll runs one recorder loop per subscription and waits for all of
// them. A failing series does not stop the others.
func (r *Recorder) RunAll(ctx context.Context, subs []*exchange.Subscription) error {
	var wg sync.WaitGroup
	errs := make([]error, len(subs))
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub *exchange.Subscription) {
			defer wg.Done()
			errs[i] = r.Run(ctx, sub)
			if errs[i] != nil {
				slog.Error("Recorder failed", slog.String("series", sub.String()), slog.Any("error", errs[i]))
			}
		}(i, sub)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Last returns the newest recorded candlestick of a series.
func (r *Recorder) Last(market *domain.Market, interval domain.Interval) (domain.Candlestick, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.last[seriesKey{market: market, interval: interval}]
	return c, ok
}

// Stats returns how many samples were recorded and skipped.
func (r *Recorder) Stats() (recorded, skipped uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recorded, r.skipped
}

// DumpState writes the last sample of every series to a file (for
// post-mortem).
func (r *Recorder) DumpState(filename string) {
	slog.Info("Dumping recorder state...", slog.String("file", filename))

	r.mu.RLock()
	series := make(map[string]string, len(r.last))
	for k, c := range r.last {
		series[k.market.Symbol()+"@"+k.interval.String()] = c.String()
	}
	data := struct {
		Recorded uint64            `json:"recorded"`
		Skipped  uint64            `json:"skipped"`
		Series   map[string]string `json:"series"`
	}{
		Recorded: r.recorded,
		Skipped:  r.skipped,
		Series:   series,
	}
	r.mu.RUnlock()

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
