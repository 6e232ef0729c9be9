package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/pkg/quant"
)

// InsertCandlestick stores c. Re-inserting a sample with the same market,
// interval and open time is a no-op.
func (s *CandleStore) InsertCandlestick(ctx context.Context, c domain.Candlestick) error {
	if c.Market == nil {
		return fmt.Errorf("insert candlestick: no market")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO candlesticks
			(base, quote, timeframe, open_time, close_time, open, high, low, close, volume, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (base, quote, timeframe, open_time) DO NOTHING`,
		c.Market.Base.Code(), c.Market.Quote.Code(), c.Interval.String(),
		quant.ToMillis(c.OpenTime), quant.ToMillis(c.CloseTime),
		c.Open.Value.String(), c.High.Value.String(), c.Low.Value.String(), c.Close.Value.String(),
		c.Volume.Value.String(), int64(c.Trades),
	)
	if err != nil {
		return fmt.Errorf("failed to insert candlestick %s: %w", c.Market, err)
	}
	return nil
}

// LoadCandlesticks returns up to limit samples of market at interval with an
// open time at or after from, in ascending open time. A non-positive limit
// means no limit.
func (s *CandleStore) LoadCandlesticks(ctx context.Context, market *domain.Market, interval domain.Interval,
	from time.Time, limit int) ([]domain.Candlestick, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT open_time, close_time, open, high, low, close, volume, trades
		FROM candlesticks
		WHERE base = ? AND quote = ? AND timeframe = ? AND open_time >= ?
		ORDER BY open_time ASC
		LIMIT ?`,
		market.Base.Code(), market.Quote.Code(), interval.String(), quant.ToMillis(from), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query candlesticks: %w", err)
	}
	defer rows.Close()

	var out []domain.Candlestick
	for rows.Next() {
		var openMs, closeMs, trades int64
		var raw [5]string
		if err := rows.Scan(&openMs, &closeMs, &raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &trades); err != nil {
			return nil, fmt.Errorf("failed to scan candlestick: %w", err)
		}

		var vals [5]quant.Monetary
		for i, r := range raw {
			v, err := quant.Parse(r)
			if err != nil {
				return nil, fmt.Errorf("corrupt candlestick %s@%s at %d: %w", market, interval, openMs, err)
			}
			vals[i] = v
		}
		out = append(out, domain.Candlestick{
			Market:    market,
			Interval:  interval,
			OpenTime:  quant.FromMillis(openMs),
			CloseTime: quant.FromMillis(closeMs),
			Open:      domain.NewPrice(vals[0], market),
			High:      domain.NewPrice(vals[1], market),
			Low:       domain.NewPrice(vals[2], market),
			Close:     domain.NewPrice(vals[3], market),
			Volume:    domain.NewQuantity(vals[4], market.Base),
			Trades:    uint64(trades),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// Markets returns the distinct markets with stored candlesticks.
func (s *CandleStore) Markets(ctx context.Context) ([]*domain.Market, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT base, quote FROM candlesticks ORDER BY base, quote")
	if err != nil {
		return nil, fmt.Errorf("failed to query markets: %w", err)
	}
	defer rows.Close()

	var out []*domain.Market
	for rows.Next() {
		var base, quote string
		if err := rows.Scan(&base, &quote); err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		out = append(out, s.registry.Market(base, quote))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// LastOpenTime returns the newest stored open time of market at interval,
// or the zero time when nothing is stored.
func (s *CandleStore) LastOpenTime(ctx context.Context, market *domain.Market, interval domain.Interval) (time.Time, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(open_time) FROM candlesticks WHERE base = ? AND quote = ? AND timeframe = ?",
		market.Base.Code(), market.Quote.Code(), interval.String(),
	).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last open time: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return quant.FromMillis(last.Int64), nil
}
