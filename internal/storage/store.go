package storage

import (
	"context"
	"database/sql"
	"fmt"

	"crypto_api/internal/domain"
	"crypto_api/internal/exchange"

	_ "github.com/glebarez/go-sqlite"
)

// CandleStore persists candlesticks and position intents in SQLite.
type CandleStore struct {
	db       *sql.DB
	registry *domain.Registry
}

var (
	_ domain.CandleRecorder = (*CandleStore)(nil)
	_ exchange.IntentStore  = (*CandleStore)(nil)
)

// NewCandleStore opens (or creates) the database at dbPath with WAL mode
// enabled. Loaded rows resolve their assets and markets in registry.
func NewCandleStore(dbPath string, registry *domain.Registry) (*CandleStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer; WAL lets readers proceed concurrently.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS candlesticks (
			base TEXT NOT NULL,
			quote TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			open_time INTEGER NOT NULL,
			close_time INTEGER NOT NULL,
			open TEXT NOT NULL,
			high TEXT NOT NULL,
			low TEXT NOT NULL,
			close TEXT NOT NULL,
			volume TEXT NOT NULL,
			trades INTEGER NOT NULL,
			PRIMARY KEY (base, quote, timeframe, open_time)
		);`,
		`CREATE TABLE IF NOT EXISTS position_intents (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			side TEXT NOT NULL,
			base TEXT NOT NULL,
			quote TEXT NOT NULL,
			enter_qty TEXT NOT NULL,
			enter_asset TEXT NOT NULL,
			enter_price TEXT NOT NULL,
			take_profit TEXT NOT NULL,
			stop_loss TEXT NOT NULL,
			entered_qty TEXT NOT NULL,
			entered_asset TEXT NOT NULL,
			entering_id TEXT NOT NULL,
			leaving_id TEXT NOT NULL,
			unprotected INTEGER NOT NULL,
			last_error TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &CandleStore{db: db, registry: registry}, nil
}

// Ping checks the database is reachable.
func (s *CandleStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *CandleStore) Close() error {
	return s.db.Close()
}
