package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crypto_api/backtest"
	"crypto_api/internal/domain"
	"crypto_api/internal/engine"
	"crypto_api/internal/exchange"
	"crypto_api/internal/infra"
	"crypto_api/internal/infra/binance"
	"crypto_api/internal/storage"
	"crypto_api/pkg/quant"
)

// snapshotsKept bounds the paper account history on disk.
const snapshotsKept = 5

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config    *infra.Config
	WorkDir   string
	Registry  *domain.Registry
	Store     *storage.CandleStore
	Snapshots *storage.SnapshotManager

	// Venue is the Api orders and subscriptions go to. Simulated is set
	// when Venue is simulated (PAPER, BACKTEST).
	Venue     exchange.Api
	Simulated *exchange.Simulated
	Positions *exchange.PositionManager
	Recorder  *engine.Recorder

	snapshotSeq uint64
	closers     []func() error
}

// NewBootstrap creates a Bootstrap rooted at workDir. An empty workDir uses
// infra.GetWorkspaceDir.
func NewBootstrap(workDir string) *Bootstrap {
	if workDir == "" {
		workDir = infra.GetWorkspaceDir()
	}
	return &Bootstrap{WorkDir: workDir, Registry: domain.NewRegistry()}
}

// Initialize loads the configuration at configPath and brings up logging,
// the instance lock, storage and the venue for the configured mode.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger, closeLog, err := infra.NewLogger(cfg, b.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)
	b.closers = append(b.closers, closeLog)

	slog.Info("Bootstrapping", slog.String("app", cfg.App.Name), slog.String("mode", cfg.Trading.Mode))

	// Data is isolated per mode: {workspace}/data/{mode}/
	mode := strings.ToLower(cfg.Trading.Mode)
	dataDir := filepath.Join(b.WorkDir, "data", mode)
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	unlock, err := infra.CreateLockFile(b.WorkDir)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() error { unlock(); return nil })

	// Backtests read the candles recorded in PAPER or REAL mode.
	storeDir := dataDir
	if cfg.Trading.Mode == infra.ModeBacktest {
		storeDir = filepath.Join(b.WorkDir, "data", strings.ToLower(infra.ModePaper))
		if err := infra.EnsureDir(storeDir); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	dbPath := infra.ResolvePath(storeDir, cfg.Storage.Path)
	store, err := storage.NewCandleStore(dbPath, b.Registry)
	if err != nil {
		return err
	}
	b.Store = store
	b.closers = append(b.closers, store.Close)
	slog.Info("CandleStore initialized (WAL-mode)", slog.String("path", dbPath))

	b.Snapshots = storage.NewSnapshotManager(filepath.Join(dataDir, "snapshots"))

	if err := b.buildVenue(); err != nil {
		return err
	}
	if err := b.Venue.Update(ctx); err != nil {
		return fmt.Errorf("venue %s update: %w", b.Venue.Name(), err)
	}
	slog.Info("Venue ready", slog.String("venue", b.Venue.Name()), slog.Int("markets", len(b.Venue.Markets())))

	var intents exchange.IntentStore = store
	if cfg.Trading.Mode == infra.ModeBacktest {
		// Replayed positions are not persisted.
		intents = nil
	}
	b.Positions = exchange.NewPositionManager(b.Venue, intents, cfg.Trading.BracketAttempts)

	recorderStore := domain.CandleRecorder(store)
	if cfg.Trading.Mode == infra.ModeBacktest {
		recorderStore = nil
	}
	b.Recorder = engine.NewRecorder(recorderStore, nil)
	b.Recorder.DumpPath = filepath.Join(dataDir, "panic_dump.json")
	return nil
}

func (b *Bootstrap) buildVenue() error {
	cfg := b.Config
	switch cfg.Trading.Mode {
	case infra.ModeReal:
		if os.Getenv(infra.EnvConfirmRealMoney) != "true" {
			return fmt.Errorf("REAL mode requires %s=true", infra.EnvConfirmRealMoney)
		}
		b.Venue = b.binanceClient()
		return nil

	case infra.ModePaper:
		b.Simulated = exchange.NewSimulated(b.binanceClient(), nil)
		b.Venue = b.Simulated
		return b.fundPaperAccount()

	case infra.ModeBacktest:
		from, to, err := cfg.BacktestWindow()
		if err != nil {
			return err
		}
		b.Simulated = exchange.NewSimulated(backtest.NewReplayer(b.Store, from, to), nil)
		b.Venue = b.Simulated
		return b.deposit(cfg.Trading.InitialBalances)

	default:
		return fmt.Errorf("unknown trading mode %q", cfg.Trading.Mode)
	}
}

func (b *Bootstrap) binanceClient() *binance.Client {
	cfg := b.Config
	return binance.NewClient(binance.Options{
		RestURL:       cfg.Binance.RestURL,
		WSURL:         cfg.Binance.WSURL,
		APIKey:        cfg.Binance.APIKey,
		SecretKey:     cfg.Binance.SecretKey,
		Symbols:       cfg.Binance.Symbols,
		BackfillLimit: cfg.Binance.BackfillLimit,
	}, b.Registry)
}

// fundPaperAccount restores the latest paper snapshot, falling back to the
// configured initial balances.
func (b *Bootstrap) fundPaperAccount() error {
	snap, err := b.Snapshots.LoadLatest()
	if err != nil {
		return err
	}
	if snap == nil {
		return b.deposit(b.Config.Trading.InitialBalances)
	}

	amounts, err := snap.Amounts(b.Registry)
	if err != nil {
		return err
	}
	for asset, amount := range amounts {
		b.Simulated.Deposit(asset, amount)
	}
	b.snapshotSeq = snap.Seq
	slog.Info("Paper account restored", slog.Uint64("seq", snap.Seq), slog.Int("assets", len(amounts)))
	return nil
}

func (b *Bootstrap) deposit(balances map[string]string) error {
	for code, raw := range balances {
		amount, err := quant.Parse(raw)
		if err != nil {
			return fmt.Errorf("initial balance %s: %w", code, err)
		}
		if amount.IsNegative() {
			return fmt.Errorf("initial balance %s is negative", code)
		}
		b.Simulated.Deposit(b.Registry.Asset(code), amount)
	}
	return nil
}

// Subscriptions opens one subscription per configured symbol and interval.
// Already opened subscriptions are closed if a later one fails.
func (b *Bootstrap) Subscriptions(ctx context.Context) ([]*exchange.Subscription, error) {
	var subs []*exchange.Subscription
	fail := func(err error) ([]*exchange.Subscription, error) {
		for _, s := range subs {
			s.Close()
		}
		return nil, err
	}

	for _, symbol := range b.Config.Binance.Symbols {
		market, ok := b.Registry.LookupMarket(strings.ToUpper(symbol))
		if !ok {
			return fail(fmt.Errorf("market %s is not available on %s", symbol, b.Venue.Name()))
		}
		for _, name := range b.Config.Binance.Intervals {
			interval, err := domain.ParseInterval(name)
			if err != nil {
				return fail(err)
			}
			sub, err := b.Venue.Subscribe(ctx, market, interval)
			if err != nil {
				return fail(fmt.Errorf("subscribe %s@%s: %w", market, interval, err))
			}
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// Run resumes pending positions on the real venue, then records every
// configured series until ctx is cancelled or, in BACKTEST mode, the
// history is exhausted.
func (b *Bootstrap) Run(ctx context.Context) error {
	switch b.Config.Trading.Mode {
	case infra.ModeReal:
		resumed, err := b.Positions.Resume(ctx)
		if len(resumed) > 0 {
			slog.Info("Positions resumed", slog.Int("count", len(resumed)))
		}
		if err != nil {
			slog.Error("Some positions could not be resumed", slog.Any("error", err))
		}
	case infra.ModePaper:
		// Simulated resting orders do not survive a restart.
		if pending, err := b.Store.PendingIntents(ctx); err == nil && len(pending) > 0 {
			slog.Warn("Pending paper positions are not resumed", slog.Int("count", len(pending)))
		}
	}

	subs, err := b.Subscriptions(ctx)
	if err != nil {
		return err
	}
	return b.Recorder.RunAll(ctx, subs)
}

// Shutdown saves the paper account and releases resources in reverse
// order of acquisition.
func (b *Bootstrap) Shutdown() error {
	var errs []error
	if b.Simulated != nil && b.Config.Trading.Mode == infra.ModePaper {
		b.snapshotSeq++
		snap := storage.CreateSnapshot(b.snapshotSeq, b.Simulated.Name(), b.Simulated.Balances(), time.Now())
		if err := b.Snapshots.Save(snap); err != nil {
			errs = append(errs, err)
		} else if err := b.Snapshots.Cleanup(snapshotsKept); err != nil {
			errs = append(errs, err)
		}
	}
	if b.Simulated != nil {
		if markets := b.Simulated.Markets(); len(markets) > 0 {
			quote := markets[0].Quote
			slog.Info("Simulated account",
				slog.Int("fills", len(b.Simulated.Fills())),
				slog.Int("open_orders", b.Simulated.OpenOrders()),
				slog.String("equity", b.Simulated.Equity(quote).String()),
				slog.String("quote", quote.Code()))
		}
	}

	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
