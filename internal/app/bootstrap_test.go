package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/internal/infra"
	"crypto_api/internal/storage"
	"crypto_api/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func seedCandles(t *testing.T, workDir string, n int) {
	t.Helper()
	dir := filepath.Join(workDir, "data", "paper")
	require.NoError(t, os.MkdirAll(dir, 0755))

	reg := domain.NewRegistry()
	store, err := storage.NewCandleStore(filepath.Join(dir, "candles.db"), reg)
	require.NoError(t, err)
	defer store.Close()

	m := reg.Market("BTC", "USDT")
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		open := t0.Add(time.Duration(i) * time.Minute)
		px := domain.NewPrice(quant.FromInt(int64(20000+i)), m)
		require.NoError(t, store.InsertCandlestick(context.Background(), domain.Candlestick{
			Market: m, Interval: domain.I1m,
			OpenTime: open, CloseTime: open.Add(time.Minute - time.Millisecond),
			Open: px, High: px, Low: px, Close: px,
			Volume: domain.NewQuantity(quant.FromInt(1), m.Base),
		}))
	}
}

func TestBootstrap_Backtest(t *testing.T) {
	workDir := t.TempDir()
	seedCandles(t, workDir, 5)

	cfgPath := writeConfig(t, `
trading:
  mode: backtest
  initial_balances:
    USDT: "1000"
binance:
  symbols: [BTCUSDT]
  intervals: [1m]
backtest:
  from: "2024-01-01T00:01:00Z"
`)

	b := NewBootstrap(workDir)
	require.NoError(t, b.Initialize(context.Background(), cfgPath))
	defer b.Shutdown()

	assert.Equal(t, "simulated/replay", b.Venue.Name())
	require.NotNil(t, b.Simulated)
	usdt := b.Registry.Asset("USDT")
	assert.True(t, b.Simulated.Balance(usdt).Amount.Equal(quant.FromInt(1000)))

	require.NoError(t, b.Run(context.Background()))

	recorded, skipped := b.Recorder.Stats()
	assert.Equal(t, uint64(4), recorded)
	assert.Zero(t, skipped)

	m, ok := b.Registry.LookupMarket("BTCUSDT")
	require.True(t, ok)
	last, ok := b.Recorder.Last(m, domain.I1m)
	require.True(t, ok)
	assert.True(t, last.Close.Value.Equal(quant.FromInt(20004)))
}

func TestBootstrap_BacktestUnknownSymbol(t *testing.T) {
	workDir := t.TempDir()
	seedCandles(t, workDir, 1)

	cfgPath := writeConfig(t, `
trading: {mode: BACKTEST}
binance: {symbols: [ETHUSDT], intervals: [1m]}
`)
	b := NewBootstrap(workDir)
	require.NoError(t, b.Initialize(context.Background(), cfgPath))
	defer b.Shutdown()

	err := b.Run(context.Background())
	assert.ErrorContains(t, err, "ETHUSDT")
}

func TestBootstrap_RealNeedsConfirmation(t *testing.T) {
	t.Setenv(infra.EnvBinanceAPIKey, "key")
	t.Setenv(infra.EnvBinanceSecretKey, "secret")
	t.Setenv(infra.EnvConfirmRealMoney, "")

	cfgPath := writeConfig(t, `
trading: {mode: REAL}
binance: {symbols: [BTCUSDT]}
`)
	b := NewBootstrap(t.TempDir())
	err := b.Initialize(context.Background(), cfgPath)
	defer b.Shutdown()
	require.Error(t, err)
	assert.ErrorContains(t, err, infra.EnvConfirmRealMoney)
}

const exchangeInfo = `{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","filters":[]}]}`

func TestBootstrap_PaperAccountPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/exchangeInfo" {
			_, _ = w.Write([]byte(exchangeInfo))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	workDir := t.TempDir()
	cfgPath := writeConfig(t, `
trading:
  mode: paper
  initial_balances: {USDT: "5000"}
binance:
  rest_url: `+srv.URL+`
  symbols: [BTCUSDT]
`)

	first := NewBootstrap(workDir)
	require.NoError(t, first.Initialize(context.Background(), cfgPath))
	assert.Equal(t, "simulated/binance", first.Venue.Name())
	usdt := first.Registry.Asset("USDT")
	first.Simulated.Deposit(usdt, quant.FromInt(250))
	require.NoError(t, first.Shutdown())

	_, err := os.Stat(filepath.Join(workDir, "instance.lock"))
	assert.True(t, os.IsNotExist(err))

	second := NewBootstrap(workDir)
	require.NoError(t, second.Initialize(context.Background(), cfgPath))
	defer second.Shutdown()
	assert.True(t, second.Simulated.Balance(second.Registry.Asset("USDT")).Amount.Equal(quant.FromInt(5250)))
}
