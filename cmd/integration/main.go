package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/internal/exchange"
	"crypto_api/internal/infra"
	"crypto_api/internal/infra/binance"
	"crypto_api/pkg/quant"

	"github.com/joho/godotenv"
)

// Spot testnet endpoints. Keys are issued at testnet.binance.vision.
const (
	testnetRestURL = "https://testnet.binance.vision"
	testnetWSURL   = "wss://testnet.binance.vision/ws"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "market to trade")
	spend := flag.String("spend", "20", "quote amount to spend on the entry")
	tp := flag.String("tp", "1.02", "take profit as a multiple of the last close")
	sl := flag.String("sl", "0.98", "stop loss as a multiple of the last close")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	var amounts [3]quant.Monetary
	for i, raw := range []string{*spend, *tp, *sl} {
		v, err := quant.Parse(raw)
		if err != nil || !v.IsPositive() {
			slog.Error("Invalid amount flag", "value", raw, "error", err)
			os.Exit(1)
		}
		amounts[i] = v
	}
	slog.Info("Starting Binance testnet integration run...")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}
	apiKey, secret := os.Getenv(infra.EnvBinanceAPIKey), os.Getenv(infra.EnvBinanceSecretKey)
	if apiKey == "" || secret == "" {
		slog.Error("Testnet keys missing", "key", infra.EnvBinanceAPIKey, "secret", infra.EnvBinanceSecretKey)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	registry := domain.NewRegistry()
	client := binance.NewClient(binance.Options{
		RestURL:       testnetRestURL,
		WSURL:         testnetWSURL,
		APIKey:        apiKey,
		SecretKey:     secret,
		Symbols:       []string{strings.ToUpper(*symbol)},
		BackfillLimit: 1,
	}, registry)

	// STEP 1: markets and filters
	if err := client.Update(ctx); err != nil {
		slog.Error("Update failed", "error", err)
		os.Exit(1)
	}
	market, ok := registry.LookupMarket(strings.ToUpper(*symbol))
	if !ok {
		slog.Error("Market not tradable on testnet", "symbol", *symbol)
		os.Exit(1)
	}
	slog.Info("STEP 1: Markets loaded", "market", market.Symbol(), "filters", len(market.Filters()))

	// STEP 2: last closed candle
	sub, err := client.Subscribe(ctx, market, domain.I1m)
	if err != nil {
		slog.Error("Subscribe failed", "error", err)
		os.Exit(1)
	}
	last, err := sub.Next(ctx)
	sub.Close()
	if err != nil {
		slog.Error("No candle received", "error", err)
		os.Exit(1)
	}
	slog.Info("STEP 2: Last candle", "candle", last.String())

	// STEP 3: enter with a marketable limit and bracket it
	scaled := func(factor quant.Monetary) domain.Price {
		return domain.NewPrice(last.Close.Value.Mul(factor), market)
	}
	enter := scaled(quant.MustParse("1.001"))
	qty := domain.NewQuantity(amounts[0], market.Quote).Div(enter)

	positions := exchange.NewPositionManager(client, nil, 3)
	resp, err := positions.Enter(ctx, domain.SideBuy, qty, enter, scaled(amounts[1]), scaled(amounts[2]))
	if err != nil {
		var perr *domain.PositionError
		if errors.As(err, &perr) && perr.Unprotected() {
			slog.Error("POSITION UNPROTECTED: entry filled but no bracket",
				"intent", perr.IntentID, "error", err)
		} else {
			slog.Error("Enter failed", "error", err)
		}
		os.Exit(1)
	}

	slog.Info("STEP 3: Position entered",
		"intent", resp.IntentID,
		"entering", resp.Entering.ID,
		"leaving", resp.Leaving.ID,
		"executed", resp.ExecutedQuantity.String())
	slog.Info("Integration run passed")
}
