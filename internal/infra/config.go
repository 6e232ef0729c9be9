package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GetUserAgent returns the User-Agent sent on venue connections.
func GetUserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s)", AppName, Version, runtime.GOOS, runtime.GOARCH)
}

// Trading modes.
const (
	ModePaper    = "PAPER"
	ModeReal     = "REAL"
	ModeBacktest = "BACKTEST"
)

// Environment variables that override secrets in the config file.
const (
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceSecretKey = "BINANCE_SECRET_KEY"
	EnvConfirmRealMoney = "CONFIRM_REAL_MONEY"
)

// Config holds every application setting.
// LoadConfig reads it from YAML and then applies environment overrides.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode string `yaml:"mode"`
		// InitialBalances seeds the simulated account, e.g. {"USDT": "10000"}.
		InitialBalances map[string]string `yaml:"initial_balances"`
		BracketAttempts int               `yaml:"bracket_attempts"`
	} `yaml:"trading"`

	Binance struct {
		RestURL   string `yaml:"rest_url"`
		WSURL     string `yaml:"ws_url"`
		APIKey    string `yaml:"api_key"`
		SecretKey string `yaml:"secret_key"`
		// BackfillLimit is the number of historical klines fetched per subscription.
		BackfillLimit int      `yaml:"backfill_limit"`
		Symbols       []string `yaml:"symbols"`
		Intervals     []string `yaml:"intervals"`
	} `yaml:"binance"`

	Storage struct {
		// Path of the SQLite database, relative to the workspace directory.
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Backtest struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	} `yaml:"backtest"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`
}

// DefaultConfig returns the settings used for keys missing from the file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = AppName
	cfg.App.Version = Version
	cfg.Trading.Mode = ModePaper
	cfg.Trading.BracketAttempts = 3
	cfg.Binance.RestURL = "https://api.binance.com"
	cfg.Binance.WSURL = "wss://stream.binance.com:9443/ws"
	cfg.Binance.BackfillLimit = 500
	cfg.Binance.Intervals = []string{"1m"}
	cfg.Storage.Path = "candles.db"
	cfg.Logging.Level = "info"
	cfg.Logging.MaxSizeMB = 50
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 28
	return &cfg
}

// LoadConfig reads the YAML file at path on top of DefaultConfig.
// A .env file next to the working directory is loaded first if present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	c.Trading.Mode = strings.ToUpper(c.Trading.Mode)
	switch c.Trading.Mode {
	case ModePaper, ModeReal, ModeBacktest:
	default:
		return fmt.Errorf("unknown trading mode %q", c.Trading.Mode)
	}
	if c.Trading.BracketAttempts < 1 {
		return fmt.Errorf("bracket_attempts must be at least 1")
	}

	if !strings.HasPrefix(c.Binance.WSURL, "ws://") && !strings.HasPrefix(c.Binance.WSURL, "wss://") {
		return fmt.Errorf("invalid Binance WS URL: %s", c.Binance.WSURL)
	}
	if !strings.HasPrefix(c.Binance.RestURL, "http://") && !strings.HasPrefix(c.Binance.RestURL, "https://") {
		return fmt.Errorf("invalid Binance REST URL: %s", c.Binance.RestURL)
	}
	if c.Binance.BackfillLimit < 0 || c.Binance.BackfillLimit > 1000 {
		return fmt.Errorf("backfill_limit must be within [0, 1000]")
	}
	if len(c.Binance.Symbols) == 0 {
		return fmt.Errorf("at least one Binance symbol is required")
	}
	if len(c.Binance.Intervals) == 0 {
		return fmt.Errorf("at least one interval is required")
	}

	if c.Trading.Mode == ModeReal && (c.Binance.APIKey == "" || c.Binance.SecretKey == "") {
		return fmt.Errorf("REAL mode requires %s and %s", EnvBinanceAPIKey, EnvBinanceSecretKey)
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if _, _, err := c.BacktestWindow(); err != nil {
		return err
	}
	return nil
}

// BacktestWindow parses backtest.from and backtest.to. Both accept RFC 3339
// or a bare date; an empty value leaves that side open.
func (c *Config) BacktestWindow() (from, to time.Time, err error) {
	if from, err = parseConfigTime(c.Backtest.From); err != nil {
		return from, to, fmt.Errorf("backtest.from: %w", err)
	}
	if to, err = parseConfigTime(c.Backtest.To); err != nil {
		return from, to, fmt.Errorf("backtest.to: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return from, to, fmt.Errorf("backtest window is empty: %s >= %s", c.Backtest.From, c.Backtest.To)
	}
	return from, to, nil
}

func parseConfigTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

// overrideWithEnv applies environment variables over file values.
// Environment variables always win over the config file.
func overrideWithEnv(cfg *Config) {
	if cfg.Binance.SecretKey != "" {
		slog.Warn("API secret found in config file, prefer environment variables",
			slog.String("key", EnvBinanceAPIKey),
			slog.String("secret", EnvBinanceSecretKey))
	}

	if key := os.Getenv(EnvBinanceAPIKey); key != "" {
		cfg.Binance.APIKey = key
	}
	if secret := os.Getenv(EnvBinanceSecretKey); secret != "" {
		cfg.Binance.SecretKey = secret
	}
}
