package infra

import (
	"fmt"
	"io"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner writes the startup banner with mode specific warnings.
func PrintBanner(w io.Writer, cfg *Config) {
	mode := strings.ToUpper(cfg.Trading.Mode)

	color := ColorGreen
	modeDesc := "UNKNOWN"
	switch mode {
	case ModeReal:
		color = ColorRed
		modeDesc = "REAL MONEY TRADING"
	case ModePaper:
		color = ColorCyan
		modeDesc = "SIMULATED FILLS ON LIVE DATA"
	case ModeBacktest:
		color = ColorYellow
		modeDesc = "REPLAY OF RECORDED CANDLES"
	}

	line := func(format string, args ...any) {
		fmt.Fprintf(w, "%s"+format+"%s\n", append(append([]any{color}, args...), ColorReset)...)
	}

	fmt.Fprintln(w)
	line("###########################################################")
	line("#   %-53s #", cfg.App.Name)
	line("#   MODE:    %-44s #", mode)
	line("#   TYPE:    %-44s #", modeDesc)
	line("#   VERSION: %-44s #", cfg.App.Version)
	line("#   MARKETS: %-44s #", strings.Join(cfg.Binance.Symbols, ","))
	if mode == ModeReal {
		fmt.Fprintf(w, "%s#   WARNING: ORDERS ARE SENT WITH REAL MONEY                #%s\n", ColorRed, ColorReset)
	}
	line("###########################################################")
	fmt.Fprintln(w)
}
