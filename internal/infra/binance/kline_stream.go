package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"crypto_api/internal/domain"
	"crypto_api/internal/exchange"
	"crypto_api/internal/infra"
	"crypto_api/pkg/quant"

	"github.com/gorilla/websocket"
)

// klineStream turns one <symbol>@kline_<interval> socket into a channel of
// closed candlesticks. Open (still updating) klines are skipped.
type klineStream struct {
	base     *infra.BaseWSWorker
	url      string
	market   *domain.Market
	interval domain.Interval

	out chan domain.Candlestick
	err error
}

func newKlineStream(wsURL string, market *domain.Market, interval domain.Interval) *klineStream {
	s := &klineStream{
		url:      fmt.Sprintf("%s/%s", strings.TrimRight(wsURL, "/"), streamName(market, interval)),
		market:   market,
		interval: interval,
		// A slow consumer stalls the socket read.
		out: make(chan domain.Candlestick, 4),
	}
	s.base = infra.NewBaseWSWorker(s)
	s.base.ReadTimeout = readTimeout
	s.base.PingInterval = pingInterval
	// A reconnect could silently skip candles, so the stream ends instead.
	s.base.MaxRetries = 0
	return s
}

// streamName returns e.g. "btcusdt@kline_1m".
func streamName(market *domain.Market, interval domain.Interval) string {
	return fmt.Sprintf("%s@kline_%s", strings.ToLower(market.Symbol()), interval)
}

func (s *klineStream) ID() string  { return "BINANCE_KLINE_" + streamName(s.market, s.interval) }
func (s *klineStream) URL() string { return s.url }

func (s *klineStream) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	// The stream is selected by URL; nothing to send.
	return nil
}

func (s *klineStream) OnMessage(ctx context.Context, msg []byte) error {
	var ev klineEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return fmt.Errorf("decode kline frame: %w", err)
	}
	if ev.Event != "kline" {
		var se streamError
		if json.Unmarshal(msg, &se) == nil && se.Code != 0 {
			return fmt.Errorf("%w: stream error %d: %s", domain.ErrConnection, se.Code, se.Msg)
		}
		return nil
	}
	if !ev.Kline.Final {
		return nil
	}

	c, err := s.candle(ev.Kline)
	if err != nil {
		return err
	}

	select {
	case s.out <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *klineStream) OnClose(err error) {
	s.err = err
	close(s.out)
}

func (s *klineStream) candle(k klineFrame) (domain.Candlestick, error) {
	if !strings.EqualFold(k.Symbol, s.market.Symbol()) || k.Interval != s.interval.String() {
		return domain.Candlestick{}, fmt.Errorf("kline for %s@%s on %s stream", k.Symbol, k.Interval, streamName(s.market, s.interval))
	}
	return buildCandle(s.market, s.interval, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.Trades)
}

// source exposes the stream as a live Source. Closing it stops the socket.
func (s *klineStream) source() *exchange.ChanSource {
	return exchange.NewChanSource(s.out, func() error { return s.err }, s.base.Stop)
}

func buildCandle(market *domain.Market, interval domain.Interval, openMs, closeMs int64,
	open, high, low, closePx, volume string, trades int64) (domain.Candlestick, error) {
	var vals [5]quant.Monetary
	for i, raw := range []string{open, high, low, closePx, volume} {
		v, err := quant.Parse(raw)
		if err != nil {
			return domain.Candlestick{}, fmt.Errorf("kline %s@%s at %d: %w", market, interval, openMs, err)
		}
		vals[i] = v
	}
	if trades < 0 {
		trades = 0
	}
	return domain.Candlestick{
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
	}, nil
}
