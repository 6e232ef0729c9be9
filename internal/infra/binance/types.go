package binance

import "time"

const (
	MainnetRestURL = "https://api.binance.com"
	MainnetWSURL   = "wss://stream.binance.com:9443/ws"

	defaultBackfill = 500
	maxBackfill     = 1000

	// Request weights of the endpoints used here.
	weightExchangeInfo = 20
	weightKlines       = 2
	weightOrder        = 1

	readTimeout  = 60 * time.Second
	pingInterval = 3 * time.Minute
)

// klineEvent is the payload of the <symbol>@kline_<interval> stream.
type klineEvent struct {
	Event  string     `json:"e"`
	Time   int64      `json:"E"`
	Symbol string     `json:"s"`
	Kline  klineFrame `json:"k"`
}

type klineFrame struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Trades    int64  `json:"n"`
	Final     bool   `json:"x"`
}

// streamError is sent by the server when a request on the socket fails.
type streamError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
