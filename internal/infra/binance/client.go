package binance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/internal/exchange"
	"crypto_api/internal/infra"
	"crypto_api/pkg/quant"

	gobinance "github.com/adshao/go-binance/v2"
)

// Options configures a Client.
type Options struct {
	RestURL   string
	WSURL     string
	APIKey    string
	SecretKey string
	// Symbols restricts Update to these markets; empty loads every market.
	Symbols []string
	// BackfillLimit is the number of closed klines a subscription starts with.
	BackfillLimit int
	HTTPTimeout   time.Duration
}

// Client is the Binance spot integration of exchange.Api. REST calls go
// through go-binance behind a rate limiter and a circuit breaker; kline
// streams use the shared websocket worker.
type Client struct {
	rest     *gobinance.Client
	opts     Options
	registry *domain.Registry
	limits   *infra.BinanceLimits
	breaker  *infra.CircuitBreaker

	mu      sync.RWMutex
	markets []*domain.Market
	assets  []*domain.Asset
	known   map[*domain.Market]bool

	now func() time.Time
}

var _ exchange.Api = (*Client)(nil)

// NewClient creates a client. Markets are interned in registry.
func NewClient(opts Options, registry *domain.Registry) *Client {
	if opts.RestURL == "" {
		opts.RestURL = MainnetRestURL
	}
	if opts.WSURL == "" {
		opts.WSURL = MainnetWSURL
	}
	if opts.BackfillLimit == 0 {
		opts.BackfillLimit = defaultBackfill
	}
	if opts.BackfillLimit > maxBackfill {
		opts.BackfillLimit = maxBackfill
	}
	if opts.HTTPTimeout == 0 {
		opts.HTTPTimeout = 10 * time.Second
	}

	rest := gobinance.NewClient(opts.APIKey, opts.SecretKey)
	rest.BaseURL = opts.RestURL
	rest.HTTPClient = &http.Client{Timeout: opts.HTTPTimeout}

	cbCfg := infra.DefaultCircuitBreakerConfig("binance")
	cbCfg.IsFailure = isTransportFailure

	return &Client{
		rest:     rest,
		opts:     opts,
		registry: registry,
		limits:   infra.NewBinanceLimits(),
		breaker:  infra.NewCircuitBreaker(cbCfg),
		known:    make(map[*domain.Market]bool),
		now:      time.Now,
	}
}

func (c *Client) Name() string { return "binance" }

// Update reloads tradable markets and their filters from exchangeInfo.
// The cached sets are replaced only when the whole response was usable.
func (c *Client) Update(ctx context.Context) error {
	if err := c.limits.Weight.WaitN(ctx, weightExchangeInfo); err != nil {
		return err
	}

	var info *gobinance.ExchangeInfo
	err := c.breaker.Execute(func() error {
		svc := c.rest.NewExchangeInfoService()
		if len(c.opts.Symbols) > 0 {
			svc = svc.Symbols(c.opts.Symbols...)
		}
		var err error
		info, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return venueError("exchangeInfo", err)
	}

	type pending struct {
		market  *domain.Market
		filters []domain.Filter
	}
	var next []pending
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		filters, err := parseFilters(s.Filters)
		if err != nil {
			return fmt.Errorf("binance exchangeInfo %s: %w: %w", s.Symbol, domain.ErrConnection, err)
		}
		next = append(next, pending{market: c.registry.Market(s.BaseAsset, s.QuoteAsset), filters: filters})
	}

	markets := make([]*domain.Market, 0, len(next))
	known := make(map[*domain.Market]bool, len(next))
	assetSet := make(map[*domain.Asset]bool)
	for _, p := range next {
		p.market.SetFilters(p.filters...)
		markets = append(markets, p.market)
		known[p.market] = true
		assetSet[p.market.Base] = true
		assetSet[p.market.Quote] = true
	}
	assets := make([]*domain.Asset, 0, len(assetSet))
	for a := range assetSet {
		assets = append(assets, a)
	}
	domain.SortMarkets(markets)
	domain.SortAssets(assets)

	c.mu.Lock()
	c.markets, c.assets, c.known = markets, assets, known
	c.mu.Unlock()

	slog.Info("Binance markets updated", slog.Int("markets", len(markets)), slog.Int("assets", len(assets)))
	return nil
}

func (c *Client) Markets() []*domain.Market {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.Market, len(c.markets))
	copy(out, c.markets)
	return out
}

func (c *Client) Assets() []*domain.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

func (c *Client) isKnown(m *domain.Market) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.known[m]
}

// Subscribe opens the live kline socket first and then backfills closed
// klines over REST, so every candle closing in between is seen by at least
// one of them. The chain drops the overlap.
func (c *Client) Subscribe(ctx context.Context, market *domain.Market, interval domain.Interval) (*exchange.Subscription, error) {
	if !c.isKnown(market) {
		return nil, fmt.Errorf("binance subscribe %s: unknown market", market)
	}

	stream := newKlineStream(c.opts.WSURL, market, interval)
	if err := stream.base.Connect(ctx); err != nil {
		return nil, fmt.Errorf("binance subscribe %s: %w: %w", streamName(market, interval), domain.ErrConnection, err)
	}
	stream.base.Start(context.Background())
	live := stream.source()

	backlog, err := c.backfill(ctx, market, interval)
	if err != nil {
		live.Close()
		return nil, err
	}

	slog.Info("Binance subscription opened",
		slog.String("stream", streamName(market, interval)),
		slog.Int("backlog", len(backlog)))
	return exchange.NewSubscription(market, interval,
		exchange.Chain(exchange.NewSliceSource(backlog), live)), nil
}

// backfill fetches the most recent closed klines in ascending order.
func (c *Client) backfill(ctx context.Context, market *domain.Market, interval domain.Interval) ([]domain.Candlestick, error) {
	if err := c.limits.Weight.WaitN(ctx, weightKlines); err != nil {
		return nil, err
	}

	var klines []*gobinance.Kline
	err := c.breaker.Execute(func() error {
		var err error
		klines, err = c.rest.NewKlinesService().
			Symbol(market.Symbol()).
			Interval(interval.String()).
			Limit(c.opts.BackfillLimit + 1).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, venueError("klines "+market.Symbol(), err)
	}

	nowMs := quant.ToMillis(c.now())
	out := make([]domain.Candlestick, 0, len(klines))
	for _, k := range klines {
		// The newest kline is still open.
		if k.CloseTime >= nowMs {
			continue
		}
		candle, err := buildCandle(market, interval, k.OpenTime, k.CloseTime,
			k.Open, k.High, k.Low, k.Close, k.Volume, k.TradeNum)
		if err != nil {
			return nil, fmt.Errorf("binance klines: %w: %w", domain.ErrConnection, err)
		}
		out = append(out, candle)
	}
	if len(out) > c.opts.BackfillLimit {
		out = out[len(out)-c.opts.BackfillLimit:]
	}
	return out, nil
}

// Order submits a LIMIT (GTC or IOC) or an OCO order. Quote denominated
// quantities are converted to base at the limit price (or the costlier OCO
// leg) and rounded by the market filters. ExecutedQuantity is reported in
// the asset the order was denominated in.
func (c *Client) Order(ctx context.Context, order domain.Order) (domain.OrderResponse, error) {
	market := order.Market()
	if market == nil || !c.isKnown(market) {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrInvalidOrder,
			fmt.Errorf("unknown market %v", market))
	}

	wire, err := toBase(order)
	if err != nil {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrInvalidOrder, err)
	}
	if wire, err = market.Apply(wire); err != nil {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrInvalidOrder, err)
	}
	inQuote := order.Quantity.Asset.Equal(market.Quote)

	if err := c.limits.Orders.Wait(ctx); err != nil {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrOther, err)
	}
	if err := c.limits.Weight.WaitN(ctx, weightOrder); err != nil {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrOther, err)
	}

	var resp domain.OrderResponse
	err = c.breaker.Execute(func() error {
		var err error
		if wire.Kind == domain.OrderOco {
			resp, err = c.placeOco(ctx, wire, inQuote)
		} else {
			resp, err = c.placeLimit(ctx, wire, inQuote)
		}
		return err
	})
	if err != nil {
		oe := orderError(err)
		slog.Warn("Binance order failed",
			slog.String("order", wire.String()),
			slog.String("kind", oe.Kind.String()),
			slog.Any("error", err))
		return domain.OrderResponse{}, oe
	}

	slog.Info("Binance order placed",
		slog.String("id", resp.ID),
		slog.String("order", wire.String()),
		slog.String("status", string(resp.Status)),
		slog.String("executed", resp.ExecutedQuantity.String()))
	return resp, nil
}

func (c *Client) placeLimit(ctx context.Context, o domain.Order, inQuote bool) (domain.OrderResponse, error) {
	svc := c.rest.NewCreateOrderService().
		Symbol(o.Market().Symbol()).
		Side(sideType(o.Side)).
		Type(gobinance.OrderTypeLimit).
		TimeInForce(timeInForce(o.TimeInForce)).
		Quantity(o.Quantity.Value.String()).
		Price(o.Price.Value.String()).
		NewOrderRespType(gobinance.NewOrderRespTypeFULL)
	if o.ClientID != "" {
		svc = svc.NewClientOrderID(o.ClientID)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	executed, err := executedQuantity(o.Market(), inQuote, res.ExecutedQuantity, res.CummulativeQuoteQuantity)
	if err != nil {
		return domain.OrderResponse{}, err
	}
	return domain.OrderResponse{
		ID:               strconv.FormatInt(res.OrderID, 10),
		Status:           domain.OrderStatus(res.Status),
		ExecutedQuantity: executed,
	}, nil
}

func (c *Client) placeOco(ctx context.Context, o domain.Order, inQuote bool) (domain.OrderResponse, error) {
	svc := c.rest.NewCreateOCOService().
		Symbol(o.Market().Symbol()).
		Side(sideType(o.Side)).
		Quantity(o.Quantity.Value.String()).
		Price(o.TakeProfit.Value.String()).
		StopPrice(o.StopPrice.Value.String()).
		StopLimitPrice(o.StopPrice.Value.String()).
		StopLimitTimeInForce(gobinance.TimeInForceTypeGTC)
	if o.ClientID != "" {
		svc = svc.ListClientOrderID(o.ClientID)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	status := domain.StatusNew
	base, quote := quant.Zero, quant.Zero
	for _, r := range res.OrderReports {
		b, err := quant.Parse(r.ExecutedQuantity)
		if err != nil {
			return domain.OrderResponse{}, err
		}
		q, err := quant.Parse(r.CummulativeQuoteQuantity)
		if err != nil {
			return domain.OrderResponse{}, err
		}
		base, quote = base.Add(b), quote.Add(q)
		if domain.OrderStatus(r.Status) == domain.StatusFilled {
			status = domain.StatusFilled
		}
	}

	executed := domain.NewQuantity(base, o.Market().Base)
	if inQuote {
		executed = domain.NewQuantity(quote, o.Market().Quote)
	}
	return domain.OrderResponse{
		ID:               strconv.FormatInt(res.OrderListID, 10),
		Status:           status,
		ExecutedQuantity: executed,
	}, nil
}

// toBase converts a quote denominated quantity to the base asset. OCO
// quantities convert at the leg that costs the most quote, so either leg
// is covered by the funds the quantity names.
func toBase(o domain.Order) (domain.Order, error) {
	m := o.Market()
	switch {
	case o.Quantity.Asset.Equal(m.Base):
		return o, nil
	case o.Quantity.Asset.Equal(m.Quote):
		ref := o.WorstPrice()
		if !ref.Value.IsPositive() {
			return o, fmt.Errorf("cannot convert %s at price %s", o.Quantity, ref.Value)
		}
		o.Quantity = o.Quantity.Div(ref)
		return o, nil
	default:
		return o, fmt.Errorf("%w: %s not traded on %s", domain.ErrWrongAsset, o.Quantity.Asset, m)
	}
}

func executedQuantity(m *domain.Market, inQuote bool, baseQty, quoteQty string) (domain.Quantity, error) {
	if inQuote {
		v, err := quant.Parse(quoteQty)
		return domain.NewQuantity(v, m.Quote), err
	}
	v, err := quant.Parse(baseQty)
	return domain.NewQuantity(v, m.Base), err
}

func timeInForce(t domain.TimeInForce) gobinance.TimeInForceType {
	if t == domain.ImmediateOrCancel {
		return gobinance.TimeInForceTypeIOC
	}
	return gobinance.TimeInForceTypeGTC
}

func sideType(s domain.Side) gobinance.SideType {
	if s == domain.SideSell {
		return gobinance.SideTypeSell
	}
	return gobinance.SideTypeBuy
}
