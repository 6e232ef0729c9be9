package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/pkg/quant"

	"github.com/google/uuid"
)

// Fill is a simulated execution.
type Fill struct {
	OrderID  string
	ClientID string
	Kind     domain.OrderKind
	Side     domain.Side
	// Quantity is in the market's base asset.
	Quantity domain.Quantity
	Price    domain.Price
	Time     time.Time
}

type restingOrder struct {
	id       string
	order    domain.Order
	reserved domain.Quantity
}

// Simulated wraps an Api and replaces Order with fills simulated against the
// candlesticks flowing through its subscriptions. Everything else is passed
// through unchanged.
type Simulated struct {
	Api

	mu       sync.Mutex
	balances *domain.BalanceBook
	last     map[*domain.Market]domain.Candlestick
	resting  []*restingOrder
	fills    []Fill
	seq      uint64
}

// NewSimulated wraps api. balances holds the virtual account; nil starts
// from an empty book.
func NewSimulated(api Api, balances *domain.BalanceBook) *Simulated {
	if balances == nil {
		balances = domain.NewBalanceBook()
	}
	return &Simulated{
		Api:      api,
		balances: balances,
		last:     make(map[*domain.Market]domain.Candlestick),
	}
}

func (s *Simulated) Name() string {
	return "simulated/" + s.Api.Name()
}

// Subscribe delegates to the wrapped Api and observes every candlestick the
// caller pulls.
func (s *Simulated) Subscribe(ctx context.Context, market *domain.Market, interval domain.Interval) (*Subscription, error) {
	sub, err := s.Api.Subscribe(ctx, market, interval)
	if err != nil {
		return nil, err
	}
	return NewSubscription(sub.Market, sub.Interval, &tapSource{inner: sub, observe: s.Observe}), nil
}

// Deposit credits the virtual account.
func (s *Simulated) Deposit(asset *domain.Asset, amount quant.Monetary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.balances.Get(asset).Credit(amount, s.seq)
}

// Order simulates the order. Marketable limit orders fill at their limit
// price right away; the rest wait for a later candlestick to cross them,
// except IOC orders which expire unfilled. OCO orders wait until one leg is
// touched.
func (s *Simulated) Order(ctx context.Context, order domain.Order) (domain.OrderResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrOther, err)
	}
	market := order.Market()
	if market == nil {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrInvalidOrder, fmt.Errorf("order has no market"))
	}
	order, err := market.Apply(order)
	if err != nil {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrInvalidOrder, err)
	}
	if !order.Quantity.Asset.Equal(market.Base) && !order.Quantity.Asset.Equal(market.Quote) {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrInvalidOrder,
			fmt.Errorf("%w: %s not traded on %s", domain.ErrWrongAsset, order.Quantity.Asset, market))
	}
	if !order.Quantity.Value.IsPositive() {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrInvalidOrder,
			fmt.Errorf("non-positive quantity %s", order.Quantity))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.last[market]
	if !ok {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrOther, fmt.Errorf("%w: %s", domain.ErrNoPrice, market))
	}
	lastClose := last.Close

	if order.Kind == domain.OrderOco && !ocoPricesValid(order, lastClose) {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrInvalidOrder,
			fmt.Errorf("oco legs stop=%s take_profit=%s do not straddle last price %s",
				order.StopPrice.Value, order.TakeProfit.Value, lastClose.Value))
	}

	reserved := s.reservation(order)
	bal := s.balances.Get(reserved.Asset)
	if bal.Available().LessThan(reserved.Value) {
		return domain.OrderResponse{}, domain.NewOrderError(domain.OrderErrInsufficientBalance,
			fmt.Errorf("insufficient %s balance: need %s, have %s", reserved.Asset, reserved.Value, bal.Available()))
	}

	id := uuid.NewString()
	rest := &restingOrder{id: id, order: order, reserved: reserved}

	if order.Kind == domain.OrderLimit && limitCrosses(order, lastClose) {
		s.seq++
		bal.Reserve(reserved.Value, s.seq)
		s.settle(rest, order.Price, last.CloseTime)
		return domain.OrderResponse{ID: id, Status: domain.StatusFilled, ExecutedQuantity: order.Quantity}, nil
	}
	if order.Kind == domain.OrderLimit && order.TimeInForce == domain.ImmediateOrCancel {
		slog.Info("SIMULATED: Order Expired",
			slog.String("id", id),
			slog.String("market", market.Symbol()),
			slog.String("order", order.String()),
			slog.String("last", lastClose.Value.String()))
		return domain.OrderResponse{
			ID:               id,
			Status:           domain.StatusExpired,
			ExecutedQuantity: domain.NewQuantity(quant.Zero, order.Quantity.Asset),
		}, nil
	}

	s.seq++
	bal.Reserve(reserved.Value, s.seq)
	s.resting = append(s.resting, rest)
	slog.Info("SIMULATED: Order Resting",
		slog.String("id", id),
		slog.String("market", market.Symbol()),
		slog.String("order", order.String()))
	return domain.OrderResponse{
		ID:               id,
		Status:           domain.StatusNew,
		ExecutedQuantity: domain.NewQuantity(quant.Zero, order.Quantity.Asset),
	}, nil
}

// Observe feeds a candlestick to the simulator: resting orders it crosses
// are filled and its close becomes the market's last price.
func (s *Simulated) Observe(c domain.Candlestick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.resting[:0]
	for _, r := range s.resting {
		if !r.order.Market().Equal(c.Market) {
			kept = append(kept, r)
			continue
		}
		if price, ok := triggerPrice(r.order, c); ok {
			s.settle(r, price, c.CloseTime)
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(s.resting); i++ {
		s.resting[i] = nil
	}
	s.resting = kept
	s.last[c.Market] = c
}

// Fills returns every simulated execution.
func (s *Simulated) Fills() []Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Fill, len(s.fills))
	copy(out, s.fills)
	return out
}

// Balance returns a copy of the virtual balance of asset.
func (s *Simulated) Balance(asset *domain.Asset) domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.balances.Get(asset)
}

// Balances returns a copy of every virtual balance.
func (s *Simulated) Balances() []domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances.Snapshot()
}

// OpenOrders returns the number of resting orders.
func (s *Simulated) OpenOrders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resting)
}

// Equity values the whole virtual account in quote at the last closes.
func (s *Simulated) Equity(quote *domain.Asset) quant.Monetary {
	s.mu.Lock()
	defer s.mu.Unlock()
	prices := make(map[*domain.Market]domain.Price, len(s.last))
	for m, c := range s.last {
		prices[m] = c.Close
	}
	return s.balances.TotalEquity(quote, prices)
}

// reservation returns the funds an order locks: quote for buys at the worst
// leg, base for sells.
func (s *Simulated) reservation(order domain.Order) domain.Quantity {
	market := order.Market()
	base, quote := split(order.Quantity, order.WorstPrice())
	if order.Side == domain.SideBuy {
		return domain.NewQuantity(quote, market.Quote)
	}
	return domain.NewQuantity(base, market.Base)
}

// settle releases the reservation and books the fill at price.
// Must be called with mu held.
func (s *Simulated) settle(r *restingOrder, price domain.Price, at time.Time) {
	market := r.order.Market()
	base, quote := split(r.order.Quantity, price)

	s.seq++
	s.balances.Get(r.reserved.Asset).Release(r.reserved.Value, s.seq)
	if r.order.Side == domain.SideBuy {
		s.balances.Get(market.Quote).Debit(quote, s.seq)
		s.balances.Get(market.Base).Credit(base, s.seq)
	} else {
		s.balances.Get(market.Base).Debit(base, s.seq)
		s.balances.Get(market.Quote).Credit(quote, s.seq)
	}

	s.fills = append(s.fills, Fill{
		OrderID:  r.id,
		ClientID: r.order.ClientID,
		Kind:     r.order.Kind,
		Side:     r.order.Side,
		Quantity: domain.NewQuantity(base, market.Base),
		Price:    price,
		Time:     at,
	})

	slog.Info("SIMULATED: Order Filled",
		slog.String("id", r.id),
		slog.String("market", market.Symbol()),
		slog.String("kind", r.order.Kind.String()),
		slog.String("side", r.order.Side.String()),
		slog.String("price", price.Value.String()),
		slog.String("qty", base.String()))
}

// split expresses qty in both assets of price's market.
func split(qty domain.Quantity, price domain.Price) (base, quote quant.Monetary) {
	if qty.Asset.Equal(price.Market.Base) {
		return qty.Value, qty.Mul(price).Value
	}
	return qty.Div(price).Value, qty.Value
}

func limitCrosses(order domain.Order, last domain.Price) bool {
	if order.Side == domain.SideBuy {
		return !order.Price.Less(last)
	}
	return !order.Price.Greater(last)
}

func ocoPricesValid(order domain.Order, last domain.Price) bool {
	if order.Side == domain.SideSell {
		return order.TakeProfit.Greater(last) && order.StopPrice.Less(last)
	}
	return order.TakeProfit.Less(last) && order.StopPrice.Greater(last)
}

// triggerPrice reports whether c crosses a resting order and at which price.
// When both OCO legs are inside one candle the stop wins.
func triggerPrice(order domain.Order, c domain.Candlestick) (domain.Price, bool) {
	switch order.Kind {
	case domain.OrderLimit:
		if order.Side == domain.SideBuy && !c.Low.Greater(order.Price) {
			return order.Price, true
		}
		if order.Side == domain.SideSell && !c.High.Less(order.Price) {
			return order.Price, true
		}
	case domain.OrderOco:
		if order.Side == domain.SideSell {
			if !c.Low.Greater(order.StopPrice) {
				return order.StopPrice, true
			}
			if !c.High.Less(order.TakeProfit) {
				return order.TakeProfit, true
			}
		} else {
			if !c.High.Less(order.StopPrice) {
				return order.StopPrice, true
			}
			if !c.Low.Greater(order.TakeProfit) {
				return order.TakeProfit, true
			}
		}
	}
	return domain.Price{}, false
}

// tapSource observes each candlestick pulled from inner.
type tapSource struct {
	inner   Source
	observe func(domain.Candlestick)
}

func (t *tapSource) Next(ctx context.Context) (domain.Candlestick, error) {
	c, err := t.inner.Next(ctx)
	if err != nil {
		return c, err
	}
	t.observe(c)
	return c, nil
}

func (t *tapSource) Close() { t.inner.Close() }
