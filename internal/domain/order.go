package domain

import "fmt"

// Side is the direction of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// Reverse maps Buy to Sell and Sell to Buy.
func (s Side) Reverse() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide accepts "BUY"/"SELL" in any case.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy", "Buy":
		return SideBuy, nil
	case "SELL", "sell", "Sell":
		return SideSell, nil
	}
	return SideBuy, fmt.Errorf("unknown side %q", s)
}

// OrderKind tags the Order variant.
type OrderKind int

const (
	OrderLimit OrderKind = iota + 1
	// OrderOco is a one-cancels-the-other bracket: a stop-loss and a
	// take-profit leg sharing one quantity.
	OrderOco
)

func (k OrderKind) String() string {
	switch k {
	case OrderLimit:
		return "LIMIT"
	case OrderOco:
		return "OCO"
	default:
		return "UNKNOWN"
	}
}

// TimeInForce bounds how long the unfilled part of a limit order stays on
// the book.
type TimeInForce int

const (
	// GoodTillCancel rests until filled or cancelled.
	GoodTillCancel TimeInForce = iota
	// ImmediateOrCancel fills what it can on arrival and expires the rest,
	// so the executed quantity reported at placement is final.
	ImmediateOrCancel
)

func (t TimeInForce) String() string {
	if t == ImmediateOrCancel {
		return "IOC"
	}
	return "GTC"
}

// Order is a tagged variant:
//
//	Limit(side, quantity, price)
//	Oco(side, quantity, stop_price, take_profit_price)
//
// Quantity may be denominated in either asset of the market; venues convert.
type Order struct {
	Kind     OrderKind
	Side     Side
	Quantity Quantity

	// Price is the limit price (Limit only).
	Price Price
	// TimeInForce applies to Limit orders; OCO legs always rest.
	TimeInForce TimeInForce
	// StopPrice and TakeProfit are the two legs (Oco only).
	StopPrice  Price
	TakeProfit Price

	// ClientID is an optional idempotency key forwarded to the venue.
	ClientID string
}

// NewLimitOrder builds a Limit order.
func NewLimitOrder(side Side, quantity Quantity, price Price) Order {
	return Order{Kind: OrderLimit, Side: side, Quantity: quantity, Price: price}
}

// NewOcoOrder builds an Oco bracket order.
func NewOcoOrder(side Side, quantity Quantity, stopPrice, takeProfit Price) Order {
	return Order{Kind: OrderOco, Side: side, Quantity: quantity, StopPrice: stopPrice, TakeProfit: takeProfit}
}

// Market returns the market the order trades on.
func (o Order) Market() *Market {
	if o.Kind == OrderOco {
		return o.TakeProfit.Market
	}
	return o.Price.Market
}

// Prices returns every price the order carries.
func (o Order) Prices() []Price {
	if o.Kind == OrderOco {
		return []Price{o.StopPrice, o.TakeProfit}
	}
	return []Price{o.Price}
}

// WorstPrice is the price that costs the most quote for this quantity: the
// limit price, or for an OCO the higher leg of a buy and the lower leg of a
// sell.
func (o Order) WorstPrice() Price {
	if o.Kind != OrderOco {
		return o.Price
	}
	ref := o.StopPrice
	if o.Side == SideBuy && o.TakeProfit.Greater(ref) {
		ref = o.TakeProfit
	}
	if o.Side == SideSell && o.TakeProfit.Less(ref) {
		ref = o.TakeProfit
	}
	return ref
}

func (o Order) String() string {
	if o.Kind == OrderOco {
		return fmt.Sprintf("OCO %s %s stop=%s tp=%s", o.Side, o.Quantity, o.StopPrice.Value, o.TakeProfit.Value)
	}
	if o.TimeInForce == ImmediateOrCancel {
		return fmt.Sprintf("LIMIT IOC %s %s @ %s", o.Side, o.Quantity, o.Price)
	}
	return fmt.Sprintf("LIMIT %s %s @ %s", o.Side, o.Quantity, o.Price)
}

// OrderStatus mirrors the venue lifecycle.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// IsOpen checks if the order is still active.
func (s OrderStatus) IsOpen() bool {
	return s == StatusNew || s == StatusPartiallyFilled
}

// OrderResponse is the outcome of a single order placement.
type OrderResponse struct {
	ID               string
	Status           OrderStatus
	ExecutedQuantity Quantity
}
