package domain

import (
	"fmt"

	"crypto_api/pkg/quant"
)

// Filter is a venue trading rule. Apply returns the (possibly adjusted)
// order or an error wrapping ErrFilterViolation.
type Filter interface {
	Apply(order Order) (Order, error)
	Name() string
}

// baseQuantity returns the order quantity expressed in the base asset.
// Quote-denominated limit quantities are converted at the limit price.
func baseQuantity(order Order) (quant.Monetary, bool) {
	m := order.Market()
	if m == nil {
		return quant.Zero, false
	}
	if order.Quantity.Asset.Equal(m.Base) {
		return order.Quantity.Value, true
	}
	ref := order.Price
	if order.Kind == OrderOco {
		ref = order.TakeProfit
	}
	if order.Quantity.Asset.Equal(m.Quote) && ref.Value.IsPositive() {
		return order.Quantity.Div(ref).Value, true
	}
	return quant.Zero, false
}

// LotSizeFilter bounds the base quantity and rounds it down to Step.
// Only base-denominated quantities are rounded; quote quantities are checked.
type LotSizeFilter struct {
	Min, Max, Step quant.Monetary
}

func (f LotSizeFilter) Name() string { return "LOT_SIZE" }

func (f LotSizeFilter) Apply(order Order) (Order, error) {
	if order.Quantity.Asset.Equal(order.Market().Base) {
		order.Quantity.Value = quant.FloorToStep(order.Quantity.Value, f.Step)
	}
	qty, ok := baseQuantity(order)
	if !ok {
		return order, fmt.Errorf("%w: %s: cannot express %s in base asset", ErrFilterViolation, f.Name(), order.Quantity)
	}
	if f.Min.IsPositive() && qty.LessThan(f.Min) {
		return order, fmt.Errorf("%w: %s: quantity %s below minimum %s", ErrFilterViolation, f.Name(), qty, f.Min)
	}
	if f.Max.IsPositive() && qty.GreaterThan(f.Max) {
		return order, fmt.Errorf("%w: %s: quantity %s above maximum %s", ErrFilterViolation, f.Name(), qty, f.Max)
	}
	return order, nil
}

// PriceFilter bounds every order price and rounds it down to Tick.
type PriceFilter struct {
	Min, Max, Tick quant.Monetary
}

func (f PriceFilter) Name() string { return "PRICE_FILTER" }

func (f PriceFilter) Apply(order Order) (Order, error) {
	check := func(p *Price) error {
		p.Value = quant.FloorToStep(p.Value, f.Tick)
		if f.Min.IsPositive() && p.Value.LessThan(f.Min) {
			return fmt.Errorf("%w: %s: price %s below minimum %s", ErrFilterViolation, f.Name(), p.Value, f.Min)
		}
		if f.Max.IsPositive() && p.Value.GreaterThan(f.Max) {
			return fmt.Errorf("%w: %s: price %s above maximum %s", ErrFilterViolation, f.Name(), p.Value, f.Max)
		}
		return nil
	}

	if order.Kind == OrderOco {
		if err := check(&order.StopPrice); err != nil {
			return order, err
		}
		return order, check(&order.TakeProfit)
	}
	return order, check(&order.Price)
}

// MinNotionalFilter requires price * quantity >= Min (in the quote asset).
type MinNotionalFilter struct {
	Min quant.Monetary
}

func (f MinNotionalFilter) Name() string { return "MIN_NOTIONAL" }

func (f MinNotionalFilter) Apply(order Order) (Order, error) {
	ref := order.Price
	if order.Kind == OrderOco {
		// The lower leg bounds the notional of either fill.
		ref = order.StopPrice
		if order.TakeProfit.Less(ref) {
			ref = order.TakeProfit
		}
	}
	qty, ok := baseQuantity(order)
	if !ok {
		return order, fmt.Errorf("%w: %s: cannot express %s in base asset", ErrFilterViolation, f.Name(), order.Quantity)
	}
	if notional := qty.Mul(ref.Value); notional.LessThan(f.Min) {
		return order, fmt.Errorf("%w: %s: notional %s below minimum %s", ErrFilterViolation, f.Name(), notional, f.Min)
	}
	return order, nil
}
