package domain

import (
	"fmt"
	"sync/atomic"
)

// Market is an ordered (base, quote) trading pair plus the venue's order
// filters. Equality depends only on the pair, never on the filters.
type Market struct {
	Base  *Asset
	Quote *Asset

	symbol  string
	filters atomic.Pointer[[]Filter]
}

func newMarket(base, quote *Asset) *Market {
	m := &Market{
		Base:   base,
		Quote:  quote,
		symbol: base.code + quote.code,
	}
	empty := []Filter{}
	m.filters.Store(&empty)
	return m
}

// Symbol returns the concatenated pair, e.g. "BTCUSDT".
func (m *Market) Symbol() string { return m.symbol }

func (m *Market) String() string { return m.symbol }

// Equal compares the (base, quote) pair.
func (m *Market) Equal(other *Market) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m == other || (m.Base.Equal(other.Base) && m.Quote.Equal(other.Quote))
}

// SetFilters replaces the venue filters. Safe for concurrent use with Apply.
func (m *Market) SetFilters(filters ...Filter) {
	cp := make([]Filter, len(filters))
	copy(cp, filters)
	m.filters.Store(&cp)
}

// Filters returns the current venue filters.
func (m *Market) Filters() []Filter {
	return *m.filters.Load()
}

// Apply runs every filter over the order in turn. Filters may adjust the
// order (e.g. round the quantity to the lot step) or reject it.
func (m *Market) Apply(order Order) (Order, error) {
	if !order.Market().Equal(m) {
		return order, fmt.Errorf("%w: order for %s applied to %s", ErrFilterViolation, order.Market(), m)
	}
	var err error
	for _, f := range m.Filters() {
		if order, err = f.Apply(order); err != nil {
			return order, err
		}
	}
	return order, nil
}
