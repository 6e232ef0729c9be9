package domain

import (
	"fmt"

	"crypto_api/pkg/quant"
)

// Price is the value of one base-asset unit in quote-asset terms, tied to
// the market it is denominated in.
//
// Comparisons look at the numeric value only. Comparing prices of different
// markets is a caller error and is not detected here.
type Price struct {
	Value  quant.Monetary
	Market *Market
}

// NewPrice builds a price for market.
func NewPrice(value quant.Monetary, market *Market) Price {
	return Price{Value: value, Market: market}
}

// Less reports p < other.
func (p Price) Less(other Price) bool { return p.Value.LessThan(other.Value) }

// Greater reports p > other.
func (p Price) Greater(other Price) bool { return p.Value.GreaterThan(other.Value) }

// Equal reports numeric equality.
func (p Price) Equal(other Price) bool { return p.Value.Equal(other.Value) }

// Cmp returns -1, 0 or +1.
func (p Price) Cmp(other Price) int { return p.Value.Cmp(other.Value) }

func (p Price) String() string {
	if p.Market == nil {
		return p.Value.String()
	}
	return fmt.Sprintf("%s %s", p.Value.String(), p.Market.Symbol())
}
