package domain

import (
	"fmt"

	"crypto_api/pkg/quant"
)

// Quantity is an amount denominated in a specific asset.
// Combining quantities of different assets is a programmer error and panics.
type Quantity struct {
	Value quant.Monetary
	Asset *Asset
}

// NewQuantity builds a quantity of asset.
func NewQuantity(value quant.Monetary, asset *Asset) Quantity {
	return Quantity{Value: value, Asset: asset}
}

// Add returns q + other. Panics if the assets differ.
func (q Quantity) Add(other Quantity) Quantity {
	if !q.Asset.Equal(other.Asset) {
		panic(fmt.Sprintf("CORE_ASSET_MISMATCH: add %s to %s", other.Asset, q.Asset))
	}
	return Quantity{Value: q.Value.Add(other.Value), Asset: q.Asset}
}

// Sub returns q - other. Panics if the assets differ.
func (q Quantity) Sub(other Quantity) Quantity {
	if !q.Asset.Equal(other.Asset) {
		panic(fmt.Sprintf("CORE_ASSET_MISMATCH: subtract %s from %s", other.Asset, q.Asset))
	}
	return Quantity{Value: q.Value.Sub(other.Value), Asset: q.Asset}
}

// Mul converts a base-asset quantity into the quote asset of price's market:
// quantity_in_base * price(base/quote) = quantity_in_quote.
// Panics unless q is denominated in the market's base asset.
func (q Quantity) Mul(price Price) Quantity {
	if price.Market == nil || !q.Asset.Equal(price.Market.Base) {
		panic(fmt.Sprintf("CORE_ASSET_MISMATCH: multiply %s by price of %v", q.Asset, price.Market))
	}
	return Quantity{Value: q.Value.Mul(price.Value), Asset: price.Market.Quote}
}

// Div converts a quote-asset quantity into the base asset of price's market.
// Panics unless q is denominated in the market's quote asset or the price is zero.
func (q Quantity) Div(price Price) Quantity {
	if price.Market == nil || !q.Asset.Equal(price.Market.Quote) {
		panic(fmt.Sprintf("CORE_ASSET_MISMATCH: divide %s by price of %v", q.Asset, price.Market))
	}
	if price.Value.IsZero() {
		panic("CORE_DIV_BY_ZERO_PRICE")
	}
	return Quantity{Value: q.Value.Div(price.Value), Asset: price.Market.Base}
}

// Scale multiplies the amount by a dimensionless factor.
func (q Quantity) Scale(factor quant.Monetary) Quantity {
	return Quantity{Value: q.Value.Mul(factor), Asset: q.Asset}
}

// IsZero reports whether the amount is zero.
func (q Quantity) IsZero() bool { return q.Value.IsZero() }

// Cmp compares amounts. Panics if the assets differ.
func (q Quantity) Cmp(other Quantity) int {
	if !q.Asset.Equal(other.Asset) {
		panic(fmt.Sprintf("CORE_ASSET_MISMATCH: compare %s with %s", q.Asset, other.Asset))
	}
	return q.Value.Cmp(other.Value)
}

// Equal reports equal asset and amount.
func (q Quantity) Equal(other Quantity) bool {
	return q.Asset.Equal(other.Asset) && q.Value.Equal(other.Value)
}

func (q Quantity) String() string {
	return fmt.Sprintf("%s %v", q.Value.String(), q.Asset)
}
