package domain

import (
	"fmt"

	"crypto_api/pkg/quant"
)

// Balance is the holding of one asset. Reserved funds back resting orders.
type Balance struct {
	Asset    *Asset
	Amount   quant.Monetary
	Reserved quant.Monetary
	// UpdatedSeq is the sequence of the last mutation.
	UpdatedSeq uint64
}

// Available returns Amount - Reserved.
func (b *Balance) Available() quant.Monetary {
	return b.Amount.Sub(b.Reserved)
}

// Credit adds funds.
func (b *Balance) Credit(amount quant.Monetary, seq uint64) {
	b.Amount = b.Amount.Add(amount)
	b.UpdatedSeq = seq
	b.VerifyInvariant()
}

// Debit removes funds. Panics if the amount exceeds the holding.
func (b *Balance) Debit(amount quant.Monetary, seq uint64) {
	if amount.GreaterThan(b.Amount) {
		panic(fmt.Sprintf("CORE_BALANCE_INSUFFICIENT: %s debit %s from %s", b.Asset, amount, b.Amount))
	}
	b.Amount = b.Amount.Sub(amount)
	b.UpdatedSeq = seq
	b.VerifyInvariant()
}

// Reserve locks funds for a resting order.
func (b *Balance) Reserve(amount quant.Monetary, seq uint64) {
	b.Reserved = b.Reserved.Add(amount)
	b.UpdatedSeq = seq
	b.VerifyInvariant()
}

// Release unlocks previously reserved funds.
func (b *Balance) Release(amount quant.Monetary, seq uint64) {
	b.Reserved = b.Reserved.Sub(amount)
	b.UpdatedSeq = seq
	b.VerifyInvariant()
}

// VerifyInvariant panics if 0 <= Reserved <= Amount does not hold.
func (b *Balance) VerifyInvariant() {
	if b.Amount.IsNegative() {
		panic(fmt.Sprintf("CORE_BALANCE_NEGATIVE: %s amount %s", b.Asset, b.Amount))
	}
	if b.Reserved.IsNegative() || b.Reserved.GreaterThan(b.Amount) {
		panic(fmt.Sprintf("CORE_BALANCE_RESERVED: %s reserved %s of %s", b.Asset, b.Reserved, b.Amount))
	}
}

// BalanceBook holds one Balance per asset. Not safe for concurrent use;
// callers serialise access.
type BalanceBook struct {
	balances map[*Asset]*Balance
}

// NewBalanceBook creates an empty book.
func NewBalanceBook() *BalanceBook {
	return &BalanceBook{balances: make(map[*Asset]*Balance)}
}

// Get returns the balance of asset, creating an empty one if needed.
func (bb *BalanceBook) Get(asset *Asset) *Balance {
	b, ok := bb.balances[asset]
	if !ok {
		b = &Balance{Asset: asset}
		bb.balances[asset] = b
	}
	return b
}

// VerifyAll checks every balance invariant.
func (bb *BalanceBook) VerifyAll() {
	for _, b := range bb.balances {
		b.VerifyInvariant()
	}
}

// Snapshot returns a copy of every balance.
func (bb *BalanceBook) Snapshot() []Balance {
	out := make([]Balance, 0, len(bb.balances))
	for _, b := range bb.balances {
		out = append(out, *b)
	}
	return out
}

// TotalEquity values every holding in quote using the given prices.
// Holdings without a price into quote are skipped.
func (bb *BalanceBook) TotalEquity(quote *Asset, prices map[*Market]Price) quant.Monetary {
	total := quant.Zero
	for asset, b := range bb.balances {
		if asset == quote {
			total = total.Add(b.Amount)
			continue
		}
		for m, p := range prices {
			if m.Base == asset && m.Quote == quote {
				total = total.Add(b.Amount.Mul(p.Value))
				break
			}
		}
	}
	return total
}
