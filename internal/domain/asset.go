package domain

import (
	"sort"
	"strings"
	"sync"
)

// Asset identifies a tradable currency or token (e.g. "BTC").
// Assets are only created through a Registry, so two assets with the same
// code obtained from the same registry are the same pointer.
type Asset struct {
	code string
}

// Code returns the asset identifier.
func (a *Asset) Code() string { return a.code }

func (a *Asset) String() string { return a.code }

// Equal compares by identifier. Interned assets also compare equal with ==.
func (a *Asset) Equal(other *Asset) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a == other || a.code == other.code
}

type marketKey struct {
	base, quote string
}

// Registry interns assets and markets.
// Insert-if-absent is atomic, so concurrent Update calls from several venue
// integrations never produce two instances of the same asset or market.
type Registry struct {
	mu       sync.RWMutex
	assets   map[string]*Asset
	markets  map[marketKey]*Market
	bySymbol map[string]*Market
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		assets:   make(map[string]*Asset),
		markets:  make(map[marketKey]*Market),
		bySymbol: make(map[string]*Market),
	}
}

// Asset returns the interned asset for code, creating it on first use.
// Codes are normalised to upper case.
func (r *Registry) Asset(code string) *Asset {
	code = strings.ToUpper(strings.TrimSpace(code))

	r.mu.RLock()
	a, ok := r.assets[code]
	r.mu.RUnlock()
	if ok {
		return a
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assetLocked(code)
}

// assetLocked must be called with the write lock held.
func (r *Registry) assetLocked(code string) *Asset {
	if a, ok := r.assets[code]; ok {
		return a
	}
	a := &Asset{code: code}
	r.assets[code] = a
	return a
}

// Market returns the interned market for (base, quote).
// Both assets are resolved through the registry first.
func (r *Registry) Market(base, quote string) *Market {
	key := marketKey{
		base:  strings.ToUpper(strings.TrimSpace(base)),
		quote: strings.ToUpper(strings.TrimSpace(quote)),
	}

	r.mu.RLock()
	m, ok := r.markets[key]
	r.mu.RUnlock()
	if ok {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.markets[key]; ok {
		return m
	}

	m = newMarket(r.assetLocked(key.base), r.assetLocked(key.quote))
	r.markets[key] = m
	r.bySymbol[m.Symbol()] = m
	return m
}

// LookupAsset returns the asset for code if it was interned before.
func (r *Registry) LookupAsset(code string) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[strings.ToUpper(code)]
	return a, ok
}

// LookupMarket resolves a venue symbol such as "BTCUSDT".
func (r *Registry) LookupMarket(symbol string) (*Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.bySymbol[strings.ToUpper(symbol)]
	return m, ok
}

// Assets returns every interned asset sorted by code.
func (r *Registry) Assets() []*Asset {
	r.mu.RLock()
	out := make([]*Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].code < out[j].code })
	return out
}

// Markets returns every interned market sorted by symbol.
func (r *Registry) Markets() []*Market {
	r.mu.RLock()
	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	r.mu.RUnlock()

	SortMarkets(out)
	return out
}

// SortMarkets orders markets by symbol in place.
func SortMarkets(markets []*Market) {
	sort.Slice(markets, func(i, j int) bool { return markets[i].Symbol() < markets[j].Symbol() })
}

// SortAssets orders assets by code in place.
func SortAssets(assets []*Asset) {
	sort.Slice(assets, func(i, j int) bool { return assets[i].code < assets[j].code })
}
