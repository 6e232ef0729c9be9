package binance

import (
	"fmt"

	"crypto_api/internal/domain"
	"crypto_api/pkg/quant"
)

// parseFilters converts the raw exchangeInfo filter objects into domain
// filters. Unknown filter types are ignored.
func parseFilters(raw []map[string]interface{}) ([]domain.Filter, error) {
	var out []domain.Filter
	for _, f := range raw {
		kind, _ := f["filterType"].(string)
		switch kind {
		case "PRICE_FILTER":
			min, max, tick, err := decimals(f, "minPrice", "maxPrice", "tickSize")
			if err != nil {
				return nil, fmt.Errorf("%s: %w", kind, err)
			}
			out = append(out, domain.PriceFilter{Min: min, Max: max, Tick: tick})
		case "LOT_SIZE":
			min, max, step, err := decimals(f, "minQty", "maxQty", "stepSize")
			if err != nil {
				return nil, fmt.Errorf("%s: %w", kind, err)
			}
			out = append(out, domain.LotSizeFilter{Min: min, Max: max, Step: step})
		case "MIN_NOTIONAL", "NOTIONAL":
			v, err := decimal(f, "minNotional")
			if err != nil {
				return nil, fmt.Errorf("%s: %w", kind, err)
			}
			out = append(out, domain.MinNotionalFilter{Min: v})
		}
	}
	return out, nil
}

func decimals(f map[string]interface{}, a, b, c string) (quant.Monetary, quant.Monetary, quant.Monetary, error) {
	va, err := decimal(f, a)
	if err != nil {
		return quant.Zero, quant.Zero, quant.Zero, err
	}
	vb, err := decimal(f, b)
	if err != nil {
		return quant.Zero, quant.Zero, quant.Zero, err
	}
	vc, err := decimal(f, c)
	if err != nil {
		return quant.Zero, quant.Zero, quant.Zero, err
	}
	return va, vb, vc, nil
}

func decimal(f map[string]interface{}, key string) (quant.Monetary, error) {
	raw, ok := f[key]
	if !ok {
		return quant.Zero, nil
	}
	s, ok := raw.(string)
	if !ok {
		return quant.Zero, fmt.Errorf("field %s is %T, want string", key, raw)
	}
	return quant.Parse(s)
}
