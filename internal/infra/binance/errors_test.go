package binance

import (
	"errors"
	"io"
	"testing"

	"crypto_api/internal/domain"
	"crypto_api/internal/infra"
	"crypto_api/pkg/quant"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		kind       domain.OrderErrorKind
		connection bool
		filter     bool
	}{
		{"too many requests", &common.APIError{Code: -1003, Message: "Too many requests"}, domain.OrderErrRateLimited, false, false},
		{"insufficient", &common.APIError{Code: -2010, Message: "Account has insufficient balance for requested action."}, domain.OrderErrInsufficientBalance, false, false},
		{"rejected", &common.APIError{Code: -2010, Message: "Order would immediately match and take."}, domain.OrderErrRejected, false, false},
		{"precision", &common.APIError{Code: -1111, Message: "Precision is over the maximum defined for this asset."}, domain.OrderErrInvalidOrder, false, true},
		{"bad param", &common.APIError{Code: -1102, Message: "Mandatory parameter 'price' was not sent"}, domain.OrderErrInvalidOrder, false, false},
		{"unknown code", &common.APIError{Code: -1021, Message: "Timestamp outside recvWindow"}, domain.OrderErrOther, false, false},
		{"gateway page", &common.APIError{}, domain.OrderErrOther, true, false},
		{"transport", io.ErrUnexpectedEOF, domain.OrderErrOther, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oe := orderError(tt.err)
			require.NotNil(t, oe)
			assert.Equal(t, tt.kind, oe.Kind)
			assert.Equal(t, tt.connection, errors.Is(oe, domain.ErrConnection))
			assert.Equal(t, tt.filter, errors.Is(oe, domain.ErrFilterViolation))
		})
	}
}

func TestVenueError(t *testing.T) {
	err := venueError("klines", io.EOF)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.ErrorIs(t, err, io.EOF)

	err = venueError("klines", infra.ErrCircuitOpen)
	assert.ErrorIs(t, err, domain.ErrConnection)

	err = venueError("klines", &common.APIError{Code: -1121, Message: "Invalid symbol."})
	assert.NotErrorIs(t, err, domain.ErrConnection)
}

func TestParseFilters(t *testing.T) {
	raw := []map[string]interface{}{
		{"filterType": "PRICE_FILTER", "minPrice": "0.01", "maxPrice": "1000000.00", "tickSize": "0.01"},
		{"filterType": "LOT_SIZE", "minQty": "0.001", "maxQty": "100", "stepSize": "0.001"},
		{"filterType": "MIN_NOTIONAL", "minNotional": "10"},
		{"filterType": "ICEBERG_PARTS", "limit": float64(10)},
	}

	filters, err := parseFilters(raw)
	require.NoError(t, err)
	require.Len(t, filters, 3)

	price := filters[0].(domain.PriceFilter)
	assert.True(t, price.Tick.Equal(quant.MustParse("0.01")))
	lot := filters[1].(domain.LotSizeFilter)
	assert.True(t, lot.Step.Equal(quant.MustParse("0.001")))
	assert.True(t, lot.Max.Equal(quant.FromInt(100)))
	notional := filters[2].(domain.MinNotionalFilter)
	assert.True(t, notional.Min.Equal(quant.FromInt(10)))
}

func TestParseFilters_Malformed(t *testing.T) {
	_, err := parseFilters([]map[string]interface{}{
		{"filterType": "LOT_SIZE", "minQty": 0.001, "maxQty": "100", "stepSize": "0.001"},
	})
	assert.Error(t, err)

	_, err = parseFilters([]map[string]interface{}{
		{"filterType": "PRICE_FILTER", "minPrice": "abc", "maxPrice": "1", "tickSize": "0.1"},
	})
	assert.Error(t, err)
}

func TestStreamName(t *testing.T) {
	reg := domain.NewRegistry()
	assert.Equal(t, "btcusdt@kline_1h", streamName(reg.Market("BTC", "USDT"), domain.I1h))
}
