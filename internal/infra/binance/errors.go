package binance

import (
	"errors"
	"fmt"
	"strings"

	"crypto_api/internal/domain"
	"crypto_api/internal/infra"

	"github.com/adshao/go-binance/v2/common"
)

// Binance API error codes that change how an order failure is classified.
const (
	codeTooManyRequests  = -1003
	codeTooManyOrders    = -1015
	codeBadPrecision     = -1111
	codeFilterFailure    = -1013
	codeNewOrderRejected = -2010
)

// isTransportFailure reports errors that say nothing about the request
// itself. Only those count against the circuit breaker. A gateway error
// page decodes into an APIError with no code.
func isTransportFailure(err error) bool {
	var apiErr *common.APIError
	return !errors.As(err, &apiErr) || apiErr.Code == 0
}

// venueError wraps a non-order failure as a connectivity error.
func venueError(op string, err error) error {
	if errors.Is(err, infra.ErrCircuitOpen) || isTransportFailure(err) {
		return fmt.Errorf("binance %s: %w: %w", op, domain.ErrConnection, err)
	}
	return fmt.Errorf("binance %s: %w", op, err)
}

// orderError classifies an order placement failure.
func orderError(err error) *domain.OrderError {
	var apiErr *common.APIError
	if isTransportFailure(err) || !errors.As(err, &apiErr) {
		return domain.NewOrderError(domain.OrderErrOther, fmt.Errorf("%w: %w", domain.ErrConnection, err))
	}

	switch {
	case apiErr.Code == codeTooManyRequests || apiErr.Code == codeTooManyOrders:
		return domain.NewOrderError(domain.OrderErrRateLimited, apiErr)
	case apiErr.Code == codeNewOrderRejected && strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance"):
		return domain.NewOrderError(domain.OrderErrInsufficientBalance, apiErr)
	case apiErr.Code == codeNewOrderRejected:
		return domain.NewOrderError(domain.OrderErrRejected, apiErr)
	case apiErr.Code == codeFilterFailure || apiErr.Code == codeBadPrecision:
		return domain.NewOrderError(domain.OrderErrInvalidOrder, fmt.Errorf("%w: %w", domain.ErrFilterViolation, apiErr))
	case apiErr.Code <= -1100 && apiErr.Code > -1200:
		// -11xx are request parameter errors.
		return domain.NewOrderError(domain.OrderErrInvalidOrder, apiErr)
	default:
		return domain.NewOrderError(domain.OrderErrOther, apiErr)
	}
}
