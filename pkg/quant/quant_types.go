package quant

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Monetary is the scalar behind every price and quantity.
// Venue strings are parsed straight into it; float64 never carries money.
type Monetary = decimal.Decimal

// TimeStamp represents Unix milliseconds, the unit venues use on the wire.
type TimeStamp int64

// Zero is the additive identity.
var Zero = decimal.Zero

// Parse converts a venue decimal string (e.g. "0.00100000") to Monetary.
// Empty strings and "null" are treated as zero.
func Parse(s string) (Monetary, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid monetary value %q: %w", s, err)
	}
	return v, nil
}

// MustParse is Parse for literals. It panics on malformed input.
func MustParse(s string) Monetary {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromInt returns an integral Monetary value.
func FromInt(i int64) Monetary {
	return decimal.NewFromInt(i)
}

// FloorToStep rounds v down to the nearest multiple of step.
// A non-positive step leaves v unchanged.
func FloorToStep(v, step Monetary) Monetary {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// IsMultipleOf reports whether v is an exact multiple of step.
func IsMultipleOf(v, step Monetary) bool {
	if !step.IsPositive() {
		return true
	}
	return v.Mod(step).IsZero()
}

// ParseTimeStamp converts a millisecond string to TimeStamp.
func ParseTimeStamp(s string) (TimeStamp, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TimeStamp(ms), nil
}

// Time converts the timestamp to a UTC time.Time.
func (t TimeStamp) Time() time.Time {
	return FromMillis(int64(t))
}

// FromMillis converts Unix milliseconds to a UTC time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ToMillis is the inverse of FromMillis.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}
