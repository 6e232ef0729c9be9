package domain

import (
	"fmt"
	"time"
)

// Interval is a candlestick timeframe. New timeframes are added by extending
// the enumeration.
type Interval int

const (
	I1m Interval = iota + 1
	I5m
	I15m
	I1h
	I1d
)

var intervalNames = map[Interval]string{
	I1m:  "1m",
	I5m:  "5m",
	I15m: "15m",
	I1h:  "1h",
	I1d:  "1d",
}

var intervalDurations = map[Interval]time.Duration{
	I1m:  time.Minute,
	I5m:  5 * time.Minute,
	I15m: 15 * time.Minute,
	I1h:  time.Hour,
	I1d:  24 * time.Hour,
}

// Intervals lists every supported interval in ascending length.
func Intervals() []Interval {
	return []Interval{I1m, I5m, I15m, I1h, I1d}
}

// String returns the canonical short form used for display and wire names.
func (i Interval) String() string {
	if name, ok := intervalNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Interval(%d)", int(i))
}

// Duration returns the bucket length.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// Truncate returns the open time of the bucket containing t.
func (i Interval) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(i.Duration())
}

// ParseInterval accepts the canonical short form.
func ParseInterval(s string) (Interval, error) {
	for i, name := range intervalNames {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown interval %q", s)
}

func (i Interval) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Interval) UnmarshalText(text []byte) error {
	parsed, err := ParseInterval(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
