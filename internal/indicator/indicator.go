// Package indicator computes rolling indicators over bar closes and exposes
// them to the engine as signal functions.
package indicator

import (
	"fmt"
	"strings"
)

// Indicator consumes closing prices one at a time.
type Indicator interface {
	// Name returns the indicator name, e.g. "SMA20".
	Name() string

	Update(price float64)

	// Value returns the current value, 0 until Ready.
	Value() float64

	Ready() bool
}

// Kind names an indicator family.
type Kind string

const (
	KindSMA Kind = "sma"
	KindEMA Kind = "ema"
	KindRSI Kind = "rsi"
)

// New returns a fresh indicator of kind over period closes.
func New(kind Kind, period int) (Indicator, error) {
	if period < 1 {
		return nil, fmt.Errorf("indicator: period %d must be positive", period)
	}
	switch Kind(strings.ToLower(string(kind))) {
	case KindSMA:
		return NewSMA(period), nil
	case KindEMA:
		return NewEMA(period), nil
	case KindRSI:
		return NewRSI(period), nil
	}
	return nil, fmt.Errorf("indicator: unknown kind %q", kind)
}
