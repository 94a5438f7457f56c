package model

import (
	"encoding/json"
	"math"
	"time"

	"czsc-engine/internal/freq"
)

// RawBar is one closed OHLCV bar at a single frequency.
// DT is the close time of the bar. A RawBar is never mutated after it is
// closed; Cache is an opaque memo owned by signal functions.
type RawBar struct {
	Symbol string    `json:"symbol"`
	ID     int       `json:"id"`
	DT     time.Time `json:"dt"`
	Freq   freq.Freq `json:"freq"`
	Open   float64   `json:"open"`
	Close  float64   `json:"close"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Volume float64   `json:"vol"`
	Amount float64   `json:"amount"`

	Cache map[string]any `json:"cache,omitempty"`
}

// Key returns "symbol:freq".
func (b *RawBar) Key() string {
	return b.Symbol + ":" + b.Freq.String()
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *RawBar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// Validate checks the OHLC ordering and that every value is finite.
func (b *RawBar) Validate() error {
	for _, v := range [...]float64{b.Open, b.Close, b.High, b.Low, b.Volume, b.Amount} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &DataError{DT: b.DT, Reason: "non-finite value"}
		}
	}
	if b.Low > b.High {
		return &DataError{DT: b.DT, Reason: "low above high"}
	}
	if math.Min(b.Open, b.Close) < b.Low || math.Max(b.Open, b.Close) > b.High {
		return &DataError{DT: b.DT, Reason: "open/close outside [low, high]"}
	}
	if b.Volume < 0 || b.Amount < 0 {
		return &DataError{DT: b.DT, Reason: "negative volume or amount"}
	}
	if b.DT.IsZero() {
		return &DataError{DT: b.DT, Reason: "missing dt"}
	}
	return nil
}

// NewBar is a bar of the inclusion-free sequence. Elements holds the raw
// bars it absorbed, oldest first.
type NewBar struct {
	Symbol    string    `json:"symbol"`
	ID        int       `json:"id"`
	DT        time.Time `json:"dt"`
	Freq      freq.Freq `json:"freq"`
	Open      float64   `json:"open"`
	Close     float64   `json:"close"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Volume    float64   `json:"vol"`
	Amount    float64   `json:"amount"`
	Direction Direction `json:"direction"`
	Elements  []RawBar  `json:"elements"`
}

// NewBarFrom wraps a single raw bar.
func NewBarFrom(b RawBar, d Direction) NewBar {
	return NewBar{
		Symbol:    b.Symbol,
		ID:        b.ID,
		DT:        b.DT,
		Freq:      b.Freq,
		Open:      b.Open,
		Close:     b.Close,
		High:      b.High,
		Low:       b.Low,
		Volume:    b.Volume,
		Amount:    b.Amount,
		Direction: d,
		Elements:  []RawBar{b},
	}
}

// Contains reports whether o's range lies inside b's range (bounds inclusive).
func (b NewBar) Contains(o NewBar) bool {
	return b.High >= o.High && b.Low <= o.Low
}

// Inclusive reports whether either bar's range contains the other's.
func (b NewBar) Inclusive(o NewBar) bool {
	return b.Contains(o) || o.Contains(b)
}

// RawBars returns the absorbed raw bars.
func (b NewBar) RawBars() []RawBar {
	return b.Elements
}
