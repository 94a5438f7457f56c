// Package freq defines the closed set of bar frequencies and the aligner
// that maps a timestamp to the close time of its enclosing bar.
package freq

import (
	"errors"
	"fmt"
	"strings"
)

// Freq is a bar frequency tag. Larger values are coarser.
type Freq int

const (
	Unknown Freq = iota
	F1
	F5
	F15
	F30
	F60
	D
	W
	M
	S
	Y
)

// ErrUnknown is returned by Parse for an unrecognised tag.
var ErrUnknown = errors.New("unknown frequency")

var names = [...]string{
	Unknown: "",
	F1:      "1m",
	F5:      "5m",
	F15:     "15m",
	F30:     "30m",
	F60:     "60m",
	D:       "D",
	W:       "W",
	M:       "M",
	S:       "S",
	Y:       "Y",
}

var minutes = [...]int{F1: 1, F5: 5, F15: 15, F30: 30, F60: 60}

var aliases = map[string]Freq{
	"1m": F1, "1min": F1, "1分钟": F1,
	"5m": F5, "5min": F5, "5分钟": F5,
	"15m": F15, "15min": F15, "15分钟": F15,
	"30m": F30, "30min": F30, "30分钟": F30,
	"60m": F60, "60min": F60, "1h": F60, "60分钟": F60,
	"d": D, "1d": D, "day": D, "daily": D, "日线": D,
	"w": W, "1w": W, "week": W, "weekly": W, "周线": W,
	"m": M, "month": M, "monthly": M, "月线": M,
	"s": S, "q": S, "quarter": S, "quarterly": S, "季线": S,
	"y": Y, "year": Y, "yearly": Y, "年线": Y,
}

// All lists every valid frequency from finest to coarsest.
func All() []Freq {
	return []Freq{F1, F5, F15, F30, F60, D, W, M, S, Y}
}

// Parse converts a tag such as "5m", "D" or "日线" to a Freq.
// Single-letter "M" means monthly; minutes need an explicit number.
func Parse(s string) (Freq, error) {
	t := strings.TrimSpace(s)
	if t == "M" {
		return M, nil
	}
	if f, ok := aliases[strings.ToLower(t)]; ok {
		return f, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknown, s)
}

// ParseList parses a comma-separated list, skipping blanks.
func ParseList(s string) ([]Freq, error) {
	var out []Freq
	for _, p := range strings.Split(s, ",") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		f, err := Parse(p)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Valid reports whether f is one of the enumerated tags.
func (f Freq) Valid() bool {
	return f >= F1 && f <= Y
}

// Intraday reports whether f is a minute frequency.
func (f Freq) Intraday() bool {
	return f >= F1 && f <= F60
}

// Minutes returns the bar length of an intraday frequency, 0 otherwise.
func (f Freq) Minutes() int {
	if !f.Intraday() {
		return 0
	}
	return minutes[f]
}

// CoarserThan reports whether f aggregates bars of o.
func (f Freq) CoarserThan(o Freq) bool {
	return f > o
}

func (f Freq) String() string {
	if f < 0 || int(f) >= len(names) {
		return fmt.Sprintf("Freq(%d)", int(f))
	}
	return names[f]
}

// MarshalText encodes the canonical tag; Unknown encodes as "".
func (f Freq) MarshalText() ([]byte, error) {
	if f == Unknown {
		return []byte{}, nil
	}
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknown, int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText accepts any tag Parse accepts, and "" as Unknown.
func (f *Freq) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*f = Unknown
		return nil
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
