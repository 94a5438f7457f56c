package indicator

import (
	"fmt"
	"strconv"
	"strings"

	"czsc-engine/internal/czsc"
)

// warmupFactor bounds how many closes EMA and RSI are recomputed from.
const warmupFactor = 10

// Spec selects one indicator, written "kind:period", e.g. "ema:12".
type Spec struct {
	Kind   Kind
	Period int
}

// ParseSpec parses "kind:period".
func ParseSpec(s string) (Spec, error) {
	kind, period, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Spec{}, fmt.Errorf("indicator: %q is not kind:period", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(period))
	if err != nil {
		return Spec{}, fmt.Errorf("indicator: period in %q: %w", s, err)
	}
	sp := Spec{Kind: Kind(strings.ToLower(strings.TrimSpace(kind))), Period: n}
	if _, err := New(sp.Kind, sp.Period); err != nil {
		return Spec{}, err
	}
	return sp, nil
}

// ParseSpecs parses every entry of ss.
func ParseSpecs(ss []string) ([]Spec, error) {
	out := make([]Spec, 0, len(ss))
	for _, s := range ss {
		sp, err := ParseSpec(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}

func (s Spec) String() string { return string(s.Kind) + ":" + strconv.Itoa(s.Period) }

// window is the number of trailing closes the indicator is computed from.
func (s Spec) window() int {
	if s.Kind == KindSMA {
		return s.Period
	}
	return warmupFactor * (s.Period + 1)
}

// Signal returns a signal function reporting each indicator over the
// facade's retained closes. Indicators are rebuilt on every call, so a
// replaced last bar never leaves stale state behind. For a ready
// indicator the result holds NAME (its value), plus NAME_above (close
// above the average) for SMA and EMA.
func Signal(specs ...Spec) czsc.SignalFunc {
	return func(c *czsc.CZSC) (map[string]any, error) {
		bars := c.BarsRaw()
		if len(bars) == 0 {
			return nil, nil
		}
		last := bars[len(bars)-1].Close
		out := make(map[string]any, 2*len(specs))
		for _, sp := range specs {
			ind, err := New(sp.Kind, sp.Period)
			if err != nil {
				return nil, err
			}
			from := max(0, len(bars)-sp.window())
			for _, b := range bars[from:] {
				ind.Update(b.Close)
			}
			if !ind.Ready() {
				continue
			}
			out[ind.Name()] = ind.Value()
			if sp.Kind != KindRSI {
				out[ind.Name()+"_above"] = last > ind.Value()
			}
		}
		return out, nil
	}
}
