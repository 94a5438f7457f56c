// Package segment groups strokes into segments (XD) using the feature
// sequence rule: the strokes against a segment's direction are inclusion
// reduced, and a fractal on the reduced sequence marks the segment's end.
package segment

import (
	"fmt"
	"slices"
	"strings"

	"czsc-engine/internal/model"
)

// Mode selects how a three-stroke segment candidate is confirmed.
type Mode string

const (
	// Strict needs the stroke after the candidate to stay above (below) the
	// origin of the candidate's third stroke.
	Strict Mode = "strict"
	// Loose accepts any three strokes with the right geometry.
	Loose Mode = "loose"
)

// ParseMode parses "strict" or "loose" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown segment mode %q", s)
	}
	return m, nil
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == Strict || m == Loose
}

type startState int

const (
	startInvalid startState = iota
	startValid
	startPending // not enough strokes yet
)

// Build returns the segments of bis, oldest first. Directions alternate and
// each segment starts right after the previous one. The last segment is
// provisional.
func Build(bis []model.BI, mode Mode) []model.XD {
	if !mode.Valid() {
		mode = Strict
	}
	var out []model.XD
	s := 0
	for {
		for s+2 < len(bis) && validStart(bis, s, mode) == startInvalid {
			s++
		}
		if s+2 >= len(bis) || validStart(bis, s, mode) != startValid {
			break
		}
		end, closed := findEnd(bis, s, mode)
		out = append(out, newXD(bis[s:end+1]))
		if !closed {
			break
		}
		s = end + 1
	}
	return out
}

// validStart checks whether a segment may start at stroke s.
func validStart(bis []model.BI, s int, mode Mode) startState {
	if s+2 >= len(bis) {
		return startPending
	}
	a, b, c := bis[s], bis[s+1], bis[s+2]
	up := a.Direction == model.Up

	if up && !(c.High > a.High && b.Low > a.Low) {
		return startInvalid
	}
	if !up && !(c.Low < a.Low && b.High < a.High) {
		return startInvalid
	}
	if mode == Strict {
		if s+3 >= len(bis) {
			return startPending
		}
		d := bis[s+3]
		if up && d.Low <= c.Low || !up && d.High >= c.High {
			return startInvalid
		}
	}
	return startValid
}

// feature is one element of the reduced feature sequence. idx is the stroke
// that holds the element's extreme in the segment direction.
type feature struct {
	high, low float64
	idx       int
}

// findEnd returns the last stroke of the segment starting at s and whether
// the end is confirmed by a valid follow-on segment.
func findEnd(bis []model.BI, s int, mode Mode) (int, bool) {
	up := bis[s].Direction == model.Up

	var seq []feature
	for i := s + 1; i < len(bis); i += 2 {
		seq = pushFeature(seq, feature{high: bis[i].High, low: bis[i].Low, idx: i}, up)
	}

	for k := 1; k+1 < len(seq); k++ {
		l, m, r := seq[k-1], seq[k], seq[k+1]
		if up && !(m.high > l.high && m.high > r.high) {
			continue
		}
		if !up && !(m.low < l.low && m.low < r.low) {
			continue
		}
		end := m.idx - 1
		switch validStart(bis, end+1, mode) {
		case startValid:
			return end, true
		case startPending:
			return tailEnd(bis, s), false
		}
	}
	return tailEnd(bis, s), false
}

// pushFeature appends f, merging it into the last element when one range
// contains the other. Up raises both bounds, Down lowers both.
func pushFeature(seq []feature, f feature, up bool) []feature {
	if len(seq) == 0 {
		return append(seq, f)
	}
	last := &seq[len(seq)-1]
	inclusive := (last.high >= f.high && last.low <= f.low) || (f.high >= last.high && f.low <= last.low)
	if !inclusive {
		return append(seq, f)
	}
	if up {
		if f.high > last.high {
			last.idx = f.idx
		}
		last.high, last.low = max(last.high, f.high), max(last.low, f.low)
	} else {
		if f.low < last.low {
			last.idx = f.idx
		}
		last.high, last.low = min(last.high, f.high), min(last.low, f.low)
	}
	return seq
}

// tailEnd picks the same-direction stroke with the most extreme end.
func tailEnd(bis []model.BI, s int) int {
	up := bis[s].Direction == model.Up
	end := s
	for i := s; i < len(bis); i += 2 {
		if up && bis[i].High >= bis[end].High || !up && bis[i].Low <= bis[end].Low {
			end = i
		}
	}
	return end
}

func newXD(bis []model.BI) model.XD {
	first, last := bis[0], bis[len(bis)-1]
	xd := model.XD{
		Symbol:    first.Symbol,
		Direction: first.Direction,
		SDT:       first.SDT,
		EDT:       last.EDT,
		Start:     first.FxA.Fx,
		End:       last.FxB.Fx,
		High:      first.High,
		Low:       first.Low,
		BIs:       slices.Clip(bis),
	}
	for _, bi := range bis[1:] {
		xd.High = max(xd.High, bi.High)
		xd.Low = min(xd.Low, bi.Low)
	}
	return xd
}
