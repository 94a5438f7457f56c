// Package pivot finds pivots (ZS): runs of consecutive legs whose price
// ranges all overlap a common band [ZD, ZG].
package pivot

import (
	"slices"

	"czsc-engine/internal/model"
)

// Find scans legs in order and returns the pivots found, oldest first.
// A pivot is seeded by three consecutive legs with a positive overlap (not
// by four legs with an overlapping opposite pair); ZG and ZD come from
// those three. It is extended while later legs intersect the band. The first leg that does not
// closes it and is recorded as the escape; the search then resumes from the
// pivot's last member. A trailing pivot without an escape is still open.
func Find(legs []model.Leg) []model.ZS {
	var out []model.ZS
	i := 0
	for i+2 < len(legs) {
		seed := legs[i : i+3]
		zg := min(seed[0].High, seed[1].High, seed[2].High)
		zd := max(seed[0].Low, seed[1].Low, seed[2].Low)
		if zg <= zd {
			i++
			continue
		}

		zs := model.ZS{ZG: zg, ZD: zd, Members: slices.Clone(seed)}
		j := i + 3
		for ; j < len(legs); j++ {
			p := legs[j]
			if p.High > zd && p.Low < zg {
				zs.Members = append(zs.Members, p)
				continue
			}
			escape := p
			zs.Escape = &escape
			if p.Low >= zg {
				zs.Third = model.ThirdBuy
			} else {
				zs.Third = model.ThirdSell
			}
			break
		}
		finish(&zs)
		out = append(out, zs)

		if zs.Escape == nil {
			break
		}
		i = j - 1
	}
	return out
}

// finish fills the time span and the extremes over all members.
func finish(zs *model.ZS) {
	first := zs.Members[0]
	zs.SDT = first.SDT
	zs.EDT = zs.Members[len(zs.Members)-1].EDT
	zs.GG, zs.G = first.High, first.High
	zs.D, zs.DD = first.Low, first.Low
	for _, m := range zs.Members[1:] {
		zs.GG = max(zs.GG, m.High)
		zs.G = min(zs.G, m.High)
		zs.D = max(zs.D, m.Low)
		zs.DD = min(zs.DD, m.Low)
	}
}

// Legs converts strokes to legs.
func Legs(bis []model.BI) []model.Leg {
	out := make([]model.Leg, len(bis))
	for i, bi := range bis {
		out[i] = bi.Leg()
	}
	return out
}

// SegmentLegs converts segments to legs.
func SegmentLegs(xds []model.XD) []model.Leg {
	out := make([]model.Leg, len(xds))
	for i, xd := range xds {
		out[i] = xd.Leg()
	}
	return out
}
