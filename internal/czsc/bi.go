package czsc

import (
	"log/slog"
	"math"

	"czsc-engine/internal/model"
)

// checkBI looks for a stroke starting at the first fractal of bars. The end
// fractal is the most extreme opposite fractal before price moves beyond the
// start. It returns the stroke, or nil, and the merged bars left for the
// next search.
func checkBI(bars []model.NewBar, cfg Config, log *slog.Logger) (*model.BI, []model.NewBar) {
	fxs := checkFXs(bars, log)
	if len(fxs) < 2 {
		return nil, bars
	}

	fxA := fxs[0]
	ia := indexOf(bars, fxA.Mid())
	if ia < 0 {
		return nil, bars
	}
	// fxB must come before the first bar that moves beyond fxA, so fxA
	// stays the extreme of the stroke.
	limit := len(bars)
	for j := ia + 1; j < len(bars); j++ {
		if fxA.Mark == model.Bottom && bars[j].Low < fxA.Low || fxA.Mark == model.Top && bars[j].High > fxA.High {
			limit = j
			break
		}
	}

	var fxB model.FX
	found := false
	for _, fx := range fxs[1:] {
		if fx.Mark == fxA.Mark || !fx.DT.After(fxA.DT) {
			continue
		}
		if limit < len(bars) && !fx.DT.Before(bars[limit].DT) {
			break
		}
		if fxA.Mark == model.Bottom {
			if fx.Fx > fxA.Fx && (!found || fx.High >= fxB.High) {
				fxB, found = fx, true
			}
		} else if fx.Fx < fxA.Fx && (!found || fx.Low <= fxB.Low) {
			fxB, found = fx, true
		}
	}
	if !found || fxA.BandOverlaps(fxB) {
		return nil, bars
	}

	ib := indexOf(bars, fxB.Mid())
	if ib <= ia {
		return nil, bars
	}
	span := bars[ia : ib+1]
	if len(span) < cfg.MinBiLen && !hasGap(span, cfg.MinBiGap) {
		return nil, bars
	}

	bi := newBI(fxA, fxB, fxs, span)
	return &bi, bars[ib-1:]
}

func indexOf(bars []model.NewBar, nb model.NewBar) int {
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].DT.Equal(nb.DT) {
			return i
		}
	}
	return -1
}

// hasGap reports a price gap between two consecutive merged bars, wider than
// eps relative to the earlier bar.
func hasGap(bars []model.NewBar, eps float64) bool {
	for i := 1; i < len(bars); i++ {
		a, b := bars[i-1], bars[i]
		if b.Low > a.High*(1+eps) || b.High < a.Low*(1-eps) {
			return true
		}
	}
	return false
}

func newBI(fxA, fxB model.FX, fxs []model.FX, bars []model.NewBar) model.BI {
	dir := model.Up
	if fxA.Mark == model.Top {
		dir = model.Down
	}

	var inner []model.FX
	for _, fx := range fxs {
		if !fx.DT.Before(fxA.DT) && !fx.DT.After(fxB.DT) {
			inner = append(inner, fx)
		}
	}

	bi := model.BI{
		Symbol:    fxA.Symbol,
		FxA:       fxA,
		FxB:       fxB,
		Fxs:       inner,
		Direction: dir,
		Bars:      bars,
		High:      max(fxA.High, fxB.High),
		Low:       min(fxA.Low, fxB.Low),
		SDT:       fxA.DT,
		EDT:       fxB.DT,
		Length:    len(bars),

		PowerPrice: math.Abs(fxB.Fx - fxA.Fx),
	}
	for _, nb := range bars {
		bi.PowerVolume += nb.Volume
	}
	if fxA.Fx != 0 {
		bi.Change = (fxB.Fx - fxA.Fx) / fxA.Fx
	}

	closes := make([]float64, 0, len(bars))
	for _, raw := range bi.RawBars() {
		closes = append(closes, raw.Close)
	}
	bi.SNR = snr(closes)
	bi.Slope, bi.RSQ = linearFit(closes)
	return bi
}

// snr is the net move of xs over the total path length.
func snr(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var path float64
	for i := 1; i < len(xs); i++ {
		path += math.Abs(xs[i] - xs[i-1])
	}
	if path == 0 {
		return 0
	}
	return math.Abs(xs[len(xs)-1]-xs[0]) / path
}

// linearFit regresses xs on their index and returns the slope and R².
func linearFit(xs []float64) (slope, rsq float64) {
	n := float64(len(xs))
	if len(xs) < 2 {
		return 0, 0
	}
	var sx, sy, sxx, sxy float64
	for i, y := range xs {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, 0
	}
	slope = (n*sxy - sx*sy) / den
	intercept := (sy - slope*sx) / n

	mean := sy / n
	var ssTot, ssRes float64
	for i, y := range xs {
		fit := intercept + slope*float64(i)
		ssTot += (y - mean) * (y - mean)
		ssRes += (y - fit) * (y - fit)
	}
	if ssTot == 0 {
		return slope, 1
	}
	return slope, 1 - ssRes/ssTot
}
