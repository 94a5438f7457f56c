package czsc

import (
	"log/slog"

	"czsc-engine/internal/model"
)

// checkFX reports the fractal formed by three consecutive merged bars, if any.
func checkFX(k1, k2, k3 model.NewBar) (model.FX, bool) {
	switch {
	case k1.High < k2.High && k2.High > k3.High && k1.Low < k2.Low && k2.Low > k3.Low:
		power := model.Weak
		if k3.Close < k1.Low {
			power = model.Strong
		}
		return model.FX{
			Symbol:   k2.Symbol,
			DT:       k2.DT,
			Mark:     model.Top,
			High:     k2.High,
			Low:      k2.Low,
			Fx:       k2.High,
			FxHigh:   k2.High,
			FxLow:    max(k1.Low, k3.Low),
			Power:    power,
			Elements: []model.NewBar{k1, k2, k3},
		}, true

	case k1.Low > k2.Low && k2.Low < k3.Low && k1.High > k2.High && k2.High < k3.High:
		power := model.Weak
		if k3.Close > k1.High {
			power = model.Strong
		}
		return model.FX{
			Symbol:   k2.Symbol,
			DT:       k2.DT,
			Mark:     model.Bottom,
			High:     k2.High,
			Low:      k2.Low,
			Fx:       k2.Low,
			FxHigh:   min(k1.High, k3.High),
			FxLow:    k2.Low,
			Power:    power,
			Elements: []model.NewBar{k1, k2, k3},
		}, true
	}
	return model.FX{}, false
}

// checkFXs returns the alternating fractals of bars, oldest first. A
// fractal with the same mark as its predecessor is skipped.
func checkFXs(bars []model.NewBar, log *slog.Logger) []model.FX {
	var fxs []model.FX
	for i := 1; i < len(bars)-1; i++ {
		fx, ok := checkFX(bars[i-1], bars[i], bars[i+1])
		if !ok {
			continue
		}
		if len(fxs) > 0 && fx.Mark == fxs[len(fxs)-1].Mark {
			if log != nil {
				log.Debug("skipping repeated fractal", slog.String("mark", string(fx.Mark)), slog.Time("dt", fx.DT))
			}
			continue
		}
		fxs = append(fxs, fx)
	}
	return fxs
}
