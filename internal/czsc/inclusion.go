package czsc

import (
	"slices"

	"czsc-engine/internal/model"
)

// removeInclude folds raw bar b into the inclusion-free sequence bars and
// returns the new sequence and direction. bars is never modified in place:
// a merge copies the slice so that earlier holders keep their view.
func removeInclude(bars []model.NewBar, b model.RawBar, d model.Direction) ([]model.NewBar, model.Direction) {
	if d == "" {
		d = model.Up
	}
	nb := model.NewBarFrom(b, d)

	switch len(bars) {
	case 0:
		return append(bars, nb), d
	case 1:
		m := bars[0]
		if m.Inclusive(nb) {
			return replaceLast(bars, merge(m, b, d)), d
		}
		switch {
		case b.High > m.High:
			d = model.Up
		case b.Low < m.Low:
			d = model.Down
		}
		nb.Direction = d
		return append(bars, nb), d
	}

	m1, m2 := bars[len(bars)-2], bars[len(bars)-1]
	switch {
	case m2.High > m1.High:
		d = model.Up
	case m2.Low < m1.Low:
		d = model.Down
	}

	if m2.Inclusive(nb) {
		return replaceLast(bars, merge(m2, b, d)), d
	}
	nb.Direction = d
	return append(bars, nb), d
}

// merge absorbs b into m. Up keeps the higher high and higher low, Down the
// lower of both. Open/close carry the sign of the absorbed bar.
func merge(m model.NewBar, b model.RawBar, d model.Direction) model.NewBar {
	var high, low float64
	if d == model.Up {
		high, low = max(m.High, b.High), max(m.Low, b.Low)
	} else {
		high, low = min(m.High, b.High), min(m.Low, b.Low)
	}
	open, closePrice := low, high
	if b.Open > b.Close {
		open, closePrice = high, low
	}

	elements := make([]model.RawBar, 0, len(m.Elements)+1)
	var vol, amount float64
	for _, e := range m.Elements {
		if e.DT.Equal(b.DT) {
			continue
		}
		elements = append(elements, e)
		vol += e.Volume
		amount += e.Amount
	}
	elements = append(elements, b)

	return model.NewBar{
		Symbol:    b.Symbol,
		ID:        m.ID,
		DT:        b.DT,
		Freq:      b.Freq,
		Open:      open,
		Close:     closePrice,
		High:      high,
		Low:       low,
		Volume:    vol + b.Volume,
		Amount:    amount + b.Amount,
		Direction: d,
		Elements:  elements,
	}
}

func replaceLast(bars []model.NewBar, nb model.NewBar) []model.NewBar {
	out := slices.Clone(bars)
	out[len(out)-1] = nb
	return out
}
