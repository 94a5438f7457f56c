// Package ingest turns vendor bar records into validated RawBars.
//
// Prices and volumes are carried as decimals until the last step so that a
// CSV value like "10.10" is parsed once, exactly, and rounded to float64 only
// when the bar is built.
package ingest

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/model"
)

// Record is one vendor bar row.
type Record struct {
	Symbol string
	DT     time.Time
	Freq   freq.Freq
	Open   decimal.Decimal
	Close  decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Volume decimal.Decimal
	Amount decimal.Decimal
}

// NewRawBar builds a validated bar from r. The bar's ID is left at zero;
// engines assign their own.
func NewRawBar(r Record) (model.RawBar, error) {
	if r.Symbol == "" {
		return model.RawBar{}, &model.DataError{DT: r.DT, Reason: "missing symbol"}
	}
	bar := model.RawBar{
		Symbol: r.Symbol,
		DT:     r.DT,
		Freq:   r.Freq,
		Open:   r.Open.InexactFloat64(),
		Close:  r.Close.InexactFloat64(),
		High:   r.High.InexactFloat64(),
		Low:    r.Low.InexactFloat64(),
		Volume: r.Volume.InexactFloat64(),
		Amount: r.Amount.InexactFloat64(),
	}
	if err := bar.Validate(); err != nil {
		return model.RawBar{}, err
	}
	return bar, nil
}

// FormatStandardKline converts records of one symbol into bars of f, sorted
// by dt and numbered from 0. When two records share a dt the later one wins.
func FormatStandardKline(recs []Record, f freq.Freq) ([]model.RawBar, error) {
	if !f.Valid() {
		return nil, &model.ConfigError{Field: "freq", Reason: "unknown frequency " + f.String()}
	}
	sorted := slices.Clone(recs)
	slices.SortStableFunc(sorted, func(a, b Record) int { return a.DT.Compare(b.DT) })

	bars := make([]model.RawBar, 0, len(sorted))
	for i, r := range sorted {
		r.Freq = f
		if len(bars) > 0 && r.Symbol != bars[0].Symbol {
			return nil, &model.DataError{DT: r.DT, Reason: fmt.Sprintf("mixed symbols %s and %s", bars[0].Symbol, r.Symbol)}
		}
		bar, err := NewRawBar(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if n := len(bars); n > 0 && bars[n-1].DT.Equal(bar.DT) {
			bar.ID = bars[n-1].ID
			bars[n-1] = bar
			continue
		}
		bar.ID = len(bars)
		bars = append(bars, bar)
	}
	return bars, nil
}
