// Package export writes strokes, segments and pivots to CSV, JSON or
// Parquet files for offline analysis.
package export

import (
	"czsc-engine/internal/freq"
	"czsc-engine/internal/model"
)

// BIRow is the flat form of a stroke. Times are Unix seconds.
type BIRow struct {
	Symbol      string  `json:"symbol" parquet:"symbol"`
	Freq        string  `json:"freq" parquet:"freq"`
	Direction   string  `json:"direction" parquet:"direction"`
	SDT         int64   `json:"sdt" parquet:"sdt"`
	EDT         int64   `json:"edt" parquet:"edt"`
	Start       float64 `json:"start" parquet:"start"`
	End         float64 `json:"end" parquet:"end"`
	High        float64 `json:"high" parquet:"high"`
	Low         float64 `json:"low" parquet:"low"`
	Length      int64   `json:"length" parquet:"length"`
	PowerPrice  float64 `json:"power_price" parquet:"power_price"`
	PowerVolume float64 `json:"power_volume" parquet:"power_volume"`
	Change      float64 `json:"change" parquet:"change"`
	SNR         float64 `json:"snr" parquet:"snr"`
	Slope       float64 `json:"slope" parquet:"slope"`
	RSQ         float64 `json:"rsq" parquet:"rsq"`
}

var biHeader = []string{
	"symbol", "freq", "direction", "sdt", "edt", "start", "end", "high", "low",
	"length", "power_price", "power_volume", "change", "snr", "slope", "rsq",
}

func (r BIRow) record() []string {
	return []string{
		r.Symbol, r.Freq, r.Direction, intStr(r.SDT), intStr(r.EDT),
		floatStr(r.Start), floatStr(r.End), floatStr(r.High), floatStr(r.Low),
		intStr(r.Length), floatStr(r.PowerPrice), floatStr(r.PowerVolume),
		floatStr(r.Change), floatStr(r.SNR), floatStr(r.Slope), floatStr(r.RSQ),
	}
}

// BIRows flattens strokes of symbol at f.
func BIRows(symbol string, f freq.Freq, bis []model.BI) []BIRow {
	out := make([]BIRow, len(bis))
	for i, b := range bis {
		out[i] = BIRow{
			Symbol:      symbol,
			Freq:        f.String(),
			Direction:   string(b.Direction),
			SDT:         b.SDT.Unix(),
			EDT:         b.EDT.Unix(),
			Start:       b.FxA.Fx,
			End:         b.FxB.Fx,
			High:        b.High,
			Low:         b.Low,
			Length:      int64(b.Length),
			PowerPrice:  b.PowerPrice,
			PowerVolume: b.PowerVolume,
			Change:      b.Change,
			SNR:         b.SNR,
			Slope:       b.Slope,
			RSQ:         b.RSQ,
		}
	}
	return out
}

// XDRow is the flat form of a segment.
type XDRow struct {
	Symbol    string  `json:"symbol" parquet:"symbol"`
	Freq      string  `json:"freq" parquet:"freq"`
	Direction string  `json:"direction" parquet:"direction"`
	SDT       int64   `json:"sdt" parquet:"sdt"`
	EDT       int64   `json:"edt" parquet:"edt"`
	Start     float64 `json:"start" parquet:"start"`
	End       float64 `json:"end" parquet:"end"`
	High      float64 `json:"high" parquet:"high"`
	Low       float64 `json:"low" parquet:"low"`
	Strokes   int64   `json:"strokes" parquet:"strokes"`
}

var xdHeader = []string{"symbol", "freq", "direction", "sdt", "edt", "start", "end", "high", "low", "strokes"}

func (r XDRow) record() []string {
	return []string{
		r.Symbol, r.Freq, r.Direction, intStr(r.SDT), intStr(r.EDT),
		floatStr(r.Start), floatStr(r.End), floatStr(r.High), floatStr(r.Low), intStr(r.Strokes),
	}
}

// XDRows flattens segments of symbol at f.
func XDRows(symbol string, f freq.Freq, xds []model.XD) []XDRow {
	out := make([]XDRow, len(xds))
	for i, x := range xds {
		out[i] = XDRow{
			Symbol:    symbol,
			Freq:      f.String(),
			Direction: string(x.Direction),
			SDT:       x.SDT.Unix(),
			EDT:       x.EDT.Unix(),
			Start:     x.Start,
			End:       x.End,
			High:      x.High,
			Low:       x.Low,
			Strokes:   int64(len(x.BIs)),
		}
	}
	return out
}

// ZSRow is the flat form of a pivot.
type ZSRow struct {
	Symbol  string  `json:"symbol" parquet:"symbol"`
	Freq    string  `json:"freq" parquet:"freq"`
	SDT     int64   `json:"sdt" parquet:"sdt"`
	EDT     int64   `json:"edt" parquet:"edt"`
	ZG      float64 `json:"zg" parquet:"zg"`
	ZD      float64 `json:"zd" parquet:"zd"`
	ZZ      float64 `json:"zz" parquet:"zz"`
	GG      float64 `json:"gg" parquet:"gg"`
	G       float64 `json:"g" parquet:"g"`
	D       float64 `json:"d" parquet:"d"`
	DD      float64 `json:"dd" parquet:"dd"`
	Members int64   `json:"members" parquet:"members"`
	Closed  bool    `json:"closed" parquet:"closed"`
	Third   string  `json:"third,omitempty" parquet:"third,optional"`
}

var zsHeader = []string{"symbol", "freq", "sdt", "edt", "zg", "zd", "zz", "gg", "g", "d", "dd", "members", "closed", "third"}

func (r ZSRow) record() []string {
	closed := "false"
	if r.Closed {
		closed = "true"
	}
	return []string{
		r.Symbol, r.Freq, intStr(r.SDT), intStr(r.EDT),
		floatStr(r.ZG), floatStr(r.ZD), floatStr(r.ZZ),
		floatStr(r.GG), floatStr(r.G), floatStr(r.D), floatStr(r.DD),
		intStr(r.Members), closed, r.Third,
	}
}

// ZSRows flattens pivots of symbol at f.
func ZSRows(symbol string, f freq.Freq, zss []model.ZS) []ZSRow {
	out := make([]ZSRow, len(zss))
	for i, z := range zss {
		out[i] = ZSRow{
			Symbol:  symbol,
			Freq:    f.String(),
			SDT:     z.SDT.Unix(),
			EDT:     z.EDT.Unix(),
			ZG:      z.ZG,
			ZD:      z.ZD,
			ZZ:      z.ZZ(),
			GG:      z.GG,
			G:       z.G,
			D:       z.D,
			DD:      z.DD,
			Members: int64(len(z.Members)),
			Closed:  z.Closed(),
			Third:   string(z.Third),
		}
	}
	return out
}
