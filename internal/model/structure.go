package model

import (
	"fmt"
	"time"
)

// Direction of a merged bar, stroke or segment.
type Direction string

const (
	Up   Direction = "向上"
	Down Direction = "向下"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Up {
		return Down
	}
	return Up
}

// Mark distinguishes top (G) and bottom (D) fractals.
type Mark string

const (
	Top    Mark = "顶分型"
	Bottom Mark = "底分型"
)

// Power labels a fractal's strength.
type Power string

const (
	Strong Power = "强"
	Weak   Power = "弱"
)

// FX is a top or bottom fractal over three consecutive merged bars.
// Elements is [left, mid, right]. FxHigh/FxLow bound the fractal's price band.
type FX struct {
	Symbol   string    `json:"symbol"`
	DT       time.Time `json:"dt"`
	Mark     Mark      `json:"mark"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Fx       float64   `json:"fx"`
	FxHigh   float64   `json:"fx_high"`
	FxLow    float64   `json:"fx_low"`
	Power    Power     `json:"power"`
	Elements []NewBar  `json:"elements"`
}

// Left, Mid and Right return the fractal's merged bars.
func (f FX) Left() NewBar  { return f.Elements[0] }
func (f FX) Mid() NewBar   { return f.Elements[1] }
func (f FX) Right() NewBar { return f.Elements[2] }

// BandOverlaps reports whether the two fractal bands share any price.
func (f FX) BandOverlaps(o FX) bool {
	return f.FxLow <= o.FxHigh && o.FxLow <= f.FxHigh
}

func (f FX) String() string {
	return fmt.Sprintf("FX(%s %s fx=%.4f)", f.Mark, f.DT.Format(time.DateTime), f.Fx)
}

// Leg is the price-range view of a stroke or segment that pivots are built on.
type Leg struct {
	SDT       time.Time `json:"sdt"`
	EDT       time.Time `json:"edt"`
	Direction Direction `json:"direction"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
}

// BI is a stroke between two opposite fractals. Bars runs from FxA's mid to
// FxB's mid inclusive.
type BI struct {
	Symbol    string    `json:"symbol"`
	FxA       FX        `json:"fx_a"`
	FxB       FX        `json:"fx_b"`
	Fxs       []FX      `json:"fxs"`
	Direction Direction `json:"direction"`
	Bars      []NewBar  `json:"bars"`

	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	SDT         time.Time `json:"sdt"`
	EDT         time.Time `json:"edt"`
	Length      int       `json:"length"`
	PowerPrice  float64   `json:"power_price"`
	PowerVolume float64   `json:"power_volume"`
	Change      float64   `json:"change"`
	SNR         float64   `json:"snr"`
	Slope       float64   `json:"slope"`
	RSQ         float64   `json:"rsq"`
}

// Leg returns the stroke's price range.
func (b BI) Leg() Leg {
	return Leg{SDT: b.SDT, EDT: b.EDT, Direction: b.Direction, High: b.High, Low: b.Low}
}

// RawBars returns every raw bar covered by the stroke's merged bars.
func (b BI) RawBars() []RawBar {
	var out []RawBar
	for _, nb := range b.Bars {
		out = append(out, nb.Elements...)
	}
	return out
}

func (b BI) String() string {
	return fmt.Sprintf("BI(%s %s~%s %.4f->%.4f len=%d)", b.Direction,
		b.SDT.Format(time.DateTime), b.EDT.Format(time.DateTime), b.FxA.Fx, b.FxB.Fx, b.Length)
}

// XD is a segment grouping an odd number (>= 3) of strokes.
type XD struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	SDT       time.Time `json:"sdt"`
	EDT       time.Time `json:"edt"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	BIs       []BI      `json:"bis"`
}

// Leg returns the segment's price range.
func (x XD) Leg() Leg {
	return Leg{SDT: x.SDT, EDT: x.EDT, Direction: x.Direction, High: x.High, Low: x.Low}
}

// Third tags the escape member of a closed pivot.
type Third string

const (
	ThirdNone Third = ""
	ThirdBuy  Third = "三买"
	ThirdSell Third = "三卖"
)

// ZS is a pivot: consecutive legs overlapping in [ZD, ZG].
type ZS struct {
	Symbol  string    `json:"symbol"`
	SDT     time.Time `json:"sdt"`
	EDT     time.Time `json:"edt"`
	ZG      float64   `json:"zg"`
	ZD      float64   `json:"zd"`
	GG      float64   `json:"gg"`
	G       float64   `json:"g"`
	D       float64   `json:"d"`
	DD      float64   `json:"dd"`
	Members []Leg     `json:"members"`
	Escape  *Leg      `json:"escape,omitempty"`
	Third   Third     `json:"third,omitempty"`
}

// ZZ is the pivot midpoint.
func (z ZS) ZZ() float64 {
	return z.ZD + (z.ZG-z.ZD)/2
}

// Closed reports whether a later leg escaped the pivot.
func (z ZS) Closed() bool {
	return z.Escape != nil
}
