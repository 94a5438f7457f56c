// Package czsc is the single-frequency structure engine. A CZSC consumes
// closed bars of one frequency and maintains the inclusion-free bar sequence,
// fractals, strokes (BI), segments (XD) and pivots (ZS) incrementally.
//
// A CZSC is designed for a single writer. Readers on other goroutines must be
// synchronised by the caller; the slices returned by the readers are never
// modified after they are handed out.
package czsc

import (
	"log/slog"
	"slices"
	"sync/atomic"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/model"
	"czsc-engine/internal/pivot"
	"czsc-engine/internal/segment"
)

// State is the part of a CZSC that an update rewrites.
type State struct {
	BarsRaw   []model.RawBar  `json:"bars_raw"`
	BarsUBI   []model.NewBar  `json:"bars_ubi"`
	BIList    []model.BI      `json:"bi_list"`
	Direction model.Direction `json:"direction"`
}

// clip caps every slice so that later appends reallocate.
func (s State) clip() State {
	s.BarsRaw = slices.Clip(s.BarsRaw)
	s.BarsUBI = slices.Clip(s.BarsUBI)
	s.BIList = slices.Clip(s.BIList)
	return s
}

// events collects what an update changed, for the hooks.
type events struct {
	added     []model.BI
	retracted []model.BI
}

// CZSC is the structure engine for one symbol at one frequency.
type CZSC struct {
	symbol string
	freq   freq.Freq
	cfg    Config
	log    *slog.Logger

	cur     State
	prev    State // checkpoint before the last append
	hasPrev bool

	xdList  []model.XD
	zsList  []model.ZS
	signals map[string]any

	busy atomic.Bool

	// Hooks (optional). OnBI may fire again for the same stroke when the
	// last bar is replaced.
	OnBI          func(bi model.BI)
	OnRetract     func(bi model.BI)
	OnSignalError func(index int, err error)
}

// New creates a CZSC and feeds it bars in order.
func New(bars []model.RawBar, cfg Config) (*CZSC, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	c := &CZSC{
		cfg:     cfg,
		log:     cfg.Logger.With(slog.String("component", "czsc")),
		signals: map[string]any{},
	}
	for _, b := range bars {
		if err := c.Update(b); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Update ingests one closed bar. A bar with the same dt as the last one
// replaces it; an older bar is rejected with an OrderingError. On error the
// state is unchanged.
func (c *CZSC) Update(bar model.RawBar) error {
	if !c.busy.CompareAndSwap(false, true) {
		return &model.StateError{Reason: "concurrent or re-entrant czsc update"}
	}
	defer c.busy.Store(false)

	if err := bar.Validate(); err != nil {
		return err
	}

	var base State
	replace := false
	if n := len(c.cur.BarsRaw); n > 0 {
		last := c.cur.BarsRaw[n-1]
		if bar.Symbol != c.symbol {
			return &model.DataError{DT: bar.DT, Reason: "symbol " + bar.Symbol + " differs from " + c.symbol}
		}
		if bar.Freq != c.freq {
			return &model.DataError{DT: bar.DT, Reason: "freq " + bar.Freq.String() + " differs from " + c.freq.String()}
		}
		if bar.DT.Before(last.DT) {
			return &model.OrderingError{Last: last.DT, Got: bar.DT}
		}
		if bar.DT.Equal(last.DT) {
			if !c.hasPrev {
				return &model.StateError{Reason: "no checkpoint to replace the last bar"}
			}
			replace = true
			bar.ID = last.ID
			base = c.prev.clip()
		} else {
			bar.ID = last.ID + 1
			base = c.cur
		}
	}

	next, ev := c.apply(base, bar)
	if !replace {
		c.prev, c.hasPrev = c.cur, true
	}
	if len(c.cur.BarsRaw) == 0 {
		c.symbol, c.freq = bar.Symbol, bar.Freq
	}
	c.cur = next
	c.derive()

	for _, bi := range ev.retracted {
		if c.cfg.Verbose {
			c.log.Info("stroke retracted", slog.String("symbol", c.symbol), slog.String("bi", bi.String()))
		}
		if c.OnRetract != nil {
			c.OnRetract(bi)
		}
	}
	for _, bi := range ev.added {
		if c.cfg.Verbose {
			c.log.Info("stroke confirmed", slog.String("symbol", c.symbol), slog.String("bi", bi.String()))
		}
		if c.OnBI != nil {
			c.OnBI(bi)
		}
	}
	c.runSignals()
	return nil
}

// apply appends bar to s and returns the new state. s is not modified.
func (c *CZSC) apply(s State, bar model.RawBar) (State, events) {
	var ev events
	s.BarsRaw = append(s.BarsRaw, bar)
	s.BarsUBI, s.Direction = removeInclude(s.BarsUBI, bar, s.Direction)
	s = c.updateBI(s, &ev)

	if len(s.BIList) > c.cfg.MaxBiNum {
		s.BIList = slices.Clone(s.BIList[len(s.BIList)-c.cfg.MaxBiNum:])
		cut := s.BIList[0].FxA.Left().Elements[0].DT
		if i := slices.IndexFunc(s.BarsRaw, func(b model.RawBar) bool { return !b.DT.Before(cut) }); i > 0 {
			s.BarsRaw = slices.Clone(s.BarsRaw[i:])
		}
	}
	return s, ev
}

// updateBI runs the stroke search over the unfinished bars.
func (c *CZSC) updateBI(s State, ev *events) State {
	ubi := s.BarsUBI
	if len(ubi) < 3 {
		return s
	}

	if len(s.BIList) == 0 {
		fxs := checkFXs(ubi, c.log)
		if len(fxs) == 0 {
			return s
		}
		fxA := fxs[0]
		for _, fx := range fxs {
			if fx.Mark != fxA.Mark {
				continue
			}
			if fxA.Mark == model.Bottom && fx.Low <= fxA.Low || fxA.Mark == model.Top && fx.High >= fxA.High {
				fxA = fx
			}
		}
		if i := indexOf(ubi, fxA.Left()); i > 0 {
			ubi = ubi[i:]
		}
		bi, rest := checkBI(ubi, c.cfg, c.log)
		if bi != nil {
			s.BIList = append(s.BIList, *bi)
			ev.added = append(ev.added, *bi)
		}
		s.BarsUBI = rest
		return s
	}

	if c.cfg.Verbose && len(ubi) > 100 {
		c.log.Info("long unfinished stretch", slog.String("symbol", c.symbol), slog.Int("bars", len(ubi)))
	}
	bi, rest := checkBI(ubi, c.cfg, c.log)
	s.BarsUBI = rest
	if bi != nil {
		s.BIList = append(s.BIList, *bi)
		ev.added = append(ev.added, *bi)
	}

	// Retract strokes whose end has been exceeded by a later merged bar.
	// Rebuilding from a retracted stroke can expose an earlier stroke that
	// is exceeded too, so this repeats.
	fresh := bi != nil
	for len(s.BIList) > 0 {
		last := s.BIList[len(s.BIList)-1]
		if !exceeded(last, s.BarsUBI) {
			break
		}
		n := len(last.Bars)
		rebuilt := make([]model.NewBar, 0, n+len(s.BarsUBI))
		rebuilt = append(rebuilt, last.FxA.Left())
		rebuilt = append(rebuilt, last.Bars[:n-1]...)
		for _, nb := range s.BarsUBI {
			if !nb.DT.Before(last.FxB.DT) {
				rebuilt = append(rebuilt, nb)
			}
		}
		s.BarsUBI = rebuilt
		s.BIList = slices.Clip(s.BIList[:len(s.BIList)-1])
		if fresh {
			// confirmed and invalidated by the same bar
			ev.added = ev.added[:len(ev.added)-1]
			fresh = false
		} else {
			ev.retracted = append(ev.retracted, last)
		}
	}
	return s
}

// exceeded reports a merged bar after bi's end fractal beyond bi's extreme.
func exceeded(bi model.BI, ubi []model.NewBar) bool {
	for _, nb := range ubi {
		if !nb.DT.After(bi.FxB.DT) {
			continue
		}
		if bi.Direction == model.Up && nb.High > bi.High || bi.Direction == model.Down && nb.Low < bi.Low {
			return true
		}
	}
	return false
}

// derive recomputes segments and pivots from the current strokes.
func (c *CZSC) derive() {
	c.xdList = segment.Build(c.cur.BIList, c.cfg.XDMode)

	var legs []model.Leg
	if c.cfg.ZSSource == ZSFromXD {
		legs = pivot.SegmentLegs(c.xdList)
	} else {
		legs = pivot.Legs(c.cur.BIList)
	}
	zs := pivot.Find(legs)
	for i := range zs {
		zs[i].Symbol = c.symbol
	}
	c.zsList = zs
}

// Symbol returns the symbol of the ingested bars.
func (c *CZSC) Symbol() string { return c.symbol }

// Freq returns the frequency of the ingested bars.
func (c *CZSC) Freq() freq.Freq { return c.freq }

// Config returns the resolved configuration.
func (c *CZSC) Config() Config { return c.cfg }

// Direction returns the direction of the last merged bar.
func (c *CZSC) Direction() model.Direction { return c.cur.Direction }

// BarsRaw returns the retained raw bars.
func (c *CZSC) BarsRaw() []model.RawBar { return c.cur.BarsRaw }

// BarsUBI returns the merged bars not yet covered by a confirmed stroke.
func (c *CZSC) BarsUBI() []model.NewBar { return c.cur.BarsUBI }

// BIList returns the strokes, oldest first. The last one is provisional.
func (c *CZSC) BIList() []model.BI { return c.cur.BIList }

// XDList returns the segments built from BIList.
func (c *CZSC) XDList() []model.XD { return c.xdList }

// ZSList returns the pivots built from strokes or segments.
func (c *CZSC) ZSList() []model.ZS { return c.zsList }

// LastBI returns the most recent stroke.
func (c *CZSC) LastBI() (model.BI, bool) {
	if len(c.cur.BIList) == 0 {
		return model.BI{}, false
	}
	return c.cur.BIList[len(c.cur.BIList)-1], true
}

// UBIFXs returns the fractals of the unfinished bars.
func (c *CZSC) UBIFXs() []model.FX {
	return checkFXs(c.cur.BarsUBI, nil)
}

// FXList returns every fractal: those inside strokes, then the ones formed
// after the last stroke.
func (c *CZSC) FXList() []model.FX {
	var fxs []model.FX
	for i, bi := range c.cur.BIList {
		if i == 0 {
			fxs = append(fxs, bi.Fxs...)
			continue
		}
		if len(bi.Fxs) > 1 {
			fxs = append(fxs, bi.Fxs[1:]...)
		}
	}
	for _, fx := range c.UBIFXs() {
		if len(fxs) == 0 || fx.DT.After(fxs[len(fxs)-1].DT) {
			fxs = append(fxs, fx)
		}
	}
	return fxs
}
