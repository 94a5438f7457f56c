// Package bargen provides an incremental multi-frequency bar generator.
// It consumes closed base-frequency bars and maintains one forming bar per
// target frequency, updated in O(1) per bar per frequency. When a target
// window completes (its last base slot arrives) or a bar of a later window
// arrives, the window's bar is emitted to every subscriber.
package bargen

import (
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/model"
)

// DefaultMaxCount bounds the bars retained per frequency.
const DefaultMaxCount = 5000

// Subscriber receives closed bars. Base-frequency bars are delivered as they
// arrive; a same-dt replay is delivered again with the same dt.
type Subscriber func(f freq.Freq, bar model.RawBar)

// window holds the forming bar of one target frequency.
type window struct {
	open    bool
	end     time.Time
	members []model.RawBar // base bars folded into bar
	bar     model.RawBar
	emitted bool
}

// Generator fans base bars out to a fixed set of coarser frequencies.
// Designed for a single writer; a concurrent Update returns a StateError.
type Generator struct {
	base     freq.Freq
	freqs    []freq.Freq
	maxCount int

	windows []window
	bars    map[freq.Freq][]model.RawBar
	nextID  map[freq.Freq]int
	lastDT  time.Time
	hasLast bool

	subs []Subscriber
	busy atomic.Bool
	log  *slog.Logger

	// Hooks (optional)
	OnClosed  func(f freq.Freq, bar model.RawBar) // called for every emitted bar
	OnDropped func(bar model.RawBar)              // called for out-of-session base bars
}

// New creates a generator for base bars at base, synthesising every
// frequency in freqs. maxCount <= 0 selects DefaultMaxCount.
func New(base freq.Freq, freqs []freq.Freq, maxCount int) (*Generator, error) {
	if !base.Valid() {
		return nil, &model.ConfigError{Field: "base_freq", Reason: "unknown frequency " + base.String()}
	}
	seen := make(map[freq.Freq]bool, len(freqs))
	for _, f := range freqs {
		if !f.Valid() {
			return nil, &model.ConfigError{Field: "freqs", Reason: "unknown frequency " + f.String()}
		}
		if !f.CoarserThan(base) {
			return nil, &model.ConfigError{Field: "freqs", Reason: f.String() + " is not coarser than " + base.String()}
		}
		if seen[f] {
			return nil, &model.ConfigError{Field: "freqs", Reason: "duplicate " + f.String()}
		}
		seen[f] = true
	}
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}

	g := &Generator{
		base:     base,
		freqs:    slices.Clone(freqs),
		maxCount: maxCount,
		windows:  make([]window, len(freqs)),
		bars:     make(map[freq.Freq][]model.RawBar, len(freqs)+1),
		nextID:   make(map[freq.Freq]int, len(freqs)+1),
		log:      slog.Default().With(slog.String("component", "bargen")),
	}
	return g, nil
}

// SetLogger replaces the diagnostic logger.
func (g *Generator) SetLogger(l *slog.Logger) {
	g.log = l.With(slog.String("component", "bargen"))
}

// Subscribe registers fn for closed bars of every frequency, base included.
func (g *Generator) Subscribe(fn Subscriber) {
	g.subs = append(g.subs, fn)
}

// Base returns the base frequency.
func (g *Generator) Base() freq.Freq { return g.base }

// Freqs returns the target frequencies.
func (g *Generator) Freqs() []freq.Freq { return g.freqs }

// Bars returns the retained bars of f; the last one may still be forming.
// Callers must not mutate the returned slice.
func (g *Generator) Bars(f freq.Freq) []model.RawBar { return g.bars[f] }

// LastDT returns the dt of the last accepted base bar.
func (g *Generator) LastDT() (time.Time, bool) { return g.lastDT, g.hasLast }

// Update ingests one base bar. A bar whose dt equals the last accepted one
// replaces it; an older bar is rejected with an OrderingError. Bars outside
// the trading sessions are dropped.
func (g *Generator) Update(bar model.RawBar) error {
	if !g.busy.CompareAndSwap(false, true) {
		return &model.StateError{Reason: "concurrent bar generator update"}
	}
	defer g.busy.Store(false)

	if bar.Freq == freq.Unknown {
		bar.Freq = g.base
	}
	if bar.Freq != g.base {
		return &model.DataError{DT: bar.DT, Reason: "bar freq " + bar.Freq.String() + " differs from base " + g.base.String()}
	}
	if err := bar.Validate(); err != nil {
		return err
	}
	if g.hasLast && bar.DT.Before(g.lastDT) {
		return &model.OrderingError{Last: g.lastDT, Got: bar.DT}
	}
	baseEnd, ok := freq.EndDT(bar.DT, g.base)
	if !ok {
		g.log.Debug("dropping out-of-session bar", slog.String("symbol", bar.Symbol), slog.Time("dt", bar.DT))
		if g.OnDropped != nil {
			g.OnDropped(bar)
		}
		return nil
	}

	replace := g.hasLast && bar.DT.Equal(g.lastDT)
	g.lastDT, g.hasLast = bar.DT, true

	bar = g.pushBase(bar, replace)
	g.emit(g.base, bar)

	for i, f := range g.freqs {
		end, _ := freq.EndDT(bar.DT, f)
		w := &g.windows[i]

		switch {
		case replace && w.open:
			if n := len(w.members); n > 0 && w.members[n-1].DT.Equal(bar.DT) {
				w.members = append(slices.Clip(w.members[:n-1]), bar)
			} else {
				w.members = append(w.members, bar)
			}
			w.bar = refold(w.bar, w.members)
			g.replaceLast(f, w.bar)

		case w.open && end.Equal(w.end):
			w.members = append(w.members, bar)
			w.bar = fold(w.bar, bar)
			g.replaceLast(f, w.bar)

		default:
			// New window: finalize the previous one if nothing closed it yet.
			if w.open && !w.emitted {
				g.emit(f, w.bar)
			}
			id := g.nextID[f]
			g.nextID[f] = id + 1
			*w = window{
				open:    true,
				end:     end,
				members: []model.RawBar{bar},
				bar:     openBar(bar, f, end, id),
			}
			g.appendBar(f, w.bar)
		}

		// The base slot that ends the window completes it.
		if baseEnd.Equal(w.end) && (!w.emitted || replace) {
			w.emitted = true
			g.emit(f, w.bar)
		}
	}
	return nil
}

// pushBase records the base bar, assigning its id.
func (g *Generator) pushBase(bar model.RawBar, replace bool) model.RawBar {
	bars := g.bars[g.base]
	if replace && len(bars) > 0 {
		bar.ID = bars[len(bars)-1].ID
		g.replaceLast(g.base, bar)
		return bar
	}
	bar.ID = g.nextID[g.base]
	g.nextID[g.base] = bar.ID + 1
	g.appendBar(g.base, bar)
	return bar
}

func (g *Generator) appendBar(f freq.Freq, bar model.RawBar) {
	bars := append(g.bars[f], bar)
	if len(bars) > g.maxCount {
		// copy-on-trim: slices handed to readers keep their contents
		bars = slices.Clone(bars[len(bars)-g.maxCount:])
	}
	g.bars[f] = bars
}

func (g *Generator) replaceLast(f freq.Freq, bar model.RawBar) {
	bars := g.bars[f]
	if len(bars) == 0 {
		g.bars[f] = []model.RawBar{bar}
		return
	}
	out := slices.Clone(bars)
	out[len(out)-1] = bar
	g.bars[f] = out
}

func (g *Generator) emit(f freq.Freq, bar model.RawBar) {
	for _, fn := range g.subs {
		fn(f, bar)
	}
	if g.OnClosed != nil {
		g.OnClosed(f, bar)
	}
}

// openBar starts a target bar from its first base bar.
func openBar(b model.RawBar, f freq.Freq, end time.Time, id int) model.RawBar {
	return model.RawBar{
		Symbol: b.Symbol,
		ID:     id,
		DT:     end,
		Freq:   f,
		Open:   b.Open,
		Close:  b.Close,
		High:   b.High,
		Low:    b.Low,
		Volume: b.Volume,
		Amount: b.Amount,
	}
}

// fold merges one more base bar into a forming target bar (O(1)).
func fold(cur, b model.RawBar) model.RawBar {
	if b.High > cur.High {
		cur.High = b.High
	}
	if b.Low < cur.Low {
		cur.Low = b.Low
	}
	cur.Close = b.Close
	cur.Volume += b.Volume
	cur.Amount += b.Amount
	return cur
}

// refold rebuilds a forming bar from its retained base bars.
func refold(cur model.RawBar, members []model.RawBar) model.RawBar {
	out := openBar(members[0], cur.Freq, cur.DT, cur.ID)
	for _, b := range members[1:] {
		out = fold(out, b)
	}
	return out
}
