// Package trader composes one bar generator with one structure engine per
// frequency. Base bars go into the generator; every bar it emits is fed to
// the engine of that frequency, so coarser engines only ever see closed bars.
//
// A Trader has a single writer. Any number of goroutines may read through
// View while updates are in flight.
package trader

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"czsc-engine/internal/bargen"
	"czsc-engine/internal/czsc"
	"czsc-engine/internal/freq"
	"czsc-engine/internal/metrics"
	"czsc-engine/internal/model"
)

// Config configures a Trader.
type Config struct {
	Symbol   string
	Base     freq.Freq
	Freqs    []freq.Freq // target frequencies, all coarser than Base
	MaxCount int         // generator retention per frequency; 0 = default
	CZSC     czsc.Config // shared by every engine

	Metrics *metrics.Metrics // optional
	Logger  *slog.Logger     // optional

	// OnBI is called for every stroke confirmed at any frequency.
	OnBI func(f freq.Freq, bi model.BI)
}

// Trader holds the generator and the per-frequency engines for one symbol.
type Trader struct {
	mu sync.RWMutex

	symbol string
	gen    *bargen.Generator
	czscs  map[freq.Freq]*czsc.CZSC
	freqs  []freq.Freq // base first

	prom *metrics.Metrics
	log  *slog.Logger
	onBI func(f freq.Freq, bi model.BI)

	// first engine error of the update in flight
	fanErr error
}

// New creates a Trader with empty engines.
func New(cfg Config) (*Trader, error) {
	gen, err := bargen.New(cfg.Base, cfg.Freqs, cfg.MaxCount)
	if err != nil {
		return nil, err
	}
	t := newTrader(cfg, gen)
	for _, f := range t.freqs {
		c, err := czsc.New(nil, t.engineConfig(cfg.CZSC))
		if err != nil {
			return nil, err
		}
		t.attach(f, c)
	}
	return t, nil
}

func newTrader(cfg Config, gen *bargen.Generator) *Trader {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	t := &Trader{
		symbol: cfg.Symbol,
		gen:    gen,
		czscs:  make(map[freq.Freq]*czsc.CZSC, len(gen.Freqs())+1),
		freqs:  append([]freq.Freq{gen.Base()}, gen.Freqs()...),
		prom:   cfg.Metrics,
		log:    log.With(slog.String("component", "trader"), slog.String("symbol", cfg.Symbol)),
		onBI:   cfg.OnBI,
	}
	gen.SetLogger(log)
	gen.Subscribe(t.route)
	if t.prom != nil {
		gen.OnClosed = func(f freq.Freq, _ model.RawBar) {
			t.prom.ClosedBars.WithLabelValues(f.String()).Inc()
		}
		gen.OnDropped = func(model.RawBar) {
			t.prom.DroppedBars.Inc()
		}
	}
	return t
}

func (t *Trader) engineConfig(cfg czsc.Config) czsc.Config {
	if cfg.Logger == nil {
		cfg.Logger = t.log
	}
	return cfg
}

// attach registers c as the engine of f and wires its hooks.
func (t *Trader) attach(f freq.Freq, c *czsc.CZSC) {
	label := f.String()
	c.OnBI = func(bi model.BI) {
		if t.prom != nil {
			t.prom.StrokesTotal.WithLabelValues(label).Inc()
		}
		if t.onBI != nil {
			t.onBI(f, bi)
		}
	}
	c.OnRetract = func(model.BI) {
		if t.prom != nil {
			t.prom.RetractionsTotal.WithLabelValues(label).Inc()
		}
	}
	c.OnSignalError = func(int, error) {
		if t.prom != nil {
			t.prom.SignalErrors.WithLabelValues(label).Inc()
		}
	}
	t.czscs[f] = c
}

// route feeds a bar emitted by the generator to its engine.
func (t *Trader) route(f freq.Freq, bar model.RawBar) {
	if t.fanErr != nil {
		return
	}
	c, ok := t.czscs[f]
	if !ok {
		return
	}
	if err := c.Update(bar); err != nil {
		t.fanErr = fmt.Errorf("trader: %s update: %w", f, err)
		return
	}
	if t.prom != nil {
		t.prom.BarsTotal.WithLabelValues(f.String()).Inc()
	}
}

// Update ingests one base bar. Errors from the generator leave every engine
// untouched; an engine error aborts the fan-out and is returned wrapped. In
// that case the generator and the engines fed before the failing one keep
// the bar, so the trader should be rebuilt from its last snapshot. The
// symbol is fixed by the first bar the generator accepts.
func (t *Trader) Update(bar model.RawBar) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	if t.symbol != "" && bar.Symbol != t.symbol {
		err := &model.DataError{DT: bar.DT, Reason: "symbol " + bar.Symbol + " differs from " + t.symbol}
		t.reject(err)
		return err
	}

	t.fanErr = nil
	err := t.gen.Update(bar)
	if err == nil {
		err = t.fanErr
	}
	t.fanErr = nil
	if err != nil {
		t.reject(err)
		return err
	}
	if _, ok := t.gen.LastDT(); ok && t.symbol == "" {
		t.symbol = bar.Symbol
	}

	if t.prom != nil {
		t.prom.UpdateDur.Observe(time.Since(start).Seconds())
		if last, ok := t.gen.LastDT(); ok {
			t.prom.LastBarUnixTS.Set(float64(last.Unix()))
		}
	}
	return nil
}

func (t *Trader) reject(err error) {
	t.log.Debug("bar rejected", slog.Any("error", err))
	if t.prom != nil {
		t.prom.RejectedBars.WithLabelValues(errorKind(err)).Inc()
	}
}

// errorKind labels err by its model error kind.
func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrOrdering):
		return "ordering"
	case errors.Is(err, model.ErrData):
		return "data"
	case errors.Is(err, model.ErrState):
		return "state"
	case errors.Is(err, model.ErrConfig):
		return "config"
	}
	return "other"
}

// Symbol returns the traded symbol ("" until the first bar when unset).
func (t *Trader) Symbol() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.symbol
}

// Freqs returns the base frequency followed by the target frequencies.
func (t *Trader) Freqs() []freq.Freq {
	return slices.Clone(t.freqs)
}

// View runs fn with the engine of f under the read lock. fn must not call
// Update and must not retain c.
func (t *Trader) View(f freq.Freq, fn func(c *czsc.CZSC)) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.czscs[f]
	if !ok {
		return &model.ConfigError{Field: "freq", Reason: "trader has no engine for " + f.String()}
	}
	fn(c)
	return nil
}

// BIList returns the strokes of f. The slice is never modified afterwards.
func (t *Trader) BIList(f freq.Freq) []model.BI {
	var out []model.BI
	_ = t.View(f, func(c *czsc.CZSC) { out = c.BIList() })
	return out
}

// Bars returns the generator's retained bars of f, the forming one last.
func (t *Trader) Bars(f freq.Freq) []model.RawBar {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gen.Bars(f)
}

// Signals merges the signal results of every frequency, keyed "freq:name".
func (t *Trader) Signals() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]any)
	for _, f := range t.freqs {
		for k, v := range t.czscs[f].Signals() {
			out[f.String()+":"+k] = v
		}
	}
	return out
}

// LastDT returns the dt of the last accepted base bar.
func (t *Trader) LastDT() (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gen.LastDT()
}
