package bargen

import (
	"fmt"
	"slices"
	"time"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/model"
)

// SnapshotVersion is bumped whenever the serialized layout changes.
const SnapshotVersion = 1

// WindowSnapshot holds the forming bar of one target frequency.
type WindowSnapshot struct {
	Freq    freq.Freq      `json:"freq"`
	Open    bool           `json:"open"`
	End     time.Time      `json:"end"`
	Members []model.RawBar `json:"members,omitempty"`
	Bar     model.RawBar   `json:"bar"`
	Emitted bool           `json:"emitted"`
}

// Snapshot holds the full state of a Generator. Subscribers and hooks are
// not part of it.
type Snapshot struct {
	Version  int                          `json:"version"`
	Base     freq.Freq                    `json:"base"`
	Freqs    []freq.Freq                  `json:"freqs"`
	MaxCount int                          `json:"max_count"`
	LastDT   time.Time                    `json:"last_dt"`
	HasLast  bool                         `json:"has_last"`
	Windows  []WindowSnapshot             `json:"windows"`
	Bars     map[freq.Freq][]model.RawBar `json:"bars"`
	NextID   map[freq.Freq]int            `json:"next_id"`
}

// Snapshot captures the generator state.
func (g *Generator) Snapshot() *Snapshot {
	snap := &Snapshot{
		Version:  SnapshotVersion,
		Base:     g.base,
		Freqs:    slices.Clone(g.freqs),
		MaxCount: g.maxCount,
		LastDT:   g.lastDT,
		HasLast:  g.hasLast,
		Windows:  make([]WindowSnapshot, len(g.windows)),
		Bars:     make(map[freq.Freq][]model.RawBar, len(g.bars)),
		NextID:   make(map[freq.Freq]int, len(g.nextID)),
	}
	for i, w := range g.windows {
		snap.Windows[i] = WindowSnapshot{
			Freq:    g.freqs[i],
			Open:    w.open,
			End:     w.end,
			Members: slices.Clone(w.members),
			Bar:     w.bar,
			Emitted: w.emitted,
		}
	}
	for f, bars := range g.bars {
		snap.Bars[f] = slices.Clone(bars)
	}
	for f, id := range g.nextID {
		snap.NextID[f] = id
	}
	return snap
}

// Restore rebuilds a Generator from a snapshot. The frequency set is taken
// from the snapshot.
func Restore(snap *Snapshot) (*Generator, error) {
	if snap == nil {
		return nil, fmt.Errorf("bargen: nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("bargen: unsupported snapshot version %d", snap.Version)
	}
	g, err := New(snap.Base, snap.Freqs, snap.MaxCount)
	if err != nil {
		return nil, err
	}
	if len(snap.Windows) != len(snap.Freqs) {
		return nil, fmt.Errorf("bargen: snapshot has %d windows for %d freqs", len(snap.Windows), len(snap.Freqs))
	}
	for i, ws := range snap.Windows {
		if ws.Freq != g.freqs[i] {
			return nil, fmt.Errorf("bargen: window %d is %s, want %s", i, ws.Freq, g.freqs[i])
		}
		g.windows[i] = window{
			open:    ws.Open,
			end:     ws.End,
			members: slices.Clone(ws.Members),
			bar:     ws.Bar,
			emitted: ws.Emitted,
		}
	}
	for f, bars := range snap.Bars {
		g.bars[f] = slices.Clone(bars)
	}
	for f, id := range snap.NextID {
		g.nextID[f] = id
	}
	g.lastDT, g.hasLast = snap.LastDT, snap.HasLast
	return g, nil
}
