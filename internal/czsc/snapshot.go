package czsc

import (
	"encoding/json"
	"fmt"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/model"
)

// SnapshotVersion is bumped whenever the serialized layout changes.
const SnapshotVersion = 1

// Snapshot holds the full state of a CZSC. Segments, pivots and signals are
// derived and not stored.
type Snapshot struct {
	Version int       `json:"version"`
	Symbol  string    `json:"symbol"`
	Freq    freq.Freq `json:"freq"`
	Config  Config    `json:"config"`
	State   State     `json:"state"`
	Prev    *State    `json:"prev,omitempty"`
}

// MarshalJSON serializes the snapshot to JSON.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	type Alias Snapshot
	return json.Marshal((*Alias)(s))
}

// UnmarshalJSON deserializes the snapshot from JSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type Alias Snapshot
	return json.Unmarshal(data, (*Alias)(s))
}

// Snapshot captures the facade state.
func (c *CZSC) Snapshot() *Snapshot {
	snap := &Snapshot{
		Version: SnapshotVersion,
		Symbol:  c.symbol,
		Freq:    c.freq,
		Config:  c.cfg,
		State:   c.cur,
	}
	if c.hasPrev {
		prev := c.prev
		snap.Prev = &prev
	}
	return snap
}

// Restore rebuilds a facade from a snapshot. Structural settings come from
// the snapshot; the logger, verbosity and signal functions come from cfg.
func Restore(snap *Snapshot, cfg Config) (*CZSC, error) {
	if snap == nil {
		return nil, fmt.Errorf("czsc: nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("czsc: unsupported snapshot version %d", snap.Version)
	}

	merged := snap.Config
	merged.Logger = cfg.Logger
	merged.Signals = cfg.Signals
	merged.Verbose = cfg.Verbose
	merged, err := merged.withDefaults()
	if err != nil {
		return nil, err
	}

	c := &CZSC{
		symbol:  snap.Symbol,
		freq:    snap.Freq,
		cfg:     merged,
		log:     merged.Logger.With("component", "czsc"),
		cur:     snap.State.clip(),
		signals: map[string]any{},
	}
	if snap.Prev != nil {
		c.prev, c.hasPrev = *snap.Prev, true
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	c.derive()
	c.runSignals()
	return c, nil
}

// check rejects snapshots whose state breaks basic ordering.
func (c *CZSC) check() error {
	bars := c.cur.BarsRaw
	for i := 1; i < len(bars); i++ {
		if !bars[i].DT.After(bars[i-1].DT) {
			return &model.OrderingError{Last: bars[i-1].DT, Got: bars[i].DT}
		}
	}
	bis := c.cur.BIList
	for i := 1; i < len(bis); i++ {
		if bis[i].Direction == bis[i-1].Direction {
			return &model.StateError{Reason: "snapshot strokes do not alternate"}
		}
	}
	return nil
}
