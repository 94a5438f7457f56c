package trader

import (
	"encoding/json"
	"fmt"

	"czsc-engine/internal/bargen"
	"czsc-engine/internal/czsc"
	"czsc-engine/internal/freq"
)

// SnapshotVersion is bumped whenever the serialized layout changes.
const SnapshotVersion = 1

// Snapshot holds the full state of a Trader.
type Snapshot struct {
	Version   int                           `json:"version"`
	Symbol    string                        `json:"symbol"`
	Generator *bargen.Snapshot              `json:"generator"`
	Engines   map[freq.Freq]*czsc.Snapshot `json:"engines"`
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

// Snapshot captures the trader state under the read lock.
func (t *Trader) Snapshot() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := &Snapshot{
		Version:   SnapshotVersion,
		Symbol:    t.symbol,
		Generator: t.gen.Snapshot(),
		Engines:   make(map[freq.Freq]*czsc.Snapshot, len(t.czscs)),
	}
	for f, c := range t.czscs {
		snap.Engines[f] = c.Snapshot()
	}
	return snap
}

// RestoreTrader rebuilds a trader from a snapshot. Frequencies and retention
// come from the snapshot; cfg supplies the engine config, metrics, logger and
// hooks.
func RestoreTrader(snap *Snapshot, cfg Config) (*Trader, error) {
	if snap == nil {
		return nil, fmt.Errorf("trader: nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("trader: unsupported snapshot version %d", snap.Version)
	}
	gen, err := bargen.Restore(snap.Generator)
	if err != nil {
		return nil, fmt.Errorf("trader: restore generator: %w", err)
	}

	cfg.Symbol = snap.Symbol
	t := newTrader(cfg, gen)
	for _, f := range t.freqs {
		es, ok := snap.Engines[f]
		if !ok {
			return nil, fmt.Errorf("trader: snapshot has no engine for %s", f)
		}
		c, err := czsc.Restore(es, t.engineConfig(cfg.CZSC))
		if err != nil {
			return nil, fmt.Errorf("trader: restore %s engine: %w", f, err)
		}
		t.attach(f, c)
	}
	if len(snap.Engines) != len(t.freqs) {
		return nil, fmt.Errorf("trader: snapshot has %d engines, want %d", len(snap.Engines), len(t.freqs))
	}
	return t, nil
}
