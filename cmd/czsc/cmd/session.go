package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"text/tabwriter"
	"time"

	"czsc-engine/internal/czsc"
	"czsc-engine/internal/freq"
	"czsc-engine/internal/metrics"
	"czsc-engine/internal/replay"
	sqlitestore "czsc-engine/internal/store/sqlite"
	"czsc-engine/internal/trader"
)

// snapshotScope names trader snapshots in both stores.
const snapshotScope = "trader"

// session is one symbol's trader fed from the SQLite bar table.
type session struct {
	symbol string
	reader *sqlitestore.Reader
	prom   *metrics.Metrics
	log    *slog.Logger

	tr      *trader.Trader
	resumed string // snapshot id, "" for a cold start
	stats   replay.Stats
}

func newSession(symbol string, r *sqlitestore.Reader, m *metrics.Metrics) (*session, error) {
	if symbol == "" {
		symbol = cfg.Symbol
	}
	if symbol == "" {
		return nil, fmt.Errorf("no symbol: pass --symbol or set symbol in the config")
	}
	return &session{
		symbol: symbol,
		reader: r,
		prom:   m,
		log:    slog.Default().With(slog.String("component", "session"), slog.String("symbol", symbol)),
	}, nil
}

// load builds the trader, from the newest stored snapshot when resume is
// set, then replays every stored base bar after its last bar (or after
// `after` on a cold start).
func (s *session) load(ctx context.Context, tcfg trader.Config, resume bool, after time.Time, speed float64) error {
	if resume {
		var snap trader.Snapshot
		id, err := s.reader.ReadLatestSnapshot(ctx, s.symbol, snapshotScope, &snap)
		if err != nil {
			return err
		}
		if id != "" {
			tr, err := trader.RestoreTrader(&snap, tcfg)
			if err != nil {
				return fmt.Errorf("restore snapshot %s: %w", id, err)
			}
			s.tr, s.resumed = tr, id
			if last, ok := tr.LastDT(); ok {
				after = last
			}
			s.log.Info("resumed from snapshot", slog.String("snapshot", id), slog.Time("after", after))
		}
	}
	if s.tr == nil {
		tr, err := trader.New(tcfg)
		if err != nil {
			return err
		}
		s.tr = tr
	}

	rp := replay.New(s.reader)
	rp.Speed = speed
	rp.Metrics = s.prom
	st, err := rp.Run(ctx, s.tr, s.symbol, tcfg.Base, after)
	s.stats = st
	return err
}

// summary prints one line per frequency, then the current signals.
func (s *session) summary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FREQ\tBARS\tSTROKES\tSEGMENTS\tPIVOTS\tLAST STROKE")
	for _, f := range s.tr.Freqs() {
		err := s.tr.View(f, func(c *czsc.CZSC) {
			last := "-"
			if bi, ok := c.LastBI(); ok {
				last = fmt.Sprintf("%s %.2f -> %.2f (%s)", bi.Direction, bi.FxA.Fx, bi.FxB.Fx, bi.EDT.Format(time.DateOnly))
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
				f, len(c.BarsRaw()), len(c.BIList()), len(c.XDList()), len(c.ZSList()), last)
		})
		if err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sig := s.tr.Signals()
	if len(sig) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nSIGNALS")
	keys := make([]string, 0, len(sig))
	for k := range sig {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		switch v := sig[k].(type) {
		case float64:
			fmt.Fprintf(w, "  %s = %.4f\n", k, v)
		default:
			fmt.Fprintf(w, "  %s = %v\n", k, v)
		}
	}
	return nil
}

func freqNames(fs []freq.Freq) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}
