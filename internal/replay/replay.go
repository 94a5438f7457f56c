// Package replay feeds stored bars through a trader, optionally paced by
// the bars' own time gaps.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/logger"
	"czsc-engine/internal/metrics"
	"czsc-engine/internal/model"
)

// BarSource loads stored bars oldest first.
type BarSource interface {
	ReadBars(ctx context.Context, symbol string, f freq.Freq, after time.Time) ([]model.RawBar, error)
}

// Updater consumes bars one at a time.
type Updater interface {
	Update(bar model.RawBar) error
}

// Replayer reads historical bars and replays them into an Updater.
type Replayer struct {
	src BarSource

	// Speed controls pacing: 0 = as fast as possible, 1.0 = real time,
	// 10.0 = 10x. Gaps are capped at MaxGap.
	Speed  float64
	MaxGap time.Duration
	// ProgressEvery logs progress every n bars (0 = never).
	ProgressEvery int

	Metrics *metrics.Metrics // optional
}

// Stats summarizes a run.
type Stats struct {
	Loaded   int
	Replayed int
	Skipped  int // bars rejected as bad data
}

// New creates a Replayer backed by src.
func New(src BarSource) *Replayer {
	return &Replayer{src: src, MaxGap: 5 * time.Second, ProgressEvery: 1000}
}

// Run replays the bars of symbol at base with dt after `after` into u.
// Bars rejected as bad data are logged and skipped; any other update error
// stops the run. Cancelling ctx stops the run with ctx.Err().
func (r *Replayer) Run(ctx context.Context, u Updater, symbol string, base freq.Freq, after time.Time) (Stats, error) {
	if logger.RunID(ctx) == "" {
		ctx = logger.WithRunID(ctx, logger.NewRunID(symbol, time.Now()))
	}
	log := slog.Default().With(slog.String("component", "replay"), slog.String("symbol", symbol), slog.String("freq", base.String()))
	log = log.With(logger.RunAttrs(ctx)...)

	var st Stats
	bars, err := r.src.ReadBars(ctx, symbol, base, after)
	if err != nil {
		return st, fmt.Errorf("replay: load bars: %w", err)
	}
	st.Loaded = len(bars)
	if len(bars) == 0 {
		log.Info("no bars to replay")
		return st, nil
	}
	log.Info("replay started", slog.Int("bars", len(bars)), slog.Float64("speed", r.Speed))

	var prevDT time.Time
	for i, bar := range bars {
		select {
		case <-ctx.Done():
			log.Warn("replay cancelled", slog.Int("replayed", st.Replayed))
			return st, ctx.Err()
		default:
		}

		if err := r.pace(ctx, prevDT, bar.DT); err != nil {
			log.Warn("replay cancelled", slog.Int("replayed", st.Replayed))
			return st, err
		}
		prevDT = bar.DT

		if err := u.Update(bar); err != nil {
			if errors.Is(err, model.ErrData) {
				st.Skipped++
				log.Warn("skipping bad bar", slog.Time("dt", bar.DT), slog.Any("error", err))
				continue
			}
			return st, fmt.Errorf("replay: bar %d at %s: %w", i, bar.DT.Format(time.DateTime), err)
		}
		st.Replayed++
		if r.Metrics != nil {
			r.Metrics.ReplayedBars.Inc()
		}
		if r.ProgressEvery > 0 && st.Replayed%r.ProgressEvery == 0 {
			log.Info("replay progress", slog.Int("replayed", st.Replayed), slog.Int("total", len(bars)), slog.Time("dt", bar.DT))
		}
	}

	log.Info("replay completed", slog.Int("replayed", st.Replayed), slog.Int("skipped", st.Skipped))
	return st, nil
}

// pace sleeps for the scaled gap between two bars.
func (r *Replayer) pace(ctx context.Context, prev, next time.Time) error {
	if r.Speed <= 0 || prev.IsZero() {
		return nil
	}
	gap := next.Sub(prev)
	if gap <= 0 {
		return nil
	}
	scaled := time.Duration(float64(gap) / r.Speed)
	if r.MaxGap > 0 && scaled > r.MaxGap {
		scaled = r.MaxGap
	}
	timer := time.NewTimer(scaled)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
