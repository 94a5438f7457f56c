package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"czsc-engine/internal/feed"
	"czsc-engine/internal/freq"
	"czsc-engine/internal/metrics"
	"czsc-engine/internal/model"
	redisstore "czsc-engine/internal/store/redis"
	sqlitestore "czsc-engine/internal/store/sqlite"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Replay stored bars through the engine and report the structure",
	Long: `Replay the stored base-frequency bars of one symbol through a
multi-frequency trader and print strokes, segments and pivots per frequency.

With --publish, every confirmed stroke is published to Redis (stream,
latest key and pub/sub channel). With --ws-addr, strokes are also streamed
to WebSocket clients at /ws. With --save-snapshot, the final trader
state is stored in SQLite (and Redis when publishing) so a later run can
--resume from it.

Examples:
  czsc analyze --symbol 600519.SH --save-snapshot
  czsc analyze --symbol 600519.SH --resume --publish --speed 100`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

var (
	analyzeSymbol  string
	analyzeAfter   string
	analyzeSpeed   float64
	analyzeSave    bool
	analyzeResume  bool
	analyzePublish bool
	analyzeWSAddr  string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeSymbol, "symbol", "s", "", "symbol to analyze (default: config symbol)")
	analyzeCmd.Flags().StringVar(&analyzeAfter, "after", "", "replay only bars after this day (YYYY-MM-DD)")
	analyzeCmd.Flags().Float64Var(&analyzeSpeed, "speed", 0, "pacing: 0 = as fast as possible, 1 = real time")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save-snapshot", false, "store the final trader snapshot")
	analyzeCmd.Flags().BoolVar(&analyzeResume, "resume", false, "start from the newest stored snapshot")
	analyzeCmd.Flags().BoolVar(&analyzePublish, "publish", false, "publish confirmed strokes to Redis")
	analyzeCmd.Flags().StringVar(&analyzeWSAddr, "ws-addr", "", "serve confirmed strokes on a WebSocket feed at this address")
}

type biEvent struct {
	freq freq.Freq
	bi   model.BI
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	after, err := parseDay(analyzeAfter)
	if err != nil {
		return fmt.Errorf("--after: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	w, err := openWriter(m)
	if err != nil {
		return err
	}
	defer w.Close()
	r, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer r.Close()

	s, err := newSession(analyzeSymbol, r, m)
	if err != nil {
		return err
	}
	health := metrics.NewHealthStatus(s.symbol, freqNames(append([]freq.Freq{cfg.BaseFreq}, cfg.Freqs...)))
	health.SetSQLiteOK(true)

	// ---- Optional Redis ----
	var (
		rdb   *goredis.Client
		pub   *redisstore.BufferedPublisher
		snaps *redisstore.SnapshotStore
	)
	if analyzePublish {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("--publish needs redis.addr (CZSC_REDIS_ADDR)")
		}
		rcfg := redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Metrics:  m,
		}
		rdb, err = redisstore.Connect(ctx, rcfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		p := redisstore.NewPublisher(rdb, rcfg)
		pub = redisstore.NewBufferedPublisher(ctx, p, 0)
		rcfg.Breaker = p.Breaker()
		snaps = redisstore.NewSnapshotStore(rdb, rcfg)
		health.SetRedisEnabled(true)
	}

	// ---- Optional metrics server ----
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, health, reg)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
		health.StartLivenessChecker(ctx, rdb, w.DB(), 10*time.Second)
	}

	// ---- Optional WebSocket feed ----
	var hub *feed.Hub
	if analyzeWSAddr != "" {
		hub = feed.NewHub(m)
		stop := serveFeed(analyzeWSAddr, hub)
		defer stop()
	}

	// ---- Stroke publishing off the update path ----
	events := make(chan biEvent, 1024)
	var wg sync.WaitGroup
	tcfg := cfg.Trader(s.symbol, m, slog.Default())
	if pub != nil || hub != nil {
		tcfg.OnBI = func(f freq.Freq, bi model.BI) { events <- biEvent{freq: f, bi: bi} }
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range events {
				if hub != nil {
					if err := hub.PublishBI(s.symbol, ev.freq, ev.bi); err != nil {
						s.log.Warn("feed stroke failed", slog.String("freq", ev.freq.String()), slog.Any("error", err))
					}
				}
				if pub == nil {
					continue
				}
				if err := pub.PublishBI(ctx, s.symbol, ev.freq, ev.bi); err != nil {
					s.log.Warn("publish stroke failed", slog.String("freq", ev.freq.String()), slog.Any("error", err))
				}
			}
		}()
	}

	err = s.load(ctx, tcfg, analyzeResume, after, analyzeSpeed)
	close(events)
	wg.Wait()
	if err != nil {
		return err
	}
	if last, ok := s.tr.LastDT(); ok {
		health.SetLastBarTime(last)
	}
	if pub != nil && pub.PendingCount() > 0 {
		s.log.Warn("strokes still buffered for redis", slog.Int("pending", pub.PendingCount()))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: replayed %d bars (%d skipped)", s.symbol, s.stats.Replayed, s.stats.Skipped)
	if s.resumed != "" {
		fmt.Fprintf(out, " after snapshot %s", s.resumed)
	}
	fmt.Fprintln(out)
	if err := s.summary(out); err != nil {
		return err
	}

	if analyzeSave {
		snap := s.tr.Snapshot()
		id, err := w.SaveSnapshot(ctx, s.symbol, snapshotScope, snap)
		if err != nil {
			return err
		}
		if snaps != nil {
			if err := snaps.Save(ctx, s.symbol, snapshotScope, snap); err != nil {
				s.log.Warn("redis snapshot failed", slog.Any("error", err))
			}
		}
		fmt.Fprintf(out, "snapshot %s saved\n", id)
	}
	return nil
}
