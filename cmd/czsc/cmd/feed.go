package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"czsc-engine/internal/feed"
	"czsc-engine/internal/metrics"
	redisstore "czsc-engine/internal/store/redis"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Relay strokes published to Redis onto a WebSocket feed",
	Long: `Subscribe to every stroke channel in Redis and stream the strokes to
WebSocket clients. Pair it with "czsc analyze --publish" running elsewhere.

Endpoints:
  /ws                 stream (send {"type":"subscribe","symbol":"600519.SH","freq":"D"} to filter)
  /api/latest         newest stroke per channel
  /api/missed         buffered messages for gap backfill
  /metrics, /healthz  when metrics_addr is set

Example:
  czsc feed --addr :8081`,
	Args: cobra.NoArgs,
	RunE: runFeed,
}

var feedAddr string

func init() {
	rootCmd.AddCommand(feedCmd)
	feedCmd.Flags().StringVar(&feedAddr, "addr", ":8081", "WebSocket listen address")
}

func runFeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("feed needs redis.addr (CZSC_REDIS_ADDR)")
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	rcfg := redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Metrics:  m,
	}
	rdb, err := redisstore.Connect(ctx, rcfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	if cfg.MetricsAddr != "" {
		health := metrics.NewHealthStatus(cfg.Symbol, freqNames(cfg.Freqs))
		health.SetRedisEnabled(true)
		health.SetSQLiteOK(true)
		health.StartLivenessChecker(ctx, rdb, nil, 10*time.Second)
		srv := metrics.NewServer(cfg.MetricsAddr, health, reg)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	hub := feed.NewHub(m)
	stop := serveFeed(feedAddr, hub)
	defer stop()

	pub := redisstore.NewPublisher(rdb, rcfg)
	slog.Info("relaying strokes", slog.String("component", "feed"), slog.String("addr", feedAddr))
	hub.Relay(ctx, pub.PSubscribeBI(ctx))
	return nil
}

// serveFeed starts an HTTP server for hub and returns its shutdown func.
func serveFeed(addr string, hub *feed.Hub) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("feed server starting", slog.String("component", "feed"), slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("feed server error", slog.String("component", "feed"), slog.Any("error", err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
