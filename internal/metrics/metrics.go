package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the structure engine.
type Metrics struct {
	// Ingest
	BarsTotal     *prometheus.CounterVec // labels: freq (bars fed to a facade)
	ClosedBars    *prometheus.CounterVec // labels: freq (generator emissions)
	DroppedBars   prometheus.Counter
	RejectedBars  *prometheus.CounterVec // labels: reason
	UpdateDur     prometheus.Histogram
	ReplayedBars  prometheus.Counter
	ImportedBars  prometheus.Counter
	LastBarUnixTS prometheus.Gauge

	// Structure
	StrokesTotal     *prometheus.CounterVec // labels: freq
	RetractionsTotal *prometheus.CounterVec // labels: freq
	SignalErrors     *prometheus.CounterVec // labels: freq

	// Storage
	SQLiteCommitDur prometheus.Histogram
	RedisWriteDur   prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// WebSocket feed
	FeedClients  prometheus.Gauge
	FeedMessages prometheus.Counter
	FeedDropped  prometheus.Counter // sends skipped because a client queue was full
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// selects the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "czsc_bars_total",
			Help: "Bars fed to a structure facade (by frequency)",
		}, []string{"freq"}),
		ClosedBars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "czsc_generator_closed_bars_total",
			Help: "Bars emitted by the multi-frequency generator (by frequency)",
		}, []string{"freq"}),
		DroppedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "czsc_dropped_bars_total",
			Help: "Base bars dropped because they fall outside the trading sessions",
		}),
		RejectedBars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "czsc_rejected_bars_total",
			Help: "Bars rejected by an update (by error kind)",
		}, []string{"reason"}),
		UpdateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "czsc_update_duration_seconds",
			Help:    "Trader update latency per base bar",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		ReplayedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "czsc_replayed_bars_total",
			Help: "Stored bars replayed through a trader",
		}),
		ImportedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "czsc_imported_bars_total",
			Help: "Bars imported into the bar store",
		}),
		LastBarUnixTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "czsc_last_bar_timestamp_seconds",
			Help: "Close time of the last accepted base bar",
		}),

		StrokesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "czsc_strokes_total",
			Help: "Strokes confirmed (by frequency)",
		}, []string{"freq"}),
		RetractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "czsc_stroke_retractions_total",
			Help: "Strokes retracted by later bars (by frequency)",
		}, []string{"freq"}),
		SignalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "czsc_signal_errors_total",
			Help: "Signal functions that failed or panicked (by frequency)",
		}, []string{"freq"}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "czsc_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "czsc_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "czsc_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "czsc_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		FeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "czsc_feed_clients",
			Help: "Connected WebSocket feed clients",
		}),
		FeedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "czsc_feed_messages_total",
			Help: "Messages broadcast on the WebSocket feed",
		}),
		FeedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "czsc_feed_dropped_total",
			Help: "Feed messages dropped for slow clients",
		}),
	}

	reg.MustRegister(
		m.BarsTotal,
		m.ClosedBars,
		m.DroppedBars,
		m.RejectedBars,
		m.UpdateDur,
		m.ReplayedBars,
		m.ImportedBars,
		m.LastBarUnixTS,
		m.StrokesTotal,
		m.RetractionsTotal,
		m.SignalErrors,
		m.SQLiteCommitDur,
		m.RedisWriteDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.FeedClients,
		m.FeedMessages,
		m.FeedDropped,
	)

	return m
}

// HealthStatus represents the process health.
type HealthStatus struct {
	mu sync.RWMutex

	Symbol         string    `json:"symbol"`
	Freqs          []string  `json:"freqs"`
	LastBarTime    time.Time `json:"last_bar_time"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(symbol string, freqs []string) *HealthStatus {
	return &HealthStatus{
		Symbol:    symbol,
		Freqs:     freqs,
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK || h.RedisEnabled && !h.RedisConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Second).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		Symbol          string   `json:"symbol"`
		Freqs           []string `json:"freqs"`
		LastBarTime     string   `json:"last_bar_time"`
		BarAge          string   `json:"bar_age"`
		RedisEnabled    bool     `json:"redis_enabled"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Symbol:          h.Symbol,
		Freqs:           h.Freqs,
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. A nil gatherer selects the
// default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", slog.String("component", "metrics"), slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.String("component", "metrics"), slog.Any("error", err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
