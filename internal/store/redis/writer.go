// Package redis publishes confirmed strokes and stores engine snapshots in
// Redis. Every call goes through a CircuitBreaker so that an unavailable
// Redis never stalls the engine.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/metrics"
	"czsc-engine/internal/model"
)

const (
	defaultPrefix       = "czsc"
	defaultStreamMaxLen = 5000
	defaultLatestTTL    = 24 * time.Hour
)

// Config configures the Redis client shared by the publisher and the
// snapshot store.
type Config struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	KeyPrefix string // default "czsc"

	Breaker *CircuitBreaker  // default: 5 failures, 10s reset
	Metrics *metrics.Metrics // optional
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("redis connected", slog.String("component", "redis"), slog.String("addr", cfg.Addr))
	return client, nil
}

// keys builds the Redis key layout under one prefix.
type keys struct{ prefix string }

func (k keys) snapshot(symbol, scope string) string {
	return k.prefix + ":snap:" + symbol + ":" + scope
}

func (k keys) biStream(symbol string, f freq.Freq) string {
	return k.prefix + ":bi:" + symbol + ":" + f.String()
}

func (k keys) biLatest(symbol string, f freq.Freq) string {
	return k.prefix + ":bi:latest:" + symbol + ":" + f.String()
}

func (k keys) biChannel(symbol string, f freq.Freq) string {
	return "pub:" + k.prefix + ":bi:" + symbol + ":" + f.String()
}

func (k keys) biPattern() string {
	return "pub:" + k.prefix + ":bi:*"
}

func resolve(cfg Config) (keys, *CircuitBreaker) {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	cb := cfg.Breaker
	if cb == nil {
		cb = NewCircuitBreaker(5, 10*time.Second)
	}
	cb.Instrument(cfg.Metrics)
	return keys{prefix: prefix}, cb
}

// BIMessage is the published form of a confirmed stroke.
type BIMessage struct {
	Symbol    string          `json:"symbol"`
	Freq      freq.Freq       `json:"freq"`
	Direction model.Direction `json:"direction"`
	SDT       time.Time       `json:"sdt"`
	EDT       time.Time       `json:"edt"`
	Start     float64         `json:"start"`
	End       float64         `json:"end"`
	High      float64         `json:"high"`
	Low       float64         `json:"low"`
	Length    int             `json:"length"`
	Power     float64         `json:"power_price"`
}

// NewBIMessage flattens bi for publication.
func NewBIMessage(symbol string, f freq.Freq, bi model.BI) BIMessage {
	return BIMessage{
		Symbol:    symbol,
		Freq:      f,
		Direction: bi.Direction,
		SDT:       bi.SDT,
		EDT:       bi.EDT,
		Start:     bi.FxA.Fx,
		End:       bi.FxB.Fx,
		High:      bi.High,
		Low:       bi.Low,
		Length:    bi.Length,
		Power:     bi.PowerPrice,
	}
}

// Publisher writes confirmed strokes to a Redis stream, a latest key and a
// pub/sub channel in one pipeline.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	keys   keys
	maxLen int64
	prom   *metrics.Metrics
	log    *slog.Logger
}

// NewPublisher wraps client.
func NewPublisher(client *goredis.Client, cfg Config) *Publisher {
	k, cb := resolve(cfg)
	return &Publisher{
		client: client,
		cb:     cb,
		keys:   k,
		maxLen: defaultStreamMaxLen,
		prom:   cfg.Metrics,
		log:    slog.Default().With(slog.String("component", "redis")),
	}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker returns the publisher's circuit breaker.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// PublishBI publishes one stroke. It returns ErrCircuitOpen without touching
// Redis while the breaker is open.
func (p *Publisher) PublishBI(ctx context.Context, symbol string, f freq.Freq, bi model.BI) error {
	return p.publish(ctx, NewBIMessage(symbol, f, bi))
}

func (p *Publisher) publish(ctx context.Context, msg BIMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal bi: %w", err)
	}
	return p.cb.Execute(func() error {
		start := time.Now()
		pipe := p.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: p.keys.biStream(msg.Symbol, msg.Freq),
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(data)},
		})
		pipe.Set(ctx, p.keys.biLatest(msg.Symbol, msg.Freq), string(data), defaultLatestTTL)
		pipe.Publish(ctx, p.keys.biChannel(msg.Symbol, msg.Freq), string(data))
		if _, err := pipe.Exec(ctx); err != nil {
			p.log.Warn("bi pipeline failed", slog.String("symbol", msg.Symbol), slog.Any("error", err))
			return fmt.Errorf("redis publish bi: %w", err)
		}
		if p.prom != nil {
			p.prom.RedisWriteDur.Observe(time.Since(start).Seconds())
		}
		return nil
	})
}

// SubscribeBI subscribes to the stroke channel of symbol at f.
func (p *Publisher) SubscribeBI(ctx context.Context, symbol string, f freq.Freq) *goredis.PubSub {
	return p.client.Subscribe(ctx, p.keys.biChannel(symbol, f))
}

// PSubscribeBI subscribes to the stroke channels of every symbol and
// frequency under the configured prefix.
func (p *Publisher) PSubscribeBI(ctx context.Context) *goredis.PubSub {
	return p.client.PSubscribe(ctx, p.keys.biPattern())
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
