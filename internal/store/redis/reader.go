package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"czsc-engine/internal/metrics"
)

// SnapshotStore keeps the latest snapshot per (symbol, scope) in Redis.
// Snapshots expire after a day; SQLite holds the durable copies.
type SnapshotStore struct {
	client *goredis.Client
	cb     *CircuitBreaker
	keys   keys
	ttl    time.Duration
	prom   *metrics.Metrics
}

// NewSnapshotStore wraps client.
func NewSnapshotStore(client *goredis.Client, cfg Config) *SnapshotStore {
	k, cb := resolve(cfg)
	return &SnapshotStore{client: client, cb: cb, keys: k, ttl: 24 * time.Hour, prom: cfg.Metrics}
}

// Save stores v as JSON, replacing the previous snapshot of the key.
func (s *SnapshotStore) Save(ctx context.Context, symbol, scope string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.cb.Execute(func() error {
		start := time.Now()
		if err := s.client.Set(ctx, s.keys.snapshot(symbol, scope), string(data), s.ttl).Err(); err != nil {
			return fmt.Errorf("redis set snapshot: %w", err)
		}
		if s.prom != nil {
			s.prom.RedisWriteDur.Observe(time.Since(start).Seconds())
		}
		return nil
	})
}

// Latest decodes the stored snapshot into v. It reports false when no
// snapshot exists.
func (s *SnapshotStore) Latest(ctx context.Context, symbol, scope string, v any) (bool, error) {
	var data string
	err := s.cb.Execute(func() error {
		var err error
		data, err = s.client.Get(ctx, s.keys.snapshot(symbol, scope)).Result()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("redis get snapshot: %w", err)
	}
	if data == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return true, nil
}
