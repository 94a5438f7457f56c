// Package sqlite persists bars and engine snapshots in a single SQLite file.
package sqlite

import (
	"context"
	cryptoRand "crypto/rand"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"czsc-engine/internal/metrics"
	"czsc-engine/internal/model"
)

const (
	defaultBatchSize  = 500
	defaultFlushDelay = 200 * time.Millisecond

	// snapshotsKept is how many snapshots survive per (symbol, scope).
	snapshotsKept = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath  string           // path to SQLite database file, e.g. "data/czsc.db"
	Metrics *metrics.Metrics // optional
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db   *sql.DB
	prom *metrics.Metrics
	log  *slog.Logger

	mu   sync.Mutex
	mono io.Reader
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath, 1)
	if err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	log := slog.Default().With(slog.String("component", "sqlite"))
	log.Info("opened database", slog.String("path", cfg.DBPath))
	return &Writer{
		db:   db,
		prom: cfg.Metrics,
		log:  log,
		mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}, nil
}

func open(path string, conns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			freq   TEXT    NOT NULL,
			dt     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			close  REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			volume REAL    NOT NULL,
			amount REAL    NOT NULL,
			PRIMARY KEY (symbol, freq, dt)
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			id         TEXT    PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			scope      TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS snapshots_key ON snapshots (symbol, scope, id);
	`)
	return err
}

// WriteBars upserts bars in a single transaction. A bar with an existing
// (symbol, freq, dt) replaces the stored one.
func (w *Writer) WriteBars(ctx context.Context, bars []model.RawBar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, freq, dt, open, close, high, low, volume, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if !b.Freq.Valid() {
			tx.Rollback()
			return &model.DataError{DT: b.DT, Reason: "bar without frequency"}
		}
		_, err := stmt.ExecContext(ctx, b.Symbol, b.Freq.String(), b.DT.Unix(), b.Open, b.Close, b.High, b.Low, b.Volume, b.Amount)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	if w.prom != nil {
		w.prom.SQLiteCommitDur.Observe(time.Since(start).Seconds())
	}
	return nil
}

// Run reads bars from barCh and writes them in batched transactions.
// Flushes every defaultBatchSize bars OR every defaultFlushDelay, whichever
// first. Blocks until ctx is cancelled or barCh is closed, and returns the
// number of bars written.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.RawBar) int {
	batch := make([]model.RawBar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()
	written := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// context.WithoutCancel: the final flush after cancellation still commits.
		if err := w.WriteBars(context.WithoutCancel(ctx), batch); err != nil {
			w.log.Error("batch insert failed", slog.Int("bars", len(batch)), slog.Any("error", err))
		} else {
			written += len(batch)
			w.log.Debug("committed bars", slog.Int("bars", len(batch)), slog.Duration("took", time.Since(start)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return written

		case bar, ok := <-barCh:
			if !ok {
				flush()
				return written
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// SaveSnapshot stores v as JSON under (symbol, scope) and returns its ULID.
// Only the newest snapshots per key are kept.
func (w *Writer) SaveSnapshot(ctx context.Context, symbol, scope string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	now := time.Now().UTC()
	w.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), w.mono)
	w.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("snapshot id: %w", err)
	}

	_, err = w.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, symbol, scope, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), symbol, scope, string(data), now.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE symbol = ? AND scope = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE symbol = ? AND scope = ? ORDER BY id DESC LIMIT ?
		)`, symbol, scope, symbol, scope, snapshotsKept)
	if err != nil {
		w.log.Warn("prune snapshots failed", slog.Any("error", err))
	}
	return id.String(), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
