package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/markethours"
	"czsc-engine/internal/model"
)

// Reader provides read access to bars and snapshots.
type Reader struct {
	db  *sql.DB
	loc *time.Location
}

// NewReader opens a SQLite connection for reading. Bar times are returned
// in exchange time.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath, 2)
	if err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Reader{db: db, loc: markethours.CST}, nil
}

// SetLocation changes the location bar times are returned in.
func (r *Reader) SetLocation(loc *time.Location) { r.loc = loc }

// ReadBars returns the bars of symbol at f with dt after `after` (all bars
// when after is zero), oldest first and numbered from 0.
func (r *Reader) ReadBars(ctx context.Context, symbol string, f freq.Freq, after time.Time) ([]model.RawBar, error) {
	var afterTS int64 = -1 << 62
	if !after.IsZero() {
		afterTS = after.Unix()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT dt, open, close, high, low, volume, amount
		FROM bars
		WHERE symbol = ? AND freq = ? AND dt > ?
		ORDER BY dt ASC
	`, symbol, f.String(), afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.RawBar
	for rows.Next() {
		b := model.RawBar{Symbol: symbol, ID: len(bars), Freq: f}
		var ts int64
		if err := rows.Scan(&ts, &b.Open, &b.Close, &b.High, &b.Low, &b.Volume, &b.Amount); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.DT = time.Unix(ts, 0).In(r.loc)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LastDT returns the newest stored dt of symbol at f.
func (r *Reader) LastDT(ctx context.Context, symbol string, f freq.Freq) (time.Time, bool, error) {
	var ts sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(dt) FROM bars WHERE symbol = ? AND freq = ?`,
		symbol, f.String(),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(ts.Int64, 0).In(r.loc), true, nil
}

// ReadLatestSnapshot decodes the newest snapshot under (symbol, scope) into
// v. It returns the snapshot id, or "" when none is stored.
func (r *Reader) ReadLatestSnapshot(ctx context.Context, symbol, scope string, v any) (string, error) {
	var id, data string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, data FROM snapshots
		WHERE symbol = ? AND scope = ?
		ORDER BY id DESC
		LIMIT 1
	`, symbol, scope).Scan(&id, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil // no snapshot
		}
		return "", fmt.Errorf("sqlite read snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return "", fmt.Errorf("unmarshal snapshot %s: %w", id, err)
	}
	return id, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
