package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trading-chartsv1/internal/model"
)

// Reader provides read-only access to SQLite for backfill, replay and
// snapshot restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return &Reader{db: db}, nil
}

const barColumns = `series_key, idx, ts, open, high, low, close, volume`

// ReadBars reads the bars of one series with an index greater than afterIdx,
// ordered by index.
func (r *Reader) ReadBars(key string, afterIdx int) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT `+barColumns+`
		FROM bars
		WHERE series_key = ? AND idx > ?
		ORDER BY idx ASC
	`, key, afterIdx)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	return scanBars(rows)
}

// ReadAllBars reads the bars of every series starting at or after from,
// ordered by period start so they replay in feed order.
func (r *Reader) ReadAllBars(from time.Time) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT `+barColumns+`
		FROM bars
		WHERE ts >= ?
		ORDER BY ts ASC, series_key ASC
	`, from.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite query all bars: %w", err)
	}
	return scanBars(rows)
}

// ReadKeys lists every series key that has stored bars.
func (r *Reader) ReadKeys() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT series_key FROM bars ORDER BY series_key`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlite scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ReadLatestSnapshotJSON returns the newest snapshot, or nil if none exists.
func (r *Reader) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	return latestSnapshot(ctx, r.db)
}

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			b   model.Bar
			key string
			ms  int64
		)
		if err := rows.Scan(&key, &b.Index, &ms, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.Exchange, b.Token = model.SplitKey(key)
		b.TS = time.UnixMilli(ms).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
