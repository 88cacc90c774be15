// Package source provides market-data source implementations for the
// candle buffer manager.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS candles (
    symbol    TEXT    NOT NULL,
    timeframe TEXT    NOT NULL,
    time      INTEGER NOT NULL,
    open      REAL    NOT NULL,
    high      REAL    NOT NULL,
    low       REAL    NOT NULL,
    close     REAL    NOT NULL,
    volume    REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (symbol, timeframe, time)
);

CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles(symbol, timeframe, time);
`

// SQLite serves candles from a local SQLite file (pure Go driver).
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the candle database at the given path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("source.OpenSQLite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("source.OpenSQLite: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Insert stores candles, replacing duplicates.
func (s *SQLite) Insert(ctx context.Context, symbol string, tf model.Timeframe, candles []model.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("source.Insert: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("source.Insert: prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, string(tf), c.Time, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("source.Insert: exec: %w", err)
		}
	}
	return tx.Commit()
}

// FetchContext returns up to limit bars with time <= beforeTime, ascending.
func (s *SQLite) FetchContext(ctx context.Context, symbol string, tf model.Timeframe, beforeTime int64, limit int) ([]model.Candle, error) {
	return s.query(ctx, `
		SELECT time, open, high, low, close, volume FROM (
			SELECT * FROM candles
			WHERE symbol = ? AND timeframe = ? AND time <= ?
			ORDER BY time DESC LIMIT ?
		) ORDER BY time ASC`,
		symbol, string(tf), beforeTime, limit)
}

// FetchFuture returns up to limit bars with time > afterTime, ascending.
func (s *SQLite) FetchFuture(ctx context.Context, symbol string, tf model.Timeframe, afterTime int64, limit int) ([]model.Candle, error) {
	return s.query(ctx, `
		SELECT time, open, high, low, close, volume FROM candles
		WHERE symbol = ? AND timeframe = ? AND time > ?
		ORDER BY time ASC LIMIT ?`,
		symbol, string(tf), afterTime, limit)
}

// FetchHistorical returns up to limit bars strictly older than beforeTime, ascending.
func (s *SQLite) FetchHistorical(ctx context.Context, symbol string, tf model.Timeframe, beforeTime int64, limit int) ([]model.Candle, error) {
	return s.query(ctx, `
		SELECT time, open, high, low, close, volume FROM (
			SELECT * FROM candles
			WHERE symbol = ? AND timeframe = ? AND time < ?
			ORDER BY time DESC LIMIT ?
		) ORDER BY time ASC`,
		symbol, string(tf), beforeTime, limit)
}

// FetchFirst returns the earliest bar for the symbol; empty timeframe
// means any timeframe.
func (s *SQLite) FetchFirst(ctx context.Context, symbol string, tf model.Timeframe) (*model.Candle, error) {
	return s.queryOne(ctx, symbol, tf, "ASC")
}

// FetchLast returns the latest bar for the symbol.
func (s *SQLite) FetchLast(ctx context.Context, symbol string, tf model.Timeframe) (*model.Candle, error) {
	return s.queryOne(ctx, symbol, tf, "DESC")
}

func (s *SQLite) queryOne(ctx context.Context, symbol string, tf model.Timeframe, order string) (*model.Candle, error) {
	q := `SELECT time, open, high, low, close, volume FROM candles WHERE symbol = ?`
	args := []any{symbol}
	if tf != "" {
		q += ` AND timeframe = ?`
		args = append(args, string(tf))
	}
	q += ` ORDER BY time ` + order + ` LIMIT 1`

	var c model.Candle
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source: fetch edge bar: %w", err)
	}
	return &c, nil
}

func (s *SQLite) query(ctx context.Context, q string, args ...any) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("source: query candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("source: scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
