package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"hkbacktest/internal/models"
)

// SQLiteStore implements Repository using SQLite, matching the donor's
// choice of driver (mattn/go-sqlite3) and WAL/busy-timeout pragmas.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed Repository
// at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		turnover REAL NOT NULL,
		PRIMARY KEY (symbol, interval, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_candles_symbol_interval_ts
		ON candles (symbol, interval, timestamp);

	CREATE TABLE IF NOT EXISTS corporate_actions (
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		ex_date DATETIME NOT NULL,
		dividend_per_share REAL NOT NULL DEFAULT 0,
		split_old INTEGER NOT NULL DEFAULT 0,
		split_new INTEGER NOT NULL DEFAULT 0,
		bonus_base INTEGER NOT NULL DEFAULT 0,
		bonus_extra INTEGER NOT NULL DEFAULT 0,
		rights_base INTEGER NOT NULL DEFAULT 0,
		rights_extra INTEGER NOT NULL DEFAULT 0,
		rights_price REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (symbol, ex_date, kind)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// FindCandles implements Repository.
func (s *SQLiteStore) FindCandles(ctx context.Context, symbol string, interval models.Interval, t0, t1 time.Time) ([]models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timestamp, open, high, low, close, volume, turnover
		FROM candles
		WHERE symbol = ? AND interval = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC`,
		symbol, string(interval), t0, t1)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Symbol, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Turnover); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveCandles implements Repository.
func (s *SQLiteStore) SaveCandles(ctx context.Context, interval models.Interval, batch []models.Candle) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, interval, timestamp, open, high, low, close, volume, turnover)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, timestamp) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume, turnover = excluded.turnover`)
	if err != nil {
		return fmt.Errorf("prepare candle upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range batch {
		if _, err := stmt.ExecContext(ctx, c.Symbol, string(interval), c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume, c.Turnover); err != nil {
			return fmt.Errorf("upsert candle %s@%s: %w", c.Symbol, c.Timestamp, err)
		}
	}
	return tx.Commit()
}

// FindLatestTimestamp implements Repository.
func (s *SQLiteStore) FindLatestTimestamp(ctx context.Context, symbol string, interval models.Interval) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM candles WHERE symbol = ? AND interval = ?`,
		symbol, string(interval)).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("query latest timestamp: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time, nil
}

// FindCorporateActions implements Repository.
func (s *SQLiteStore) FindCorporateActions(ctx context.Context, symbol string) ([]models.CorporateAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, kind, ex_date, dividend_per_share, split_old, split_new,
			bonus_base, bonus_extra, rights_base, rights_extra, rights_price
		FROM corporate_actions WHERE symbol = ?`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query corporate actions: %w", err)
	}
	defer rows.Close()

	var out []models.CorporateAction
	for rows.Next() {
		var a models.CorporateAction
		var kind string
		if err := rows.Scan(&a.Symbol, &kind, &a.ExDate, &a.DividendPerShare,
			&a.SplitOld, &a.SplitNew, &a.BonusBase, &a.BonusExtra,
			&a.RightsBase, &a.RightsExtra, &a.RightsPrice); err != nil {
			return nil, fmt.Errorf("scan corporate action: %w", err)
		}
		a.Kind = models.CorporateActionKind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveCorporateActions implements Repository.
func (s *SQLiteStore) SaveCorporateActions(ctx context.Context, batch []models.CorporateAction) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO corporate_actions (symbol, kind, ex_date, dividend_per_share,
			split_old, split_new, bonus_base, bonus_extra, rights_base, rights_extra, rights_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, ex_date, kind) DO UPDATE SET
			dividend_per_share = excluded.dividend_per_share,
			split_old = excluded.split_old, split_new = excluded.split_new,
			bonus_base = excluded.bonus_base, bonus_extra = excluded.bonus_extra,
			rights_base = excluded.rights_base, rights_extra = excluded.rights_extra,
			rights_price = excluded.rights_price`)
	if err != nil {
		return fmt.Errorf("prepare corporate action upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range batch {
		if _, err := stmt.ExecContext(ctx, a.Symbol, string(a.Kind), a.ExDate, a.DividendPerShare,
			a.SplitOld, a.SplitNew, a.BonusBase, a.BonusExtra, a.RightsBase, a.RightsExtra, a.RightsPrice); err != nil {
			return fmt.Errorf("upsert corporate action %s@%s: %w", a.Symbol, a.ExDate, err)
		}
	}
	return tx.Commit()
}

// DeleteCandlesOlderThan implements Repository.
func (s *SQLiteStore) DeleteCandlesOlderThan(ctx context.Context, interval models.Interval, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM candles WHERE interval = ? AND timestamp < ?`, string(interval), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old candles: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Repository.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
