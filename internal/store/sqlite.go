package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"swing-trader/internal/models"
	"swing-trader/internal/risk"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store. Use ":memory:" for an
// ephemeral store in backtests and tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Append-only log of closed trades
	CREATE TABLE IF NOT EXISTS closed_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		sector TEXT,
		direction TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		entry_date DATETIME NOT NULL,
		exit_date DATETIME NOT NULL,
		reason TEXT NOT NULL,
		pnl REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_closed_trades_exit_date ON closed_trades(exit_date);
	CREATE INDEX IF NOT EXISTS idx_closed_trades_strategy ON closed_trades(strategy);

	-- Risk snapshots for crash recovery, one row per trading day
	CREATE TABLE IF NOT EXISTS risk_snapshots (
		day TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Current open positions, replaced wholesale on each save
	CREATE TABLE IF NOT EXISTS open_positions (
		symbol TEXT PRIMARY KEY,
		position TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveClosedTrade appends a closed trade to the log.
func (s *SQLiteStore) SaveClosedTrade(ctx context.Context, t models.ClosedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO closed_trades
		(symbol, strategy, sector, direction, quantity, entry_price, exit_price, entry_date, exit_date, reason, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, t.Strategy, t.Sector, string(t.Direction), t.Quantity,
		t.EntryPrice, t.ExitPrice, t.EntryDate, t.ExitDate, string(t.Reason), t.PnL,
	)
	if err != nil {
		return fmt.Errorf("saving closed trade: %w", err)
	}
	return nil
}

// ListClosedTrades returns closed trades with exit dates in [from, to].
func (s *SQLiteStore) ListClosedTrades(ctx context.Context, from, to time.Time) ([]models.ClosedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, strategy, sector, direction, quantity, entry_price, exit_price, entry_date, exit_date, reason, pnl
		FROM closed_trades
		WHERE exit_date >= ? AND exit_date <= ?
		ORDER BY exit_date, id`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("listing closed trades: %w", err)
	}
	defer rows.Close()

	var trades []models.ClosedTrade
	for rows.Next() {
		var t models.ClosedTrade
		var direction, reason string
		if err := rows.Scan(&t.Symbol, &t.Strategy, &t.Sector, &direction, &t.Quantity,
			&t.EntryPrice, &t.ExitPrice, &t.EntryDate, &t.ExitDate, &reason, &t.PnL); err != nil {
			return nil, fmt.Errorf("scanning closed trade: %w", err)
		}
		t.Direction = models.Direction(direction)
		t.Reason = models.ExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveRiskSnapshot upserts the risk snapshot for a trading day.
func (s *SQLiteStore) SaveRiskSnapshot(ctx context.Context, day time.Time, snap risk.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_snapshots (day, snapshot) VALUES (?, ?)
		ON CONFLICT(day) DO UPDATE SET snapshot = excluded.snapshot`,
		day.Format("2006-01-02"), string(data),
	)
	if err != nil {
		return fmt.Errorf("saving risk snapshot: %w", err)
	}
	return nil
}

// LoadLatestRiskSnapshot returns the most recent risk snapshot and its day.
func (s *SQLiteStore) LoadLatestRiskSnapshot(ctx context.Context) (risk.Snapshot, time.Time, error) {
	var dayStr, data string
	err := s.db.QueryRowContext(ctx,
		`SELECT day, snapshot FROM risk_snapshots ORDER BY day DESC LIMIT 1`,
	).Scan(&dayStr, &data)
	if err == sql.ErrNoRows {
		return risk.Snapshot{}, time.Time{}, nil
	}
	if err != nil {
		return risk.Snapshot{}, time.Time{}, fmt.Errorf("loading risk snapshot: %w", err)
	}

	var snap risk.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return risk.Snapshot{}, time.Time{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	day, err := time.Parse("2006-01-02", dayStr)
	if err != nil {
		return risk.Snapshot{}, time.Time{}, fmt.Errorf("parsing snapshot day: %w", err)
	}
	return snap, day, nil
}

// SavePositions replaces the persisted open-position set.
func (s *SQLiteStore) SavePositions(ctx context.Context, positions []*models.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM open_positions`); err != nil {
		return fmt.Errorf("clearing positions: %w", err)
	}
	for _, pos := range positions {
		data, err := json.Marshal(pos)
		if err != nil {
			return fmt.Errorf("encoding position %s: %w", pos.Symbol, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO open_positions (symbol, position) VALUES (?, ?)`,
			pos.Symbol, string(data),
		); err != nil {
			return fmt.Errorf("saving position %s: %w", pos.Symbol, err)
		}
	}
	return tx.Commit()
}

// LoadPositions returns the persisted open-position set.
func (s *SQLiteStore) LoadPositions(ctx context.Context) ([]*models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position FROM open_positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("loading positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		var pos models.Position
		if err := json.Unmarshal([]byte(data), &pos); err != nil {
			return nil, fmt.Errorf("decoding position: %w", err)
		}
		positions = append(positions, &pos)
	}
	return positions, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
