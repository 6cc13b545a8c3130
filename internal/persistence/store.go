// Package persistence keeps the durable audit trail. Decisions and
// transactions are append-only records; positions are the one mutable
// aggregate and change only on confirmed fills.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tradequorum/quorum-bot/internal/broker"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	ended_at    TIMESTAMP,
	trades      INTEGER NOT NULL DEFAULT 0,
	total_pnl   REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS decisions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	total_sources INTEGER NOT NULL,
	buy_signals  INTEGER NOT NULL,
	hold_signals INTEGER NOT NULL,
	sell_signals INTEGER NOT NULL,
	buy_pct      REAL NOT NULL,
	should_buy   INTEGER NOT NULL,
	size         INTEGER NOT NULL,
	allowed      INTEGER NOT NULL,
	reason       TEXT,
	created_at   TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL,
	client_order_id TEXT NOT NULL,
	order_id        TEXT,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	quantity        REAL NOT NULL,
	price           REAL NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	symbol        TEXT PRIMARY KEY,
	quantity      REAL NOT NULL,
	entry_price   REAL NOT NULL,
	stop_loss     REAL NOT NULL,
	take_profit   REAL NOT NULL,
	opened_at     TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
`

// Decision is one audit record of a full decision-pipeline pass.
type Decision struct {
	SessionID    string
	Symbol       string
	TotalSources int
	BuySignals   int
	HoldSignals  int
	SellSignals  int
	BuyPct       float64
	ShouldBuy    bool
	Size         int
	Allowed      bool
	Reason       string
}

// Transaction is one audit record of an order submission outcome.
type Transaction struct {
	SessionID     string
	ClientOrderID string
	OrderID       string
	Symbol        string
	Side          string
	Quantity      float64
	Price         float64
	Status        string
}

// Store wraps the SQLite audit database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the audit database and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, id, status string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, started_at) VALUES (?, ?, ?)`,
		id, status, startedAt)
	return err
}

// CloseSession finalizes a session row.
func (s *Store) CloseSession(ctx context.Context, id, status string, endedAt time.Time, trades int, totalPnL float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, ended_at = ?, trades = ?, total_pnl = ? WHERE id = ?`,
		status, endedAt, trades, totalPnL, id)
	return err
}

// RecordDecision appends one decision audit record.
func (s *Store) RecordDecision(ctx context.Context, d Decision) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (session_id, symbol, total_sources, buy_signals, hold_signals, sell_signals, buy_pct, should_buy, size, allowed, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.Symbol, d.TotalSources, d.BuySignals, d.HoldSignals, d.SellSignals,
		d.BuyPct, d.ShouldBuy, d.Size, d.Allowed, d.Reason, time.Now())
	return err
}

// RecordTransaction appends one transaction audit record.
func (s *Store) RecordTransaction(ctx context.Context, t Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (session_id, client_order_id, order_id, symbol, side, quantity, price, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.ClientOrderID, t.OrderID, t.Symbol, t.Side, t.Quantity, t.Price, t.Status, time.Now())
	return err
}

// UpsertPosition mirrors a confirmed position into the durable store.
func (s *Store) UpsertPosition(ctx context.Context, pos broker.Position) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (symbol, quantity, entry_price, stop_loss, take_profit, opened_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET
			quantity = excluded.quantity,
			entry_price = excluded.entry_price,
			stop_loss = excluded.stop_loss,
			take_profit = excluded.take_profit,
			updated_at = excluded.updated_at`,
		pos.Symbol, pos.Quantity, pos.EntryPrice, pos.StopLoss, pos.TakeProfit, pos.OpenedAt, time.Now())
	return err
}

// DeletePosition removes a closed position from the durable store.
func (s *Store) DeletePosition(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol)
	return err
}

// DecisionCount returns the number of audited decisions for a session.
func (s *Store) DecisionCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
