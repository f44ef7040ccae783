package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	_ "github.com/glebarez/go-sqlite"

	"github.com/linhhnbkdn/brokerage/internal/domain"
)

// Store is the queryable persisted store for orders, executions, price
// snapshots and market events, backed by SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the venue database with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id         TEXT PRIMARY KEY,
			user_id          INTEGER NOT NULL,
			symbol           TEXT NOT NULL,
			side             TEXT NOT NULL,
			order_type       TEXT NOT NULL,
			quantity         TEXT NOT NULL,
			price            TEXT,
			stop_price       TEXT,
			filled_quantity  TEXT NOT NULL,
			filled_value     TEXT NOT NULL DEFAULT '0',
			avg_fill_price   TEXT,
			status           TEXT NOT NULL,
			time_in_force    TEXT NOT NULL,
			reject_reason    TEXT NOT NULL DEFAULT '',
			created_unixm    INTEGER NOT NULL,
			submitted_unixm  INTEGER NOT NULL DEFAULT 0,
			filled_unixm     INTEGER NOT NULL DEFAULT 0,
			cancelled_unixm  INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, created_unixm);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_unixm);`,
		`CREATE TABLE IF NOT EXISTS executions (
			execution_id   TEXT PRIMARY KEY,
			order_id       TEXT NOT NULL REFERENCES orders(order_id),
			quantity       TEXT NOT NULL,
			price          TEXT NOT NULL,
			commission     TEXT NOT NULL,
			executed_unixm INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_executions_order ON executions(order_id, executed_unixm);`,
		`CREATE TABLE IF NOT EXISTS market_data (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol         TEXT NOT NULL,
			price          TEXT NOT NULL,
			change         TEXT NOT NULL,
			change_percent TEXT NOT NULL,
			volume         INTEGER NOT NULL,
			bid            TEXT NOT NULL,
			ask            TEXT NOT NULL,
			ts_unixm       INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_market_data_symbol ON market_data(symbol, ts_unixm DESC);`,
		`CREATE TABLE IF NOT EXISTS market_events (
			event_id      TEXT PRIMARY KEY,
			symbol        TEXT NOT NULL,
			event_type    TEXT NOT NULL,
			impact        TEXT NOT NULL,
			title         TEXT NOT NULL,
			description   TEXT NOT NULL,
			active        INTEGER NOT NULL DEFAULT 1,
			created_unixm INTEGER NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// SaveOrder inserts or replaces the full order row.
func (s *Store) SaveOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (
			order_id, user_id, symbol, side, order_type, quantity, price,
			stop_price, filled_quantity, filled_value, avg_fill_price, status,
			time_in_force, reject_reason, created_unixm, submitted_unixm,
			filled_unixm, cancelled_unixm
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			filled_quantity=excluded.filled_quantity,
			filled_value=excluded.filled_value,
			avg_fill_price=excluded.avg_fill_price,
			status=excluded.status,
			reject_reason=excluded.reject_reason,
			submitted_unixm=excluded.submitted_unixm,
			filled_unixm=excluded.filled_unixm,
			cancelled_unixm=excluded.cancelled_unixm`,
		o.ID, o.UserID, o.Symbol, o.Side, o.Type, o.Quantity.String(),
		decimalPtrToNull(o.Price), decimalPtrToNull(o.StopPrice),
		o.FilledQty.String(), o.FilledValue.String(),
		decimalPtrToNull(o.AvgPrice), o.Status, o.TimeInForce,
		o.RejectReason, o.CreatedUnixM, o.SubmittedUnixM,
		o.FilledUnixM, o.CancelledUnixM,
	)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", o.ID, err)
	}
	return nil
}

// GetOrder loads one order by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, user_id, symbol, side, order_type, quantity, price,
		       stop_price, filled_quantity, filled_value, avg_fill_price, status, time_in_force,
		       reject_reason, created_unixm, submitted_unixm, filled_unixm, cancelled_unixm
		FROM orders WHERE order_id = ?`, orderID)
	return scanOrder(row)
}

// OpenOrders returns every order in submitted or partial state, oldest first,
// for the matching loop.
func (s *Store) OpenOrders(ctx context.Context) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, user_id, symbol, side, order_type, quantity, price,
		       stop_price, filled_quantity, filled_value, avg_fill_price, status, time_in_force,
		       reject_reason, created_unixm, submitted_unixm, filled_unixm, cancelled_unixm
		FROM orders WHERE status IN (?, ?) ORDER BY created_unixm ASC`,
		domain.StatusSubmitted, domain.StatusPartial)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// UserOrders returns a user's orders, newest first. Status filters when
// non-empty; limit caps the result.
func (s *Store) UserOrders(ctx context.Context, userID int64, status string, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT order_id, user_id, symbol, side, order_type, quantity, price,
		       stop_price, filled_quantity, filled_value, avg_fill_price, status, time_in_force,
		       reject_reason, created_unixm, submitted_unixm, filled_unixm, cancelled_unixm
		FROM orders WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_unixm DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// SaveExecution stores one immutable fill record.
func (s *Store) SaveExecution(ctx context.Context, e *domain.Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, order_id, quantity, price, commission, executed_unixm)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrderID, e.Quantity.String(), e.Price.String(),
		e.Commission.String(), e.ExecutedUnixM,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", e.ID, err)
	}
	return nil
}

// ExecutionsForOrder returns an order's fills, newest first.
func (s *Store) ExecutionsForOrder(ctx context.Context, orderID string) ([]*domain.Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, order_id, quantity, price, commission, executed_unixm
		FROM executions WHERE order_id = ? ORDER BY executed_unixm DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var execs []*domain.Execution
	for rows.Next() {
		var e domain.Execution
		var qty, price, commission string
		if err := rows.Scan(&e.ID, &e.OrderID, &qty, &price, &commission, &e.ExecutedUnixM); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		if e.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("bad execution quantity %q: %w", qty, err)
		}
		if e.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("bad execution price %q: %w", price, err)
		}
		if e.Commission, err = decimal.NewFromString(commission); err != nil {
			return nil, fmt.Errorf("bad execution commission %q: %w", commission, err)
		}
		execs = append(execs, &e)
	}
	return execs, rows.Err()
}

// SaveSnapshot appends one price snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.PriceSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_data (symbol, price, change, change_percent, volume, bid, ask, ts_unixm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Symbol, snap.Price.String(), snap.Change.String(),
		snap.ChangePercent.String(), snap.Volume, snap.Bid.String(),
		snap.Ask.String(), snap.TsUnixM,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", snap.Symbol, err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot for a symbol, or
// sql.ErrNoRows when none exists yet.
func (s *Store) LatestSnapshot(ctx context.Context, symbol string) (*domain.PriceSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, price, change, change_percent, volume, bid, ask, ts_unixm
		FROM market_data WHERE symbol = ? ORDER BY ts_unixm DESC, id DESC LIMIT 1`, symbol)

	var snap domain.PriceSnapshot
	var price, change, changePct, bid, ask string
	err := row.Scan(&snap.Symbol, &price, &change, &changePct, &snap.Volume, &bid, &ask, &snap.TsUnixM)
	if err != nil {
		return nil, err
	}
	if snap.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("bad snapshot price %q: %w", price, err)
	}
	if snap.Change, err = decimal.NewFromString(change); err != nil {
		return nil, fmt.Errorf("bad snapshot change %q: %w", change, err)
	}
	if snap.ChangePercent, err = decimal.NewFromString(changePct); err != nil {
		return nil, fmt.Errorf("bad snapshot change_percent %q: %w", changePct, err)
	}
	if snap.Bid, err = decimal.NewFromString(bid); err != nil {
		return nil, fmt.Errorf("bad snapshot bid %q: %w", bid, err)
	}
	if snap.Ask, err = decimal.NewFromString(ask); err != nil {
		return nil, fmt.Errorf("bad snapshot ask %q: %w", ask, err)
	}
	return &snap, nil
}

// SaveMarketEvent stores one generated market event.
func (s *Store) SaveMarketEvent(ctx context.Context, ev *domain.MarketEvent) error {
	active := 0
	if ev.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_events (event_id, symbol, event_type, impact, title, description, active, created_unixm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Symbol, ev.EventType, ev.Impact, ev.Title, ev.Description, active, ev.CreatedUnixM,
	)
	if err != nil {
		return fmt.Errorf("failed to save market event %s: %w", ev.ID, err)
	}
	return nil
}

// RetractMarketEvent clears the active flag; the row is otherwise write-once.
func (s *Store) RetractMarketEvent(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE market_events SET active = 0 WHERE event_id = ?", eventID)
	if err != nil {
		return fmt.Errorf("failed to retract market event %s: %w", eventID, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func decimalPtrToNull(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var qty, filledQty, filledValue string
	var price, stopPrice, avgPrice sql.NullString

	err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &o.Side, &o.Type, &qty,
		&price, &stopPrice, &filledQty, &filledValue, &avgPrice, &o.Status,
		&o.TimeInForce, &o.RejectReason, &o.CreatedUnixM, &o.SubmittedUnixM,
		&o.FilledUnixM, &o.CancelledUnixM)
	if err != nil {
		return nil, err
	}

	if o.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("bad order quantity %q: %w", qty, err)
	}
	if o.FilledQty, err = decimal.NewFromString(filledQty); err != nil {
		return nil, fmt.Errorf("bad filled quantity %q: %w", filledQty, err)
	}
	if o.FilledValue, err = decimal.NewFromString(filledValue); err != nil {
		return nil, fmt.Errorf("bad filled value %q: %w", filledValue, err)
	}
	if o.Price, err = nullToDecimalPtr(price); err != nil {
		return nil, err
	}
	if o.StopPrice, err = nullToDecimalPtr(stopPrice); err != nil {
		return nil, err
	}
	if o.AvgPrice, err = nullToDecimalPtr(avgPrice); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]*domain.Order, error) {
	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func nullToDecimalPtr(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, fmt.Errorf("bad decimal column %q: %w", ns.String, err)
	}
	return &d, nil
}
