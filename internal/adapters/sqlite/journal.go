package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"statArbExecutor/internal/domain"
	"statArbExecutor/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const defaultQueryLimit = 50

// Journal implements ports.ExecutionJournal using SQLite. It is an append
// oriented audit trail: orders, fills and P&L snapshots are written as they
// happen and queried only for history views.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite journal.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewJournal opens (or creates) the journal database and ensures the schema.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for SQLite journal", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/execution_journal.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the writer and history queries.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, logger: cfg.Logger}
	if err := j.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize journal schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "Execution journal opened", map[string]interface{}{"path": dbPath})
	return j, nil
}

// initializeSchema creates tables if they don't exist.
func (j *Journal) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id INTEGER NOT NULL,
		client_order_id TEXT NOT NULL,
		pair_name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		order_type TEXT NOT NULL,
		limit_price REAL DEFAULT NULL,
		status TEXT NOT NULL,
		filled_qty INTEGER NOT NULL DEFAULT 0,
		avg_fill_price REAL NOT NULL DEFAULT 0,
		submitted_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id INTEGER NOT NULL,
		pair_name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		filled_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pnl_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		total_pnl REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		unrealized_pnl REAL NOT NULL,
		drawdown REAL NOT NULL,
		peak_value REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_correlation ON orders (correlation_id);
	CREATE INDEX IF NOT EXISTS idx_fills_correlation ON fills (correlation_id);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills (symbol);
	`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		j.logger.Info(context.Background(), "Closing execution journal")
		return j.db.Close()
	}
	return nil
}

// RecordOrder persists a freshly submitted order.
func (j *Journal) RecordOrder(ctx context.Context, po *domain.PendingOrder) error {
	const query = `
	INSERT INTO orders (correlation_id, client_order_id, pair_name, symbol, side, quantity,
	                    order_type, limit_price, status, filled_qty, avg_fill_price,
	                    submitted_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var limitPrice sql.NullFloat64
	if po.Intent.Type == domain.Limit {
		limitPrice = sql.NullFloat64{Float64: po.Intent.LimitPrice, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, query,
		po.Intent.CorrelationID, po.Intent.ClientOrderID, po.Intent.PairName,
		po.Intent.Symbol, po.Intent.Side, po.Intent.Quantity,
		po.Intent.Type, limitPrice, po.State, po.FilledQty, 0.0,
		po.SubmittedAt, po.LastUpdate)
	if err != nil {
		return fmt.Errorf("failed to insert order %d for %s: %w", po.Intent.CorrelationID, po.Intent.Symbol, err)
	}
	j.logger.Debug(ctx, "Order journaled", map[string]interface{}{
		"correlationID": po.Intent.CorrelationID,
		"symbol":        po.Intent.Symbol,
	})
	return nil
}

// UpdateOrderStatus records a lifecycle transition against the most recent
// order row carrying the correlation ID. Correlation IDs restart at 1 on
// every process start, so older rows with the same ID may exist.
func (j *Journal) UpdateOrderStatus(ctx context.Context, correlationID int64, status domain.OrderStatus, filledQty int64, avgFillPrice float64) error {
	const query = `
	UPDATE orders
	SET status = ?, filled_qty = ?, avg_fill_price = ?, updated_at = ?
	WHERE id = (SELECT id FROM orders WHERE correlation_id = ? ORDER BY id DESC LIMIT 1)`

	result, err := j.db.ExecContext(ctx, query,
		status, filledQty, avgFillPrice, time.Now().UTC(), correlationID)
	if err != nil {
		return fmt.Errorf("%w: failed to update order %d: %v", ports.ErrUpdateFailed, correlationID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for order %d: %w", correlationID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("order %d not found for status update: %w", correlationID, ports.ErrNotFound)
	}
	return nil
}

// RecordFill persists an executed fill and returns its journal row ID.
func (j *Journal) RecordFill(ctx context.Context, fill *domain.Fill) (int64, error) {
	const query = `
	INSERT INTO fills (correlation_id, pair_name, symbol, side, quantity, price, filled_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := j.db.ExecContext(ctx, query,
		fill.CorrelationID, fill.PairName, fill.Symbol, fill.Side,
		fill.Quantity, fill.Price, fill.FilledAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fill for %s: %w", fill.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for fill on %s: %w", fill.Symbol, err)
	}
	fill.ID = id
	j.logger.Debug(ctx, "Fill journaled", map[string]interface{}{
		"fillID":   id,
		"symbol":   fill.Symbol,
		"quantity": fill.Quantity,
		"price":    fill.Price,
	})
	return id, nil
}

// RecordSnapshot persists a point-in-time P&L snapshot.
func (j *Journal) RecordSnapshot(ctx context.Context, snap *domain.PnlSnapshot) error {
	const query = `
	INSERT INTO pnl_snapshots (total_pnl, realized_pnl, unrealized_pnl, drawdown, peak_value, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		snap.TotalPnl, snap.RealizedPnl, snap.UnrealizedPnl,
		snap.Drawdown, snap.PeakValue, snap.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert P&L snapshot: %w", err)
	}
	return nil
}

// RecentFills retrieves the most recent fills, newest first.
func (j *Journal) RecentFills(ctx context.Context, limit int) ([]*domain.Fill, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	const query = `
	SELECT id, correlation_id, pair_name, symbol, side, quantity, price, filled_at
	FROM fills
	ORDER BY id DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query fills: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	fills := make([]*domain.Fill, 0)
	for rows.Next() {
		fill, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fill row: %w", err)
		}
		fills = append(fills, fill)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fill rows: %w", err)
	}
	return fills, nil
}

// OrderHistory retrieves the most recent order records, newest first.
func (j *Journal) OrderHistory(ctx context.Context, limit int) ([]*domain.OrderRecord, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	const query = `
	SELECT correlation_id, client_order_id, pair_name, symbol, side, quantity,
	       order_type, limit_price, status, filled_qty, avg_fill_price,
	       submitted_at, updated_at
	FROM orders
	ORDER BY id DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query order history: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	orders := make([]*domain.OrderRecord, 0)
	for rows.Next() {
		record, err := scanOrderRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFill(s scanner) (*domain.Fill, error) {
	f := &domain.Fill{}
	var side string
	err := s.Scan(&f.ID, &f.CorrelationID, &f.PairName, &f.Symbol, &side, &f.Quantity, &f.Price, &f.FilledAt)
	if err != nil {
		return nil, err
	}
	f.Side = domain.OrderSide(side)
	return f, nil
}

func scanOrderRecord(s scanner) (*domain.OrderRecord, error) {
	r := &domain.OrderRecord{}
	var side, orderType, status string
	var limitPrice sql.NullFloat64
	err := s.Scan(
		&r.CorrelationID, &r.ClientOrderID, &r.PairName, &r.Symbol, &side, &r.Quantity,
		&orderType, &limitPrice, &status, &r.FilledQty, &r.AvgFillPrice,
		&r.SubmittedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Side = domain.OrderSide(side)
	r.Type = domain.OrderType(orderType)
	r.Status = domain.OrderStatus(status)
	if limitPrice.Valid {
		r.LimitPrice = limitPrice.Float64
	}
	return r, nil
}
