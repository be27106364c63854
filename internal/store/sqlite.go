package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"quantbt/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS backtests (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy       TEXT NOT NULL,
	params         TEXT NOT NULL,
	market         TEXT NOT NULL,
	symbols        TEXT NOT NULL,
	initial_cash   REAL NOT NULL,
	summary        TEXT NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	backtest_id       INTEGER NOT NULL REFERENCES backtests(id),
	symbol            TEXT NOT NULL,
	side              TEXT NOT NULL,
	quantity          INTEGER NOT NULL,
	signal_price      REAL NOT NULL,
	signal_date       TEXT NOT NULL,
	fill_price        REAL NOT NULL,
	fill_date         TEXT NOT NULL,
	commission        REAL NOT NULL,
	closed            INTEGER NOT NULL,
	exit_signal_price REAL NOT NULL,
	exit_fill_price   REAL NOT NULL,
	exit_date         TEXT NOT NULL,
	exit_commission   REAL NOT NULL,
	pnl               REAL NOT NULL,
	pnl_percent       REAL NOT NULL,
	holding_days      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS equity_points (
	backtest_id INTEGER NOT NULL REFERENCES backtests(id),
	date        TEXT NOT NULL,
	equity      REAL NOT NULL,
	cash        REAL NOT NULL,
	drawdown    REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_backtest ON trades(backtest_id);
CREATE INDEX IF NOT EXISTS idx_equity_backtest ON equity_points(backtest_id);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun persists a run with its trades and equity curve in one
// transaction and returns the assigned ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) (int64, error) {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return 0, err
	}
	symbolsJSON, err := json.Marshal(run.Symbols)
	if err != nil {
		return 0, err
	}
	// A profit factor of +Inf (winners with no losers) is not valid JSON;
	// clamp non-finite statistics before encoding.
	summary := run.Summary
	summary.ProfitFactor = clampFinite(summary.ProfitFactor)
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return 0, err
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO backtests (strategy, params, market, symbols, initial_cash, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.Strategy, string(paramsJSON), string(run.Market), string(symbolsJSON),
		run.InitialCash, string(summaryJSON), createdAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("inserting backtest: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, t := range run.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trades (backtest_id, symbol, side, quantity, signal_price, signal_date,
				fill_price, fill_date, commission, closed, exit_signal_price, exit_fill_price,
				exit_date, exit_commission, pnl, pnl_percent, holding_days)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, t.Symbol, string(t.Side), t.Quantity, t.SignalPrice,
			t.SignalDate.Format(time.RFC3339), t.FillPrice, t.FillDate.Format(time.RFC3339),
			t.Commission, boolToInt(t.Closed), t.ExitSignalPrice, t.ExitFillPrice,
			t.ExitDate.Format(time.RFC3339), t.ExitCommission, t.PnL, t.PnLPercent,
			t.HoldingDays); err != nil {
			return 0, fmt.Errorf("inserting trade: %w", err)
		}
	}

	for _, p := range run.EquityCurve {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO equity_points (backtest_id, date, equity, cash, drawdown)
			VALUES (?, ?, ?, ?, ?)`,
			id, p.Date.Format(time.RFC3339), p.Equity, p.Cash, p.Drawdown); err != nil {
			return 0, fmt.Errorf("inserting equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetRun retrieves a run with its trades and equity curve by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, params, market, symbols, initial_cash, summary, created_at
		FROM backtests WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("backtest %d not found", id)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, side, quantity, signal_price, signal_date, fill_price, fill_date,
			commission, closed, exit_signal_price, exit_fill_price, exit_date,
			exit_commission, pnl, pnl_percent, holding_days
		FROM trades WHERE backtest_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t domain.Trade
		var side, signalDate, fillDate, exitDate string
		var closed int
		if err := rows.Scan(&t.Symbol, &side, &t.Quantity, &t.SignalPrice, &signalDate,
			&t.FillPrice, &fillDate, &t.Commission, &closed, &t.ExitSignalPrice,
			&t.ExitFillPrice, &exitDate, &t.ExitCommission, &t.PnL, &t.PnLPercent,
			&t.HoldingDays); err != nil {
			return nil, err
		}
		t.Side = domain.OrderSide(side)
		t.Closed = closed != 0
		t.SignalDate, _ = time.Parse(time.RFC3339, signalDate)
		t.FillDate, _ = time.Parse(time.RFC3339, fillDate)
		t.ExitDate, _ = time.Parse(time.RFC3339, exitDate)
		run.Trades = append(run.Trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	curveRows, err := s.db.QueryContext(ctx, `
		SELECT date, equity, cash, drawdown
		FROM equity_points WHERE backtest_id = ? ORDER BY date`, id)
	if err != nil {
		return nil, err
	}
	defer curveRows.Close()
	for curveRows.Next() {
		var p domain.EquityPoint
		var date string
		if err := curveRows.Scan(&date, &p.Equity, &p.Cash, &p.Drawdown); err != nil {
			return nil, err
		}
		p.Date, _ = time.Parse(time.RFC3339, date)
		run.EquityCurve = append(run.EquityCurve, p)
	}
	if err := curveRows.Err(); err != nil {
		return nil, err
	}

	return run, nil
}

// ListRuns returns run headers, newest first, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, params, market, symbols, initial_cash, summary, created_at
		FROM backtests ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var params, market, symbols, summary, createdAt string
	if err := row.Scan(&run.ID, &run.Strategy, &params, &market, &symbols,
		&run.InitialCash, &summary, &createdAt); err != nil {
		return nil, err
	}
	run.Market = domain.Market(market)
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}
	if err := json.Unmarshal([]byte(symbols), &run.Symbols); err != nil {
		return nil, fmt.Errorf("decoding symbols: %w", err)
	}
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return nil, fmt.Errorf("decoding summary: %w", err)
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &run, nil
}

func clampFinite(v float64) float64 {
	if math.IsInf(v, 1) || math.IsNaN(v) {
		return math.MaxFloat64
	}
	if math.IsInf(v, -1) {
		return -math.MaxFloat64
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
