package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ducminhle1904/crypto-trade-gate/internal/logger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/orchestrator"
)

// SQLiteJournal stores decisions and realized trades in a SQLite file
type SQLiteJournal struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSQLite opens (or creates) the journal at path
func NewSQLite(path string, log *logger.Logger) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; the driver serialises anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &SQLiteJournal{db: db, logger: log}, nil
}

// RecordDecision appends one pipeline outcome
func (j *SQLiteJournal) RecordDecision(d Decision) error {
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(time, kind, status, symbol, action, price, confidence, notional, category, reason, order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Time.UTC(), d.Kind, d.Status, d.Symbol, d.Action, d.Price,
		d.Confidence, d.Notional, d.Category, d.Reason, d.OrderID,
	)
	return err
}

// RecordTrade stores a realized position
func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(position_id, symbol, side, size, entry_price, exit_price, cost, entry_time, exit_time, realized_pnl, return_pct, exit_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.PositionID, t.Symbol, t.Side, t.Size, t.EntryPrice, t.ExitPrice, t.Cost,
		t.EntryTime.UTC(), t.ExitTime.UTC(), t.RealizedPnL, t.ReturnPct, t.ExitType,
	)
	return err
}

// ObserveResult journals a pipeline result. Write failures are logged only.
func (j *SQLiteJournal) ObserveResult(res orchestrator.Result) {
	d := Decision{
		Time:       res.Time,
		Kind:       string(res.Kind),
		Status:     string(res.Status),
		Symbol:     res.Signal.Symbol,
		Action:     string(res.Signal.Action),
		Price:      res.Signal.Price,
		Confidence: res.Signal.Confidence,
		Notional:   res.Notional,
		Category:   string(res.Category),
		Reason:     res.Reason,
	}
	if res.Order != nil {
		d.OrderID = res.Order.ID
		if d.Symbol == "" {
			d.Symbol = res.Order.Symbol
		}
	}
	if err := j.RecordDecision(d); err != nil {
		j.logger.LogError("journal decision", err)
	}

	if c := res.Closed; c != nil {
		err := j.RecordTrade(TradeRecord{
			PositionID:  c.ID,
			Symbol:      c.Symbol,
			Side:        string(c.Side),
			Size:        c.Size,
			EntryPrice:  c.EntryPrice,
			ExitPrice:   c.ExitPrice,
			Cost:        c.Cost,
			EntryTime:   c.EntryTime,
			ExitTime:    c.ExitTime,
			RealizedPnL: c.RealizedPnL,
			ReturnPct:   c.ReturnPct,
			ExitType:    string(c.ExitType),
		})
		if err != nil {
			j.logger.LogError("journal trade", err)
		}
	}
}

// ListDecisions returns the most recent decisions, newest first. A
// non-positive limit returns all of them.
func (j *SQLiteJournal) ListDecisions(ctx context.Context, limit int) ([]Decision, error) {
	query := `SELECT id, time, kind, status, symbol, action, price, confidence, notional, category, reason, order_id
		FROM decisions ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.Time, &d.Kind, &d.Status, &d.Symbol, &d.Action, &d.Price,
			&d.Confidence, &d.Notional, &d.Category, &d.Reason, &d.OrderID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListTrades returns realized trades in exit order
func (j *SQLiteJournal) ListTrades(ctx context.Context) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT position_id, symbol, side, size, entry_price, exit_price, cost, entry_time, exit_time, realized_pnl, return_pct, exit_type
		FROM trades ORDER BY exit_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.PositionID, &t.Symbol, &t.Side, &t.Size, &t.EntryPrice, &t.ExitPrice, &t.Cost,
			&t.EntryTime, &t.ExitTime, &t.RealizedPnL, &t.ReturnPct, &t.ExitType); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
