package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// JournalStore implements domain.JournalStore using PostgreSQL. Trades and
// confirmations are journaled as typed columns plus the raw JSON payload, so
// SLA queries stay fast while the original record is never lost.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a new JournalStore backed by the given pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// RecordTrade journals a trade. Re-recording the same trade_id overwrites the
// previous row (last write wins).
func (s *JournalStore) RecordTrade(ctx context.Context, t domain.Trade, raw []byte) error {
	const query = `
		INSERT INTO trade_journal (
			trade_id, symbol, side, qty, price, notional, account,
			exec_time, settle_date, exec_broker, customer_type, raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (trade_id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			side = EXCLUDED.side,
			qty = EXCLUDED.qty,
			price = EXCLUDED.price,
			notional = EXCLUDED.notional,
			account = EXCLUDED.account,
			exec_time = EXCLUDED.exec_time,
			settle_date = EXCLUDED.settle_date,
			exec_broker = EXCLUDED.exec_broker,
			customer_type = EXCLUDED.customer_type,
			raw = EXCLUDED.raw,
			recorded_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.Symbol, string(t.Side), t.Qty, t.Price, t.Notional,
		t.Account, t.ExecTime, t.SettleDate, t.ExecBroker, t.CustomerType, raw,
	)
	if err != nil {
		return fmt.Errorf("postgres: record trade %s: %w", t.TradeID, err)
	}
	return nil
}

// RecordConfirm journals a confirmation, last write wins per trade_id.
func (s *JournalStore) RecordConfirm(ctx context.Context, c domain.Confirm, raw []byte) error {
	const query = `
		INSERT INTO confirm_journal (
			trade_id, symbol, side, qty, price, notional, account,
			confirm_time, settle_date, exec_broker, raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (trade_id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			side = EXCLUDED.side,
			qty = EXCLUDED.qty,
			price = EXCLUDED.price,
			notional = EXCLUDED.notional,
			account = EXCLUDED.account,
			confirm_time = EXCLUDED.confirm_time,
			settle_date = EXCLUDED.settle_date,
			exec_broker = EXCLUDED.exec_broker,
			raw = EXCLUDED.raw,
			recorded_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		c.TradeID, c.Symbol, string(c.Side), c.Qty, c.Price, c.Notional,
		c.Account, c.ConfirmTime, c.SettleDate, c.ExecBroker, raw,
	)
	if err != nil {
		return fmt.Errorf("postgres: record confirm %s: %w", c.TradeID, err)
	}
	return nil
}

// ListMissing returns journaled trades executed at or before cutoff that have
// no confirmation on record. A confirmation counts if it matches on trade_id,
// or failing that on account+symbol with quantity inside a small relative
// tolerance (fat-fingered identifiers still pair up).
func (s *JournalStore) ListMissing(ctx context.Context, cutoff time.Time, limit int) ([]domain.MissingTrade, error) {
	query := `
		SELECT t.trade_id, t.account, t.symbol, t.qty, t.exec_time
		FROM trade_journal t
		WHERE t.exec_time <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM confirm_journal c WHERE c.trade_id = t.trade_id
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM confirm_journal c
			WHERE c.account = t.account
			  AND c.symbol = t.symbol
			  AND ABS(c.qty - t.qty)::float8 <= GREATEST(1e-9, 0.0001 * ABS(t.qty)::float8)
		  )
		ORDER BY t.exec_time ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list missing: %w", err)
	}
	defer rows.Close()

	var out []domain.MissingTrade
	for rows.Next() {
		var m domain.MissingTrade
		if err := rows.Scan(&m.TradeID, &m.Account, &m.Symbol, &m.Qty, &m.ExecTime); err != nil {
			return nil, fmt.Errorf("postgres: scan missing row: %w", err)
		}
		m.Detail = fmt.Sprintf("No confirmation on record for %s.", m.TradeID)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate missing rows: %w", err)
	}
	return out, nil
}

const tradeJournalCols = `trade_id, symbol, side, qty, price, notional,
	account, exec_time, settle_date, exec_broker, customer_type`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var (
			t    domain.Trade
			side string
		)
		if err := rows.Scan(
			&t.TradeID, &t.Symbol, &side, &t.Qty, &t.Price, &t.Notional,
			&t.Account, &t.ExecTime, &t.SettleDate, &t.ExecBroker, &t.CustomerType,
		); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListTradesBefore returns journaled trades executed strictly before the
// given time, oldest first (for archiving).
func (s *JournalStore) ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeJournalCols + ` FROM trade_journal WHERE exec_time < $1 ORDER BY exec_time ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before: %w", err)
	}
	return trades, nil
}

// ListConfirmsBefore returns journaled confirmations received strictly before
// the given time, oldest first.
func (s *JournalStore) ListConfirmsBefore(ctx context.Context, before time.Time) ([]domain.Confirm, error) {
	const query = `
		SELECT trade_id, symbol, side, qty, price, notional,
			account, confirm_time, settle_date, exec_broker
		FROM confirm_journal
		WHERE confirm_time < $1
		ORDER BY confirm_time ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list confirms before: %w", err)
	}
	defer rows.Close()

	var confirms []domain.Confirm
	for rows.Next() {
		var (
			c    domain.Confirm
			side string
		)
		if err := rows.Scan(
			&c.TradeID, &c.Symbol, &side, &c.Qty, &c.Price, &c.Notional,
			&c.Account, &c.ConfirmTime, &c.SettleDate, &c.ExecBroker,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan confirm row: %w", err)
		}
		c.Side = domain.Side(side)
		confirms = append(confirms, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate confirm rows: %w", err)
	}
	return confirms, nil
}
