package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// BreakStore implements domain.BreakStore using PostgreSQL.
type BreakStore struct {
	pool *pgxpool.Pool
}

// NewBreakStore creates a new BreakStore backed by the given pool.
func NewBreakStore(pool *pgxpool.Pool) *BreakStore {
	return &BreakStore{pool: pool}
}

const breakSelectCols = `break_id, trade_id, break_type, severity, detail,
	detected_ms, created_at, notional_usd, est_turnover_drag_bp`

func scanBreakRows(rows pgx.Rows) ([]domain.Break, error) {
	var breaks []domain.Break
	for rows.Next() {
		var (
			b        domain.Break
			btype    string
			severity string
		)
		if err := rows.Scan(
			&b.BreakID, &b.TradeID, &btype, &severity, &b.Detail,
			&b.DetectedMs, &b.CreatedAt, &b.NotionalUSD, &b.EstTurnoverDragBp,
		); err != nil {
			return nil, err
		}
		b.Type = domain.BreakType(btype)
		b.Severity = domain.Severity(severity)
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

// Upsert writes a break keyed by break_id, overwriting any previous row for
// the same trade and rule.
func (s *BreakStore) Upsert(ctx context.Context, b domain.Break) error {
	const query = `
		INSERT INTO breaks (
			break_id, trade_id, break_type, severity, detail,
			detected_ms, created_at, notional_usd, est_turnover_drag_bp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (break_id) DO UPDATE SET
			severity = EXCLUDED.severity,
			detail = EXCLUDED.detail,
			detected_ms = EXCLUDED.detected_ms,
			created_at = EXCLUDED.created_at,
			notional_usd = EXCLUDED.notional_usd,
			est_turnover_drag_bp = EXCLUDED.est_turnover_drag_bp`

	_, err := s.pool.Exec(ctx, query,
		b.BreakID, b.TradeID, string(b.Type), string(b.Severity), b.Detail,
		b.DetectedMs, b.CreatedAt, b.NotionalUSD, b.EstTurnoverDragBp,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert break %s: %w", b.BreakID, err)
	}
	return nil
}

// ListRecent returns the newest breaks first, capped at limit.
func (s *BreakStore) ListRecent(ctx context.Context, limit int) ([]domain.Break, error) {
	query := `SELECT ` + breakSelectCols + ` FROM breaks ORDER BY created_at DESC, break_id ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent breaks: %w", err)
	}
	defer rows.Close()

	breaks, err := scanBreakRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent breaks: %w", err)
	}
	return breaks, nil
}

// ListBefore returns all breaks created strictly before the given time,
// oldest first (for archiving).
func (s *BreakStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Break, error) {
	query := `SELECT ` + breakSelectCols + ` FROM breaks WHERE created_at < $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list breaks before: %w", err)
	}
	defer rows.Close()

	breaks, err := scanBreakRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan breaks before: %w", err)
	}
	return breaks, nil
}
