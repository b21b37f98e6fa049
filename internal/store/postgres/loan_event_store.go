package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurumfi/goldvault/internal/domain"
)

// LoanEventStore implements domain.LoanEventStore using PostgreSQL.
type LoanEventStore struct {
	pool *pgxpool.Pool
}

// NewLoanEventStore creates a new LoanEventStore backed by the given
// connection pool.
func NewLoanEventStore(pool *pgxpool.Pool) *LoanEventStore {
	return &LoanEventStore{pool: pool}
}

const loanEventSelectCols = `id, flow_id, wallet, kind, step, tx_hash, detail, created_at`

func scanLoanEventRows(rows pgx.Rows) ([]domain.LoanEvent, error) {
	var events []domain.LoanEvent
	for rows.Next() {
		var (
			ev   domain.LoanEvent
			step string
		)
		if err := rows.Scan(
			&ev.ID, &ev.FlowID, &ev.Wallet, &ev.Kind,
			&step, &ev.TxHash, &ev.Detail, &ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		ev.Step = domain.FlowStep(step)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Append inserts one flow transition into the audit log.
func (s *LoanEventStore) Append(ctx context.Context, ev domain.LoanEvent) error {
	detail := ev.Detail
	if detail == nil {
		detail = map[string]any{}
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO loan_events (flow_id, wallet, kind, step, tx_hash, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.FlowID, ev.Wallet, ev.Kind, string(ev.Step), ev.TxHash, detail, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append loan event: %w", err)
	}
	return nil
}

// ListByWallet returns a wallet's flow transitions, newest first.
func (s *LoanEventStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.LoanEvent, error) {
	query := `SELECT ` + loanEventSelectCols + ` FROM loan_events WHERE wallet = $1 ORDER BY created_at DESC, id DESC`
	args := []any{wallet}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list loan events by wallet: %w", err)
	}
	defer rows.Close()

	events, err := scanLoanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan loan events by wallet: %w", err)
	}
	return events, nil
}

// ListBefore returns events created strictly before the cutoff, oldest first,
// for archiving. A positive limit caps the batch size.
func (s *LoanEventStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.LoanEvent, error) {
	query := `SELECT ` + loanEventSelectCols + ` FROM loan_events WHERE created_at < $1 ORDER BY created_at ASC, id ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list loan events before: %w", err)
	}
	defer rows.Close()

	events, err := scanLoanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan loan events before: %w", err)
	}
	return events, nil
}

// DeleteBefore deletes events created before the cutoff. Returns the number
// deleted.
func (s *LoanEventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM loan_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete loan events before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.LoanEventStore = (*LoanEventStore)(nil)
