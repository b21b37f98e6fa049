package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurumfi/goldvault/internal/domain"
)

// RedemptionStore implements domain.RedemptionStore using PostgreSQL.
// Amounts are stored as NUMERIC(78,0) and travel as decimal strings so the
// full uint256 range survives the round trip.
type RedemptionStore struct {
	pool *pgxpool.Pool
}

// NewRedemptionStore creates a new RedemptionStore backed by the given
// connection pool.
func NewRedemptionStore(pool *pgxpool.Pool) *RedemptionStore {
	return &RedemptionStore{pool: pool}
}

const redemptionSelectCols = `id, reference_number, wallet, tx_hash, amount::text,
	bank_account, status, submitted_at, completed_at`

func scanRedemptionRows(rows pgx.Rows) ([]domain.Redemption, error) {
	var reds []domain.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		reds = append(reds, r)
	}
	return reds, rows.Err()
}

func scanRedemption(row pgx.Row) (domain.Redemption, error) {
	var (
		r      domain.Redemption
		amount string
		status string
	)
	if err := row.Scan(
		&r.ID, &r.ReferenceNumber, &r.Wallet, &r.TxHash, &amount,
		&r.BankAccount, &status, &r.SubmittedAt, &r.CompletedAt,
	); err != nil {
		return domain.Redemption{}, err
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return domain.Redemption{}, fmt.Errorf("malformed amount %q for redemption %s", amount, r.ID)
	}
	r.Amount = amt
	r.Status = domain.RedemptionStatus(status)
	return r, nil
}

// Create inserts a newly submitted redemption. Inserting an existing ID
// returns domain.ErrAlreadyExists.
func (s *RedemptionStore) Create(ctx context.Context, r domain.Redemption) error {
	amount := "0"
	if r.Amount != nil {
		amount = r.Amount.String()
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO redemptions (id, reference_number, wallet, tx_hash, amount, bank_account, status, submitted_at, completed_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.ReferenceNumber, r.Wallet, r.TxHash, amount,
		r.BankAccount, string(r.Status), r.SubmittedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create redemption %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create redemption %s: %w", r.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// UpdateStatus records a status change reported by the redemption service.
// It returns domain.ErrNotFound for an unknown ID.
func (s *RedemptionStore) UpdateStatus(ctx context.Context, id string, status domain.RedemptionStatus, completedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE redemptions SET status = $2, completed_at = COALESCE($3, completed_at)
		WHERE id = $1`,
		id, string(status), completedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update redemption %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update redemption %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID fetches a redemption, returning domain.ErrNotFound when absent.
func (s *RedemptionStore) GetByID(ctx context.Context, id string) (domain.Redemption, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+redemptionSelectCols+` FROM redemptions WHERE id = $1`, id)

	r, err := scanRedemption(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Redemption{}, domain.ErrNotFound
		}
		return domain.Redemption{}, fmt.Errorf("postgres: get redemption %s: %w", id, err)
	}
	return r, nil
}

// ListPending returns non-terminal redemptions, oldest first, for the
// settlement watcher. A positive limit caps the batch size.
func (s *RedemptionStore) ListPending(ctx context.Context, limit int) ([]domain.Redemption, error) {
	query := `SELECT ` + redemptionSelectCols + ` FROM redemptions
		WHERE status IN ($1, $2) ORDER BY submitted_at ASC`
	args := []any{string(domain.RedemptionPending), string(domain.RedemptionProcessing)}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending redemptions: %w", err)
	}
	defer rows.Close()

	reds, err := scanRedemptionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pending redemptions: %w", err)
	}
	return reds, nil
}

// ListByWallet returns a wallet's redemptions, newest first.
func (s *RedemptionStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Redemption, error) {
	query := `SELECT ` + redemptionSelectCols + ` FROM redemptions WHERE wallet = $1 ORDER BY submitted_at DESC`
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
		return nil, fmt.Errorf("postgres: list redemptions by wallet: %w", err)
	}
	defer rows.Close()

	reds, err := scanRedemptionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan redemptions by wallet: %w", err)
	}
	return reds, nil
}

// ListCompletedBefore returns terminal redemptions completed strictly before
// the cutoff, oldest first, for archiving.
func (s *RedemptionStore) ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Redemption, error) {
	query := `SELECT ` + redemptionSelectCols + ` FROM redemptions
		WHERE status IN ($1, $2) AND completed_at IS NOT NULL AND completed_at < $3
		ORDER BY completed_at ASC`
	args := []any{string(domain.RedemptionCompleted), string(domain.RedemptionFailed), cutoff}
	if limit > 0 {
		query += " LIMIT $4"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list completed redemptions before: %w", err)
	}
	defer rows.Close()

	reds, err := scanRedemptionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan completed redemptions before: %w", err)
	}
	return reds, nil
}

// DeleteCompletedBefore deletes terminal redemptions completed before the
// cutoff. Returns the number deleted.
func (s *RedemptionStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM redemptions
		WHERE status IN ($1, $2) AND completed_at IS NOT NULL AND completed_at < $3`,
		string(domain.RedemptionCompleted), string(domain.RedemptionFailed), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete completed redemptions before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.RedemptionStore = (*RedemptionStore)(nil)
