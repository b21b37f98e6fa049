package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// LoanEvent is one audit row: a flow state transition or terminal outcome.
type LoanEvent struct {
	ID        int64
	FlowID    string
	Wallet    string
	Kind      string // "borrow" or "repay"
	Step      FlowStep
	TxHash    string
	Detail    map[string]any
	CreatedAt time.Time
}

// LoanEventStore persists an append-only log of flow transitions.
type LoanEventStore interface {
	Append(ctx context.Context, ev LoanEvent) error
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]LoanEvent, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]LoanEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RedemptionStore persists submitted redemptions and their status updates.
type RedemptionStore interface {
	Create(ctx context.Context, r Redemption) error
	UpdateStatus(ctx context.Context, id string, status RedemptionStatus, completedAt *time.Time) error
	GetByID(ctx context.Context, id string) (Redemption, error)
	ListPending(ctx context.Context, limit int) ([]Redemption, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]Redemption, error)
	ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Redemption, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BlobWriter stores an archive object. Implemented by the S3 blob package.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte) error
}

// BlobInfo describes one stored archive object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader retrieves and inspects archive objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}
