package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
)

// RedemptionTracker decorates a domain.RedemptionClient so every submitted
// redemption and every observed status change lands in the RedemptionStore.
// The orchestrator and the settlement watcher both go through it, which
// keeps the store the single source of truth for settlement history.
type RedemptionTracker struct {
	client domain.RedemptionClient
	store  domain.RedemptionStore
	logger *slog.Logger
}

// NewRedemptionTracker wraps client with store persistence. store may be
// nil, in which case the tracker is a transparent passthrough.
func NewRedemptionTracker(client domain.RedemptionClient, store domain.RedemptionStore, logger *slog.Logger) *RedemptionTracker {
	return &RedemptionTracker{
		client: client,
		store:  store,
		logger: logger.With(slog.String("component", "redemption_tracker")),
	}
}

// SubmitSelfService submits through the underlying client and records the
// accepted redemption. Persistence is best-effort; the submission already
// happened and must be reported to the caller regardless.
func (t *RedemptionTracker) SubmitSelfService(ctx context.Context, txHash string, amount *big.Int, bankAccount, wallet string) (domain.Redemption, error) {
	red, err := t.client.SubmitSelfService(ctx, txHash, amount, bankAccount, wallet)
	if err != nil {
		return domain.Redemption{}, err
	}

	if t.store != nil {
		if err := t.store.Create(ctx, red); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			t.logger.WarnContext(ctx, "record redemption failed",
				slog.String("redemption_id", red.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return red, nil
}

// SubmitTreasuryAssisted passes through; treasury redemptions are tracked by
// the treasury desk, not this backend.
func (t *RedemptionTracker) SubmitTreasuryAssisted(ctx context.Context, amount *big.Int, bankAccount, wallet string) (domain.TreasuryReceipt, error) {
	return t.client.SubmitTreasuryAssisted(ctx, amount, bankAccount, wallet)
}

// CheckStatus fetches the current status and mirrors any change into the
// store.
func (t *RedemptionTracker) CheckStatus(ctx context.Context, id string) (domain.Redemption, error) {
	red, err := t.client.CheckStatus(ctx, id)
	if err != nil {
		return domain.Redemption{}, err
	}

	if t.store != nil {
		completedAt := red.CompletedAt
		if completedAt == nil && red.Status.Terminal() {
			now := time.Now().UTC()
			completedAt = &now
		}
		if err := t.store.UpdateStatus(ctx, id, red.Status, completedAt); err != nil && !errors.Is(err, domain.ErrNotFound) {
			t.logger.WarnContext(ctx, "update redemption status failed",
				slog.String("redemption_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return red, nil
}

// Compile-time interface check.
var _ domain.RedemptionClient = (*RedemptionTracker)(nil)
