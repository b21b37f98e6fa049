// Package watcher runs the background workers: settlement polling against
// the redemption service and scheduled archival of aged records.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
)

// SettlementNotifier receives terminal settlement updates. Satisfied by
// notify.FlowNotifier.
type SettlementNotifier interface {
	SettlementChanged(ctx context.Context, red domain.Redemption)
}

// SettlementWatcher polls pending redemptions and refreshes their status
// from the redemption service. Status changes are persisted by the
// redemption tracker the client is wrapped in, so the watcher only drives
// the polling and notification.
type SettlementWatcher struct {
	store    domain.RedemptionStore
	client   domain.RedemptionClient
	notifier SettlementNotifier // nil disables notifications
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewSettlementWatcher creates a SettlementWatcher. notifier may be nil.
func NewSettlementWatcher(
	store domain.RedemptionStore,
	client domain.RedemptionClient,
	notifier SettlementNotifier,
	interval time.Duration,
	batch int,
	logger *slog.Logger,
) *SettlementWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &SettlementWatcher{
		store:    store,
		client:   client,
		notifier: notifier,
		interval: interval,
		batch:    batch,
		logger:   logger.With(slog.String("component", "settlement_watcher")),
	}
}

// RunLoop polls until the context is cancelled. It runs one sweep
// immediately on start so restarts do not delay settlement updates by a full
// interval.
func (w *SettlementWatcher) RunLoop(ctx context.Context) error {
	w.logger.Info("settlement watcher starting", slog.Duration("interval", w.interval))

	if err := w.sweep(ctx); err != nil {
		w.logger.Error("settlement sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("settlement watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.Error("settlement sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// sweep refreshes every pending redemption once. Individual failures are
// logged and skipped so one bad redemption cannot starve the rest.
func (w *SettlementWatcher) sweep(ctx context.Context) error {
	pending, err := w.store.ListPending(ctx, w.batch)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	updated := 0
	for _, red := range pending {
		fresh, err := w.client.CheckStatus(ctx, red.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// The service lost the redemption; mark it failed so it
				// stops being polled.
				now := time.Now().UTC()
				if uerr := w.store.UpdateStatus(ctx, red.ID, domain.RedemptionFailed, &now); uerr != nil {
					w.logger.Error("mark lost redemption failed",
						slog.String("redemption_id", red.ID),
						slog.String("error", uerr.Error()),
					)
				}
				continue
			}
			w.logger.Warn("redemption status check failed",
				slog.String("redemption_id", red.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if fresh.Status == red.Status {
			continue
		}
		updated++
		w.logger.Info("redemption status changed",
			slog.String("redemption_id", red.ID),
			slog.String("from", string(red.Status)),
			slog.String("to", string(fresh.Status)),
		)

		if fresh.Status.Terminal() && w.notifier != nil {
			fresh.Wallet = red.Wallet
			w.notifier.SettlementChanged(ctx, fresh)
		}
	}

	if updated > 0 {
		w.logger.Info("settlement sweep complete",
			slog.Int("checked", len(pending)),
			slog.Int("updated", updated),
		)
	}
	return nil
}
