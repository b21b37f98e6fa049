package watcher

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Watcher supervises the background workers: the settlement poller and the
// archive scheduler. Either may be nil, in which case that worker is not
// started.
type Watcher struct {
	settlement *SettlementWatcher
	archive    *ArchiveScheduler
	logger     *slog.Logger
}

// New creates a Watcher.
func New(settlement *SettlementWatcher, archive *ArchiveScheduler, logger *slog.Logger) *Watcher {
	return &Watcher{
		settlement: settlement,
		archive:    archive,
		logger:     logger.With(slog.String("component", "watcher")),
	}
}

// Run starts the workers as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a non-context
// error, the errgroup cancels the shared context and Run returns that error.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher starting")

	g, ctx := errgroup.WithContext(ctx)

	if w.settlement != nil {
		g.Go(func() error {
			err := w.settlement.RunLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("settlement watcher: %w", err)
		})
	}

	if w.archive != nil {
		g.Go(func() error {
			err := w.archive.RunCron(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archive scheduler: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		w.logger.Error("watcher stopped with error", slog.String("error", err.Error()))
		return err
	}

	w.logger.Info("watcher stopped cleanly")
	return nil
}
