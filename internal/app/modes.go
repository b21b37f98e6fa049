package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aurumfi/goldvault/internal/crypto"
	"github.com/aurumfi/goldvault/internal/flow"
	"github.com/aurumfi/goldvault/internal/ledger"
	"github.com/aurumfi/goldvault/internal/notify"
	"github.com/aurumfi/goldvault/internal/server"
	"github.com/aurumfi/goldvault/internal/server/handler"
	"github.com/aurumfi/goldvault/internal/server/ws"
	"github.com/aurumfi/goldvault/internal/service"
	"github.com/aurumfi/goldvault/internal/watcher"
)

// ServerMode runs the HTTP + WebSocket API backed by the on-chain ledger.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	loanSvc, err := a.buildLoanService(ctx, deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	a.startHTTPServer(ctx, g, deps, loanSvc)

	return g.Wait()
}

// WatchMode runs only the background workers: the settlement poller and the
// archive scheduler. No transactions are signed in this mode.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	w, err := a.buildWatcher(deps)
	if err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}
	return w.Run(ctx)
}

// FullMode runs the API server and the background workers in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	loanSvc, err := a.buildLoanService(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, loanSvc)
	}

	if a.cfg.Watcher.Enabled {
		w, err := a.buildWatcher(deps)
		if err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
		g.Go(func() error {
			err := w.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// buildLoanService assembles the signing ledger client, the flow
// orchestrator, and the loan service on top of the wired dependencies.
func (a *App) buildLoanService(ctx context.Context, deps *Dependencies) (*service.LoanService, error) {
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("load operator key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex, a.cfg.Chain.ChainID)
	if err != nil {
		return nil, err
	}

	ledgerClient, err := ledger.New(ctx, ledger.Config{
		RPCURL:              a.cfg.Chain.RPCURL,
		VaultAddress:        a.cfg.Chain.VaultAddress,
		OracleAddress:       a.cfg.Chain.OracleAddress,
		GasLimit:            a.cfg.Chain.GasLimit,
		ConfirmPollInterval: a.cfg.Chain.ConfirmPoll.Duration,
	}, signer, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, ledgerClient.Close)

	// Flow transitions fan out to Redis for the WebSocket hub and to the
	// notifier for terminal steps.
	sink := notify.NewFlowNotifier(deps.Notifier, deps.FlowBus)

	orch := flow.New(ledgerClient, deps.Redemption, deps.EventStore, sink, flow.Config{
		CollateralAsset:     a.cfg.Chain.CollateralAsset,
		LoanAsset:           a.cfg.Chain.LoanAsset,
		VaultAddress:        a.cfg.Chain.VaultAddress,
		Wallet:              ledgerClient.Operator(),
		StepTimeout:         a.cfg.Flow.StepTimeout.Duration,
		SettlePollInterval:  a.cfg.Flow.SettlePollInterval.Duration,
		SettleTimeout:       a.cfg.Flow.SettleTimeout.Duration,
		FallbackSettleDelay: a.cfg.Flow.FallbackSettleDelay.Duration,
	}, a.logger)

	return service.NewLoanService(
		ledgerClient,
		orch,
		deps.PriceCache,
		deps.LockManager,
		deps.EventStore,
		deps.RedemptionStore,
		service.Config{
			CollateralAsset:    a.cfg.Chain.CollateralAsset,
			LoanAsset:          a.cfg.Chain.LoanAsset,
			CollateralDecimals: a.cfg.Chain.CollateralDecimals,
			LoanDecimals:       a.cfg.Chain.LoanDecimals,
			LtvBps:             a.cfg.Lending.LtvBps,
			FeeBps:             a.cfg.Lending.FeeBps,
			LockTTL:            a.cfg.Lending.LockTTL.Duration,
		},
		a.logger,
	), nil
}

// buildWatcher assembles the settlement poller and the archive scheduler.
func (a *App) buildWatcher(deps *Dependencies) (*watcher.Watcher, error) {
	var settlement *watcher.SettlementWatcher
	if deps.Redemption != nil {
		notifier := notify.NewFlowNotifier(deps.Notifier, deps.FlowBus)
		settlement = watcher.NewSettlementWatcher(
			deps.RedemptionStore,
			deps.Redemption,
			notifier,
			a.cfg.Watcher.PollInterval.Duration,
			a.cfg.Watcher.PollBatch,
			a.logger,
		)
	} else {
		a.logger.Info("redemption service not configured, settlement polling disabled")
	}

	var archive *watcher.ArchiveScheduler
	if deps.Archiver != nil {
		archive = watcher.NewArchiveScheduler(
			deps.Archiver,
			a.cfg.Watcher.ArchiveRetentionDays,
			a.cfg.Watcher.ArchiveCron,
			a.logger,
		)
	}

	if settlement == nil && archive == nil {
		return nil, fmt.Errorf("watcher enabled but neither the redemption service nor S3 archival is configured")
	}
	return watcher.New(settlement, archive, a.logger), nil
}

// startHTTPServer adds the API server and the WebSocket hub to the errgroup.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, loanSvc *service.LoanService) {
	hub := ws.NewHub(deps.FlowBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.logger),
		Loans:       handler.NewLoanHandler(loanSvc, a.cfg.Chain.LoanDecimals, a.logger),
		Flows:       handler.NewFlowHandler(loanSvc, a.logger),
		Positions:   handler.NewPositionHandler(loanSvc, a.logger),
		Redemptions: handler.NewRedemptionHandler(loanSvc, deps.RedemptionStore, deps.Redemption, a.logger),
		Sessions:    handler.NewSessionHandler(deps.Sessions, 0, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	a.logger.InfoContext(ctx, "HTTP server starting",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
	)
}
