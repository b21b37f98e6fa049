package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/aurumfi/goldvault/internal/blob/s3"
	"github.com/aurumfi/goldvault/internal/cache/redis"
	"github.com/aurumfi/goldvault/internal/config"
	"github.com/aurumfi/goldvault/internal/crypto"
	"github.com/aurumfi/goldvault/internal/domain"
	"github.com/aurumfi/goldvault/internal/notify"
	"github.com/aurumfi/goldvault/internal/platform/redemption"
	"github.com/aurumfi/goldvault/internal/service"
	"github.com/aurumfi/goldvault/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	EventStore      domain.LoanEventStore
	RedemptionStore domain.RedemptionStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	Sessions    domain.SessionStore
	FlowBus     *redis.FlowBus

	// Cold-storage archiver; nil when S3 is disabled.
	Archiver *s3blob.Archiver

	// Redemption is the off-chain redemption client wrapped in the
	// persisting tracker; nil when no base_url is configured.
	Redemption domain.RedemptionClient

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.EventStore = postgres.NewLoanEventStore(pool)
	deps.RedemptionStore = postgres.NewRedemptionStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.Sessions = redis.NewSessionStore(redisClient)
	deps.FlowBus = redis.NewFlowBus(redisClient, logger)

	// --- S3 cold storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.EventStore,
			deps.RedemptionStore,
			cfg.Watcher.ArchiveBatch,
			logger,
		)
	}

	// --- Redemption service ---
	if cfg.Redemption.BaseURL != "" {
		var auth *crypto.HMACAuth
		if cfg.Redemption.APIKey != "" {
			auth = &crypto.HMACAuth{
				Key:    cfg.Redemption.APIKey,
				Secret: cfg.Redemption.APISecret,
			}
		}
		client := redemption.NewClient(cfg.Redemption.BaseURL, auth)
		deps.Redemption = service.NewRedemptionTracker(client, deps.RedemptionStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
