package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GOLDVAULT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GOLDVAULT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "GOLDVAULT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "GOLDVAULT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "GOLDVAULT_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "GOLDVAULT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "GOLDVAULT_CHAIN_ID")
	setStr(&cfg.Chain.CollateralAsset, "GOLDVAULT_CHAIN_COLLATERAL_ASSET")
	setStr(&cfg.Chain.LoanAsset, "GOLDVAULT_CHAIN_LOAN_ASSET")
	setStr(&cfg.Chain.VaultAddress, "GOLDVAULT_CHAIN_VAULT_ADDRESS")
	setStr(&cfg.Chain.OracleAddress, "GOLDVAULT_CHAIN_ORACLE_ADDRESS")
	setInt(&cfg.Chain.CollateralDecimals, "GOLDVAULT_CHAIN_COLLATERAL_DECIMALS")
	setInt(&cfg.Chain.LoanDecimals, "GOLDVAULT_CHAIN_LOAN_DECIMALS")
	setUint64(&cfg.Chain.GasLimit, "GOLDVAULT_CHAIN_GAS_LIMIT")
	setDuration(&cfg.Chain.ConfirmPoll, "GOLDVAULT_CHAIN_CONFIRM_POLL")

	// ── Lending ──
	setInt64(&cfg.Lending.LtvBps, "GOLDVAULT_LENDING_LTV_BPS")
	setInt64(&cfg.Lending.FeeBps, "GOLDVAULT_LENDING_FEE_BPS")
	setDuration(&cfg.Lending.LockTTL, "GOLDVAULT_LENDING_LOCK_TTL")

	// ── Flow ──
	setDuration(&cfg.Flow.StepTimeout, "GOLDVAULT_FLOW_STEP_TIMEOUT")
	setDuration(&cfg.Flow.SettlePollInterval, "GOLDVAULT_FLOW_SETTLE_POLL_INTERVAL")
	setDuration(&cfg.Flow.SettleTimeout, "GOLDVAULT_FLOW_SETTLE_TIMEOUT")
	setDuration(&cfg.Flow.FallbackSettleDelay, "GOLDVAULT_FLOW_FALLBACK_SETTLE_DELAY")

	// ── Redemption ──
	setStr(&cfg.Redemption.BaseURL, "GOLDVAULT_REDEMPTION_BASE_URL")
	setStr(&cfg.Redemption.APIKey, "GOLDVAULT_REDEMPTION_API_KEY")
	setStr(&cfg.Redemption.APISecret, "GOLDVAULT_REDEMPTION_API_SECRET")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "GOLDVAULT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "GOLDVAULT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "GOLDVAULT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "GOLDVAULT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "GOLDVAULT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "GOLDVAULT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "GOLDVAULT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "GOLDVAULT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "GOLDVAULT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "GOLDVAULT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "GOLDVAULT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GOLDVAULT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GOLDVAULT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GOLDVAULT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "GOLDVAULT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "GOLDVAULT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "GOLDVAULT_REDIS_PRICE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "GOLDVAULT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "GOLDVAULT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GOLDVAULT_S3_REGION")
	setStr(&cfg.S3.Bucket, "GOLDVAULT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "GOLDVAULT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GOLDVAULT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "GOLDVAULT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "GOLDVAULT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GOLDVAULT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GOLDVAULT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "GOLDVAULT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "GOLDVAULT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "GOLDVAULT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "GOLDVAULT_SERVER_RATE_LIMIT_WINDOW")

	// ── Watcher ──
	setBool(&cfg.Watcher.Enabled, "GOLDVAULT_WATCHER_ENABLED")
	setDuration(&cfg.Watcher.PollInterval, "GOLDVAULT_WATCHER_POLL_INTERVAL")
	setInt(&cfg.Watcher.PollBatch, "GOLDVAULT_WATCHER_POLL_BATCH")
	setInt(&cfg.Watcher.ArchiveRetentionDays, "GOLDVAULT_WATCHER_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Watcher.ArchiveCron, "GOLDVAULT_WATCHER_ARCHIVE_CRON")
	setInt(&cfg.Watcher.ArchiveBatch, "GOLDVAULT_WATCHER_ARCHIVE_BATCH")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "GOLDVAULT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GOLDVAULT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GOLDVAULT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "GOLDVAULT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "GOLDVAULT_MODE")
	setStr(&cfg.LogLevel, "GOLDVAULT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
