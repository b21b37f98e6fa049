// Package config defines the top-level configuration for the goldvault
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by GOLDVAULT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Chain      ChainConfig      `toml:"chain"`
	Lending    LendingConfig    `toml:"lending"`
	Flow       FlowConfig       `toml:"flow"`
	Redemption RedemptionConfig `toml:"redemption"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Watcher    WatcherConfig    `toml:"watcher"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the operator wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds the RPC endpoint and the deployed contract addresses.
type ChainConfig struct {
	RPCURL             string   `toml:"rpc_url"`
	ChainID            int64    `toml:"chain_id"`
	CollateralAsset    string   `toml:"collateral_asset"`
	LoanAsset          string   `toml:"loan_asset"`
	VaultAddress       string   `toml:"vault_address"`
	OracleAddress      string   `toml:"oracle_address"`
	CollateralDecimals int      `toml:"collateral_decimals"`
	LoanDecimals       int      `toml:"loan_decimals"`
	GasLimit           uint64   `toml:"gas_limit"`
	ConfirmPoll        duration `toml:"confirm_poll"`
}

// LendingConfig holds the loan terms applied to every preview and flow.
type LendingConfig struct {
	LtvBps  int64    `toml:"ltv_bps"`
	FeeBps  int64    `toml:"fee_bps"`
	LockTTL duration `toml:"lock_ttl"`
}

// FlowConfig holds the orchestrator's timing policy.
type FlowConfig struct {
	StepTimeout         duration `toml:"step_timeout"`
	SettlePollInterval  duration `toml:"settle_poll_interval"`
	SettleTimeout       duration `toml:"settle_timeout"`
	FallbackSettleDelay duration `toml:"fallback_settle_delay"`
}

// RedemptionConfig holds the off-chain redemption service endpoint and HMAC
// credentials. An empty BaseURL disables the service; settlement then falls
// back to a fixed delay.
type RedemptionConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`

	PriceTTL duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters for cold-storage
// archival. Enabled false skips the S3 client entirely.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// WatcherConfig holds background worker parameters: the settlement poller
// and the cold-storage archive schedule.
type WatcherConfig struct {
	Enabled              bool     `toml:"enabled"`
	PollInterval         duration `toml:"poll_interval"`
	PollBatch            int      `toml:"poll_batch"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveCron          string   `toml:"archive_cron"`
	ArchiveBatch         int      `toml:"archive_batch"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:             "http://localhost:8545",
			ChainID:            1,
			CollateralDecimals: 6,
			LoanDecimals:       6,
			GasLimit:           400_000,
			ConfirmPoll:        duration{2 * time.Second},
		},
		Lending: LendingConfig{
			LtvBps:  5000,
			FeeBps:  50,
			LockTTL: duration{30 * time.Minute},
		},
		Flow: FlowConfig{
			StepTimeout:         duration{2 * time.Minute},
			SettlePollInterval:  duration{5 * time.Second},
			SettleTimeout:       duration{15 * time.Minute},
			FallbackSettleDelay: duration{3 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "goldvault",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			PriceTTL:   duration{15 * time.Second},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "goldvault-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Watcher: WatcherConfig{
			Enabled:              true,
			PollInterval:         duration{30 * time.Second},
			PollBatch:            100,
			ArchiveRetentionDays: 90,
			ArchiveCron:          "0 3 * * *",
			ArchiveBatch:         10_000,
		},
		Notify: NotifyConfig{
			Events: []string{"flow_success", "flow_error", "settlement"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"watch":  true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// isHexAddress reports whether s looks like a 0x-prefixed 20-byte address.
func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, watch, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet. Server and full modes sign transactions and need a key.
	needsWallet := c.Mode == "server" || c.Mode == "full"
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if needsWallet {
		for _, addr := range []struct{ name, value string }{
			{"collateral_asset", c.Chain.CollateralAsset},
			{"loan_asset", c.Chain.LoanAsset},
			{"vault_address", c.Chain.VaultAddress},
			{"oracle_address", c.Chain.OracleAddress},
		} {
			if !isHexAddress(addr.value) {
				errs = append(errs, fmt.Sprintf("chain: %s must be a 0x-prefixed 20-byte hex address, got %q", addr.name, addr.value))
			}
		}
	}
	if c.Chain.CollateralDecimals < 0 || c.Chain.CollateralDecimals > 18 {
		errs = append(errs, fmt.Sprintf("chain: collateral_decimals must be 0-18, got %d", c.Chain.CollateralDecimals))
	}
	if c.Chain.LoanDecimals < 0 || c.Chain.LoanDecimals > 18 {
		errs = append(errs, fmt.Sprintf("chain: loan_decimals must be 0-18, got %d", c.Chain.LoanDecimals))
	}

	// Lending
	if c.Lending.LtvBps <= 0 || c.Lending.LtvBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("lending: ltv_bps must be 1-9999, got %d", c.Lending.LtvBps))
	}
	if c.Lending.FeeBps < 0 || c.Lending.FeeBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("lending: fee_bps must be 0-9999, got %d", c.Lending.FeeBps))
	}
	if c.Lending.LockTTL.Duration > 0 && c.Lending.LockTTL.Duration <= c.Flow.SettleTimeout.Duration {
		errs = append(errs, "lending: lock_ttl must exceed flow.settle_timeout")
	}

	// Redemption HMAC credentials must be set together, or both empty.
	rk := c.Redemption.APIKey != ""
	rs := c.Redemption.APISecret != ""
	if rk != rs {
		errs = append(errs, "redemption: api_key and api_secret must be set together")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Watcher
	if c.Watcher.Enabled {
		if c.Watcher.PollInterval.Duration <= 0 {
			errs = append(errs, "watcher: poll_interval must be > 0 when enabled")
		}
		if c.Watcher.ArchiveRetentionDays < 1 {
			errs = append(errs, "watcher: archive_retention_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
