package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	cfg.Chain.CollateralAsset = "0x1111111111111111111111111111111111111111"
	cfg.Chain.LoanAsset = "0x2222222222222222222222222222222222222222"
	cfg.Chain.VaultAddress = "0x3333333333333333333333333333333333333333"
	cfg.Chain.OracleAddress = "0x4444444444444444444444444444444444444444"
	return cfg
}

func TestValidateAcceptsDefaultsWithCredentials(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresWalletForServerModes(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "wallet")

	// Watch mode does not sign transactions.
	cfg.Mode = "watch"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadAddresses(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.VaultAddress = "not-an-address"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "vault_address")
}

func TestValidateRejectsBadLtv(t *testing.T) {
	cfg := validConfig()
	cfg.Lending.LtvBps = 10_000
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "ltv_bps")
}

func TestValidateRequiresHMACPair(t *testing.T) {
	cfg := validConfig()
	cfg.Redemption.APIKey = "key-only"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key and api_secret")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Redemption.APISecret = "shh"
	cfg.Server.APIKey = "backend-key"

	red := RedactedConfig(&cfg)
	require.Equal(t, redacted, red.Wallet.PrivateKey)
	require.Equal(t, redacted, red.Postgres.Password)
	require.Equal(t, redacted, red.Redemption.APISecret)
	require.Equal(t, redacted, red.Server.APIKey)

	// Original untouched.
	require.True(t, strings.HasPrefix(cfg.Wallet.PrivateKey, "0x"))
	require.Equal(t, "hunter2", cfg.Postgres.Password)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GOLDVAULT_MODE", "watch")
	t.Setenv("GOLDVAULT_SERVER_PORT", "9100")
	t.Setenv("GOLDVAULT_WATCHER_POLL_INTERVAL", "45s")
	t.Setenv("GOLDVAULT_SERVER_CORS_ORIGINS", "https://app.example.com, https://staging.example.com")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	require.Equal(t, "watch", cfg.Mode)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "45s", cfg.Watcher.PollInterval.Duration.String())
	require.Equal(t, []string{"https://app.example.com", "https://staging.example.com"}, cfg.Server.CORSOrigins)
}
