package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddr    = "0x1111111111111111111111111111111111111111"
	testAddr2   = "0x2222222222222222222222222222222222222222"
	testStakers = "0x3333333333333333333333333333333333333333"
	testAlgoDev = "0x4444444444444444444444444444444444444444"
	testUpbots  = "0x5555555555555555555555555555555555555555"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Fees.AddrStakers = testStakers
	cfg.Fees.AddrAlgoDev = testAlgoDev
	cfg.Fees.AddrUpbots = testUpbots
	cfg.Vaults = []VaultConfig{{
		Name: "eth-dai",
		QuoteToken: TokenConfig{
			Address:  testAddr,
			Symbol:   "DAI",
			Decimals: 18,
		},
		BaseToken: TokenConfig{
			Address:  testAddr2,
			Symbol:   "WETH",
			Decimals: 18,
		},
		QuoteFeed:           testStakers,
		BaseFeed:            testAlgoDev,
		MaxCap:              "1000000000000000000000000",
		MaxSlippageBuyBps:   150,
		MaxSlippageSellBps:  500,
		ValuationHaircutBps: 150,
		Owner:               testAddr,
		Strategist:          testAddr2,
	}}
	return cfg
}

func TestValidateAcceptsFullConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresVaults(t *testing.T) {
	cfg := validConfig()
	cfg.Vaults = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one vault")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "banana"
	cfg.Vaults[0].MaxCap = "-5"
	cfg.Vaults[0].Owner = "not-an-address"
	cfg.Fees.PartnerFallback = "keep"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "max_cap")
	assert.Contains(t, err.Error(), "owner")
	assert.Contains(t, err.Error(), "partner_fallback")
}

func TestValidateRejectsDuplicateVaultNames(t *testing.T) {
	cfg := validConfig()
	cfg.Vaults = append(cfg.Vaults, cfg.Vaults[0])
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestValidateSupervaultActiveRange(t *testing.T) {
	cfg := validConfig()
	cfg.Supervault = SupervaultConfig{
		Enabled: true,
		Name:    "super",
		Active:  []int{0, 3},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "snapshot"

[redis]
addr = "file-redis:6379"
`), 0o600))

	t.Setenv("VAULTD_MODE", "server")
	t.Setenv("VAULTD_REDIS_ADDR", "env-redis:6379")
	t.Setenv("VAULTD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("VAULTD_SNAPSHOT_INTERVAL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "45s", cfg.Snapshot.Interval.Duration.String())
}

func TestLoadKeepsDefaultsWithoutOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(45), cfg.Fees.PctDeposit)
	assert.Equal(t, int64(8), cfg.Fees.PctTradeFee)
	assert.Equal(t, "retain", cfg.Fees.PartnerFallback)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.APIToken = "hunter2"
	cfg.Aggregator.ZeroExAPIKey = "hunter2"
	cfg.Notify.TelegramToken = "hunter2"

	out := RedactedConfig(&cfg)

	assert.Equal(t, "***", out.Database.Password)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIToken)
	assert.Equal(t, "***", out.Aggregator.ZeroExAPIKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)

	// Original is untouched.
	assert.Equal(t, "hunter2", cfg.Database.Password)
}

func TestRedactedConfigLeavesEmptyFieldsEmpty(t *testing.T) {
	cfg := validConfig()
	out := RedactedConfig(&cfg)
	assert.Empty(t, out.Database.Password)
	assert.Empty(t, out.Server.APIToken)
}
