// Package config defines the top-level configuration for the vault daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by VAULTD_* environment
// variables.
type Config struct {
	Chain      ChainConfig      `toml:"chain"`
	Aggregator AggregatorConfig `toml:"aggregator"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Supervault SupervaultConfig `toml:"supervault"`
	Fees       FeesConfig       `toml:"fees"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Snapshot   SnapshotConfig   `toml:"snapshot"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ChainConfig holds the EVM chain endpoint the price feeds are read from.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
}

// AggregatorConfig holds the swap-aggregator API endpoints and credentials.
type AggregatorConfig struct {
	ZeroExHost   string `toml:"zeroex_host"`
	ZeroExAPIKey string `toml:"zeroex_api_key"`
	OneInchHost  string `toml:"oneinch_host"`
	OneInchKey   string `toml:"oneinch_api_key"`
}

// TokenConfig identifies one ERC-20 token.
type TokenConfig struct {
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Decimals int    `toml:"decimals"`
}

// VaultConfig defines one vault instance.
type VaultConfig struct {
	Name        string      `toml:"name"`
	QuoteToken  TokenConfig `toml:"quote_token"`
	BaseToken   TokenConfig `toml:"base_token"`
	RewardToken TokenConfig `toml:"reward_token"`

	// QuoteFeed and BaseFeed are Chainlink aggregator contract addresses.
	QuoteFeed string `toml:"quote_feed"`
	BaseFeed  string `toml:"base_feed"`

	// MaxCap is a decimal string in smallest quote units.
	MaxCap string `toml:"max_cap"`

	MaxSlippageBuyBps   int64 `toml:"max_slippage_buy_bps"`
	MaxSlippageSellBps  int64 `toml:"max_slippage_sell_bps"`
	ValuationHaircutBps int64 `toml:"valuation_haircut_bps"`

	Owner      string   `toml:"owner"`
	Strategist string   `toml:"strategist"`
	WhiteList  []string `toml:"white_list"`

	// Partner overrides the global fee recipients for this vault.
	Partner string `toml:"partner"`
}

// SupervaultConfig defines the aggregator vault over the configured vaults.
type SupervaultConfig struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name"`
	// Active lists indices into Config.Vaults receiving new deposits.
	Active []int `toml:"active"`
}

// FeesConfig holds the fee schedule shared by every vault, in basis points,
// plus the recipient addresses.
type FeesConfig struct {
	PctDeposit      int64 `toml:"pct_deposit"`
	PctWithdraw     int64 `toml:"pct_withdraw"`
	PctPerfBurning  int64 `toml:"pct_perf_burning"`
	PctPerfStakers  int64 `toml:"pct_perf_stakers"`
	PctPerfAlgoDev  int64 `toml:"pct_perf_algo_dev"`
	PctPerfUpbots   int64 `toml:"pct_perf_upbots"`
	PctPerfPartners int64 `toml:"pct_perf_partners"`
	PctTradeFee     int64 `toml:"pct_trade_fee"`

	AddrStakers string `toml:"addr_stakers"`
	AddrAlgoDev string `toml:"addr_algo_dev"`
	AddrUpbots  string `toml:"addr_upbots"`

	// PartnerFallback decides what happens to the partner performance share
	// when no partner is configured: "retain" or "upbots".
	PartnerFallback string `toml:"partner_fallback"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the cold-storage archival job.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// SnapshotConfig controls the periodic vault state snapshot job.
type SnapshotConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIToken    string   `toml:"api_token"`
	// RateLimit caps requests per client per minute; 0 disables the limit.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "https://bsc-dataseed.binance.org",
			ChainID: 56,
		},
		Aggregator: AggregatorConfig{
			ZeroExHost:  "https://api.0x.org",
			OneInchHost: "https://api.1inch.dev",
		},
		Fees: FeesConfig{
			PctDeposit:      45,
			PctWithdraw:     100,
			PctPerfBurning:  250,
			PctPerfStakers:  250,
			PctPerfAlgoDev:  500,
			PctPerfUpbots:   500,
			PctPerfPartners: 1000,
			PctTradeFee:     8,
			PartnerFallback: "retain",
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "vaultd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "vaultd-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Snapshot: SnapshotConfig{
			Enabled:  true,
			Interval: duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   600,
		},
		Notify: NotifyConfig{
			Events: []string{"TradeDone", "MaxCapExceeded", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"snapshot": true,
	"archive":  true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validAddr(s string) bool {
	return common.IsHexAddress(s)
}

func validateToken(errs []string, scope string, t TokenConfig) []string {
	if !validAddr(t.Address) {
		errs = append(errs, scope+": bad token address "+t.Address)
	}
	if t.Decimals < 0 || t.Decimals > 77 {
		errs = append(errs, fmt.Sprintf("%s: decimals must be 0-77, got %d", scope, t.Decimals))
	}
	return errs
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, snapshot, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	if len(c.Vaults) == 0 {
		errs = append(errs, "vaults: at least one vault must be configured")
	}
	names := make(map[string]bool, len(c.Vaults))
	for i, v := range c.Vaults {
		scope := fmt.Sprintf("vaults[%d]", i)
		if v.Name == "" {
			errs = append(errs, scope+": name must not be empty")
		} else if names[v.Name] {
			errs = append(errs, scope+": duplicate name "+v.Name)
		}
		names[v.Name] = true

		errs = validateToken(errs, scope+".quote_token", v.QuoteToken)
		errs = validateToken(errs, scope+".base_token", v.BaseToken)
		if !validAddr(v.QuoteFeed) {
			errs = append(errs, scope+": bad quote_feed address "+v.QuoteFeed)
		}
		if !validAddr(v.BaseFeed) {
			errs = append(errs, scope+": bad base_feed address "+v.BaseFeed)
		}
		if mc, ok := new(big.Int).SetString(v.MaxCap, 10); !ok || mc.Sign() <= 0 {
			errs = append(errs, scope+": max_cap must be a positive decimal string, got "+v.MaxCap)
		}
		if v.MaxSlippageBuyBps < 0 || v.MaxSlippageBuyBps >= 10000 {
			errs = append(errs, fmt.Sprintf("%s: max_slippage_buy_bps must be 0-9999, got %d", scope, v.MaxSlippageBuyBps))
		}
		if v.MaxSlippageSellBps < 0 || v.MaxSlippageSellBps >= 10000 {
			errs = append(errs, fmt.Sprintf("%s: max_slippage_sell_bps must be 0-9999, got %d", scope, v.MaxSlippageSellBps))
		}
		if v.ValuationHaircutBps < 0 || v.ValuationHaircutBps >= 10000 {
			errs = append(errs, fmt.Sprintf("%s: valuation_haircut_bps must be 0-9999, got %d", scope, v.ValuationHaircutBps))
		}
		if !validAddr(v.Owner) {
			errs = append(errs, scope+": bad owner address "+v.Owner)
		}
		if !validAddr(v.Strategist) {
			errs = append(errs, scope+": bad strategist address "+v.Strategist)
		}
		for _, w := range v.WhiteList {
			if !validAddr(w) {
				errs = append(errs, scope+": bad white_list address "+w)
			}
		}
		if v.Partner != "" && !validAddr(v.Partner) {
			errs = append(errs, scope+": bad partner address "+v.Partner)
		}
	}

	if c.Supervault.Enabled {
		if c.Supervault.Name == "" {
			errs = append(errs, "supervault: name must not be empty")
		}
		if len(c.Supervault.Active) == 0 {
			errs = append(errs, "supervault: active must name at least one vault index")
		}
		for _, idx := range c.Supervault.Active {
			if idx < 0 || idx >= len(c.Vaults) {
				errs = append(errs, fmt.Sprintf("supervault: active index %d out of range", idx))
			}
		}
	}

	// Fee percentages within one category must not sum past 100%.
	perfTotal := c.Fees.PctPerfBurning + c.Fees.PctPerfStakers + c.Fees.PctPerfAlgoDev +
		c.Fees.PctPerfUpbots + c.Fees.PctPerfPartners
	if perfTotal >= 10000 {
		errs = append(errs, fmt.Sprintf("fees: performance percentages sum to %d bps, must stay under 10000", perfTotal))
	}
	for _, f := range []struct {
		name string
		bps  int64
	}{
		{"pct_deposit", c.Fees.PctDeposit},
		{"pct_withdraw", c.Fees.PctWithdraw},
		{"pct_trade_fee", c.Fees.PctTradeFee},
	} {
		if f.bps < 0 || f.bps >= 10000 {
			errs = append(errs, fmt.Sprintf("fees: %s must be 0-9999, got %d", f.name, f.bps))
		}
	}
	for _, a := range []struct {
		name string
		addr string
	}{
		{"addr_stakers", c.Fees.AddrStakers},
		{"addr_algo_dev", c.Fees.AddrAlgoDev},
		{"addr_upbots", c.Fees.AddrUpbots},
	} {
		if !validAddr(a.addr) {
			errs = append(errs, "fees: bad "+a.name+" address "+a.addr)
		}
	}
	if c.Fees.PartnerFallback != "retain" && c.Fees.PartnerFallback != "upbots" {
		errs = append(errs, fmt.Sprintf("fees: partner_fallback must be \"retain\" or \"upbots\", got %q", c.Fees.PartnerFallback))
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must be 0..pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}
	if c.Snapshot.Enabled && c.Snapshot.Interval.Duration <= 0 {
		errs = append(errs, "snapshot: interval must be positive")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
