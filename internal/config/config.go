package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Privy      PrivyConfig      `mapstructure:"privy"`
	Whitelist  WhitelistConfig  `mapstructure:"whitelist"`
	Guard      GuardConfig      `mapstructure:"guard"`
	Commission CommissionConfig `mapstructure:"commission"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig is the service-to-service perimeter: a shared token plus
// per-endpoint IP allowlists (empty list = allow all).
type AuthConfig struct {
	ServiceToken        string  `mapstructure:"service_token"`
	AllowedIPsOrder     string  `mapstructure:"allowed_ips_order"`
	AllowedIPsAllowance string  `mapstructure:"allowed_ips_allowance"`
	AllowedIPsTransfer  string  `mapstructure:"allowed_ips_transfer"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second"`
	RequestBurst        int     `mapstructure:"request_burst"`
}

type DatabaseConfig struct {
	// Audit rows live in the service's own database.
	AuditDSN string `mapstructure:"audit_dsn"`
	// The activity ledger belongs to the copytrading service; this process
	// only reads it, plus the two replay-flag updates.
	LedgerDSN              string `mapstructure:"ledger_dsn"`
	AuditRetentionDays     int    `mapstructure:"audit_retention_days"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PrivyConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type WhitelistConfig struct {
	// Comma-separated lowercase hex addresses.
	ExchangeContracts string `mapstructure:"exchange_contracts"`
	StableTokens      string `mapstructure:"stable_tokens"`
	TeamWallets       string `mapstructure:"team_wallets"`
	ChainID           int64  `mapstructure:"chain_id"`
}

type GuardConfig struct {
	// 0 means unlimited for both limits.
	MaxSignaturesPerMinute int     `mapstructure:"max_signatures_per_minute"`
	MaxDailyVolumeUSDC     float64 `mapstructure:"max_daily_volume_usdc"`
	BlockMinutes           int     `mapstructure:"block_minutes"`
}

type CommissionConfig struct {
	// Percent of the trade notional expected as platform fee, e.g. 1.0.
	Percent float64 `mapstructure:"percent"`
	// Symmetric tolerance band around the expectation, e.g. 0.05 for ±5%.
	Tolerance float64 `mapstructure:"tolerance"`
}

type AlertsConfig struct {
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. COPYTRADEKEY_PRIVY_APP_SECRET
	viper.SetEnvPrefix("copytradekey")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("auth.requests_per_second", 50)
	viper.SetDefault("auth.request_burst", 100)
	viper.SetDefault("database.audit_retention_days", 90)
	viper.SetDefault("database.cleanup_interval_minutes", 60)
	viper.SetDefault("privy.base_url", "https://api.privy.io")
	viper.SetDefault("privy.timeout_ms", 10000)

	// Polygon mainnet contracts: CTF Exchange, NegRisk CTF Exchange.
	viper.SetDefault("whitelist.exchange_contracts",
		"0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E,0xC5d563A36AE78145C45a50134d48A1215220f80a")
	// USDC (native) and USDC.e.
	viper.SetDefault("whitelist.stable_tokens",
		"0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359,0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	viper.SetDefault("whitelist.team_wallets", "")
	viper.SetDefault("whitelist.chain_id", 137)

	viper.SetDefault("guard.max_signatures_per_minute", 0)
	viper.SetDefault("guard.max_daily_volume_usdc", 0.0)
	viper.SetDefault("guard.block_minutes", 60)

	viper.SetDefault("commission.percent", 1.0)
	viper.SetDefault("commission.tolerance", 0.05)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SplitList parses a comma-separated config value into trimmed
// lower-case entries, dropping empties.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AllowedIPs returns the configured allowlist for an endpoint kind
// ("order", "allowance", "transfer"). Empty means allow all.
func (a AuthConfig) AllowedIPs(endpoint string) []string {
	switch endpoint {
	case "order":
		return SplitList(a.AllowedIPsOrder)
	case "allowance":
		return SplitList(a.AllowedIPsAllowance)
	case "transfer":
		return SplitList(a.AllowedIPsTransfer)
	default:
		return nil
	}
}
