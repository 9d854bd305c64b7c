// Package config loads the service configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrMissingJWTSecret = fmt.Errorf("jwt_secret must be set")
	ErrMissingAdmin     = fmt.Errorf("admin_address must be set")
)

// Config is the fully resolved service configuration.
type Config struct {
	HTTPPort    string
	JWTSecret   string
	NATSUrl     string
	RedisURL    string
	PostgresDSN string

	AdminAddress        string
	RouterAddress       string
	VaultAddress        string
	AssetName           string
	ShareName           string
	OnboardingCollector string
	WithdrawalCollector string
	Delegate            string
	Competition         string

	OnboardingFeePct int64
	WithdrawalFeePct int64
	ShareTaxPctA     int64
	ShareTaxPctB     int64

	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Load reads the optional config file at path, applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	v.SetEnvPrefix("fundvault")
	v.AutomaticEnv()

	v.SetDefault("http_port", "8000")
	v.SetDefault("nats_url", "nats://localhost:4222")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("router_address", "router")
	v.SetDefault("vault_address", "vault-1")
	v.SetDefault("asset_name", "USDC")
	v.SetDefault("share_name", "FUND")
	v.SetDefault("onboarding_collector", "onboarding-collector")
	v.SetDefault("withdrawal_collector", "withdrawal-collector")
	v.SetDefault("delegate", "delegate")
	v.SetDefault("onboarding_fee_pct", 0)
	v.SetDefault("withdrawal_fee_pct", 0)
	v.SetDefault("share_tax_pct_a", 0)
	v.SetDefault("share_tax_pct_b", 0)
	v.SetDefault("rate_limit_max", 100)
	v.SetDefault("rate_limit_window", time.Minute)

	cfg := &Config{
		HTTPPort:            v.GetString("http_port"),
		JWTSecret:           v.GetString("jwt_secret"),
		NATSUrl:             v.GetString("nats_url"),
		RedisURL:            v.GetString("redis_url"),
		PostgresDSN:         v.GetString("postgres_dsn"),
		AdminAddress:        v.GetString("admin_address"),
		RouterAddress:       v.GetString("router_address"),
		VaultAddress:        v.GetString("vault_address"),
		AssetName:           v.GetString("asset_name"),
		ShareName:           v.GetString("share_name"),
		OnboardingCollector: v.GetString("onboarding_collector"),
		WithdrawalCollector: v.GetString("withdrawal_collector"),
		Delegate:            v.GetString("delegate"),
		Competition:         v.GetString("competition"),
		OnboardingFeePct:    v.GetInt64("onboarding_fee_pct"),
		WithdrawalFeePct:    v.GetInt64("withdrawal_fee_pct"),
		ShareTaxPctA:        v.GetInt64("share_tax_pct_a"),
		ShareTaxPctB:        v.GetInt64("share_tax_pct_b"),
		RateLimitMax:        v.GetInt("rate_limit_max"),
		RateLimitWindow:     v.GetDuration("rate_limit_window"),
	}

	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	if cfg.AdminAddress == "" {
		return nil, ErrMissingAdmin
	}
	return cfg, nil
}
