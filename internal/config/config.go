// Package config defines all configuration for the arbitrage engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via ARB_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	CEX       CEXConfig       `mapstructure:"cex"`
	DEX       DEXConfig       `mapstructure:"dex"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// CEXConfig holds the centralized exchange's endpoints, credentials, fee
// schedule, and rounding precision.
type CEXConfig struct {
	WSURL          string `mapstructure:"ws_url"`
	RESTURL        string `mapstructure:"rest_url"`
	APIKey         string `mapstructure:"api_key"`
	Secret         string `mapstructure:"secret"`
	Symbol         string `mapstructure:"symbol"`
	MakerFee       decimal.Decimal `mapstructure:"maker_fee"`
	TakerFee       decimal.Decimal `mapstructure:"taker_fee"`
	PricePrecision int32  `mapstructure:"price_precision"`
	QtyPrecision   int32  `mapstructure:"qty_precision"`
}

// DEXConfig holds the decentralized perpetuals venue's endpoints, wallet
// signer, fee schedule, and rounding precision.
type DEXConfig struct {
	WSURL          string `mapstructure:"ws_url"`
	APIURL         string `mapstructure:"api_url"`
	Wallet         string `mapstructure:"wallet"`
	WalletKey      string `mapstructure:"wallet_key"`
	Symbol         string `mapstructure:"symbol"`
	MakerFee       decimal.Decimal `mapstructure:"maker_fee"`
	TakerFee       decimal.Decimal `mapstructure:"taker_fee"`
	PricePrecision int32  `mapstructure:"price_precision"`
	QtyPrecision   int32  `mapstructure:"qty_precision"`
}

// StrategyConfig tunes the execution state machine.
//
//   - MinSpreadThreshold: net-spread entry/exit gate (default 0).
//   - BaseQuantity: fixed per-trade size.
//   - OrderTimeout: per-leg deadline (default 5s).
//   - MaxChaseRetries: limit-chase rounds before escalating to market (default 3).
//   - MaxDelay: PriceBoard freshness bound (default 1s).
type StrategyConfig struct {
	MinSpreadThreshold decimal.Decimal `mapstructure:"min_spread_threshold"`
	BaseQuantity       decimal.Decimal `mapstructure:"base_quantity"`
	OrderTimeout       time.Duration   `mapstructure:"order_timeout"`
	MaxChaseRetries    int             `mapstructure:"max_chase_retries"`
	MaxDelay           time.Duration   `mapstructure:"max_delay"`
	CancelWorkers      int             `mapstructure:"cancel_workers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the /healthz and /metrics HTTP server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: ARB_CEX_API_KEY, ARB_CEX_SECRET,
// ARB_DEX_WALLET_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("ARB_CEX_API_KEY"); key != "" {
		cfg.CEX.APIKey = key
	}
	if secret := os.Getenv("ARB_CEX_SECRET"); secret != "" {
		cfg.CEX.Secret = secret
	}
	if key := os.Getenv("ARB_DEX_WALLET_KEY"); key != "" {
		cfg.DEX.WalletKey = key
	}
	if os.Getenv("ARB_DRY_RUN") == "true" || os.Getenv("ARB_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("strategy.min_spread_threshold", "0")
	v.SetDefault("strategy.order_timeout", "5s")
	v.SetDefault("strategy.max_chase_retries", 3)
	v.SetDefault("strategy.max_delay", "1s")
	v.SetDefault("strategy.cancel_workers", 4)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.CEX.WSURL == "" || c.CEX.RESTURL == "" {
		return fmt.Errorf("cex.ws_url and cex.rest_url are required")
	}
	if c.CEX.APIKey == "" || c.CEX.Secret == "" {
		return fmt.Errorf("cex.api_key and cex.secret are required (set ARB_CEX_API_KEY / ARB_CEX_SECRET)")
	}
	if c.CEX.Symbol == "" {
		return fmt.Errorf("cex.symbol is required")
	}
	if c.DEX.WSURL == "" || c.DEX.APIURL == "" {
		return fmt.Errorf("dex.ws_url and dex.api_url are required")
	}
	if c.DEX.Wallet == "" || c.DEX.WalletKey == "" {
		return fmt.Errorf("dex.wallet and dex.wallet_key are required (set ARB_DEX_WALLET_KEY)")
	}
	if c.DEX.Symbol == "" {
		return fmt.Errorf("dex.symbol is required")
	}
	if c.Strategy.BaseQuantity.IsZero() || c.Strategy.BaseQuantity.IsNegative() {
		return fmt.Errorf("strategy.base_quantity must be > 0")
	}
	if c.Strategy.OrderTimeout <= 0 {
		return fmt.Errorf("strategy.order_timeout must be > 0")
	}
	if c.Strategy.MaxChaseRetries < 0 {
		return fmt.Errorf("strategy.max_chase_retries must be >= 0")
	}
	if c.CEX.PricePrecision < 0 || c.CEX.QtyPrecision < 0 || c.DEX.PricePrecision < 0 || c.DEX.QtyPrecision < 0 {
		return fmt.Errorf("precision fields must be >= 0")
	}
	return nil
}
