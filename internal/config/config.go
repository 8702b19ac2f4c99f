// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Config struct {
	RPCList     []string `mapstructure:"rpc_list"`
	PostgresURL string   `mapstructure:"postgres_url"`
	ListenAddr  string   `mapstructure:"listen_addr"`

	// Treasury identity. The private key may be a base58 string or the
	// JSON byte-array contents of a solana CLI keypair file.
	TreasuryPrivateKey string `mapstructure:"treasury_private_key"`
	TreasuryAddress    string `mapstructure:"treasury_address"`

	TokenMint     string `mapstructure:"token_mint"`
	TokenDecimals uint8  `mapstructure:"token_decimals"`

	// Bonding curve parameters. Prices are in the reference currency
	// (USD) and converted to SOL with the feed rate at quote time.
	CurveTierSize    uint64  `mapstructure:"curve_tier_size"`
	CurveBasePrice   float64 `mapstructure:"curve_base_price"`
	CurveIncrement   float64 `mapstructure:"curve_increment"`
	SettlementScale  int     `mapstructure:"settlement_scale"`
	FallbackSOLPrice float64 `mapstructure:"fallback_sol_price"`
	PriceFeedURL     string  `mapstructure:"price_feed_url"`

	MinSwapAmount uint64 `mapstructure:"min_swap_amount"`
	MaxSwapAmount uint64 `mapstructure:"max_swap_amount"`

	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`

	// Seconds. Quote TTL tracks blockhash validity; pending rows older
	// than it can never be submitted and are swept.
	QuoteTTL          int `mapstructure:"quote_ttl"`
	ReconcileInterval int `mapstructure:"reconcile_interval"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	LogDir       string `mapstructure:"log_dir"`
}

const (
	DefaultTierSize        = 10_000
	DefaultBasePrice       = 0.01
	DefaultIncrement       = 0.01
	DefaultSettlementScale = 9
	DefaultMinSwap         = 1
	DefaultMaxSwap         = 50_000
	DefaultRateLimit       = 5
	DefaultQuoteTTL        = 120
	DefaultReconcile       = 60
	DefaultListenAddr      = ":8080"
	DefaultLogDir          = "logs"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"curve_tier_size":       DefaultTierSize,
		"curve_base_price":      DefaultBasePrice,
		"curve_increment":       DefaultIncrement,
		"settlement_scale":      DefaultSettlementScale,
		"min_swap_amount":       DefaultMinSwap,
		"max_swap_amount":       DefaultMaxSwap,
		"rate_limit_per_minute": DefaultRateLimit,
		"quote_ttl":             DefaultQuoteTTL,
		"reconcile_interval":    DefaultReconcile,
		"listen_addr":           DefaultListenAddr,
		"log_dir":               DefaultLogDir,
		"token_decimals":        6,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if cfg.PostgresURL == "" {
		return errors.New("missing postgres_url in configuration")
	}
	if cfg.TreasuryPrivateKey == "" {
		return errors.New("missing treasury_private_key in configuration")
	}
	if cfg.TreasuryAddress == "" {
		return errors.New("missing treasury_address in configuration")
	}
	if cfg.TokenMint == "" {
		return errors.New("missing token_mint in configuration")
	}
	if cfg.PriceFeedURL != "" {
		if err := validateURLWithCache(cfg.PriceFeedURL, "http"); err != nil {
			return errors.New("invalid price feed URL protocol")
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.CurveTierSize == 0 {
		return errors.New("invalid curve_tier_size")
	}
	if cfg.CurveBasePrice <= 0 {
		return errors.New("invalid curve_base_price")
	}
	if cfg.CurveIncrement < 0 {
		return errors.New("invalid curve_increment")
	}
	// Above 12 decimals, raw unit conversion would overflow uint64 for
	// realistic swap amounts. No SPL mint uses more than 9.
	if cfg.TokenDecimals > 12 {
		return errors.New("invalid token_decimals")
	}
	if cfg.MinSwapAmount == 0 || cfg.MaxSwapAmount < cfg.MinSwapAmount {
		return errors.New("invalid swap amount bounds")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return errors.New("invalid rate_limit_per_minute")
	}
	if cfg.QuoteTTL <= 0 {
		return errors.New("invalid quote_ttl")
	}
	if cfg.ReconcileInterval <= 0 {
		return errors.New("invalid reconcile_interval")
	}
	if cfg.FallbackSOLPrice < 0 {
		return errors.New("invalid fallback_sol_price")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("SOLANA_OTC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// The signing key should come from the environment rather than the
	// config file on disk whenever possible.
	envKey := v.GetString("TREASURY_PRIVATE_KEY")
	if envKey != "" {
		cfg.TreasuryPrivateKey = envKey
	}

	envPostgres := v.GetString("POSTGRES_URL")
	if envPostgres != "" {
		cfg.PostgresURL = envPostgres
	}

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	return nil
}
