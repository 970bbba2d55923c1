package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all configuration for the token data service
type Config struct {
	Token         TokenConfig         `mapstructure:"token"`
	Explorer      UpstreamConfig      `mapstructure:"explorer"`
	PancakeSwap   UpstreamConfig      `mapstructure:"pancakeswap"`
	OneInch       OneInchConfig       `mapstructure:"oneinch"`
	CoinGecko     CoinGeckoConfig     `mapstructure:"coingecko"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Price         PriceConfig         `mapstructure:"price"`
	Revalidate    RevalidateConfig    `mapstructure:"revalidate"`
	Warmup        WarmupConfig        `mapstructure:"warmup"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// TokenConfig identifies the project token and chain
type TokenConfig struct {
	ContractAddress string `mapstructure:"contract_address"`
	ChainID         int    `mapstructure:"chain_id"`
}

// UpstreamConfig holds the connection and resilience settings of one API
type UpstreamConfig struct {
	BaseURL   string          `mapstructure:"base_url"`
	APIKey    string          `mapstructure:"api_key"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
}

// RetryConfig holds retry settings
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	Backoff  bool          `mapstructure:"backoff"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// BreakerConfig holds circuit breaker thresholds
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// OneInchConfig adds the aggregator specific settings
type OneInchConfig struct {
	UpstreamConfig `mapstructure:",squash"`
	// StableToken is the reference asset prices are quoted against (symbol or address)
	StableToken string `mapstructure:"stable_token"`
}

// CoinGeckoConfig adds the oracle specific settings
type CoinGeckoConfig struct {
	UpstreamConfig `mapstructure:",squash"`
	Platform       string `mapstructure:"platform"`
	VsCurrency     string `mapstructure:"vs_currency"`
}

// CacheConfig holds caching configuration
type CacheConfig struct {
	API             PartitionConfig `mapstructure:"api"`
	Price           PartitionConfig `mapstructure:"price"`
	Token           PartitionConfig `mapstructure:"token"`
	DefaultTTL      time.Duration   `mapstructure:"default_ttl"`
	TTLRules        []TTLRule       `mapstructure:"ttl_rules"`
	CleanupInterval time.Duration   `mapstructure:"cleanup_interval"`
}

// PartitionConfig sizes one cache store
type PartitionConfig struct {
	Capacity int    `mapstructure:"capacity"`
	Strategy string `mapstructure:"strategy"` // lru, lfu or ttl
}

// TTLRule overrides the TTL for keys containing any of Match
type TTLRule struct {
	Match []string      `mapstructure:"match"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// PriceConfig holds price aggregation settings
type PriceConfig struct {
	FallbackOrder []string `mapstructure:"fallback_order"`
}

// RevalidateConfig holds background refresh settings
type RevalidateConfig struct {
	Enabled   bool                     `mapstructure:"enabled"`
	Workers   int                      `mapstructure:"workers"`
	QueueSize int                      `mapstructure:"queue_size"`
	Dedupe    time.Duration            `mapstructure:"dedupe_interval"`
	Intervals map[string]time.Duration `mapstructure:"intervals"`
}

// WarmupConfig holds startup cache warming settings
type WarmupConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int64         `mapstructure:"concurrency"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
// Environment variables use the TOKENDATA_ prefix, e.g. TOKENDATA_EXPLORER_API_KEY.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TOKENDATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func setUpstreamDefaults(v *viper.Viper, prefix, baseURL string, timeout time.Duration, attempts int) {
	v.SetDefault(prefix+".base_url", baseURL)
	v.SetDefault(prefix+".api_key", "")
	v.SetDefault(prefix+".timeout", timeout)
	v.SetDefault(prefix+".retry.attempts", attempts)
	v.SetDefault(prefix+".retry.delay", time.Second)
	v.SetDefault(prefix+".retry.backoff", true)
	v.SetDefault(prefix+".rate_limit.requests_per_second", 5)
	v.SetDefault(prefix+".rate_limit.burst", 5)
	v.SetDefault(prefix+".breaker.failure_threshold", 5)
	v.SetDefault(prefix+".breaker.success_threshold", 2)
	v.SetDefault(prefix+".breaker.open_timeout", 30*time.Second)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("token.contract_address", "0x20f663CEa80FaCE82ACDFA3aAE6862d246cE0333")
	v.SetDefault("token.chain_id", 56)

	setUpstreamDefaults(v, "explorer", "https://api.bscscan.com/api", 10*time.Second, 3)
	setUpstreamDefaults(v, "pancakeswap", "https://api.pancakeswap.info/api/v2", 8*time.Second, 2)
	setUpstreamDefaults(v, "oneinch", "https://api.1inch.io/v5.0", 10*time.Second, 3)
	setUpstreamDefaults(v, "coingecko", "https://api.coingecko.com/api/v3", 8*time.Second, 2)
	v.SetDefault("oneinch.stable_token", "USDT")
	v.SetDefault("coingecko.platform", "binance-smart-chain")
	v.SetDefault("coingecko.vs_currency", "usd")

	v.SetDefault("cache.api.capacity", 1000)
	v.SetDefault("cache.api.strategy", "lru")
	v.SetDefault("cache.price.capacity", 100)
	v.SetDefault("cache.price.strategy", "ttl")
	v.SetDefault("cache.token.capacity", 200)
	v.SetDefault("cache.token.strategy", "lfu")
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.cleanup_interval", time.Minute)

	v.SetDefault("price.fallback_order", []string{"coingecko", "pancakeswap", "oneinch"})

	v.SetDefault("revalidate.enabled", true)
	v.SetDefault("revalidate.workers", 4)
	v.SetDefault("revalidate.queue_size", 64)
	v.SetDefault("revalidate.dedupe_interval", 2*time.Second)
	v.SetDefault("revalidate.intervals", map[string]time.Duration{
		"price":        30 * time.Second,
		"market":       time.Minute,
		"transactions": 2 * time.Minute,
		"holders":      5 * time.Minute,
		"supply":       10 * time.Minute,
		"balance":      30 * time.Second,
		"transfers":    time.Minute,
		"liquidity":    2 * time.Minute,
		"volume":       time.Minute,
		"quote":        15 * time.Second,
		"info":         5 * time.Minute,
	})

	v.SetDefault("warmup.enabled", true)
	v.SetDefault("warmup.timeout", 30*time.Second)
	v.SetDefault("warmup.concurrency", 4)

	v.SetDefault("observability.service_name", "tokendata")
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.otlp_endpoint", "")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_ratio", 1.0)

	v.SetDefault("http.port", 8080)
}

var (
	validLogLevels = map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	validLogFormats = map[string]bool{
		"json": true,
		"text": true,
	}
	validStrategies = map[string]bool{
		"lru": true,
		"lfu": true,
		"ttl": true,
	}
	validPriceSources = map[string]bool{
		"coingecko":   true,
		"pancakeswap": true,
		"oneinch":     true,
	}
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Token.ContractAddress) {
		return fmt.Errorf("invalid token contract address: %q", c.Token.ContractAddress)
	}
	if c.Token.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive")
	}

	upstreams := map[string]UpstreamConfig{
		"explorer":    c.Explorer,
		"pancakeswap": c.PancakeSwap,
		"oneinch":     c.OneInch.UpstreamConfig,
		"coingecko":   c.CoinGecko.UpstreamConfig,
	}
	for name, u := range upstreams {
		if err := u.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if _, err := ResolveToken(c.OneInch.StableToken); err != nil {
		return fmt.Errorf("oneinch: %w", err)
	}

	for name, p := range map[string]PartitionConfig{"api": c.Cache.API, "price": c.Cache.Price, "token": c.Cache.Token} {
		if p.Capacity <= 0 {
			return fmt.Errorf("cache %s: capacity must be > 0", name)
		}
		if !validStrategies[p.Strategy] {
			return fmt.Errorf("cache %s: invalid strategy: %s", name, p.Strategy)
		}
	}

	if len(c.Price.FallbackOrder) == 0 {
		return fmt.Errorf("at least one price source is required")
	}
	seen := make(map[string]bool, len(c.Price.FallbackOrder))
	for _, name := range c.Price.FallbackOrder {
		if !validPriceSources[name] {
			return fmt.Errorf("unknown price source: %s", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate price source: %s", name)
		}
		seen[name] = true
	}

	if c.Revalidate.Enabled && c.Revalidate.Workers <= 0 {
		return fmt.Errorf("revalidate workers must be > 0")
	}

	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}

func (u UpstreamConfig) validate() error {
	parsed, err := url.Parse(u.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("invalid base url: %q", u.BaseURL)
	}
	if u.Retry.Attempts < 0 || u.Retry.Attempts > 10 {
		return fmt.Errorf("retry attempts must be between 0 and 10, got %d", u.Retry.Attempts)
	}
	if u.Retry.Delay < 100*time.Millisecond || u.Retry.Delay > 10*time.Second {
		return fmt.Errorf("retry delay must be between 100ms and 10s, got %v", u.Retry.Delay)
	}
	if u.Timeout < time.Second || u.Timeout > time.Minute {
		return fmt.Errorf("timeout must be between 1s and 60s, got %v", u.Timeout)
	}
	if u.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit must be >= 0")
	}
	return nil
}
