package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StrategyServerMVP      = "server-mvp"
	StrategyOnchainEntropy = "onchain-entropy"
	StrategyChainlinkVRF   = "chainlink-vrf"

	LedgerMemory = "memory"
	LedgerRedis  = "redis"
	LedgerBolt   = "bolt"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Price      PriceConfig
	Randomness RandomnessConfig
	Chain      ChainConfig
	Ledger     LedgerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port        string   `envconfig:"PORT" default:"8080"`
	Env         string   `envconfig:"ENV" default:"development"`
	CORSOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`

	// TrustedProxies lists the IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means the client IP is always the connection's remote address.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// PriceConfig keeps the raw env strings; parsing is permissive and happens in the oracle.
type PriceConfig struct {
	Override    string        `envconfig:"CBBTC_USD"`
	Fallback    string        `envconfig:"NEXT_PUBLIC_CBBTC_USD"`
	FeedURL     string        `envconfig:"PRICE_FEED_URL"`
	FeedPath    string        `envconfig:"PRICE_FEED_PATH" default:"price"`
	FeedTTL     time.Duration `envconfig:"PRICE_FEED_TTL" default:"30s"`
	FeedTimeout time.Duration `envconfig:"PRICE_FEED_TIMEOUT" default:"3s"`
}

type RandomnessConfig struct {
	Strategy string `envconfig:"RANDOMNESS_STRATEGY" default:"server-mvp"`
}

type ChainConfig struct {
	RPCURL          string `envconfig:"CHAIN_RPC_URL"`
	CaseSaleAddress string `envconfig:"CASE_SALE_ADDRESS"`
}

type LedgerConfig struct {
	Backend       string        `envconfig:"LEDGER_BACKEND" default:"memory"`
	BoltPath      string        `envconfig:"BOLT_PATH" default:"./data/openings.db"`
	Retention     time.Duration `envconfig:"LEDGER_RETENTION" default:"720h"`
	PruneSchedule string        `envconfig:"LEDGER_PRUNE_SCHEDULE" default:"@every 1h"`
}

type RedisConfig struct {
	URL  string `envconfig:"REDIS_URL" default:"localhost:6379"`
	Pass string `envconfig:"REDIS_PASS"`
	DB   int    `envconfig:"REDIS_DB" default:"0"`
}

type JWTConfig struct {
	Secret   string        `envconfig:"JWT_SECRET"`
	Duration time.Duration `envconfig:"JWT_DURATION" default:"24h"`
}

type RateLimitConfig struct {
	PerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Randomness.Strategy {
	case StrategyServerMVP:
	case StrategyOnchainEntropy, StrategyChainlinkVRF:
		if c.Chain.RPCURL == "" || c.Chain.CaseSaleAddress == "" {
			return fmt.Errorf("strategy %s requires CHAIN_RPC_URL and CASE_SALE_ADDRESS", c.Randomness.Strategy)
		}
	default:
		return fmt.Errorf("unknown randomness strategy: %s", c.Randomness.Strategy)
	}

	switch c.Ledger.Backend {
	case LedgerMemory, LedgerRedis, LedgerBolt:
	default:
		return fmt.Errorf("unknown ledger backend: %s", c.Ledger.Backend)
	}

	if c.Ledger.Retention <= 0 {
		return fmt.Errorf("ledger retention must be positive, got %s", c.Ledger.Retention)
	}

	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.RateLimit.PerMinute)
	}

	for _, proxy := range c.Server.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("trusted proxy must be an IP or CIDR, got %q", proxy)
		}
	}

	return nil
}

func validProxy(proxy string) bool {
	if strings.Contains(proxy, "/") {
		_, _, err := net.ParseCIDR(proxy)
		return err == nil
	}
	return net.ParseIP(proxy) != nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func NewTestConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8889",
			Env:         "test",
			CORSOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "error",
			Format: "text",
		},
		Price: PriceConfig{
			FeedPath:    "price",
			FeedTTL:     30 * time.Second,
			FeedTimeout: time.Second,
		},
		Randomness: RandomnessConfig{Strategy: StrategyServerMVP},
		Ledger: LedgerConfig{
			Backend:       LedgerMemory,
			Retention:     720 * time.Hour,
			PruneSchedule: "@every 1h",
		},
		Redis: RedisConfig{URL: "localhost:6379"},
		JWT: JWTConfig{
			Secret:   "test-secret",
			Duration: time.Hour,
		},
		RateLimit: RateLimitConfig{PerMinute: 1000},
	}
}
