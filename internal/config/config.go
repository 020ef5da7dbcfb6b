package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config carries all runtime settings, loaded from the environment.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"bolsa.db"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	// Quota guard. Store "memory" suits a single instance; "redis"
	// keeps the quota across horizontally scaled instances.
	RateLimitStore  string        `env:"RATE_LIMIT_STORE" envDefault:"memory"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	TradeRateLimit  int64         `env:"TRADE_RATE_LIMIT" envDefault:"5"`
	TradeRateWindow time.Duration `env:"TRADE_RATE_WINDOW" envDefault:"60s"`
	QuotaSweep      time.Duration `env:"QUOTA_SWEEP_INTERVAL" envDefault:"1m"`

	// Broker gateway.
	BrokerBaseURL  string        `env:"BROKER_BASE_URL" envDefault:"https://api.invertironline.com"`
	BrokerProvider string        `env:"BROKER_PROVIDER" envDefault:"iol"`
	BrokerRPS      float64       `env:"BROKER_REQUESTS_PER_SECOND" envDefault:"4"`
	QuoteMarket    string        `env:"QUOTE_MARKET" envDefault:"bCBA"`
	QuoteCacheTTL  time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"60s"`

	// Credential encryption key, 32 bytes hex encoded.
	CredentialKeyHex string `env:"CREDENTIAL_KEY,required"`

	// Audit reconciliation.
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`
	ReconcilePendingAge time.Duration `env:"RECONCILE_PENDING_AGE" envDefault:"10m"`
	ReconcileAbandonAge time.Duration `env:"RECONCILE_ABANDON_AGE" envDefault:"24h"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	if _, err := cfg.CredentialKey(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// CredentialKey decodes the token encryption key.
func (c Config) CredentialKey() ([]byte, error) {
	key, err := hex.DecodeString(c.CredentialKeyHex)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIAL_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("CREDENTIAL_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
