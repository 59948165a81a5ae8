// Package config loads process configuration from environment variables.
// Unset infrastructure (database DSN, Redis URL, Kafka brokers) selects the
// in-memory or no-op implementation of that concern.
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config is the full process configuration.
type Config struct {
	Server     Server
	Database   Database
	Redis      RedisConfig
	Kafka      Kafka
	Ledger     Ledger
	Federation Federation
	Payments   Payments
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"STELLAR_BRIDGE_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"STELLAR_BRIDGE_LOG_LEVEL" envDefault:"info"`
	Environment     string        `env:"STELLAR_BRIDGE_ENV" envDefault:"development"`
	ShutdownTimeout time.Duration `env:"STELLAR_BRIDGE_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

type Database struct {
	DSN             string        `env:"STELLAR_BRIDGE_DATABASE_URL"`
	MaxOpenConns    int           `env:"STELLAR_BRIDGE_DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"STELLAR_BRIDGE_DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"STELLAR_BRIDGE_DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig holds the shared cache connection settings.
type RedisConfig struct {
	URL          string        `env:"STELLAR_BRIDGE_REDIS_URL"`
	PoolSize     int           `env:"STELLAR_BRIDGE_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"STELLAR_BRIDGE_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"STELLAR_BRIDGE_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"STELLAR_BRIDGE_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"STELLAR_BRIDGE_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

type Kafka struct {
	Brokers     []string `env:"STELLAR_BRIDGE_KAFKA_BROKERS" envSeparator:","`
	Topic       string   `env:"STELLAR_BRIDGE_KAFKA_TOPIC" envDefault:"stellarbridge.events"`
	Partitions  int32    `env:"STELLAR_BRIDGE_KAFKA_PARTITIONS" envDefault:"3"`
	Replication int16    `env:"STELLAR_BRIDGE_KAFKA_REPLICATION" envDefault:"1"`
}

// Ledger configures the Horizon connection and the bridge-owned accounts.
type Ledger struct {
	HorizonURL        string          `env:"STELLAR_BRIDGE_HORIZON_URL" envDefault:"https://horizon-testnet.stellar.org"`
	NetworkPassphrase string          `env:"STELLAR_BRIDGE_NETWORK_PASSPHRASE" envDefault:"Test SDF Network ; September 2015"`
	RequestTimeout    time.Duration   `env:"STELLAR_BRIDGE_HORIZON_TIMEOUT" envDefault:"20s"`
	VaultSeed         string          `env:"STELLAR_BRIDGE_VAULT_SEED"`
	InstallationSeed  string          `env:"STELLAR_BRIDGE_INSTALLATION_SEED"`
	StartingBalance   decimal.Decimal `env:"STELLAR_BRIDGE_STARTING_BALANCE" envDefault:"2.5"`
	VaultTrustLimit   decimal.Decimal `env:"STELLAR_BRIDGE_VAULT_TRUST_LIMIT" envDefault:"922337203685.4775807"`
	MaxAttempts       int             `env:"STELLAR_BRIDGE_LEDGER_MAX_ATTEMPTS" envDefault:"4"`
	InitialBackoff    time.Duration   `env:"STELLAR_BRIDGE_LEDGER_INITIAL_BACKOFF" envDefault:"250ms"`
	MaxBackoff        time.Duration   `env:"STELLAR_BRIDGE_LEDGER_MAX_BACKOFF" envDefault:"5s"`
	AttemptTimeout    time.Duration   `env:"STELLAR_BRIDGE_LEDGER_ATTEMPT_TIMEOUT" envDefault:"30s"`
	BreakerFailures   int             `env:"STELLAR_BRIDGE_LEDGER_BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown   time.Duration   `env:"STELLAR_BRIDGE_LEDGER_BREAKER_COOLDOWN" envDefault:"10s"`
}

type Federation struct {
	CacheTTL       time.Duration `env:"STELLAR_BRIDGE_FEDERATION_CACHE_TTL" envDefault:"10m"`
	RequestTimeout time.Duration `env:"STELLAR_BRIDGE_FEDERATION_TIMEOUT" envDefault:"10s"`
}

type Payments struct {
	Workers   int `env:"STELLAR_BRIDGE_PAYMENT_WORKERS" envDefault:"4"`
	QueueSize int `env:"STELLAR_BRIDGE_PAYMENT_QUEUE_SIZE" envDefault:"256"`
}

// FromEnv parses the process environment into a Config.
func FromEnv() (Config, error) {
	var cfg Config
	err := env.ParseWithOptions(&cfg, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(decimal.Decimal{}): func(v string) (any, error) {
				return decimal.NewFromString(v)
			},
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Payments.Workers < 1 {
		return fmt.Errorf("STELLAR_BRIDGE_PAYMENT_WORKERS must be at least 1")
	}
	if c.Payments.QueueSize < 1 {
		return fmt.Errorf("STELLAR_BRIDGE_PAYMENT_QUEUE_SIZE must be at least 1")
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("STELLAR_BRIDGE_LEDGER_MAX_ATTEMPTS must be at least 1")
	}
	if c.Ledger.StartingBalance.IsNegative() || c.Ledger.VaultTrustLimit.IsNegative() {
		return fmt.Errorf("ledger amounts must not be negative")
	}
	return nil
}
