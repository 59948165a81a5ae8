package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Database.DSN)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Payments.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Federation.CacheTTL)
	assert.True(t, cfg.Ledger.StartingBalance.Equal(decimal.RequireFromString("2.5")))
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STELLAR_BRIDGE_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("STELLAR_BRIDGE_STARTING_BALANCE", "5.0000001")
	t.Setenv("STELLAR_BRIDGE_PAYMENT_WORKERS", "8")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "5.0000001", cfg.Ledger.StartingBalance.String())
	assert.Equal(t, 8, cfg.Payments.Workers)
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("STELLAR_BRIDGE_PAYMENT_WORKERS", "0")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("STELLAR_BRIDGE_PAYMENT_WORKERS", "2")
	t.Setenv("STELLAR_BRIDGE_STARTING_BALANCE", "lots")
	_, err = FromEnv()
	assert.Error(t, err)
}
