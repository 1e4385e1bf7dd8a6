package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, BrokerNone, cfg.Broker.Kind)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 10, cfg.Business.DefaultChildAge)
	assert.Equal(t, 200, cfg.Business.AllowanceBatchSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: mysql
  host: db
  database: kidledger
redis:
  host: cache
broker:
  kind: kafka
  kafka:
    brokers: ["k1:9092", "k2:9092"]
business:
  lock_ttl_seconds: 5
  allowance_batch_size: 25
  default_child_age: 8
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Business.LockTTLSeconds)
	assert.Equal(t, 8, cfg.Business.DefaultChildAge)
	assert.Equal(t, 25, cfg.Business.AllowanceBatchSize)
	// untouched keys keep their defaults
	assert.Equal(t, 100, cfg.Business.OutboxBatchSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("KIDLEDGER_SERVER_PORT", "7070")
	t.Setenv("KIDLEDGER_REDIS_HOST", "redis.local")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "redis.local", cfg.Redis.Host)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	cfg.Server.Port = 0
	cfg.Database.Driver = "postgres"
	cfg.Broker.Kind = BrokerAMQP
	cfg.Broker.AMQP.URL = "http://nope"
	cfg.Log.Format = "xml"

	err = cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "server.port")
	assert.Contains(t, msg, "database.driver")
	assert.Contains(t, msg, "broker.amqp.url")
	assert.Contains(t, msg, "log.format")
}

func TestValidateKafkaNeedsBrokers(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Broker.Kind = BrokerKafka

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.kafka.brokers")
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Business.DefaultChildAge)
	assert.NoError(t, cfg.Validate())
}

func TestValidateAllowanceBatchSize(t *testing.T) {
	cfg := Default()
	cfg.Business.AllowanceBatchSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "business.allowance_batch_size")
}
