package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Business BusinessConfig `mapstructure:"business"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

// RedisConfig an empty Host means no redis; wallet locks stay in-process.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

const (
	BrokerKafka = "kafka"
	BrokerAMQP  = "amqp"
	BrokerNone  = "none"
)

type BrokerConfig struct {
	Kind  string      `mapstructure:"kind"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	AMQP  AMQPConfig  `mapstructure:"amqp"`
	Topic TopicConfig `mapstructure:"topic"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type TopicConfig struct {
	LedgerEvents  string `mapstructure:"ledger_events"`
	MissionEvents string `mapstructure:"mission_events"`
}

type BusinessConfig struct {
	LockTTLSeconds          int `mapstructure:"lock_ttl_seconds"`
	LockRetryIntervalMillis int `mapstructure:"lock_retry_interval_ms"`
	LockMaxRetries          int `mapstructure:"lock_max_retries"`

	OutboxIntervalMillis int `mapstructure:"outbox_interval_ms"`
	OutboxBatchSize      int `mapstructure:"outbox_batch_size"`
	MaxRetryCount        int `mapstructure:"max_retry_count"`

	MissionSweepIntervalSeconds int `mapstructure:"mission_sweep_interval_seconds"`
	AllowanceIntervalSeconds    int `mapstructure:"allowance_interval_seconds"`
	AllowanceBatchSize          int `mapstructure:"allowance_batch_size"`

	DefaultChildAge int `mapstructure:"default_child_age"`
}

func (b BusinessConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLSeconds) * time.Second
}

func (b BusinessConfig) LockRetryInterval() time.Duration {
	return time.Duration(b.LockRetryIntervalMillis) * time.Millisecond
}

func (b BusinessConfig) OutboxInterval() time.Duration {
	return time.Duration(b.OutboxIntervalMillis) * time.Millisecond
}

func (b BusinessConfig) MissionSweepInterval() time.Duration {
	return time.Duration(b.MissionSweepIntervalSeconds) * time.Second
}

func (b BusinessConfig) AllowanceInterval() time.Duration {
	return time.Duration(b.AllowanceIntervalSeconds) * time.Second
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const envPrefix = "KIDLEDGER"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.sqlite_path", "./data/kidledger.db")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("database.host", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "")

	// keys need a default to be visible to AutomaticEnv during Unmarshal
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("broker.kind", BrokerNone)
	v.SetDefault("broker.kafka.brokers", []string{})
	v.SetDefault("broker.amqp.url", "")
	v.SetDefault("broker.amqp.exchange", "kidledger")
	v.SetDefault("broker.topic.ledger_events", "kidledger.ledger")
	v.SetDefault("broker.topic.mission_events", "kidledger.mission")

	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.lock_retry_interval_ms", 50)
	v.SetDefault("business.lock_max_retries", 60)
	v.SetDefault("business.outbox_interval_ms", 500)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.mission_sweep_interval_seconds", 3600)
	v.SetDefault("business.allowance_interval_seconds", 600)
	v.SetDefault("business.allowance_batch_size", 200)
	v.SetDefault("business.default_child_age", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads the YAML file at configPath on top of the built-in defaults.
//
// An empty configPath loads defaults and environment only. Every key can be
// overridden with KIDLEDGER_<SECTION>_<KEY>, e.g. KIDLEDGER_REDIS_HOST.
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional and only meant for local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in defaults with no file or environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("unmarshal defaults: %v", err))
	}
	return cfg
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case DriverMySQL:
		if c.Database.Host == "" || c.Database.Database == "" {
			result = multierror.Append(result, errors.New("database.host and database.database are required for mysql"))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			result = multierror.Append(result, errors.New("database.sqlite_path is required for sqlite"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}

	switch c.Broker.Kind {
	case BrokerKafka:
		if len(c.Broker.Kafka.Brokers) == 0 {
			result = multierror.Append(result, errors.New("broker.kafka.brokers is required for kafka"))
		}
	case BrokerAMQP:
		if !strings.HasPrefix(c.Broker.AMQP.URL, "amqp://") && !strings.HasPrefix(c.Broker.AMQP.URL, "amqps://") {
			result = multierror.Append(result, fmt.Errorf("broker.amqp.url %q must use amqp or amqps", c.Broker.AMQP.URL))
		}
		if c.Broker.AMQP.Exchange == "" {
			result = multierror.Append(result, errors.New("broker.amqp.exchange is required for amqp"))
		}
	case BrokerNone:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown broker.kind %q", c.Broker.Kind))
	}

	b := c.Business
	if b.LockTTLSeconds < 1 {
		result = multierror.Append(result, errors.New("business.lock_ttl_seconds must be positive"))
	}
	if b.LockRetryIntervalMillis < 1 || b.LockMaxRetries < 1 {
		result = multierror.Append(result, errors.New("business lock retry settings must be positive"))
	}
	if b.OutboxBatchSize < 1 || b.OutboxBatchSize > 1000 {
		result = multierror.Append(result, fmt.Errorf("business.outbox_batch_size %d must be within 1..1000", b.OutboxBatchSize))
	}
	if b.OutboxIntervalMillis < 1 || b.MissionSweepIntervalSeconds < 1 || b.AllowanceIntervalSeconds < 1 {
		result = multierror.Append(result, errors.New("business job intervals must be positive"))
	}
	if b.AllowanceBatchSize < 1 {
		result = multierror.Append(result, fmt.Errorf("business.allowance_batch_size %d must be positive", b.AllowanceBatchSize))
	}
	if b.MaxRetryCount < 1 {
		result = multierror.Append(result, errors.New("business.max_retry_count must be positive"))
	}
	if b.DefaultChildAge < 0 {
		result = multierror.Append(result, errors.New("business.default_child_age must not be negative"))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	return result.ErrorOrNil()
}
