// Package config loads service configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Lock backends for serializing identify requests that touch the same email or phone.
const (
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	AppName                       string        `mapstructure:"APP_NAME" default:"bitespeed-identity"`
	Version                       string        `mapstructure:"APP_VERSION" default:"dev"`
	Port                          int           `mapstructure:"PORT" default:"3000"`
	LogLevel                      string        `mapstructure:"LOG_LEVEL" default:"info"`
	PrettyLogs                    bool          `mapstructure:"PRETTY_LOGS" default:"false"`
	HttpServerWriteTimeoutSeconds int           `mapstructure:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" default:"10"`
	HttpServerReadTimeoutSeconds  int           `mapstructure:"HTTP_SERVER_READ_TIMEOUT_SECONDS" default:"10"`
	HttpServerIdleTimeoutSeconds  int           `mapstructure:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" default:"10"`
	ReadHeaderTimeoutSeconds      int           `mapstructure:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" default:"10"`
	MaxHeaderBytes                int           `mapstructure:"HTTP_SERVER_MAX_HEADER_BYTES" default:"64000"` // 64KB
	AllowOrigins                  []string      `mapstructure:"HTTP_SERVER_ALLOW_ORIGINS" default:"*"`
	StartupMaxAttempts            int           `mapstructure:"STARTUP_MAX_ATTEMPTS" default:"5"`
	ShutdownTimeout               time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" default:"10s"`

	// PostgreSQL
	DatabaseDriver                string        `mapstructure:"DB_DRIVER" default:"postgres"`
	DatabaseHost                  string        `mapstructure:"DB_HOST" default:"localhost"`
	DatabasePort                  string        `mapstructure:"DB_PORT" default:"5432"`
	DatabaseUserName              string        `mapstructure:"DB_USER_NAME"`
	DatabasePassword              string        `mapstructure:"DB_PASSWORD"`
	DatabaseName                  string        `mapstructure:"DB_NAME" default:"bitespeed"`
	DatabaseSSLMode               string        `mapstructure:"DB_SSL_MODE" default:"disable"`
	DatabaseMaxOpenConns          int           `mapstructure:"DB_MAX_OPEN_CONNS" default:"25"`
	DatabaseMaxIdleConns          int           `mapstructure:"DB_MAX_IDLE_CONNS" default:"10"`
	DatabaseConnMaxLifetime       time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME" default:"5m"`
	DatabaseMigrationFolderPath   string        `mapstructure:"DB_MIGRATION_FOLDER_PATH" default:"db/pg"`
	DatabaseMigrationVersion      int           `mapstructure:"DB_MIGRATION_VERSION" default:"0"`
	DatabaseMigrationForce        int           `mapstructure:"DB_MIGRATION_FORCE" default:"0"`
	DatabaseMigrationAutoRollback bool          `mapstructure:"DB_MIGRATION_AUTO_ROLLBACK" default:"true"`

	// Locking
	LockBackend string        `mapstructure:"LOCK_BACKEND" default:"postgres"`
	LockTTL     time.Duration `mapstructure:"LOCK_TTL" default:"10s"`
	LockTimeout time.Duration `mapstructure:"LOCK_TIMEOUT" default:"5s"`

	// Redis (only used when LOCK_BACKEND=redis)
	RedisHost     string `mapstructure:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `mapstructure:"REDIS_PORT" default:"6379"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB" default:"0"`

	// Kafka producer for identity events
	KafkaEnabled      bool          `mapstructure:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers      []string      `mapstructure:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaOutputTopic  string        `mapstructure:"KAFKA_OUTPUT_TOPIC" default:"identity-events"`
	KafkaBatchSize    int           `mapstructure:"KAFKA_BATCH_SIZE" default:"100"`
	KafkaBatchTimeout time.Duration `mapstructure:"KAFKA_BATCH_TIMEOUT" default:"100ms"`
	KafkaRequiredAcks int           `mapstructure:"KAFKA_REQUIRED_ACKS" default:"1"`
	KafkaCompression  string        `mapstructure:"KAFKA_COMPRESSION" default:"snappy"`

	// Graph Database (Memgraph)
	GraphEnabled    bool   `mapstructure:"GRAPH_ENABLED" default:"false"`
	GraphDBHost     string `mapstructure:"GRAPH_DB_HOST" default:"localhost"`
	GraphDBPort     int    `mapstructure:"GRAPH_DB_PORT" default:"7687"`
	GraphDBUser     string `mapstructure:"GRAPH_DB_USER"`
	GraphDBPassword string `mapstructure:"GRAPH_DB_PASSWORD"`

	// Tracing
	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED" default:"false"`
	TracingEndpoint string `mapstructure:"TRACING_ENDPOINT" default:"localhost:4317"`
	TracingProtocol string `mapstructure:"TRACING_PROTOCOL" default:"grpc"`
	TracingInsecure bool   `mapstructure:"TRACING_INSECURE" default:"true"`

	// Matching. Values are compared exactly as submitted unless normalizers are listed.
	EmailNormalizers   []string `mapstructure:"EMAIL_NORMALIZERS"`
	PhoneNormalizers   []string `mapstructure:"PHONE_NORMALIZERS"`
	MaxConflictRetries int      `mapstructure:"MAX_CONFLICT_RETRIES" default:"1"`
}

// Load reads .env (if present) into the process environment, then builds and
// validates Config from the environment. Env vars win over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	v := viper.New()
	v.AutomaticEnv()
	if err := registerFields(v); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	cfg.AllowOrigins = splitList(cfg.AllowOrigins)
	cfg.EmailNormalizers = splitList(cfg.EmailNormalizers)
	cfg.PhoneNormalizers = splitList(cfg.PhoneNormalizers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// registerFields makes every mapstructure key known to viper, so Unmarshal sees env
// values, and applies the field's default tag when it has one.
func registerFields(v *viper.Viper) error {
	t := reflect.TypeFor[Config]()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if value, ok := field.Tag.Lookup("default"); ok {
			v.SetDefault(key, value)
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Port <= 0 {
		return errors.New("config: PORT must be positive")
	}
	switch c.DatabaseDriver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("config: DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.DatabaseDriver)
	}
	switch c.LockBackend {
	case LockBackendPostgres, LockBackendRedis:
	default:
		return fmt.Errorf("config: LOCK_BACKEND must be %q or %q, got %q", LockBackendPostgres, LockBackendRedis, c.LockBackend)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("config: KAFKA_BROKERS must be set when KAFKA_ENABLED=true")
	}
	if c.MaxConflictRetries < 0 {
		return errors.New("config: MAX_CONFLICT_RETRIES must not be negative")
	}
	return nil
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	parts := []string{
		"host=" + c.DatabaseHost,
		"port=" + c.DatabasePort,
		"dbname=" + c.DatabaseName,
		"sslmode=" + c.DatabaseSSLMode,
	}
	if c.DatabaseUserName != "" {
		parts = append(parts, "user="+c.DatabaseUserName)
	}
	if c.DatabasePassword != "" {
		parts = append(parts, "password="+c.DatabasePassword)
	}
	return strings.Join(parts, " ")
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// splitList flattens comma separated entries; viper hands env lists over as a single element.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
