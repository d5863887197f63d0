package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	DBDSN         string `envconfig:"DB_DSN"`
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	MediaRoot     string `envconfig:"MEDIA_ROOT" default:"./media"`
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`

	AMQPURL         string `envconfig:"AMQP_URL"`
	AMQPExchange    string `envconfig:"AMQP_EXCHANGE" default:"chat"`
	AuditRoutingKey string `envconfig:"AUDIT_ROUTING_KEY" default:"audit.chat"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisChannel  string `envconfig:"REDIS_CHANNEL" default:"microchat:events"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"microchat"`
	Environment  string `envconfig:"ENVIRONMENT" default:"dev"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"INFO"`

	SubscriberBuffer int  `envconfig:"SUBSCRIBER_BUFFER" default:"64"`
	OrdinalRetries   int  `envconfig:"ORDINAL_RETRIES" default:"3"`
	ForwarderBuffer  int  `envconfig:"FORWARDER_BUFFER" default:"256"`
	DebugRoutes      bool `envconfig:"DEBUG_ROUTES" default:"false"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required for storage driver %q", c.StorageDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be positive, got %d", c.SubscriberBuffer)
	}
	if c.OrdinalRetries <= 0 {
		return fmt.Errorf("ORDINAL_RETRIES must be positive, got %d", c.OrdinalRetries)
	}
	if c.ForwarderBuffer <= 0 {
		return fmt.Errorf("FORWARDER_BUFFER must be positive, got %d", c.ForwarderBuffer)
	}
	return nil
}
