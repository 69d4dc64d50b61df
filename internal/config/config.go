package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env      string `envconfig:"APP_ENV" default:"dev"`
	Server   ServerConfig
	Database DatabaseConfig `envconfig:"DB"`
	Redis    RedisConfig
	Kafka    KafkaConfig
	RabbitMQ RabbitMQConfig
	Stripe   StripeConfig
	SMTP     SMTPConfig
	Tracing  TracingConfig `envconfig:"OTEL"`
}

type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:":8085"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
}

type DatabaseConfig struct {
	Host         string        `envconfig:"HOST" default:"localhost"`
	Port         string        `envconfig:"PORT" default:"3306"`
	Username     string        `envconfig:"USER" default:"root"`
	Password     string        `envconfig:"PASS"`
	Database     string        `envconfig:"NAME" default:"studio_booking"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int           `envconfig:"MAX_IDLE_CONNS" default:"25"`
	MaxLifetime  time.Duration `envconfig:"MAX_LIFETIME" default:"30m"`
}

// RedisConfig configures the distributed session lock. An empty Addr selects
// the in-process lock, which is only safe for a single API instance.
type RedisConfig struct {
	Addr     string        `envconfig:"ADDR"`
	Password string        `envconfig:"PASSWORD"`
	DB       int           `envconfig:"DB" default:"0"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	LockWait time.Duration `envconfig:"LOCK_WAIT" default:"5s"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"BROKERS" default:"localhost:29092"`
	GroupID string   `envconfig:"GROUP_ID" default:"studio-booking"`
	Mock    bool     `envconfig:"MOCK" default:"false"`
}

type RabbitMQConfig struct {
	URL   string `envconfig:"URL"`
	Queue string `envconfig:"QUEUE" default:"booking.confirmed"`
}

type StripeConfig struct {
	SecretKey     string `envconfig:"SECRET_KEY"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
}

type SMTPConfig struct {
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT" default:"587"`
	Username string `envconfig:"USERNAME"`
	Password string `envconfig:"PASSWORD"`
	From     string `envconfig:"FROM" default:"bookings@localhost"`
}

type TracingConfig struct {
	Endpoint string `envconfig:"EXPORTER_OTLP_ENDPOINT"`
}

// Load decodes the process environment. Call godotenv.Load beforehand to pick
// up a local .env file.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Enabled reports whether a distributed lock should be used.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }
