package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// QueueName is the queue every backend operates on.
const QueueName = "newsqueue"

// Backend kinds selected by the connection string scheme.
const (
	BackendSQS    = "sqs"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// SQS attribute limits.
const (
	sqsMaxVisibilityTimeout = 12 * time.Hour
	sqsMaxRetention         = 14 * 24 * time.Hour
)

// Config defines all environment variables and derived config for the client.
type Config struct {
	// Derived from the env fields in normalize
	Backend                   string        `env:"-" validate:"oneof=sqs redis memory"`
	QueueVisibilityTimeoutDur time.Duration `env:"-"`
	QueueMessageTTLDur        time.Duration `env:"-"`
	SqsRegion                 string        `env:"-"`
	SqsEndpoint               string        `env:"-" validate:"omitempty,url"`
	SqsAccessKey              string        `env:"-"`
	SqsSecretKey              string        `env:"-"`

	ConnectionString string `env:"STORAGE_CONNECTION_STRING,required,notEmpty" validate:"required"`

	QueueVisibilityTimeout int    `env:"QUEUE_VISIBILITY_TIMEOUT" envDefault:"30" validate:"gte=1"`
	QueueMessageTTL        int    `env:"QUEUE_MESSAGE_TTL" envDefault:"604800" validate:"gte=60"`
	QueueRedisKeyPrefix    string `env:"QUEUE_REDIS_KEY_PREFIX" envDefault:"queue-"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

// LoadDotEnv loads variables from the given files (".env" when none), skipping missing files.
// Variables already present in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Parse loads configuration from environment variables, normalizes and validates it.
func Parse() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalize converts int values to durations and derives backend settings from the connection string.
func (c *Config) normalize() error {
	c.QueueVisibilityTimeoutDur = time.Duration(c.QueueVisibilityTimeout) * time.Second
	c.QueueMessageTTLDur = time.Duration(c.QueueMessageTTL) * time.Second

	u, err := url.Parse(c.ConnectionString)
	if err != nil {
		// the raw string may hold credentials, keep it out of the message
		return errors.New("STORAGE_CONNECTION_STRING is not a valid URL")
	}

	switch u.Scheme {
	case "sqs":
		c.Backend = BackendSQS
		c.SqsRegion = u.Host
		q := u.Query()
		c.SqsEndpoint = q.Get("endpoint")
		c.SqsAccessKey = q.Get("access_key")
		c.SqsSecretKey = q.Get("secret_key")
	case "redis", "rediss":
		c.Backend = BackendRedis
	case "memory":
		c.Backend = BackendMemory
	default:
		c.Backend = u.Scheme
	}
	return nil
}

// validate performs all required configuration checks.
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Backend == BackendSQS {
		if c.SqsRegion == "" {
			return errors.New("STORAGE_CONNECTION_STRING must name a region, e.g. sqs://us-east-1")
		}
		if (c.SqsAccessKey == "") != (c.SqsSecretKey == "") {
			return errors.New("access_key and secret_key must be given together")
		}
		if c.QueueVisibilityTimeoutDur > sqsMaxVisibilityTimeout {
			return errors.New("QUEUE_VISIBILITY_TIMEOUT must not exceed 43200 for SQS")
		}
		if c.QueueMessageTTLDur > sqsMaxRetention {
			return errors.New("QUEUE_MESSAGE_TTL must not exceed 1209600 for SQS")
		}
	}

	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("METRICS_ADDR: %w", err)
		}
	}

	return nil
}
