package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/lalithlochan/crmflow/internal/jobs"
)

type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Env      string `envconfig:"ENV" default:"development"`
	// AppMode selects the runtime mode: production, development or test.
	// Empty falls back to Env.
	AppMode string `envconfig:"APP_MODE"`

	DB       DBConfig
	Redis    RedisConfig
	Broker   BrokerConfig
	Worker   WorkerConfig
	AWS      AWSConfig
	Channels ChannelConfig

	RulesFile string `envconfig:"RULES_FILE"`
	// APIRateLimit is requests per minute per client on /v1; 0 disables it.
	APIRateLimit int `envconfig:"API_RATE_LIMIT" default:"100"`
	// IdempotencyTTL bounds how long an Idempotency-Key blocks a repeat event.
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
}

type DBConfig struct {
	Enabled  bool   `envconfig:"DATABASE_ENABLED" default:"false"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"crmflow"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME" default:"crmflow"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type BrokerConfig struct {
	// Backend is redis, sqs or memory.
	Backend    string `envconfig:"BROKER_BACKEND" default:"redis"`
	MaxRetries int    `envconfig:"BROKER_MAX_RETRIES" default:"3"`

	SQSRegion       string `envconfig:"SQS_REGION"`
	SQSQueueBadge   string `envconfig:"SQS_QUEUE_URL_BADGE"`
	SQSQueueScoring string `envconfig:"SQS_QUEUE_URL_SCORING"`
	SQSQueueDefault string `envconfig:"SQS_QUEUE_URL_DEFAULT"`
}

type WorkerConfig struct {
	PollInterval       time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"200ms"`
	ConcurrencyBadge   int           `envconfig:"WORKER_CONCURRENCY_BADGE" default:"1"`
	ConcurrencyScoring int           `envconfig:"WORKER_CONCURRENCY_SCORING" default:"1"`
	ConcurrencyDefault int           `envconfig:"WORKER_CONCURRENCY_DEFAULT" default:"2"`
}

type AWSConfig struct {
	Region       string `envconfig:"AWS_REGION" default:"us-east-1"`
	SESFromEmail string `envconfig:"SES_FROM_EMAIL"`
	SNSRegion    string `envconfig:"SNS_REGION"`
	PushEnabled  bool   `envconfig:"PUSH_ENABLED" default:"false"`
	// EventsTopicARN also publishes in-app notification events to SNS.
	EventsTopicARN string `envconfig:"SNS_EVENTS_TOPIC_ARN"`
	// Endpoint overrides the AWS endpoint for local stacks.
	Endpoint string `envconfig:"AWS_ENDPOINT"`
}

type ChannelConfig struct {
	WhatsAppURL     string        `envconfig:"WHATSAPP_API_URL"`
	WhatsAppToken   string        `envconfig:"WHATSAPP_TOKEN"`
	WhatsAppTimeout time.Duration `envconfig:"WHATSAPP_TIMEOUT" default:"30s"`
	ChatURLs        []string      `envconfig:"CHAT_URLS"`

	DispatchConcurrent bool          `envconfig:"DISPATCH_CONCURRENT" default:"false"`
	RateLimitPerMinute int           `envconfig:"CHANNEL_RATE_LIMIT" default:"0"`
	ContactCacheTTL    time.Duration `envconfig:"CONTACT_CACHE_TTL" default:"5m"`
	TemplatesFile      string        `envconfig:"NOTIFICATION_TEMPLATES_FILE"`
	SurveyBaseURL      string        `envconfig:"SURVEY_BASE_URL" default:"http://localhost:3000/surveys"`
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	if cfg.Broker.SQSRegion == "" {
		cfg.Broker.SQSRegion = cfg.AWS.Region
	}
	if cfg.AWS.SNSRegion == "" {
		cfg.AWS.SNSRegion = cfg.AWS.Region
	}

	switch cfg.Broker.Backend {
	case "redis", "sqs", "memory":
	default:
		return nil, fmt.Errorf("invalid BROKER_BACKEND %q", cfg.Broker.Backend)
	}
	if cfg.Broker.MaxRetries < 0 {
		return nil, fmt.Errorf("invalid BROKER_MAX_RETRIES: %d", cfg.Broker.MaxRetries)
	}
	if _, err := parseMode(cfg.modeName()); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Mode returns the runtime mode. Load has already validated it.
func (c *Config) Mode() jobs.Mode {
	m, _ := parseMode(c.modeName())
	return m
}

func (c *Config) modeName() string {
	if c.AppMode != "" {
		return c.AppMode
	}
	return c.Env
}

func parseMode(s string) (jobs.Mode, error) {
	switch strings.ToLower(s) {
	case "production", "prod":
		return jobs.ModeProduction, nil
	case "development", "dev", "":
		return jobs.ModeDevelopment, nil
	case "test":
		return jobs.ModeTest, nil
	default:
		return jobs.ModeDevelopment, fmt.Errorf("invalid APP_MODE %q", s)
	}
}

// DSN builds the Postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// Addr returns host:port for the Redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Concurrency returns the worker count per queue.
func (c WorkerConfig) Concurrency() map[jobs.Queue]int {
	return map[jobs.Queue]int{
		jobs.QueueBadge:   c.ConcurrencyBadge,
		jobs.QueueScoring: c.ConcurrencyScoring,
		jobs.QueueDefault: c.ConcurrencyDefault,
	}
}

// SQSQueueURLs returns the configured queue URL per queue, skipping blanks.
func (c BrokerConfig) SQSQueueURLs() map[jobs.Queue]string {
	urls := map[jobs.Queue]string{}
	for q, u := range map[jobs.Queue]string{
		jobs.QueueBadge:   c.SQSQueueBadge,
		jobs.QueueScoring: c.SQSQueueScoring,
		jobs.QueueDefault: c.SQSQueueDefault,
	} {
		if u != "" {
			urls[q] = u
		}
	}
	return urls
}
