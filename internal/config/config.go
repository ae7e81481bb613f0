package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"notifyd"`
	HTTPAddr    string `env:"HTTP_ADDR" env-default:":8080"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	RedisAddr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// DatabaseURL selects the Postgres stores; empty keeps records in memory.
	DatabaseURL string `env:"DATABASE_URL"`
	// NATSURL enables the NATS mirror of outcome events.
	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" env-default:"notifications"`

	ConsumerGroup    string        `env:"CONSUMER_GROUP" env-default:"notification-service-group"`
	ConsumerName     string        `env:"CONSUMER_NAME" env-default:"notification-service-1"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" env-default:"1s"`
	PollBatchSize    int64         `env:"POLL_BATCH_SIZE" env-default:"10"`
	PollBlock        time.Duration `env:"POLL_BLOCK" env-default:"1s"`
	DeadLetterStream string        `env:"DEAD_LETTER_STREAM"`

	StreamUserEvents         string `env:"STREAM_USER_EVENTS" env-default:"notification:user-events"`
	StreamAssessmentEvents   string `env:"STREAM_ASSESSMENT_EVENTS" env-default:"notification:assessment-events"`
	StreamProctoringEvents   string `env:"STREAM_PROCTORING_EVENTS" env-default:"notification:proctoring-events"`
	StreamNotificationEvents string `env:"STREAM_NOTIFICATION_EVENTS" env-default:"notification:notification-events"`

	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" env-default:"3"`
	RetryDelay       time.Duration `env:"RETRY_DELAY" env-default:"5m"`
	RetryBatchSize   int           `env:"RETRY_BATCH_SIZE" env-default:"100"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" env-default:"30s"`
	ConnectionTimeout time.Duration `env:"CONNECTION_TIMEOUT" env-default:"24h"`
	ConnectionBuffer  int           `env:"CONNECTION_BUFFER" env-default:"32"`

	SMTPHost         string        `env:"SMTP_HOST" env-default:"localhost"`
	SMTPPort         int           `env:"SMTP_PORT" env-default:"1025"`
	SMTPUser         string        `env:"SMTP_USER"`
	SMTPPass         string        `env:"SMTP_PASS"`
	SMTPFrom         string        `env:"SMTP_FROM" env-default:"noreply@example.com"`
	SMTPFromName     string        `env:"SMTP_FROM_NAME" env-default:"Notification Service"`
	SMTPRatePerSec   float64       `env:"SMTP_RATE_PER_SECOND" env-default:"10"`
	SMTPBreakerFails int           `env:"SMTP_BREAKER_FAILURES" env-default:"5"`
	SMTPBreakerReset time.Duration `env:"SMTP_BREAKER_RESET" env-default:"30s"`
	EmailWorkers     int           `env:"EMAIL_WORKERS" env-default:"8"`

	JWTSecret   string        `env:"JWT_SECRET" env-default:"dev-secret-key"`
	JWTIssuer   string        `env:"JWT_ISSUER"`
	JWTAudience string        `env:"JWT_AUDIENCE"`
	JWTTTL      time.Duration `env:"JWT_TTL" env-default:"1h"`

	CORSOrigins []string `env:"CORS_ORIGINS" env-separator:"," env-default:"*"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func Load() (*Config, error) {
	var cfg Config

	// Environment only; there is no config file.
	err := cleanenv.ReadEnv(&cfg)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return &cfg, nil
}

// Validate checks cross-field rules cleanenv cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.PollBatchSize <= 0 {
		errs = append(errs, errors.New("POLL_BATCH_SIZE must be positive"))
	}
	if c.RetryDelay <= 0 {
		errs = append(errs, errors.New("RETRY_DELAY must be positive"))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL must be positive"))
	}
	if c.ConnectionTimeout <= 0 {
		errs = append(errs, errors.New("CONNECTION_TIMEOUT must be positive"))
	}
	if strings.TrimSpace(c.ConsumerGroup) == "" || strings.TrimSpace(c.ConsumerName) == "" {
		errs = append(errs, errors.New("CONSUMER_GROUP and CONSUMER_NAME are required"))
	}
	if c.EmailWorkers < 1 {
		errs = append(errs, errors.New("EMAIL_WORKERS must be at least 1"))
	}
	return errors.Join(errs...)
}

// InboundStreams lists the consumed streams.
func (c *Config) InboundStreams() []string {
	return []string{c.StreamUserEvents, c.StreamAssessmentEvents, c.StreamProctoringEvents}
}
