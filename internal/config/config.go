package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
	Kafka        KafkaConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN             string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	RunMigrations   bool
	ConnMaxIdleSec  int32
	ConnMaxLifeSec  int32
	ConnectTimeout  time.Duration
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines bearer token verification for the read API.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Disabled  bool
}

// NotificationConfig controls the email queue and alert deduplication.
type NotificationConfig struct {
	EmailFrom     string
	WebhookURL    string
	EmailQueueKey string
	DedupPrefix   string
	DedupTTL      time.Duration
}

// SLAConfig tunes the detector and calendar math.
type SLAConfig struct {
	ScanInterval    time.Duration
	WarningRatio    float64
	WarningLead     time.Duration
	MaxHorizon      time.Duration
	ScanWorkers     int
	TicketTimeout   time.Duration
	DefaultTimezone string
	OutboxBatch     int
	CalendarTTL     time.Duration
	SchedulerOn     bool
}

// KafkaConfig enables publishing SLA events to a topic when Brokers is set.
type KafkaConfig struct {
	Brokers  []string
	SLATopic string
}

// Enabled reports whether a Kafka publisher should be registered.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.SLATopic != ""
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			ApplicationName: getEnv("POSTGRES_APPLICATION_NAME", "sla-engine"),
			MaxConns:        int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:        int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:   getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec:  int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec:  int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
			ConnectTimeout:  getEnvAsDuration("POSTGRES_CONNECT_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:    os.Getenv("AUTH_JWT_ISSUER"),
			Disabled:  getEnvAsBool("AUTH_DISABLED", false),
		},
		Notification: NotificationConfig{
			EmailFrom:     getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:    getEnv("NOTIFY_WEBHOOK_URL", ""),
			EmailQueueKey: getEnv("NOTIFY_EMAIL_QUEUE_KEY", "email:queue"),
			DedupPrefix:   getEnv("NOTIFY_DEDUP_PREFIX", "sla:notified"),
			DedupTTL:      getEnvAsDuration("NOTIFY_DEDUP_TTL", 30*24*time.Hour),
		},
		SLA: SLAConfig{
			ScanInterval:    getEnvAsDuration("SLA_SCAN_INTERVAL", 5*time.Minute),
			WarningRatio:    getEnvAsFloat("SLA_WARNING_RATIO", 0.2),
			WarningLead:     getEnvAsDuration("SLA_WARNING_LEAD", 0),
			MaxHorizon:      getEnvAsDuration("SLA_MAX_HORIZON", 17520*time.Hour),
			ScanWorkers:     getEnvAsInt("SLA_SCAN_WORKERS", 4),
			TicketTimeout:   getEnvAsDuration("SLA_TICKET_TIMEOUT", 10*time.Second),
			DefaultTimezone: getEnv("SLA_DEFAULT_TIMEZONE", "UTC"),
			OutboxBatch:     getEnvAsInt("SLA_OUTBOX_BATCH", 100),
			CalendarTTL:     getEnvAsDuration("SLA_CALENDAR_TTL", time.Minute),
			SchedulerOn:     getEnvAsBool("SLA_SCHEDULER_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers:  getEnvAsList("KAFKA_BROKERS"),
			SLATopic: os.Getenv("KAFKA_SLA_TOPIC"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.SLA.ScanInterval <= 0 {
		errs = append(errs, errors.New("SLA_SCAN_INTERVAL must be positive"))
	}
	if c.SLA.WarningRatio <= 0 || c.SLA.WarningRatio >= 1 {
		errs = append(errs, fmt.Errorf("SLA_WARNING_RATIO must be between 0 and 1, got %v", c.SLA.WarningRatio))
	}
	if c.SLA.WarningLead < 0 {
		errs = append(errs, errors.New("SLA_WARNING_LEAD must not be negative"))
	}
	if c.SLA.MaxHorizon <= 0 {
		errs = append(errs, errors.New("SLA_MAX_HORIZON must be positive"))
	}
	if c.SLA.ScanWorkers <= 0 {
		errs = append(errs, errors.New("SLA_SCAN_WORKERS must be positive"))
	}
	if c.SLA.TicketTimeout <= 0 {
		errs = append(errs, errors.New("SLA_TICKET_TIMEOUT must be positive"))
	}
	if c.SLA.OutboxBatch <= 0 {
		errs = append(errs, errors.New("SLA_OUTBOX_BATCH must be positive"))
	}
	if _, err := time.LoadLocation(c.SLA.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("SLA_DEFAULT_TIMEZONE: %w", err))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.SLATopic == "" {
		errs = append(errs, errors.New("KAFKA_SLA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

// Location returns the default timezone for entities without one.
func (s SLAConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
