package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the application needs. It is built once in main
// and handed to the constructors that need it; nothing else reads the environment.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	LogLevel  string
	LogFormat string

	CORSAllowedOrigins []string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	RedisURL        string
	NotifyQueueSize int
	NotifyWorkers   int
	NotifyTimeout   time.Duration

	SchedulerRunAt        string
	SchedulerTimezone     string
	SchedulerConcurrency  int
	SchedulerEventTimeout time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// SMTPEnabled reports whether outgoing mail is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// R2Enabled reports whether roster archiving to Cloudflare R2 is configured.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2BucketName != ""
}

// Load reads configuration from the environment. A .env file is loaded first
// when present (handy for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	dbURL := getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intVar(getenv, "SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	smtpPort, err := intVar(getenv, "SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}

	queueSize, err := intVar(getenv, "NOTIFY_QUEUE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	workers, err := intVar(getenv, "NOTIFY_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	notifyTimeout, err := durationVar(getenv, "NOTIFY_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	runAt := stringVar(getenv, "SCHEDULER_RUN_AT", "06:00")
	if _, err := time.Parse("15:04", runAt); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_RUN_AT %q, expected HH:MM: %w", runAt, err)
	}
	tz := stringVar(getenv, "SCHEDULER_TIMEZONE", "Local")
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", tz, err)
	}
	concurrency, err := intVar(getenv, "SCHEDULER_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("SCHEDULER_CONCURRENCY must be positive, got %d", concurrency)
	}
	eventTimeout, err := durationVar(getenv, "SCHEDULER_EVENT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		LogLevel:  stringVar(getenv, "LOG_LEVEL", "info"),
		LogFormat: stringVar(getenv, "LOG_FORMAT", "json"),

		CORSAllowedOrigins: listVar(getenv, "CORS_ALLOWED_ORIGINS", []string{"*"}),

		SMTPHost: getenv("SMTP_HOST"),
		SMTPPort: smtpPort,
		SMTPUser: getenv("SMTP_USER"),
		SMTPPass: getenv("SMTP_PASS"),
		SMTPFrom: getenv("SMTP_FROM"),

		RedisURL:        getenv("REDIS_URL"),
		NotifyQueueSize: queueSize,
		NotifyWorkers:   workers,
		NotifyTimeout:   notifyTimeout,

		SchedulerRunAt:        runAt,
		SchedulerTimezone:     tz,
		SchedulerConcurrency:  concurrency,
		SchedulerEventTimeout: eventTimeout,

		R2AccountID:       getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

func stringVar(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func listVar(getenv func(string) string, key string, def []string) []string {
	raw := getenv(key)
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
