package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Ledger backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	CORS          CORSConfig
	Log           LogConfig
	Enrollment    EnrollmentConfig
	Availability  AvailabilityConfig
	Events        EventsConfig
	Schedules     ScheduleConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EnrollmentConfig tunes the registration engine.
type EnrollmentConfig struct {
	Store                string
	SeedFile             string
	LockTimeout          time.Duration
	DefaultMaxCredits    int
	RetryAttempts        int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// AvailabilityConfig governs the display cache for seat availability.
type AvailabilityConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// EventsConfig configures outbound enrollment event delivery.
type EventsConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
	DedupTTL   time.Duration
	Channel    string
}

// ScheduleConfig holds cron specs for background jobs.
type ScheduleConfig struct {
	OutboxRelay string
	Reconcile   string
}

// NotificationConfig configures the email sink. Email is disabled without an API key.
type NotificationConfig struct {
	SendGridAPIKey string
	FromEmail      string
	AppName        string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	store := strings.ToLower(v.GetString("ENROLLMENT_STORE"))
	if store != StorePostgres {
		store = StoreMemory
	}
	maxCredits := v.GetInt("ENROLLMENT_DEFAULT_MAX_CREDITS")
	if maxCredits <= 0 {
		maxCredits = 18
	}
	attempts := v.GetInt("ENROLLMENT_RETRY_ATTEMPTS")
	if attempts <= 0 {
		attempts = 1
	}
	cfg.Enrollment = EnrollmentConfig{
		Store:                store,
		SeedFile:             v.GetString("ENROLLMENT_SEED_FILE"),
		LockTimeout:          parseDuration(v.GetString("ENROLLMENT_LOCK_TIMEOUT"), 2*time.Second),
		DefaultMaxCredits:    maxCredits,
		RetryAttempts:        attempts,
		RetryInitialInterval: parseDuration(v.GetString("ENROLLMENT_RETRY_INITIAL_INTERVAL"), 50*time.Millisecond),
		RetryMaxInterval:     parseDuration(v.GetString("ENROLLMENT_RETRY_MAX_INTERVAL"), 500*time.Millisecond),
	}

	cfg.Availability = AvailabilityConfig{
		CacheEnabled: v.GetBool("ENABLE_AVAILABILITY_CACHE"),
		CacheTTL:     parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), 15*time.Second),
	}

	cfg.Events = EventsConfig{
		Workers:    v.GetInt("EVENTS_WORKERS"),
		Retries:    v.GetInt("EVENTS_RETRIES"),
		RetryDelay: parseDuration(v.GetString("EVENTS_RETRY_DELAY"), 2*time.Second),
		DedupTTL:   parseDuration(v.GetString("EVENTS_DEDUP_TTL"), 72*time.Hour),
		Channel:    v.GetString("EVENTS_CHANNEL"),
	}

	cfg.Schedules = ScheduleConfig{
		OutboxRelay: v.GetString("OUTBOX_RELAY_SCHEDULE"),
		Reconcile:   v.GetString("RECONCILE_SCHEDULE"),
	}

	cfg.Notifications = NotificationConfig{
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromEmail:      v.GetString("NOTIFY_FROM_EMAIL"),
		AppName:        v.GetString("NOTIFY_APP_NAME"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "registrar")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENROLLMENT_STORE", StoreMemory)
	v.SetDefault("ENROLLMENT_SEED_FILE", "")
	v.SetDefault("ENROLLMENT_LOCK_TIMEOUT", "2s")
	v.SetDefault("ENROLLMENT_DEFAULT_MAX_CREDITS", 18)
	v.SetDefault("ENROLLMENT_RETRY_ATTEMPTS", 3)
	v.SetDefault("ENROLLMENT_RETRY_INITIAL_INTERVAL", "50ms")
	v.SetDefault("ENROLLMENT_RETRY_MAX_INTERVAL", "500ms")

	v.SetDefault("ENABLE_AVAILABILITY_CACHE", false)
	v.SetDefault("AVAILABILITY_CACHE_TTL", "15s")

	v.SetDefault("EVENTS_WORKERS", 2)
	v.SetDefault("EVENTS_RETRIES", 5)
	v.SetDefault("EVENTS_RETRY_DELAY", "2s")
	v.SetDefault("EVENTS_DEDUP_TTL", "72h")
	v.SetDefault("EVENTS_CHANNEL", "enrollment.events")

	v.SetDefault("OUTBOX_RELAY_SCHEDULE", "@every 1m")
	v.SetDefault("RECONCILE_SCHEDULE", "@every 10m")

	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("NOTIFY_FROM_EMAIL", "registrar@example.edu")
	v.SetDefault("NOTIFY_APP_NAME", "Registrar")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
