package config

import (
	"fmt"
	"os"
	"strconv"
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
	RateLimit    RateLimitConfig
	Conversation ConversationConfig
	Notification NotificationConfig
	Bot          BotConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	Timezone              string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN             string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	RunMigrations   bool
	MigrationsDir   string
	ConnMaxIdleSec  int32
	ConnMaxLifeSec  int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// Store backends for per-user ephemeral state.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// RateLimitConfig defines admission limits applied per (user, action).
type RateLimitConfig struct {
	Backend          string
	PermitLimit      int
	AdminPermitLimit int
	WindowSeconds    int
}

// ConversationConfig controls dialog state storage.
type ConversationConfig struct {
	Backend    string
	TTLMinutes int
}

// NotificationConfig holds delivery settings.
type NotificationConfig struct {
	DeliveryTimeoutSeconds int
	EmailWebhookURL        string
	SMSWebhookURL          string
	SchedulerIntervalSec   int
	SchedulerBatchSize     int
}

// BotConfig secures the inbound chat update endpoint and configures outbound pushes.
type BotConfig struct {
	UpdateSecret string
	GatewayURL   string
	GatewayToken string
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
			Name:                  getEnv("APP_NAME", "appeal-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			Timezone:              getEnv("APP_TIMEZONE", "UTC"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			ApplicationName: getEnv("APP_NAME", "appeal-service"),
			MaxConns:        int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:        int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:   getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:   getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec:  int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec:  int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "appeals:"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		RateLimit: RateLimitConfig{
			Backend:          getEnv("RATE_LIMIT_BACKEND", BackendMemory),
			PermitLimit:      getEnvAsInt("RATE_LIMIT_PERMIT_LIMIT", 10),
			AdminPermitLimit: getEnvAsInt("RATE_LIMIT_ADMIN_PERMIT_LIMIT", 100),
			WindowSeconds:    getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Conversation: ConversationConfig{
			Backend:    getEnv("CONVERSATION_BACKEND", BackendMemory),
			TTLMinutes: getEnvAsInt("CONVERSATION_TTL_MINUTES", 60*24),
		},
		Notification: NotificationConfig{
			DeliveryTimeoutSeconds: getEnvAsInt("NOTIFY_DELIVERY_TIMEOUT_SECONDS", 10),
			EmailWebhookURL:        getEnv("NOTIFY_EMAIL_WEBHOOK_URL", ""),
			SMSWebhookURL:          getEnv("NOTIFY_SMS_WEBHOOK_URL", ""),
			SchedulerIntervalSec:   getEnvAsInt("NOTIFY_SCHEDULER_INTERVAL_SECONDS", 30),
			SchedulerBatchSize:     getEnvAsInt("NOTIFY_SCHEDULER_BATCH_SIZE", 50),
		},
		Bot: BotConfig{
			UpdateSecret: getEnv("BOT_UPDATE_SECRET", ""),
			GatewayURL:   getEnv("BOT_GATEWAY_URL", ""),
			GatewayToken: os.Getenv("BOT_GATEWAY_TOKEN"),
		},
	}

	if cfg.RateLimit.PermitLimit <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PERMIT_LIMIT: %d", cfg.RateLimit.PermitLimit)
	}
	if cfg.RateLimit.AdminPermitLimit < cfg.RateLimit.PermitLimit {
		cfg.RateLimit.AdminPermitLimit = cfg.RateLimit.PermitLimit
	}

	return cfg, nil
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

// Window returns the fixed window length.
func (r RateLimitConfig) Window() time.Duration {
	if r.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.WindowSeconds) * time.Second
}

// TTL returns how long idle dialog state is kept.
func (c ConversationConfig) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

// DeliveryTimeout bounds a single channel send.
func (n NotificationConfig) DeliveryTimeout() time.Duration {
	if n.DeliveryTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.DeliveryTimeoutSeconds) * time.Second
}

// SchedulerInterval is the polling period for scheduled notifications.
func (n NotificationConfig) SchedulerInterval() time.Duration {
	if n.SchedulerIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n.SchedulerIntervalSec) * time.Second
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
