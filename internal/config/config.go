package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WebhookRate  float64
	WebhookBurst int

	SweepMode string

	Gateway GatewayConfig
}

// GatewayConfig carries credentials for the payment gateway adapters.
type GatewayConfig struct {
	Provider      string
	StripeAPIKey  string
	PixBaseURL    string
	PixAPIKey     string
	WebhookSecret string
}

const (
	// SweepModeInternal runs the system-wide sweeps on an in-process ticker.
	SweepModeInternal = "internal"
	// SweepModeExternal leaves the sweeps to the sweeper binary / cron.
	SweepModeExternal = "external"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "agenda"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "agenda"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		WebhookRate:  getenvFloat("WEBHOOK_RATE", 10),
		WebhookBurst: getenvInt("WEBHOOK_BURST", 20),

		SweepMode: normalizeSweepMode(getenv("SWEEP_MODE", SweepModeInternal)),

		Gateway: GatewayConfig{
			Provider:      strings.ToLower(getenv("GATEWAY_PROVIDER", "stripe")),
			StripeAPIKey:  strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
			PixBaseURL:    strings.TrimSpace(getenv("PIX_BASE_URL", "")),
			PixAPIKey:     strings.TrimSpace(getenv("PIX_API_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("GATEWAY_WEBHOOK_SECRET", "")),
		},
	}

	return cfg
}

func (c Config) SweepsInternal() bool {
	return c.SweepMode == SweepModeInternal
}

func normalizeSweepMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case SweepModeExternal:
		return SweepModeExternal
	default:
		return SweepModeInternal
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

var Module = fx.Module("config",
	fx.Provide(Load),
)
