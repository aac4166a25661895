package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	SnowflakeID int64

	OTLPEndpoint string

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

	RedisURL string

	Payment       PaymentConfig
	MetricsExport MetricsExportConfig
	RateLimit     RateLimitConfig
}

type PaymentConfig struct {
	IdempotencyTTL    time.Duration
	InFlightLockTTL   time.Duration
	GatewayConfigPath string
}

// MetricsExportConfig controls pushing settlement metrics to a remote
// Prometheus endpoint. An empty Exporter disables the push loop.
type MetricsExportConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// RateLimitConfig bounds how often a single client may submit payments.
type RateLimitConfig struct {
	PaymentsPerSecond float64
	Burst             int
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewGatewayConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	port := getenv("PORT", "8003")

	return Config{
		AppName:           getenv("APP_SERVICE", "paycore"),
		AppVersion:        getenv("APP_VERSION", "1.0.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":"+port),
		SnowflakeID:       getenvInt64("SNOWFLAKE_NODE", 1),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "orderdb"),
		DBUser:            getenv("DATABASE_USER", "webapp"),
		DBPassword:        getenv("DATABASE_PASSWORD", "webapp"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		RedisURL:          strings.TrimSpace(getenv("REDIS_URL", "redis://localhost:6379/2")),
		Payment: PaymentConfig{
			IdempotencyTTL:    getenvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
			InFlightLockTTL:   getenvDuration("IDEMPOTENCY_LOCK_TTL", 30*time.Second),
			GatewayConfigPath: strings.TrimSpace(getenv("GATEWAY_CONFIG_PATH", "")),
		},
		MetricsExport: MetricsExportConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_EXPORT_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_EXPORT_AUTH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_EXPORT_INTERVAL", time.Minute),
		},
		RateLimit: RateLimitConfig{
			PaymentsPerSecond: getenvFloat("RATE_LIMIT_PAYMENTS_PER_SECOND", 0),
			Burst:             int(getenvInt64("RATE_LIMIT_PAYMENTS_BURST", 20)),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
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
