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

	AuthCookieSecure bool
	SessionSecret    string

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

	RedisAddr     string
	RedisPassword string

	TaxRateDefault  float64
	CurrencyDefault string

	TrialPeriodDays int
	GracePeriodDays int

	GatewaySecret        string
	GatewayPublic        string
	GatewayWebhookSecret string
	GatewayBaseURL       string

	SchedulerDailyTime string

	CORSOrigins []string

	SeedDemo bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:          getenv("APP_SERVICE", "dukahub"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		AuthCookieSecure: authCookieSecure,
		SessionSecret:    strings.TrimSpace(getenv("SESSION_SECRET", "")),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "dukahub"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		TaxRateDefault:  getenvFloat("TAX_RATE_DEFAULT", 0.16),
		CurrencyDefault: getenv("CURRENCY_DEFAULT", "KES"),

		TrialPeriodDays: getenvInt("TRIAL_PERIOD_DAYS", 14),
		GracePeriodDays: getenvInt("GRACE_PERIOD_DAYS", 3),

		GatewaySecret:        strings.TrimSpace(getenv("GATEWAY_SECRET", "")),
		GatewayPublic:        strings.TrimSpace(getenv("GATEWAY_PUBLIC", "")),
		GatewayWebhookSecret: strings.TrimSpace(getenv("GATEWAY_WEBHOOK_SECRET", "")),
		GatewayBaseURL:       strings.TrimSpace(getenv("GATEWAY_BASE_URL", "https://api.paystack.co")),

		SchedulerDailyTime: getenv("SCHEDULER_DAILY_TIME", "09:00"),

		CORSOrigins: splitOrigins(getenv("CORS_ORIGINS", "")),

		SeedDemo: getenvBool("SEED_DEMO", false),
	}
}

// Module wires configuration into the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPricingHolder),
)

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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
