package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Application base URL (checkout redirects, onboarding links, email links)
	BaseURL string

	// SMTP Configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Notification worker
	WorkerEnabled      bool
	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	WorkerMaxAttempts  int

	// Stripe Billing Configuration
	// Required in production; in development the billing handlers act as
	// stubs when these are empty.
	StripeSecretKey     string // sk_test_... or sk_live_...
	StripeWebhookSecret string // whsec_...

	// Stripe price IDs for subscription plans
	StripeProMonthlyPriceID      string
	StripeProYearlyPriceID       string
	StripeBusinessMonthlyPriceID string
	StripeBusinessYearlyPriceID  string

	// Rate limits
	GeneralRateLimit  int           // requests per window per IP, general API
	GuardedRateLimit  int           // requests per window per IP, quote/checkout
	RateLimitWindow   time.Duration

	// Metrics endpoint authentication.
	// If both are empty the /metrics endpoint is unprotected (development only).
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		// SMTP defaults for Mailhog (development)
		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@tradevine.app"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Tradevine"),

		// Worker defaults
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerBatchSize:    getEnvInt("WORKER_BATCH_SIZE", 10),
		WorkerMaxAttempts:  getEnvInt("WORKER_MAX_ATTEMPTS", 5),

		// Stripe billing (optional — stubs work without these)
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		StripeProMonthlyPriceID:      getEnv("STRIPE_PRO_MONTHLY_PRICE_ID", ""),
		StripeProYearlyPriceID:       getEnv("STRIPE_PRO_YEARLY_PRICE_ID", ""),
		StripeBusinessMonthlyPriceID: getEnv("STRIPE_BUSINESS_MONTHLY_PRICE_ID", ""),
		StripeBusinessYearlyPriceID:  getEnv("STRIPE_BUSINESS_YEARLY_PRICE_ID", ""),

		GeneralRateLimit: getEnvInt("RATE_LIMIT_GENERAL", 120),
		GuardedRateLimit: getEnvInt("RATE_LIMIT_GUARDED", 20),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.Env == "production" {
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required in production")
		}
		if cfg.StripeWebhookSecret == "" {
			return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
