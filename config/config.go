// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           string `env:"PORT" envDefault:"5200"`
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`

	ClerkSecretKey     string `env:"CLERK_SECRET_KEY"`
	ClerkWebhookSecret string `env:"CLERK_WEBHOOK_SECRET"`
	AdminServiceToken  string `env:"ADMIN_SERVICE_TOKEN,required,notEmpty"`

	Paystack PaystackConfig
	Paddle   PaddleConfig
	R2       R2Config

	GeoLookupURL   string        `env:"GEO_LOOKUP_URL" envDefault:"https://ipapi.co"`
	GeoTimeout     time.Duration `env:"GEO_TIMEOUT" envDefault:"3s"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	CoinSymbol        string        `env:"COIN_SYMBOL" envDefault:"BLC"`
	FeedPollInterval  time.Duration `env:"FEED_POLL_INTERVAL" envDefault:"5s"`
	PaymentPendingTTL time.Duration `env:"PAYMENT_PENDING_TTL" envDefault:"48h"`
	MilestoneQueue    int           `env:"MILESTONE_QUEUE_SIZE" envDefault:"256"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"30"`

	MetricsUser string `env:"METRICS_USER"`
	MetricsPass string `env:"METRICS_PASS"`

	SeedReferenceData bool `env:"SEED_REFERENCE_DATA" envDefault:"true"`
}

type PaystackConfig struct {
	SecretKey   string `env:"PAYSTACK_SECRET_KEY"`
	BaseURL     string `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	CallbackURL string `env:"PAYSTACK_CALLBACK_URL"`
}

type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	// PriceIDs maps a fee to its catalog price, e.g. "USD-50.00:pri_01,GBP-40.00:pri_02".
	PriceIDs map[string]string `env:"PADDLE_PRICE_IDS"`
	Sandbox  bool              `env:"PADDLE_SANDBOX" envDefault:"true"`
}

type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	CDNBaseURL      string `env:"CDN_BASE_URL"`
}

// Enabled reports whether proof uploads can be stored.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.Bucket != ""
}

// Origins splits ALLOWED_ORIGINS and trims each entry.
func (c *Config) Origins() string {
	parts := strings.Split(c.AllowedOrigins, ",")
	for i, origin := range parts {
		parts[i] = strings.TrimSpace(origin)
	}
	return strings.Join(parts, ",")
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
