package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env     string
	Port    int
	LogJSON bool

	DatabaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string

	SiteURL     string
	OwnerEmail  string
	EmailAPIKey string
	EmailFrom   string
	EmailAPIURL string

	AdminPassword string
	JWTSecret     string

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr     string
	RedisPassword string
	EventCacheTTL time.Duration

	TracingEndpoint string
}

func Default() Config {
	return Config{
		Env:           "dev",
		Port:          8080,
		LogJSON:       true,
		SiteURL:       "http://localhost:5173",
		EmailFrom:     "The Chesapeake Shell <orders@chesapeakeshell.com>",
		EmailAPIURL:   "https://api.resend.com",
		KafkaTopic:    "order_events",
		EventCacheTTL: 72 * time.Hour,
	}
}

func EnvDefaults() Config {
	return fromEnv(Default())
}

func fromEnv(c Config) Config {
	if v := os.Getenv("SHELL_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("SHELL_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("SHELL_LOG_JSON"); v != "" {
		switch v {
		case "1", "true", "TRUE":
			c.LogJSON = true
		case "0", "false", "FALSE":
			c.LogJSON = false
		}
	}
	str(&c.DatabaseURL, "DATABASE_URL")
	str(&c.StripeSecretKey, "STRIPE_SECRET_KEY")
	str(&c.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	str(&c.SiteURL, "SITE_URL")
	str(&c.OwnerEmail, "OWNER_EMAIL")
	str(&c.EmailAPIKey, "RESEND_API_KEY")
	str(&c.EmailFrom, "SHELL_EMAIL_FROM")
	str(&c.EmailAPIURL, "SHELL_EMAIL_API_URL")
	str(&c.AdminPassword, "ADMIN_PASSWORD")
	str(&c.JWTSecret, "SHELL_JWT_SECRET")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = splitList(v)
	}
	str(&c.KafkaTopic, "KAFKA_TOPIC")
	str(&c.RedisAddr, "REDIS_ADDR")
	str(&c.RedisPassword, "REDIS_PASSWORD")
	if v := os.Getenv("SHELL_EVENT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.EventCacheTTL = d
		}
	}
	str(&c.TracingEndpoint, "JAEGER_ENDPOINT")
	return c
}

func str(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// WebhookReady reports whether both Stripe secrets are configured.
func (c Config) WebhookReady() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}

func (c Config) AdminEnabled() bool {
	return c.AdminPassword != "" && c.JWTSecret != ""
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, errors.New("SHELL_PORT must be between 1 and 65535"))
	}
	if c.Env == "prod" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in prod"))
	}
	if c.Env == "prod" && !c.WebhookReady() {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required in prod"))
	}
	if c.EmailAPIKey != "" && c.EmailFrom == "" {
		errs = append(errs, errors.New("SHELL_EMAIL_FROM is required when RESEND_API_KEY is set"))
	}
	return errors.Join(errs...)
}
