// Package config reads the process configuration from the environment (and an
// optional .env file) and validates it before anything else starts.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var validMailProviders = []string{"smtp", "resend"}

type Config struct {
	Addr       string
	AppBaseURL string

	DatabaseURL string

	JWTSecret string
	JWTIssuer string

	SessionTTL      time.Duration
	VerifyTTL       time.Duration
	ResendVerifyTTL time.Duration
	ResetTTL        time.Duration

	CookieDomain string
	CookieSecure bool

	MailProvider string
	MailFrom     string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	ResendAPIKey string

	ContactTo          string
	ContactSendAck     bool
	ContactDedupWindow time.Duration
}

// Load returns an error when a required value is missing; the process must
// not come up with a generated or empty secret.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_BASE_URL", "http://localhost:8080")
	v.SetDefault("JWT_ISSUER", "agencecom")
	v.SetDefault("SESSION_TTL", "1h")
	v.SetDefault("VERIFY_TTL", "168h")
	v.SetDefault("RESEND_VERIFY_TTL", "24h")
	v.SetDefault("RESET_TTL", "1h")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("MAIL_PROVIDER", "smtp")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("CONTACT_SEND_ACK", true)
	v.SetDefault("CONTACT_DEDUP_WINDOW", "2m")

	cfg := &Config{
		Addr:       v.GetString("HTTP_ADDR"),
		AppBaseURL: v.GetString("APP_BASE_URL"),

		DatabaseURL: v.GetString("DATABASE_URL"),

		JWTSecret: v.GetString("JWT_SECRET"),
		JWTIssuer: v.GetString("JWT_ISSUER"),

		SessionTTL:      v.GetDuration("SESSION_TTL"),
		VerifyTTL:       v.GetDuration("VERIFY_TTL"),
		ResendVerifyTTL: v.GetDuration("RESEND_VERIFY_TTL"),
		ResetTTL:        v.GetDuration("RESET_TTL"),

		CookieDomain: v.GetString("COOKIE_DOMAIN"),
		CookieSecure: v.GetBool("COOKIE_SECURE"),

		MailProvider: v.GetString("MAIL_PROVIDER"),
		MailFrom:     v.GetString("MAIL_FROM"),
		SMTPHost:     v.GetString("SMTP_HOST"),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUser:     v.GetString("SMTP_USER"),
		SMTPPassword: v.GetString("SMTP_PASSWORD"),
		ResendAPIKey: v.GetString("RESEND_API_KEY"),

		ContactTo:          v.GetString("CONTACT_TO"),
		ContactSendAck:     v.GetBool("CONTACT_SEND_ACK"),
		ContactDedupWindow: v.GetDuration("CONTACT_DEDUP_WINDOW"),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if !slices.Contains(validMailProviders, cfg.MailProvider) {
		return nil, fmt.Errorf("invalid MAIL_PROVIDER %q", cfg.MailProvider)
	}
	if cfg.MailProvider == "smtp" && cfg.SMTPHost == "" {
		return nil, errors.New("SMTP_HOST is required for the smtp mail provider")
	}
	if cfg.MailProvider == "resend" && cfg.ResendAPIKey == "" {
		return nil, errors.New("RESEND_API_KEY is required for the resend mail provider")
	}
	if cfg.MailFrom == "" {
		return nil, errors.New("MAIL_FROM is required")
	}
	if cfg.ContactTo == "" {
		cfg.ContactTo = cfg.MailFrom
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("SESSION_TTL must be positive")
	}
	return cfg, nil
}
