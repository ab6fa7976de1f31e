package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr          = ":8080"
	defaultDatabaseURL       = "file:board.db"
	defaultRedisURL          = "redis://localhost:6379/0"
	defaultStoreTimeout      = "2s"
	defaultJWTSecret         = "change-me-jwt-secret-change-me-jwt-secret"
	defaultJWTAccessTTL      = "1h"
	defaultRefreshTTL        = "168h"
	defaultPenaltyThreshold  = "5"
	defaultSuspension        = "3m"
	defaultEnvelopeSecret    = "change-me-proxy-secret-change-me-proxy-secret"
	defaultEnvelopeTTL       = "1m"
	defaultEnvelopeIssuer    = "purgo-skfinal"
	defaultModerationTimeout = "3s"
	defaultAuthRateRPS       = "5"
	defaultAuthRateBurst     = "10"
	minSecretLength          = 32
	defaultLogLevel          = "info"
)

type Config struct {
	AppEnv   string
	HTTPAddr string
	LogLevel string

	DatabaseURL  string
	RedisURL     string
	StoreTimeout time.Duration

	JWTSecret    string
	JWTAccessTTL time.Duration
	RefreshTTL   time.Duration

	PenaltyThreshold   int
	SuspensionDuration time.Duration

	ModerationBaseURL string
	ModerationAPIKey  string
	ModerationTimeout time.Duration
	EnvelopeSecret    string
	EnvelopeTTL       time.Duration
	EnvelopeIssuer    string

	AuthRateRPS   float64
	AuthRateBurst int

	CORSAllowedOrigins string

	// SweepSchedule is a cron spec for cmd/limits_sweep; empty runs once.
	SweepSchedule string
}

// ModerationEnabled reports whether outbound text screening is configured.
func (c *Config) ModerationEnabled() bool {
	return c.ModerationBaseURL != ""
}

func Load() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.LogLevel = strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.RedisURL = strings.TrimSpace(getEnv("REDIS_URL", defaultRedisURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.ModerationBaseURL = strings.TrimSpace(os.Getenv("PURGO_PROXY_BASE_URL"))
	cfg.ModerationAPIKey = strings.TrimSpace(os.Getenv("PURGO_CLIENT_API_KEY"))
	cfg.EnvelopeSecret = strings.TrimSpace(getEnv("SERVER_TO_PROXY_JWT_SECRET", defaultEnvelopeSecret))
	cfg.EnvelopeIssuer = strings.TrimSpace(getEnv("SERVER_TO_PROXY_ISSUER", defaultEnvelopeIssuer))
	cfg.CORSAllowedOrigins = os.Getenv("CORS_ALLOWED_ORIGINS")
	cfg.SweepSchedule = strings.TrimSpace(os.Getenv("LIMITS_SWEEP_SCHEDULE"))

	var err error
	if cfg.StoreTimeout, err = parseDurationEnv("STORE_TIMEOUT", defaultStoreTimeout); err != nil {
		return nil, err
	}
	if cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", defaultJWTAccessTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = parseDurationEnv("REFRESH_TTL", defaultRefreshTTL); err != nil {
		return nil, err
	}
	if cfg.SuspensionDuration, err = parseDurationEnv("SUSPENSION_DURATION", defaultSuspension); err != nil {
		return nil, err
	}
	if cfg.ModerationTimeout, err = parseDurationEnv("MODERATION_TIMEOUT", defaultModerationTimeout); err != nil {
		return nil, err
	}
	if cfg.EnvelopeTTL, err = parseDurationEnv("SERVER_TO_PROXY_JWT_EXPIRATION", defaultEnvelopeTTL); err != nil {
		return nil, err
	}
	if cfg.PenaltyThreshold, err = parseIntEnv("PENALTY_THRESHOLD", defaultPenaltyThreshold); err != nil {
		return nil, err
	}
	if cfg.AuthRateBurst, err = parseIntEnv("AUTH_RATE_BURST", defaultAuthRateBurst); err != nil {
		return nil, err
	}
	rps := strings.TrimSpace(getEnv("AUTH_RATE_RPS", defaultAuthRateRPS))
	if cfg.AuthRateRPS, err = strconv.ParseFloat(rps, 64); err != nil {
		return nil, fmt.Errorf("invalid AUTH_RATE_RPS value %q: %w", rps, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Validate(cfg *Config) error {
	if cfg.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be > 0")
	}
	if cfg.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.RefreshTTL <= 0 {
		return fmt.Errorf("REFRESH_TTL must be > 0")
	}
	if cfg.PenaltyThreshold <= 0 {
		return fmt.Errorf("PENALTY_THRESHOLD must be > 0")
	}
	if cfg.SuspensionDuration <= 0 {
		return fmt.Errorf("SUSPENSION_DURATION must be > 0")
	}
	if cfg.ModerationTimeout <= 0 {
		return fmt.Errorf("MODERATION_TIMEOUT must be > 0")
	}
	if cfg.EnvelopeTTL <= 0 {
		return fmt.Errorf("SERVER_TO_PROXY_JWT_EXPIRATION must be > 0")
	}
	if cfg.AuthRateRPS <= 0 || cfg.AuthRateBurst <= 0 {
		return fmt.Errorf("AUTH_RATE_RPS and AUTH_RATE_BURST must be > 0")
	}
	if len(cfg.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	if len(cfg.EnvelopeSecret) < minSecretLength {
		return fmt.Errorf("SERVER_TO_PROXY_JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	if cfg.JWTSecret == cfg.EnvelopeSecret {
		return fmt.Errorf("SERVER_TO_PROXY_JWT_SECRET must differ from JWT_SECRET")
	}
	if cfg.ModerationEnabled() && cfg.ModerationAPIKey == "" {
		return fmt.Errorf("PURGO_CLIENT_API_KEY must be set when PURGO_PROXY_BASE_URL is set")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.EnvelopeSecret, defaultEnvelopeSecret) {
			return fmt.Errorf("in prod/release SERVER_TO_PROXY_JWT_SECRET must be set and not default")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
