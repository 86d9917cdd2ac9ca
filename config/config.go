// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the binary needs to wire itself up.
type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string

	LogLevel    string
	LogEncoding string

	Gateway GatewayConfig
	Refund  RefundConfig

	// SweepSchedule drives the contract expiry sweeper and outbox relay.
	SweepSchedule string
}

// GatewayConfig carries the payment gateway credentials.
type GatewayConfig struct {
	AppID    int
	Key1     string
	Key2     string
	Endpoint string
}

// RefundConfig bounds the refund poll loop.
type RefundConfig struct {
	MaxAttempts int
	PollDelay   time.Duration
}

const (
	defaultPort        = "8080"
	defaultLogLevel    = "info"
	defaultLogEncoding = "json"
	defaultEndpoint    = "https://sb-openapi.zalopay.vn"
	defaultAttempts    = 5
	defaultPollDelay   = 2 * time.Second
	defaultSchedule    = "@every 60s"
)

// Load reads configuration, consulting a .env file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", defaultPort),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		LogLevel:    getEnv("LOG_LEVEL", defaultLogLevel),
		LogEncoding: getEnv("LOG_ENCODING", defaultLogEncoding),
		Gateway: GatewayConfig{
			AppID:    getEnvInt("ZP_APP_ID", 0),
			Key1:     os.Getenv("ZP_KEY1"),
			Key2:     os.Getenv("ZP_KEY2"),
			Endpoint: getEnv("ZP_ENDPOINT", defaultEndpoint),
		},
		Refund: RefundConfig{
			MaxAttempts: getEnvInt("REFUND_MAX_ATTEMPTS", defaultAttempts),
			PollDelay:   getEnvDuration("REFUND_POLL_DELAY", defaultPollDelay),
		},
		SweepSchedule: getEnv("SWEEP_SCHEDULE", defaultSchedule),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
