package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"restaurant-storefront/internal/erp"
)

// Config holds all configuration for the storefront integration service.
// Everything is injected through the environment; nothing here is ever
// echoed back in responses or logs.
type Config struct {
	ListenAddr  string
	Environment string // "production" or "test"

	ERP erp.Config

	// DatabaseURL enables the Postgres-backed cart store; empty means carts
	// live in process memory only.
	DatabaseURL string
	// RabbitMQURL enables event publishing; empty disables it.
	RabbitMQURL string

	CookieHashKey  []byte
	CookieBlockKey []byte

	CartTTL       time.Duration
	HoldTTL       time.Duration
	SweepInterval time.Duration
}

// Production reports whether the service runs against live payment
// providers; test-state providers are only resolvable outside production.
func (c Config) Production() bool {
	return c.Environment == "production"
}

// FromEnv loads configuration from the environment. Missing ERP connection
// details are fatal: the service cannot do anything useful without them.
func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		Environment: getenv("ENVIRONMENT", "production"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
		ERP: erp.Config{
			BaseURL:  strings.TrimRight(os.Getenv("ERP_BASE_URL"), "/"),
			Database: os.Getenv("ERP_DATABASE"),
			Login:    os.Getenv("ERP_LOGIN"),
			APIKey:   os.Getenv("ERP_API_KEY"),
		},
	}

	if cfg.ERP.BaseURL == "" || cfg.ERP.Database == "" || cfg.ERP.Login == "" || cfg.ERP.APIKey == "" {
		return Config{}, fmt.Errorf("ERP_BASE_URL, ERP_DATABASE, ERP_LOGIN and ERP_API_KEY are required")
	}

	if cfg.Environment != "production" && cfg.Environment != "test" {
		return Config{}, fmt.Errorf("ENVIRONMENT must be production or test, got %q", cfg.Environment)
	}

	var err error
	if cfg.ERP.Timeout, err = seconds("ERP_TIMEOUT_SECONDS", 5); err != nil {
		return Config{}, err
	}
	if cfg.CartTTL, err = seconds("CART_TTL_SECONDS", 2*60*60); err != nil {
		return Config{}, err
	}
	if cfg.HoldTTL, err = seconds("HOLD_TTL_SECONDS", 120); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = seconds("SWEEP_INTERVAL_SECONDS", 30); err != nil {
		return Config{}, err
	}

	if cfg.CookieHashKey, err = cookieKey("COOKIE_HASH_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.CookieBlockKey, err = cookieKey("COOKIE_BLOCK_KEY"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// cookieKey decodes a base64 cookie key from the environment. Absent keys
// return nil; the session manager then generates ephemeral ones, which is
// fine for single-instance deployments.
func cookieKey(name string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

func seconds(name string, def int) (time.Duration, error) {
	v := getenv(name, strconv.Itoa(def))
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return time.Duration(n) * time.Second, nil
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
