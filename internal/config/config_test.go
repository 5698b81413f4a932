package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ERP_BASE_URL", "http://erp.local:8069")
	t.Setenv("ERP_DATABASE", "restaurant")
	t.Setenv("ERP_LOGIN", "storefront")
	t.Setenv("ERP_API_KEY", "k3y")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if !cfg.Production() {
		t.Errorf("expected production environment by default")
	}
	if cfg.HoldTTL != 2*time.Minute {
		t.Errorf("HoldTTL = %v, want 2m", cfg.HoldTTL)
	}
	if cfg.ERP.Timeout != 5*time.Second {
		t.Errorf("ERP.Timeout = %v, want 5s", cfg.ERP.Timeout)
	}
}

func TestFromEnvMissingERP(t *testing.T) {
	tests := []struct {
		name string
		omit string
	}{
		{"missing base url", "ERP_BASE_URL"},
		{"missing database", "ERP_DATABASE"},
		{"missing login", "ERP_LOGIN"},
		{"missing api key", "ERP_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.omit, "")

			if _, err := FromEnv(); err == nil {
				t.Errorf("FromEnv() expected error with %s unset", tt.omit)
			}
		})
	}
}

func TestFromEnvInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad environment", "ENVIRONMENT", "staging"},
		{"bad hold ttl", "HOLD_TTL_SECONDS", "soon"},
		{"zero hold ttl", "HOLD_TTL_SECONDS", "0"},
		{"bad cookie key", "COOKIE_HASH_KEY", "%%%not-base64%%%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			if _, err := FromEnv(); err == nil {
				t.Errorf("FromEnv() expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestFromEnvTrimsBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("ERP_BASE_URL", "http://erp.local:8069/")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.ERP.BaseURL != "http://erp.local:8069" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.ERP.BaseURL)
	}
}
