package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"restaurant-storefront/internal/erp/erptest"
	"restaurant-storefront/internal/logger"
	"restaurant-storefront/internal/models"
	"restaurant-storefront/internal/validation"
)

func seedProvider(fake *erptest.Fake, code string, state models.ProviderState) {
	fake.Seed("payment.provider", map[string]interface{}{
		"name":            code,
		"code":            code,
		"state":           string(state),
		"publishable_key": "pk_" + code,
		"secret_key":      "sk_" + code,
		"webhook_secret":  "whsec_" + code,
	})
}

func TestResolveActiveProvider(t *testing.T) {
	tests := []struct {
		name       string
		state      models.ProviderState
		production bool
		wantErr    bool
	}{
		{"enabled in production", models.ProviderEnabled, true, false},
		{"enabled in test env", models.ProviderEnabled, false, false},
		{"test provider in production", models.ProviderTest, true, true},
		{"test provider in test env", models.ProviderTest, false, false},
		{"disabled in production", models.ProviderDisabled, true, true},
		{"disabled in test env", models.ProviderDisabled, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := erptest.New()
			seedProvider(fake, "stripe", tt.state)
			resolver := NewResolver(fake, tt.production, logger.New("test"))

			provider, err := resolver.ResolveActiveProvider(context.Background(), "stripe")
			if tt.wantErr {
				var unavailable *ProviderUnavailableError
				if !errors.As(err, &unavailable) {
					t.Fatalf("want ProviderUnavailableError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveActiveProvider() error = %v", err)
			}
			if provider.Code != "stripe" || provider.PublishableKey != "pk_stripe" {
				t.Errorf("unexpected provider: %+v", provider)
			}
		})
	}
}

func TestResolveUnknownCode(t *testing.T) {
	fake := erptest.New()
	seedProvider(fake, "stripe", models.ProviderEnabled)
	resolver := NewResolver(fake, true, logger.New("test"))

	_, err := resolver.ResolveActiveProvider(context.Background(), "adyen")
	var unavailable *ProviderUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("want ProviderUnavailableError, got %v", err)
	}
	if unavailable.Code != "adyen" {
		t.Errorf("error code = %q, want adyen", unavailable.Code)
	}
}

func TestResolveEmptyCodeIsValidationError(t *testing.T) {
	resolver := NewResolver(erptest.New(), true, logger.New("test"))

	_, err := resolver.ResolveActiveProvider(context.Background(), "")
	var vErr validation.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

// The resolved view must never carry secret material, regardless of
// provider state or how it is serialized later.
func TestResolvedProviderNeverLeaksSecrets(t *testing.T) {
	for _, state := range []models.ProviderState{models.ProviderEnabled, models.ProviderTest} {
		fake := erptest.New()
		seedProvider(fake, "stripe", state)
		resolver := NewResolver(fake, false, logger.New("test"))

		provider, err := resolver.ResolveActiveProvider(context.Background(), "stripe")
		if err != nil {
			t.Fatalf("ResolveActiveProvider() error = %v", err)
		}

		encoded, err := json.Marshal(provider)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body := string(encoded)
		if strings.Contains(body, "sk_stripe") || strings.Contains(body, "whsec_stripe") {
			t.Errorf("serialized provider leaks secrets: %s", body)
		}
	}
}
