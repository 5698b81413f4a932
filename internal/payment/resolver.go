// Package payment selects the active payment provider for checkout. It is
// the only component allowed to fetch full provider records; everything it
// returns is stripped to the public view before leaving.
package payment

import (
	"context"
	"fmt"

	"restaurant-storefront/internal/erp"
	"restaurant-storefront/internal/logger"
	"restaurant-storefront/internal/models"
	"restaurant-storefront/internal/validation"
)

// fullProviderFields includes the secret columns. This projection exists
// only here.
var fullProviderFields = []string{"id", "name", "code", "state", "publishable_key", "secret_key", "webhook_secret"}

// ProviderUnavailableError means no matching enabled provider exists.
// Checkout cannot proceed, but this is a user-visible recoverable condition,
// not a system fault.
type ProviderUnavailableError struct {
	Code string
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("payment provider %q is not available", e.Code)
}

// Resolver validates and redacts payment providers.
type Resolver struct {
	erp        erp.Caller
	production bool
	log        *logger.Logger
}

// NewResolver creates a resolver. In production only enabled providers
// resolve; otherwise test-state providers are accepted too.
func NewResolver(caller erp.Caller, production bool, log *logger.Logger) *Resolver {
	return &Resolver{erp: caller, production: production, log: log}
}

// ResolveActiveProvider returns the public view of the provider for code.
// The full record, secrets included, never leaves this function.
func (r *Resolver) ResolveActiveProvider(ctx context.Context, code string) (models.PublicProvider, error) {
	if code == "" {
		return models.PublicProvider{}, validation.Errorf("provider_code", "provider code is required")
	}

	records, err := r.erp.SearchRead(ctx, "payment.provider",
		[]erp.Condition{{Field: "code", Op: "=", Value: code}}, fullProviderFields, 0)
	if err != nil {
		return models.PublicProvider{}, fmt.Errorf("payment providers: %w", err)
	}

	for _, rec := range records {
		provider := models.PaymentProvider{
			ID:             rec.Int64("id"),
			Name:           rec.String("name"),
			Code:           rec.String("code"),
			State:          models.ProviderState(rec.String("state")),
			PublishableKey: rec.String("publishable_key"),
			SecretKey:      rec.String("secret_key"),
			WebhookSecret:  rec.String("webhook_secret"),
		}
		if r.usable(provider.State) {
			return provider.Public(), nil
		}
	}

	return models.PublicProvider{}, &ProviderUnavailableError{Code: code}
}

func (r *Resolver) usable(state models.ProviderState) bool {
	if state == models.ProviderEnabled {
		return true
	}
	return state == models.ProviderTest && !r.production
}
