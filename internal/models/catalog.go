package models

// Product is a sellable menu item owned by the ERP. The storefront reads it
// per request and never caches it across requests.
type Product struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Available bool    `json:"available"`
	Category  string  `json:"category,omitempty"`
}

// ProviderState represents the lifecycle state of a payment provider
type ProviderState string

const (
	ProviderEnabled  ProviderState = "enabled"
	ProviderTest     ProviderState = "test"
	ProviderDisabled ProviderState = "disabled"
)

// PaymentProvider is the full provider record as stored in the ERP.
// SecretKey and WebhookSecret must never cross the trust boundary; only
// PublicProvider views leave the integration layer.
type PaymentProvider struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Code           string        `json:"code"`
	State          ProviderState `json:"state"`
	PublishableKey string        `json:"publishable_key"`
	SecretKey      string        `json:"-"`
	WebhookSecret  string        `json:"-"`
}

// PublicProvider is the redacted provider view safe to serve to storefront
// clients.
type PublicProvider struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Code           string        `json:"code"`
	State          ProviderState `json:"state"`
	PublishableKey string        `json:"publishable_key"`
}

// Public strips the provider down to the fields that may be forwarded to
// untrusted callers.
func (p PaymentProvider) Public() PublicProvider {
	return PublicProvider{
		ID:             p.ID,
		Name:           p.Name,
		Code:           p.Code,
		State:          p.State,
		PublishableKey: p.PublishableKey,
	}
}

// Floor is a dining area read from the ERP.
type Floor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Table is a bookable table read from the ERP. The storefront never mutates
// tables; it only allocates them through reservation creation.
type Table struct {
	ID       int64  `json:"id"`
	FloorID  int64  `json:"floor_id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// Customer is a minimal reference to an ERP customer record, used to attach
// orders and reservations to a known contact.
type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
