package models

// OrderStatus represents the status of a POS order
type OrderStatus string

const (
	OrderDraft          OrderStatus = "draft"
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderFailed         OrderStatus = "failed"
)

// Order is a POS order created in the ERP from a checked-out cart. Exactly
// one order exists per idempotency key regardless of client retries.
type Order struct {
	ID         int64       `json:"id"`
	Reference  string      `json:"reference"`
	Lines      []CartLine  `json:"lines"`
	Total      float64     `json:"total"`
	ProviderID int64       `json:"provider_id"`
	Status     OrderStatus `json:"status"`
}
