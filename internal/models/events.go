package models

import "time"

// OrderConfirmedEvent is published for staff tooling when a checkout
// commits an order in the ERP. It carries no payment secrets.
type OrderConfirmedEvent struct {
	OrderID     int64      `json:"order_id"`
	Reference   string     `json:"reference"`
	Lines       []CartLine `json:"lines"`
	Total       float64    `json:"total"`
	ProviderID  int64      `json:"provider_id"`
	ConfirmedAt time.Time  `json:"confirmed_at"`
}

// ReservationEvent is published when a reservation is confirmed or a hold
// is released.
type ReservationEvent struct {
	ReservationID int64             `json:"reservation_id"`
	TableID       int64             `json:"table_id"`
	PartySize     int               `json:"party_size"`
	Slot          TimeSlot          `json:"slot"`
	Status        ReservationStatus `json:"status"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
