package models

import "time"

// ReservationStatus represents the status of a table reservation
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// TimeSlot is a half-open booking window [Start, End).
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the slot has a positive duration.
func (s TimeSlot) Valid() bool {
	return s.End.After(s.Start)
}

// Overlaps reports whether two slots share any time.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

// Reservation is a table allocation in the ERP. No two confirmed
// reservations may overlap on the same table; the hold/confirm protocol in
// the booking orchestrator enforces this.
type Reservation struct {
	ID            int64             `json:"id"`
	TableID       int64             `json:"table_id"`
	FloorID       int64             `json:"floor_id"`
	PartySize     int               `json:"party_size"`
	Slot          TimeSlot          `json:"slot"`
	CustomerRef   string            `json:"customer_ref,omitempty"`
	Status        ReservationStatus `json:"status"`
	HoldExpiresAt time.Time         `json:"hold_expires_at,omitempty"`
}

// Blocking reports whether the reservation makes its table unavailable at
// instant now: confirmed always blocks, a hold blocks until it expires.
func (r Reservation) Blocking(now time.Time) bool {
	switch r.Status {
	case ReservationConfirmed:
		return true
	case ReservationHeld:
		return r.HoldExpiresAt.After(now)
	default:
		return false
	}
}
