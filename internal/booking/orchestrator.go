// Package booking resolves table availability and creates reservations in
// the ERP. Reserve is two-phase: a short-lived hold is written first, then
// confirmed only if no competing reservation claimed the slot in between.
// Double allocation is prevented by the ERP's write serialization plus the
// hold-then-confirm protocol, not by in-process locking.
package booking

import (
	"context"
	"fmt"
	"time"

	"restaurant-storefront/internal/catalog"
	"restaurant-storefront/internal/erp"
	"restaurant-storefront/internal/logger"
	"restaurant-storefront/internal/models"
	"restaurant-storefront/internal/validation"
)

const bookingModel = "restaurant.booking"

var reservationFields = []string{"id", "table_id", "floor_id", "party_size", "start", "stop", "customer_ref", "state", "hold_expires_at"}

// SlotConflictError means another reservation claimed the table between the
// availability check and the confirm step. The caller must re-query
// availability and pick again; the conflict is never resolved silently.
type SlotConflictError struct {
	TableID int64
	Slot    models.TimeSlot
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("table %d is no longer free for the requested slot", e.TableID)
}

// Events is the outbound notification hook; nil disables publishing.
type Events interface {
	Publish(ctx context.Context, event interface{}) error
}

// Orchestrator owns reservation availability and creation.
type Orchestrator struct {
	erp     erp.Caller
	catalog *catalog.Reader
	events  Events
	holdTTL time.Duration
	log     *logger.Logger
	now     func() time.Time
}

func NewOrchestrator(caller erp.Caller, reader *catalog.Reader, events Events, holdTTL time.Duration, log *logger.Logger) *Orchestrator {
	if holdTTL <= 0 {
		holdTTL = 2 * time.Minute
	}
	return &Orchestrator{
		erp:     caller,
		catalog: reader,
		events:  events,
		holdTTL: holdTTL,
		log:     log,
		now:     time.Now,
	}
}

// CheckAvailability returns tables with capacity for partySize and no
// confirmed or unexpired held reservation overlapping slot. Expired holds
// are excluded here directly, so availability never depends on how promptly
// the sweeper runs.
func (o *Orchestrator) CheckAvailability(ctx context.Context, partySize int, slot models.TimeSlot) ([]models.Table, error) {
	if err := validateRequest(partySize, slot); err != nil {
		return nil, err
	}

	tables, err := o.fittingTables(ctx, partySize)
	if err != nil {
		return nil, err
	}

	overlapping, err := o.overlapping(ctx, 0, slot)
	if err != nil {
		return nil, err
	}

	now := o.now()
	blocked := make(map[int64]bool)
	for _, r := range overlapping {
		if r.Blocking(now) {
			blocked[r.TableID] = true
		}
	}

	free := make([]models.Table, 0, len(tables))
	for _, t := range tables {
		if !blocked[t.ID] {
			free = append(free, t)
		}
	}
	return free, nil
}

// Reserve allocates tableID for slot. Phase one writes a held reservation
// expiring after the hold TTL; phase two re-checks for competitors and
// confirms. A competing reservation that is confirmed, or was held before
// ours, wins: our hold is released and SlotConflictError returned.
func (o *Orchestrator) Reserve(ctx context.Context, tableID int64, slot models.TimeSlot, partySize int, customerRef string) (models.Reservation, error) {
	requestID := logger.RequestIDFrom(ctx)

	if err := validateRequest(partySize, slot); err != nil {
		return models.Reservation{}, err
	}

	table, ok, err := o.catalog.GetTable(ctx, tableID)
	if err != nil {
		return models.Reservation{}, err
	}
	if !ok {
		return models.Reservation{}, validation.Errorf("table_id", "table %d does not exist", tableID)
	}
	if table.Capacity < partySize {
		return models.Reservation{}, validation.Errorf("party_size", "party of %d exceeds table capacity %d", partySize, table.Capacity)
	}

	reservation := models.Reservation{
		TableID:       tableID,
		FloorID:       table.FloorID,
		PartySize:     partySize,
		Slot:          slot,
		CustomerRef:   customerRef,
		Status:        models.ReservationHeld,
		HoldExpiresAt: o.now().Add(o.holdTTL),
	}

	values := reservationValues(reservation)
	if partnerID := o.knownPartner(ctx, requestID, customerRef); partnerID != 0 {
		values["partner_id"] = partnerID
	}

	holdID, err := o.erp.Create(ctx, bookingModel, values, "")
	if err != nil {
		return models.Reservation{}, err
	}
	reservation.ID = holdID

	winner, err := o.competingWinner(ctx, reservation)
	if err != nil {
		o.release(ctx, requestID, holdID)
		return models.Reservation{}, err
	}
	if winner {
		o.release(ctx, requestID, holdID)
		return models.Reservation{}, &SlotConflictError{TableID: tableID, Slot: slot}
	}

	if err := o.erp.Write(ctx, bookingModel, []int64{holdID}, map[string]interface{}{"state": string(models.ReservationConfirmed)}); err != nil {
		o.release(ctx, requestID, holdID)
		return models.Reservation{}, err
	}
	reservation.Status = models.ReservationConfirmed

	o.publish(ctx, requestID, reservation)
	return reservation, nil
}

// competingWinner reports whether another blocking reservation beats ours.
// The ERP assigns record ids in write order, so among concurrent holds the
// earlier id wins; confirmed reservations always win.
func (o *Orchestrator) competingWinner(ctx context.Context, own models.Reservation) (bool, error) {
	overlapping, err := o.overlapping(ctx, own.TableID, own.Slot)
	if err != nil {
		return false, err
	}

	now := o.now()
	for _, r := range overlapping {
		if r.ID == own.ID || !r.Blocking(now) {
			continue
		}
		if r.Status == models.ReservationConfirmed || r.ID < own.ID {
			return true, nil
		}
	}
	return false, nil
}

// ReleaseExpiredHolds cancels held reservations whose window has passed.
// This is the cancellation mechanism for abandoned bookings; the sweeper
// calls it periodically.
func (o *Orchestrator) ReleaseExpiredHolds(ctx context.Context) (int, error) {
	records, err := o.erp.SearchRead(ctx, bookingModel, []erp.Condition{
		{Field: "state", Op: "=", Value: string(models.ReservationHeld)},
		{Field: "hold_expires_at", Op: "<=", Value: erp.FormatTime(o.now())},
	}, []string{"id"}, 0)
	if err != nil {
		return 0, fmt.Errorf("expired holds: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.Int64("id"))
	}

	if err := o.erp.Write(ctx, bookingModel, ids, map[string]interface{}{"state": string(models.ReservationCancelled)}); err != nil {
		return 0, fmt.Errorf("expired holds: %w", err)
	}
	return len(ids), nil
}

// overlapping reads held and confirmed reservations intersecting slot, for
// one table or all tables when tableID is zero.
func (o *Orchestrator) overlapping(ctx context.Context, tableID int64, slot models.TimeSlot) ([]models.Reservation, error) {
	domain := []erp.Condition{
		{Field: "state", Op: "in", Value: []string{string(models.ReservationHeld), string(models.ReservationConfirmed)}},
		{Field: "start", Op: "<", Value: erp.FormatTime(slot.End)},
		{Field: "stop", Op: ">", Value: erp.FormatTime(slot.Start)},
	}
	if tableID > 0 {
		domain = append(domain, erp.Condition{Field: "table_id", Op: "=", Value: tableID})
	}

	records, err := o.erp.SearchRead(ctx, bookingModel, domain, reservationFields, 0)
	if err != nil {
		return nil, fmt.Errorf("reservations: %w", err)
	}

	reservations := make([]models.Reservation, 0, len(records))
	for _, rec := range records {
		reservations = append(reservations, reservationFromRecord(rec))
	}
	return reservations, nil
}

func (o *Orchestrator) fittingTables(ctx context.Context, partySize int) ([]models.Table, error) {
	records, err := o.erp.SearchRead(ctx, "restaurant.table",
		[]erp.Condition{{Field: "capacity", Op: ">=", Value: partySize}},
		[]string{"id", "floor_id", "name", "capacity"}, 0)
	if err != nil {
		return nil, fmt.Errorf("tables: %w", err)
	}

	tables := make([]models.Table, 0, len(records))
	for _, rec := range records {
		tables = append(tables, models.Table{
			ID:       rec.Int64("id"),
			FloorID:  rec.Int64("floor_id"),
			Name:     rec.String("name"),
			Capacity: int(rec.Int64("capacity")),
		})
	}
	return tables, nil
}

// knownPartner resolves the customer reference against the ERP's contact
// records. Best-effort: an unknown or unresolvable reference still books,
// just without the partner link.
func (o *Orchestrator) knownPartner(ctx context.Context, requestID, customerRef string) int64 {
	if customerRef == "" {
		return 0
	}
	customer, ok, err := o.catalog.FindCustomer(ctx, customerRef)
	if err != nil {
		o.log.Debug("partner_lookup_failed", requestID, "Could not resolve customer reference", map[string]interface{}{
			"error": err.Error(),
		})
		return 0
	}
	if !ok {
		return 0
	}
	return customer.ID
}

// release cancels our own hold after a failed confirm. Best-effort: an
// unreleased hold still expires on its own.
func (o *Orchestrator) release(ctx context.Context, requestID string, holdID int64) {
	err := o.erp.Write(ctx, bookingModel, []int64{holdID}, map[string]interface{}{"state": string(models.ReservationCancelled)})
	if err != nil {
		o.log.Error("hold_release_failed", requestID, "Failed to release reservation hold", err, map[string]interface{}{
			"reservation_id": holdID,
		})
	}
}

func (o *Orchestrator) publish(ctx context.Context, requestID string, r models.Reservation) {
	if o.events == nil {
		return
	}
	event := models.ReservationEvent{
		ReservationID: r.ID,
		TableID:       r.TableID,
		PartySize:     r.PartySize,
		Slot:          r.Slot,
		Status:        r.Status,
		OccurredAt:    o.now().UTC(),
	}
	if err := o.events.Publish(ctx, event); err != nil {
		o.log.Error("event_publish_failed", requestID, "Failed to publish reservation event", err, map[string]interface{}{
			"reservation_id": r.ID,
		})
	}
}

func validateRequest(partySize int, slot models.TimeSlot) error {
	if partySize < 1 {
		return validation.Errorf("party_size", "party size must be at least 1")
	}
	if !slot.Valid() {
		return validation.Errorf("time_slot", "slot end must be after start")
	}
	return nil
}

func reservationValues(r models.Reservation) map[string]interface{} {
	return map[string]interface{}{
		"table_id":        r.TableID,
		"floor_id":        r.FloorID,
		"party_size":      r.PartySize,
		"start":           erp.FormatTime(r.Slot.Start),
		"stop":            erp.FormatTime(r.Slot.End),
		"customer_ref":    r.CustomerRef,
		"state":           string(r.Status),
		"hold_expires_at": erp.FormatTime(r.HoldExpiresAt),
	}
}

func reservationFromRecord(rec erp.Record) models.Reservation {
	return models.Reservation{
		ID:            rec.Int64("id"),
		TableID:       rec.Int64("table_id"),
		FloorID:       rec.Int64("floor_id"),
		PartySize:     int(rec.Int64("party_size")),
		Slot:          models.TimeSlot{Start: rec.Time("start"), End: rec.Time("stop")},
		CustomerRef:   rec.String("customer_ref"),
		Status:        models.ReservationStatus(rec.String("state")),
		HoldExpiresAt: rec.Time("hold_expires_at"),
	}
}
