// Package checkout turns a validated session cart into exactly one POS order
// in the ERP. The idempotency key makes the create safe against client
// retries: a duplicate-key rejection from the ERP is treated as proof the
// order already exists and resolves to it instead of failing.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restaurant-storefront/internal/cart"
	"restaurant-storefront/internal/catalog"
	"restaurant-storefront/internal/erp"
	"restaurant-storefront/internal/logger"
	"restaurant-storefront/internal/models"
	"restaurant-storefront/internal/payment"
	"restaurant-storefront/internal/validation"
)

// StaleCartItemError means a cart line no longer matches the catalog:
// the product vanished, became unavailable or changed price since it was
// added. The cart is left untouched so the caller can fix the line and
// retry.
type StaleCartItemError struct {
	ProductID int64
	Reason    string
}

func (e *StaleCartItemError) Error() string {
	return fmt.Sprintf("cart item %d is stale: %s", e.ProductID, e.Reason)
}

// Events is the outbound notification hook; nil disables publishing.
type Events interface {
	Publish(ctx context.Context, event interface{}) error
}

// Orchestrator owns the cart-to-order transition.
type Orchestrator struct {
	erp      erp.Caller
	carts    *cart.Service
	catalog  *catalog.Reader
	payments *payment.Resolver
	events   Events
	log      *logger.Logger
	now      func() time.Time
}

func NewOrchestrator(caller erp.Caller, carts *cart.Service, reader *catalog.Reader, payments *payment.Resolver, events Events, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		erp:      caller,
		carts:    carts,
		catalog:  reader,
		payments: payments,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

// Checkout re-validates the session cart against the live catalog, resolves
// the payment provider and issues one idempotent order-create call. Local
// cart state is cleared only after the ERP acknowledges the order.
// customerEmail is optional; when it matches a known ERP contact the order is
// linked to that partner record.
func (o *Orchestrator) Checkout(ctx context.Context, sessionID, providerCode, idempotencyKey, customerEmail string) (models.Order, error) {
	requestID := logger.RequestIDFrom(ctx)

	if idempotencyKey == "" {
		return models.Order{}, validation.Errorf("idempotency_key", "idempotency key is required")
	}

	c, err := o.carts.Get(ctx, sessionID)
	if err != nil {
		return models.Order{}, err
	}
	if len(c.Lines) == 0 {
		return models.Order{}, validation.Errorf("cart", "cart is empty")
	}

	if err := o.revalidate(ctx, c); err != nil {
		return models.Order{}, err
	}

	provider, err := o.payments.ResolveActiveProvider(ctx, providerCode)
	if err != nil {
		return models.Order{}, err
	}

	order := models.Order{
		Reference:  idempotencyKey,
		Lines:      c.Lines,
		Total:      c.Total(),
		ProviderID: provider.ID,
		Status:     models.OrderConfirmed,
	}

	values := orderValues(order)
	if partnerID := o.knownPartner(ctx, requestID, customerEmail); partnerID != 0 {
		values["partner_id"] = partnerID
	}

	orderID, err := o.erp.Create(ctx, "pos.order", values, idempotencyKey)
	if err != nil {
		var remote *erp.RemoteError
		if errors.As(err, &remote) && remote.IsDuplicateKey() {
			// A previous attempt with this key already committed. Resolve to
			// the existing order rather than surfacing an error.
			o.log.Info("checkout_replayed", requestID, "Duplicate idempotency key, returning existing order", map[string]interface{}{
				"reference": idempotencyKey,
			})
			return o.existingOrder(ctx, sessionID, idempotencyKey, c.Lines)
		}
		return models.Order{}, err
	}
	order.ID = orderID

	o.finish(ctx, requestID, sessionID, order)
	return order, nil
}

// revalidate checks every line against current catalog state. Price or
// availability drift since add time fails the checkout without touching the
// cart.
func (o *Orchestrator) revalidate(ctx context.Context, c models.Cart) error {
	ids := make([]int64, 0, len(c.Lines))
	for _, line := range c.Lines {
		ids = append(ids, line.ProductID)
	}

	products, err := o.catalog.ListProducts(ctx, catalog.ProductFilter{IDs: ids})
	if err != nil {
		return err
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, line := range c.Lines {
		product, ok := byID[line.ProductID]
		switch {
		case !ok:
			return &StaleCartItemError{ProductID: line.ProductID, Reason: "product no longer exists"}
		case !product.Available:
			return &StaleCartItemError{ProductID: line.ProductID, Reason: "product is no longer available"}
		case product.Price != line.UnitPrice:
			return &StaleCartItemError{ProductID: line.ProductID,
				Reason: fmt.Sprintf("price changed from %.2f to %.2f", line.UnitPrice, product.Price)}
		}
	}
	return nil
}

// knownPartner resolves the customer email against the ERP's contact
// records. Best-effort: an unknown or unresolvable email still checks out,
// just without the partner link.
func (o *Orchestrator) knownPartner(ctx context.Context, requestID, customerEmail string) int64 {
	if customerEmail == "" {
		return 0
	}
	customer, ok, err := o.catalog.FindCustomer(ctx, customerEmail)
	if err != nil {
		o.log.Debug("partner_lookup_failed", requestID, "Could not resolve customer email", map[string]interface{}{
			"error": err.Error(),
		})
		return 0
	}
	if !ok {
		return 0
	}
	return customer.ID
}

// existingOrder looks up the order a previous attempt created for the key.
func (o *Orchestrator) existingOrder(ctx context.Context, sessionID, idempotencyKey string, lines []models.CartLine) (models.Order, error) {
	records, err := o.erp.SearchRead(ctx, "pos.order",
		[]erp.Condition{{Field: "client_ref", Op: "=", Value: idempotencyKey}},
		[]string{"id", "client_ref", "amount_total", "provider_id", "state"}, 1)
	if err != nil {
		return models.Order{}, err
	}
	if len(records) == 0 {
		return models.Order{}, fmt.Errorf("order for key %q reported duplicate but was not found", idempotencyKey)
	}

	rec := records[0]
	order := models.Order{
		ID:         rec.Int64("id"),
		Reference:  rec.String("client_ref"),
		Lines:      lines,
		Total:      rec.Float("amount_total"),
		ProviderID: rec.Int64("provider_id"),
		Status:     models.OrderStatus(rec.String("state")),
	}
	if order.Status == "" {
		order.Status = models.OrderConfirmed
	}

	o.finish(ctx, logger.RequestIDFrom(ctx), sessionID, order)
	return order, nil
}

// finish clears the cart and publishes the confirmation. Both are
// best-effort: the order is already committed in the ERP.
func (o *Orchestrator) finish(ctx context.Context, requestID, sessionID string, order models.Order) {
	if err := o.carts.Clear(ctx, sessionID); err != nil {
		o.log.Error("cart_clear_failed", requestID, "Order created but cart not cleared", err, map[string]interface{}{
			"order_id": order.ID,
		})
	}

	if o.events == nil {
		return
	}
	event := models.OrderConfirmedEvent{
		OrderID:     order.ID,
		Reference:   order.Reference,
		Lines:       order.Lines,
		Total:       order.Total,
		ProviderID:  order.ProviderID,
		ConfirmedAt: o.now().UTC(),
	}
	if err := o.events.Publish(ctx, event); err != nil {
		o.log.Error("event_publish_failed", requestID, "Failed to publish order confirmation", err, map[string]interface{}{
			"order_id": order.ID,
		})
	}
}

// orderValues serializes the order into the ERP create payload. The
// idempotency key itself is attached by the RPC client.
func orderValues(order models.Order) map[string]interface{} {
	lines := make([]map[string]interface{}, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, map[string]interface{}{
			"product_id": l.ProductID,
			"qty":        l.Quantity,
			"price_unit": l.UnitPrice,
		})
	}
	return map[string]interface{}{
		"provider_id":  order.ProviderID,
		"amount_total": order.Total,
		"state":        string(order.Status),
		"lines":        lines,
	}
}
