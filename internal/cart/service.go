// Package cart owns the cart lifecycle between first add and checkout:
// created on first add, mutated by add/update/remove, destroyed on
// successful checkout or expiry. Prices are always snapshotted from the
// live catalog; a client-supplied price is never trusted.
package cart

import (
	"context"
	"fmt"

	"restaurant-storefront/internal/catalog"
	"restaurant-storefront/internal/logger"
	"restaurant-storefront/internal/models"
	"restaurant-storefront/internal/validation"
)

const maxLineQuantity = 50

// Service validates cart mutations against the catalog and applies them to
// the session's stored cart.
type Service struct {
	store   Store
	catalog *catalog.Reader
	log     *logger.Logger
}

func NewService(store Store, reader *catalog.Reader, log *logger.Logger) *Service {
	return &Service{store: store, catalog: reader, log: log}
}

// Get returns the current cart for the session.
func (s *Service) Get(ctx context.Context, sessionID string) (models.Cart, error) {
	return s.store.Get(ctx, sessionID)
}

// AddItem appends qty of productID to the session cart, merging into an
// existing line. The unit price snapshot is recomputed from the current
// catalog price on every add.
func (s *Service) AddItem(ctx context.Context, sessionID string, productID int64, qty int) (models.Cart, error) {
	if err := validateQuantity(qty); err != nil {
		return models.Cart{}, err
	}

	product, err := s.lookupProduct(ctx, productID)
	if err != nil {
		return models.Cart{}, err
	}

	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return models.Cart{}, err
	}

	merged := false
	for i, line := range c.Lines {
		if line.ProductID == productID {
			c.Lines[i].Quantity += qty
			c.Lines[i].UnitPrice = product.Price
			c.Lines[i].Name = product.Name
			merged = true
			break
		}
	}
	if !merged {
		c.Lines = append(c.Lines, models.CartLine{
			ProductID: productID,
			Name:      product.Name,
			Quantity:  qty,
			UnitPrice: product.Price,
		})
	}

	if err := s.store.Put(ctx, c); err != nil {
		return models.Cart{}, fmt.Errorf("failed to save cart: %w", err)
	}
	return c, nil
}

// UpdateItem sets the quantity of an existing line and refreshes its price
// snapshot.
func (s *Service) UpdateItem(ctx context.Context, sessionID string, productID int64, qty int) (models.Cart, error) {
	if err := validateQuantity(qty); err != nil {
		return models.Cart{}, err
	}

	product, err := s.lookupProduct(ctx, productID)
	if err != nil {
		return models.Cart{}, err
	}

	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return models.Cart{}, err
	}

	found := false
	for i, line := range c.Lines {
		if line.ProductID == productID {
			c.Lines[i].Quantity = qty
			c.Lines[i].UnitPrice = product.Price
			found = true
			break
		}
	}
	if !found {
		return models.Cart{}, validation.Errorf("product_id", "product %d is not in the cart", productID)
	}

	if err := s.store.Put(ctx, c); err != nil {
		return models.Cart{}, fmt.Errorf("failed to save cart: %w", err)
	}
	return c, nil
}

// RemoveItem deletes the line for productID.
func (s *Service) RemoveItem(ctx context.Context, sessionID string, productID int64) (models.Cart, error) {
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return models.Cart{}, err
	}

	kept := c.Lines[:0]
	removed := false
	for _, line := range c.Lines {
		if line.ProductID == productID {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return models.Cart{}, validation.Errorf("product_id", "product %d is not in the cart", productID)
	}
	c.Lines = kept

	if err := s.store.Put(ctx, c); err != nil {
		return models.Cart{}, fmt.Errorf("failed to save cart: %w", err)
	}
	return c, nil
}

// Clear drops the session cart entirely.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}

func (s *Service) lookupProduct(ctx context.Context, productID int64) (models.Product, error) {
	product, ok, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return models.Product{}, err
	}
	if !ok {
		return models.Product{}, validation.Errorf("product_id", "product %d does not exist", productID)
	}
	if !product.Available {
		return models.Product{}, validation.Errorf("product_id", "product %q is not available", product.Name)
	}
	return product, nil
}

func validateQuantity(qty int) error {
	if qty < 1 {
		return validation.Errorf("quantity", "quantity must be at least 1")
	}
	if qty > maxLineQuantity {
		return validation.Errorf("quantity", "quantity must be at most %d", maxLineQuantity)
	}
	return nil
}
