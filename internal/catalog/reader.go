// Package catalog provides read-only access to ERP reference data: products,
// payment providers, floors, tables and customers. Every query runs through a
// per-entity field projection so secret material is never even fetched on
// behalf of a public caller.
package catalog

import (
	"context"
	"fmt"

	"restaurant-storefront/internal/erp"
	"restaurant-storefront/internal/logger"
	"restaurant-storefront/internal/models"
)

// Field projections per entity type. The provider projection deliberately
// omits secret_key and webhook_secret; only the payment resolver fetches
// those, through its own dedicated call.
var (
	productFields  = []string{"id", "name", "price", "available", "category"}
	providerFields = []string{"id", "name", "code", "state", "publishable_key"}
	floorFields    = []string{"id", "name"}
	tableFields    = []string{"id", "floor_id", "name", "capacity"}
	customerFields = []string{"id", "name", "email"}
)

// Reader answers reference queries against the ERP. It is pure read: no call
// it makes mutates remote state.
type Reader struct {
	erp erp.Caller
	log *logger.Logger
}

func NewReader(caller erp.Caller, log *logger.Logger) *Reader {
	return &Reader{erp: caller, log: log}
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	Category      string
	AvailableOnly bool
	IDs           []int64
}

// ListProducts returns products matching filter.
func (r *Reader) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	var domain []erp.Condition
	if filter.Category != "" {
		domain = append(domain, erp.Condition{Field: "category", Op: "=", Value: filter.Category})
	}
	if filter.AvailableOnly {
		domain = append(domain, erp.Condition{Field: "available", Op: "=", Value: true})
	}
	if len(filter.IDs) > 0 {
		domain = append(domain, erp.Condition{Field: "id", Op: "in", Value: filter.IDs})
	}

	records, err := r.erp.SearchRead(ctx, "product.product", domain, productFields, 0)
	if err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}

	products := make([]models.Product, 0, len(records))
	for _, rec := range records {
		products = append(products, productFromRecord(rec))
	}
	return products, nil
}

// GetProduct looks up a single product by id. The second return value is
// false when no such product exists.
func (r *Reader) GetProduct(ctx context.Context, id int64) (models.Product, bool, error) {
	records, err := r.erp.SearchRead(ctx, "product.product",
		[]erp.Condition{{Field: "id", Op: "=", Value: id}}, productFields, 1)
	if err != nil {
		return models.Product{}, false, fmt.Errorf("products: %w", err)
	}
	if len(records) == 0 {
		return models.Product{}, false, nil
	}
	return productFromRecord(records[0]), true, nil
}

// ListPaymentProviders returns redacted provider views, optionally filtered
// by processor code. Secret fields are excluded from the projection, so they
// never travel over the wire for this call at all.
func (r *Reader) ListPaymentProviders(ctx context.Context, code string) ([]models.PublicProvider, error) {
	var domain []erp.Condition
	if code != "" {
		domain = append(domain, erp.Condition{Field: "code", Op: "=", Value: code})
	}

	records, err := r.erp.SearchRead(ctx, "payment.provider", domain, providerFields, 0)
	if err != nil {
		return nil, fmt.Errorf("payment providers: %w", err)
	}

	providers := make([]models.PublicProvider, 0, len(records))
	for _, rec := range records {
		providers = append(providers, models.PublicProvider{
			ID:             rec.Int64("id"),
			Name:           rec.String("name"),
			Code:           rec.String("code"),
			State:          models.ProviderState(rec.String("state")),
			PublishableKey: rec.String("publishable_key"),
		})
	}
	return providers, nil
}

// ListFloors returns all dining floors.
func (r *Reader) ListFloors(ctx context.Context) ([]models.Floor, error) {
	records, err := r.erp.SearchRead(ctx, "restaurant.floor", nil, floorFields, 0)
	if err != nil {
		return nil, fmt.Errorf("floors: %w", err)
	}

	floors := make([]models.Floor, 0, len(records))
	for _, rec := range records {
		floors = append(floors, models.Floor{
			ID:   rec.Int64("id"),
			Name: rec.String("name"),
		})
	}
	return floors, nil
}

// ListTables returns tables, optionally restricted to one floor.
func (r *Reader) ListTables(ctx context.Context, floorID int64) ([]models.Table, error) {
	var domain []erp.Condition
	if floorID > 0 {
		domain = append(domain, erp.Condition{Field: "floor_id", Op: "=", Value: floorID})
	}

	records, err := r.erp.SearchRead(ctx, "restaurant.table", domain, tableFields, 0)
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

// GetTable looks up a single table by id. False when no such table exists.
func (r *Reader) GetTable(ctx context.Context, id int64) (models.Table, bool, error) {
	records, err := r.erp.SearchRead(ctx, "restaurant.table",
		[]erp.Condition{{Field: "id", Op: "=", Value: id}}, tableFields, 1)
	if err != nil {
		return models.Table{}, false, fmt.Errorf("tables: %w", err)
	}
	if len(records) == 0 {
		return models.Table{}, false, nil
	}
	rec := records[0]
	return models.Table{
		ID:       rec.Int64("id"),
		FloorID:  rec.Int64("floor_id"),
		Name:     rec.String("name"),
		Capacity: int(rec.Int64("capacity")),
	}, true, nil
}

// FindCustomer looks up a customer by email. False when unknown.
func (r *Reader) FindCustomer(ctx context.Context, email string) (models.Customer, bool, error) {
	records, err := r.erp.SearchRead(ctx, "res.partner",
		[]erp.Condition{{Field: "email", Op: "=", Value: email}}, customerFields, 1)
	if err != nil {
		return models.Customer{}, false, fmt.Errorf("customers: %w", err)
	}
	if len(records) == 0 {
		return models.Customer{}, false, nil
	}
	rec := records[0]
	return models.Customer{
		ID:    rec.Int64("id"),
		Name:  rec.String("name"),
		Email: rec.String("email"),
	}, true, nil
}

func productFromRecord(rec erp.Record) models.Product {
	return models.Product{
		ID:        rec.Int64("id"),
		Name:      rec.String("name"),
		Price:     rec.Float("price"),
		Available: rec.Bool("available"),
		Category:  rec.String("category"),
	}
}
