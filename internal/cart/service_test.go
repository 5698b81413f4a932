package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"restaurant-storefront/internal/catalog"
	"restaurant-storefront/internal/erp/erptest"
	"restaurant-storefront/internal/logger"
	"restaurant-storefront/internal/models"
	"restaurant-storefront/internal/validation"
)

const session = "sess_test"

func newTestService(fake *erptest.Fake) *Service {
	log := logger.New("test")
	return NewService(NewMemoryStore(time.Hour), catalog.NewReader(fake, log), log)
}

func seedCatalog(fake *erptest.Fake) {
	fake.Seed("product.product", map[string]interface{}{
		"id": 1, "name": "Margherita", "price": 10.0, "available": true,
	})
	fake.Seed("product.product", map[string]interface{}{
		"id": 2, "name": "Calzone", "price": 12.5, "available": true,
	})
	fake.Seed("product.product", map[string]interface{}{
		"id": 3, "name": "Off Menu", "price": 5.0, "available": false,
	})
}

func TestAddItemSnapshotsCatalogPrice(t *testing.T) {
	fake := erptest.New()
	seedCatalog(fake)
	svc := newTestService(fake)
	ctx := context.Background()

	c, err := svc.AddItem(ctx, session, 1, 2)
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	line, ok := c.Line(1)
	if !ok {
		t.Fatal("line missing after add")
	}
	if line.Quantity != 2 {
		t.Errorf("quantity = %d, want 2", line.Quantity)
	}
	if line.UnitPrice != 10.0 {
		t.Errorf("unit price = %v, want catalog price 10.0", line.UnitPrice)
	}

	got, err := svc.Get(ctx, session)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Total() != 20.0 {
		t.Errorf("total = %v, want 20.0", got.Total())
	}
}

func TestAddItemMergesLinesAndRefreshesPrice(t *testing.T) {
	fake := erptest.New()
	seedCatalog(fake)
	svc := newTestService(fake)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, session, 1, 1); err != nil {
		t.Fatal(err)
	}

	// price changes in the ERP between the two adds
	fake.Write(ctx, "product.product", []int64{1}, map[string]interface{}{"price": 11.0})

	c, err := svc.AddItem(ctx, session, 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	if len(c.Lines) != 1 {
		t.Fatalf("got %d lines, want merged single line", len(c.Lines))
	}
	line := c.Lines[0]
	if line.Quantity != 3 {
		t.Errorf("quantity = %d, want 3", line.Quantity)
	}
	if line.UnitPrice != 11.0 {
		t.Errorf("unit price = %v, want refreshed 11.0", line.UnitPrice)
	}
}

func TestAddItemValidation(t *testing.T) {
	fake := erptest.New()
	seedCatalog(fake)
	svc := newTestService(fake)
	ctx := context.Background()

	tests := []struct {
		name      string
		productID int64
		qty       int
	}{
		{"zero quantity", 1, 0},
		{"negative quantity", 1, -2},
		{"excessive quantity", 1, 1000},
		{"unknown product", 99, 1},
		{"unavailable product", 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddItem(ctx, session, tt.productID, tt.qty)
			var vErr validation.ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("want ValidationError, got %v", err)
			}
		})
	}

	if c, _ := svc.Get(ctx, session); len(c.Lines) != 0 {
		t.Errorf("cart mutated by rejected adds: %+v", c.Lines)
	}
}

func TestUpdateAndRemoveItem(t *testing.T) {
	fake := erptest.New()
	seedCatalog(fake)
	svc := newTestService(fake)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, session, 1, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddItem(ctx, session, 2, 1); err != nil {
		t.Fatal(err)
	}

	c, err := svc.UpdateItem(ctx, session, 1, 5)
	if err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	if line, _ := c.Line(1); line.Quantity != 5 {
		t.Errorf("quantity = %d, want 5", line.Quantity)
	}

	c, err = svc.RemoveItem(ctx, session, 2)
	if err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	if _, ok := c.Line(2); ok {
		t.Error("line 2 still present after remove")
	}

	if _, err := svc.UpdateItem(ctx, session, 2, 1); err == nil {
		t.Error("updating a removed line should fail")
	}
	if _, err := svc.RemoveItem(ctx, session, 2); err == nil {
		t.Error("removing an absent line should fail")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	c, _ := store.Get(ctx, session)
	c.Lines = append(c.Lines, models.CartLine{ProductID: 1, Name: "Margherita", Quantity: 1, UnitPrice: 10})
	if err := store.Put(ctx, c); err != nil {
		t.Fatal(err)
	}

	current = current.Add(30 * time.Second)
	if got, _ := store.Get(ctx, session); len(got.Lines) != 1 {
		t.Fatal("cart should survive within TTL")
	}

	current = current.Add(2 * time.Minute)
	if got, _ := store.Get(ctx, session); len(got.Lines) != 0 {
		t.Error("cart should be empty after TTL")
	}
}
