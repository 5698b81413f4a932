package models

import "time"

// CartLine is a single product entry in a cart. UnitPrice is the catalog
// price snapshotted when the line was added or last updated; checkout
// re-validates it against the live catalog.
type CartLine struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Subtotal returns the line amount.
func (l CartLine) Subtotal() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// Cart is the ordered set of lines owned by one storefront session. Carts are
// externally owned state keyed by session id; the orchestration layer holds no
// cart in process memory beyond a single operation.
type Cart struct {
	SessionID string     `json:"session_id"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Total returns the sum of all line subtotals.
func (c Cart) Total() float64 {
	var total float64
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

// Line returns the line for productID and whether it exists.
func (c Cart) Line(productID int64) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}
