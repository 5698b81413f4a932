package erp

import (
	"fmt"
	"time"
)

// Methods this layer depends on per the ERP's object-model call interface.
const (
	MethodSearchRead = "search_read"
	MethodCreate     = "create"
	MethodWrite      = "write"
)

// RecordTimeLayout is the wire format the ERP uses for datetime fields.
const RecordTimeLayout = "2006-01-02 15:04:05"

// Condition is a single domain filter triple (field, operator, value).
type Condition struct {
	Field string
	Op    string
	Value interface{}
}

// Request describes one remote object-model call. It is built by the typed
// helpers on Client and validated against the allow-list before anything is
// sent; handler code never constructs model/method pairs from client input.
type Request struct {
	Model  string
	Method string
	Domain []Condition
	Fields []string
	Values map[string]interface{}
	IDs    []int64
	Limit  int

	// IdempotencyKey, when set on a create, is stored by the ERP under a
	// unique constraint and makes the call safe to retry.
	IdempotencyKey string
}

// allowedCalls is the explicit allow-list of (model, method) pairs this layer
// may issue. Anything else is rejected locally.
var allowedCalls = map[string]map[string]bool{
	"product.product":    {MethodSearchRead: true},
	"payment.provider":   {MethodSearchRead: true},
	"restaurant.floor":   {MethodSearchRead: true},
	"restaurant.table":   {MethodSearchRead: true},
	"res.partner":        {MethodSearchRead: true},
	"pos.order":          {MethodSearchRead: true, MethodCreate: true},
	"restaurant.booking": {MethodSearchRead: true, MethodCreate: true, MethodWrite: true},
}

func checkAllowed(model, method string) error {
	if allowedCalls[model][method] {
		return nil
	}
	return fmt.Errorf("call %s.%s is not allowed", model, method)
}

// Record is one row returned by a search_read call.
type Record map[string]interface{}

// Int64 reads an integer field; JSON numbers arrive as float64.
func (r Record) Int64(key string) int64 {
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// Float reads a numeric field.
func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// String reads a string field. The ERP encodes empty fields as boolean false.
func (r Record) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// Bool reads a boolean field.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Time parses a datetime field in the ERP wire layout. Zero time on absence
// or parse failure.
func (r Record) Time(key string) time.Time {
	s := r.String(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(RecordTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatTime renders t in the ERP wire layout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(RecordTimeLayout)
}
