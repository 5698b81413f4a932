// Package erptest provides an in-memory fake of the ERP caller interface
// for orchestrator tests. It stores records per model, evaluates domain
// filters, applies field projection and enforces the unique client_ref
// constraint on pos.order the way the real ERP does.
package erptest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"restaurant-storefront/internal/erp"
)

type Fake struct {
	mu     sync.Mutex
	nextID int64
	data   map[string][]erp.Record

	// FailNext maps "model.method" to an error returned (and cleared) on the
	// next matching call, for failure-path tests.
	failNext map[string]error
	// failCount makes FailNTimes return the error N times before succeeding.
	failCount map[string]int

	// LastFields records the projection of the most recent search_read per
	// model, so tests can assert which fields were requested.
	LastFields map[string][]string

	// Calls is the sequence of "model.method" operations issued.
	Calls []string
}

func New() *Fake {
	return &Fake{
		data:       make(map[string][]erp.Record),
		failNext:   make(map[string]error),
		failCount:  make(map[string]int),
		LastFields: make(map[string][]string),
	}
}

// Seed inserts a record and returns its id. An explicit "id" in values is
// respected; otherwise one is assigned.
func (f *Fake) Seed(model string, values map[string]interface{}) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(model, values)
}

// FailNextCall makes the next model.method call return err.
func (f *Fake) FailNextCall(model, method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[model+"."+method] = err
}

// FailNTimes makes the next n model.method calls return err, then succeed.
func (f *Fake) FailNTimes(model, method string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[model+"."+method] = err
	f.failCount[model+"."+method] = n
}

// All returns a copy of every record stored for model.
func (f *Fake) All(model string) []erp.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]erp.Record, 0, len(f.data[model]))
	for _, rec := range f.data[model] {
		out = append(out, copyRecord(rec, nil))
	}
	return out
}

// CallCount returns how many times model.method was invoked.
func (f *Fake) CallCount(model, method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == model+"."+method {
			n++
		}
	}
	return n
}

func (f *Fake) SearchRead(_ context.Context, model string, domain []erp.Condition, fields []string, limit int) ([]erp.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure(model, erp.MethodSearchRead); err != nil {
		return nil, err
	}
	f.LastFields[model] = append([]string(nil), fields...)

	var out []erp.Record
	for _, rec := range f.data[model] {
		if matchesDomain(rec, domain) {
			out = append(out, copyRecord(rec, fields))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *Fake) Create(_ context.Context, model string, values map[string]interface{}, idempotencyKey string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure(model, erp.MethodCreate); err != nil {
		return 0, err
	}

	if idempotencyKey != "" {
		values["client_ref"] = idempotencyKey
	}

	// pos.order carries a unique constraint on client_ref.
	if model == "pos.order" {
		if ref, ok := values["client_ref"].(string); ok && ref != "" {
			for _, rec := range f.data[model] {
				if rec.String("client_ref") == ref {
					return 0, &erp.RemoteError{
						Model:   model,
						Method:  erp.MethodCreate,
						Name:    "psycopg2.errors.IntegrityError",
						Message: "duplicate key value violates unique constraint",
					}
				}
			}
		}
	}

	return f.insert(model, values), nil
}

func (f *Fake) Write(_ context.Context, model string, ids []int64, values map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure(model, erp.MethodWrite); err != nil {
		return err
	}

	for _, rec := range f.data[model] {
		for _, id := range ids {
			if rec.Int64("id") == id {
				for k, v := range values {
					rec[k] = v
				}
			}
		}
	}
	return nil
}

func (f *Fake) Ping(context.Context) error {
	return nil
}

func (f *Fake) insert(model string, values map[string]interface{}) int64 {
	rec := erp.Record{}
	for k, v := range values {
		rec[k] = v
	}
	id := rec.Int64("id")
	if id == 0 {
		f.nextID++
		id = f.nextID
		rec["id"] = id
	} else if id > f.nextID {
		f.nextID = id
	}
	f.data[model] = append(f.data[model], rec)
	return id
}

func (f *Fake) takeFailure(model, method string) error {
	key := model + "." + method
	f.Calls = append(f.Calls, key)
	err, ok := f.failNext[key]
	if !ok {
		return nil
	}
	if n := f.failCount[key]; n > 1 {
		f.failCount[key] = n - 1
	} else {
		delete(f.failNext, key)
		delete(f.failCount, key)
	}
	return err
}

func matchesDomain(rec erp.Record, domain []erp.Condition) bool {
	for _, cond := range domain {
		if !matches(rec, cond) {
			return false
		}
	}
	return true
}

func matches(rec erp.Record, cond erp.Condition) bool {
	got := rec[cond.Field]
	switch cond.Op {
	case "=":
		return equal(got, cond.Value)
	case "!=":
		return !equal(got, cond.Value)
	case "in":
		for _, v := range anySlice(cond.Value) {
			if equal(got, v) {
				return true
			}
		}
		return false
	case ">=":
		return compare(got, cond.Value) >= 0
	case ">":
		return compare(got, cond.Value) > 0
	case "<=":
		return compare(got, cond.Value) <= 0
	case "<":
		return compare(got, cond.Value) < 0
	default:
		return false
	}
}

func anySlice(v interface{}) []interface{} {
	switch s := v.(type) {
	case []interface{}:
		return s
	case []string:
		out := make([]interface{}, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	case []int64:
		out := make([]interface{}, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	default:
		return []interface{}{v}
	}
}

func equal(a, b interface{}) bool {
	if na, aok := asFloat(a); aok {
		if nb, bok := asFloat(b); bok {
			return na == nb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compare(a, b interface{}) int {
	if na, aok := asFloat(a); aok {
		if nb, bok := asFloat(b); bok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}
	// datetime strings in the wire layout compare correctly as strings
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func copyRecord(rec erp.Record, fields []string) erp.Record {
	out := erp.Record{}
	if len(fields) == 0 {
		for k, v := range rec {
			out[k] = v
		}
		return out
	}
	for _, k := range fields {
		if v, ok := rec[k]; ok {
			out[k] = v
		}
	}
	return out
}
