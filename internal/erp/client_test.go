package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-storefront/internal/logger"
)

type rpcCall struct {
	Method string
	Params struct {
		Service string        `json:"service"`
		Method  string        `json:"method"`
		Args    []interface{} `json:"args"`
	} `json:"params"`
}

// fakeERP is a minimal JSON-RPC endpoint. handle is invoked for object
// calls; authentication always succeeds with uid 7.
type fakeERP struct {
	srv    *httptest.Server
	hits   atomic.Int64
	handle func(call rpcCall, w http.ResponseWriter)
}

func newFakeERP(t *testing.T, handle func(call rpcCall, w http.ResponseWriter)) *fakeERP {
	t.Helper()
	f := &fakeERP{handle: handle}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))

		if call.Params.Service == "common" {
			writeResult(w, 7)
			return
		}
		f.hits.Add(1)
		f.handle(call, w)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func writeResult(w http.ResponseWriter, result interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": result})
}

func writeRemoteError(w http.ResponseWriter, name, message, debug string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"error": map[string]interface{}{
			"code":    200,
			"message": "Odoo Server Error",
			"data": map[string]interface{}{
				"name":    name,
				"message": message,
				"debug":   debug,
			},
		},
	})
}

func testLogger() *logger.Logger {
	return logger.New("test")
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return New(Config{
		BaseURL:  baseURL,
		Database: "restaurant",
		Login:    "storefront",
		APIKey:   "sekrit-api-key",
		Timeout:  2 * time.Second,
	}, testLogger())
}

func TestSearchReadRoundTrip(t *testing.T) {
	erp := newFakeERP(t, func(call rpcCall, w http.ResponseWriter) {
		require.Len(t, call.Params.Args, 7)
		assert.Equal(t, "restaurant", call.Params.Args[0])
		assert.Equal(t, "product.product", call.Params.Args[3])
		assert.Equal(t, "search_read", call.Params.Args[4])
		writeResult(w, []map[string]interface{}{
			{"id": 1, "name": "Margherita", "price": 10.0, "available": true},
		})
	})

	client := testClient(t, erp.srv.URL)
	records, err := client.SearchRead(context.Background(), "product.product",
		[]Condition{{Field: "available", Op: "=", Value: true}},
		[]string{"id", "name", "price", "available"}, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].Int64("id"))
	assert.Equal(t, "Margherita", records[0].String("name"))
	assert.Equal(t, 10.0, records[0].Float("price"))
	assert.True(t, records[0].Bool("available"))
}

func TestAllowListRejectsLocally(t *testing.T) {
	erp := newFakeERP(t, func(call rpcCall, w http.ResponseWriter) {
		writeResult(w, []map[string]interface{}{})
	})
	client := testClient(t, erp.srv.URL)

	tests := []struct {
		name string
		call func() error
	}{
		{"unknown model", func() error {
			_, err := client.SearchRead(context.Background(), "ir.model", nil, []string{"id"}, 0)
			return err
		}},
		{"write on read-only model", func() error {
			return client.Write(context.Background(), "product.product", []int64{1}, map[string]interface{}{"price": 1.0})
		}},
		{"create on read-only model", func() error {
			_, err := client.Create(context.Background(), "payment.provider", map[string]interface{}{}, "")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.call())
		})
	}

	assert.Equal(t, int64(0), erp.hits.Load(), "disallowed calls must never reach the ERP")
}

func TestSearchReadRetriesTransient(t *testing.T) {
	erp := newFakeERP(t, nil)
	erp.handle = func(call rpcCall, w http.ResponseWriter) {
		if erp.hits.Load() < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeResult(w, []map[string]interface{}{{"id": 4}})
	}

	client := testClient(t, erp.srv.URL)
	records, err := client.SearchRead(context.Background(), "restaurant.table", nil, []string{"id"}, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(3), erp.hits.Load())
}

func TestSearchReadGivesUpAfterMaxAttempts(t *testing.T) {
	erp := newFakeERP(t, func(call rpcCall, w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := testClient(t, erp.srv.URL)
	_, err := client.SearchRead(context.Background(), "restaurant.table", nil, []string{"id"}, 0)

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, int64(3), erp.hits.Load())
}

func TestCreateWithoutKeyIsSingleAttempt(t *testing.T) {
	erp := newFakeERP(t, func(call rpcCall, w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := testClient(t, erp.srv.URL)
	_, err := client.Create(context.Background(), "restaurant.booking", map[string]interface{}{"table_id": 1}, "")

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, int64(1), erp.hits.Load(), "a keyless create must not be retried")
}

func TestCreateWithKeyIsRetriedAndTagged(t *testing.T) {
	var gotValues map[string]interface{}
	erp := newFakeERP(t, nil)
	erp.handle = func(call rpcCall, w http.ResponseWriter) {
		if erp.hits.Load() < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		args := call.Params.Args[5].([]interface{})
		gotValues = args[0].(map[string]interface{})
		writeResult(w, 42)
	}

	client := testClient(t, erp.srv.URL)
	id, err := client.Create(context.Background(), "pos.order", map[string]interface{}{"amount_total": 20.0}, "key-123")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(2), erp.hits.Load())
	assert.Equal(t, "key-123", gotValues["client_ref"])
}

func TestRemoteErrorIsSanitizedAndNotRetried(t *testing.T) {
	erp := newFakeERP(t, func(call rpcCall, w http.ResponseWriter) {
		writeRemoteError(w, "odoo.exceptions.ValidationError",
			"Invalid product", "Traceback (most recent call last): secret internals")
	})

	client := testClient(t, erp.srv.URL)
	_, err := client.SearchRead(context.Background(), "product.product", nil, []string{"id"}, 0)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "product.product", remote.Model)
	assert.Equal(t, "Invalid product", remote.Message)
	assert.NotContains(t, err.Error(), "Traceback")
	assert.NotContains(t, err.Error(), "sekrit-api-key")
	assert.Equal(t, int64(1), erp.hits.Load(), "remote rejections must not be retried")
}

func TestRemoteErrorDuplicateKeyDetection(t *testing.T) {
	tests := []struct {
		name    string
		err     RemoteError
		wantDup bool
	}{
		{"integrity error", RemoteError{Name: "psycopg2.errors.IntegrityError", Message: "x"}, true},
		{"duplicate key message", RemoteError{Message: "duplicate key value violates unique constraint"}, true},
		{"already exists", RemoteError{Message: "Order already exists"}, true},
		{"validation error", RemoteError{Name: "odoo.exceptions.ValidationError", Message: "bad value"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantDup, tt.err.IsDuplicateKey())
		})
	}
}

func TestTransientErrorOnUnreachableERP(t *testing.T) {
	client := testClient(t, "http://127.0.0.1:1")
	err := client.Ping(context.Background())

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
}

func TestFormatAndParseRecordTime(t *testing.T) {
	at := time.Date(2025, 6, 1, 19, 30, 0, 0, time.UTC)
	formatted := FormatTime(at)
	assert.Equal(t, "2025-06-01 19:30:00", formatted)

	rec := Record{"start": formatted}
	assert.True(t, rec.Time("start").Equal(at))
	assert.True(t, rec.Time("missing").IsZero())
}
