package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"restaurant-storefront/internal/logger"
)

// Caller is the typed surface the orchestration layer uses to talk to the
// ERP. Client implements it; tests substitute a fake.
type Caller interface {
	SearchRead(ctx context.Context, model string, domain []Condition, fields []string, limit int) ([]Record, error)
	Create(ctx context.Context, model string, values map[string]interface{}, idempotencyKey string) (int64, error)
	Write(ctx context.Context, model string, ids []int64, values map[string]interface{}) error
	Ping(ctx context.Context) error
}

// Config holds the ERP connection details. All of it is injected
// configuration; none of it ever appears in responses or error messages.
type Config struct {
	BaseURL  string
	Database string
	Login    string
	APIKey   string
	Timeout  time.Duration
}

const (
	maxReadAttempts = 3
	backoffBase     = 100 * time.Millisecond
)

// Client is a JSON-RPC bridge to the ERP's object-model call interface.
// Every call goes through the (model, method) allow-list, is bounded by the
// configured timeout, and maps failures into TransientError / RemoteError.
type Client struct {
	hc  *http.Client
	cfg Config
	log *logger.Logger

	mu  sync.Mutex
	uid int64

	seq atomic.Int64
}

var _ Caller = (*Client)(nil)

// New creates an ERP client. Timeout defaults to 5s when unset.
func New(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		hc:  &http.Client{Timeout: timeout},
		cfg: cfg,
		log: log,
	}
}

// SearchRead reads records matching domain, projected to fields. Transient
// failures are retried with bounded exponential backoff.
func (c *Client) SearchRead(ctx context.Context, model string, domain []Condition, fields []string, limit int) ([]Record, error) {
	req := Request{Model: model, Method: MethodSearchRead, Domain: domain, Fields: fields, Limit: limit}

	raw, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &TransientError{Op: model + ".search_read", Err: fmt.Errorf("malformed result: %w", err)}
	}
	return records, nil
}

// Create inserts one record and returns its id. With an empty idempotencyKey
// a single attempt is made; retrying a create blindly risks duplicates. With
// a key the ERP enforces uniqueness on it, so transient failures are retried
// and a duplicate-key rejection means a previous attempt already committed.
func (c *Client) Create(ctx context.Context, model string, values map[string]interface{}, idempotencyKey string) (int64, error) {
	if idempotencyKey != "" {
		values["client_ref"] = idempotencyKey
	}
	req := Request{Model: model, Method: MethodCreate, Values: values, IdempotencyKey: idempotencyKey}

	raw, err := c.call(ctx, req)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, &TransientError{Op: model + ".create", Err: fmt.Errorf("malformed result: %w", err)}
	}
	return id, nil
}

// Write updates the given records. Single attempt; callers own retry policy.
func (c *Client) Write(ctx context.Context, model string, ids []int64, values map[string]interface{}) error {
	req := Request{Model: model, Method: MethodWrite, IDs: ids, Values: values}
	_, err := c.call(ctx, req)
	return err
}

// Ping verifies connectivity and credentials by authenticating.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	c.uid = 0
	c.mu.Unlock()
	_, err := c.authenticate(ctx)
	return err
}

func (c *Client) retryable(req Request) bool {
	if req.Method == MethodSearchRead {
		return true
	}
	return req.Method == MethodCreate && req.IdempotencyKey != ""
}

// call validates the request against the allow-list, serializes it into the
// ERP wire shape and executes it, retrying transient failures where the
// request is safe to repeat.
func (c *Client) call(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := checkAllowed(req.Model, req.Method); err != nil {
		return nil, err
	}

	attempts := 1
	if c.retryable(req) {
		attempts = maxReadAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, &TransientError{Op: req.Model + "." + req.Method, Err: ctx.Err()}
			case <-time.After(wait):
			}
		}

		raw, err := c.execute(ctx, req)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		var remote *RemoteError
		if errors.As(err, &remote) {
			// Business rejections are deterministic; retrying cannot help.
			return nil, err
		}

		c.log.Debug("erp_call_retrying", "", fmt.Sprintf("Transient failure calling %s.%s", req.Model, req.Method), map[string]interface{}{
			"model":   req.Model,
			"method":  req.Method,
			"attempt": attempt + 1,
		})
	}
	return nil, lastErr
}

// execute performs one JSON-RPC round trip for req.
func (c *Client) execute(ctx context.Context, req Request) (json.RawMessage, error) {
	op := req.Model + "." + req.Method

	uid, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	args := []interface{}{}
	kwargs := map[string]interface{}{}
	switch req.Method {
	case MethodSearchRead:
		args = append(args, wireDomain(req.Domain))
		kwargs["fields"] = req.Fields
		if req.Limit > 0 {
			kwargs["limit"] = req.Limit
		}
	case MethodCreate:
		args = append(args, req.Values)
	case MethodWrite:
		args = append(args, req.IDs, req.Values)
	}

	params := map[string]interface{}{
		"service": "object",
		"method":  "execute_kw",
		"args":    []interface{}{c.cfg.Database, uid, c.cfg.APIKey, req.Model, req.Method, args, kwargs},
	}

	raw, err := c.rpc(ctx, params)
	if err != nil {
		return nil, wrapCallError(op, req, err)
	}
	return raw, nil
}

func wrapCallError(op string, req Request, err error) error {
	if re, ok := err.(*RemoteError); ok {
		re.Model = req.Model
		re.Method = req.Method
		return re
	}
	if te, ok := err.(*TransientError); ok {
		te.Op = op
		return te
	}
	return &TransientError{Op: op, Err: err}
}

// authenticate resolves and caches the service user id.
func (c *Client) authenticate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}

	params := map[string]interface{}{
		"service": "common",
		"method":  "authenticate",
		"args":    []interface{}{c.cfg.Database, c.cfg.Login, c.cfg.APIKey, map[string]interface{}{}},
	}

	raw, err := c.rpc(ctx, params)
	if err != nil {
		if re, ok := err.(*RemoteError); ok {
			re.Model = "common"
			re.Method = "authenticate"
			return 0, re
		}
		return 0, &TransientError{Op: "authenticate", Err: err}
	}

	var uid int64
	if err := json.Unmarshal(raw, &uid); err != nil || uid == 0 {
		return 0, &RemoteError{Model: "common", Method: "authenticate", Message: "authentication rejected"}
	}
	c.uid = uid
	return uid, nil
}

// rpcEnvelope is the JSON-RPC 2.0 request body the ERP expects.
type rpcEnvelope struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"data"`
	} `json:"error"`
}

// rpc performs a single HTTP round trip. Errors returned here are either
// *RemoteError (ERP said no) or plain transport errors the caller wraps as
// transient.
func (c *Client) rpc(ctx context.Context, params interface{}) (json.RawMessage, error) {
	env := rpcEnvelope{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      c.seq.Add(1),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		return nil, fmt.Errorf("erp returned status %d", res.StatusCode)
	}
	if res.StatusCode >= 400 {
		return nil, &RemoteError{Message: fmt.Sprintf("request rejected (status=%d)", res.StatusCode)}
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var rpcRes rpcResponse
	if err := json.Unmarshal(b, &rpcRes); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	if rpcRes.Error != nil {
		// Surface only the ERP's user-facing message; the data payload may
		// carry a server traceback which must not cross this boundary.
		msg := rpcRes.Error.Data.Message
		if msg == "" {
			msg = rpcRes.Error.Message
		}
		return nil, &RemoteError{Name: rpcRes.Error.Data.Name, Message: msg}
	}

	return rpcRes.Result, nil
}

// wireDomain serializes filter triples into the ERP's nested-list shape.
func wireDomain(domain []Condition) [][]interface{} {
	out := make([][]interface{}, 0, len(domain))
	for _, cond := range domain {
		out = append(out, []interface{}{cond.Field, cond.Op, cond.Value})
	}
	return out
}
