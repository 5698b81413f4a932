// Package server exposes the storefront-facing HTTP API. Each route maps
// 1:1 to an orchestrator contract; the handlers do request decoding,
// session resolution and error-to-status mapping, nothing more.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"restaurant-storefront/internal/booking"
	"restaurant-storefront/internal/cart"
	"restaurant-storefront/internal/catalog"
	"restaurant-storefront/internal/checkout"
	"restaurant-storefront/internal/erp"
	"restaurant-storefront/internal/logger"
	"restaurant-storefront/internal/models"
	"restaurant-storefront/internal/payment"
	"restaurant-storefront/internal/validation"
)

// Handler handles HTTP requests for the storefront API.
type Handler struct {
	carts    *cart.Service
	checkout *checkout.Orchestrator
	bookings *booking.Orchestrator
	catalog  *catalog.Reader
	erp      erp.Caller
	sessions *SessionManager
	logger   *logger.Logger
}

// NewHandler creates a new storefront API handler.
func NewHandler(carts *cart.Service, co *checkout.Orchestrator, bookings *booking.Orchestrator, reader *catalog.Reader, caller erp.Caller, sessions *SessionManager, log *logger.Logger) *Handler {
	return &Handler{
		carts:    carts,
		checkout: co,
		bookings: bookings,
		catalog:  reader,
		erp:      caller,
		sessions: sessions,
		logger:   log,
	}
}

// SetupRoutes sets up the HTTP routes.
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.withLogging(h.HealthCheck))
	mux.HandleFunc("/providers", h.withLogging(h.ListProviders))
	mux.HandleFunc("/floors", h.withLogging(h.ListFloors))
	mux.HandleFunc("/tables", h.withLogging(h.ListTables))
	mux.HandleFunc("/cart", h.withLogging(h.GetCart))
	mux.HandleFunc("/cart/items", h.withLogging(h.CartItems))
	mux.HandleFunc("/checkout", h.withLogging(h.Checkout))
	mux.HandleFunc("/booking/availability", h.withLogging(h.Availability))
	mux.HandleFunc("/booking/reserve", h.withLogging(h.Reserve))

	return mux
}

// HealthCheck handles GET /health requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.erp.Ping(ctx) == nil

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "storefront",
		"healthy":   healthy,
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		response["status"] = "unhealthy"
	}
	json.NewEncoder(w).Encode(response)
}

// ListProviders handles GET /providers?code= requests. The response only
// ever contains redacted provider views.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	providers, err := h.catalog.ListPaymentProviders(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"providers": providers})
}

// ListFloors handles GET /floors requests.
func (h *Handler) ListFloors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	floors, err := h.catalog.ListFloors(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"floors": floors})
}

// ListTables handles GET /tables?floor_id= requests.
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var floorID int64
	if v := r.URL.Query().Get("floor_id"); v != "" {
		if _, err := fmt.Sscan(v, &floorID); err != nil {
			h.writeError(w, r, validation.Errorf("floor_id", "invalid floor id"))
			return
		}
	}

	tables, err := h.catalog.ListTables(r.Context(), floorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

// GetCart handles GET /cart requests.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	sid, err := h.sessions.EnsureSession(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.carts.Get(r.Context(), sid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse(c))
}

type cartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CartItems handles POST, PATCH and DELETE /cart/items requests.
func (h *Handler) CartItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodPatch, http.MethodDelete:
	default:
		h.writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	sid, err := h.sessions.EnsureSession(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	var c models.Cart
	switch r.Method {
	case http.MethodPost:
		c, err = h.carts.AddItem(r.Context(), sid, req.ProductID, req.Quantity)
	case http.MethodPatch:
		c, err = h.carts.UpdateItem(r.Context(), sid, req.ProductID, req.Quantity)
	case http.MethodDelete:
		c, err = h.carts.RemoveItem(r.Context(), sid, req.ProductID)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse(c))
}

type checkoutRequest struct {
	ProviderCode   string `json:"provider_code"`
	IdempotencyKey string `json:"idempotency_key"`
	CustomerEmail  string `json:"customer_email,omitempty"`
}

// Checkout handles POST /checkout requests.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	sid, err := h.sessions.EnsureSession(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	order, err := h.checkout.Checkout(ctx, sid, req.ProviderCode, req.IdempotencyKey, req.CustomerEmail)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// Availability handles GET /booking/availability requests.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	q := r.URL.Query()
	var partySize int
	if _, err := fmt.Sscan(q.Get("party_size"), &partySize); err != nil {
		h.writeError(w, r, validation.Errorf("party_size", "invalid party size"))
		return
	}
	slot, err := parseSlot(q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	tables, err := h.bookings.CheckAvailability(r.Context(), partySize, slot)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

type reserveRequest struct {
	TableID     int64  `json:"table_id"`
	PartySize   int    `json:"party_size"`
	Start       string `json:"start"`
	End         string `json:"end"`
	CustomerRef string `json:"customer_ref"`
}

// Reserve handles POST /booking/reserve requests.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req reserveRequest
	if !h.decode(w, r, &req) {
		return
	}

	slot, err := parseSlot(req.Start, req.End)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	reservation, err := h.bookings.Reserve(ctx, req.TableID, slot, req.PartySize, req.CustomerRef)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reservation)
}

// decode parses a JSON request body, rejecting unknown fields.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		requestID := logger.RequestIDFrom(r.Context())
		h.logger.Error("validation_failed", requestID, "Failed to parse request body", err, nil)
		h.writeErrorMessage(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return false
	}
	return true
}

func parseSlot(start, end string) (models.TimeSlot, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return models.TimeSlot{}, validation.Errorf("start", "invalid start time, want RFC3339")
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return models.TimeSlot{}, validation.Errorf("end", "invalid end time, want RFC3339")
	}
	return models.TimeSlot{Start: s, End: e}, nil
}

func cartResponse(c models.Cart) map[string]interface{} {
	lines := c.Lines
	if lines == nil {
		lines = []models.CartLine{}
	}
	return map[string]interface{}{
		"lines": lines,
		"total": c.Total(),
	}
}

// writeError maps domain errors to HTTP statuses. Validation, stale-cart,
// conflict and provider conditions go back to the caller as-is for
// correction; transient and remote ERP failures are logged with the
// correlation id and surfaced as a generic try-again message so no ERP
// internals or credentials ever reach the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logger.RequestIDFrom(r.Context())

	var (
		validationErr validation.ValidationError
		staleErr      *checkout.StaleCartItemError
		conflictErr   *booking.SlotConflictError
		providerErr   *payment.ProviderUnavailableError
		remoteErr     *erp.RemoteError
		transientErr  *erp.TransientError
	)

	switch {
	case errors.As(err, &validationErr):
		h.writeErrorMessage(w, http.StatusBadRequest, validationErr.Error(), requestID)
	case errors.As(err, &staleErr):
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":      staleErr.Error(),
			"product_id": staleErr.ProductID,
			"request_id": requestID,
		})
	case errors.As(err, &conflictErr):
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":      conflictErr.Error(),
			"table_id":   conflictErr.TableID,
			"request_id": requestID,
		})
	case errors.As(err, &providerErr):
		h.writeErrorMessage(w, http.StatusUnprocessableEntity, providerErr.Error(), requestID)
	case errors.As(err, &remoteErr):
		h.logger.Error("erp_rejected", requestID, "ERP rejected the request", err, nil)
		h.writeErrorMessage(w, http.StatusBadGateway, "The restaurant system could not process the request, please try again", requestID)
	case errors.As(err, &transientErr):
		h.logger.Error("erp_unreachable", requestID, "ERP call failed", err, nil)
		h.writeErrorMessage(w, http.StatusServiceUnavailable, "The restaurant system is temporarily unavailable, please try again", requestID)
	default:
		h.logger.Error("internal_error", requestID, "Unhandled error", err, nil)
		h.writeErrorMessage(w, http.StatusInternalServerError, "Internal server error", requestID)
	}
}

// writeErrorMessage writes an error response in JSON format.
func (h *Handler) writeErrorMessage(w http.ResponseWriter, statusCode int, message, requestID string) {
	h.writeJSON(w, statusCode, map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "", "Failed to encode response", err, nil)
	}
}

// withLogging adds request logging middleware.
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.GenerateRequestID()

		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))

		h.logger.Debug("request_started",
			requestID,
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: 200}

		next(rw, r)

		duration := time.Since(start)
		h.logger.Debug("request_completed",
			requestID,
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
