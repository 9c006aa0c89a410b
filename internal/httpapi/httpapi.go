// Package httpapi is the terminal's HTTP surface. Handlers are thin: decode,
// call the service, map errors to statuses. All business rules live below.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"petpos/terminal/internal/cart"
	"petpos/terminal/internal/domain"
	"petpos/terminal/internal/pricing"
	"petpos/terminal/internal/remote"
	"petpos/terminal/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/me", a.requireAuth(a.handleMe))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions))
	mux.HandleFunc("/api/v1/categories", a.requireAuth(a.handleCategories))
	mux.HandleFunc("/api/v1/catalog", a.requireAuth(a.handleCatalog))
	mux.HandleFunc("/api/v1/catalog/refresh", a.requireAuth(a.handleCatalogRefresh))

	mux.HandleFunc("/api/v1/cart", a.requireAuth(a.handleCart))
	mux.HandleFunc("/api/v1/cart/items", a.requireAuth(a.handleCartItems))
	mux.HandleFunc("/api/v1/cart/items/", a.requireAuth(a.handleCartItemActions))
	mux.HandleFunc("/api/v1/cart/change", a.requireAuth(a.handleChange))
	mux.HandleFunc("/api/v1/cart/checkout", a.requireAuth(a.handleCheckout))

	mux.HandleFunc("/api/v1/dashboard/summary", a.requireAuth(a.handleDashboard))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		operator, err := a.auth.Identify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, errors.New("invalid or expired token"))
			return
		}

		sess := service.Session{Operator: operator, Token: token}
		next(w, r.WithContext(service.WithSession(r.Context(), sess)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
			return
		}
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sess, ok := service.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	writeJSON(w, http.StatusOK, sess.Operator)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		q := remote.ProductQuery{
			Search:     strings.TrimSpace(query.Get("search")),
			ActiveOnly: query.Get("active_only") == "true",
			Skip:       parseNonNegative(query.Get("skip"), 0),
			Limit:      parsePositiveLimit(query.Get("limit"), 100, 1000),
		}
		if id, err := strconv.ParseInt(query.Get("category_id"), 10, 64); err == nil && id > 0 {
			q.CategoryID = id
		}

		products, err := a.service.ListProducts(r.Context(), q)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		if query.Get("in_stock") == "true" {
			stocked := products[:0]
			for _, p := range products {
				if p.Stock.IsPositive() {
					stocked = append(stocked, p)
				}
			}
			products = stocked
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/products/"), "/")
	id, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.service.ListCategories(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	case http.MethodPost:
		var req domain.CategoryCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.service.CreateCategory(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"category": category})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.SaleCatalog(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.RefreshCatalog(r.Context()); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": true})
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		view, err := a.service.GetCart(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		view, err := a.service.ClearCart(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		ProductID int64 `json:"product_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ProductID <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("product_id required"))
		return
	}

	view, err := a.service.AddToCart(r.Context(), req.ProductID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleCartItemActions routes /api/v1/cart/items/{id} plus the increment,
// decrement and amount sub-actions.
func (a *API) handleCartItemActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/cart/items/"), "/")

	idPart, action := tail, ""
	if idx := strings.IndexByte(tail, '/'); idx >= 0 {
		idPart, action = tail[:idx], tail[idx+1:]
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	var view service.CartView
	switch {
	case action == "" && r.Method == http.MethodDelete:
		view, err = a.service.RemoveLine(r.Context(), id)
	case action == "increment" && r.Method == http.MethodPost:
		view, err = a.service.IncrementLine(r.Context(), id)
	case action == "decrement" && r.Method == http.MethodPost:
		view, err = a.service.DecrementLine(r.Context(), id)
	case action == "amount" && r.Method == http.MethodPut:
		var req struct {
			Amount string `json:"amount"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err = a.service.SetLineAmount(r.Context(), id, req.Amount)
	default:
		writeMethodNotAllowed(w)
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Tendered      string               `json:"tendered"`
		PaymentMethod domain.PaymentMethod `json:"payment_method"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.PreviewChange(r.Context(), req.Tendered, req.PaymentMethod)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req service.CheckoutInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	body := map[string]any{"sale": sale}
	if tendered := pricing.ParseAmount(req.Tendered); tendered.IsPositive() {
		body["change"] = pricing.Change(sale.Total, tendered, req.PaymentMethod)
	}
	writeJSON(w, http.StatusCreated, body)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	summary, err := a.service.DashboardSummary(r.Context(), service.SummaryQuery{
		Preset:    service.RangePreset(query.Get("range")),
		StartDate: query.Get("start_date"),
		EndDate:   query.Get("end_date"),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// writeServiceError maps the service and remote error taxonomy to statuses.
// Stock ceiling rejections carry the remaining headroom so the operator knows
// how much can still be sold.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var stockErr *pricing.StockExceededError
	if errors.As(err, &stockErr) {
		payload := map[string]any{
			"error":     stockErr.Error(),
			"available": stockErr.Available,
		}
		if stockErr.Mode == domain.ModeByWeight {
			payload["available_lb"] = pricing.ToPounds(stockErr.Available)
			payload["max_amount"] = stockErr.MaxAmount
		}
		writeJSON(w, http.StatusUnprocessableEntity, payload)
		return
	}

	var apiErr *remote.APIError
	var urlErr *url.Error
	switch {
	case errors.Is(err, service.ErrNoSession):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, remote.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, cart.ErrLineNotFound), errors.Is(err, service.ErrUnknownProduct):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, remote.ErrStockConflict), errors.Is(err, service.ErrSubmissionInFlight):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, service.ErrBadRange):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, cart.ErrAmountEntry),
		errors.Is(err, service.ErrAmountPending),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrUnsupportedPayment),
		errors.Is(err, pricing.ErrAmountTooSmall),
		errors.Is(err, pricing.ErrNonPositivePrice):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.As(err, &apiErr):
		writeError(w, apiErr.Status, errors.New(apiErr.Detail))
	case errors.As(err, &urlErr):
		writeError(w, http.StatusBadGateway, errors.New("shop api unreachable"))
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s rid=%s", r.Method, r.URL.Path, time.Since(startedAt), requestID)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func parseNonNegative(raw string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed >= 0 {
		return parsed
	}
	return fallback
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic so upstream failures never leak connection
	// strings or stack detail to the terminal UI.
	msg := err.Error()
	if status >= 500 && status != http.StatusBadGateway {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
