package product

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/product-calculator/internal/currency"
	"github.com/atmx/product-calculator/internal/form"
	"github.com/atmx/product-calculator/internal/model"
	"github.com/atmx/product-calculator/internal/store"
	"github.com/atmx/product-calculator/internal/summary"
	"github.com/atmx/product-calculator/internal/validation"
)

// --- Request/Response types ---

// PreviewRequest is the JSON body for POST /products/preview: the form as
// the client currently holds it, plus the field that just changed.
type PreviewRequest struct {
	Input   model.Input `json:"input"`
	Touched []string    `json:"touched"`
	Field   string      `json:"field,omitempty"`
	Value   string      `json:"value,omitempty"`
}

// RateRequest is the JSON body for PUT /summary/sessions/{id}/rates/{currency}.
// Commit defaults to true; false debounces the rate like a keystroke.
type RateRequest struct {
	Rate   decimal.Decimal `json:"rate"`
	Commit *bool           `json:"commit,omitempty"`
}

// SessionResponse is returned by the summary session endpoints.
type SessionResponse struct {
	SessionID string          `json:"sessionId"`
	Rates     summary.Rates   `json:"rates"`
	Summary   summary.Summary `json:"summary"`
}

// PendingResponse is returned when a rate is waiting on the debounce.
type PendingResponse struct {
	SessionID string `json:"sessionId"`
	Currency  string `json:"currency"`
	Pending   bool   `json:"pending"`
}

type countResponse struct {
	Count int `json:"count"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields validation.Errors `json:"fields,omitempty"`
}

// Routes registers the product and summary endpoints on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/currencies", s.ListCurrencies)

	r.Get("/products", s.ListProducts)
	r.Post("/products", s.CreateProduct)
	r.Delete("/products", s.ClearProducts)
	r.Get("/products/count", s.CountProducts)
	r.Post("/products/preview", s.PreviewProduct)
	r.Get("/products/{productID}", s.GetProduct)
	r.Get("/products/{productID}/form", s.GetProductForm)
	r.Put("/products/{productID}", s.UpdateProduct)
	r.Delete("/products/{productID}", s.DeleteProduct)

	r.Get("/summary", s.GetSummary)
	r.Post("/summary/sessions", s.OpenSession)
	r.Get("/summary/sessions/{sessionID}", s.GetSession)
	r.Delete("/summary/sessions/{sessionID}", s.CloseSession)
	r.Put("/summary/sessions/{sessionID}/rates/{currency}", s.SetSessionRate)
}

// --- HTTP Handlers ---

// ListCurrencies handles GET /api/v1/currencies
func (s *Service) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"reference":  currency.Reference,
		"currencies": currency.All(),
	})
}

// ListProducts handles GET /api/v1/products
// Returns all products in creation order, optionally filtered by ?type=.
func (s *Service) ListProducts(w http.ResponseWriter, r *http.Request) {
	typ := model.Type(r.URL.Query().Get("type"))
	if typ != "" && !typ.Valid() {
		writeError(w, "unknown product type: "+string(typ), http.StatusBadRequest)
		return
	}

	products, err := s.List(r.Context(), typ)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// CreateProduct handles POST /api/v1/products
func (s *Service) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in model.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.Add(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProduct handles GET /api/v1/products/{productID}
func (s *Service) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := s.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetProductForm handles GET /api/v1/products/{productID}/form
// Returns the edit form pre-filled from the stored product.
func (s *Service) GetProductForm(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := s.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form.EditDraft(*p).State())
}

// UpdateProduct handles PUT /api/v1/products/{productID}
func (s *Service) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	var in model.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.Edit(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProduct handles DELETE /api/v1/products/{productID}
func (s *Service) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := s.Remove(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearProducts handles DELETE /api/v1/products
func (s *Service) ClearProducts(w http.ResponseWriter, r *http.Request) {
	if err := s.Reset(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CountProducts handles GET /api/v1/products/count
func (s *Service) CountProducts(w http.ResponseWriter, r *http.Request) {
	n, err := s.Count(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// PreviewProduct handles POST /api/v1/products/preview
// Applies one field change to the posted form and returns derived values,
// linked fields and errors for visited fields. Nothing is stored.
func (s *Service) PreviewProduct(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	draft := form.Restore(req.Input, req.Touched)
	if req.Field == "" {
		writeJSON(w, http.StatusOK, draft.State())
		return
	}
	u, err := draft.OnFieldChanged(req.Field, req.Value)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GetSummary handles GET /api/v1/summary?rate=USD:7.1&rate=EUR:7.8
// A one-shot aggregation with rates from the query string.
func (s *Service) GetSummary(w http.ResponseWriter, r *http.Request) {
	rates, err := summary.ParseRates(r.URL.Query()["rate"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sum, err := s.Summary(r.Context(), rates)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// OpenSession handles POST /api/v1/summary/sessions
func (s *Service) OpenSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Open()
	sum, err := sess.Refresh(r.Context(), "request")
	if err != nil {
		_ = s.sessions.Close(sess.ID)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{SessionID: sess.ID, Rates: sess.Rates(), Summary: sum})
}

// GetSession handles GET /api/v1/summary/sessions/{sessionID}
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sum, err := sess.Refresh(r.Context(), "request")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: sess.ID, Rates: sess.Rates(), Summary: sum})
}

// CloseSession handles DELETE /api/v1/summary/sessions/{sessionID}
func (s *Service) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "sessionID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSessionRate handles PUT /api/v1/summary/sessions/{sessionID}/rates/{currency}
func (s *Service) SetSessionRate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	code := chi.URLParam(r, "currency")

	if req.Commit != nil && !*req.Commit {
		if err := sess.Input(code, req.Rate); err != nil {
			writeServiceError(w, err)
			return
		}
		code, _ = currency.Parse(code)
		writeJSON(w, http.StatusAccepted, PendingResponse{SessionID: sess.ID, Currency: code, Pending: true})
		return
	}

	sum, err := sess.Commit(r.Context(), code, req.Rate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: sess.ID, Rates: sess.Rates(), Summary: sum})
}

// --- Helpers ---

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, "invalid product id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: verrs})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "product not found", http.StatusNotFound)
	case errors.Is(err, summary.ErrSessionNotFound), errors.Is(err, summary.ErrSessionClosed):
		writeError(w, "summary session not found", http.StatusNotFound)
	case errors.Is(err, summary.ErrRateOutOfRange),
		errors.Is(err, summary.ErrReferenceRate),
		errors.Is(err, summary.ErrMalformedRate),
		errors.Is(err, model.ErrVariantMismatch),
		errors.Is(err, currency.ErrInvalidCode),
		errors.Is(err, currency.ErrUnsupported):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrStorageUnavailable):
		writeError(w, "storage unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, store.ErrWrite):
		writeError(w, "failed to save product", http.StatusInternalServerError)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Error: message})
}
