package product_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/atmx/product-calculator/internal/form"
	"github.com/atmx/product-calculator/internal/model"
	"github.com/atmx/product-calculator/internal/product"
	"github.com/atmx/product-calculator/internal/store"
	"github.com/atmx/product-calculator/internal/summary"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func tickClock() func() time.Time {
	var n atomic.Int64
	base := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T, hub *product.WSHub) (*product.Service, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore(store.WithClock(tickClock()))
	svc := product.NewService(ms, hub, 20*time.Millisecond)
	t.Cleanup(svc.Close)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}
		svc.Routes(r)
	})
	return svc, r
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func intp(i int) *int { return &i }

func depositInput(name string, amount, rate float64) model.Input {
	return model.Input{
		Type:       model.TypeDeposit,
		Name:       name,
		Currency:   "CNY",
		Amount:     model.Valid(d(amount)),
		Rate:       model.Valid(d(rate)),
		Period:     intp(1),
		PeriodUnit: model.UnitYear,
	}
}

func loanInput(name string, amount, rate float64) model.Input {
	in := depositInput(name, amount, rate)
	in.Type = model.TypeLoan
	in.Currency = "USD"
	return in
}

func swapInput() model.Input {
	return model.Input{
		Type:             model.TypeSwap,
		Name:             "美元掉期",
		NearSellCurrency: "USD",
		NearBuyCurrency:  "CNY",
		NearSellAmount:   model.Valid(d(1000000)),
		NearRate:         model.Valid(d(7.2)),
		FarSellCurrency:  "CNY",
		FarBuyCurrency:   "USD",
		FarRate:          model.Valid(d(7.25)),
		FeeCurrency:      "CNY",
		FeeAmount:        model.Valid(d(100)),
	}
}

func mustCreate(t *testing.T, router chi.Router, in model.Input) model.Product {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/products", in)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[model.Product](t, w)
}

// --- Product CRUD tests ---

func TestCreateProduct_Deposit(t *testing.T) {
	_, router := newTestEnv(t, nil)

	in := depositInput("一年定存", 10000, 3.65)
	in.Period, in.PeriodUnit = intp(12), model.UnitMonth
	p := mustCreate(t, router, in)

	if p.ID != 1 {
		t.Errorf("expected id 1, got %d", p.ID)
	}
	if p.Term == nil {
		t.Fatal("expected term fields")
	}
	if !p.Term.Interest.Equal(d(365)) || !p.Term.Principal.Equal(d(10365)) {
		t.Errorf("interest/principal = %s/%s, want 365/10365", p.Term.Interest, p.Term.Principal)
	}
	if p.CreateTime == 0 || p.CreateTime != p.UpdateTime {
		t.Errorf("unexpected timestamps: %d/%d", p.CreateTime, p.UpdateTime)
	}
}

func TestCreateProduct_SwapStoresDerivedLegs(t *testing.T) {
	_, router := newTestEnv(t, nil)
	p := mustCreate(t, router, swapInput())

	if p.Swap == nil {
		t.Fatal("expected swap fields")
	}
	if !p.Swap.NearBuyAmount.Equal(d(7200000)) {
		t.Errorf("nearBuyAmount = %s", p.Swap.NearBuyAmount)
	}
	if !p.Swap.FarSellAmount.Equal(d(137931.03)) {
		t.Errorf("farSellAmount = %s", p.Swap.FarSellAmount)
	}
	if p.Fee == nil || !p.Fee.FeeAmount.Equal(d(100)) {
		t.Errorf("fee = %+v", p.Fee)
	}
}

func TestCreateProduct_ValidationErrors(t *testing.T) {
	_, router := newTestEnv(t, nil)

	in := depositInput("", 1000000000, 3)
	w := do(t, router, "POST", "/api/v1/products", in)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Error  string `json:"error"`
		Fields []struct {
			Field string `json:"field"`
			Code  string `json:"code"`
		} `json:"fields"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for _, f := range body.Fields {
		got[f.Field] = f.Code
	}
	if got["name"] != "required" || got["amount"] != "out_of_range" {
		t.Errorf("unexpected field errors: %+v", body.Fields)
	}

	count := decode[map[string]int](t, do(t, router, "GET", "/api/v1/products/count", nil))
	if count["count"] != 0 {
		t.Error("invalid input must not be stored")
	}
}

func TestCreateProduct_InvalidBody(t *testing.T) {
	_, router := newTestEnv(t, nil)
	req := httptest.NewRequest("POST", "/api/v1/products", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetProduct_NotFoundAndBadID(t *testing.T) {
	_, router := newTestEnv(t, nil)

	if w := do(t, router, "GET", "/api/v1/products/42", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing product: expected 404, got %d", w.Code)
	}
	if w := do(t, router, "GET", "/api/v1/products/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
}

func TestUpdateProduct_PreservesIdentity(t *testing.T) {
	_, router := newTestEnv(t, nil)
	created := mustCreate(t, router, depositInput("定存", 10000, 3))

	// Reshape the deposit into a swap.
	w := do(t, router, "PUT", "/api/v1/products/1", swapInput())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated := decode[model.Product](t, w)

	if updated.ID != created.ID || updated.CreateTime != created.CreateTime {
		t.Errorf("id/createTime changed: %+v -> %+v", created, updated)
	}
	if updated.UpdateTime <= created.UpdateTime {
		t.Error("updateTime should advance")
	}
	if updated.Type != model.TypeSwap || updated.Term != nil || updated.Swap == nil {
		t.Errorf("expected a swap without term fields, got %+v", updated)
	}

	got := decode[model.Product](t, do(t, router, "GET", "/api/v1/products/1", nil))
	if got.CreateTime != created.CreateTime || got.Name != "美元掉期" {
		t.Errorf("stored product = %+v", got)
	}
}

func TestUpdateProduct_MissingBeforeValidation(t *testing.T) {
	_, router := newTestEnv(t, nil)
	w := do(t, router, "PUT", "/api/v1/products/9", model.Input{})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestUpdateProduct_InvalidInput(t *testing.T) {
	_, router := newTestEnv(t, nil)
	mustCreate(t, router, depositInput("定存", 10000, 3))

	in := depositInput("定存", 10000, 100)
	if w := do(t, router, "PUT", "/api/v1/products/1", in); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestDeleteProduct_Idempotent(t *testing.T) {
	_, router := newTestEnv(t, nil)
	mustCreate(t, router, depositInput("定存", 10000, 3))

	for i := 0; i < 2; i++ {
		if w := do(t, router, "DELETE", "/api/v1/products/1", nil); w.Code != http.StatusNoContent {
			t.Errorf("delete #%d: expected 204, got %d", i+1, w.Code)
		}
	}
	if w := do(t, router, "GET", "/api/v1/products/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestListProducts_OrderAndFilter(t *testing.T) {
	_, router := newTestEnv(t, nil)

	empty := decode[[]model.Product](t, do(t, router, "GET", "/api/v1/products", nil))
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty list, got %v", empty)
	}

	mustCreate(t, router, depositInput("a", 100, 1))
	mustCreate(t, router, loanInput("b", 100, 1))
	mustCreate(t, router, depositInput("c", 100, 1))

	all := decode[[]model.Product](t, do(t, router, "GET", "/api/v1/products", nil))
	if len(all) != 3 || all[0].Name != "a" || all[2].Name != "c" {
		t.Fatalf("unexpected list: %+v", all)
	}

	deposits := decode[[]model.Product](t, do(t, router, "GET", "/api/v1/products?type=deposit", nil))
	if len(deposits) != 2 {
		t.Errorf("expected 2 deposits, got %d", len(deposits))
	}

	if w := do(t, router, "GET", "/api/v1/products?type=bond", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown type filter: expected 400, got %d", w.Code)
	}
}

func TestClearProducts_IDsNotReused(t *testing.T) {
	_, router := newTestEnv(t, nil)
	mustCreate(t, router, depositInput("a", 100, 1))
	mustCreate(t, router, depositInput("b", 100, 1))

	if w := do(t, router, "DELETE", "/api/v1/products", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	count := decode[map[string]int](t, do(t, router, "GET", "/api/v1/products/count", nil))
	if count["count"] != 0 {
		t.Errorf("expected 0 after clear, got %d", count["count"])
	}

	p := mustCreate(t, router, depositInput("c", 100, 1))
	if p.ID != 3 {
		t.Errorf("expected id 3 after clear, got %d", p.ID)
	}
}

// --- Form tests ---

func TestPreviewProduct_AppliesFieldChange(t *testing.T) {
	_, router := newTestEnv(t, nil)

	req := product.PreviewRequest{
		Input:   model.Input{Type: model.TypeSwap, NearSellCurrency: "USD"},
		Touched: []string{"nearSellCurrency"},
		Field:   "nearBuyCurrency",
		Value:   "CNY",
	}
	w := do(t, router, "POST", "/api/v1/products/preview", req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	u := decode[form.Update](t, w)
	if u.Input.FarSellCurrency != "CNY" || u.Input.FeeCurrency != "CNY" {
		t.Errorf("expected linked far-sell and fee currency, got %+v", u.Input)
	}
	if u.Derived.FinalIncome.Valid {
		t.Error("incomplete swap must not have a final income")
	}
	if len(u.Errors) != 0 {
		t.Errorf("expected no errors for visited fields, got %v", u.Errors)
	}

	req.Field = "shoeSize"
	if w := do(t, router, "POST", "/api/v1/products/preview", req); w.Code != http.StatusBadRequest {
		t.Errorf("unknown field: expected 400, got %d", w.Code)
	}
}

func TestGetProductForm_Prefilled(t *testing.T) {
	_, router := newTestEnv(t, nil)
	mustCreate(t, router, swapInput())

	w := do(t, router, "GET", "/api/v1/products/1/form", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	u := decode[form.Update](t, w)
	if u.Input.NearSellCurrency != "USD" || !u.Derived.FinalIncome.Valid {
		t.Errorf("unexpected form state: %+v", u)
	}
}

// --- Summary tests ---

func seedExample(t *testing.T, router chi.Router) {
	t.Helper()
	mustCreate(t, router, depositInput("存款", 10000, 5)) // +500 CNY
	mustCreate(t, router, loanInput("贷款", 10000, 3))    // -300 USD
}

func TestGetSummary_WithRates(t *testing.T) {
	_, router := newTestEnv(t, nil)
	seedExample(t, router)

	sum := decode[summary.Summary](t, do(t, router, "GET", "/api/v1/summary?rate=USD:7.1", nil))
	if !sum.ReferenceTotal.Equal(d(-1630)) {
		t.Errorf("reference total = %s, want -1630", sum.ReferenceTotal)
	}
	if len(sum.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(sum.Lines))
	}

	sum = decode[summary.Summary](t, do(t, router, "GET", "/api/v1/summary", nil))
	if !sum.ReferenceTotal.Equal(d(500)) {
		t.Errorf("without rates the reference total = %s, want 500", sum.ReferenceTotal)
	}

	if w := do(t, router, "GET", "/api/v1/summary?rate=USD:10000", nil); w.Code != http.StatusBadRequest {
		t.Errorf("out-of-range rate: expected 400, got %d", w.Code)
	}
}

func TestSummarySession_Flow(t *testing.T) {
	_, router := newTestEnv(t, nil)
	seedExample(t, router)

	w := do(t, router, "POST", "/api/v1/summary/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("open session: expected 201, got %d", w.Code)
	}
	opened := decode[product.SessionResponse](t, w)
	base := "/api/v1/summary/sessions/" + opened.SessionID

	w = do(t, router, "PUT", base+"/rates/usd", product.RateRequest{Rate: d(7.1)})
	if w.Code != http.StatusOK {
		t.Fatalf("commit rate: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	committed := decode[product.SessionResponse](t, w)
	if !committed.Summary.ReferenceTotal.Equal(d(-1630)) {
		t.Errorf("reference total = %s, want -1630", committed.Summary.ReferenceTotal)
	}

	if w := do(t, router, "PUT", base+"/rates/USD", product.RateRequest{Rate: d(0.001)}); w.Code != http.StatusBadRequest {
		t.Errorf("out-of-range rate: expected 400, got %d", w.Code)
	}
	got := decode[product.SessionResponse](t, do(t, router, "GET", base, nil))
	if _, ok := got.Rates["USD"]; ok {
		t.Error("rejected rate should clear the currency's rate")
	}

	if w := do(t, router, "PUT", base+"/rates/XAU", product.RateRequest{Rate: d(1)}); w.Code != http.StatusBadRequest {
		t.Errorf("unsupported currency: expected 400, got %d", w.Code)
	}

	if w := do(t, router, "DELETE", base, nil); w.Code != http.StatusNoContent {
		t.Errorf("close: expected 204, got %d", w.Code)
	}
	if w := do(t, router, "GET", base, nil); w.Code != http.StatusNotFound {
		t.Errorf("closed session: expected 404, got %d", w.Code)
	}
}

func TestSummarySession_DebouncedRate(t *testing.T) {
	svc, router := newTestEnv(t, nil)
	seedExample(t, router)

	opened := decode[product.SessionResponse](t, do(t, router, "POST", "/api/v1/summary/sessions", nil))
	commit := false
	w := do(t, router, "PUT", "/api/v1/summary/sessions/"+opened.SessionID+"/rates/USD",
		product.RateRequest{Rate: d(7.1), Commit: &commit})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	sess, err := svc.Sessions().Get(opened.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for !sess.Last().ReferenceTotal.Equal(d(-1630)) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !sess.Last().ReferenceTotal.Equal(d(-1630)) {
		t.Errorf("reference total after debounce = %s, want -1630", sess.Last().ReferenceTotal)
	}
}

// --- WebSocket tests ---

func TestWSHub_BroadcastsProductChanges(t *testing.T) {
	hub := product.NewWSHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	svc, router := newTestEnv(t, hub)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := svc.Add(context.Background(), depositInput("定存", 10000, 3)); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg product.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != product.EventProductCreated || msg.ProductID != 1 || msg.Count != 1 {
		t.Errorf("unexpected message: %+v", msg)
	}
}
