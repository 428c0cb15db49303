package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRoutePattern_UsesChiTemplate(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			got = routePattern(req)
		})
	})
	r.Get("/products/{productID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/42", nil))
	if got != "/products/{productID}" {
		t.Errorf("routePattern = %q, want /products/{productID}", got)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	if got != "unmatched" {
		t.Errorf("routePattern for a 404 = %q, want unmatched", got)
	}
}

func TestRoutePattern_NoRouteContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/anything/123", nil)
	if got := routePattern(req); got != "unmatched" {
		t.Errorf("routePattern = %q, want unmatched", got)
	}
}

func TestMiddleware_CapturesStatus(t *testing.T) {
	var seen *statusWriter
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		seen, _ = w.(*statusWriter)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("response code = %d", rec.Code)
	}
	if seen == nil || seen.status != http.StatusTeapot {
		t.Errorf("statusWriter did not record the status: %+v", seen)
	}
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	w := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := w.Hijack(); err == nil {
		t.Error("expected an error from a recorder that cannot hijack")
	}
}
