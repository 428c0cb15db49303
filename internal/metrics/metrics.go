// Package metrics provides Prometheus instrumentation for the product
// calculator.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProductWrites counts successful store writes, partitioned by
	// operation (create, update, delete, clear) and product type.
	ProductWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calculator_product_writes_total",
		Help: "Total product writes by operation and type",
	}, []string{"op", "type"})

	// StoredProducts tracks the number of products in the store.
	StoredProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calculator_stored_products",
		Help: "Number of products currently stored",
	})

	// ValidationFailures counts rejected form fields by field name and code.
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calculator_validation_failures_total",
		Help: "Rejected form fields by field and error code",
	}, []string{"field", "code"})

	// SummaryRecomputes counts summary aggregations, partitioned by trigger
	// (request, input, commit, change).
	SummaryRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calculator_summary_recomputes_total",
		Help: "Summary aggregations by trigger",
	}, []string{"trigger"})

	// SummarySessions tracks open rate-entry sessions.
	SummarySessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calculator_summary_sessions",
		Help: "Number of open summary rate sessions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calculator_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calculator_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calculator_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern returns the matched chi route (e.g. /api/v1/products/{productID})
// so ids do not explode label cardinality. Unmatched requests share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over connections that pass
// through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
