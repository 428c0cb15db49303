package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/atmx/product-calculator/internal/metrics"
	"github.com/atmx/product-calculator/internal/product"
)

// requestTimeout bounds every API call except the WebSocket stream.
const requestTimeout = 30 * time.Second

// newRouter wires the HTTP surface: health, Prometheus scrape endpoint and
// the versioned product API.
func newRouter(svc *product.Service, hub *product.WSHub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","service":"product-calculator"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", hub.HandleWS)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			svc.Routes(r)
		})
	})
	return r
}
