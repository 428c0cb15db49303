// Package product provides the business operations and HTTP handlers for
// adding, editing, listing and removing calculator products and for the
// per-currency income summary.
//
// All monetary values use shopspring/decimal, never float64 for money.
package product

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atmx/product-calculator/internal/calc"
	"github.com/atmx/product-calculator/internal/metrics"
	"github.com/atmx/product-calculator/internal/model"
	"github.com/atmx/product-calculator/internal/store"
	"github.com/atmx/product-calculator/internal/summary"
	"github.com/atmx/product-calculator/internal/validation"
)

// ErrUnderivable is returned when a validated input still cannot be
// computed. It indicates a gap between validation and calculation.
var ErrUnderivable = errors.New("product: input cannot be derived")

// Service handles product operations. Writes are serialized with a mutex
// so that every write observes the previous one (single-instance).
type Service struct {
	store    store.Store
	sessions *summary.Sessions
	mu       sync.Mutex
	wsHub    *WSHub // optional WebSocket hub for change broadcasts
}

// NewService creates a new product service whose summary sessions debounce
// rate input by rateDebounce.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *WSHub, rateDebounce time.Duration) *Service {
	s := &Service{store: st, wsHub: hub}
	s.sessions = summary.NewSessions(st.List, rateDebounce, s.publishSummary)
	return s
}

// Sessions returns the summary session registry.
func (s *Service) Sessions() *summary.Sessions { return s.sessions }

// Close closes every summary session, cancelling pending rate timers.
func (s *Service) Close() {
	s.sessions.CloseAll()
}

// Add validates in, derives its computed fields and stores it.
func (s *Service) Add(ctx context.Context, in model.Input) (*model.Product, error) {
	p, err := build(in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, err = s.store.Create(ctx, &p)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	metrics.ProductWrites.WithLabelValues("create", string(p.Type)).Inc()
	slog.Info("product created", "id", p.ID, "type", p.Type, "product", p.Describe())
	s.changed(ctx, WSMessage{Type: EventProductCreated, ProductID: p.ID, Product: &p})
	return &p, nil
}

// Edit replaces the fields of product id with in. The id and creation
// time are kept.
func (s *Service) Edit(ctx context.Context, id int64, in model.Input) (*model.Product, error) {
	// A missing product is reported before any validation errors.
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	p, err := build(in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	updated, err := s.store.Update(ctx, id, p)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	metrics.ProductWrites.WithLabelValues("update", string(updated.Type)).Inc()
	slog.Info("product updated", "id", id, "type", updated.Type, "product", updated.Describe())
	s.changed(ctx, WSMessage{Type: EventProductUpdated, ProductID: id, Product: updated})
	return updated, nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (*model.Product, error) {
	return s.store.GetByID(ctx, id)
}

// List returns every product in creation order, optionally only those of
// type typ.
func (s *Service) List(ctx context.Context, typ model.Type) ([]model.Product, error) {
	products, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if typ == "" {
		return products, nil
	}
	filtered := []model.Product{}
	for _, p := range products {
		if p.Type == typ {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// Remove deletes product id. Removing a missing product succeeds.
func (s *Service) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	err := s.store.Delete(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	metrics.ProductWrites.WithLabelValues("delete", "").Inc()
	slog.Info("product deleted", "id", id)
	s.changed(ctx, WSMessage{Type: EventProductDeleted, ProductID: id})
	return nil
}

// Reset removes every product, as returning to the home page does.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	err := s.store.Clear(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	metrics.ProductWrites.WithLabelValues("clear", "").Inc()
	slog.Info("products cleared")
	s.changed(ctx, WSMessage{Type: EventProductsCleared})
	return nil
}

// Count returns the number of stored products.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// Summary aggregates all products with the given rates.
func (s *Service) Summary(ctx context.Context, rates summary.Rates) (summary.Summary, error) {
	products, err := s.store.List(ctx)
	if err != nil {
		return summary.Summary{}, err
	}
	metrics.SummaryRecomputes.WithLabelValues("request").Inc()
	return summary.Aggregate(products, rates), nil
}

// build validates in and assembles the product to store.
func build(in model.Input) (model.Product, error) {
	if errs := validation.Validate(in); len(errs) > 0 {
		for _, e := range errs {
			metrics.ValidationFailures.WithLabelValues(e.Field, e.Code).Inc()
		}
		return model.Product{}, errs
	}
	p, ok := calc.Derive(in)
	if !ok {
		return model.Product{}, fmt.Errorf("%w: %s", ErrUnderivable, in.Type)
	}
	return p, nil
}

// changed publishes a product change and refreshes anything derived from
// the product list.
func (s *Service) changed(ctx context.Context, msg WSMessage) {
	if n, err := s.store.Count(ctx); err == nil {
		metrics.StoredProducts.Set(float64(n))
		msg.Count = n
	}
	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
	s.sessions.RefreshAll(ctx)
}

func (s *Service) publishSummary(u summary.Update) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast(WSMessage{Type: EventSummaryUpdated, Summary: &u})
}
