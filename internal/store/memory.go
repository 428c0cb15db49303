package store

import (
	"context"
	"sync"

	"github.com/atmx/product-calculator/internal/model"
)

// MemoryStore implements Store with an in-memory map. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	products map[int64]*model.Product
	lastID   int64
	opts     options
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]*model.Product),
		opts:     buildOptions(opts),
	}
}

func (s *MemoryStore) Init(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Create(_ context.Context, p *model.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.millis()
	s.lastID++
	p.ID = s.lastID
	p.CreateTime = now
	p.UpdateTime = now

	// Store a copy to avoid external mutation.
	stored := p.Clone()
	s.products[p.ID] = &stored
	return p.ID, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := p.Clone()
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p.Clone())
	}
	sortProducts(products)
	return products, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, patch model.Product) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	merged, err := existing.Merge(patch)
	if err != nil {
		return nil, err
	}
	merged.UpdateTime = s.opts.millis()
	s.products[id] = &merged

	out := merged.Clone()
	return &out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.products, id)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// lastID is kept so ids are never reused.
	s.products = make(map[int64]*model.Product)
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.products), nil
}
