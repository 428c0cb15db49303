// Package store defines the persistence interface for calculator products.
// Implementations include PostgreSQL, SQLite (embedded, single file),
// Redis (read-through cache in front of another store) and in-memory (for
// testing and throwaway demos).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/atmx/product-calculator/internal/model"
)

var (
	// ErrNotFound is returned when the requested product id is absent.
	ErrNotFound = errors.New("store: product not found")

	// ErrStorageUnavailable is returned when the engine cannot be opened
	// or initialized.
	ErrStorageUnavailable = errors.New("store: storage unavailable")

	// ErrWrite is returned when a write could not be persisted. Nothing
	// is partially written.
	ErrWrite = errors.New("store: write failed")
)

// Store is the product persistence interface: one logical table keyed by
// an auto-assigned integer id, indexed by type and creation time.
//
// Ids start at 1 and are never reused, not even after Delete or Clear.
type Store interface {
	// Init creates the products table and its indexes if absent. It is
	// idempotent.
	Init(ctx context.Context) error

	// Create assigns id, CreateTime and UpdateTime, inserts the product
	// and returns the new id. p is updated in place on success.
	Create(ctx context.Context, p *model.Product) (int64, error)

	// GetByID returns one product or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*model.Product, error)

	// List returns every product ordered by CreateTime, then id.
	List(ctx context.Context) ([]model.Product, error)

	// Update merges patch over the stored product (see model.Product.Merge),
	// keeps CreateTime, refreshes UpdateTime and returns the result. A
	// patch that does not fit the stored type fails with
	// model.ErrVariantMismatch and nothing is written.
	Update(ctx context.Context, id int64, patch model.Product) (*model.Product, error)

	// Delete removes one product. Deleting an absent id succeeds.
	Delete(ctx context.Context, id int64) error

	// Clear removes every product.
	Clear(ctx context.Context) error

	// Count returns the number of stored products.
	Count(ctx context.Context) (int, error)

	// Close releases the engine.
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the timestamp source (time.Now by default).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) millis() int64 {
	return o.now().UnixMilli()
}

// sortProducts orders by CreateTime, breaking ties by id.
func sortProducts(ps []model.Product) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].CreateTime != ps[j].CreateTime {
			return ps[i].CreateTime < ps[j].CreateTime
		}
		return ps[i].ID < ps[j].ID
	})
}

// encodeRecord serializes the flat product record stored by the SQL
// engines.
func encodeRecord(p *model.Product) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: encode product: %v", ErrWrite, err)
	}
	return data, nil
}

// decodeRecord rebuilds a product from its stored JSON, taking identity,
// type, name and timestamps from the indexed columns.
func decodeRecord(data []byte, id int64, typ, name string, createTime, updateTime int64) (model.Product, error) {
	var p model.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Product{}, fmt.Errorf("decode product %d: %w", id, err)
	}
	p.Normalize()
	p.ID = id
	p.Type = model.Type(typ)
	p.Name = name
	p.CreateTime = createTime
	p.UpdateTime = updateTime
	return p, nil
}
