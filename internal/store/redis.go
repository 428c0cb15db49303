package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/product-calculator/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache for
// single-product reads. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary. Redis
// errors never fail a call.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) Init(ctx context.Context) error {
	if err := s.primary.Init(ctx); err != nil {
		return err
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, reads will hit the primary store", "error", err)
	}
	return nil
}

// Close closes the primary store. The Redis client is owned by the caller.
func (s *CachedStore) Close() error {
	return s.primary.Close()
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Create(ctx context.Context, p *model.Product) (int64, error) {
	id, err := s.primary.Create(ctx, p)
	if err != nil {
		return 0, err
	}
	s.cacheProduct(ctx, p)
	return id, nil
}

func (s *CachedStore) Update(ctx context.Context, id int64, patch model.Product) (*model.Product, error) {
	p, err := s.primary.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, productKey(id))
	return p, nil
}

func (s *CachedStore) Delete(ctx context.Context, id int64) error {
	if err := s.primary.Delete(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, productKey(id))
	return nil
}

func (s *CachedStore) Clear(ctx context.Context) error {
	if err := s.primary.Clear(ctx); err != nil {
		return err
	}
	iter := s.rdb.Scan(ctx, 0, productKeyPattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("scan product cache", "error", err)
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, productKey(id)).Bytes()
	if err == nil {
		var p model.Product
		if json.Unmarshal(data, &p) == nil {
			p.Normalize()
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheProduct(ctx, p)
	return p, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) List(ctx context.Context) ([]model.Product, error) {
	return s.primary.List(ctx)
}

func (s *CachedStore) Count(ctx context.Context) (int, error) {
	return s.primary.Count(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheProduct(ctx context.Context, p *model.Product) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, productKey(p.ID), data, s.ttl)
	}
}

const productKeyPattern = "product:*"

func productKey(id int64) string { return fmt.Sprintf("product:%d", id) }
