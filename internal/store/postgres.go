package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/product-calculator/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Type, name and timestamps are indexed columns; the variant and fee fields
// travel as a JSONB record whose decimals are encoded as strings, so no
// precision is lost.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	return &PostgresStore{pool: pool, opts: buildOptions(opts)}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          BIGSERIAL PRIMARY KEY,
		type        TEXT   NOT NULL,
		name        TEXT   NOT NULL,
		create_time BIGINT NOT NULL,
		update_time BIGINT NOT NULL,
		data        JSONB  NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_type ON products (type)`,
	`CREATE INDEX IF NOT EXISTS idx_products_create_time ON products (create_time)`,
}

func (s *PostgresStore) Init(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: init schema: %v", ErrStorageUnavailable, err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, p *model.Product) (int64, error) {
	now := s.opts.millis()
	data, err := encodeRecord(p)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO products (type, name, create_time, update_time, data)
		 VALUES ($1, $2, $3, $4, $5::JSONB)
		 RETURNING id`,
		string(p.Type), p.Name, now, now, string(data),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert product: %v", ErrWrite, err)
	}

	p.ID = id
	p.CreateTime = now
	p.UpdateTime = now
	return id, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.get(ctx, s.pool, id, "")
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, name, create_time, update_time, data::TEXT
		 FROM products ORDER BY create_time, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var (
			id, createTime, updateTime int64
			typ, name, data            string
		)
		if err := rows.Scan(&id, &typ, &name, &createTime, &updateTime, &data); err != nil {
			return nil, err
		}
		p, err := decodeRecord([]byte(data), id, typ, name, createTime, updateTime)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, id int64, patch model.Product) (*model.Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrWrite, err)
	}
	defer tx.Rollback(ctx)

	existing, err := s.get(ctx, tx, id, " FOR UPDATE")
	if err != nil {
		return nil, err
	}
	merged, err := existing.Merge(patch)
	if err != nil {
		return nil, err
	}
	merged.UpdateTime = s.opts.millis()

	data, err := encodeRecord(&merged)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE products SET type = $1, name = $2, update_time = $3, data = $4::JSONB
		 WHERE id = $5`,
		string(merged.Type), merged.Name, merged.UpdateTime, string(data), id,
	); err != nil {
		return nil, fmt.Errorf("%w: update product %d: %v", ErrWrite, id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrWrite, err)
	}
	return &merged, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%w: delete product %d: %v", ErrWrite, id, err)
	}
	return nil
}

// Clear deletes every row but leaves the id sequence untouched.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("%w: clear products: %v", ErrWrite, err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) get(ctx context.Context, q querier, id int64, lock string) (model.Product, error) {
	var (
		createTime, updateTime int64
		typ, name, data        string
	)
	err := q.QueryRow(ctx,
		`SELECT type, name, create_time, update_time, data::TEXT
		 FROM products WHERE id = $1`+lock, id).
		Scan(&typ, &name, &createTime, &updateTime, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Product{}, ErrNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return decodeRecord([]byte(data), id, typ, name, createTime, updateTime)
}
