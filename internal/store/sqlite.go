package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/atmx/product-calculator/internal/model"
)

// SQLiteStore implements Store on an embedded SQLite file. It is the
// default engine when no PostgreSQL URL is configured.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrStorageUnavailable)
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %v", ErrStorageUnavailable, err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite db: %v", ErrStorageUnavailable, err)
	}
	return &SQLiteStore{db: db, opts: buildOptions(opts)}, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		type        TEXT    NOT NULL,
		name        TEXT    NOT NULL,
		create_time INTEGER NOT NULL,
		update_time INTEGER NOT NULL,
		data        TEXT    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_type ON products (type)`,
	`CREATE INDEX IF NOT EXISTS idx_products_create_time ON products (create_time)`,
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: init schema: %v", ErrStorageUnavailable, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, p *model.Product) (int64, error) {
	now := s.opts.millis()
	data, err := encodeRecord(p)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (type, name, create_time, update_time, data)
		 VALUES (?, ?, ?, ?, ?)`,
		string(p.Type), p.Name, now, now, string(data))
	if err != nil {
		return 0, fmt.Errorf("%w: insert product: %v", ErrWrite, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: insert product: %v", ErrWrite, err)
	}

	p.ID = id
	p.CreateTime = now
	p.UpdateTime = now
	return id, nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, name, create_time, update_time, data
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

func (s *SQLiteStore) Update(ctx context.Context, id int64, patch model.Product) (*model.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.get(ctx, tx, id)
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
	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET type = ?, name = ?, update_time = ?, data = ? WHERE id = ?`,
		string(merged.Type), merged.Name, merged.UpdateTime, string(data), id,
	); err != nil {
		return nil, fmt.Errorf("%w: update product %d: %v", ErrWrite, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrWrite, err)
	}
	return &merged, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete product %d: %v", ErrWrite, id, err)
	}
	return nil
}

// Clear deletes every row. AUTOINCREMENT keeps its high-water mark in
// sqlite_sequence, so new ids continue after the cleared ones.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("%w: clear products: %v", ErrWrite, err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) get(ctx context.Context, q rowQuerier, id int64) (model.Product, error) {
	var (
		createTime, updateTime int64
		typ, name, data        string
	)
	err := q.QueryRowContext(ctx,
		`SELECT type, name, create_time, update_time, data FROM products WHERE id = ?`, id).
		Scan(&typ, &name, &createTime, &updateTime, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, ErrNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return decodeRecord([]byte(data), id, typ, name, createTime, updateTime)
}
