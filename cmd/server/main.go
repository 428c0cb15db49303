package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/product-calculator/internal/config"
	"github.com/atmx/product-calculator/internal/metrics"
	"github.com/atmx/product-calculator/internal/product"
	"github.com/atmx/product-calculator/internal/scheduler"
	"github.com/atmx/product-calculator/internal/store"
)

var initOnlyFlag = flag.Bool("init-only", false, "Create the products table and exit")

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})))

	if err := run(cfg); err != nil {
		slog.Error("product-calculator failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("store setup: %w", err)
	}
	defer closeStore()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	err = st.Init(initCtx)
	cancelInit()
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	if *initOnlyFlag {
		slog.Info("products table ready", "engine", cfg.StoreKind())
		return nil
	}
	if n, err := st.Count(context.Background()); err == nil {
		metrics.StoredProducts.Set(float64(n))
		slog.Info("store ready", "engine", cfg.StoreKind(), "products", n)
	}

	hub := product.NewWSHub()
	go hub.Run()
	defer hub.Stop()

	svc := product.NewService(st, hub, cfg.RateDebounce)
	defer svc.Close()

	if cfg.DemoResetSchedule != "" {
		sched := scheduler.New(30 * time.Second)
		if err := sched.AddJob(cfg.DemoResetSchedule, scheduler.ResetJob{Target: svc}); err != nil {
			return fmt.Errorf("DEMO_RESET_SCHEDULE %q: %w", cfg.DemoResetSchedule, err)
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(svc, hub),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("product-calculator listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	slog.Info("product-calculator stopped")
	return nil
}

// openStore builds the engine the configuration selects: PostgreSQL
// (optionally behind the Redis cache), SQLite or memory. The returned func
// releases every connection it opened.
func openStore(cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreKind() {
	case config.StorePostgres:
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
		}
		pg := store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
		if cfg.RedisURL == "" {
			return pg, func() { _ = pg.Close() }, nil
		}

		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		return store.NewCachedStore(pg, rdb, cfg.CacheTTL), func() {
			_ = rdb.Close()
			_ = pg.Close()
		}, nil

	case config.StoreSQLite:
		lite, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using SQLite store", "path", cfg.SQLitePath)
		return lite, func() { _ = lite.Close() }, nil
	}

	slog.Warn("DATABASE_URL and SQLITE_PATH not set, using in-memory store (data will not persist)")
	mem := store.NewMemoryStore()
	return mem, func() { _ = mem.Close() }, nil
}
