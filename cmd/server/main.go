package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/papertrade/trading-engine/internal/config"
	"github.com/papertrade/trading-engine/internal/feed"
	"github.com/papertrade/trading-engine/internal/leaderboard"
	"github.com/papertrade/trading-engine/internal/metrics"
	"github.com/papertrade/trading-engine/internal/pricecache"
	"github.com/papertrade/trading-engine/internal/store"
	"github.com/papertrade/trading-engine/internal/trade"
	"github.com/papertrade/trading-engine/internal/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := new(config.Config)
	if err := env.Parse(cfg); err != nil {
		slog.Error("config parse failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup []func()

	// --- Redis: price cache, ranked index, store read cache ---
	var rdb *redis.Client
	var cache pricecache.Cache
	var index leaderboard.Index

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		cache = pricecache.NewRedisCache(rdb)
		index = leaderboard.NewRedisIndex(rdb)
		slog.Info("Redis cache and ranked index enabled")
	} else {
		slog.Warn("REDIS_URL not set, using in-memory price cache and index")
		cache = pricecache.NewMemoryCache()
		index = leaderboard.NewMemoryIndex()
	}

	// --- Storage ---
	var st store.Store

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.StoreCacheTTL)
			slog.Info("store read-through cache enabled", "ttl", cfg.StoreCacheTTL.String())
		}
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Broadcast sink with catch-up snapshot on connect ---
	hub := ws.NewHub(func(ctx context.Context) []ws.Message {
		var msgs []ws.Message
		if table, err := cache.All(ctx); err == nil {
			msgs = append(msgs, ws.Message{Type: "prices", Data: table})
		}
		if top, err := index.Top(ctx, cfg.LeaderboardTopK); err == nil {
			msgs = append(msgs, ws.Message{Type: "leaderboard", Data: top})
		}
		return msgs
	})
	go hub.Run()

	// --- Background pipelines ---
	feedClient := feed.NewClient(cfg.FeedURL, cfg.FeedAPIKey, cfg.FeedTimeout)
	refresher := pricecache.NewRefresher(cache, feedClient, cfg.Symbols, cfg.PriceRefreshInterval, hub)
	go refresher.Run(ctx)

	pipeline := leaderboard.NewPipeline(st, cache, index, hub, cfg.LeaderboardInterval, cfg.LeaderboardTopK)
	go pipeline.Run(ctx)

	// --- Engine and HTTP surface ---
	engine := trade.NewEngine(st, cache)
	engine.NotifyOnCommit(pipeline)
	svc := trade.NewService(engine, st, cache, index, cfg.LeaderboardTopK)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"trading-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", hub.HandleWS)

		r.Post("/auth/register", svc.Register)

		r.Post("/trading/trade", svc.SubmitOrder)
		r.Post("/trading/batch", svc.SubmitBatch)
		r.Get("/trading/history", svc.History)

		r.Get("/analytics/holdings", svc.Holdings)
		r.Get("/analytics/portfolio", svc.Portfolio)
		r.Get("/analytics/leaderboard", svc.Leaderboard)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("trading-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down trading-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("trading-engine stopped")
}
