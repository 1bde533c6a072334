package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shortlink/internal/config"
	httpHandler "shortlink/internal/handler/http"
	"shortlink/internal/ratelimit"
	"shortlink/internal/repository"
	"shortlink/internal/repository/postgres"
	redisRepo "shortlink/internal/repository/redis"
	"shortlink/internal/repository/sqlite"
	"shortlink/internal/service"
	"shortlink/internal/shortcode"
	"shortlink/internal/visit"
	"shortlink/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.App.LogLevel)
	appLogger.Info("Starting shortlink",
		"environment", cfg.App.Environment,
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
	)

	ctx := context.Background()

	// Store
	store, err := openStore(ctx, cfg)
	if err != nil {
		appLogger.Error("Failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer store.close()
	appLogger.Info("Store ready", "driver", cfg.Store.Driver)

	// Redis is optional: it backs the link cache and the rate limiters
	var serviceOpts []service.Option
	routerOpts := httpHandler.RouterOptions{
		EnableMetrics:  cfg.App.EnableMetrics,
		RequestTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.Redis.Enabled {
		client, err := redisRepo.InitRedis(cfg.Redis.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Error("Failed to connect to Redis", "addr", cfg.Redis.RedisAddr(), "error", err)
			os.Exit(1)
		}
		defer client.Close()

		cache := redisRepo.NewCache(client, cfg.Redis.CacheTTL)
		if cfg.Redis.FlushCacheOnStart {
			if err := cache.Clear(ctx); err != nil {
				appLogger.Error("Failed to flush link cache", "error", err)
				os.Exit(1)
			}
			appLogger.Info("Link cache flushed")
		}
		serviceOpts = append(serviceOpts, service.WithCache(cache))
		if cfg.App.RateLimitEnabled {
			routerOpts.CreateLimiter = ratelimit.NewLimiter(client, "create", cfg.App.RateLimitPerMinute, time.Minute)
			routerOpts.VerifyLimiter = ratelimit.NewLimiter(client, "verify", cfg.App.RateLimitPerMinute, time.Minute)
		}
		appLogger.Info("Redis connected", "addr", cfg.Redis.RedisAddr(), "rate_limit", cfg.App.RateLimitEnabled)
	} else if cfg.App.RateLimitEnabled {
		appLogger.Warn("Rate limiting requires Redis and is disabled")
	}

	allocator := shortcode.NewAllocator(store.links,
		shortcode.WithLength(cfg.App.ShortCodeLength),
		shortcode.WithMaxAttempts(cfg.App.ShortCodeMaxAttempts),
		shortcode.WithLogger(appLogger.Logger),
	)
	recorder := visit.NewRecorder(store.clicks, appLogger.Logger,
		visit.WithTimeout(cfg.App.ClickRecordTimeout),
	)
	linkService := service.NewLinkService(store.links, store.clicks, allocator, recorder, appLogger.Logger, serviceOpts...)

	handler := httpHandler.NewHandler(linkService, store.links, appLogger.Logger, cfg.Server.BaseURL)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      httpHandler.NewRouter(handler, appLogger.Logger, routerOpts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("Server starting", "address", server.Addr, "base_url", cfg.Server.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	// Redirects return before their click is written
	if err := recorder.Wait(shutdownCtx); err != nil {
		appLogger.Warn("Pending click recordings abandoned", "error", err)
	}

	appLogger.Info("Server exited gracefully")
}

type linkStore struct {
	links  repository.LinkRepository
	clicks repository.ClickRepository
	close  func()
}

func openStore(ctx context.Context, cfg *config.Config) (*linkStore, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &linkStore{
			links:  sqlite.NewLinkRepository(db),
			clicks: sqlite.NewClickRepository(db),
			close:  func() { db.Close() },
		}, nil

	default:
		pool, err := postgres.InitDB(
			ctx,
			cfg.Database.DatabaseDSN(),
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &linkStore{
			links:  postgres.NewLinkRepository(pool),
			clicks: postgres.NewClickRepository(pool),
			close:  pool.Close,
		}, nil
	}
}
