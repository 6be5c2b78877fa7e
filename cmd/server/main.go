package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/easyaudio/easyaudio/internal/admin"
	"github.com/easyaudio/easyaudio/internal/api"
	"github.com/easyaudio/easyaudio/internal/cache"
	"github.com/easyaudio/easyaudio/internal/config"
	"github.com/easyaudio/easyaudio/internal/db"
	"github.com/easyaudio/easyaudio/internal/engine"
	"github.com/easyaudio/easyaudio/internal/provider"
	"github.com/easyaudio/easyaudio/internal/quota"
	"github.com/easyaudio/easyaudio/internal/ratelimit"
	"github.com/easyaudio/easyaudio/internal/tenantauth"
	"github.com/easyaudio/easyaudio/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	database, err := db.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Migrate(context.Background()); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	limiter, err := ratelimit.New(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to initialize rate limiter", "error", err)
		os.Exit(1)
	}
	defer limiter.Close()

	store, err := cache.NewStore(cfg.CacheRoot, logger)
	if err != nil {
		logger.Error("failed to initialize audio cache", "error", err)
		os.Exit(1)
	}
	evictor := cache.NewEvictor(store, cfg.CacheMaxBytes, cfg.CacheMaxFiles, logger)

	eng := engine.New(engine.Options{
		Cache:        store,
		Evictor:      evictor,
		Ledger:       quota.NewLedger(database, quota.DefaultPolicy(), logger),
		Provider:     provider.NewElevenLabs(cfg.ElevenLabsAPIKey, "", logger),
		Accountant:   usage.NewAccountant(logger),
		TenantScoped: cfg.CacheScope == config.ScopeTenant,
		Logger:       logger,
	})

	resolver := tenantauth.NewResolver(database, cfg.DemoMode, logger)

	router := mux.NewRouter()
	router.Use(api.RequestID, api.AccessLog(logger))

	admin.NewHandler(database, evictor, cfg.AdminSecret, cfg.JWTSecret, logger).RegisterRoutes(router)
	api.NewHandler(cfg, eng, resolver, limiter, logger).RegisterRoutes(router)

	// Rendered audio is served straight off the cache directory; entry names
	// are fingerprints, so URLs are stable and unguessable.
	router.PathPrefix("/cache/").Handler(
		http.StripPrefix("/cache/", http.FileServer(http.Dir(store.Root()))))

	logger.Info("server starting",
		"port", cfg.ServerPort,
		"cache_scope", cfg.CacheScope,
		"cache_root", store.Root())
	if err := http.ListenAndServe(":"+cfg.ServerPort, router); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
