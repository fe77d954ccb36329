package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cardfolio-api/internal/config"
	"cardfolio-api/internal/handler"
	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/metrics"
	"cardfolio-api/internal/middleware"
	"cardfolio-api/internal/repository"
	"cardfolio-api/internal/router"
	"cardfolio-api/internal/service"
	"cardfolio-api/internal/session"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.New(&logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting cardfolio api",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("store", cfg.Store.Type),
	)

	m := metrics.NewCollector("cardfolio")

	// Initialize the document store based on config
	backend, err := openStore(&cfg.Store)
	if err != nil {
		log.Fatal("failed to open document store", zap.String("type", cfg.Store.Type), zap.Error(err))
	}
	var store repository.DocumentStore = backend
	if cfg.Store.BreakerEnabled {
		bc := repository.DefaultBreakerConfig()
		bc.Timeout = cfg.Store.BreakerTimeout
		store = repository.NewBreakerStore(backend, bc, m)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close document store", zap.Error(err))
		}
	}()
	log.Info("document store initialized", zap.String("type", cfg.Store.Type))

	// Initialize Redis client for session tokens
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, sessions disabled", zap.String("addr", cfg.Redis.Address()), zap.Error(err))
		_ = redisClient.Close()
		redisClient = nil
	} else {
		log.Info("redis client initialized", zap.String("addr", cfg.Redis.Address()))
	}
	cancel()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Session and caches
	sess := session.NewManager(log)
	defer sess.Close()

	deps := service.Deps{
		Store:        store,
		Session:      sess,
		Logger:       log,
		Metrics:      m,
		FetchTimeout: cfg.Store.FetchTimeout,
	}
	profile := service.NewProfileCache(deps)
	valuation := service.NewValuationHistoryCache(deps)
	actions := service.NewActionLogCache(deps)
	inventory := service.NewInventoryCache(deps, profile, valuation, actions)
	directory := service.NewFriendDirectory(deps, profile, service.DirectoryConfig{
		Size: cfg.Directory.Size,
		TTL:  cfg.Directory.TTL,
	})
	migrations := service.NewMigrations(deps, profile)

	runCtx, stopCaches := context.WithCancel(context.Background())
	profile.Start(runCtx)
	valuation.Start(runCtx)
	actions.Start(runCtx)
	inventory.Start(runCtx)

	snapshots := service.NewSnapshotScheduler(deps, inventory, valuation, service.SnapshotConfig{
		Spec:    cfg.Jobs.SnapshotSpec,
		Timeout: cfg.Jobs.SnapshotTimeout,
	})
	if err := snapshots.Start(); err != nil {
		log.Fatal("failed to start snapshot scheduler", zap.Error(err))
	}

	// Auth
	var tokens *session.TokenStore
	if redisClient != nil {
		tokens = session.NewTokenStore(redisClient, cfg.Redis.SessionTTL)
	}
	var authHandler *handler.AuthHandler
	if tokens != nil && cfg.Auth.IDTokenSecret != "" {
		verifier, err := session.NewVerifier(cfg.Auth.IDTokenSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			log.Fatal("invalid identity token settings", zap.Error(err))
		}
		authHandler = handler.NewAuthHandler(verifier, tokens, sess, log)
	} else {
		log.Warn("session creation disabled, set ID_TOKEN_SECRET and REDIS_HOST")
	}

	authCfg := middleware.AuthConfig{Session: sess, Logger: log}
	if tokens != nil {
		authCfg.Tokens = tokens
	}

	streams := handler.NewStreamHandler(handler.StreamSources{
		Session:   sess,
		Profile:   profile,
		Inventory: inventory,
		Valuation: valuation,
		Actions:   actions,
	})

	r := router.New(router.Config{
		Handler:          handler.New(store, cfg.App.Version),
		AuthHandler:      authHandler,
		ProfileHandler:   handler.NewProfileHandler(profile, directory),
		InventoryHandler: handler.NewInventoryHandler(inventory),
		HistoryHandler:   handler.NewHistoryHandler(valuation, actions),
		DirectoryHandler: handler.NewDirectoryHandler(directory),
		AdminHandler:     handler.NewAdminHandler(profile, migrations, snapshots, store, cfg.Store.Type),
		StreamHandler:    streams,
		AuthMiddleware:   middleware.NewAuthMiddleware(authCfg),
		AllowedOrigins:   cfg.Server.Origins(),
		Logger:           log,
		Metrics:          m,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	srv.RegisterOnShutdown(streams.Close)

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("server shutdown error", zap.Error(err))
	}

	snapshots.Stop()
	stopCaches()
	inventory.Stop()
	actions.Stop()
	valuation.Stop()
	profile.Stop()

	log.Info("server stopped")
}

// openStore opens the configured document store backend.
func openStore(cfg *config.StoreConfig) (repository.DocumentStore, error) {
	switch cfg.Type {
	case "mongodb", "mongo":
		return repository.NewMongoStore(cfg.MongoURI, cfg.MongoDatabase)
	case "postgres", "postgresql":
		return repository.NewPostgresStore(cfg.PostgresDSN())
	case "mysql":
		return repository.NewMySQLStore(cfg.MySQLDSN())
	case "memory":
		return repository.NewMemoryStore(), nil
	default:
		return repository.NewSQLiteStore(cfg.Path)
	}
}
