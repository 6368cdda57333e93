package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/halgrim/skilldex/internal/api"
	"github.com/halgrim/skilldex/internal/cache"
	"github.com/halgrim/skilldex/internal/config"
	"github.com/halgrim/skilldex/internal/embedding"
	"github.com/halgrim/skilldex/internal/harness"
	"github.com/halgrim/skilldex/internal/index"
	"github.com/halgrim/skilldex/internal/registry"
	_ "github.com/halgrim/skilldex/internal/skills"
	"github.com/halgrim/skilldex/internal/store"
	"github.com/halgrim/skilldex/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting skilldex...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/skilldex.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Definition store
	pgStore, err := store.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	if err := pgStore.Migrate(context.Background()); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Definition cache (optional)
	var defCache *cache.DefinitionCache
	if cfg.Database.Redis.URL != "" {
		ttl := time.Duration(cfg.Database.Redis.TTLSeconds) * time.Second
		dc, cacheErr := cache.New(cfg.Database.Redis.URL, ttl, logger)
		if cacheErr != nil {
			logger.Warn("redis unavailable, running without cache", zap.Error(cacheErr))
		} else {
			defCache = dc
		}
	}

	// Vector collection
	vectors, err := vectorstore.NewClient(vectorstore.QdrantConfig{
		Host: cfg.Database.Qdrant.Host,
		Port: cfg.Database.Qdrant.Port,
	})
	if err != nil {
		logger.Fatal("qdrant unavailable", zap.Error(err))
	}

	embedder, err := embedding.NewProvider(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		logger.Fatal("embedding provider", zap.Error(err))
	}

	var idxCache index.DefinitionCache
	if defCache != nil {
		idxCache = defCache
	}
	idx := index.New(pgStore, idxCache, vectors, embedder, cfg.Index.Collection, logger)

	// Skills compiled in-tree run natively; everything else runs through
	// the sandboxed snippet path.
	runner := harness.New(idx, idx, logger, harness.WithCompiledHandlers(registry.Get))

	handler := api.NewHandler(idx, runner, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("skilldex listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down skilldex...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	if defCache != nil {
		defCache.Close()
	}
	vectors.Close()
	pgStore.Close()
}
