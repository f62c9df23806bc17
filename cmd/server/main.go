// Command server is the composition root for the RAG MCP platform: it
// loads configuration, wires the four backend adapters, the embedding
// client, hybrid search, the auth/audit/rate-limit collaborators, the
// tool registry, and the dispatcher, then starts the MCP-over-HTTP
// transport. Structure follows the teacher's
// apps/mcp-server/cmd/server/main.go composition root, trimmed to this
// module's actual collaborators.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragforge/rag-mcp/internal/adapters/keyword"
	"github.com/ragforge/rag-mcp/internal/adapters/object"
	"github.com/ragforge/rag-mcp/internal/adapters/relational"
	"github.com/ragforge/rag-mcp/internal/adapters/vector"
	"github.com/ragforge/rag-mcp/internal/audit"
	"github.com/ragforge/rag-mcp/internal/auth"
	"github.com/ragforge/rag-mcp/internal/cache"
	"github.com/ragforge/rag-mcp/internal/config"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/embedding"
	"github.com/ragforge/rag-mcp/internal/observability"
	"github.com/ragforge/rag-mcp/internal/ratelimit"
	"github.com/ragforge/rag-mcp/internal/search"
	"github.com/ragforge/rag-mcp/internal/tools"
	"github.com/ragforge/rag-mcp/internal/transport/httpapi"
	"github.com/ragforge/rag-mcp/internal/transport/mcpsdk"
)

var (
	version = "dev"

	configFile  = flag.String("config", "", "path to a YAML configuration file")
	showVersion = flag.Bool("version", false, "print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("rag-mcp server %s\n", version)
		os.Exit(0)
	}

	logger := observability.NewStandardLogger("rag-mcp")

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewPrometheusMetrics(prometheus.NewRegistry())

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to connect to database", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	cacheClient, err := initCache(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize cache", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer cacheClient.Close()

	vectorStore, err := vector.New(cfg.VectorIndex.RootDir, cfg.VectorIndex.CacheSize)
	if err != nil {
		logger.Error("failed to initialize vector index", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	objectStore, err := object.New(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Error("failed to initialize object store", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	keywordStore, err := keyword.New(ctx, cfg.KeywordIndex.Addresses, cfg.KeywordIndex.Username, cfg.KeywordIndex.Password)
	if err != nil {
		logger.Error("failed to initialize keyword index", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	relationalStore := relational.New(db)

	embedder := newEmbedder(cfg, logger)

	hybridService := search.NewService(
		search.NewVectorArm(embedder, vectorStore),
		search.NewKeywordArm(keywordStore),
		search.Config{
			VectorWeight:  cfg.Search.VectorWeight,
			KeywordWeight: cfg.Search.KeywordWeight,
			PerArmTimeout: cfg.Search.PerArmTimeout,
		},
		logger,
	)

	authService := auth.NewService(auth.ServiceConfig{
		JWTSecret:     cfg.Auth.JWTSecret,
		JWTExpiration: cfg.Auth.JWTExpiration,
	}, db, cacheClient, logger)

	auditLogger := audit.NewLogger(audit.Config{
		QueueSize:   cfg.Audit.QueueSize,
		WorkerCount: cfg.Audit.WorkerCount,
	}, relationalStore, logger, metrics)
	defer auditLogger.Close()

	var rateLimiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
			Enabled:          cfg.RateLimit.Enabled,
			DefaultPerMinute: cfg.RateLimit.DefaultPerMinute,
			LocalBurst:       10,
		}, cacheClient, logger)
	}

	registry := dispatcher.NewRegistry()
	tools.Register(registry, &tools.Deps{
		Relational: relationalStore,
		Vector:     vectorStore,
		Object:     objectStore,
		Keyword:    keywordStore,
		Embedder:   embedder,
		Hybrid:     hybridService,
		Auth:       authService,
		Cache:      cacheClient,
		Logger:     logger,
		Metrics:    metrics,
		BackupRoot: cfg.Backup.RootDir,
	})

	d := dispatcher.New(registry, authService, relationalStore, rateLimiter, auditLogger, logger, metrics)

	server := httpapi.NewServer(d, httpapi.Config{
		ListenAddress: cfg.Server.ListenAddress,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
	}, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	if cfg.Server.EnableStdio {
		stdioServer := mcpsdk.NewServer(d, registry, mcpsdk.Config{
			Name:    "rag-mcp",
			Version: version,
			APIKey:  os.Getenv("RAG_STDIO_API_KEY"),
		}, logger)
		go func() {
			if err := stdioServer.Run(ctx); err != nil {
				logger.Error("stdio transport stopped", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	waitForShutdown(ctx, server, serverErrCh, logger)
	logger.Info("server stopped gracefully", nil)
}

func initCache(ctx context.Context, cfg *config.Config, logger observability.Logger) (cache.Cache, error) {
	if !cfg.Cache.Enabled {
		logger.Warn("cache disabled, using in-process memory cache", nil)
		return cache.NewMemoryCache(), nil
	}
	return cache.NewRedisCache(ctx, cache.RedisConfig{
		Address:  cfg.Cache.Address,
		Password: cfg.Cache.Password,
		Database: cfg.Cache.Database,
	})
}

// newEmbedder selects the static, dependency-free embedder for local
// development or the HTTP embedder when an endpoint is configured. The
// embedding model server is treated as an opaque external collaborator.
func newEmbedder(cfg *config.Config, logger observability.Logger) embedding.Embedder {
	endpoint := os.Getenv("EMBEDDING_SERVICE_URL")
	if endpoint == "" {
		logger.Warn("EMBEDDING_SERVICE_URL not set, using static deterministic embedder", nil)
		return embedding.NewStaticEmbedder(256)
	}
	return embedding.NewHTTPEmbedder(endpoint, 10*time.Second)
}

func waitForShutdown(ctx context.Context, server *httpapi.Server, serverErrCh <-chan error, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", map[string]interface{}{"signal": sig.String()})
	case err := <-serverErrCh:
		logger.Error("server error", map[string]interface{}{"error": err.Error()})
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
