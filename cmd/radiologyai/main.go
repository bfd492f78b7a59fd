package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/config"
	dbRedis "github.com/ishan121028/RadiologyAI/internal/db/redis"
	"github.com/ishan121028/RadiologyAI/internal/domain"
	logpkg "github.com/ishan121028/RadiologyAI/internal/logger"
	"github.com/ishan121028/RadiologyAI/internal/metrics"
	documentrepo "github.com/ishan121028/RadiologyAI/internal/repository/document"
	"github.com/ishan121028/RadiologyAI/internal/repository/embcache"
	"github.com/ishan121028/RadiologyAI/internal/repository/extractcache"
	searchrepo "github.com/ishan121028/RadiologyAI/internal/repository/search"
	chiTransport "github.com/ishan121028/RadiologyAI/internal/transport/chi"
	"github.com/ishan121028/RadiologyAI/internal/transport/landingai"
	mcpTransport "github.com/ishan121028/RadiologyAI/internal/transport/mcp"
	openaiProvider "github.com/ishan121028/RadiologyAI/internal/transport/openai"
	alertuc "github.com/ishan121028/RadiologyAI/internal/usecase/alertbroker"
	extractuc "github.com/ishan121028/RadiologyAI/internal/usecase/extract"
	healthuc "github.com/ishan121028/RadiologyAI/internal/usecase/health"
	indexuc "github.com/ishan121028/RadiologyAI/internal/usecase/index"
	ingestuc "github.com/ishan121028/RadiologyAI/internal/usecase/ingest"
	queryuc "github.com/ishan121028/RadiologyAI/internal/usecase/query"
	"github.com/ishan121028/RadiologyAI/internal/version"
	"github.com/ishan121028/RadiologyAI/internal/watcher"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting RadiologyAI server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("watch_dir", cfg.Watch.Dir),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register provider and pipeline metrics explicitly (no init())
	metrics.RegisterProviderMetrics()
	metrics.RegisterPipelineMetrics()

	// Repositories
	docRepo := documentrepo.New(store, cfg.Embedding.Dimensions).WithHNSW(documentrepo.HNSWConfig{
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	})
	if err := docRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}
	searchRepo := searchrepo.New(store)

	// Embedder chain: OpenAI -> Cached
	baseEmbedder := openaiProvider.NewEmbedder(&openaiProvider.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	var embedder domain.Embedder = embcache.New(baseEmbedder, store, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Document index
	idxSvc := indexuc.New(docRepo, searchRepo, embedder, cfg.Embedding.Dimensions, logger)
	if err := idxSvc.Warm(ctx); err != nil {
		logger.Fatal("Failed to warm index counters", zap.Error(err))
	}

	// Alert broker, fed by index notifications
	broker := alertuc.New(alertuc.Config{
		Threshold: cfg.AlertThreshold(),
		QueueSize: cfg.Alerts.QueueSize,
		Retention: cfg.Alerts.Retention,
	}, logger)
	idxSvc.Observe(ingestuc.NotifyBroker(broker))

	// Extraction: rate-limited parsing provider behind a fingerprint cache
	parser := landingai.New(&landingai.Config{
		BaseURL: cfg.Extraction.BaseURL,
		APIKey:  cfg.Extraction.APIKey,
		Timeout: time.Duration(cfg.Extraction.TimeoutSec) * time.Second,
		Logger:  logger,
	})
	parseCache := extractcache.New(store, time.Duration(cfg.Extraction.CacheTTLHours)*time.Hour, logger)
	extractSvc := extractuc.New(parser, parseCache, extractuc.Config{
		Timeout:       time.Duration(cfg.Extraction.TimeoutSec) * time.Second,
		RatePerSecond: cfg.Extraction.RatePerSecond,
		Burst:         cfg.Extraction.Burst,
		MinConfidence: cfg.Extraction.MinConfidence,
	}, logger)

	// Filesystem watcher and ingest pipeline
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fsw := watcher.New(cfg.Watch.Dir, cfg.Watch.QueueSize, logger)
	go func() {
		if err := fsw.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("Watcher failed", zap.Error(err))
		}
	}()

	pipeline := ingestuc.New(fsw.Events(), extractSvc, idxSvc, cfg.Extraction.Workers, logger)
	go pipeline.Run(runCtx)

	// Query answering
	generator := openaiProvider.NewGenerator(&openaiProvider.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Provider:    cfg.Generation.Provider,
		Logger:      logger,
	})
	querySvc := queryuc.New(idxSvc, generator, cfg.Generation.TopK, logger)

	// Health service checks the providers directly, bypassing the cache
	healthSvc := healthuc.New(store, baseEmbedder, generator)

	// HTTP surface
	server := chiTransport.NewServer(idxSvc, querySvc, broker, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	server.Register(r)

	// MCP tool surface
	if cfg.MCP.Enabled {
		mcpSrv, err := mcpTransport.NewServer(&mcpTransport.Ports{
			Alerts: broker,
			Stats:  idxSvc,
		})
		if err != nil {
			logger.Fatal("Failed to create MCP server", zap.Error(err))
		}
		go func() {
			var err error
			switch cfg.MCP.Transport {
			case "http":
				logger.Info("Starting MCP server", zap.String("transport", "http"), zap.String("addr", cfg.MCP.Addr))
				err = mcpSrv.RunHTTP(runCtx, cfg.MCP.Addr)
			default:
				logger.Info("Starting MCP server", zap.String("transport", "stdio"))
				err = mcpSrv.Run(runCtx)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP server stopped", zap.Error(err))
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	// Stop the watcher and pipeline before draining HTTP
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
