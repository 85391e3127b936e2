package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"stitch/internal/config"
	"stitch/internal/handler"
	"stitch/internal/markers"
	"stitch/internal/metrics"
	"stitch/internal/middleware"
	"stitch/internal/repository/postgres"
	postgresLinker "stitch/internal/repository/postgres/linker"
	linkerSvc "stitch/internal/service/linker"
	requestsSvc "stitch/internal/service/requests"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to setup log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Load upstream marker strings
	markerSet, err := markers.Load()
	if err != nil {
		log.Fatalf("Failed to load markers: %v", err)
	}

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	requestRepo := postgresLinker.NewRequestRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	if err := requestRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// Prometheus metrics
	m := metrics.New()

	// Parent lookup cache (optional performance aid, never a correctness
	// dependency)
	var cache *linkerSvc.LookupCache
	if cfg.CacheMaxEntries > 0 {
		cache = linkerSvc.NewLookupCache(cfg.CacheMaxEntries, cfg.CacheTTL)
	}

	// Correlation engine and write path
	engine := linkerSvc.NewService(
		requestRepo,
		requestRepo,
		requestRepo,
		markerSet,
		linkerSvc.Config{
			SubtaskWindow:      cfg.SubtaskWindow,
			TaskLookback:       cfg.TaskLookback,
			SummaryPrefixRunes: cfg.SummaryPrefixRunes,
		},
		cache,
		m,
		logger,
	)
	requestService := requestsSvc.NewService(engine, requestRepo, requestRepo, txManager, markerSet, logger)

	requestHandler := handler.NewRequestHandler(requestService, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", requestHandler.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Correlation routes
	mux.HandleFunc("POST /api/requests", requestHandler.IngestRequest)
	mux.HandleFunc("GET /api/requests/{id}", requestHandler.GetRequest)
	mux.HandleFunc("POST /api/requests/{id}/response", requestHandler.AttachResponse)
	mux.HandleFunc("GET /api/conversations/{id}", requestHandler.GetConversation)

	// Build middleware chain
	var h http.Handler = mux
	h = middleware.Recovery(logger)(h)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
