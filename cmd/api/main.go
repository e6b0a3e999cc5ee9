// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/offerbuddy/offerbuddy/internal/api"
	"github.com/offerbuddy/offerbuddy/internal/auth"
	"github.com/offerbuddy/offerbuddy/internal/catalog"
	"github.com/offerbuddy/offerbuddy/internal/config"
	"github.com/offerbuddy/offerbuddy/internal/db"
	"github.com/offerbuddy/offerbuddy/internal/geocode"
	"github.com/offerbuddy/offerbuddy/internal/health"
	"github.com/offerbuddy/offerbuddy/internal/location"
	"github.com/offerbuddy/offerbuddy/internal/middleware"
	"github.com/offerbuddy/offerbuddy/internal/search"
	"github.com/offerbuddy/offerbuddy/internal/stats"
	"github.com/offerbuddy/offerbuddy/internal/tracing"
	"github.com/offerbuddy/offerbuddy/internal/upload"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if *help {
		fmt.Println("Offer Buddy API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := cfg.LogSummary()
	attrs := make([]any, 0, len(summary)*2)
	for k, v := range summary {
		attrs = append(attrs, k, v)
	}
	logger.Info("configuration loaded", attrs...)

	ctx := context.Background()

	// Tracing is opt-in via the standard OTLP endpoint variable.
	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	tracingProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "offerbuddy-api",
		Enabled:      otlpEndpoint != "",
		Environment:  cfg.Env,
		ExporterType: "otlp-grpc",
		OTLPEndpoint: otlpEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()

	// Database
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.CheckPostGIS(ctx, database); err != nil {
		logger.Error("postgis check failed", "error", err)
		os.Exit(1)
	}

	productRepo := catalog.NewPostgresProductRepository(database, logger)
	vendorRepo := catalog.NewPostgresVendorRepository(database, logger)

	// Redis backs session location state and distributed rate limiting when
	// configured; both fall back to in-process stores without it.
	var redisClient *redis.Client
	var locationStore location.Store = location.NewInMemoryStore()
	var rateLimitStore middleware.RateLimitStore

	memoryLimits := middleware.NewInMemoryRateLimitStore()
	rateLimitStore = memoryLimits
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		locationStore = location.NewRedisStore(redisClient)
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient)
	}

	// Metrics
	metrics := middleware.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	searchMetrics := search.NewMetrics()
	if err := searchMetrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register search metrics", "error", err)
		os.Exit(1)
	}

	// Location resolution
	var geocoder geocode.Geocoder
	if cfg.GeocoderURL != "" {
		geocoder = geocode.NewClient(cfg.GeocoderURL, 24*time.Hour, logger)
	}
	detector := geocode.NewIPLocator(cfg.IPLookupURL, logger)
	resolver := location.NewResolver(locationStore, detector, geocoder, logger, location.Options{
		DetectTimeout: time.Duration(cfg.DetectTimeoutSeconds) * time.Second,
		StaleAfter:    time.Duration(cfg.LocationStaleHours) * time.Hour,
	})

	// View counting
	viewTracker := stats.NewViewTracker(
		productRepo,
		time.Duration(cfg.ViewFlushIntervalSeconds)*time.Second,
		logger,
	)
	viewTracker.Start()

	// Search
	engine := search.NewEngine(productRepo, vendorRepo, searchMetrics)

	// Auth
	currentSecret, previousSecret := cfg.GetJWTSecrets()
	jwtService := auth.NewJWTServiceWithRotation(currentSecret, previousSecret)

	// Handlers
	searchHandlers := api.NewSearchHandlers(engine, resolver)
	locationHandlers := api.NewLocationHandlers(resolver)
	catalogHandlers := api.NewCatalogHandlers(productRepo, vendorRepo, viewTracker)

	healthConfig := api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(database),
		MetricsEnabled: true,
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}
	healthHandlers := api.NewHealthHandlers(healthConfig)

	handlers := routeHandlers{
		search:   searchHandlers,
		location: locationHandlers,
		catalog:  catalogHandlers,
		health:   healthHandlers,
	}

	// Uploads require R2 credentials; the routes are absent without them.
	if cfg.R2BucketName != "" {
		uploadService, err := upload.NewService(upload.ServiceConfig{
			BucketName:      cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
			MaxSizeMB:       cfg.R2MaxUploadSizeMB,
		})
		if err != nil {
			logger.Error("failed to create upload service", "error", err)
			os.Exit(1)
		}
		handlers.upload = api.NewUploadHandlers(uploadService, jwtService)
	} else {
		logger.Warn("R2 not configured, upload signing disabled")
	}

	mux := newMux(handlers)

	// Purge stale in-memory rate limit buckets periodically.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				memoryLimits.Cleanup()
			case <-cleanupDone:
				return
			}
		}
	}()

	rateLimit := middleware.DefaultGlobalLimit()
	if cfg.RateLimitPerMinute > 0 {
		rateLimit.RequestsPerWindow = cfg.RateLimitPerMinute
		rateLimit.WindowDuration = time.Minute
	}

	handler := applyMiddleware(mux, logger, metrics, rateLimitStore, rateLimit)

	if cfg.Env == "development" {
		handler = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(handler)
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	close(cleanupDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Flush buffered view counts before exiting.
	if err := viewTracker.Stop(shutdownCtx); err != nil {
		logger.Error("failed to flush view counts", "error", err)
	}
	viewTracker.LogSummary(logger)

	logger.Info("server stopped")
}

// routeHandlers collects the handler structs the route table needs.
// upload may be nil when R2 is not configured.
type routeHandlers struct {
	search   *api.SearchHandlers
	location *api.LocationHandlers
	catalog  *api.CatalogHandlers
	health   *api.HealthHandlers
	upload   *api.UploadHandlers
}

// newMux builds the server's route table.
func newMux(h routeHandlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /search/products", h.search.SearchProducts)
	mux.HandleFunc("GET /search/vendors", h.search.SearchVendors)

	mux.HandleFunc("GET /session/location", h.location.Current)
	mux.HandleFunc("POST /session/location/detect", h.location.Detect)
	mux.HandleFunc("PUT /session/location", h.location.Select)
	mux.HandleFunc("DELETE /session/location", h.location.Clear)

	mux.HandleFunc("GET /products/{id}", h.catalog.GetProduct)
	mux.HandleFunc("POST /products/{id}/view", h.catalog.RecordView)
	mux.HandleFunc("GET /vendors/{id}", h.catalog.GetVendor)

	if h.upload != nil {
		mux.HandleFunc("POST /uploads/sign", h.upload.SignUpload)
		mux.HandleFunc("POST /uploads/finalize", h.upload.FinalizeUpload)
	}

	mux.HandleFunc("/health", h.health.Health)
	mux.HandleFunc("/ready", h.health.Ready)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"offerbuddy-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	return mux
}

// applyMiddleware wraps the mux in the standard chain:
// RequestID -> Tracing -> HTTPMetrics -> Logging -> RateLimiter.
func applyMiddleware(mux http.Handler, logger *slog.Logger, metrics *middleware.Metrics, store middleware.RateLimitStore, limit middleware.RateLimitConfig) http.Handler {
	handler := middleware.RateLimiter(store, limit, middleware.SessionKeyFunc(), metrics)(mux)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.HTTPMetrics(metrics)(handler)
	handler = middleware.Tracing("offerbuddy-api")(handler)
	return middleware.RequestID(handler)
}
