package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benvon/wte-api/internal/cache"
	"github.com/benvon/wte-api/internal/config"
	"github.com/benvon/wte-api/internal/database"
	"github.com/benvon/wte-api/internal/handlers"
	"github.com/benvon/wte-api/internal/logger"
	"github.com/benvon/wte-api/internal/middleware"
	"github.com/benvon/wte-api/internal/queue"
	"github.com/benvon/wte-api/internal/services/ai"
	"github.com/benvon/wte-api/internal/services/auth"
	"github.com/benvon/wte-api/internal/services/meals"
	"github.com/benvon/wte-api/internal/services/statistics"
	"github.com/benvon/wte-api/internal/services/suggest"
	"github.com/benvon/wte-api/internal/storage"
	"github.com/benvon/wte-api/internal/telemetry"
	"github.com/benvon/wte-api/internal/workers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const serviceName = "wte-api"

// Set at build time via -ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	migrateFlag := flag.Bool("migrate", false, "Apply database migrations before serving")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(serviceName, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(ctx, serviceName, version, cfg.OTELEndpoint); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	if *migrateFlag {
		if err := db.Migrate(ctx); err != nil {
			zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
		}
		zapLogger.Info("database_migrated")
	}

	healthChecker := handlers.NewHealthChecker()
	healthChecker.AddCheck("database", handlers.PingFunc(db.PingContext))

	// Redis is optional: without it stats are not cached and rate limits are per process
	var redisClient *redis.Client
	var statsCache *cache.StatsCache
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		statsCache = cache.NewStatsCache(redisClient, cfg.StatsCacheTTL)
		healthChecker.AddCheck("redis", handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
		zapLogger.Info("connected_to_redis")
	} else {
		zapLogger.Warn("redis_not_configured_using_in_process_rate_limits")
	}

	images, err := newObjectStore(ctx, cfg, healthChecker)
	if err != nil {
		zapLogger.Fatal("failed_to_initialize_object_storage", zap.Error(err))
	}

	// Repositories
	userRepo := database.NewUserRepository(db)
	mealRepo := database.NewMealRepository(db)
	foodRepo := database.NewFoodRepository(db)
	tagRepo := database.NewTagRepository(db)
	statsRepo := database.NewStatsRepository(db)
	tagStatsRepo := database.NewTagStatisticsRepository(db)

	// Without a broker, refresh jobs run on an in-process queue and refresher
	var jobQueue queue.JobQueue
	if cfg.RabbitMQURL != "" {
		rabbit, err := queue.ConnectWithRetry(ctx, cfg.RabbitMQURL, 2*time.Minute, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
		}
		jobQueue = rabbit
		zapLogger.Info("connected_to_rabbitmq")
	} else {
		jobQueue = queue.NewMemoryQueue()
		zapLogger.Warn("rabbitmq_not_configured_using_memory_queue")
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_job_queue", zap.Error(err))
		}
	}()
	healthChecker.AddCheck("queue", handlers.PingFunc(jobQueue.HealthCheck))

	// A nil *StatsCache must not become a non-nil interface
	var invalidator workers.CacheInvalidator
	var reportCache statistics.Cache
	if statsCache != nil {
		invalidator = statsCache
		reportCache = statsCache
	}

	notifier := workers.NewChangeNotifier(tagStatsRepo, invalidator, jobQueue, workers.DefaultRefreshDelay, zapLogger)

	if _, inProcess := jobQueue.(*queue.MemoryQueue); inProcess {
		refresher := workers.NewStatsRefresher(statsRepo, tagStatsRepo, invalidator, jobQueue, zapLogger)
		go func() {
			if err := refresher.Run(ctx, jobQueue, cfg.RabbitMQPrefetch); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("stats_refresher_stopped_with_error", zap.Error(err))
			}
		}()
		zapLogger.Info("started_in_process_stats_refresher")
	}

	// Services
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		zapLogger.Fatal("failed_to_create_token_issuer", zap.Error(err))
	}
	for _, secret := range cfg.JWTPreviousSecrets {
		if err := tokens.AddVerificationSecret(secret); err != nil {
			zapLogger.Fatal("invalid_previous_jwt_secret", zap.Error(err))
		}
	}
	zapLogger.Info("token_issuer_ready",
		zap.String("key_id", tokens.KeyID()),
		zap.Duration("token_ttl", tokens.TTL()),
		zap.Int("previous_keys", len(cfg.JWTPreviousSecrets)),
	)
	authService := auth.NewService(userRepo, tokens, zapLogger)

	mealService := meals.NewService(mealRepo, foodRepo, tagRepo, statsRepo, images, zapLogger)
	mealService.SetChangeHandler(notifier.OnMealChanged)
	mealService.SetImageURLTTL(cfg.StorageURLTTL)

	statsService := statistics.NewService(statsRepo, reportCache, zapLogger)
	statsService.SetSnapshotStore(tagStatsRepo)

	var (
		llm    ai.Provider
		vision ai.VisionProvider
	)
	if cfg.OpenAIKey != "" {
		provider := ai.NewOpenAIProvider(cfg.OpenAIKey, cfg.AIBaseURL, cfg.AIModel, zapLogger, debugMode)
		provider.SetVisionModel(cfg.AIVisionModel)
		zapLogger.Info("ai_provider_configured",
			zap.String("model", provider.Model()),
			zap.String("vision_model", cfg.AIVisionModel),
		)
		llm = provider
		vision = provider
	} else {
		zapLogger.Warn("openai_key_not_configured_ai_features_disabled")
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, userRepo, zapLogger)
	mealHandler := handlers.NewMealHandler(mealService, zapLogger)
	statsHandler := handlers.NewStatsHandler(statsService, notifier, workers.DefaultRangeDays, zapLogger)
	catalogHandler := handlers.NewCatalogHandler(foodRepo, tagRepo, zapLogger)
	adviceHandler := handlers.NewAdviceHandler(mealService, ai.NewAdvisor(llm, zapLogger), ai.NewRecommender(llm, zapLogger), zapLogger)
	suggestHandler := handlers.NewSuggestHandler(suggest.NewService(foodRepo, statsRepo, zapLogger), zapLogger)
	recognitionHandler := handlers.NewRecognitionHandler(ai.NewRecognizer(vision, zapLogger), zapLogger)

	rateLimitMW, err := middleware.RateLimit(redisClient, cfg.RateLimit)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}
	authMW := middleware.Auth(tokens, userRepo, zapLogger)

	r := mux.NewRouter()

	// In gorilla/mux the middleware registered first is the outermost
	if tracingEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORSFromEnv(cfg.FrontendURL))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	// Public routes
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/health", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", handlers.VersionHandler(handlers.VersionInfo{
		Version:   version,
		BuildDate: buildDate,
		GitCommit: gitCommit,
	})).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	openAPIHandler := handlers.NewOpenAPIHandler(filepath.Join("api", "openapi", "openapi.yaml"))
	openAPIHandler.RegisterRoutes(r)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()

	authRouter := apiRouter.PathPrefix("/auth").Subrouter()
	publicAuth := jsonRoutes(authRouter.NewRoute().Subrouter(), rateLimitMW)
	authHandler.RegisterRoutes(publicAuth)
	protectedAuth := jsonRoutes(authRouter.NewRoute().Subrouter(), rateLimitMW, authMW)
	authHandler.RegisterUserRoutes(protectedAuth)

	mealsRouter := apiRouter.PathPrefix("/meals").Subrouter()
	mealsRouter.Use(rateLimitMW, authMW)
	// Upload routes are registered first so multipart bodies get the larger limit
	uploads := mealsRouter.NewRoute().Subrouter()
	uploads.Use(
		middleware.MaxRequestSize(middleware.MaxUploadSize),
		middleware.ContentType(true),
		middleware.Timeout(2*time.Minute),
	)
	mealHandler.RegisterUploadRoutes(uploads)
	recognitionHandler.RegisterRoutes(uploads)
	mealHandler.RegisterRoutes(jsonRoutes(mealsRouter.NewRoute().Subrouter()))

	statsRouter := jsonRoutes(apiRouter.PathPrefix("/stats").Subrouter(), rateLimitMW, authMW)
	statsHandler.RegisterRoutes(statsRouter)

	catalogRouter := jsonRoutes(apiRouter.PathPrefix("/catalog").Subrouter(), rateLimitMW, authMW)
	catalogHandler.RegisterRoutes(catalogRouter)

	// Advice may stream, which http.TimeoutHandler cannot flush
	adviceRouter := apiRouter.PathPrefix("/advice").Subrouter()
	adviceRouter.Use(
		rateLimitMW,
		authMW,
		middleware.MaxRequestSize(middleware.DefaultMaxRequestSize),
		middleware.ContentType(false),
		middleware.ContextTimeout(middleware.DefaultStreamTimeout),
	)
	adviceHandler.RegisterRoutes(adviceRouter)
	suggestHandler.RegisterRoutes(adviceRouter)

	// Preflight requests are answered by the CORS middleware; this only gives them a route
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   middleware.DefaultStreamTimeout + 10*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if dlqPurger, ok := jobQueue.(queue.DLQPurger); ok {
		dlqGC := queue.NewGarbageCollector(dlqPurger, cfg.DLQGCInterval, cfg.DLQRetention, zapLogger)
		go func() {
			if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
			}
		}()
		zapLogger.Info("started_dlq_garbage_collector",
			zap.Duration("interval", cfg.DLQGCInterval),
			zap.Duration("retention", cfg.DLQRetention),
		)
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// jsonRoutes applies the limits shared by every JSON endpoint after mws
func jsonRoutes(r *mux.Router, mws ...mux.MiddlewareFunc) *mux.Router {
	r.Use(mws...)
	r.Use(
		middleware.MaxRequestSize(middleware.DefaultMaxRequestSize),
		middleware.ContentType(false),
		middleware.Timeout(30*time.Second),
	)
	return r
}

// newObjectStore returns MinIO storage when configured, an in-memory store otherwise
func newObjectStore(ctx context.Context, cfg *config.Config, health *handlers.HealthChecker) (storage.ObjectStore, error) {
	if !cfg.StorageConfigured() {
		return storage.NewMemoryStore(fmt.Sprintf("http://localhost:%s/images", cfg.ServerPort)), nil
	}

	store, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
	})
	if err != nil {
		return nil, err
	}

	bucketCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.EnsureBucket(bucketCtx); err != nil {
		return nil, err
	}

	health.AddCheck("storage", store)
	return store, nil
}
