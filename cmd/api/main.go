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
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/oceanworks/deckhand/internal/action"
	"github.com/oceanworks/deckhand/internal/api"
	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/attachment"
	"github.com/oceanworks/deckhand/internal/auth"
	"github.com/oceanworks/deckhand/internal/blob"
	"github.com/oceanworks/deckhand/internal/config"
	"github.com/oceanworks/deckhand/internal/db"
	"github.com/oceanworks/deckhand/internal/engine"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/executor"
	"github.com/oceanworks/deckhand/internal/gate"
	"github.com/oceanworks/deckhand/internal/health"
	"github.com/oceanworks/deckhand/internal/idempotency"
	"github.com/oceanworks/deckhand/internal/jobs"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/middleware"
	"github.com/oceanworks/deckhand/internal/notify"
	"github.com/oceanworks/deckhand/internal/state"
	"github.com/oceanworks/deckhand/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Deckhand API Server")
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
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	ctx := context.Background()

	// Tracing (optional).
	exporterType := "otlp-http"
	if cfg.OTLPProtocol == "grpc" {
		exporterType = "otlp-grpc"
	}
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "deckhand-api",
		Enabled:      cfg.TracingEnabled(),
		Environment:  cfg.Env,
		ExporterType: exporterType,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env == "development",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Database and tenant-scoped stores.
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	store := entity.NewPostgresStore(conn)
	led := ledger.NewPostgresLedger(conn)

	// State machines, action catalog, and the authorization gate.
	machines, err := state.NewMachines()
	if err != nil {
		logger.Error("failed to build state machines", "error", err)
		os.Exit(1)
	}
	registry, err := action.NewRegistry(machines)
	if err != nil {
		logger.Error("failed to build action registry", "error", err)
		os.Exit(1)
	}
	authGate := gate.New()

	// Redis (optional): persistent rate limit windows plus a readiness check.
	var redisClient *redis.Client
	var limitStore middleware.RateLimitStore = middleware.NewInMemoryRateLimitStore()
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()
		limitStore = middleware.NewRedisRateLimitStore(redisClient)
	}

	// Blob storage (optional): presigned uploads and the attachment pipeline.
	var blobService *blob.Service
	var pipeline *attachment.Pipeline
	if cfg.BlobEnabled() {
		blobService, err = blob.NewService(blob.ServiceConfig{
			BucketName:      cfg.BlobBucketName,
			AccessKeyID:     cfg.BlobAccessKeyID,
			SecretAccessKey: cfg.BlobSecretAccessKey,
			Endpoint:        cfg.BlobEndpoint,
			MaxSizeMB:       cfg.BlobMaxUploadSizeMB,
		})
		if err != nil {
			logger.Error("failed to initialize blob storage", "error", err)
			os.Exit(1)
		}
		pipeline = attachment.NewPipeline(blobService)
	}

	// Realtime feed plus structured log for every committed change.
	broadcaster := notify.NewBroadcaster(logger)
	notifier := notify.Multi{notify.NewLogNotifier(logger), broadcaster}

	// Metrics.
	registryProm := prometheus.NewRegistry()
	registryProm.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := engine.NewMetrics()
	if err := engineMetrics.Register(registryProm); err != nil {
		logger.Error("failed to register engine metrics", "error", err)
		os.Exit(1)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registryProm); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registryProm); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	// The dispatch engine.
	eng := engine.New(engine.Config{
		Registry: registry,
		Gate:     authGate,
		Machines: machines,
		Store:    store,
		Executor: executor.NewPostgresExecutor(conn, machines, logger),
		Notifier: notifier,
		Metrics:  engineMetrics,
		Logger:   logger,
	})

	// Token issuance against the provisioned crew list.
	var jwtService *auth.JWTService
	if cfg.JWTPreviousSecret != "" {
		jwtService = auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)
	} else {
		jwtService = auth.NewJWTService(cfg.JWTSecret)
	}
	directory := auth.NewStaticDirectory(crewActors(cfg.Crew))

	// Handlers.
	actionHandlers := api.NewActionHandlers(eng)
	entityHandlers := api.NewEntityHandlers(store, led)
	ledgerHandlers := api.NewLedgerHandlers(led)
	authHandlers := api.NewAuthHandlers(jwtService, directory)
	feedHandlers := api.NewFeedHandlers(broadcaster)

	healthConfig := api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(conn),
		MetricsEnabled: true,
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}
	if blobService != nil {
		healthConfig.BlobChecker = blobService
	}
	healthHandlers := api.NewHealthHandlers(healthConfig)

	// Middleware stacks.
	authenticate := middleware.Authenticate(jwtService)
	globalLimit := middleware.RateLimiter(limitStore, middleware.DefaultGlobalLimit(), middleware.ActorKeyFunc(), logger)
	authLimit := middleware.RateLimiter(limitStore, middleware.DefaultAuthLimit(), middleware.IPKeyFunc(), logger)
	actionLimit := middleware.RateLimiter(limitStore, middleware.DefaultActionLimit(), middleware.ActorKeyFunc(), logger)

	idempotencyRepo := idempotency.NewInMemoryRepository()
	idempotent := middleware.IdempotencyMiddleware(idempotencyRepo, map[string]bool{
		"/v1/actions": true,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registryProm, promhttp.HandlerOpts{}))

	mux.Handle("/v1/auth/token", authLimit(http.HandlerFunc(authHandlers.Token)))
	mux.Handle("/v1/auth/refresh", authLimit(http.HandlerFunc(authHandlers.Refresh)))

	mux.Handle("/v1/actions", authenticate(actionLimit(idempotent(http.HandlerFunc(actionHandlers.Dispatch)))))
	mux.Handle("/v1/feed", authenticate(http.HandlerFunc(feedHandlers.Subscribe)))
	mux.Handle("/v1/ledger/signed", authenticate(globalLimit(http.HandlerFunc(ledgerHandlers.SignedActions))))
	mux.Handle("/v1/ledger/export", authenticate(globalLimit(http.HandlerFunc(ledgerHandlers.Export))))

	if blobService != nil {
		attachmentHandlers := api.NewAttachmentHandlers(blobService, pipeline, store, cfg.BlobMaxUploadSizeMB)
		mux.Handle("/v1/uploads/sign", authenticate(globalLimit(http.HandlerFunc(attachmentHandlers.SignUpload))))
		mux.Handle("/v1/attachments", authenticate(globalLimit(http.HandlerFunc(attachmentHandlers.Remove))))
		mux.Handle("/v1/", authenticate(globalLimit(entityRouter(entityHandlers, attachmentHandlers))))
	} else {
		mux.Handle("/v1/", authenticate(globalLimit(entityRouter(entityHandlers, nil))))
	}

	var root http.Handler = mux
	if cfg.Env == "development" {
		root = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(root)
	}

	handler := middleware.RequestID(
		middleware.Logging(logger)(
			middleware.HTTPMetrics(httpMetrics)(
				middleware.Tracing("deckhand-api")(root))))
	if len(cfg.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowCredentials: true,
		})(handler)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background jobs: certificate expiry detection and ledger chain audit.
	// Both are read-only; any resulting mutation still goes through the
	// role-gated dispatch path.
	jobsCtx, cancelJobs := context.WithCancel(ctx)
	tenants := crewTenants(cfg.Crew)
	runner := jobs.NewRunner(
		time.Duration(cfg.JobsIntervalMinutes)*time.Minute,
		jobMetrics,
		logger,
		jobs.NewCertificateExpiryScan(store, notifier, tenants,
			time.Duration(cfg.CertExpiryWarningDays)*24*time.Hour, logger),
		jobs.NewLedgerChainVerify(led, tenants, logger),
	)
	go runner.Start(jobsCtx)

	stopCleanup := make(chan struct{})
	go idempotency.RunPeriodicCleanup(idempotencyRepo, time.Hour, idempotency.DefaultExpiry, stopCleanup)

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancelJobs()
	close(stopCleanup)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", "error", err)
	}

	logger.Info("server stopped")
}

// entityRouter splits /v1/{collection}/... between the read-only entity
// handlers and the attachment handlers. Attachment routes 404 when blob
// storage is not configured.
func entityRouter(entities *api.EntityHandlers, attachments *api.AttachmentHandlers) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(strings.TrimSuffix(r.URL.Path, "/"), "/attachments") {
			if attachments == nil {
				api.WriteEngineError(w, r.Context(), apperr.CodeNotFound,
					"Attachment storage is not configured")
				return
			}
			switch r.Method {
			case http.MethodPost:
				attachments.Upload(w, r)
			default:
				attachments.ListForEntity(w, r)
			}
			return
		}
		entities.Handle(w, r)
	})
}

// crewActors converts the configured crew list into directory actors.
func crewActors(crew []config.CrewMember) []auth.Actor {
	actors := make([]auth.Actor, 0, len(crew))
	for _, m := range crew {
		actors = append(actors, auth.Actor{
			ID:       m.ID,
			TenantID: m.TenantID,
			Name:     m.Name,
			Roles:    m.Roles,
			Key:      m.Key,
		})
	}
	return actors
}

// crewTenants returns the distinct tenant ids present in the crew list, in
// first-seen order. Background jobs scan exactly these tenants.
func crewTenants(crew []config.CrewMember) []string {
	seen := make(map[string]bool)
	var tenants []string
	for _, m := range crew {
		if m.TenantID != "" && !seen[m.TenantID] {
			seen[m.TenantID] = true
			tenants = append(tenants, m.TenantID)
		}
	}
	return tenants
}
