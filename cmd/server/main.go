package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quill-app/quill/internal"
	"github.com/quill-app/quill/internal/ai"
	aimock "github.com/quill-app/quill/internal/ai/mock"
	aiopenai "github.com/quill-app/quill/internal/ai/openai"
	"github.com/quill-app/quill/internal/billing"
	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/handler"
	"github.com/quill-app/quill/internal/metrics"
	"github.com/quill-app/quill/internal/middleware"
	"github.com/quill-app/quill/internal/repository"
	"github.com/quill-app/quill/internal/service"
	"github.com/quill-app/quill/internal/storage"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.NewPostgres(db)

	// Initialize file storage
	var store storage.Storage
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		store, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
		if err != nil {
			return fmt.Errorf("R2 storage initialization failed: %w", err)
		}
	default:
		store, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
		if err != nil {
			return fmt.Errorf("local storage initialization failed: %w", err)
		}
	}

	// Initialize AI provider
	var provider ai.Provider
	if cfg.AIProvider == "openai" {
		provider = aiopenai.New(aiopenai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			ChatModel:  cfg.OpenAIChatModel,
			AudioModel: cfg.OpenAIAudioModel,
			Timeout:    cfg.AIRequestTimeout,
		}, logger)
		logger.Info("AI provider ready", "provider", "openai", "chat_model", cfg.OpenAIChatModel)
	} else {
		provider = aimock.New(logger)
		logger.Info("AI provider ready", "provider", "mock")
	}

	// Initialize billing (optional - nil when Stripe is not configured)
	var billingService billing.Service
	var reconciler *billing.Reconciler
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			BasicMonthlyPriceID: cfg.StripeBasicMonthlyPriceID,
			BasicYearlyPriceID:  cfg.StripeBasicYearlyPriceID,
			ProMonthlyPriceID:   cfg.StripeProMonthlyPriceID,
			ProYearlyPriceID:    cfg.StripeProYearlyPriceID,
			EliteMonthlyPriceID: cfg.StripeEliteMonthlyPriceID,
			EliteYearlyPriceID:  cfg.StripeEliteYearlyPriceID,
		})
		reconciler = billing.NewReconciler(billingService, repo, logger)
		logger.Info("Stripe billing ready")
	} else {
		logger.Warn("Stripe billing not configured - billing endpoints disabled")
	}

	// Initialize services
	catalog := domain.DefaultCatalog()
	userService := service.NewUserService(repo, logger)
	usageService := service.NewUsageService(repo, logger)
	entitlementService := service.NewEntitlementService(catalog, repo, usageService, logger)
	chatService := service.NewChatService(provider, entitlementService, usageService, repo, logger)
	personService := service.NewPersonService(repo, entitlementService, usageService, logger)
	statsService := service.NewStatsService(entitlementService, usageService, logger)
	transcriptionService := service.NewTranscriptionService(provider, store, entitlementService, usageService, logger)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(userService, logger, isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	authLimiter := middleware.NewAuthRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow, logger)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(userService, authLimiter, logger, isSecure)
	entitlementHandler := handler.NewEntitlementHandler(entitlementService, logger)
	chatHandler := handler.NewChatHandler(chatService, logger)
	peopleHandler := handler.NewPeopleHandler(personService, logger)
	statsHandler := handler.NewStatsHandler(statsService, logger)
	transcriptionHandler := handler.NewTranscriptionHandler(transcriptionService, logger)
	billingHandler := handler.NewBillingHandler(billingService, userService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, reconciler, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (basic auth)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Locally stored audio (development storage provider)
	if cfg.StorageProvider == storage.ProviderLocal {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	// Stripe webhook (public - authenticated by signature)
	mux.HandleFunc("POST /webhooks/stripe", webhookHandler.HandleStripeWebhook)

	// Auth routes (public, rate limited)
	mux.Handle("POST /api/auth/register", authLimiter.LimitRegister(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/auth/login", authLimiter.LimitLogin(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)

	// Authenticated routes
	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser)

	mux.Handle("GET /api/me", requireUser(http.HandlerFunc(authHandler.Me)))
	mux.Handle("GET /api/me/plan", requireUser(http.HandlerFunc(entitlementHandler.Plan)))

	mux.Handle("POST /api/chat", requireUser(http.HandlerFunc(chatHandler.PersonalChat)))
	mux.Handle("POST /api/people/{id}/chat", requireUser(http.HandlerFunc(chatHandler.PersonChat)))

	mux.Handle("POST /api/people", requireUser(http.HandlerFunc(peopleHandler.Create)))
	mux.Handle("GET /api/people", requireUser(http.HandlerFunc(peopleHandler.List)))
	mux.Handle("GET /api/people/{id}", requireUser(http.HandlerFunc(peopleHandler.Get)))

	mux.Handle("GET /api/stats", requireUser(http.HandlerFunc(statsHandler.Summary)))
	mux.Handle("POST /api/transcriptions", requireUser(http.HandlerFunc(transcriptionHandler.Create)))

	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(billingHandler.Checkout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(billingHandler.Portal)))
	mux.Handle("POST /api/billing/cancel", requireUser(http.HandlerFunc(billingHandler.Cancel)))
	mux.Handle("POST /api/billing/reactivate", requireUser(http.HandlerFunc(billingHandler.Reactivate)))

	// Outer middleware: security headers, request logging, HTTP metrics
	root := middleware.Stack(securityMw.Handler, loggingMw.Handler, metrics.Middleware)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Session cleanup loop
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if err := userService.DeleteExpiredSessions(cleanupCtx); err != nil {
					logger.Warn("session cleanup failed", "error", err)
				}
			}
		}
	}()

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
