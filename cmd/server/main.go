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

	"github.com/harlowfield/tradevine/internal"
	"github.com/harlowfield/tradevine/internal/billing"
	"github.com/harlowfield/tradevine/internal/email"
	"github.com/harlowfield/tradevine/internal/handler"
	"github.com/harlowfield/tradevine/internal/metrics"
	"github.com/harlowfield/tradevine/internal/middleware"
	"github.com/harlowfield/tradevine/internal/repository"
	"github.com/harlowfield/tradevine/internal/service"
	"github.com/harlowfield/tradevine/internal/worker"
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
	logger.Info("database ready")

	// Initialize repository
	repo := repository.New(db)

	// Initialize billing. Without keys the billing-dependent endpoints
	// return unavailable and the webhook acknowledges-and-drops.
	var billingService billing.Service
	prices := billing.PriceConfig{
		ProMonthlyPriceID:      cfg.StripeProMonthlyPriceID,
		ProYearlyPriceID:       cfg.StripeProYearlyPriceID,
		BusinessMonthlyPriceID: cfg.StripeBusinessMonthlyPriceID,
		BusinessYearlyPriceID:  cfg.StripeBusinessYearlyPriceID,
	}
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, prices)
		logger.Info("stripe billing enabled")
	} else {
		logger.Warn("stripe billing not configured, payment endpoints disabled")
	}

	// Initialize services
	notifier := service.NewNotifier(repo, logger)
	quotaService := service.NewQuotaService(repo, logger)
	jobService := service.NewJobService(repo, repo, repo, quotaService, notifier, logger)
	connectService := service.NewConnectService(repo, billingService, cfg.BaseURL, logger)
	paymentService := service.NewPaymentService(
		repo, repo, repo, repo, connectService, billingService, prices, cfg.BaseURL, notifier, logger)
	orderService := service.NewOrderService(repo, logger)
	subscriptionService := service.NewSubscriptionService(repo, billingService, logger)

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(repo, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)

	generalLimiter := middleware.NewRateLimiter(cfg.GeneralRateLimit, cfg.RateLimitWindow, logger)
	guardedLimiter := middleware.NewRateLimiter(cfg.GuardedRateLimit, cfg.RateLimitWindow, logger)
	generalLimit := middleware.NewRateLimitMiddleware(generalLimiter, logger)
	guardedLimit := middleware.NewStrictRateLimitMiddleware(guardedLimiter, logger)

	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, logger)
	checkoutHandler := handler.NewCheckoutHandler(paymentService, logger)
	connectHandler := handler.NewConnectHandler(connectService, logger)
	webhookHandler := handler.NewWebhookHandler(
		billingService, paymentService, orderService, subscriptionService, logger)

	// Create router and register routes
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.Handle("GET /metrics", metrics.Handler(cfg.MetricsUsername, cfg.MetricsPassword))

	// Public — authenticated by webhook signature.
	webhookHandler.RegisterRoutes(mux)

	jobHandler.RegisterRoutes(mux, requireUser, guardedLimit.Limit)
	checkoutHandler.RegisterRoutes(mux, requireUser, guardedLimit.Limit)
	connectHandler.RegisterRoutes(mux, requireUser)

	root := middleware.Stack(metrics.Middleware, loggingMw.Handler, generalLimit.Limit)(mux)

	// Start the notification worker
	var notifyWorker *worker.Worker
	if cfg.WorkerEnabled {
		mailer := email.NewSMTPEmailService(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, cfg.BaseURL, logger)

		notifyWorker, err = worker.New(repo, mailer, worker.Config{
			PollInterval: cfg.WorkerPollInterval,
			BatchSize:    int32(cfg.WorkerBatchSize),
			MaxAttempts:  int32(cfg.WorkerMaxAttempts),
		}, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		notifyWorker.Start(ctx)
	}

	// Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if notifyWorker != nil {
		notifyWorker.Stop()
	}

	logger.Info("graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
