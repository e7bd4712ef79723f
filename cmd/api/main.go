package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"teahouse-backend/config"
	"teahouse-backend/internal/delivery/http/middleware"
	v1 "teahouse-backend/internal/delivery/http/v1"
	"teahouse-backend/internal/domain"
	"teahouse-backend/internal/infrastructure/cache"
	"teahouse-backend/internal/infrastructure/linepay"
	"teahouse-backend/internal/infrastructure/lock"
	"teahouse-backend/internal/infrastructure/mailer"
	pgrepo "teahouse-backend/internal/repository/pg"
	"teahouse-backend/internal/usecase"
	"teahouse-backend/internal/worker"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/logger"
	"teahouse-backend/pkg/metrics"
	"teahouse-backend/pkg/utils"
)

func main() {
	cfg := config.LoadConfig()
	utils.SetSecret(cfg.JWTSecret)

	// Initialize Logger
	logger.Init(cfg.Env, cfg.LogLevel)
	log := logger.Get()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database with pgx
	pgxPool, err := pgrepo.NewPgxPool(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Successfully connected to PostgreSQL via pgx")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	storefrontMetrics := metrics.NewStorefront(registry)

	// Initialize Repositories
	txManager := pgrepo.NewTransactionManager(pgxPool)
	productRepo := pgrepo.NewProductRepository(pgxPool)
	orderRepo := pgrepo.NewOrderRepository(pgxPool)
	couponRepo := pgrepo.NewCouponRepository(pgxPool)
	paymentRepo := pgrepo.NewPaymentRepository(pgxPool)
	profileRepo := pgrepo.NewProfileRepository(pgxPool)
	settingsRepo := pgrepo.NewSettingsRepository(pgxPool)
	taskRepo := pgrepo.NewTaskRepository(pgxPool)
	syncRepo := pgrepo.NewSyncRepository(pgxPool, txManager)

	// Initialize Cache (In-Memory)
	// Default expiration 30m, cleanup every 60m
	memCache := cache.NewMemoryCache(30*time.Minute, 60*time.Minute)

	// Locks and idempotency keys: Redis when configured so several instances agree.
	var (
		locker      domain.Locker
		idempotency domain.IdempotencyStore
		closers     []func() error
	)
	if cfg.RedisURL != "" {
		redisClient, err := lock.NewRedisClient(rootCtx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		closers = append(closers, redisClient.Close)
		locker = lock.NewRedisLocker(redisClient)
		idempotency = lock.NewRedisIdempotency(redisClient)
		log.Info().Msg("Using Redis for locks and idempotency keys")
	} else {
		locker = lock.NewMemoryLocker(memCache)
		idempotency = lock.NewMemoryIdempotency(memCache)
	}

	translator := i18n.New(cfg.Locale)
	i18n.SetDefault(translator)

	var mail domain.Mailer = mailer.LogMailer{}
	if cfg.Mail.Enabled() {
		mail = mailer.NewHTTPMailer(cfg.Mail.APIURL, cfg.Mail.APIKey, cfg.Mail.From, cfg.Mail.Timeout)
	} else {
		logger.Warn().Msg("MAIL_API_URL not set, customer emails are only logged")
	}

	gateway := linepay.NewClient(cfg.LinePay.ChannelID, cfg.LinePay.ChannelSecret, cfg.LinePay.BaseURL, cfg.LinePay.Timeout)

	// --- Modules Initialization ---

	settingsService := usecase.NewSettingsService(settingsRepo, memCache, cfg.CacheSettingsTTL, domain.ShippingSettings{
		FlatFee:       cfg.ShippingFlatFee,
		FreeThreshold: cfg.ShippingFreeThreshold,
	})

	stockValidator := usecase.NewStockValidator(productRepo, translator)
	couponValidator := usecase.NewCouponValidator(couponRepo, translator, storefrontMetrics)
	couponRecorder := usecase.NewCouponRecorder(couponRepo, translator)
	orderWriter := usecase.NewOrderWriter(txManager, orderRepo, productRepo, taskRepo, couponRecorder, stockValidator)
	statusService := usecase.NewOrderStatusService(txManager, orderRepo, productRepo, taskRepo, couponRecorder, translator, storefrontMetrics)

	paymentUC := usecase.NewPaymentUsecase(paymentRepo, orderRepo, gateway, statusService, translator, storefrontMetrics, cfg.LinePay.Currency, usecase.PaymentURLs{
		Confirm: cfg.PublicAPIURL + "/api/v1/payments/linepay/confirm",
		Cancel:  cfg.PublicAPIURL + "/api/v1/payments/linepay/cancel",
	})

	// Order Module
	orderUC := usecase.NewOrderUsecase(usecase.OrderUsecaseParams{
		Orders:         orderRepo,
		Profiles:       profileRepo,
		Tasks:          taskRepo,
		Stock:          stockValidator,
		Coupons:        couponValidator,
		Settings:       settingsService,
		Writer:         orderWriter,
		Status:         statusService,
		Payments:       paymentUC,
		Idempotency:    idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Translator:     translator,
		Metrics:        storefrontMetrics,
	})
	orderHandler := v1.NewOrderHandler(orderUC)
	adminOrderHandler := v1.NewAdminOrderHandler(orderUC)
	paymentHandler := v1.NewPaymentHandler(paymentUC, cfg.FrontendURL)

	couponUC := usecase.NewCouponUsecase(couponRepo, translator)
	adminCouponHandler := v1.NewAdminCouponHandler(couponUC)

	syncUC := usecase.NewSyncUsecase(syncRepo, productRepo, locker, cfg.MaxCartQuantity, translator, storefrontMetrics)
	syncHandler := v1.NewSyncHandler(syncUC)

	configHandler := v1.NewConfigHandler(memCache, settingsService)
	adminConfigHandler := v1.NewAdminConfigHandler(memCache, settingsService)
	healthHandler := v1.NewHealthHandler(pgxPool)

	notificationUC := usecase.NewNotificationUsecase(orderRepo, mail, translator)

	// Follow-up worker
	runner, err := worker.New(worker.Params{
		Tasks: taskRepo,
		Handlers: map[string]worker.Handler{
			domain.TaskOrderPlacedEmail:    notificationUC.OrderPlaced,
			domain.TaskOrderShippedEmail:   notificationUC.OrderShipped,
			domain.TaskCancelUnreservedPay: statusService.CancelUnreserved,
		},
		Metrics:      storefrontMetrics,
		BatchSize:    cfg.WorkerBatchSize,
		PollInterval: cfg.WorkerPollInterval,
		MaxAttempts:  cfg.WorkerMaxAttempts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize follow-up worker")
	}

	// Set up Router
	mux := http.NewServeMux()

	auth := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(h)
	}
	adminMiddleware := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(middleware.AdminMiddleware(h))
	}

	// Config (Public)
	mux.HandleFunc("GET /api/v1/config/enums", configHandler.GetEnums)

	// Orders (Protected)
	mux.Handle("POST /api/v1/orders", auth(orderHandler.CreateOrder))
	mux.Handle("GET /api/v1/orders", auth(orderHandler.GetMyOrders))
	mux.Handle("GET /api/v1/orders/{id}", auth(orderHandler.GetMyOrder))
	mux.Handle("POST /api/v1/coupons/validate", auth(orderHandler.ValidateCoupon))

	// Cart & Wishlist sync (Protected)
	mux.Handle("GET /api/v1/cart", auth(syncHandler.GetCart))
	mux.Handle("POST /api/v1/cart", auth(syncHandler.ReplaceCart))
	mux.Handle("GET /api/v1/wishlist", auth(syncHandler.GetWishlist))
	mux.Handle("POST /api/v1/wishlist", auth(syncHandler.ReplaceWishlist))

	// LINE Pay browser callbacks
	mux.HandleFunc("GET /api/v1/payments/linepay/confirm", paymentHandler.LinePayConfirm)
	mux.HandleFunc("GET /api/v1/payments/linepay/cancel", paymentHandler.LinePayCancel)

	// Admin Orders
	mux.Handle("GET /api/v1/admin/orders", adminMiddleware(adminOrderHandler.ListOrders))
	mux.Handle("GET /api/v1/admin/orders/{id}", adminMiddleware(adminOrderHandler.GetOrder))
	mux.Handle("GET /api/v1/admin/orders/{id}/history", adminMiddleware(adminOrderHandler.GetOrderHistory))
	mux.Handle("PUT /api/v1/admin/orders/{id}/status", adminMiddleware(adminOrderHandler.UpdateStatus))

	// Admin Coupons
	mux.Handle("GET /api/v1/admin/coupons", adminMiddleware(adminCouponHandler.ListCoupons))
	mux.Handle("POST /api/v1/admin/coupons", adminMiddleware(adminCouponHandler.CreateCoupon))
	mux.Handle("GET /api/v1/admin/coupons/{id}", adminMiddleware(adminCouponHandler.GetCoupon))
	mux.Handle("PUT /api/v1/admin/coupons/{id}", adminMiddleware(adminCouponHandler.UpdateCoupon))
	mux.Handle("DELETE /api/v1/admin/coupons/{id}", adminMiddleware(adminCouponHandler.DeleteCoupon))

	// Admin Settings
	mux.Handle("GET /api/v1/admin/settings/shipping", adminMiddleware(adminConfigHandler.GetShipping))
	mux.Handle("PUT /api/v1/admin/settings/shipping", adminMiddleware(adminConfigHandler.UpdateShipping))
	mux.Handle("GET /api/v1/admin/config/enums", adminMiddleware(configHandler.GetEnums))

	// Health Check
	mux.HandleFunc("GET /api/v1/health", healthHandler.Check)
	mux.HandleFunc("GET /health", healthHandler.Check) // Support root health check for Load Balancers
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	// Initialize Rate Limiter with lifecycle management
	// 50 req/s, burst 100, cleanup every minute, TTL 3 minutes
	rateLimiter := middleware.NewRateLimiter(
		rootCtx,
		50,            // requests per second
		100,           // burst
		time.Minute,   // cleanup period
		3*time.Minute, // client TTL
	)

	// Apply CORS (with config injection), Request Logger, Rate Limit, and Gzip
	handler := middleware.NewCORSMiddleware(cfg)(mux)
	handler = middleware.RequestLogger(storefrontMetrics)(handler)
	handler = rateLimiter.Middleware()(handler)
	handler = gziphandler.GzipHandler(handler)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Follow-up worker stopped")
		}
	}()

	// Graceful Shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	log.Info().Msgf("Server starting on %s", addr)

	<-rootCtx.Done()
	log.Info().Msg("Server shutting down...")

	rateLimiter.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := srv.Shutdown(ctx)

	// Let an in-flight task finish before the pool closes underneath it.
	stopWorker()
	wg.Wait()

	for _, closeFn := range closers {
		shutdownErr = multierr.Append(shutdownErr, closeFn())
	}
	pgxPool.Close()

	if shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("Shutdown finished with errors")
		os.Exit(1)
	}
	log.Info().Msg("Server exited properly")
}
