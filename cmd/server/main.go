package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/auth"
	"checkout-service/internal/broker"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service", zap.String("env", cfg.Server.Env))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	tp, err := util.InitTracer(context.Background(), util.TracingOptions{
		ServiceName: "checkout-service",
		Environment: cfg.Server.Env,
		Endpoint:    cfg.Observ.OTLPEndpoint,
		SampleRatio: cfg.Observ.TraceSampleRatio,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if err := ensureAdmin(db, cfg.Admin); err != nil {
		logger.Fatal("Failed to bootstrap admin account", zap.Error(err))
	}

	// Idempotency keys are best effort: without Redis, checkouts still work
	// but a retried request may create a second order.
	var idempotency service.IdempotencyStore
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.IdempotencyTTL, cfg.Redis.ClaimTTL)
	if err != nil {
		logger.Warn("Redis unavailable, checkout idempotency disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		idempotency = redisClient
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	discountService := service.NewDiscountService(db)
	cartService := service.NewCartService(db, db, discountService)
	checkoutService := service.NewCheckoutService(db, db, db, discountService, eventPublisher, idempotency)
	lifecycleService := service.NewLifecycleService(db, eventPublisher)

	verifier := auth.NewVerifier(cfg.Auth.TokenSecret, db, cfg.Auth.ClockSkew)
	accountService := auth.NewAccountService(db, auth.NewIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL))

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	fulfillmentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicFulfillment, cfg.Kafka.ConsumerGroup)
	fulfillmentWorker := worker.NewFulfillmentWorker(fulfillmentConsumer, lifecycleService, db)
	go func() {
		if err := fulfillmentWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Fulfillment worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Dependencies{
		Cart:      cartService,
		Checkout:  checkoutService,
		Orders:    lifecycleService,
		Discounts: discountService,
		Accounts:  accountService,
		Verifier:  verifier,
		Ready:     db.Ping,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := fulfillmentWorker.Stop(); err != nil {
		logger.Error("Error stopping fulfillment worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

// ensureAdmin creates the configured admin account if it does not exist.
// An existing account keeps its password.
func ensureAdmin(db *store.Store, cfg config.AdminConfig) error {
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" {
		return nil
	}
	if cfg.Password == "" {
		return errors.New("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}

	hash, err := auth.HashPassword(cfg.Password)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := db.EnsureAdmin(ctx, email, hash)
	if err != nil {
		return err
	}
	if created {
		util.GetLogger().Info("Admin account created", zap.String("email", email))
	}
	return nil
}
