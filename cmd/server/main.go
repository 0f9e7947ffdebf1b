package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solestore-payments/config"
	"solestore-payments/internal/handler"
	"solestore-payments/internal/provider/mpesa"
	"solestore-payments/internal/repository"
	"solestore-payments/internal/router"
	"solestore-payments/internal/usecase"
	"solestore-payments/internal/worker"
)

func main() {
	// Local development convenience; in deployment the environment is
	// injected and no .env exists.
	_ = godotenv.Load()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting store payment service")

	// Load configuration
	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Connect to database
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("connected to database",
		zap.String("database", cfg.Database.DBName))

	// Redis backs the checkout rate limiter. Optional: without it the
	// limiter passes everything through.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, rate limiting disabled", zap.Error(err))
			rdb = nil
		}
	}

	// Initialize store and gateway client
	store := repository.NewPostgres(dbPool)
	mpesaClient := mpesa.NewClient(cfg.Mpesa, logger)

	// Initialize usecases
	orderFeed := handler.NewOrderFeed(logger)
	paymentUC := usecase.NewPaymentUsecase(store, mpesaClient, logger)
	callbackUC := usecase.NewCallbackUsecase(store, orderFeed, logger)
	inventoryUC := usecase.NewInventoryUsecase(store, logger)

	// Initialize handlers
	handlers := router.Handlers{
		Payment:   handler.NewPaymentHandler(paymentUC, logger),
		Callback:  handler.NewCallbackHandler(callbackUC, logger),
		Inventory: handler.NewInventoryHandler(inventoryUC, logger),
		OrderFeed: orderFeed,
	}

	r := router.SetupRoutes(handlers, rdb, logger)

	// Background sweeper returns expired holds to the pool.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := worker.NewSweeper(inventoryUC, time.Minute, logger)
	go sweeper.Run(sweepCtx)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("store payment service started",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Env))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopSweeper()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
