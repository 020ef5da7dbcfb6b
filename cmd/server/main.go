package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"

	"github.com/bolsa-labs/bolsa-api/internal/audit"
	"github.com/bolsa-labs/bolsa-api/internal/broker"
	"github.com/bolsa-labs/bolsa-api/internal/config"
	"github.com/bolsa-labs/bolsa-api/internal/credentials"
	"github.com/bolsa-labs/bolsa-api/internal/database"
	"github.com/bolsa-labs/bolsa-api/internal/ledger"
	"github.com/bolsa-labs/bolsa-api/internal/marketdata"
	"github.com/bolsa-labs/bolsa-api/internal/orders"
	"github.com/bolsa-labs/bolsa-api/internal/quota"
	"github.com/bolsa-labs/bolsa-api/internal/reconcile"
	"github.com/bolsa-labs/bolsa-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the trading API server with graceful shutdown support
// It sets up all required services, database connections, and API routes
func main() {
	// Local development settings; the file is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Quota counter store, process-local or shared
	var store limiter.Store
	switch cfg.RateLimitStore {
	case "redis":
		store, err = quota.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			zlog.Fatal().Err(err).Msg("Failed to connect quota store")
		}
	default:
		store = quota.NewMemoryStore(cfg.QuotaSweep)
	}
	guard := quota.NewGuard(store)

	// Broker gateway and credential manager
	gateway := broker.NewHTTPGateway(cfg.BrokerBaseURL, cfg.BrokerRPS)
	key, err := cfg.CredentialKey()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid credential encryption key")
	}
	credentialManager, err := credentials.NewManager(db, gateway, key)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize credential manager")
	}

	// Initialize services and handlers
	recorder := audit.NewRecorder(db)

	orderService := orders.NewService(credentialManager, recorder, cfg.BrokerProvider)
	orderHandlers := orders.NewGinHandlers(orderService)

	quoteCache := marketdata.NewCache(cfg.QuoteCacheTTL)
	priceSource := marketdata.NewSource(quoteCache, credentialManager, cfg.BrokerProvider, cfg.QuoteMarket)

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService, priceSource)

	// Background workers
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	reconciler := reconcile.NewProcessor(recorder, credentialManager, cfg.BrokerProvider,
		cfg.ReconcileInterval, cfg.ReconcilePendingAge, cfg.ReconcileAbandonAge)
	go reconciler.Start(workerCtx)
	go quoteCache.Sweep(workerCtx, cfg.QuoteCacheTTL)

	// Initialize router
	router := gin.Default()
	setupRoutes(router, cfg, guard, orderHandlers, ledgerHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// Trade routes carry the quota guard on top of JWT authentication;
// ledger routes are JWT only.
func setupRoutes(
	router *gin.Engine,
	cfg config.Config,
	guard *quota.Guard,
	orderHandlers *orders.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		trade := v1.Group("/trade")
		trade.Use(middleware.JWTAuth(cfg.JWTSecret))
		trade.Use(middleware.RateLimit(guard, cfg.TradeRateLimit, cfg.TradeRateWindow))
		{
			trade.POST("", orderHandlers.SubmitTradeHandler())
			trade.DELETE("", orderHandlers.CancelTradeHandler())
		}

		positions := v1.Group("/positions")
		positions.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			positions.GET("", ledgerHandlers.ListPositionsHandler())
			positions.GET("/:position_id", ledgerHandlers.GetPositionHandler())
			positions.POST("/:position_id/transactions", ledgerHandlers.RecordTransactionHandler())
		}
	}
}
