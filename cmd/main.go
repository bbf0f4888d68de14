package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/covxx/Paleta-sub000/internal/handler"
	mid "github.com/covxx/Paleta-sub000/internal/middleware"
	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/internal/qbsync"
	"github.com/covxx/Paleta-sub000/internal/quickbooks"
	"github.com/covxx/Paleta-sub000/internal/store"
	"github.com/covxx/Paleta-sub000/pkg/config"
	"github.com/covxx/Paleta-sub000/pkg/database"
	"github.com/covxx/Paleta-sub000/pkg/jwtutil"
	"github.com/covxx/Paleta-sub000/pkg/logger"
	"github.com/covxx/Paleta-sub000/prometheus"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if present; environment variables win in production
	_ = godotenv.Load()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	if err := logger.InitLogger(appConfig); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting paleta-service",
		zap.String("environment", appConfig.Server.Env),
		zap.String("port", appConfig.Server.Port))

	// Initialize JWT utility
	jwtutil.Initialize(&appConfig.JWT)
	log.Info("JWT utility initialized")

	// Initialize Prometheus metrics
	prometheus.InitMetrics(appConfig)
	log.Info("Prometheus metrics initialized",
		zap.String("metrics_prefix", appConfig.Metrics.Prefix))

	// Initialize database
	db, err := database.InitDB(appConfig)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	if err := database.MigrateModels(
		&model.User{},
		&model.Item{},
		&model.Lot{},
		&model.Customer{},
		&model.Order{},
		&model.OrderLine{},
		&model.PriceRule{},
		&model.QuickBooksCredential{},
		&model.SyncRun{},
		&model.SyncLogEntry{},
	); err != nil {
		log.Fatal("Failed to migrate database models", zap.Error(err))
	}
	log.Info("Database migration completed")

	// QuickBooks connection and API client
	credStore := store.NewCredentialStore(db)
	tokenManager := quickbooks.NewTokenManager(credStore, appConfig.QuickBooks, log)
	qbClient := quickbooks.NewClient(tokenManager, appConfig.QuickBooks, log)

	// Stores and per-entity syncers
	customerStore := store.NewCustomerStore(db)
	itemStore := store.NewItemStore(db)
	orderStore := store.NewOrderStore(db)
	priceStore := store.NewPriceRuleStore(db)
	runStore := store.NewRunStore(db)
	statusStore := store.NewStatusStore(db)

	orderSyncer := qbsync.NewOrderSyncer(orderStore, qbClient, log)
	syncers := []qbsync.Syncer{
		qbsync.NewCustomerSyncer(customerStore, qbClient, runStore, log),
		qbsync.NewItemSyncer(itemStore, qbClient, runStore, log),
		qbsync.NewPricingSyncer(priceStore, qbClient, log),
		orderSyncer,
	}

	orchestrator := qbsync.NewOrchestrator(syncers, orderSyncer, runStore, appConfig.Sync, log)
	statusSvc := qbsync.NewStatusService(statusStore, runStore, orchestrator, tokenManager)

	handler.InitQuickBooksHandler(tokenManager, orchestrator, statusSvc)
	handler.InitOrderHandler(orchestrator)

	// Initialize Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(prometheus.MetricsMiddleware())

	// Public routes
	e.GET("/metrics", prometheus.HandlerFunc())
	e.GET("/health", handler.Health)
	e.POST("/api/auth/login", handler.Login)
	e.GET("/api/quickbooks/callback", handler.Callback)

	// Item API routes
	itemAPI := e.Group("/api/items", mid.AuthMiddleware)
	itemAPI.GET("", handler.ListItems)
	itemAPI.GET("/:id", handler.GetItem)
	itemAPI.POST("", handler.CreateItem)
	itemAPI.PUT("/:id", handler.UpdateItem)
	itemAPI.DELETE("/:id", handler.DeleteItem)
	itemAPI.GET("/:id/lots", handler.ListLots)
	itemAPI.POST("/:id/lots", handler.CreateLot)

	// Customer API routes
	customerAPI := e.Group("/api/customers", mid.AuthMiddleware)
	customerAPI.GET("", handler.ListCustomers)
	customerAPI.GET("/:id", handler.GetCustomer)
	customerAPI.POST("", handler.CreateCustomer)
	customerAPI.PUT("/:id", handler.UpdateCustomer)
	customerAPI.DELETE("/:id", handler.DeleteCustomer)

	// Order API routes
	orderAPI := e.Group("/api/orders", mid.AuthMiddleware)
	orderAPI.GET("", handler.ListOrders)
	orderAPI.GET("/:id", handler.GetOrder)
	orderAPI.POST("", handler.CreateOrder)
	orderAPI.PUT("/:id/status", handler.UpdateOrderStatus)

	// Price rule API routes
	priceAPI := e.Group("/api/prices", mid.AuthMiddleware)
	priceAPI.GET("", handler.ListPriceRules)
	priceAPI.POST("", handler.CreatePriceRule)

	// QuickBooks connection and sync API routes
	qbAPI := e.Group("/api/quickbooks", mid.AuthMiddleware)
	qbAPI.POST("/connect", handler.Connect)
	qbAPI.POST("/disconnect", handler.Disconnect)
	qbAPI.GET("/status", handler.SyncStatus)
	qbAPI.GET("/logs", handler.SyncLogs)
	qbAPI.POST("/sync/:entity", handler.TriggerSync)

	// Start the background sync scheduler
	orchestrator.Start()
	log.Info("Sync scheduler started",
		zap.Duration("interval", appConfig.Sync.Interval))

	// Start server
	go func() {
		port := appConfig.Server.Port
		log.Info("Starting server", zap.String("port", port))
		if err := e.Start(":" + port); err != nil {
			log.Info("Server stopped", zap.Error(err))
		}
	}()

	// Wait for shutdown signal, then drain in-flight syncs before exit
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	if err := orchestrator.Stop(ctx); err != nil {
		log.Error("Sync scheduler shutdown error", zap.Error(err))
	}
	log.Info("Shutdown complete")
}
