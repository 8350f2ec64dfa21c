package main

import (
	"net/http"

	"inventory-service/internal/handler"
	"inventory-service/internal/ledger"
	mid "inventory-service/internal/middleware"
	"inventory-service/internal/storage"
	"inventory-service/pkg/config"
	"inventory-service/pkg/database"
	"inventory-service/pkg/jwtutil"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration (reads .env if present)
	appConfig, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger.Init(appConfig)
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting inventory-service",
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
	err = database.InitDB(appConfig)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Wire the ledger core on top of the database
	store := storage.NewPostgresStore(database.GetDB())
	svc := ledger.NewService(store, ledger.Config{
		ConflictRetries:   appConfig.Ledger.ConflictRetries,
		GroupingWindow:    appConfig.Ledger.GroupingWindow,
		LowStockThreshold: appConfig.Ledger.LowStockThreshold,
	})
	inv := handler.NewInventoryHandler(svc)
	log.Info("Ledger service initialized",
		zap.Duration("grouping_window", appConfig.Ledger.GroupingWindow),
		zap.Int64("low_stock_threshold", appConfig.Ledger.LowStockThreshold))

	// Initialize Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(mid.MetricsMiddleware)

	// Metrics endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health check endpoint
	e.GET("/health", handler.HealthCheck)

	// Catalog API routes - Apply auth middleware to validate JWT and extract the actor
	itemAPI := e.Group("/api/items", mid.AuthMiddleware)
	itemAPI.GET("", handler.ListItems)
	itemAPI.GET("/:id", handler.GetItem)
	itemAPI.POST("", handler.CreateItem)
	itemAPI.PUT("/:id", handler.UpdateItem)
	itemAPI.DELETE("/:id", handler.DeleteItem)
	itemAPI.GET("/:id/history", inv.ItemHistory)

	// Site API routes
	siteAPI := e.Group("/api/sites", mid.AuthMiddleware)
	siteAPI.GET("", inv.ListSites)
	siteAPI.POST("", inv.CreateSite)
	siteAPI.GET("/:id", inv.GetSite)
	siteAPI.PUT("/:id", inv.UpdateSite)
	siteAPI.GET("/:id/inventory", inv.SiteInventory)
	siteAPI.GET("/:id/inventory/history", inv.SiteHistory)
	siteAPI.POST("/:id/inventory/audit", inv.SiteAudit)

	// Vehicle API routes
	vehicleAPI := e.Group("/api/vehicles", mid.AuthMiddleware)
	vehicleAPI.GET("", inv.ListVehicles)
	vehicleAPI.POST("", inv.CreateVehicle)
	vehicleAPI.GET("/:id", inv.GetVehicle)
	vehicleAPI.PUT("/:id", inv.UpdateVehicle)
	vehicleAPI.GET("/:id/inventory", inv.VehicleInventory)
	vehicleAPI.POST("/:id/inventory", inv.SetVehicleInventory)
	vehicleAPI.DELETE("/:id/inventory/:itemId", inv.RemoveVehicleItem)
	vehicleAPI.GET("/:id/inventory/history", inv.VehicleHistory)
	vehicleAPI.POST("/:id/inventory/audit", inv.VehicleAudit)

	// Transfer API route
	transferAPI := e.Group("/api/transfers", mid.AuthMiddleware)
	transferAPI.POST("", inv.Transfer)

	// Start server
	port := appConfig.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
		log.Fatal("Server error", zap.Error(err))
	}
}
