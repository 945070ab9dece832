package main

import (
	"storefront-service/internal/handler"
	mid "storefront-service/internal/middleware"
	"storefront-service/internal/model"
	"storefront-service/internal/multitenant"
	"storefront-service/pkg/config"
	"storefront-service/pkg/database"
	"storefront-service/pkg/jwtutil"
	"storefront-service/pkg/logger"
	"storefront-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting storefront-service...", cfg.LogConfig()...)

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Initialize the shared store
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize shared store", zap.Error(err))
	}
	log.Info("Shared store connection established")

	// Multi-tenant storage core: registry, provisioner and router. The
	// provisioner falls back to model migration when the schema script is
	// missing; both paths produce the same tenant schema.
	registry := multitenant.NewRegistry()
	provisioner := multitenant.NewProvisioner(
		cfg.Tenant.StoreDir,
		cfg.Tenant.SchemaPath,
		func(db *gorm.DB) error {
			return db.AutoMigrate(model.TenantModels()...)
		},
	)
	router := multitenant.NewRouter(database.GetDB(), registry, provisioner)
	handler.Initialize(router, provisioner)
	log.Info("Storage router initialized",
		zap.String("tenant_store_dir", cfg.Tenant.StoreDir),
		zap.String("schema_path", cfg.Tenant.SchemaPath))

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(mid.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())
	e.Use(mid.TenantMiddleware(cfg.Tenant.PublicPaths))

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/register", handler.Register)
	auth.POST("/login", handler.Login)

	// API routes
	api := e.Group("/api")

	// Company management - shared-category endpoints
	companies := api.Group("/companies")
	companies.GET("", handler.ListCompanies)
	companies.GET("/:id", handler.GetCompany)
	companies.POST("/:id/deactivate", handler.DeactivateCompany)
	companies.POST("/:id/reactivate", handler.ReactivateCompany)
	companies.POST("/:id/provision", handler.ProvisionCompany)

	// Product management - tenant-scoped endpoints
	products := api.Group("/products")
	products.GET("", handler.ListProducts)
	products.GET("/:id", handler.GetProduct)
	products.POST("", handler.CreateProduct)
	products.PUT("/:id", handler.UpdateProduct)
	products.DELETE("/:id", handler.DeleteProduct)
	products.GET("/:id/images", handler.ListProductImages)
	products.POST("/:id/images", handler.AddProductImage)
	products.DELETE("/:id/images/:image_id", handler.DeleteProductImage)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
