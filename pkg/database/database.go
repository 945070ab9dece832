package database

import (
	"fmt"
	"os"
	"path/filepath"

	"storefront-service/internal/model"
	"storefront-service/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB initializes the shared-store connection with the provided
// configuration and migrates the shared (identity) models. The shared store
// runs on sqlite by default and on postgres when DB_DRIVER=postgres.
func InitDB(cfg *config.Config) error {
	var err error

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(cfg.DB.LogLevel),
	}

	switch cfg.DB.Driver {
	case "postgres":
		// Disables implicit prepared statement usage to prevent
		// "prepared statement already exists" errors
		pgConfig := postgres.Config{
			DSN:                  cfg.DB.GetDSN(),
			PreferSimpleProtocol: true,
		}
		DB, err = gorm.Open(postgres.New(pgConfig), gormConfig)
	case "sqlite":
		if dir := filepath.Dir(cfg.DB.Path); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return fmt.Errorf("create shared store directory: %w", mkErr)
			}
		}
		DB, err = gorm.Open(sqlite.Open(cfg.DB.Path), gormConfig)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.DB.Driver)
	}

	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	if cfg.DB.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	}
	if cfg.DB.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	}
	if cfg.DB.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	}

	// AutoMigrate the shared models. The tenant-scoped tables are created
	// here too, empty: they back the documented degraded mode where a
	// request with no tenant context reads a default tenant-scoped view
	// from the shared store. Tenant schema rollout after bootstrap is
	// governed by Router.AllowSchemaChange and never touches these.
	models := []interface{}{&model.Company{}, &model.User{}}
	models = append(models, model.TenantModels()...)
	if err := DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate shared store: %w", err)
	}

	return nil
}

// GetDB returns the shared-store database instance
func GetDB() *gorm.DB {
	return DB
}
