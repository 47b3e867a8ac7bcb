package storage

import (
	"context"
	"fmt"

	"github.com/mstgnz/paysettle/infra/config"
	"github.com/mstgnz/paysettle/provider"
)

// Open builds the notification store selected by STORAGE_DRIVER
func Open(ctx context.Context, cfg *config.AppConfig) (provider.NotificationStore, error) {
	switch cfg.StorageDriver {
	case "", "sqlite", "sqlite3":
		return NewSQLiteStore(cfg.SQLitePath)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, PostgresConfig{
			Host:     config.GetEnv("DB_HOST", "localhost"),
			Port:     config.GetEnv("DB_PORT", "5432"),
			User:     config.GetEnv("DB_USER", "postgres"),
			Password: config.GetEnv("DB_PASS", ""),
			Name:     config.GetEnv("DB_NAME", "paysettle"),
			Zone:     config.GetEnv("DB_ZONE", "UTC"),
		})
	case "mysql":
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("MYSQL_DSN is required for the mysql storage driver")
		}
		return NewMySQLStore(ctx, cfg.MySQLDSN)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
