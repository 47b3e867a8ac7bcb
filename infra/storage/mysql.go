package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mstgnz/paysettle/infra/logger"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS pending_notifications (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		api_key VARCHAR(255) NOT NULL DEFAULT '',
		request_date_time VARCHAR(64) NOT NULL DEFAULT '',
		correlation_id VARCHAR(64) NOT NULL,
		reference_no VARCHAR(255) NOT NULL DEFAULT '',
		creation_date_time VARCHAR(64) NOT NULL DEFAULT '',
		amount DECIMAL(18,2) NOT NULL DEFAULT 0,
		currency_id VARCHAR(8) NOT NULL DEFAULT '',
		payment_reference_no VARCHAR(255) NOT NULL DEFAULT '',
		status_code VARCHAR(16) NOT NULL DEFAULT '',
		signature VARCHAR(128) NOT NULL DEFAULT '',
		origin TEXT NOT NULL,
		client_redirect_url TEXT NOT NULL,
		operation_code_confirmed TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY idx_pending_correlation (correlation_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// mysqlDuplicateEntry is ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// NewMySQLStore opens a MySQL pool from a go-sql-driver DSN. parseTime is forced on so
// DATETIME columns scan into time.Time.
func NewMySQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	store, err := newSQLStore(db, dialect{
		name:        "mysql",
		schema:      mysqlSchema,
		isDuplicate: isMySQLDuplicate,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("MySQL notification store initialized")
	return store, nil
}

func isMySQLDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
