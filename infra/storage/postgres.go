package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mstgnz/paysettle/infra/logger"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS pending_notifications (
		id BIGSERIAL PRIMARY KEY,
		api_key VARCHAR(255) NOT NULL DEFAULT '',
		request_date_time VARCHAR(64) NOT NULL DEFAULT '',
		correlation_id VARCHAR(64) NOT NULL,
		reference_no VARCHAR(255) NOT NULL DEFAULT '',
		creation_date_time VARCHAR(64) NOT NULL DEFAULT '',
		amount NUMERIC(18,2) NOT NULL DEFAULT 0,
		currency_id VARCHAR(8) NOT NULL DEFAULT '',
		payment_reference_no VARCHAR(255) NOT NULL DEFAULT '',
		status_code VARCHAR(16) NOT NULL DEFAULT '',
		signature VARCHAR(128) NOT NULL DEFAULT '',
		origin TEXT NOT NULL DEFAULT '',
		client_redirect_url TEXT NOT NULL DEFAULT '',
		operation_code_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_correlation ON pending_notifications(correlation_id)`,
}

// PostgresConfig holds the connection parameters read from DB_* variables
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	Zone     string
}

// DSN renders the lib/pq connection string
func (c PostgresConfig) DSN() string {
	zone := c.Zone
	if zone == "" {
		zone = "UTC"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, zone)
}

// NewPostgresStore connects with retries and prepares the schema
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*SQLStore, error) {
	var (
		db  *sql.DB
		err error
	)

	for attempts := 1; attempts <= 5; attempts++ {
		db, err = sql.Open("postgres", cfg.DSN())
		if err != nil {
			logger.Warn(fmt.Sprintf("Attempt %d: failed to open DB connection: %v", attempts, err))
		} else {
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
			db.SetConnMaxIdleTime(2 * time.Minute)

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = db.PingContext(pingCtx)
			cancel()
			if err == nil {
				break
			}
			logger.Warn(fmt.Sprintf("Attempt %d: failed to ping DB: %v", attempts, err))
			db.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres after 5 attempts: %w", err)
	}

	store, err := newSQLStore(db, dialect{
		name:        "postgres",
		schema:      postgresSchema,
		numbered:    true,
		returningID: true,
		isDuplicate: isPostgresDuplicate,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("PostgreSQL notification store initialized")
	return store, nil
}

func isPostgresDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
