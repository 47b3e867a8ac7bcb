package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
	"github.com/mstgnz/paysettle/infra/logger"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS pending_notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		api_key TEXT NOT NULL DEFAULT '',
		request_date_time TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL,
		reference_no TEXT NOT NULL DEFAULT '',
		creation_date_time TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '0',
		currency_id TEXT NOT NULL DEFAULT '',
		payment_reference_no TEXT NOT NULL DEFAULT '',
		status_code TEXT NOT NULL DEFAULT '',
		signature TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL DEFAULT '',
		client_redirect_url TEXT NOT NULL DEFAULT '',
		operation_code_confirmed BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_correlation ON pending_notifications(correlation_id)`,
}

// NewSQLiteStore opens (or creates) a sqlite database tuned for several processes
// sharing one file
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store, err := newSQLStore(db, dialect{
		name:        "sqlite",
		schema:      sqliteSchema,
		isDuplicate: isSQLiteDuplicate,
		isBusy:      isSQLiteBusy,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	optimizeSQLite(db)

	logger.Info(fmt.Sprintf("SQLite notification store initialized at: %s", dbPath))
	return store, nil
}

// optimizeSQLite applies pragmas for multi-process access; failures only cost performance
func optimizeSQLite(db *sql.DB) {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA temp_store = memory;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			logger.Warn(fmt.Sprintf("Failed to execute %s: %v", pragma, err))
		}
	}
}

func isSQLiteDuplicate(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isSQLiteBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
