package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/paysettle/infra/logger"
	"github.com/mstgnz/paysettle/provider"
)

const columns = `api_key, request_date_time, correlation_id, reference_no, creation_date_time,
	amount, currency_id, payment_reference_no, status_code, signature, origin,
	client_redirect_url, operation_code_confirmed, created_at, updated_at`

// dialect captures what differs between the supported SQL backends
type dialect struct {
	name        string
	schema      []string
	numbered    bool // $1, $2 placeholders instead of ?
	returningID bool
	isDuplicate func(error) bool
	isBusy      func(error) bool
}

// SQLStore is a NotificationStore on top of database/sql
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	retries int
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d, retries: 3, now: time.Now}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s schema: %w", d.name, err)
	}
	return s, nil
}

// initSchema creates the pending_notifications table and its indexes
func (s *SQLStore) initSchema() error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// retryOperation executes a database operation with retry logic for busy/locked errors
func (s *SQLStore) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= s.retries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if s.dialect.isBusy == nil || !s.dialect.isBusy(err) {
			return err
		}

		lastErr = err
		if attempt < s.retries {
			// Exponential backoff: 10ms, 20ms, 40ms
			backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
			logger.Debug(fmt.Sprintf("%s busy, retrying in %v (attempt %d/%d)", s.dialect.name, backoff, attempt+1, s.retries+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", s.retries+1, lastErr)
}

// rebind rewrites ? placeholders for dialects that number them
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Insert(ctx context.Context, n *provider.PendingNotification) error {
	now := s.now().UTC().Truncate(time.Second)
	n.CorrelationID = canonicalCorrelation(n.CorrelationID)

	query := `INSERT INTO pending_notifications (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		n.APIKey, n.RequestDateTime, n.CorrelationID, n.ReferenceNo, n.CreationDateTime,
		n.Amount.Round(2), n.CurrencyID, n.PaymentReferenceNo, n.StatusCode, n.Signature, n.Origin,
		n.ClientRedirectURL, n.OperationCodeConfirmed, now, now,
	}

	return s.retryOperation(ctx, func() error {
		var id int64
		if s.dialect.returningID {
			err := s.db.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id)
			if err != nil {
				return s.wrapWrite("insert", err)
			}
		} else {
			res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
			if err != nil {
				return s.wrapWrite("insert", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to read inserted id: %w", err)
			}
		}

		n.ID = id
		n.CreatedAt = now
		n.UpdatedAt = now
		return nil
	})
}

func (s *SQLStore) Update(ctx context.Context, n *provider.PendingNotification) error {
	now := s.now().UTC().Truncate(time.Second)
	n.CorrelationID = canonicalCorrelation(n.CorrelationID)

	query := `UPDATE pending_notifications SET
		api_key = ?, request_date_time = ?, correlation_id = ?, reference_no = ?,
		creation_date_time = ?, amount = ?, currency_id = ?, payment_reference_no = ?,
		status_code = ?, signature = ?, origin = ?, client_redirect_url = ?,
		operation_code_confirmed = ?, updated_at = ?
		WHERE id = ?`

	return s.retryOperation(ctx, func() error {
		res, err := s.db.ExecContext(ctx, s.rebind(query),
			n.APIKey, n.RequestDateTime, n.CorrelationID, n.ReferenceNo,
			n.CreationDateTime, n.Amount.Round(2), n.CurrencyID, n.PaymentReferenceNo,
			n.StatusCode, n.Signature, n.Origin, n.ClientRedirectURL,
			n.OperationCodeConfirmed, now, n.ID)
		if err != nil {
			return s.wrapWrite("update", err)
		}
		if err := expectRow(res); err != nil {
			return err
		}
		n.UpdatedAt = now
		return nil
	})
}

func (s *SQLStore) Delete(ctx context.Context, n *provider.PendingNotification) error {
	return s.retryOperation(ctx, func() error {
		res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM pending_notifications WHERE id = ?`), n.ID)
		if err != nil {
			return fmt.Errorf("failed to delete pending notification: %w", err)
		}
		return expectRow(res)
	})
}

func (s *SQLStore) GetAll(ctx context.Context) ([]*provider.PendingNotification, error) {
	var all []*provider.PendingNotification

	err := s.retryOperation(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT id, `+columns+` FROM pending_notifications ORDER BY id DESC`)
		if err != nil {
			return fmt.Errorf("failed to query pending notifications: %w", err)
		}
		defer rows.Close()

		all = all[:0]
		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				return err
			}
			all = append(all, n)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func (s *SQLStore) GetByCorrelationID(ctx context.Context, correlationID string) (*provider.PendingNotification, error) {
	id, err := uuid.Parse(correlationID)
	if err != nil {
		return nil, nil
	}

	var found *provider.PendingNotification
	err = s.retryOperation(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			s.rebind(`SELECT id, `+columns+` FROM pending_notifications WHERE correlation_id = ?`), id.String())
		n, err := scanNotification(row)
		if errors.Is(err, sql.ErrNoRows) {
			found = nil
			return nil
		}
		if err != nil {
			return err
		}
		found = n
		return nil
	})
	return found, err
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying pool
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) wrapWrite(op string, err error) error {
	if s.dialect.isDuplicate != nil && s.dialect.isDuplicate(err) {
		return provider.ErrDuplicateCorrelation
	}
	return fmt.Errorf("failed to %s pending notification: %w", op, err)
}

func expectRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return provider.ErrNotificationNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (*provider.PendingNotification, error) {
	var n provider.PendingNotification
	err := row.Scan(
		&n.ID, &n.APIKey, &n.RequestDateTime, &n.CorrelationID, &n.ReferenceNo, &n.CreationDateTime,
		&n.Amount, &n.CurrencyID, &n.PaymentReferenceNo, &n.StatusCode, &n.Signature, &n.Origin,
		&n.ClientRedirectURL, &n.OperationCodeConfirmed, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pending notification: %w", err)
	}
	return &n, nil
}

// canonicalCorrelation lowercases valid uuids so lookups do not depend on the
// casing the gateway echoed back
func canonicalCorrelation(s string) string {
	if id, err := uuid.Parse(s); err == nil {
		return id.String()
	}
	return s
}
