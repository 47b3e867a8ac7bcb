package provider

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrDuplicateCorrelation is returned by Insert when a record with the same
// correlation id already exists
var ErrDuplicateCorrelation = errors.New("pending notification already exists for correlation id")

// ErrNotificationNotFound is returned by Update and Delete when the row no longer exists
var ErrNotificationNotFound = errors.New("pending notification not found")

// PendingNotification is one in-flight asynchronous payment, keyed by CorrelationID
type PendingNotification struct {
	ID                     int64           `json:"id"`
	APIKey                 string          `json:"apiKey"`
	RequestDateTime        string          `json:"requestDateTime"`
	CorrelationID          string          `json:"correlationId"`
	ReferenceNo            string          `json:"referenceNo"`
	CreationDateTime       string          `json:"creationDateTime"`
	Amount                 decimal.Decimal `json:"amount"`
	CurrencyID             string          `json:"currencyId"`
	PaymentReferenceNo     string          `json:"paymentReferenceNo"`
	StatusCode             string          `json:"statusCode"`
	Signature              string          `json:"signature"`
	Origin                 string          `json:"origin"`
	ClientRedirectURL      string          `json:"clientRedirectUrl"`
	OperationCodeConfirmed bool            `json:"operationCodeConfirmed"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// Clone returns a copy that does not alias the receiver
func (n *PendingNotification) Clone() *PendingNotification {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// NotificationStore persists pending notifications.
// Lookups key on CorrelationID. Update and Delete address a previously loaded row by ID,
// so a reissue may move a record to a new correlation id.
type NotificationStore interface {
	// Insert assigns n.ID, CreatedAt and UpdatedAt
	Insert(ctx context.Context, n *PendingNotification) error
	Update(ctx context.Context, n *PendingNotification) error
	Delete(ctx context.Context, n *PendingNotification) error

	// GetAll returns every record ordered by ID descending
	GetAll(ctx context.Context) ([]*PendingNotification, error)

	// GetByCorrelationID returns nil, nil when no record matches or the id is empty or invalid
	GetByCorrelationID(ctx context.Context, correlationID string) (*PendingNotification, error)

	Ping(ctx context.Context) error
	Close() error
}

// AuditEvent is one entry of the settlement audit trail
type AuditEvent struct {
	Timestamp     time.Time      `json:"timestamp"`
	Provider      string         `json:"provider"`
	Event         string         `json:"event"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	StatusCode    string         `json:"status_code,omitempty"`
	Outcome       string         `json:"outcome"`
	Payload       string         `json:"payload,omitempty"`
	Error         string         `json:"error,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// AuditLogger records audit events. Implementations must be safe for concurrent use.
type AuditLogger interface {
	LogAuditEvent(ctx context.Context, event AuditEvent) error
}

// NopAuditLogger discards audit events
type NopAuditLogger struct{}

// LogAuditEvent implements AuditLogger
func (NopAuditLogger) LogAuditEvent(context.Context, AuditEvent) error { return nil }
