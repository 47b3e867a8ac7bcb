package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mstgnz/paysettle/infra/logger"
	"github.com/mstgnz/paysettle/infra/response"
	"github.com/mstgnz/paysettle/provider"
	"github.com/mstgnz/paysettle/provider/safetypay"
)

// DefaultMaxNotificationBytes bounds the body of one gateway notification
const DefaultMaxNotificationBytes = 64 << 10

// Notification outcomes recorded in the audit trail
const (
	OutcomeAccepted         = "accepted"
	OutcomeParseError       = "parse_error"
	OutcomeStoreError       = "store_error"
	OutcomeSignatureInvalid = "signature_invalid"
)

// NotificationHandler receives the asynchronous payment notifications posted by SafetyPay.
// The gateway always gets HTTP 200; a signed body means the notification was accepted.
type NotificationHandler struct {
	store        provider.NotificationStore
	locks        *provider.KeyedMutex
	audit        provider.AuditLogger
	signatureKey string
	maxBody      int64
	now          func() time.Time
}

// NewNotificationHandler creates a new notification handler. audit and locks may be nil.
func NewNotificationHandler(store provider.NotificationStore, locks *provider.KeyedMutex, audit provider.AuditLogger, signatureKey string) *NotificationHandler {
	if locks == nil {
		locks = provider.NewKeyedMutex()
	}
	if audit == nil {
		audit = provider.NopAuditLogger{}
	}
	return &NotificationHandler{
		store:        store,
		locks:        locks,
		audit:        audit,
		signatureKey: signatureKey,
		maxBody:      DefaultMaxNotificationBytes,
		now:          time.Now,
	}
}

// HandleNotification processes one notification
func (h *NotificationHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	logCtx := logger.LogContext{Provider: safetypay.SystemName}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		logger.Error("Failed to read SafetyPay notification body", err, logCtx)
		h.record(ctx, provider.AuditEvent{Outcome: OutcomeParseError, Error: err.Error()})
		response.WriteText(w, http.StatusOK, "")
		return
	}

	n, err := safetypay.ParseNotification(body)
	if err != nil {
		logger.Error("Malformed SafetyPay notification", err, logCtx)
		h.record(ctx, provider.AuditEvent{Outcome: OutcomeParseError, Payload: string(body), Error: err.Error()})
		response.WriteText(w, http.StatusOK, "")
		return
	}

	// ParseNotification guarantees a valid id
	id, _ := safetypay.TryParseCorrelationID(n.MerchantSalesID)
	correlationID := id.String()
	logCtx.CorrelationID = correlationID

	event := provider.AuditEvent{
		CorrelationID: correlationID,
		StatusCode:    n.Status,
		Payload:       n.Origin,
	}

	unlock := h.locks.Lock(correlationID)
	err = h.persist(ctx, n, correlationID)
	unlock()

	if err != nil {
		logger.Error("Failed to persist SafetyPay notification", err, logCtx)
		event.Outcome = OutcomeStoreError
		event.Error = err.Error()
		h.record(ctx, event)
		response.WriteText(w, http.StatusOK, "")
		return
	}

	if !n.VerifySignature(h.signatureKey) {
		logger.Warn("SafetyPay notification signature mismatch", logCtx)
		event.Outcome = OutcomeSignatureInvalid
		event.Error = safetypay.ErrSignatureMismatch.Error()
		h.record(ctx, event)
		response.WriteText(w, http.StatusOK, "")
		return
	}

	ack := safetypay.NewResponse(n).Sign(h.signatureKey)

	logger.Info(fmt.Sprintf("SafetyPay notification accepted with status %s", n.Status), logCtx)
	event.Outcome = OutcomeAccepted
	h.record(ctx, event)

	response.WriteText(w, http.StatusOK, ack.Encode())
}

// persist refreshes the record for the notification or creates it. It performs exactly one
// successful store mutation.
func (h *NotificationHandler) persist(ctx context.Context, n safetypay.Notification, correlationID string) error {
	existing, err := h.store.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return fmt.Errorf("load pending notification: %w", err)
	}

	if existing == nil {
		err = h.store.Insert(ctx, n.ToPending())
		if !errors.Is(err, provider.ErrDuplicateCorrelation) {
			return err
		}
		// another instance inserted it between our lookup and insert
		existing, err = h.store.GetByCorrelationID(ctx, correlationID)
		if err != nil {
			return fmt.Errorf("reload pending notification: %w", err)
		}
		if existing == nil {
			return provider.ErrNotificationNotFound
		}
	}

	n.ApplyTo(existing)
	return h.store.Update(ctx, existing)
}

func (h *NotificationHandler) record(ctx context.Context, event provider.AuditEvent) {
	event.Timestamp = h.now().UTC()
	event.Provider = safetypay.SystemName
	event.Event = "notification"
	if err := h.audit.LogAuditEvent(ctx, event); err != nil {
		logger.Warn(fmt.Sprintf("Failed to write audit event: %v", err), logger.LogContext{
			Provider:      safetypay.SystemName,
			CorrelationID: event.CorrelationID,
		})
	}
}
