package safetypay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/paysettle/infra/logger"
	"github.com/mstgnz/paysettle/provider"
)

// Outcome is what happened to one pending notification during a run
type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomeReissued  Outcome = "reissued"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

// ItemError is a failure confined to a single pending notification
type ItemError struct {
	CorrelationID string
	Err           error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.CorrelationID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// ReconcileReport summarizes one reconciliation run
type ReconcileReport struct {
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Total      int          `json:"total"`
	Paid       int          `json:"paid"`
	Reissued   int          `json:"reissued"`
	Abandoned  int          `json:"abandoned"`
	Pending    int          `json:"pending"`
	Failed     int          `json:"failed"`
	Failures   []*ItemError `json:"-"`
	Errors     []string     `json:"errors,omitempty"`
}

func (r *ReconcileReport) record(outcome Outcome, err error, correlationID string) {
	switch outcome {
	case OutcomePaid:
		r.Paid++
	case OutcomeReissued:
		r.Reissued++
	case OutcomeAbandoned:
		r.Abandoned++
	case OutcomePending:
		r.Pending++
	case OutcomeFailed:
		r.Failed++
		itemErr := &ItemError{CorrelationID: correlationID, Err: err}
		r.Failures = append(r.Failures, itemErr)
		r.Errors = append(r.Errors, itemErr.Error())
	}
}

// Reconciler walks every pending notification and settles it against its order
type Reconciler struct {
	store  provider.NotificationStore
	orders provider.OrderManager
	issuer *Issuer
	cfg    Config
	locks  *provider.KeyedMutex
	audit  provider.AuditLogger
	newID  func() uuid.UUID
	now    func() time.Time
}

// NewReconciler creates a reconciler. locks and audit may be nil.
func NewReconciler(store provider.NotificationStore, orders provider.OrderManager, issuer *Issuer, cfg Config, locks *provider.KeyedMutex, audit provider.AuditLogger) *Reconciler {
	if locks == nil {
		locks = provider.NewKeyedMutex()
	}
	if audit == nil {
		audit = provider.NopAuditLogger{}
	}
	return &Reconciler{
		store:  store,
		orders: orders,
		issuer: issuer,
		cfg:    cfg.withDefaults(),
		locks:  locks,
		audit:  audit,
		newID:  uuid.New,
		now:    time.Now,
	}
}

// Execute runs one sweep. The returned error only reports that the store could not be listed;
// per-item failures are logged and counted in the report.
func (r *Reconciler) Execute(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{StartedAt: r.now().UTC()}

	pending, err := r.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("safetypay: list pending notifications: %w", err)
	}
	report.Total = len(pending)

	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}
		outcome, err := r.reconcileItem(ctx, item)
		report.record(outcome, err, item.CorrelationID)
	}

	report.FinishedAt = r.now().UTC()
	logger.Info("Reconciliation finished", logger.LogContext{
		Provider: SystemName,
		Fields: map[string]any{
			"total":     report.Total,
			"paid":      report.Paid,
			"reissued":  report.Reissued,
			"abandoned": report.Abandoned,
			"pending":   report.Pending,
			"failed":    report.Failed,
			"duration":  report.FinishedAt.Sub(report.StartedAt).String(),
		},
	})

	return report, ctx.Err()
}

func (r *Reconciler) reconcileItem(ctx context.Context, item *provider.PendingNotification) (outcome Outcome, err error) {
	logCtx := logger.LogContext{Provider: SystemName, CorrelationID: item.CorrelationID}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			outcome = OutcomeFailed
			logger.Error("Reconciliation panicked", err, withField(logCtx, "stack", string(debug.Stack())))
		}
		if outcome == OutcomeFailed {
			if !errors.Is(err, provider.ErrOrderNotFound) {
				logger.Error("Reconciliation of pending notification failed", err, logCtx)
			}
		}
		r.logAudit(ctx, item, outcome, err)
	}()

	orderGUID, ok := TryParseCorrelationID(item.CorrelationID)
	if !ok {
		return OutcomeFailed, fmt.Errorf("invalid correlation id %q", item.CorrelationID)
	}

	unlock := r.locks.Lock(item.CorrelationID)
	defer unlock()

	// reload under the lock so a notification received meanwhile is not overwritten
	current, err := r.store.GetByCorrelationID(ctx, item.CorrelationID)
	if err != nil {
		return OutcomeFailed, err
	}
	if current == nil {
		return OutcomePending, nil
	}

	status := DecodeStatus(current.StatusCode)

	order, err := r.orders.GetOrderByGUID(ctx, orderGUID)
	if err != nil {
		if errors.Is(err, provider.ErrOrderNotFound) {
			// an earlier abandon removed the order but could not drop the record
			if status == StatusExpired && !r.cfg.CanGenerateNewCode {
				return r.dropOrphan(ctx, current)
			}
			logger.Error("Order not found for pending notification", err, logCtx)
		}
		return OutcomeFailed, err
	}

	switch status {
	case StatusExpired:
		if r.cfg.CanGenerateNewCode {
			return r.reissue(ctx, current, order)
		}
		return r.abandon(ctx, current, order)
	case StatusPaid:
		return r.settle(ctx, current, order)
	case StatusOther:
		return OutcomePending, nil
	}
	return OutcomePending, nil
}

// reissue replaces an expired operation code. Gateway calls happen first. The record is then
// moved to the new correlation id and moved back if the order update fails, so a failed
// reissue leaves order and record matching each other.
func (r *Reconciler) reissue(ctx context.Context, item *provider.PendingNotification, order *provider.Order) (Outcome, error) {
	newID := r.newID().String()

	token, err := r.issuer.RequestToken(ctx, IssueRequest{
		CustomerID:    order.CustomerID,
		CorrelationID: newID,
		Amount:        order.OrderTotal,
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("request replacement token: %w", err)
	}

	code, err := r.issuer.RequestOperationCode(ctx, newID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("request replacement operation code: %w", err)
	}

	record := item.Clone()
	record.CorrelationID = newID
	record.PaymentReferenceNo = code
	record.ClientRedirectURL = token.ClientRedirectURL
	record.OperationCodeConfirmed = token.OperationCodeConfirmed
	record.StatusCode = ""
	if err := r.store.Update(ctx, record); err != nil {
		return OutcomeFailed, fmt.Errorf("update pending notification: %w", err)
	}

	updated := *order
	updated.OrderGUID = uuid.MustParse(newID)
	updated.AuthorizationTransactionResult = code
	updated.AuthorizationTransactionCode = code
	updated.AuthorizationTransactionID = token.ClientRedirectURL

	if err := r.orders.UpdateOrder(ctx, &updated); err != nil {
		if restoreErr := r.store.Update(ctx, item); restoreErr != nil {
			logger.Error("Failed to restore pending notification after order update failed", restoreErr, logger.LogContext{
				Provider:      SystemName,
				CorrelationID: item.CorrelationID,
				Fields:        map[string]any{"new_correlation_id": newID, "order_id": order.ID},
			})
		}
		return OutcomeFailed, fmt.Errorf("update order: %w", err)
	}
	previousCode := order.AuthorizationTransactionResult
	*order = updated

	r.addNotes(ctx, order,
		fmt.Sprintf("SafetyPay operation code %s expired", previousCode),
		fmt.Sprintf("Previous correlation id: %s", item.CorrelationID),
		fmt.Sprintf("Requested a replacement operation code under correlation id %s", newID),
		fmt.Sprintf("New SafetyPay operation code: %s", code),
	)

	logger.Info("Expired operation code replaced", logger.LogContext{
		Provider:      SystemName,
		CorrelationID: newID,
		Fields:        map[string]any{"previous_correlation_id": item.CorrelationID, "order_id": order.ID},
	})
	return OutcomeReissued, nil
}

// abandon deletes the order of an expired code that may not be reissued
func (r *Reconciler) abandon(ctx context.Context, item *provider.PendingNotification, order *provider.Order) (Outcome, error) {
	if err := r.orders.DeleteOrder(ctx, order); err != nil {
		return OutcomeFailed, fmt.Errorf("delete order: %w", err)
	}
	if err := r.store.Delete(ctx, item); err != nil {
		return OutcomeFailed, fmt.Errorf("delete pending notification: %w", err)
	}

	logger.Warn("Order deleted after operation code expired", logger.LogContext{
		Provider:      SystemName,
		CorrelationID: item.CorrelationID,
		Fields:        map[string]any{"order_id": order.ID},
	})
	return OutcomeAbandoned, nil
}

// dropOrphan finishes an abandon whose order is already gone
func (r *Reconciler) dropOrphan(ctx context.Context, item *provider.PendingNotification) (Outcome, error) {
	if err := r.store.Delete(ctx, item); err != nil {
		return OutcomeFailed, fmt.Errorf("delete pending notification: %w", err)
	}

	logger.Warn("Pending notification of an abandoned order removed", logger.LogContext{
		Provider:      SystemName,
		CorrelationID: item.CorrelationID,
	})
	return OutcomeAbandoned, nil
}

// settle marks the order paid and drops the pending record
func (r *Reconciler) settle(ctx context.Context, item *provider.PendingNotification, order *provider.Order) (Outcome, error) {
	logCtx := logger.LogContext{Provider: SystemName, CorrelationID: item.CorrelationID}

	order.CaptureTransactionResult = item.StatusCode
	order.CaptureTransactionID = item.ReferenceNo

	if err := r.orders.UpdateOrder(ctx, order); err != nil {
		return OutcomeFailed, fmt.Errorf("update order: %w", err)
	}

	notes := []string{item.Origin}
	if !item.Amount.IsZero() && !item.Amount.Equal(order.OrderTotal.Round(2)) {
		msg := fmt.Sprintf("SafetyPay paid amount %s %s differs from order total %s",
			formatAmount(item.Amount), item.CurrencyID, formatAmount(order.OrderTotal))
		logger.Warn(msg, logCtx)
		notes = append(notes, msg)
	}
	r.addNotes(ctx, order, notes...)

	if err := r.orders.MarkOrderAsPaid(ctx, order); err != nil {
		return OutcomeFailed, fmt.Errorf("mark order as paid: %w", err)
	}
	if err := r.store.Delete(ctx, item); err != nil {
		return OutcomeFailed, fmt.Errorf("delete pending notification: %w", err)
	}

	logger.Info("Order marked as paid", withField(logCtx, "order_id", order.ID))
	return OutcomePaid, nil
}

// addNotes appends audit notes; a failing note does not undo the settlement
func (r *Reconciler) addNotes(ctx context.Context, order *provider.Order, notes ...string) {
	for _, note := range notes {
		err := r.orders.InsertOrderNote(ctx, provider.OrderNote{
			OrderID:      order.ID,
			Note:         note,
			CreatedOnUTC: r.now().UTC(),
		})
		if err != nil {
			logger.Error("Failed to add order note", err, logger.LogContext{
				Provider: SystemName,
				Fields:   map[string]any{"order_id": order.ID},
			})
		}
	}
}

func (r *Reconciler) logAudit(ctx context.Context, item *provider.PendingNotification, outcome Outcome, err error) {
	event := provider.AuditEvent{
		Timestamp:     r.now().UTC(),
		Provider:      SystemName,
		Event:         "reconcile",
		CorrelationID: item.CorrelationID,
		StatusCode:    item.StatusCode,
		Outcome:       string(outcome),
	}
	if err != nil {
		event.Error = err.Error()
	}
	if auditErr := r.audit.LogAuditEvent(ctx, event); auditErr != nil {
		logger.Warn("Failed to write audit event", withError(logger.LogContext{Provider: SystemName}, auditErr))
	}
}
