package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mstgnz/paysettle/infra/logger"
	"github.com/mstgnz/paysettle/infra/response"
	"github.com/mstgnz/paysettle/infra/scheduler"
	"github.com/mstgnz/paysettle/provider"
	"github.com/mstgnz/paysettle/provider/safetypay"
)

// ReconcileRunner triggers an immediate reconciliation run
type ReconcileRunner interface {
	RunOnce(ctx context.Context) (*safetypay.ReconcileReport, error)
}

// AuditSearcher reads the audit trail
type AuditSearcher interface {
	GetCorrelationHistory(ctx context.Context, correlationID string) ([]provider.AuditEvent, error)
	GetOutcomeStats(ctx context.Context, hours int) (map[string]int64, error)
}

// AdminHandler serves the operator API
type AdminHandler struct {
	store      provider.NotificationStore
	method     provider.PaymentMethod
	orders     provider.OrderService
	reconciler ReconcileRunner
	audit      AuditSearcher
	validate   *validator.Validate
}

// NewAdminHandler creates a new admin handler. audit may be nil when the audit trail is disabled.
func NewAdminHandler(store provider.NotificationStore, method provider.PaymentMethod, orders provider.OrderService, reconciler ReconcileRunner, audit AuditSearcher, validate *validator.Validate) *AdminHandler {
	return &AdminHandler{
		store:      store,
		method:     method,
		orders:     orders,
		reconciler: reconciler,
		audit:      audit,
		validate:   validate,
	}
}

// ListNotifications returns every pending notification, newest first
func (h *AdminHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.GetAll(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to list pending notifications", err)
		return
	}
	if items == nil {
		items = []*provider.PendingNotification{}
	}

	response.Success(w, http.StatusOK, "Pending notifications retrieved", items)
}

// GetNotification returns the pending notification of one correlation id
func (h *AdminHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	correlationID, ok := correlationParam(w, r)
	if !ok {
		return
	}

	item, err := h.store.GetByCorrelationID(r.Context(), correlationID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load pending notification", err)
		return
	}
	if item == nil {
		response.Error(w, http.StatusNotFound, "Pending notification not found", nil)
		return
	}

	response.Success(w, http.StatusOK, "Pending notification retrieved", item)
}

// GetNotificationHistory returns the audit trail of one correlation id
func (h *AdminHandler) GetNotificationHistory(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		response.Error(w, http.StatusServiceUnavailable, "Audit trail is disabled", nil)
		return
	}
	correlationID, ok := correlationParam(w, r)
	if !ok {
		return
	}

	events, err := h.audit.GetCorrelationHistory(r.Context(), correlationID)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "Failed to search audit trail", err)
		return
	}

	response.Success(w, http.StatusOK, "Audit history retrieved", events)
}

// GetAuditStats counts audit outcomes over the last ?hours= (default 24)
func (h *AdminHandler) GetAuditStats(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		response.Error(w, http.StatusServiceUnavailable, "Audit trail is disabled", nil)
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 24*30 {
			response.Error(w, http.StatusBadRequest, "hours must be between 1 and 720", nil)
			return
		}
		hours = parsed
	}

	stats, err := h.audit.GetOutcomeStats(r.Context(), hours)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "Failed to aggregate audit trail", err)
		return
	}

	response.Success(w, http.StatusOK, "Audit stats retrieved", map[string]any{
		"hours":    hours,
		"outcomes": stats,
	})
}

// Reconcile runs the reconciliation job now
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.RunOnce(r.Context())
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		response.Error(w, http.StatusConflict, "Reconciliation already in progress", nil)
		return
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Reconciliation finished", report)
}

// ProcessPayment obtains a redirect token for an order being placed
func (h *AdminHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req provider.ProcessPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	result, err := h.method.ProcessPayment(ctx, req)
	if err != nil {
		logger.Error("ProcessPayment failed", err, logger.LogContext{
			Provider:      h.method.SystemName(),
			CorrelationID: req.OrderGUID.String(),
		})
		response.WriteJSON(w, http.StatusBadGateway, response.Response{
			Code:    http.StatusBadGateway,
			Message: "Payment could not be started",
			Error:   err.Error(),
			Data:    result,
		})
		return
	}

	response.Success(w, http.StatusOK, "Payment started", result)
}

// RedirectPayment runs PostProcessPayment for a placed order and returns the shopper redirect
func (h *AdminHandler) RedirectPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	orderGUID, err := uuid.Parse(chi.URLParam(r, "orderGuid"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid order GUID", err)
		return
	}

	order, err := h.orders.GetOrderByGUID(ctx, orderGUID)
	if errors.Is(err, provider.ErrOrderNotFound) {
		response.Error(w, http.StatusNotFound, "Order not found", nil)
		return
	}
	if err != nil {
		response.Error(w, http.StatusBadGateway, "Failed to load order", err)
		return
	}

	if order.PaymentMethodSystemName != "" && order.PaymentMethodSystemName != h.method.SystemName() {
		response.Error(w, http.StatusConflict, "Order is paid with another payment method", nil)
		return
	}

	result, err := h.method.PostProcessPayment(ctx, order)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "Failed to prepare redirect", err)
		return
	}

	response.Success(w, http.StatusOK, "Redirect prepared", result)
}

// GetMethod describes the configured payment method
func (h *AdminHandler) GetMethod(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "Payment method retrieved", map[string]any{
		"systemName":   h.method.SystemName(),
		"capabilities": h.method.Capabilities(),
		"hidden":       h.method.HidePaymentMethod(),
	})
}

func correlationParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := safetypay.TryParseCorrelationID(chi.URLParam(r, "correlationID"))
	if !ok {
		response.Error(w, http.StatusBadRequest, "Invalid correlation id", nil)
		return "", false
	}
	return id.String(), true
}
