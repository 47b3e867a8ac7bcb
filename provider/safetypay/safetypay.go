package safetypay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/paysettle/infra/logger"
	"github.com/mstgnz/paysettle/provider"
	"github.com/shopspring/decimal"
)

// operationCodePlaceholder is stored on the order until the operation code is known
const operationCodePlaceholder = "[OPERATION-CODE]"

// Method implements provider.PaymentMethod for SafetyPay express checkout
type Method struct {
	cfg        Config
	store      provider.NotificationStore
	orders     provider.OrderManager
	issuer     *Issuer
	reconciler *Reconciler
	locks      *provider.KeyedMutex
	now        func() time.Time
}

// NewProvider is the registry factory of the SafetyPay payment method
func NewProvider(deps provider.Dependencies, conf map[string]string) (provider.PaymentMethod, error) {
	cfg, err := ConfigFromMap(conf)
	if err != nil {
		return nil, err
	}
	return NewMethod(deps, cfg, NewClient(cfg))
}

// NewMethod wires a payment method around an explicit gateway
func NewMethod(deps provider.Dependencies, cfg Config, gateway Gateway) (*Method, error) {
	if deps.Store == nil {
		return nil, errors.New("safetypay: notification store is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("safetypay: order service is required")
	}
	if deps.Locks == nil {
		deps.Locks = provider.NewKeyedMutex()
	}

	cfg = cfg.withDefaults()
	issuer := NewIssuer(gateway, deps.Store, cfg)

	return &Method{
		cfg:        cfg,
		store:      deps.Store,
		orders:     deps.Orders,
		issuer:     issuer,
		reconciler: NewReconciler(deps.Store, deps.Orders, issuer, cfg, deps.Locks, deps.Audit),
		locks:      deps.Locks,
		now:        time.Now,
	}, nil
}

// Reconciler returns the reconciliation job bound to this method
func (m *Method) Reconciler() *Reconciler {
	return m.reconciler
}

// Config returns the effective settings
func (m *Method) Config() Config {
	return m.cfg
}

// SystemName returns the unique name of the payment method
func (m *Method) SystemName() string {
	return SystemName
}

// Capabilities reports that SafetyPay only supports redirect payments
func (m *Method) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportCapture:         false,
		SupportPartiallyRefund: false,
		SupportRefund:          false,
		SupportVoid:            false,
		RecurringPaymentType:   provider.RecurringNotSupported,
		PaymentMethodType:      provider.MethodTypeRedirection,
		SkipPaymentInfo:        false,
	}
}

// ProcessPayment obtains a redirect token for the order being placed
func (m *Method) ProcessPayment(ctx context.Context, request provider.ProcessPaymentRequest) (*provider.ProcessPaymentResult, error) {
	correlationID := request.OrderGUID.String()

	unlock := m.locks.Lock(correlationID)
	defer unlock()

	token, err := m.issuer.Issue(ctx, IssueRequest{
		CustomerID:    request.CustomerID,
		CorrelationID: correlationID,
		Amount:        request.OrderTotal,
	})
	if err != nil {
		logger.Error("Failed to obtain SafetyPay redirect token", err, logger.LogContext{
			Provider:      SystemName,
			CorrelationID: correlationID,
		})
		return &provider.ProcessPaymentResult{
			NewPaymentStatus: provider.StatusPending,
			Errors:           []string{err.Error()},
		}, err
	}

	return &provider.ProcessPaymentResult{
		NewPaymentStatus:               provider.StatusPending,
		AuthorizationTransactionID:     token.ClientRedirectURL,
		AuthorizationTransactionResult: operationCodePlaceholder,
		OperationCodeConfirmed:         token.OperationCodeConfirmed,
	}, nil
}

// PostProcessPayment fetches the operation code of a placed order and returns where the
// shopper has to be redirected
func (m *Method) PostProcessPayment(ctx context.Context, order *provider.Order) (*provider.PostProcessPaymentResult, error) {
	correlationID := order.OrderGUID.String()
	logCtx := logger.LogContext{Provider: SystemName, CorrelationID: correlationID}

	unlock := m.locks.Lock(correlationID)
	defer unlock()

	record, err := m.store.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("safetypay: load pending notification: %w", err)
	}
	if record == nil {
		record = &provider.PendingNotification{
			APIKey:            m.cfg.APIKey,
			CorrelationID:     correlationID,
			ClientRedirectURL: order.AuthorizationTransactionID,
		}
		if err := m.store.Insert(ctx, record); err != nil {
			return nil, fmt.Errorf("safetypay: insert pending notification: %w", err)
		}
	}

	redirectURL := order.AuthorizationTransactionID
	if redirectURL == "" {
		redirectURL = record.ClientRedirectURL
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("safetypay: order %d has no redirect url", order.ID)
	}

	if !record.OperationCodeConfirmed {
		record.OperationCodeConfirmed = m.issuer.Confirm(ctx, redirectURL)
	}

	code, err := m.issuer.RequestOperationCode(ctx, correlationID)
	if err != nil {
		logger.Error("Failed to obtain SafetyPay operation code", err, logCtx)
		return nil, err
	}

	order.AuthorizationTransactionResult = code
	order.AuthorizationTransactionCode = code
	order.AuthorizationTransactionID = redirectURL
	if err := m.orders.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("safetypay: update order: %w", err)
	}

	if err := m.orders.InsertOrderNote(ctx, provider.OrderNote{
		OrderID:      order.ID,
		Note:         fmt.Sprintf("Shopper sent to SafetyPay with operation code %s", code),
		CreatedOnUTC: m.now().UTC(),
	}); err != nil {
		logger.Error("Failed to add order note", err, logCtx)
	}

	record.PaymentReferenceNo = code
	record.ClientRedirectURL = redirectURL
	if err := m.store.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("safetypay: update pending notification: %w", err)
	}

	return &provider.PostProcessPaymentResult{RedirectURL: redirectURL, OperationCode: code}, nil
}

// HidePaymentMethod hides SafetyPay until the merchant credentials are configured
func (m *Method) HidePaymentMethod() bool {
	return !m.cfg.Configured()
}

// AdditionalHandlingFee returns the configured fixed or percentage fee
func (m *Method) AdditionalHandlingFee(subtotal decimal.Decimal) decimal.Decimal {
	if m.cfg.AdditionalFee.IsZero() {
		return decimal.Zero
	}
	if m.cfg.AdditionalFeePercentage {
		return subtotal.Mul(m.cfg.AdditionalFee).Div(decimal.NewFromInt(100)).Round(2)
	}
	return m.cfg.AdditionalFee.Round(2)
}

// CanRePostProcessPayment lets a shopper be redirected again once the order is a few seconds old
func (m *Method) CanRePostProcessPayment(order *provider.Order) bool {
	if order == nil || order.PaymentStatus != provider.StatusPending {
		return false
	}
	return m.now().UTC().Sub(order.CreatedOnUTC) >= rePostProcessDelay
}

// Capture is not supported by SafetyPay
func (m *Method) Capture(context.Context, *provider.Order) (*provider.OperationResult, error) {
	return provider.Unsupported("Capture"), provider.ErrNotSupported
}

// Refund is not supported by SafetyPay
func (m *Method) Refund(context.Context, *provider.Order, decimal.Decimal) (*provider.OperationResult, error) {
	return provider.Unsupported("Refund"), provider.ErrNotSupported
}

// Void is not supported by SafetyPay
func (m *Method) Void(context.Context, *provider.Order) (*provider.OperationResult, error) {
	return provider.Unsupported("Void"), provider.ErrNotSupported
}

// ProcessRecurringPayment is not supported by SafetyPay
func (m *Method) ProcessRecurringPayment(context.Context, provider.ProcessPaymentRequest) (*provider.OperationResult, error) {
	return &provider.OperationResult{Errors: []string{"Recurring payment not supported"}}, provider.ErrNotSupported
}

// CancelRecurringPayment is not supported by SafetyPay
func (m *Method) CancelRecurringPayment(context.Context, *provider.Order) (*provider.OperationResult, error) {
	return &provider.OperationResult{Errors: []string{"Recurring payment not supported"}}, provider.ErrNotSupported
}
