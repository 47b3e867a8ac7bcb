package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mstgnz/paysettle/provider"
	"github.com/mstgnz/paysettle/provider/safetypay"
	"github.com/shopspring/decimal"
)

const (
	testSignatureKey  = "test-signature-key"
	testCorrelationID = "3fa85f64-5717-4562-b3fc-2c963f66afa6"
)

type notificationFields struct {
	RequestDateTime    string
	MerchantSalesID    string
	ReferenceNo        string
	CreationDateTime   string
	Amount             string
	CurrencyID         string
	PaymentReferenceNo string
	Status             string
	Signature          string
}

func defaultFields() notificationFields {
	return notificationFields{
		RequestDateTime:    "2024-05-01T10:00:00",
		MerchantSalesID:    testCorrelationID,
		ReferenceNo:        "123456",
		CreationDateTime:   "2024-05-01T09:59:00",
		Amount:             "19.99",
		CurrencyID:         "USD",
		PaymentReferenceNo: "778899",
		Status:             "102",
	}
}

// payload renders a notification body; an empty Signature is filled with a valid one
func payload(f notificationFields) string {
	if f.Signature == "" {
		f.Signature = safetypay.Sign([]string{
			f.RequestDateTime, f.MerchantSalesID, f.ReferenceNo, f.CreationDateTime,
			decimal.RequireFromString(f.Amount).StringFixed(2), f.CurrencyID, f.PaymentReferenceNo, f.Status,
		}, testSignatureKey)
	}
	return fmt.Sprintf("ApiKey=K1&RequestDateTime=%s&MerchantSalesID=%s&ReferenceNo=%s&CreationDateTime=%s&Amount=%s&CurrencyID=%s&PaymentReferenceNo=%s&Status=%s&Signature=%s",
		f.RequestDateTime, f.MerchantSalesID, f.ReferenceNo, f.CreationDateTime, f.Amount,
		f.CurrencyID, f.PaymentReferenceNo, f.Status, f.Signature)
}

// recordingAudit keeps every audit event in memory
type recordingAudit struct {
	mu     sync.Mutex
	events []provider.AuditEvent
	err    error
}

func (a *recordingAudit) LogAuditEvent(_ context.Context, e provider.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return a.err
}

func (a *recordingAudit) outcomes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Outcome
	}
	return out
}

// storeHooks wraps a real store and lets a test intercept calls
type storeHooks struct {
	provider.NotificationStore

	GetByCorrelationIDFunc func(ctx context.Context, id string) (*provider.PendingNotification, error)
	InsertFunc             func(ctx context.Context, n *provider.PendingNotification) error
	UpdateFunc             func(ctx context.Context, n *provider.PendingNotification) error
	GetAllFunc             func(ctx context.Context) ([]*provider.PendingNotification, error)

	mu        sync.Mutex
	mutations int
}

func (s *storeHooks) GetByCorrelationID(ctx context.Context, id string) (*provider.PendingNotification, error) {
	if s.GetByCorrelationIDFunc != nil {
		return s.GetByCorrelationIDFunc(ctx, id)
	}
	return s.NotificationStore.GetByCorrelationID(ctx, id)
}

func (s *storeHooks) Insert(ctx context.Context, n *provider.PendingNotification) error {
	s.count()
	if s.InsertFunc != nil {
		return s.InsertFunc(ctx, n)
	}
	return s.NotificationStore.Insert(ctx, n)
}

func (s *storeHooks) Update(ctx context.Context, n *provider.PendingNotification) error {
	s.count()
	if s.UpdateFunc != nil {
		return s.UpdateFunc(ctx, n)
	}
	return s.NotificationStore.Update(ctx, n)
}

func (s *storeHooks) GetAll(ctx context.Context) ([]*provider.PendingNotification, error) {
	if s.GetAllFunc != nil {
		return s.GetAllFunc(ctx)
	}
	return s.NotificationStore.GetAll(ctx)
}

func (s *storeHooks) count() {
	s.mu.Lock()
	s.mutations++
	s.mu.Unlock()
}

func (s *storeHooks) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// mockMethod is a PaymentMethod answered by function fields
type mockMethod struct {
	ProcessPaymentFunc     func(ctx context.Context, req provider.ProcessPaymentRequest) (*provider.ProcessPaymentResult, error)
	PostProcessPaymentFunc func(ctx context.Context, order *provider.Order) (*provider.PostProcessPaymentResult, error)
}

func (m *mockMethod) SystemName() string { return safetypay.SystemName }

func (m *mockMethod) Capabilities() provider.Capabilities {
	return provider.Capabilities{PaymentMethodType: provider.MethodTypeRedirection}
}

func (m *mockMethod) ProcessPayment(ctx context.Context, req provider.ProcessPaymentRequest) (*provider.ProcessPaymentResult, error) {
	if m.ProcessPaymentFunc != nil {
		return m.ProcessPaymentFunc(ctx, req)
	}
	return &provider.ProcessPaymentResult{
		NewPaymentStatus:               provider.StatusPending,
		AuthorizationTransactionID:     "https://sandbox.safetypay.example/r/abc",
		AuthorizationTransactionResult: "[OPERATION-CODE]",
	}, nil
}

func (m *mockMethod) PostProcessPayment(ctx context.Context, order *provider.Order) (*provider.PostProcessPaymentResult, error) {
	if m.PostProcessPaymentFunc != nil {
		return m.PostProcessPaymentFunc(ctx, order)
	}
	return &provider.PostProcessPaymentResult{RedirectURL: order.AuthorizationTransactionID, OperationCode: "OP-1"}, nil
}

func (m *mockMethod) HidePaymentMethod() bool { return false }

func (m *mockMethod) AdditionalHandlingFee(decimal.Decimal) decimal.Decimal { return decimal.Zero }

func (m *mockMethod) CanRePostProcessPayment(*provider.Order) bool { return false }

func (m *mockMethod) Capture(context.Context, *provider.Order) (*provider.OperationResult, error) {
	return provider.Unsupported("Capture"), provider.ErrNotSupported
}

func (m *mockMethod) Refund(context.Context, *provider.Order, decimal.Decimal) (*provider.OperationResult, error) {
	return provider.Unsupported("Refund"), provider.ErrNotSupported
}

func (m *mockMethod) Void(context.Context, *provider.Order) (*provider.OperationResult, error) {
	return provider.Unsupported("Void"), provider.ErrNotSupported
}

func (m *mockMethod) ProcessRecurringPayment(context.Context, provider.ProcessPaymentRequest) (*provider.OperationResult, error) {
	return provider.Unsupported("Recurring payment"), provider.ErrNotSupported
}

func (m *mockMethod) CancelRecurringPayment(context.Context, *provider.Order) (*provider.OperationResult, error) {
	return provider.Unsupported("Recurring payment"), provider.ErrNotSupported
}

// mockOrders only answers lookups; the admin API never writes orders directly
type mockOrders struct {
	orders map[uuid.UUID]*provider.Order
	err    error
}

func (m *mockOrders) GetOrderByGUID(_ context.Context, guid uuid.UUID) (*provider.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.orders[guid]
	if !ok {
		return nil, provider.ErrOrderNotFound
	}
	c := *o
	return &c, nil
}

func (m *mockOrders) UpdateOrder(context.Context, *provider.Order) error { return nil }

func (m *mockOrders) InsertOrderNote(context.Context, provider.OrderNote) error { return nil }

func (m *mockOrders) DeleteOrder(context.Context, *provider.Order) error { return nil }

type runnerFunc func(ctx context.Context) (*safetypay.ReconcileReport, error)

func (f runnerFunc) RunOnce(ctx context.Context) (*safetypay.ReconcileReport, error) { return f(ctx) }

type mockSearcher struct {
	history []provider.AuditEvent
	stats   map[string]int64
	err     error
	hours   int
}

func (m *mockSearcher) GetCorrelationHistory(context.Context, string) ([]provider.AuditEvent, error) {
	return m.history, m.err
}

func (m *mockSearcher) GetOutcomeStats(_ context.Context, hours int) (map[string]int64, error) {
	m.hours = hours
	return m.stats, m.err
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var errBoom = errors.New("boom")
