package safetypay

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/paysettle/provider"
	"github.com/shopspring/decimal"
)

const testSignatureKey = "test-signature-key"

func testConfig() Config {
	return Config{
		APIKey:              "test-api-key",
		SignatureKey:        testSignatureKey,
		UseSandbox:          true,
		TransactionOkURL:    "https://shop.example/ok",
		TransactionErrorURL: "https://shop.example/error",
		MaxAttempts:         3,
		BackoffBase:         time.Millisecond,
		BackoffMax:          time.Millisecond,
	}.withDefaults()
}

// mockGateway is a Gateway whose calls are answered by function fields
type mockGateway struct {
	mu sync.Mutex

	RequestExpressTokenFunc      func(ctx context.Context, customerID int64, correlationID string, amount decimal.Decimal) (string, error)
	RequestOperationActivityFunc func(ctx context.Context, correlationID string) (string, error)
	ConfirmRedirectFunc          func(ctx context.Context, redirectURL string) (string, error)

	tokenCalls    int
	activityCalls int
	confirmCalls  int
}

func (m *mockGateway) RequestExpressToken(ctx context.Context, customerID int64, correlationID string, amount decimal.Decimal) (string, error) {
	m.mu.Lock()
	m.tokenCalls++
	m.mu.Unlock()
	if m.RequestExpressTokenFunc == nil {
		return "", fmt.Errorf("unexpected RequestExpressToken")
	}
	return m.RequestExpressTokenFunc(ctx, customerID, correlationID, amount)
}

func (m *mockGateway) RequestOperationActivity(ctx context.Context, correlationID string) (string, error) {
	m.mu.Lock()
	m.activityCalls++
	m.mu.Unlock()
	if m.RequestOperationActivityFunc == nil {
		return "", fmt.Errorf("unexpected RequestOperationActivity")
	}
	return m.RequestOperationActivityFunc(ctx, correlationID)
}

func (m *mockGateway) ConfirmRedirect(ctx context.Context, redirectURL string) (string, error) {
	m.mu.Lock()
	m.confirmCalls++
	m.mu.Unlock()
	if m.ConfirmRedirectFunc == nil {
		return "", fmt.Errorf("unexpected ConfirmRedirect")
	}
	return m.ConfirmRedirectFunc(ctx, redirectURL)
}

// healthyGateway answers every call successfully
func healthyGateway(redirectURL, operationCode string) *mockGateway {
	return &mockGateway{
		RequestExpressTokenFunc: func(_ context.Context, _ int64, _ string, _ decimal.Decimal) (string, error) {
			return expressTokenCSV(redirectURL, testSignatureKey), nil
		},
		RequestOperationActivityFunc: func(_ context.Context, correlationID string) (string, error) {
			return operationActivityCSV(correlationID, operationCode, testSignatureKey), nil
		},
		ConfirmRedirectFunc: func(context.Context, string) (string, error) {
			return confirmedPage(), nil
		},
	}
}

// expressTokenCSV renders a signed, URL-encoded express token answer
func expressTokenCSV(redirectURL, key string) string {
	responseDateTime := "2024-05-01T10:00:00"
	signature := Sign([]string{responseDateTime, redirectURL}, key)
	return url.QueryEscape(fmt.Sprintf("0,%s,%s,%s", responseDateTime, redirectURL, signature))
}

// operationActivityCSV renders a signed, URL-encoded activity answer listing one operation
func operationActivityCSV(correlationID, operationCode, key string) string {
	responseDateTime := "2024-05-01T10:00:05"
	operationID := "OP-" + operationCode
	signature := Sign([]string{responseDateTime, operationID, correlationID, "101"}, key)
	return url.QueryEscape(fmt.Sprintf("0,%s,%s\n2024-05-01T09:59:00,%s,%s,ORD-1,19.99,USD,19.99,USD,%s,101",
		responseDateTime, signature, operationID, correlationID, operationCode))
}

func confirmedPage() string {
	page := "<html><body>"
	for i := 0; i < 20; i++ {
		page += "<p>SafetyPay</p>"
	}
	return page + "</body></html>"
}

// fakeOrders is an in-memory order management system
type fakeOrders struct {
	mu sync.Mutex

	orders  map[uuid.UUID]*provider.Order
	notes   []provider.OrderNote
	paid    []int64
	deleted []int64

	UpdateOrderErr     error
	MarkOrderAsPaidErr error
}

func newFakeOrders(orders ...*provider.Order) *fakeOrders {
	f := &fakeOrders{orders: make(map[uuid.UUID]*provider.Order)}
	for _, o := range orders {
		c := *o
		f.orders[o.OrderGUID] = &c
	}
	return f
}

func (f *fakeOrders) GetOrderByGUID(_ context.Context, orderGUID uuid.UUID) (*provider.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderGUID]
	if !ok {
		return nil, provider.ErrOrderNotFound
	}
	c := *o
	return &c, nil
}

func (f *fakeOrders) UpdateOrder(_ context.Context, order *provider.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateOrderErr != nil {
		return f.UpdateOrderErr
	}
	for guid, o := range f.orders {
		if o.ID == order.ID {
			delete(f.orders, guid)
		}
	}
	c := *order
	f.orders[order.OrderGUID] = &c
	return nil
}

func (f *fakeOrders) InsertOrderNote(_ context.Context, note provider.OrderNote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note)
	return nil
}

func (f *fakeOrders) DeleteOrder(_ context.Context, order *provider.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.orders, order.OrderGUID)
	f.deleted = append(f.deleted, order.ID)
	return nil
}

func (f *fakeOrders) MarkOrderAsPaid(_ context.Context, order *provider.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MarkOrderAsPaidErr != nil {
		return f.MarkOrderAsPaidErr
	}
	if o, ok := f.orders[order.OrderGUID]; ok {
		o.PaymentStatus = provider.StatusPaid
	}
	f.paid = append(f.paid, order.ID)
	return nil
}

func (f *fakeOrders) order(guid uuid.UUID) *provider.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[guid]; ok {
		c := *o
		return &c
	}
	return nil
}

func (f *fakeOrders) noteTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, len(f.notes))
	for i, n := range f.notes {
		texts[i] = n.Note
	}
	return texts
}

func newOrder(id int64) *provider.Order {
	return &provider.Order{
		ID:                             id,
		OrderGUID:                      uuid.New(),
		CustomerID:                     1000 + id,
		OrderTotal:                     decimal.RequireFromString("19.99"),
		CurrencyCode:                   "USD",
		PaymentStatus:                  provider.StatusPending,
		PaymentMethodSystemName:        SystemName,
		AuthorizationTransactionResult: "OLD-CODE",
		CreatedOnUTC:                   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func pendingFor(order *provider.Order, status string) *provider.PendingNotification {
	return &provider.PendingNotification{
		APIKey:           "test-api-key",
		RequestDateTime:  "2024-05-01T10:00:00",
		CorrelationID:    order.OrderGUID.String(),
		ReferenceNo:      "REF-" + status,
		CreationDateTime: "2024-05-01T09:59:00",
		Amount:           order.OrderTotal,
		CurrencyID:       "USD",
		StatusCode:       status,
		Origin:           "MerchantSalesID=" + order.OrderGUID.String() + "&Status=" + status,
	}
}

// noSleep makes retries instantaneous and counts the waits
func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if waits != nil {
			*waits = append(*waits, d)
		}
		return ctx.Err()
	}
}
