package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the payment status of an order
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusAuthorized PaymentStatus = "authorized"
	StatusPaid       PaymentStatus = "paid"
	StatusVoided     PaymentStatus = "voided"
	StatusRefunded   PaymentStatus = "refunded"
)

// PaymentMethodType describes how the shopper completes the payment
type PaymentMethodType string

const (
	MethodTypeStandard    PaymentMethodType = "standard"
	MethodTypeRedirection PaymentMethodType = "redirection"
	MethodTypeButton      PaymentMethodType = "button"
)

// RecurringPaymentType describes the recurring billing support of a payment method
type RecurringPaymentType string

const (
	RecurringNotSupported RecurringPaymentType = "not_supported"
	RecurringManual       RecurringPaymentType = "manual"
	RecurringAutomatic    RecurringPaymentType = "automatic"
)

var (
	// ErrNotSupported is returned by operations a payment method does not implement
	ErrNotSupported = errors.New("operation not supported by payment method")

	// ErrOrderNotFound is returned by an OrderService when no order matches the lookup
	ErrOrderNotFound = errors.New("order not found")
)

// Order is the subset of the shop order the settlement layer reads and mutates.
// The order itself is owned by the surrounding order management system.
type Order struct {
	ID                             int64           `json:"id"`
	OrderGUID                      uuid.UUID       `json:"orderGuid"`
	CustomerID                     int64           `json:"customerId"`
	OrderTotal                     decimal.Decimal `json:"orderTotal"`
	CurrencyCode                   string          `json:"currencyCode,omitempty"`
	PaymentStatus                  PaymentStatus   `json:"paymentStatus"`
	PaymentMethodSystemName        string          `json:"paymentMethodSystemName,omitempty"`
	AuthorizationTransactionID     string          `json:"authorizationTransactionId,omitempty"`
	AuthorizationTransactionCode   string          `json:"authorizationTransactionCode,omitempty"`
	AuthorizationTransactionResult string          `json:"authorizationTransactionResult,omitempty"`
	CaptureTransactionID           string          `json:"captureTransactionId,omitempty"`
	CaptureTransactionResult       string          `json:"captureTransactionResult,omitempty"`
	CreatedOnUTC                   time.Time       `json:"createdOnUtc"`
}

// OrderNote is an audit note appended to an order
type OrderNote struct {
	OrderID           int64     `json:"orderId"`
	Note              string    `json:"note"`
	DisplayToCustomer bool      `json:"displayToCustomer"`
	CreatedOnUTC      time.Time `json:"createdOnUtc"`
}

// OrderService is the order lookup and update contract of the order management system
type OrderService interface {
	// GetOrderByGUID returns ErrOrderNotFound when no order has the given GUID
	GetOrderByGUID(ctx context.Context, orderGUID uuid.UUID) (*Order, error)
	UpdateOrder(ctx context.Context, order *Order) error
	InsertOrderNote(ctx context.Context, note OrderNote) error
	DeleteOrder(ctx context.Context, order *Order) error
}

// OrderProcessor is the order processing contract used to settle an order
type OrderProcessor interface {
	MarkOrderAsPaid(ctx context.Context, order *Order) error
}

// OrderManager combines order lookup/update with order processing
type OrderManager interface {
	OrderService
	OrderProcessor
}

// Capabilities lists what a payment method supports
type Capabilities struct {
	SupportCapture         bool                 `json:"supportCapture"`
	SupportPartiallyRefund bool                 `json:"supportPartiallyRefund"`
	SupportRefund          bool                 `json:"supportRefund"`
	SupportVoid            bool                 `json:"supportVoid"`
	RecurringPaymentType   RecurringPaymentType `json:"recurringPaymentType"`
	PaymentMethodType      PaymentMethodType    `json:"paymentMethodType"`
	SkipPaymentInfo        bool                 `json:"skipPaymentInfo"`
}

// ProcessPaymentRequest contains the checkout data needed to start a payment
type ProcessPaymentRequest struct {
	OrderGUID  uuid.UUID       `json:"orderGuid" validate:"required"`
	CustomerID int64           `json:"customerId" validate:"required,gt=0"`
	OrderTotal decimal.Decimal `json:"orderTotal" validate:"required"`
}

// ProcessPaymentResult is the outcome of ProcessPayment
type ProcessPaymentResult struct {
	NewPaymentStatus               PaymentStatus `json:"newPaymentStatus"`
	AuthorizationTransactionID     string        `json:"authorizationTransactionId,omitempty"`
	AuthorizationTransactionResult string        `json:"authorizationTransactionResult,omitempty"`
	OperationCodeConfirmed         bool          `json:"operationCodeConfirmed"`
	Errors                         []string      `json:"errors,omitempty"`
}

// Success reports whether the result carries no errors
func (r *ProcessPaymentResult) Success() bool {
	return len(r.Errors) == 0
}

// PostProcessPaymentResult tells the caller where to send the shopper
type PostProcessPaymentResult struct {
	RedirectURL   string `json:"redirectUrl"`
	OperationCode string `json:"operationCode"`
}

// OperationResult is returned by capture, refund, void and recurring operations
type OperationResult struct {
	Errors []string `json:"errors,omitempty"`
}

// Success reports whether the operation carries no errors
func (r *OperationResult) Success() bool {
	return len(r.Errors) == 0
}

// Unsupported builds the result returned by an operation the method does not implement
func Unsupported(operation string) *OperationResult {
	return &OperationResult{Errors: []string{operation + " method not supported"}}
}

// PaymentMethod defines the interface implemented by a redirect payment method
type PaymentMethod interface {
	// SystemName returns the unique name of the payment method
	SystemName() string

	// Capabilities returns what the payment method supports
	Capabilities() Capabilities

	// ProcessPayment obtains a redirect token for an order being placed
	ProcessPayment(ctx context.Context, request ProcessPaymentRequest) (*ProcessPaymentResult, error)

	// PostProcessPayment prepares the shopper redirect after the order was placed
	PostProcessPayment(ctx context.Context, order *Order) (*PostProcessPaymentResult, error)

	// HidePaymentMethod reports whether the method should be hidden at checkout
	HidePaymentMethod() bool

	// AdditionalHandlingFee returns the fee added on top of the order subtotal
	AdditionalHandlingFee(subtotal decimal.Decimal) decimal.Decimal

	// CanRePostProcessPayment reports whether the shopper may be redirected again
	CanRePostProcessPayment(order *Order) bool

	Capture(ctx context.Context, order *Order) (*OperationResult, error)
	Refund(ctx context.Context, order *Order, amount decimal.Decimal) (*OperationResult, error)
	Void(ctx context.Context, order *Order) (*OperationResult, error)
	ProcessRecurringPayment(ctx context.Context, request ProcessPaymentRequest) (*OperationResult, error)
	CancelRecurringPayment(ctx context.Context, order *Order) (*OperationResult, error)
}

// Dependencies are the collaborators handed to a payment method factory
type Dependencies struct {
	Store  NotificationStore
	Orders OrderManager
	Audit  AuditLogger
	Locks  *KeyedMutex
}

// MethodFactory creates a payment method from its collaborators and a flat config map
type MethodFactory func(deps Dependencies, config map[string]string) (PaymentMethod, error)
