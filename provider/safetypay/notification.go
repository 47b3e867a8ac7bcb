package safetypay

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mstgnz/paysettle/provider"
	"github.com/shopspring/decimal"
)

// Gateway status codes
const (
	statusCodeExpired = "100"
	statusCodePaid    = "102"
)

// OperationStatus is the decoded gateway status of a pending notification
type OperationStatus int

const (
	StatusOther OperationStatus = iota
	StatusExpired
	StatusPaid
)

func (s OperationStatus) String() string {
	switch s {
	case StatusExpired:
		return "expired"
	case StatusPaid:
		return "paid"
	default:
		return "other"
	}
}

// DecodeStatus maps a gateway status code to an OperationStatus
func DecodeStatus(code string) OperationStatus {
	switch strings.TrimSpace(code) {
	case statusCodeExpired:
		return StatusExpired
	case statusCodePaid:
		return StatusPaid
	default:
		return StatusOther
	}
}

// ParseError reports a malformed inbound notification
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("safetypay: malformed notification: %v", e.Err)
	}
	return fmt.Sprintf("safetypay: malformed notification field %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Notification is the decoded inbound payload. It is a value and never aliases a stored record.
type Notification struct {
	APIKey             string
	RequestDateTime    string
	MerchantSalesID    string
	ReferenceNo        string
	CreationDateTime   string
	Amount             decimal.Decimal
	CurrencyID         string
	PaymentReferenceNo string
	Status             string
	Signature          string
	Origin             string
}

// TryParseCorrelationID parses a merchant sales id as a correlation id
func TryParseCorrelationID(s string) (uuid.UUID, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// ParseNotification decodes a flat key=value payload. Unknown keys are ignored.
// The correlation id must be a valid UUID so the record can be keyed on it.
func ParseNotification(raw []byte) (Notification, error) {
	body := string(raw)
	pairs, err := DecodeFlat(body)
	if err != nil {
		return Notification{}, &ParseError{Err: err}
	}
	if len(pairs) == 0 {
		return Notification{}, &ParseError{Err: fmt.Errorf("empty payload")}
	}

	n := Notification{Origin: body}
	for _, p := range pairs {
		switch p.Key {
		case "ApiKey":
			n.APIKey = p.Value
		case "RequestDateTime":
			n.RequestDateTime = p.Value
		case "MerchantSalesID":
			n.MerchantSalesID = p.Value
		case "ReferenceNo":
			n.ReferenceNo = p.Value
		case "CreationDateTime":
			n.CreationDateTime = p.Value
		case "Amount":
			if strings.TrimSpace(p.Value) == "" {
				continue
			}
			amount, err := decimal.NewFromString(strings.TrimSpace(p.Value))
			if err != nil {
				return Notification{}, &ParseError{Field: "Amount", Err: err}
			}
			n.Amount = amount
		case "CurrencyID":
			n.CurrencyID = p.Value
		case "PaymentReferenceNo":
			n.PaymentReferenceNo = p.Value
		case "Status":
			n.Status = p.Value
		case "Signature":
			n.Signature = p.Value
		}
	}

	if _, ok := TryParseCorrelationID(n.MerchantSalesID); !ok {
		return Notification{}, &ParseError{Field: "MerchantSalesID", Err: fmt.Errorf("invalid correlation id %q", n.MerchantSalesID)}
	}

	return n, nil
}

// SignatureFields returns the fields covered by the notification signature, in protocol order
func (n Notification) SignatureFields() []string {
	return []string{
		n.RequestDateTime,
		n.MerchantSalesID,
		n.ReferenceNo,
		n.CreationDateTime,
		formatAmount(n.Amount),
		n.CurrencyID,
		n.PaymentReferenceNo,
		n.Status,
	}
}

// VerifySignature checks the notification signature against the signature key
func (n Notification) VerifySignature(key string) bool {
	return Verify(n.SignatureFields(), n.Signature, key)
}

// ToPending builds a new pending record from the notification
func (n Notification) ToPending() *provider.PendingNotification {
	p := &provider.PendingNotification{}
	n.ApplyTo(p)
	return p
}

// ApplyTo refreshes every gateway field of p and replaces its origin with the latest payload.
// Merchant-side fields (redirect url, confirmation flag) are left alone.
func (n Notification) ApplyTo(p *provider.PendingNotification) {
	p.APIKey = n.APIKey
	p.RequestDateTime = n.RequestDateTime
	p.CorrelationID = n.MerchantSalesID
	p.ReferenceNo = n.ReferenceNo
	p.CreationDateTime = n.CreationDateTime
	p.Amount = n.Amount.Round(2)
	p.CurrencyID = n.CurrencyID
	p.PaymentReferenceNo = n.PaymentReferenceNo
	p.StatusCode = n.Status
	p.Signature = n.Signature
	p.Origin = n.Origin
}

// Response is the signed acknowledgement returned to the gateway
type Response struct {
	ResponseDateTime   string
	MerchantSalesID    string
	ReferenceNo        string
	CreationDateTime   string
	Amount             decimal.Decimal
	CurrencyID         string
	PaymentReferenceNo string
	Status             string
	OrderNo            string
	Signature          string
}

// NewResponse builds the acknowledgement for a notification. The gateway expects the
// request timestamp echoed back and the merchant sales id as order number.
func NewResponse(n Notification) Response {
	return Response{
		ResponseDateTime:   n.RequestDateTime,
		MerchantSalesID:    n.MerchantSalesID,
		ReferenceNo:        n.ReferenceNo,
		CreationDateTime:   n.CreationDateTime,
		Amount:             n.Amount,
		CurrencyID:         n.CurrencyID,
		PaymentReferenceNo: n.PaymentReferenceNo,
		Status:             n.Status,
		OrderNo:            n.MerchantSalesID,
	}
}

// SignatureFields returns the fields covered by the response signature, in protocol order
func (r Response) SignatureFields() []string {
	return []string{
		r.ResponseDateTime,
		r.MerchantSalesID,
		r.ReferenceNo,
		r.CreationDateTime,
		formatAmount(r.Amount),
		r.CurrencyID,
		r.PaymentReferenceNo,
		r.Status,
		r.OrderNo,
	}
}

// Sign returns a copy of the response carrying a fresh signature
func (r Response) Sign(key string) Response {
	r.Signature = Sign(r.SignatureFields(), key)
	return r
}

// Encode serializes the response in the flat wire format
func (r Response) Encode() string {
	return EncodeFlat([]Pair{
		{"ResponseDateTime", r.ResponseDateTime},
		{"MerchantSalesID", r.MerchantSalesID},
		{"ReferenceNo", r.ReferenceNo},
		{"CreationDateTime", r.CreationDateTime},
		{"Amount", formatAmount(r.Amount)},
		{"CurrencyID", r.CurrencyID},
		{"PaymentReferenceNo", r.PaymentReferenceNo},
		{"Status", r.Status},
		{"OrderNo", r.OrderNo},
		{"Signature", r.Signature},
	})
}

// DecodeResponse parses a flat acknowledgement produced by Encode
func DecodeResponse(raw string) (Response, error) {
	pairs, err := DecodeFlat(raw)
	if err != nil {
		return Response{}, &ParseError{Err: err}
	}

	var r Response
	for _, p := range pairs {
		switch p.Key {
		case "ResponseDateTime":
			r.ResponseDateTime = p.Value
		case "MerchantSalesID":
			r.MerchantSalesID = p.Value
		case "ReferenceNo":
			r.ReferenceNo = p.Value
		case "CreationDateTime":
			r.CreationDateTime = p.Value
		case "Amount":
			amount, err := decimal.NewFromString(p.Value)
			if err != nil {
				return Response{}, &ParseError{Field: "Amount", Err: err}
			}
			r.Amount = amount
		case "CurrencyID":
			r.CurrencyID = p.Value
		case "PaymentReferenceNo":
			r.PaymentReferenceNo = p.Value
		case "Status":
			r.Status = p.Value
		case "OrderNo":
			r.OrderNo = p.Value
		case "Signature":
			r.Signature = p.Value
		}
	}
	return r, nil
}
