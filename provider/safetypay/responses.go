package safetypay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrSignatureMismatch is returned when a gateway message carries a wrong signature
var ErrSignatureMismatch = errors.New("safetypay: signature mismatch")

// GatewayError is a non-zero error number reported by the gateway
type GatewayError struct {
	Number string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("safetypay: gateway error number %s", e.Number)
}

// ExpressTokenResponse is the decoded answer to an express token request
type ExpressTokenResponse struct {
	ResponseDateTime  string
	ClientRedirectURL string
	Signature         string
}

// OperationActivity is one operation listed by the gateway for a merchant sales id
type OperationActivity struct {
	CreationDateTime   string
	OperationID        string
	MerchantSalesID    string
	MerchantOrderID    string
	Amount             decimal.Decimal
	CurrencyID         string
	ShopperAmount      string
	ShopperCurrencyID  string
	PaymentReferenceNo string
	StatusCode         string
}

// OperationActivityResponse is the decoded answer to an operation activity request
type OperationActivityResponse struct {
	ResponseDateTime string
	Signature        string
	Operations       []OperationActivity
}

// ReferenceFor returns the operation code the shopper pays with for the given merchant sales id
func (r *OperationActivityResponse) ReferenceFor(merchantSalesID string) (string, bool) {
	for _, op := range r.Operations {
		if !strings.EqualFold(op.MerchantSalesID, merchantSalesID) {
			continue
		}
		if op.PaymentReferenceNo != "" {
			return op.PaymentReferenceNo, true
		}
		if op.OperationID != "" {
			return op.OperationID, true
		}
	}
	return "", false
}

func (r *OperationActivityResponse) signatureFields() []string {
	fields := []string{r.ResponseDateTime}
	for _, op := range r.Operations {
		fields = append(fields, op.OperationID, op.MerchantSalesID, op.StatusCode)
	}
	return fields
}

func readCSV(text string) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimSpace(text)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func checkErrorNumber(number string) error {
	number = strings.TrimSpace(number)
	if number != "" && number != "0" {
		return &GatewayError{Number: number}
	}
	return nil
}

// DecodeExpressTokenResponse URL-decodes and parses an express token answer:
// ErrorNumber,ResponseDateTime,ClientRedirectURL,Signature.
// The signature is checked when the gateway sends one.
func DecodeExpressTokenResponse(raw, signatureKey string) (*ExpressTokenResponse, error) {
	records, err := readCSV(urlDecode(raw))
	if err != nil {
		return nil, fmt.Errorf("safetypay: express token response: %w", err)
	}
	if len(records) == 0 || len(records[0]) < 3 {
		return nil, fmt.Errorf("safetypay: express token response has no token: %q", raw)
	}

	rec := records[0]
	if err := checkErrorNumber(rec[0]); err != nil {
		return nil, err
	}

	resp := &ExpressTokenResponse{
		ResponseDateTime:  rec[1],
		ClientRedirectURL: strings.TrimSpace(rec[2]),
	}
	if len(rec) > 3 {
		resp.Signature = rec[3]
	}

	if resp.ClientRedirectURL == "" {
		return nil, fmt.Errorf("safetypay: express token response has an empty redirect url")
	}
	if resp.Signature != "" && !Verify([]string{resp.ResponseDateTime, resp.ClientRedirectURL}, resp.Signature, signatureKey) {
		return nil, ErrSignatureMismatch
	}

	return resp, nil
}

// DecodeOperationActivity URL-decodes and parses an operation activity answer. The first
// record is ErrorNumber,ResponseDateTime,Signature; each following record is one operation.
func DecodeOperationActivity(raw, signatureKey string) (*OperationActivityResponse, error) {
	records, err := readCSV(urlDecode(raw))
	if err != nil {
		return nil, fmt.Errorf("safetypay: operation activity response: %w", err)
	}
	if len(records) == 0 || len(records[0]) < 2 {
		return nil, fmt.Errorf("safetypay: operation activity response is empty")
	}

	header := records[0]
	if err := checkErrorNumber(header[0]); err != nil {
		return nil, err
	}

	resp := &OperationActivityResponse{ResponseDateTime: header[1]}
	if len(header) > 2 {
		resp.Signature = header[2]
	}

	for i, rec := range records[1:] {
		if len(rec) < 10 {
			return nil, fmt.Errorf("safetypay: operation %d has %d fields, want 10", i, len(rec))
		}
		op := OperationActivity{
			CreationDateTime:   rec[0],
			OperationID:        rec[1],
			MerchantSalesID:    rec[2],
			MerchantOrderID:    rec[3],
			CurrencyID:         rec[5],
			ShopperAmount:      rec[6],
			ShopperCurrencyID:  rec[7],
			PaymentReferenceNo: rec[8],
			StatusCode:         rec[9],
		}
		if rec[4] != "" {
			amount, err := decimal.NewFromString(rec[4])
			if err != nil {
				return nil, fmt.Errorf("safetypay: operation %d amount: %w", i, err)
			}
			op.Amount = amount
		}
		resp.Operations = append(resp.Operations, op)
	}

	if resp.Signature != "" && !Verify(resp.signatureFields(), resp.Signature, signatureKey) {
		return nil, ErrSignatureMismatch
	}

	return resp, nil
}
