package safetypay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mstgnz/paysettle/provider"
	"github.com/shopspring/decimal"
)

// ErrGatewayUnavailable wraps transport failures and non-2xx answers from the gateway
var ErrGatewayUnavailable = errors.New("safetypay: gateway unavailable")

// Gateway is the outbound boundary to SafetyPay. Every call returns the raw, still
// URL-encoded response text; decoding belongs to the caller.
type Gateway interface {
	RequestExpressToken(ctx context.Context, customerID int64, correlationID string, amount decimal.Decimal) (string, error)
	RequestOperationActivity(ctx context.Context, correlationID string) (string, error)
	ConfirmRedirect(ctx context.Context, redirectURL string) (string, error)
}

// Client implements Gateway over the shared provider HTTP client
type Client struct {
	cfg  Config
	http *provider.ProviderHTTPClient
	now  func() time.Time
}

// NewClient creates a gateway client for the given settings
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:  cfg,
		http: provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig("", !cfg.UseSandbox, cfg.RequestTimeout)),
		now:  time.Now,
	}
}

func (c *Client) requestDateTime() string {
	return c.now().UTC().Format(gatewayDateTimeLayout)
}

// ExpressTokenForm builds the signed form of an express token request
func (c *Client) ExpressTokenForm(customerID int64, correlationID string, amount decimal.Decimal) map[string]string {
	requestDateTime := c.requestDateTime()
	amountText := formatAmount(amount)
	trackingCode := strconv.FormatInt(customerID, 10)
	expiration := strconv.Itoa(c.cfg.ExpirationMinutes)

	signature := Sign([]string{
		requestDateTime,
		c.cfg.CurrencyID,
		amountText,
		correlationID,
		c.cfg.Language,
		trackingCode,
		expiration,
		c.cfg.TransactionOkURL,
		c.cfg.TransactionErrorURL,
	}, c.cfg.SignatureKey)

	return map[string]string{
		"ApiKey":              c.cfg.APIKey,
		"RequestDateTime":     requestDateTime,
		"CurrencyID":          c.cfg.CurrencyID,
		"Amount":              amountText,
		"MerchantSalesID":     correlationID,
		"Language":            c.cfg.Language,
		"TrackingCode":        trackingCode,
		"ExpirationTime":      expiration,
		"TransactionOkURL":    c.cfg.TransactionOkURL,
		"TransactionErrorURL": c.cfg.TransactionErrorURL,
		"ResponseFormat":      "CSV",
		"Signature":           signature,
	}
}

// OperationActivityForm builds the signed form of an operation activity request
func (c *Client) OperationActivityForm(correlationID string) map[string]string {
	requestDateTime := c.requestDateTime()
	return map[string]string{
		"ApiKey":          c.cfg.APIKey,
		"RequestDateTime": requestDateTime,
		"MerchantSalesID": correlationID,
		"ResponseFormat":  "CSV",
		"Signature":       Sign([]string{requestDateTime, correlationID}, c.cfg.SignatureKey),
	}
}

// RequestExpressToken asks the gateway for a redirect token
func (c *Client) RequestExpressToken(ctx context.Context, customerID int64, correlationID string, amount decimal.Decimal) (string, error) {
	return c.post(ctx, c.cfg.ExpressTokenURL, c.ExpressTokenForm(customerID, correlationID, amount))
}

// RequestOperationActivity asks the gateway for the operations of a correlation id
func (c *Client) RequestOperationActivity(ctx context.Context, correlationID string) (string, error) {
	return c.post(ctx, c.cfg.NotificationURL, c.OperationActivityForm(correlationID))
}

// ConfirmRedirect loads the redirect page the shopper would see
func (c *Client) ConfirmRedirect(ctx context.Context, redirectURL string) (string, error) {
	if redirectURL == "" {
		return "", fmt.Errorf("%w: empty redirect url", ErrGatewayUnavailable)
	}
	resp, err := c.http.SendRaw(ctx, &provider.HTTPRequest{
		Method:   http.MethodGet,
		Endpoint: redirectURL,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return resp.RawBody, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form map[string]string) (string, error) {
	resp, err := c.http.SendForm(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpoint,
		FormData: form,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return resp.RawBody, nil
}
