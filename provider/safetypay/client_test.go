package safetypay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	cfg := testConfig()
	cfg.ExpressTokenURL = serverURL + "/CreateExpressToken"
	cfg.NotificationURL = serverURL + "/GetOperation"
	cfg.RequestTimeout = 2 * time.Second

	c := NewClient(cfg)
	c.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestClient_RequestExpressToken(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/CreateExpressToken", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(expressTokenCSV(testRedirectURL, testSignatureKey)))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	raw, err := c.RequestExpressToken(context.Background(), 42, testCorrelationID, decimal.RequireFromString("19.9"))
	require.NoError(t, err)

	resp, err := DecodeExpressTokenResponse(raw, testSignatureKey)
	require.NoError(t, err)
	assert.Equal(t, testRedirectURL, resp.ClientRedirectURL)

	assert.Equal(t, "test-api-key", form.Get("ApiKey"))
	assert.Equal(t, "2024-05-01T10:00:00", form.Get("RequestDateTime"))
	assert.Equal(t, "19.90", form.Get("Amount"))
	assert.Equal(t, "42", form.Get("TrackingCode"))
	assert.Equal(t, "120", form.Get("ExpirationTime"))
	assert.Equal(t, "CSV", form.Get("ResponseFormat"))

	expected := Sign([]string{
		"2024-05-01T10:00:00", "USD", "19.90", testCorrelationID, "EN", "42", "120",
		"https://shop.example/ok", "https://shop.example/error",
	}, testSignatureKey)
	assert.Equal(t, expected, form.Get("Signature"))
}

func TestClient_RequestOperationActivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/GetOperation", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, testCorrelationID, r.PostForm.Get("MerchantSalesID"))
		assert.Equal(t, Sign([]string{"2024-05-01T10:00:00", testCorrelationID}, testSignatureKey), r.PostForm.Get("Signature"))
		w.Write([]byte(operationActivityCSV(testCorrelationID, "778899", testSignatureKey)))
	}))
	defer server.Close()

	raw, err := newTestClient(server.URL).RequestOperationActivity(context.Background(), testCorrelationID)
	require.NoError(t, err)

	activity, err := DecodeOperationActivity(raw, testSignatureKey)
	require.NoError(t, err)
	code, ok := activity.ReferenceFor(testCorrelationID)
	assert.True(t, ok)
	assert.Equal(t, "778899", code)
}

func TestClient_GatewayUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	_, err := c.RequestExpressToken(context.Background(), 1, testCorrelationID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	_, err = c.RequestOperationActivity(context.Background(), testCorrelationID)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	_, err = c.ConfirmRedirect(context.Background(), server.URL+"/redirect")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	_, err = c.ConfirmRedirect(context.Background(), "")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestClient_ConfirmRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "abc", r.URL.Query().Get("TokenID"))
		w.Write([]byte(confirmedPage()))
	}))
	defer server.Close()

	body, err := newTestClient(server.URL).ConfirmRedirect(context.Background(), server.URL+"/checkout?TokenID=abc")
	require.NoError(t, err)
	assert.Equal(t, confirmedPage(), body)
}

func TestConfigFromMap(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]string{
		"apiKey":             "k",
		"signatureKey":       "s",
		"environment":        "production",
		"maxAttempts":        "5",
		"canGenerateNewCode": "true",
		"requestTimeout":     "10s",
		"additionalFee":      "1.25",
	})
	require.NoError(t, err)

	assert.False(t, cfg.UseSandbox)
	assert.Equal(t, productionExpressTokenURL, cfg.ExpressTokenURL)
	assert.Equal(t, productionNotificationURL, cfg.NotificationURL)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.True(t, cfg.CanGenerateNewCode)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "1.25", cfg.AdditionalFee.String())
	assert.Equal(t, defaultExpirationMinutes, cfg.ExpirationMinutes)
	assert.True(t, cfg.Configured())

	cfg, err = ConfigFromMap(map[string]string{})
	require.NoError(t, err)
	assert.True(t, cfg.UseSandbox)
	assert.Equal(t, sandboxExpressTokenURL, cfg.ExpressTokenURL)
	assert.Equal(t, defaultMaxAttempts, cfg.MaxAttempts)
	assert.False(t, cfg.Configured())
}
