package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mstgnz/paysettle/infra/storage"
	"github.com/mstgnz/paysettle/provider"
	"github.com/mstgnz/paysettle/provider/safetypay"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotificationFixture() (*NotificationHandler, *storeHooks, *recordingAudit) {
	store := &storeHooks{NotificationStore: storage.NewMemoryStore()}
	audit := &recordingAudit{}
	return NewNotificationHandler(store, provider.NewKeyedMutex(), audit, testSignatureKey), store, audit
}

func postNotification(h *NotificationHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/notifications/safetypay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.HandleNotification(w, req)
	return w
}

func TestHandleNotification_ValidSignature(t *testing.T) {
	h, store, audit := newNotificationFixture()

	w := postNotification(h, payload(defaultFields()))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	require.NotEmpty(t, w.Body.String())

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Amount.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, "102", all[0].StatusCode)
	assert.Equal(t, testCorrelationID, all[0].CorrelationID)
	assert.Contains(t, all[0].Origin, "MerchantSalesID="+testCorrelationID)

	ack, err := safetypay.DecodeResponse(w.Body.String())
	require.NoError(t, err)
	assert.Equal(t, testCorrelationID, ack.OrderNo)
	assert.Equal(t, "2024-05-01T10:00:00", ack.ResponseDateTime)
	assert.True(t, safetypay.Verify(ack.SignatureFields(), ack.Signature, testSignatureKey))
	assert.Contains(t, w.Body.String(), "Amount=19.99")

	assert.Equal(t, []string{OutcomeAccepted}, audit.outcomes())
	assert.Equal(t, 1, store.Mutations())
}

func TestHandleNotification_InvalidSignatureStillStores(t *testing.T) {
	h, store, audit := newNotificationFixture()
	f := defaultFields()
	f.Signature = "deadbeef"

	w := postNotification(h, payload(f))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	rec, err := store.GetByCorrelationID(context.Background(), testCorrelationID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "deadbeef", rec.Signature)
	assert.Equal(t, 1, store.Mutations())
	assert.Equal(t, []string{OutcomeSignatureInvalid}, audit.outcomes())
}

func TestHandleNotification_RepeatedDeliveryUpdatesInPlace(t *testing.T) {
	h, store, _ := newNotificationFixture()

	first := defaultFields()
	second := defaultFields()
	second.Status = "101"
	second.PaymentReferenceNo = "990011"
	second.MerchantSalesID = strings.ToUpper(testCorrelationID)

	require.NotEmpty(t, postNotification(h, payload(first)).Body.String())
	require.NotEmpty(t, postNotification(h, payload(second)).Body.String())

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1, "same correlation id in any case maps to one record")
	assert.Equal(t, "101", all[0].StatusCode, "last write wins")
	assert.Equal(t, "990011", all[0].PaymentReferenceNo)
	assert.Equal(t, 2, store.Mutations())
}

func TestHandleNotification_KeepsMerchantFields(t *testing.T) {
	h, store, _ := newNotificationFixture()
	require.NoError(t, store.Insert(context.Background(), &provider.PendingNotification{
		CorrelationID:          testCorrelationID,
		ClientRedirectURL:      "https://sandbox.safetypay.example/r/abc",
		OperationCodeConfirmed: true,
	}))

	postNotification(h, payload(defaultFields()))

	rec, err := store.GetByCorrelationID(context.Background(), testCorrelationID)
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.safetypay.example/r/abc", rec.ClientRedirectURL)
	assert.True(t, rec.OperationCodeConfirmed)
	assert.Equal(t, "102", rec.StatusCode)
}

func TestHandleNotification_Rejected(t *testing.T) {
	bigBody := "ApiKey=" + strings.Repeat("x", DefaultMaxNotificationBytes+1)

	invalidID := defaultFields()
	invalidID.MerchantSalesID = "order-42"

	badAmount := defaultFields()
	badAmount.Amount = "19.99"

	tests := []struct {
		name string
		body string
	}{
		{"segment_without_equals", "ApiKey=K1&garbage&Status=102"},
		{"empty_body", ""},
		{"invalid_correlation_id", payload(invalidID)},
		{"malformed_amount", strings.Replace(payload(badAmount), "Amount=19.99", "Amount=19,99", 1)},
		{"body_too_large", bigBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, audit := newNotificationFixture()

			w := postNotification(h, tt.body)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, w.Body.String())
			assert.Zero(t, store.Mutations())
			assert.Equal(t, []string{OutcomeParseError}, audit.outcomes())
		})
	}
}

func TestHandleNotification_StoreFailure(t *testing.T) {
	h, store, audit := newNotificationFixture()
	store.InsertFunc = func(context.Context, *provider.PendingNotification) error { return errBoom }

	w := postNotification(h, payload(defaultFields()))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, []string{OutcomeStoreError}, audit.outcomes())
}

func TestHandleNotification_LookupFailure(t *testing.T) {
	h, store, _ := newNotificationFixture()
	store.GetByCorrelationIDFunc = func(context.Context, string) (*provider.PendingNotification, error) {
		return nil, errBoom
	}

	w := postNotification(h, payload(defaultFields()))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Zero(t, store.Mutations())
}

func TestHandleNotification_InsertRaceFallsBackToUpdate(t *testing.T) {
	h, store, _ := newNotificationFixture()
	inner := store.NotificationStore
	require.NoError(t, inner.Insert(context.Background(), &provider.PendingNotification{CorrelationID: testCorrelationID, StatusCode: "999"}))

	// the first lookup misses as if another instance inserted concurrently
	lookups := 0
	store.GetByCorrelationIDFunc = func(ctx context.Context, id string) (*provider.PendingNotification, error) {
		lookups++
		if lookups == 1 {
			return nil, nil
		}
		return inner.GetByCorrelationID(ctx, id)
	}

	w := postNotification(h, payload(defaultFields()))
	require.NotEmpty(t, w.Body.String())

	all, err := inner.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "102", all[0].StatusCode)
}

func TestHandleNotification_AuditFailureIsNotFatal(t *testing.T) {
	h, _, audit := newNotificationFixture()
	audit.err = errBoom

	w := postNotification(h, payload(defaultFields()))
	assert.NotEmpty(t, w.Body.String())
}

func TestHandleNotification_ConcurrentDeliveries(t *testing.T) {
	h, store, _ := newNotificationFixture()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			postNotification(h, payload(defaultFields()))
		}()
	}
	wg.Wait()

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 20, store.Mutations())
}

func TestNewNotificationHandler_Defaults(t *testing.T) {
	h := NewNotificationHandler(storage.NewMemoryStore(), nil, nil, testSignatureKey)
	require.NotNil(t, h.locks)
	assert.IsType(t, provider.NopAuditLogger{}, h.audit)
	assert.EqualValues(t, DefaultMaxNotificationBytes, h.maxBody)
}
