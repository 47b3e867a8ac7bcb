package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mstgnz/paysettle/handler"
	"github.com/mstgnz/paysettle/infra/middle"
	"github.com/mstgnz/paysettle/infra/storage"
	"github.com/mstgnz/paysettle/infra/validate"
	"github.com/mstgnz/paysettle/provider"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(opts Options) http.Handler {
	store := storage.NewMemoryStore()
	return New(Handlers{
		Notification: handler.NewNotificationHandler(store, provider.NewKeyedMutex(), nil, "sig-key"),
		Admin:        handler.NewAdminHandler(store, nil, nil, nil, nil, validate.New()),
		Health:       handler.NewHealthHandler(store, nil, nil, nil),
	}, opts)
}

func TestNew_Routing(t *testing.T) {
	r := newTestRouter(Options{APIKey: "secret"})

	tests := []struct {
		name       string
		method     string
		path       string
		auth       string
		body       string
		wantStatus int
	}{
		{"health_is_public", http.MethodGet, "/health", "", "", http.StatusOK},
		{"notification_is_public", http.MethodPost, "/notifications/safetypay", "", "garbage", http.StatusOK},
		{"admin_requires_key", http.MethodGet, "/v1/notifications", "", "", http.StatusUnauthorized},
		{"admin_wrong_key", http.MethodGet, "/v1/notifications", "Bearer nope", "", http.StatusUnauthorized},
		{"admin_with_key", http.MethodGet, "/v1/notifications", "Bearer secret", "", http.StatusOK},
		{"unknown_path", http.MethodGet, "/nope", "", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestNew_NotificationAllowlist(t *testing.T) {
	r := newTestRouter(Options{APIKey: "secret", NotificationIPWhitelist: "198.51.100.7"})

	req := httptest.NewRequest(http.MethodPost, "/notifications/safetypay", strings.NewReader("a=b"))
	req.RemoteAddr = "203.0.113.1:4000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/notifications/safetypay", strings.NewReader("a=b"))
	req.RemoteAddr = "198.51.100.7:4000"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_OversizedNotificationGetsEmptyOK(t *testing.T) {
	r := newTestRouter(Options{APIKey: "secret", MaxBodyBytes: 1024})

	req := httptest.NewRequest(http.MethodPost, "/notifications/safetypay", strings.NewReader(strings.Repeat("x", 4096)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/v1/payments", strings.NewReader(strings.Repeat("x", 4096)))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestNew_RateLimitOnlyGuardsAdmin(t *testing.T) {
	rl := middle.NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	r := newTestRouter(Options{APIKey: "secret", RateLimiter: rl})

	codes := []int{}
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/v1/notifications", nil)
		req.Header.Set("Authorization", "Bearer secret")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
