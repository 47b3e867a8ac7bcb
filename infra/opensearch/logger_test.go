package opensearch

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/mstgnz/paysettle/infra/config"
	"github.com/mstgnz/paysettle/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, enabled bool) (*fakeCluster, *Logger) {
	t.Helper()
	fc, srv := newFakeCluster(t)
	fc.existing[AuditIndex] = true
	fc.existing[SystemLogIndex] = true

	client, err := NewClient(&config.AppConfig{OpenSearchURL: srv.URL, EnableLogging: enabled})
	require.NoError(t, err)
	return fc, NewLogger(client)
}

func TestLogger_LogAuditEvent(t *testing.T) {
	fc, logger := newTestLogger(t, true)

	err := logger.LogAuditEvent(t.Context(), provider.AuditEvent{
		Provider:      "safetypay",
		Event:         "notification",
		CorrelationID: "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		Outcome:       "accepted",
		Payload:       "ApiKey=live-secret&MerchantSalesID=3fa85f64&Signature=abc",
	})
	require.NoError(t, err)

	posts := fc.calls(http.MethodPost)
	require.Len(t, posts, 1)
	assert.Equal(t, "/"+AuditIndex+"/_doc", posts[0].Path)

	var doc provider.AuditEvent
	require.NoError(t, json.Unmarshal([]byte(posts[0].Body), &doc))
	assert.Equal(t, "accepted", doc.Outcome)
	assert.False(t, doc.Timestamp.IsZero(), "timestamp is filled in")
	assert.NotContains(t, doc.Payload, "live-secret")
	assert.Contains(t, doc.Payload, "MerchantSalesID=3fa85f64")
}

func TestLogger_LogAuditEvent_ClusterError(t *testing.T) {
	fc, logger := newTestLogger(t, true)
	fc.fail = true

	err := logger.LogAuditEvent(t.Context(), provider.AuditEvent{Event: "notification"})
	assert.Error(t, err)
}

func TestLogger_DisabledLogging(t *testing.T) {
	fc, logger := newTestLogger(t, false)

	assert.NoError(t, logger.LogAuditEvent(t.Context(), provider.AuditEvent{Event: "notification"}))
	assert.NoError(t, logger.LogSystemEvent(t.Context(), map[string]string{"message": "hello"}))

	_, err := logger.SearchAudit(t.Context(), map[string]any{"match_all": map[string]any{}}, 10)
	assert.Error(t, err)
	_, err = logger.GetOutcomeStats(t.Context(), 24)
	assert.Error(t, err)

	assert.Empty(t, fc.calls(http.MethodPost))
}

func TestLogger_LogSystemEvent(t *testing.T) {
	fc, logger := newTestLogger(t, true)

	require.NoError(t, logger.LogSystemEvent(t.Context(), map[string]any{
		"level":   "error",
		"message": "reconcile failed",
	}))

	posts := fc.calls(http.MethodPost)
	require.Len(t, posts, 1)
	assert.Equal(t, "/"+SystemLogIndex+"/_doc", posts[0].Path)
	assert.Contains(t, posts[0].Body, "reconcile failed")
}

func TestLogger_GetCorrelationHistory(t *testing.T) {
	fc, logger := newTestLogger(t, true)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fc.search = `{"hits":{"hits":[
		{"_source":{"timestamp":"2024-05-01T10:00:00Z","provider":"safetypay","event":"reconcile","correlation_id":"abc","outcome":"paid"}},
		{"_source":{"timestamp":"2024-05-01T09:00:00Z","provider":"safetypay","event":"notification","correlation_id":"abc","outcome":"accepted"}}
	]}}`

	events, err := logger.GetCorrelationHistory(t.Context(), "abc")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "paid", events[0].Outcome)
	assert.True(t, events[0].Timestamp.Equal(ts))

	posts := fc.calls(http.MethodPost)
	require.Len(t, posts, 1)
	assert.Equal(t, "/"+AuditIndex+"/_search", posts[0].Path)
	assert.Contains(t, posts[0].Body, `"correlation_id":"abc"`)
}

func TestLogger_GetOutcomeStats(t *testing.T) {
	fc, logger := newTestLogger(t, true)
	fc.search = `{"hits":{"hits":[]},"aggregations":{"outcomes":{"buckets":[
		{"key":"paid","doc_count":4},
		{"key":"failed","doc_count":1}
	]}}}`

	stats, err := logger.GetOutcomeStats(t.Context(), 24)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"paid": 4, "failed": 1}, stats)

	posts := fc.calls(http.MethodPost)
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Body, "now-24h")
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		missing  []string
	}{
		{
			name:     "form_payload",
			input:    "ApiKey=k-123&RequestDateTime=2024-05-01T10:00:00&Signature=abc",
			contains: []string{"ApiKey=***REDACTED***", "RequestDateTime=2024-05-01T10:00:00", "Signature=abc"},
			missing:  []string{"k-123"},
		},
		{
			name:     "json_body",
			input:    `{"apiKey":"k-123","signatureKey":"s-456","amount":"19.99"}`,
			contains: []string{`"apiKey":"***REDACTED***"`, `"signatureKey":"***REDACTED***"`, `"amount":"19.99"`},
			missing:  []string{"k-123", "s-456"},
		},
		{
			name:     "token_inside_other_word_is_kept",
			input:    "ExpressToken=keep-me",
			contains: []string{"ExpressToken=keep-me"},
		},
		{
			name:     "empty",
			input:    "",
			contains: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeForLog(tt.input)
			for _, c := range tt.contains {
				assert.Contains(t, got, c)
			}
			for _, m := range tt.missing {
				assert.NotContains(t, got, m)
			}
		})
	}
}
