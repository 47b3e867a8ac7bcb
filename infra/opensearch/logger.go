package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/mstgnz/paysettle/provider"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Logger ships audit events and system logs to OpenSearch
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

var _ provider.AuditLogger = (*Logger)(nil)

// LogAuditEvent indexes one settlement audit event. The raw payload is sanitized first.
func (l *Logger) LogAuditEvent(ctx context.Context, event provider.AuditEvent) error {
	if !l.client.IsEnabled() {
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Payload = SanitizeForLog(event.Payload)

	return l.index(ctx, AuditIndex, event)
}

// LogSystemEvent logs a system event to OpenSearch
func (l *Logger) LogSystemEvent(ctx context.Context, log any) error {
	if !l.client.IsEnabled() {
		return nil
	}
	return l.index(ctx, SystemLogIndex, log)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document for %s: %w", indexName, err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index into %s: %w", indexName, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// SearchAudit runs query against the audit index, newest first
func (l *Logger) SearchAudit(ctx context.Context, query map[string]any, size int) ([]provider.AuditEvent, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}
	if size <= 0 {
		size = 100
	}

	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": size,
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{AuditIndex},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source provider.AuditEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	events := make([]provider.AuditEvent, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		events[i] = hit.Source
	}

	return events, nil
}

// GetCorrelationHistory returns every audit event recorded for one correlation id
func (l *Logger) GetCorrelationHistory(ctx context.Context, correlationID string) ([]provider.AuditEvent, error) {
	query := map[string]any{
		"term": map[string]any{
			"correlation_id": correlationID,
		},
	}
	return l.SearchAudit(ctx, query, 200)
}

// GetOutcomeStats counts audit events per outcome over the last hours
func (l *Logger) GetOutcomeStats(ctx context.Context, hours int) (map[string]int64, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	aggQuery := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{
					"gte": fmt.Sprintf("now-%dh", hours),
				},
			},
		},
		"aggs": map[string]any{
			"outcomes": map[string]any{
				"terms": map[string]any{
					"field": "outcome",
					"size":  20,
				},
			},
		},
		"size": 0,
	}

	queryJSON, err := json.Marshal(aggQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aggregation query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{AuditIndex},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("aggregation search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch aggregation error: %s", res.String())
	}

	var result struct {
		Aggregations struct {
			Outcomes struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"outcomes"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation results: %w", err)
	}

	stats := make(map[string]int64, len(result.Aggregations.Outcomes.Buckets))
	for _, b := range result.Aggregations.Outcomes.Buckets {
		stats[b.Key] = b.DocCount
	}
	return stats, nil
}

var sensitiveFields = []string{
	"apiKey", "api_key", "signatureKey", "signature_key",
	"password", "token", "authorization", "x-api-key",
}

var sensitivePatterns = buildSensitivePatterns()

type sensitivePattern struct {
	re   *regexp.Regexp
	repl string
}

func buildSensitivePatterns() []sensitivePattern {
	patterns := make([]sensitivePattern, 0, len(sensitiveFields)*2)
	for _, field := range sensitiveFields {
		quoted := regexp.QuoteMeta(field)
		patterns = append(patterns,
			sensitivePattern{
				re:   regexp.MustCompile(fmt.Sprintf(`(?i)"(%s)"\s*:\s*"[^"]*"`, quoted)),
				repl: `"$1":"***REDACTED***"`,
			},
			sensitivePattern{
				re:   regexp.MustCompile(fmt.Sprintf(`(?i)\b(%s)=[^&\s]*`, quoted)),
				repl: `$1=***REDACTED***`,
			},
		)
	}
	return patterns
}

// SanitizeForLog masks credentials in JSON bodies and form-encoded payloads
func SanitizeForLog(data string) string {
	result := data
	for _, p := range sensitivePatterns {
		result = p.re.ReplaceAllString(result, p.repl)
	}
	return result
}
