package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/paysettle/infra/config"
	"github.com/mstgnz/paysettle/infra/logger"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

const (
	// AuditIndex stores one document per settlement event
	AuditIndex = "paysettle-audit"
	// SystemLogIndex stores shipped application logs
	SystemLogIndex = "paysettle-system-logs"
)

// Client wraps the OpenSearch client
type Client struct {
	client *opensearch.Client
	config *config.AppConfig
}

// NewClient creates a new OpenSearch client
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Environment != "production",
			},
		},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, err
	}

	osClient := &Client{
		client: client,
		config: cfg,
	}

	if cfg.EnableLogging {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := osClient.setupIndices(ctx); err != nil {
			logger.Warn(fmt.Sprintf("Failed to setup OpenSearch indices: %v", err))
		}
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// setupIndices creates the audit and system log indices when missing
func (c *Client) setupIndices(ctx context.Context) error {
	indices := map[string]string{
		AuditIndex:     auditMapping,
		SystemLogIndex: systemLogMapping,
	}

	for indexName, mapping := range indices {
		exists, err := c.indexExists(ctx, indexName)
		if err != nil {
			return fmt.Errorf("check index %s: %w", indexName, err)
		}
		if exists {
			continue
		}
		if err := c.createIndex(ctx, indexName, mapping); err != nil {
			return fmt.Errorf("create index %s: %w", indexName, err)
		}
		logger.Info(fmt.Sprintf("Created OpenSearch index: %s", indexName))
	}

	return nil
}

// indexExists checks if an index exists
func (c *Client) indexExists(ctx context.Context, indexName string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

func (c *Client) createIndex(ctx context.Context, indexName, mapping string) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index creation error: %s", res.String())
	}

	return nil
}

// Ping reports whether the cluster answers
func (c *Client) Ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch ping: %s", res.Status())
	}
	return nil
}

// IsEnabled returns whether OpenSearch logging is enabled
func (c *Client) IsEnabled() bool {
	return c.config.EnableLogging
}

const auditMapping = `{
	"mappings": {
		"properties": {
			"timestamp":      {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"provider":       {"type": "keyword"},
			"event":          {"type": "keyword"},
			"correlation_id": {"type": "keyword"},
			"status_code":    {"type": "keyword"},
			"outcome":        {"type": "keyword"},
			"payload":        {"type": "text"},
			"error":          {"type": "text"},
			"fields":         {"type": "object"}
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	}
}`

const systemLogMapping = `{
	"mappings": {
		"properties": {
			"timestamp":      {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"level":          {"type": "keyword"},
			"message":        {"type": "text"},
			"service":        {"type": "keyword"},
			"component":      {"type": "keyword"},
			"provider":       {"type": "keyword"},
			"correlation_id": {"type": "keyword"},
			"request_id":     {"type": "keyword"},
			"error":          {"type": "text"},
			"fields":         {"type": "object"}
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	}
}`
