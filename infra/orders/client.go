package orders

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/mstgnz/paysettle/infra/logger"
	"github.com/mstgnz/paysettle/provider"
)

// Client talks to the order management system over REST and implements
// provider.OrderManager
type Client struct {
	http *resty.Client
}

// Config holds the order service connection settings
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewClient creates an order service client
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "paysettle/1.0").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// only lookups are retried; writes are not assumed idempotent
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}

	return &Client{http: httpClient}
}

// errorBody is the error envelope returned by the order service
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("order service %s: %w", op, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return provider.ErrOrderNotFound
	}
	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		if e, ok := resp.Error().(*errorBody); ok && (e.Message != "" || e.Error != "") {
			msg = e.Message
			if msg == "" {
				msg = e.Error
			}
		}
		logger.Warn(fmt.Sprintf("Order service %s failed with status %d", op, resp.StatusCode()), logger.LogContext{
			Fields: map[string]any{"status": resp.StatusCode(), "body": msg},
		})
		return fmt.Errorf("order service %s: status %d: %s", op, resp.StatusCode(), msg)
	}
	return nil
}

// GetOrderByGUID fetches an order by its GUID
func (c *Client) GetOrderByGUID(ctx context.Context, orderGUID uuid.UUID) (*provider.Order, error) {
	var order provider.Order
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("guid", orderGUID.String()).
		SetResult(&order).
		SetError(&errorBody{}).
		Get("/orders/by-guid/{guid}")
	if err := c.check(resp, err, "get order"); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder replaces the payment fields of an order
func (c *Client) UpdateOrder(ctx context.Context, order *provider.Order) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", fmt.Sprint(order.ID)).
		SetHeader("Content-Type", "application/json").
		SetBody(order).
		SetError(&errorBody{}).
		Put("/orders/{id}")
	return c.check(resp, err, "update order")
}

// InsertOrderNote appends a note to an order
func (c *Client) InsertOrderNote(ctx context.Context, note provider.OrderNote) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", fmt.Sprint(note.OrderID)).
		SetHeader("Content-Type", "application/json").
		SetBody(note).
		SetError(&errorBody{}).
		Post("/orders/{id}/notes")
	return c.check(resp, err, "insert order note")
}

// DeleteOrder removes an order
func (c *Client) DeleteOrder(ctx context.Context, order *provider.Order) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", fmt.Sprint(order.ID)).
		SetError(&errorBody{}).
		Delete("/orders/{id}")
	return c.check(resp, err, "delete order")
}

// MarkOrderAsPaid asks the order service to run its paid workflow
func (c *Client) MarkOrderAsPaid(ctx context.Context, order *provider.Order) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", fmt.Sprint(order.ID)).
		SetError(&errorBody{}).
		Post("/orders/{id}/mark-paid")
	return c.check(resp, err, "mark order as paid")
}

// Ping checks that the order service is reachable
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("order service ping: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("order service ping: status %d", resp.StatusCode())
	}
	return nil
}

var _ provider.OrderManager = (*Client)(nil)
