package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Config holds payment gateway client configuration.
type Config struct {
	BaseURL        string        `envconfig:"GATEWAY_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"GATEWAY_API_KEY" required:"true"`
	APISecret      string        `envconfig:"GATEWAY_API_SECRET" required:"true"`
	RequestTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
}

// Client is an HTTP Gateway implementation. Requests carry basic auth and an
// idempotency key header; the timeout bounds how long a recharge attempt can
// hold its lock waiting on the gateway.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a payment gateway client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

// CreateOrder implements Gateway.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.config.APIKey, c.config.APISecret)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)
	}

	c.logger.Info("creating gateway order",
		"amount", req.AmountMinor,
		"currency", req.Currency,
		"payment_method", req.PaymentMethodID,
		"idempotency_key", req.IdempotencyKey,
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("decoding order response: %w", err)
	}

	if resp.StatusCode >= 400 && order.Status == "" {
		order.Status = StatusFailed
		if order.ErrorReason == "" {
			order.ErrorReason = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}
	}

	c.logger.Info("gateway order created",
		"order_id", order.ID,
		"status", order.Status,
	)

	return &order, nil
}
