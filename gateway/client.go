// Package gateway implements the HTTP client for the external payment
// gateway: order creation and query, refund creation and query. Every call is
// authenticated with an HMAC-SHA256 mac over a pipe-delimited field string.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Config carries the merchant credentials issued by the gateway.
type Config struct {
	AppID    int
	Key1     string
	Key2     string
	Endpoint string
}

type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// CreateOrder registers a payment order and returns the gateway order URL the
// payer is redirected to.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (CreateOrderResponse, error) {
	appTime := c.now().UnixMilli()
	macData := fmt.Sprintf("%d|%s|%s|%d|%d|%s|%s",
		c.cfg.AppID, params.AppTransID, params.AppUser, params.Amount, appTime, params.EmbedData, params.Item)

	body := map[string]any{
		"app_id":       c.cfg.AppID,
		"app_trans_id": params.AppTransID,
		"app_user":     params.AppUser,
		"app_time":     appTime,
		"amount":       params.Amount,
		"embed_data":   params.EmbedData,
		"item":         params.Item,
		"description":  params.Description,
		"mac":          computeMAC(c.cfg.Key1, macData),
	}

	var resp CreateOrderResponse
	if err := c.post(ctx, "/v2/create", body, &resp); err != nil {
		return CreateOrderResponse{}, err
	}
	return resp, nil
}

// QueryOrder asks the gateway for the current state of an order.
func (c *Client) QueryOrder(ctx context.Context, appTransID string) (QueryOrderResponse, error) {
	macData := fmt.Sprintf("%d|%s|%s", c.cfg.AppID, appTransID, c.cfg.Key1)
	body := map[string]any{
		"app_id":       c.cfg.AppID,
		"app_trans_id": appTransID,
		"mac":          computeMAC(c.cfg.Key1, macData),
	}

	var resp QueryOrderResponse
	if err := c.post(ctx, "/v2/query", body, &resp); err != nil {
		return QueryOrderResponse{}, err
	}
	return resp, nil
}

// CreateRefund asks the gateway to reverse a captured payment.
func (c *Client) CreateRefund(ctx context.Context, params RefundParams) (RefundResponse, error) {
	timestamp := c.now().UnixMilli()
	macData := fmt.Sprintf("%d|%d|%d|%s|%d",
		c.cfg.AppID, params.ZPTransID, params.Amount, params.Description, timestamp)

	body := map[string]any{
		"app_id":      c.cfg.AppID,
		"m_refund_id": params.MRefundID,
		"zp_trans_id": params.ZPTransID,
		"amount":      params.Amount,
		"timestamp":   timestamp,
		"description": params.Description,
		"mac":         computeMAC(c.cfg.Key1, macData),
	}

	var resp RefundResponse
	if err := c.post(ctx, "/v2/refund", body, &resp); err != nil {
		return RefundResponse{}, err
	}
	return resp, nil
}

// QueryRefund reports whether an in-progress refund has settled.
func (c *Client) QueryRefund(ctx context.Context, mRefundID string) (RefundResponse, error) {
	timestamp := c.now().UnixMilli()
	macData := fmt.Sprintf("%d|%s|%d", c.cfg.AppID, mRefundID, timestamp)
	body := map[string]any{
		"app_id":      c.cfg.AppID,
		"m_refund_id": mRefundID,
		"timestamp":   timestamp,
		"mac":         computeMAC(c.cfg.Key1, macData),
	}

	var resp RefundResponse
	if err := c.post(ctx, "/v2/query_refund", body, &resp); err != nil {
		return RefundResponse{}, err
	}
	return resp, nil
}

// VerifyCallback checks a webhook payload mac against key2.
func (c *Client) VerifyCallback(data, mac string) bool {
	return VerifyCallbackMAC(c.cfg.Key2, data, mac)
}

func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gateway: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway: %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: %s: decode response: %w", path, err)
	}
	return nil
}
