package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"arokya/internal/apperr"
	"arokya/internal/telemetry"
)

// DefaultRazorpayBaseURL is the production API host.
const DefaultRazorpayBaseURL = "https://api.razorpay.com"

// RazorpayConfig holds the API credentials.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

// RazorpayClient is a Gateway backed by the Razorpay Orders API.
type RazorpayClient struct {
	cfg        RazorpayConfig
	httpClient *http.Client
}

// NewRazorpayClient creates a client. Requests are traced through otelhttp.
func NewRazorpayClient(cfg RazorpayConfig) *RazorpayClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRazorpayBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &RazorpayClient{
		cfg:        cfg,
		httpClient: telemetry.NewHTTPClient(cfg.Timeout, nil),
	}
}

// KeyID returns the public key id.
func (c *RazorpayClient) KeyID() string {
	return c.cfg.KeyID
}

type razorpayOrderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder calls POST /v1/orders. Every failure, including transport
// errors, is reported as an upstream error; nothing is retried here.
func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body, err := json.Marshal(razorpayOrderBody{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: razorpay: %v", apperr.ErrConnection, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: razorpay: failed to read response: %v", apperr.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr razorpayErrorBody
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Description != "" {
			return nil, fmt.Errorf("%w: razorpay %d %s: %s", apperr.ErrUpstream, resp.StatusCode, apiErr.Error.Code, apiErr.Error.Description)
		}
		return nil, fmt.Errorf("%w: razorpay returned status %d", apperr.ErrUpstream, resp.StatusCode)
	}

	var order Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("%w: razorpay: malformed order: %v", apperr.ErrUpstream, err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: razorpay returned an order without id", apperr.ErrUpstream)
	}
	return &order, nil
}
