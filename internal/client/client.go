// Package client is a typed HTTP client for the storefront API. The bearer
// token is kept in a kvstore.Store so a session survives restarts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"arokya/internal/apperr"
	"arokya/internal/checkout"
	"arokya/internal/models"
	"arokya/internal/telemetry"
	"arokya/pkg/kvstore"

	"github.com/shopspring/decimal"
)

// TokenKey is the key the bearer token is stored under.
const TokenKey = "token"

const maxErrorBody = 1 << 20

// ErrNotAuthenticated is returned by calls that need a token when none is stored.
var ErrNotAuthenticated = fmt.Errorf("%w: not logged in", apperr.ErrAuth)

var _ checkout.Backend = (*APIClient)(nil)

type authMode int

const (
	authNone authMode = iota
	authOptional
	authRequired
)

type options struct {
	timeout   time.Duration
	transport http.RoundTripper
}

// Option configures an APIClient.
type Option func(*options)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTransport sets the transport wrapped by the tracing layer.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// APIClient talks to the storefront API.
type APIClient struct {
	baseURL    string
	store      kvstore.Store
	httpClient *http.Client
}

// New creates a client for the API rooted at baseURL (for example
// "http://localhost:8080/api").
func New(baseURL string, store kvstore.Store, opts ...Option) *APIClient {
	o := options{timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		store:      store,
		httpClient: telemetry.NewHTTPClient(o.timeout, o.transport),
	}
}

// Token returns the stored bearer token, or "" when logged out.
func (c *APIClient) Token(ctx context.Context) (string, error) {
	raw, err := c.store.Get(ctx, TokenKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to load token: %v", apperr.ErrPersistence, err)
	}
	return string(raw), nil
}

// ListProducts returns the catalog.
func (c *APIClient) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := c.do(ctx, http.MethodGet, "/products", authNone, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct returns one catalog entry.
func (c *APIClient) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), authNone, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// Signup creates an account and stores the returned token.
func (c *APIClient) Signup(ctx context.Context, name, email, password string) (*models.AuthResult, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	return c.authenticate(ctx, "/auth/signup", body)
}

// Login stores the returned token. A failed login leaves any previously
// stored token alone.
func (c *APIClient) Login(ctx context.Context, email, password string) (*models.AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	return c.authenticate(ctx, "/auth/login", body)
}

func (c *APIClient) authenticate(ctx context.Context, path string, body interface{}) (*models.AuthResult, error) {
	var result models.AuthResult
	if err := c.do(ctx, http.MethodPost, path, authNone, body, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, fmt.Errorf("%w: server returned no token", apperr.ErrUpstream)
	}
	if err := c.store.Set(ctx, TokenKey, []byte(result.Token)); err != nil {
		return nil, fmt.Errorf("%w: failed to save token: %v", apperr.ErrPersistence, err)
	}
	return &result, nil
}

// Logout forgets the stored token. Tokens are not revoked server side.
func (c *APIClient) Logout(ctx context.Context) error {
	if err := c.store.Delete(ctx, TokenKey); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return fmt.Errorf("%w: failed to delete token: %v", apperr.ErrPersistence, err)
	}
	return nil
}

// Me returns the logged-in user's profile.
func (c *APIClient) Me(ctx context.Context) (*models.PublicUser, error) {
	var me models.PublicUser
	if err := c.do(ctx, http.MethodGet, "/me", authRequired, nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// CreateOrder mints a payment order for amount (major units). The token is
// sent when present so the order lands in the user's ledger.
func (c *APIClient) CreateOrder(ctx context.Context, amount decimal.Decimal) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	body := models.CreateOrderRequest{Amount: amount}
	if err := c.do(ctx, http.MethodPost, "/orders/create", authOptional, body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// SaveOrder records an order in the logged-in user's ledger.
func (c *APIClient) SaveOrder(ctx context.Context, req models.SaveOrderRequest) error {
	return c.do(ctx, http.MethodPost, "/orders/save", authRequired, req, nil)
}

// ListOrders returns the logged-in user's orders, oldest first.
func (c *APIClient) ListOrders(ctx context.Context) ([]models.OrderRecord, error) {
	var orders []models.OrderRecord
	if err := c.do(ctx, http.MethodGet, "/orders", authRequired, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *APIClient) do(ctx context.Context, method, path string, auth authMode, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if auth != authNone {
		token, err := c.Token(ctx)
		if err != nil {
			return err
		}
		if token == "" && auth == authRequired {
			return ErrNotAuthenticated
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Request %s %s failed: %v", method, path, err)
		return fmt.Errorf("%w: %v", apperr.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response from %s: %v", apperr.ErrUpstream, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	message := ""
	if json.Unmarshal(raw, &eb) == nil {
		switch {
		case eb.Message != "" && eb.Error != "":
			message = eb.Message + " (" + eb.Error + ")"
		case eb.Message != "":
			message = eb.Message
		default:
			message = eb.Error
		}
	}
	return apperr.FromStatus(resp.StatusCode, message)
}
