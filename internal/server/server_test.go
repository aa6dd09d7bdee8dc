package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arokya/internal/apperr"
	"arokya/internal/cart"
	"arokya/internal/catalog"
	"arokya/internal/checkout"
	"arokya/internal/client"
	"arokya/internal/database"
	"arokya/internal/models"
	"arokya/internal/payment"
	"arokya/internal/repositories"
	"arokya/internal/server"
	"arokya/pkg/kvstore"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// appTransport sends client requests straight into the Fiber app.
type appTransport struct {
	app *fiber.App
}

func (t appTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.app.Test(req, -1)
}

// fakeRazorpay mints sequential order ids and fails while down is set.
type fakeRazorpay struct {
	server *httptest.Server
	down   atomic.Bool
	calls  atomic.Int32
}

func newFakeRazorpay(t *testing.T) *fakeRazorpay {
	t.Helper()
	f := &fakeRazorpay{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := f.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if user, _, ok := r.BasicAuth(); !ok || user != "rzp_test_key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
			return
		}
		if f.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":"SERVER_ERROR","description":"service unavailable"}}`))
			return
		}
		var body struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Receipt  string `json:"receipt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(payment.Order{
			ID:        fmt.Sprintf("order_%d", n),
			Entity:    "order",
			Amount:    body.Amount,
			Currency:  body.Currency,
			Receipt:   body.Receipt,
			Status:    "created",
			CreatedAt: time.Now().Unix(),
		})
	}))
	t.Cleanup(f.server.Close)
	return f
}

type storefront struct {
	app      *fiber.App
	razorpay *fakeRazorpay
}

func newStorefront(t *testing.T) *storefront {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, catalog.Seed(repositories.NewGORMProductRepository(db), catalog.Default()))

	rzp := newFakeRazorpay(t)
	app := server.New(server.Options{
		DB:        db,
		Gateway:   payment.NewRazorpayClient(payment.RazorpayConfig{KeyID: "rzp_test_key", KeySecret: "rzp_secret", BaseURL: rzp.server.URL}),
		JWTSecret: "test_jwt_secret",
		JWTTTL:    24 * time.Hour,
		Currency:  "INR",
	})
	return &storefront{app: app, razorpay: rzp}
}

func (s *storefront) client() *client.APIClient {
	return client.New("http://arokya.test/api", kvstore.NewMemoryStore(), client.WithTransport(appTransport{app: s.app}))
}

// scriptedWidget answers with a fixed result.
type scriptedWidget struct {
	mu     sync.Mutex
	result checkout.WidgetResult
	opened int
}

func (w *scriptedWidget) Open(ctx context.Context, opts checkout.WidgetOptions) (checkout.WidgetResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened++
	return w.result, nil
}

func scenarioCart(t *testing.T) *cart.Cart {
	t.Helper()
	ctx := context.Background()
	c, err := cart.Open(ctx, kvstore.NewMemoryStore())
	require.NoError(t, err)
	_, err = c.Add(ctx, "1", "Ruby Ring", decimal.NewFromInt(1200))
	require.NoError(t, err)
	_, err = c.Add(ctx, "2", "Pearl Studs", decimal.NewFromInt(900))
	require.NoError(t, err)
	_, err = c.Add(ctx, "2", "Pearl Studs", decimal.NewFromInt(900))
	require.NoError(t, err)
	return c
}

func signedIn(t *testing.T, s *storefront) *client.APIClient {
	t.Helper()
	api := s.client()
	_, err := api.Signup(context.Background(), "Asha", "asha@example.com", "secret")
	require.NoError(t, err)
	return api
}

func TestHealth(t *testing.T) {
	s := newStorefront(t)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "up", body["database"])
}

func TestUnknownRouteUsesJSONErrors(t *testing.T) {
	s := newStorefront(t)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/api/nope", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["error"])
}

func TestTracingRecordsResponseStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	s := newStorefront(t)
	s.razorpay.down.Store(true)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/api/nope", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/create", strings.NewReader(`{"amount":3000}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = s.app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		if span.SpanKind() == trace.SpanKindServer {
			spans[span.Name()] = span
		}
	}

	notFound, ok := spans["GET /api/nope"]
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusNotFound), statusCodeOf(notFound))
	assert.Equal(t, codes.Unset, notFound.Status().Code)
	assert.NotEmpty(t, notFound.Events(), "the routing error is recorded on the span")

	upstream, ok := spans["POST /api/orders/create"]
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusBadGateway), statusCodeOf(upstream))
	assert.Equal(t, codes.Error, upstream.Status().Code)
}

func statusCodeOf(span sdktrace.ReadOnlySpan) int64 {
	for _, kv := range span.Attributes() {
		if kv.Key == "http.status_code" {
			return kv.Value.AsInt64()
		}
	}
	return 0
}

func TestCatalogThroughClient(t *testing.T) {
	s := newStorefront(t)

	products, err := s.client().ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "8999.00", products[0].Price.StringFixed(2))
}

func TestIdentityThroughClient(t *testing.T) {
	s := newStorefront(t)
	ctx := context.Background()
	api := signedIn(t, s)

	me, err := api.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.PublicUser{Name: "Asha", Email: "asha@example.com"}, me)

	other := s.client()
	_, err = other.Signup(ctx, "Asha Again", "ASHA@example.com", "other")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = other.Login(ctx, "asha@example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrAuth)
	token, err := other.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	_, err = other.Login(ctx, "asha@example.com", "secret")
	require.NoError(t, err)
	me, err = other.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Asha", me.Name)
}

func TestCheckoutPaymentConfirmed(t *testing.T) {
	s := newStorefront(t)
	ctx := context.Background()
	api := signedIn(t, s)
	c := scenarioCart(t)
	require.Equal(t, "3000.00", c.Total().StringFixed(2))

	widget := &scriptedWidget{result: checkout.WidgetResult{State: checkout.PaymentConfirmed, PaymentID: "pay_abc"}}
	result, err := checkout.New(c, api).Checkout(ctx, widget)
	require.NoError(t, err)
	assert.Equal(t, checkout.PaymentConfirmed, result.State)

	orders, err := api.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, result.OrderID, orders[0].OrderID)
	assert.Equal(t, int64(300000), orders[0].Amount)
	assert.Equal(t, "INR", orders[0].Currency)
	assert.Equal(t, models.OrderStatusPaid, orders[0].Status)
	assert.True(t, c.IsEmpty())

	// a retried save for the same order does not add a second entry
	require.NoError(t, api.SaveOrder(ctx, models.SaveOrderRequest{OrderID: result.OrderID, Amount: 300000, Currency: "INR", Status: models.OrderStatusPaid}))
	orders, err = api.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCheckoutPaymentCancelled(t *testing.T) {
	s := newStorefront(t)
	ctx := context.Background()
	api := signedIn(t, s)
	c := scenarioCart(t)
	before := c.Lines()

	widget := &scriptedWidget{result: checkout.WidgetResult{State: checkout.PaymentCancelled}}
	result, err := checkout.New(c, api).Checkout(ctx, widget)
	require.NoError(t, err)
	assert.Equal(t, checkout.PaymentCancelled, result.State)

	orders, err := api.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, before, c.Lines())
}

func TestCheckoutProviderOutage(t *testing.T) {
	s := newStorefront(t)
	s.razorpay.down.Store(true)
	ctx := context.Background()
	api := signedIn(t, s)
	c := scenarioCart(t)
	before := c.Lines()

	widget := &scriptedWidget{}
	o := checkout.New(c, api)
	result, err := o.Checkout(ctx, widget)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	assert.Equal(t, 0, widget.opened)
	assert.Equal(t, before, c.Lines())
	assert.Equal(t, checkout.Idle, o.State())
	assert.Equal(t, int32(1), s.razorpay.calls.Load())
}

func TestCheckoutRequiresLoginToRecord(t *testing.T) {
	s := newStorefront(t)
	ctx := context.Background()
	guest := s.client()
	c := scenarioCart(t)

	widget := &scriptedWidget{result: checkout.WidgetResult{State: checkout.PaymentConfirmed, PaymentID: "pay_abc"}}
	o := checkout.New(c, guest)
	_, err := o.Checkout(ctx, widget)
	assert.ErrorIs(t, err, checkout.ErrRecordingFailed)
	assert.ErrorIs(t, err, apperr.ErrAuth)
	assert.Equal(t, checkout.PaymentConfirmed, o.State())
	assert.Equal(t, 3, c.Count())

	_, err = guest.Signup(ctx, "Asha", "asha@example.com", "secret")
	require.NoError(t, err)
	_, err = o.Confirm(ctx, "")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	orders, err := guest.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusPaid, orders[0].Status)
}

func TestCreateOrderRecordsWhenEnabled(t *testing.T) {
	db, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	rzp := newFakeRazorpay(t)
	app := server.New(server.Options{
		DB:            db,
		Gateway:       payment.NewRazorpayClient(payment.RazorpayConfig{KeyID: "rzp_test_key", BaseURL: rzp.server.URL}),
		JWTSecret:     "test_jwt_secret",
		JWTTTL:        24 * time.Hour,
		Currency:      "INR",
		RecordCreated: true,
	})
	api := client.New("http://arokya.test/api", kvstore.NewMemoryStore(), client.WithTransport(appTransport{app: app}))
	ctx := context.Background()
	_, err = api.Signup(ctx, "Asha", "asha@example.com", "secret")
	require.NoError(t, err)

	order, err := api.CreateOrder(ctx, decimal.RequireFromString("19.99"))
	require.NoError(t, err)
	assert.Equal(t, int64(1999), order.Amount)
	assert.Equal(t, "rzp_test_key", order.Key)

	orders, err := api.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusCreated, orders[0].Status)

	require.NoError(t, api.SaveOrder(ctx, models.SaveOrderRequest{OrderID: order.ID, Amount: 1999, Currency: "INR", Status: models.OrderStatusPaid}))
	orders, err = api.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusPaid, orders[0].Status)
}
