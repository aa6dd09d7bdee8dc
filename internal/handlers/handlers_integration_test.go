package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"arokya/internal/apperr"
	"arokya/internal/database"
	"arokya/internal/handlers"
	"arokya/internal/models"
	"arokya/internal/payment"
	"arokya/internal/repositories"
	"arokya/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway mints an order for whatever it is asked, or fails when down.
type fakeGateway struct {
	down  bool
	calls int
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	g.calls++
	if g.down {
		return nil, fmt.Errorf("%w: razorpay returned status 503", apperr.ErrUpstream)
	}
	return &payment.Order{
		ID:       fmt.Sprintf("order_%d", g.calls),
		Entity:   "order",
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) KeyID() string {
	return "rzp_test_key"
}

// setupApp sets up a Fiber app for testing with a private in-memory SQLite
// database and all handlers/services.
func setupApp(t *testing.T) (*fiber.App, *fakeGateway) {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	// Initialize Repositories
	productRepo := repositories.NewGORMProductRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)

	// Initialize Services
	gateway := &fakeGateway{}
	productService := services.NewProductService(productRepo)
	authService := services.NewAuthService(userRepo, "test_jwt_secret", 24*time.Hour)
	orderService := services.NewOrderService(orderRepo, userRepo, gateway, nil, "INR")

	// Initialize Handlers
	productHandler := handlers.NewProductHandler(productService)
	authHandler := handlers.NewAuthHandler(authService)
	orderHandler := handlers.NewOrderHandler(orderService, authService)

	app := fiber.New()
	api := app.Group("/api")
	productHandler.RegisterRoutes(api)
	authHandler.RegisterRoutes(api)
	orderHandler.RegisterRoutes(api)

	seedProductsForTest(t, productRepo)
	return app, gateway
}

// seedProductsForTest populates the product repository for tests.
func seedProductsForTest(t *testing.T, repo repositories.ProductRepository) {
	products := []models.Product{
		{ID: "p2", Name: "Diamond Earrings", Price: decimal.NewFromInt(4999), Image: "/images/diamond-earrings.png"},
		{ID: "p1", Name: "Gold Necklace", Price: decimal.NewFromInt(8999), Image: "/images/gold-necklace.png", Description: "22k"},
	}
	for i := range products {
		require.NoError(t, repo.Create(&products[i]))
	}
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// call sends a JSON request and decodes the JSON response into out when out is not nil.
func call(t *testing.T, app *fiber.App, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonBody)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1) // -1 for no timeout
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func signup(t *testing.T, app *fiber.App, name, email, password string) string {
	t.Helper()
	var result models.AuthResult
	status := call(t, app, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": password,
	}, &result)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, result.Token)
	return result.Token
}

func TestAuthSignupLoginAndMe(t *testing.T) {
	app, _ := setupApp(t)

	// Test Registration
	var registered models.AuthResult
	status := call(t, app, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name":     "Asha",
		"email":    "Asha@Example.com",
		"password": "password123",
	}, &registered)
	assert.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, models.PublicUser{Name: "Asha", Email: "asha@example.com"}, registered.User)

	// Test Duplicate Registration (email, any case)
	var dup map[string]string
	status = call(t, app, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name":     "Someone Else",
		"email":    "asha@example.COM",
		"password": "different",
	}, &dup)
	assert.Equal(t, http.StatusConflict, status)
	assert.NotEmpty(t, dup["message"])
	assert.NotEmpty(t, dup["error"])

	// Test Login
	var login models.AuthResult
	status = call(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "asha@example.com",
		"password": "password123",
	}, &login)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, "Asha", login.User.Name)

	// The first account was not touched by the duplicate signup
	var me models.PublicUser
	status = call(t, app, http.MethodGet, "/api/me", login.Token, nil, &me)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.PublicUser{Name: "Asha", Email: "asha@example.com"}, me)
}

func TestAuthLoginFailuresLookTheSame(t *testing.T) {
	app, _ := setupApp(t)
	signup(t, app, "Asha", "asha@example.com", "password123")

	var wrongPassword, unknownEmail map[string]string
	status := call(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@example.com", "password": "nope",
	}, &wrongPassword)
	assert.Equal(t, http.StatusUnauthorized, status)

	status = call(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ghost@example.com", "password": "nope",
	}, &unknownEmail)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, wrongPassword, unknownEmail)
}

func TestAuthValidation(t *testing.T) {
	app, _ := setupApp(t)

	var body struct {
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors"`
	}
	status := call(t, app, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Asha", "email": "not-an-email",
	}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", body.Message)
	assert.Contains(t, body.Errors, "Email")
	assert.Contains(t, body.Errors, "Password")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAuthSignupRejectsPasswordOverByteLimit(t *testing.T) {
	app, _ := setupApp(t)

	var body map[string]string
	status := call(t, app, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name":     "Asha",
		"email":    "asha@example.com",
		"password": strings.Repeat("€", 30),
	}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "72 bytes")

	// the account was not created
	status = call(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@example.com", "password": strings.Repeat("€", 30),
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMeRequiresToken(t *testing.T) {
	app, _ := setupApp(t)

	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodGet, "/api/me", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodGet, "/api/me", "garbage", nil, nil))
}

func TestProductsArePublic(t *testing.T) {
	app, _ := setupApp(t)

	var products []models.Product
	status := call(t, app, http.MethodGet, "/api/products", "", nil, &products)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, products, 2)
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "Gold Necklace", products[0].Name)
	assert.Equal(t, "8999.00", products[0].Price.StringFixed(2))
	assert.Equal(t, "p2", products[1].ID)
}

func TestGetProduct(t *testing.T) {
	app, _ := setupApp(t)

	var product models.Product
	status := call(t, app, http.MethodGet, "/api/products/p2", "", nil, &product)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Diamond Earrings", product.Name)
	assert.Equal(t, "4999.00", product.Price.StringFixed(2))

	var body map[string]string
	status = call(t, app, http.MethodGet, "/api/products/p404", "", nil, &body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Product not found", body["message"])
}

func TestOrdersSaveIsIdempotent(t *testing.T) {
	app, _ := setupApp(t)
	token := signup(t, app, "Asha", "asha@example.com", "password123")

	first := map[string]interface{}{"orderId": "order_A", "amount": 300000, "currency": "INR", "status": "created"}
	var ok map[string]bool
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodPost, "/api/orders/save", token, first, &ok))
	assert.True(t, ok["ok"])

	paid := map[string]interface{}{"orderId": "order_A", "amount": 300000, "currency": "INR", "status": "paid"}
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodPost, "/api/orders/save", token, paid, nil))
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodPost, "/api/orders/save", token, paid, nil))

	second := map[string]interface{}{"orderId": "order_B", "amount": 4999, "currency": "INR", "status": "failed"}
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodPost, "/api/orders/save", token, second, nil))

	var orders []models.OrderRecord
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/orders", token, nil, &orders))
	require.Len(t, orders, 2)
	assert.Equal(t, "order_A", orders[0].OrderID)
	assert.Equal(t, models.OrderStatusPaid, orders[0].Status)
	assert.Equal(t, int64(300000), orders[0].Amount)
	assert.Equal(t, "order_B", orders[1].OrderID)
}

func TestOrdersAreScopedToUser(t *testing.T) {
	app, _ := setupApp(t)
	asha := signup(t, app, "Asha", "asha@example.com", "password123")
	ravi := signup(t, app, "Ravi", "ravi@example.com", "password123")

	order := map[string]interface{}{"orderId": "order_A", "amount": 100, "currency": "INR", "status": "paid"}
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPost, "/api/orders/save", asha, order, nil))

	var orders []models.OrderRecord
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/orders", ravi, nil, &orders))
	assert.Empty(t, orders)
}

func TestOrdersSaveValidation(t *testing.T) {
	app, _ := setupApp(t)
	token := signup(t, app, "Asha", "asha@example.com", "password123")

	bad := []map[string]interface{}{
		{"amount": 100, "currency": "INR", "status": "paid"},
		{"orderId": "order_A", "amount": 0, "currency": "INR", "status": "paid"},
		{"orderId": "order_A", "amount": 100, "currency": "RUPEES", "status": "paid"},
		{"orderId": "order_A", "amount": 100, "currency": "INR", "status": "refunded"},
	}
	for _, body := range bad {
		assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodPost, "/api/orders/save", token, body, nil), "body %v", body)
	}

	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodPost, "/api/orders/save", "", bad[0], nil))
	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodGet, "/api/orders", "", nil, nil))
}

func TestCreateOrder(t *testing.T) {
	app, gateway := setupApp(t)

	var order models.PaymentOrder
	status := call(t, app, http.MethodPost, "/api/orders/create", "", map[string]interface{}{"amount": 3000}, &order)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.PaymentOrder{ID: "order_1", Amount: 300000, Currency: "INR", Key: "rzp_test_key"}, order)

	token := signup(t, app, "Asha", "asha@example.com", "password123")
	status = call(t, app, http.MethodPost, "/api/orders/create", token, map[string]interface{}{"amount": 19.99}, &order)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1999), order.Amount)
	assert.Equal(t, 2, gateway.calls)

	// an invalid optional token is still rejected
	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodPost, "/api/orders/create", "garbage", map[string]interface{}{"amount": 10}, nil))
}

func TestCreateOrderInvalidAmount(t *testing.T) {
	app, gateway := setupApp(t)

	for _, body := range []interface{}{
		map[string]interface{}{"amount": 0},
		map[string]interface{}{"amount": -5},
		map[string]interface{}{"amount": "ten"},
		map[string]interface{}{},
	} {
		var resp map[string]string
		status := call(t, app, http.MethodPost, "/api/orders/create", "", body, &resp)
		assert.Equal(t, http.StatusBadRequest, status, "body %v", body)
		assert.Equal(t, services.ErrInvalidAmount.Error(), resp["error"])
	}
	assert.Equal(t, 0, gateway.calls)
}

func TestCreateOrderUpstreamFailure(t *testing.T) {
	app, gateway := setupApp(t)
	gateway.down = true

	var resp map[string]string
	status := call(t, app, http.MethodPost, "/api/orders/create", "", map[string]interface{}{"amount": 3000}, &resp)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "Failed to create order", resp["message"])
	assert.Contains(t, resp["error"], "upstream error")
	assert.Equal(t, 1, gateway.calls)
}
