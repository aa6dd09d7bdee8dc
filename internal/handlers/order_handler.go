package handlers

import (
	"log"

	"arokya/internal/middleware"
	"arokya/internal/models"
	"arokya/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for payment orders and the order ledger.
type OrderHandler struct {
	service  *services.OrderService
	verifier middleware.TokenVerifier
	validate *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, verifier middleware.TokenVerifier) *OrderHandler {
	return &OrderHandler{
		service:  service,
		verifier: verifier,
		validate: models.NewValidator(),
	}
}

// RegisterRoutes registers the order routes.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Post("/create", middleware.OptionalAuth(h.verifier), h.HandleCreateOrder)
	orderRoutes.Post("/save", middleware.AuthRequired(h.verifier), h.HandleSaveOrder)
	router.Get("/orders", middleware.AuthRequired(h.verifier), h.HandleListOrders)
}

// HandleCreateOrder mints a provider order for the amount in the body (major units).
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req models.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing request body: %v", err)
		return respondError(c, "Invalid request body", services.ErrInvalidAmount)
	}
	if err := h.validate.Struct(req); err != nil {
		return respondError(c, "Invalid amount", services.ErrInvalidAmount)
	}

	order, err := h.service.CreatePaymentOrder(c.UserContext(), middleware.UserID(c), req.Amount)
	if err != nil {
		log.Printf("Error creating order: %v", err)
		return respondError(c, "Failed to create order", err)
	}
	return c.JSON(order)
}

// HandleSaveOrder records an order in the caller's ledger.
func (h *OrderHandler) HandleSaveOrder(c *fiber.Ctx) error {
	var req models.SaveOrderRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	userID := middleware.UserID(c)
	if _, err := h.service.AppendOrder(userID, req); err != nil {
		log.Printf("Error saving order %s for user %s: %v", req.OrderID, userID, err)
		return respondError(c, "Could not save order", err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleListOrders returns the caller's orders, oldest first.
func (h *OrderHandler) HandleListOrders(c *fiber.Ctx) error {
	orders, err := h.service.ListOrders(middleware.UserID(c))
	if err != nil {
		log.Printf("Error listing orders: %v", err)
		return respondError(c, "Could not retrieve orders", err)
	}
	return c.JSON(orders)
}
