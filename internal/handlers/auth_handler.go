package handlers

import (
	"errors"
	"log"

	"arokya/internal/apperr"
	"arokya/internal/middleware"
	"arokya/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService *services.AuthService
	validate    *validator.Validate
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validator.New(),
	}
}

// RegisterRoutes registers the authentication routes. /me sits behind the
// bearer token check.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/signup", h.HandleSignup)
	authRoutes.Post("/login", h.HandleLogin)
	router.Get("/me", middleware.AuthRequired(h.authService), h.HandleMe)
}

// SignupRequest represents the request body for signup.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// HandleSignup registers a user and logs them in.
func (h *AuthHandler) HandleSignup(c *fiber.Ctx) error {
	var req SignupRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	result, err := h.authService.Signup(req.Name, req.Email, req.Password)
	if err != nil {
		log.Printf("Error registering user: %v", err)
		if errors.Is(err, apperr.ErrConflict) {
			return respondError(c, "Registration failed", err)
		}
		return respondError(c, "Could not register user", err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin handles user login and issues a JWT token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	result, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		log.Printf("Error during login: %v", err)
		// unknown email and wrong password look the same from outside
		if errors.Is(err, services.ErrUserNotFound) || errors.Is(err, apperr.ErrAuth) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authentication failed",
				"error":   services.ErrInvalidCredentials.Error(),
			})
		}
		return respondError(c, "Could not log in", err)
	}

	return c.JSON(result)
}

// HandleMe returns the profile of the authenticated user.
func (h *AuthHandler) HandleMe(c *fiber.Ctx) error {
	me, err := h.authService.Me(middleware.UserID(c))
	if err != nil {
		log.Printf("Error loading profile: %v", err)
		return respondError(c, "Could not load profile", err)
	}
	return c.JSON(me)
}
