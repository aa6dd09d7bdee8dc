package middleware

import (
	"log"
	"strings"

	"arokya/internal/services"

	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the c.Locals key holding the authenticated user id.
const UserIDKey = "user_id"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required")
		}
		return authenticate(c, verifier, authHeader)
	}
}

// OptionalAuth authenticates the caller when an Authorization header is
// present and lets anonymous requests through. A header carrying a bad token
// is still rejected.
func OptionalAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Next()
		}
		return authenticate(c, verifier, authHeader)
	}
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(UserIDKey).(string)
	return userID
}

func authenticate(c *fiber.Ctx, verifier TokenVerifier, authHeader string) error {
	// Expected format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if !(len(parts) == 2 && strings.EqualFold(parts[0], "Bearer")) {
		return unauthorized(c, "Authorization header format must be 'Bearer <token>'")
	}

	userID, err := verifier.Verify(strings.TrimSpace(parts[1]))
	if err != nil {
		log.Printf("JWT validation failed: %v", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Invalid or expired token",
			"error":   services.ErrUnauthenticated.Error(),
		})
	}

	c.Locals(UserIDKey, userID)
	return c.Next()
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"message": message,
		"error":   services.ErrUnauthenticated.Error(),
	})
}
