package handlers

import (
	"errors"
	"fmt"

	"arokya/internal/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// respondError answers with the status that matches the error kind.
func respondError(c *fiber.Ctx, message string, err error) error {
	return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}

// parseAndValidate decodes the body into req and runs the struct validator.
// It writes the 400 response itself and returns false when the request is bad.
func parseAndValidate(c *fiber.Ctx, validate *validator.Validate, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   fmt.Errorf("%w: %v", apperr.ErrValidation, err).Error(),
		})
	}

	if err := validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return false, respondError(c, "Validation failed", fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		}
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"error":   apperr.ErrValidation.Error(),
			"errors":  errorMessages,
		})
	}
	return true, nil
}
