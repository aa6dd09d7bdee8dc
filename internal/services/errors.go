package services

import (
	"fmt"

	"arokya/internal/apperr"
)

var (
	ErrInvalidInput       = fmt.Errorf("%w: name, email and password are required", apperr.ErrValidation)
	ErrPasswordTooLong    = fmt.Errorf("%w: password must be at most %d bytes", apperr.ErrValidation, MaxPasswordBytes)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be a positive number", apperr.ErrValidation)
	ErrInvalidOrder       = fmt.Errorf("%w: invalid order record", apperr.ErrValidation)
	ErrDuplicateUser      = fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	ErrUserNotFound       = fmt.Errorf("%w: user not found", apperr.ErrNotFound)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperr.ErrAuth)
	ErrUnauthenticated    = fmt.Errorf("%w: invalid or expired token", apperr.ErrAuth)
)
