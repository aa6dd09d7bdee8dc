package repositories

import (
	"arokya/internal/models"
)

// OrderRepository defines the interface for the per-user order ledger.
type OrderRepository interface {
	// Upsert records an order for record.UserID. A second call with the same
	// (UserID, OrderID) updates the existing entry instead of appending one;
	// a paid entry is never moved back to another status.
	Upsert(record *models.OrderRecord) (*models.OrderRecord, error)
	// ListByUser returns the user's orders oldest first.
	ListByUser(userID string) ([]models.OrderRecord, error)
}
