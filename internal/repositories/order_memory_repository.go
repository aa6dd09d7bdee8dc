package repositories

import (
	"sync"
	"time"

	"arokya/internal/models"
)

// MemoryOrderRepository is an in-memory implementation of OrderRepository.
type MemoryOrderRepository struct {
	orders map[string][]models.OrderRecord
	nextID uint
	mu     sync.RWMutex
}

// NewMemoryOrderRepository creates a new instance of MemoryOrderRepository.
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[string][]models.OrderRecord),
	}
}

// Upsert appends a new entry or updates the user's entry with the same order id.
func (r *MemoryOrderRepository) Upsert(record *models.OrderRecord) (*models.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	ledger := r.orders[record.UserID]
	for i := range ledger {
		if ledger[i].OrderID != record.OrderID {
			continue
		}
		if ledger[i].Status != models.OrderStatusPaid {
			ledger[i].Amount = record.Amount
			ledger[i].Currency = record.Currency
			ledger[i].Status = record.Status
		}
		ledger[i].UpdatedAt = now
		stored := ledger[i]
		return &stored, nil
	}

	r.nextID++
	stored := *record
	stored.ID = r.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.orders[record.UserID] = append(ledger, stored)
	return &stored, nil
}

// ListByUser returns a copy of the user's ledger, oldest first.
func (r *MemoryOrderRepository) ListByUser(userID string) ([]models.OrderRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.OrderRecord, len(r.orders[userID]))
	copy(out, r.orders[userID])
	return out, nil
}
