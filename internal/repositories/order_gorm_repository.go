package repositories

import (
	"errors"
	"fmt"

	"arokya/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMOrderRepository stores ledger entries in the order_records table. The
// (user_id, order_id) unique index turns Upsert into a single atomic statement.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// keepIfPaid assigns the incoming value of column unless the stored row is
// already paid.
func keepIfPaid(column string) clause.Expr {
	return gorm.Expr(
		fmt.Sprintf("CASE WHEN order_records.status = ? THEN order_records.%s ELSE excluded.%s END", column, column),
		string(models.OrderStatusPaid),
	)
}

// Upsert inserts the record or updates the existing (user_id, order_id) row.
// A paid row keeps its status, amount and currency.
func (r *GORMOrderRepository) Upsert(record *models.OrderRecord) (*models.OrderRecord, error) {
	row := *record
	row.ID = 0

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "order_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":     keepIfPaid("amount"),
			"currency":   keepIfPaid("currency"),
			"status":     keepIfPaid("status"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, persistenceError("failed to upsert order", err)
	}

	var stored models.OrderRecord
	if err := r.db.First(&stored, "user_id = ? AND order_id = ?", record.UserID, record.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s for user %s: %w", record.OrderID, record.UserID, ErrNotFound)
		}
		return nil, persistenceError("failed to reload order", err)
	}
	return &stored, nil
}

// ListByUser returns the user's ledger in insertion order.
func (r *GORMOrderRepository) ListByUser(userID string) ([]models.OrderRecord, error) {
	orders := []models.OrderRecord{}
	if err := r.db.Where("user_id = ?", userID).Order("id asc").Find(&orders).Error; err != nil {
		return nil, persistenceError(fmt.Sprintf("failed to list orders for user %s", userID), err)
	}
	return orders, nil
}
