package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents an item in the catalog. Price is in major currency units.
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(64)" yaml:"id" validate:"required"`
	Name        string          `json:"name" gorm:"type:varchar(200)" yaml:"name" validate:"required,max=200"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2)" yaml:"price" validate:"gte=0"`
	Image       string          `json:"image" yaml:"image" validate:"omitempty,max=500"`
	Description string          `json:"description,omitempty" yaml:"description" validate:"omitempty,max=1000"`
	CreatedAt   time.Time       `json:"-" yaml:"-"`
	UpdatedAt   time.Time       `json:"-" yaml:"-"`
}
