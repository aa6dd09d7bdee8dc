package repositories

import (
	"errors"
	"fmt"

	"arokya/internal/models"

	"gorm.io/gorm"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// GetAll retrieves the whole catalog ordered by id.
func (r *GORMProductRepository) GetAll() ([]models.Product, error) {
	products := []models.Product{}
	if err := r.db.Order("id asc").Find(&products).Error; err != nil {
		return nil, persistenceError("failed to get all products", err)
	}
	return products, nil
}

// GetByID retrieves a single product by its ID from the database.
func (r *GORMProductRepository) GetByID(id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
		}
		return nil, persistenceError(fmt.Sprintf("failed to get product by ID %s", id), err)
	}
	return &product, nil
}

// Create inserts a product. The catalog supplies ids, so an empty id is rejected.
func (r *GORMProductRepository) Create(product *models.Product) error {
	if product.ID == "" {
		return fmt.Errorf("product %q has no ID", product.Name)
	}
	if err := r.db.Create(product).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("product with ID %s: %w", product.ID, ErrDuplicate)
		}
		return persistenceError("failed to create product", err)
	}
	return nil
}
