// Package catalog loads the product catalog and seeds it into a repository.
package catalog

import (
	"errors"
	"fmt"
	"log"
	"os"

	"arokya/internal/models"
	"arokya/internal/repositories"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Default is the catalog served when no catalog file is configured.
func Default() []models.Product {
	return []models.Product{
		{ID: "p1", Name: "Gold Necklace", Price: decimal.NewFromInt(8999), Image: "/images/gold-necklace.png"},
		{ID: "p2", Name: "Diamond Earrings", Price: decimal.NewFromInt(4999), Image: "/images/diamond-earrings.png"},
		{ID: "p3", Name: "Silver Bracelet", Price: decimal.NewFromInt(2999), Image: "/images/silver-bracelet.png"},
	}
}

type file struct {
	Products []models.Product `yaml:"products"`
}

// Parse decodes a YAML catalog of the form
//
//	products:
//	  - id: p1
//	    name: Gold Necklace
//	    price: 8999
//	    image: /images/gold-necklace.png
func Parse(data []byte) ([]models.Product, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	validate := models.NewValidator()
	seen := make(map[string]bool, len(f.Products))
	for i, p := range f.Products {
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate product id %s", i, p.ID)
		}
		seen[p.ID] = true
	}
	return f.Products, nil
}

// Load reads the catalog at path, or returns Default when path is empty.
func Load(path string) ([]models.Product, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Seed inserts every product that the repository does not know yet.
// Products already present are left untouched.
func Seed(repo repositories.ProductRepository, products []models.Product) error {
	for i := range products {
		_, err := repo.GetByID(products[i].ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		if err := repo.Create(&products[i]); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", products[i].ID, err)
		}
		log.Printf("Seeded product: %s (ID: %s)", products[i].Name, products[i].ID)
	}
	return nil
}
