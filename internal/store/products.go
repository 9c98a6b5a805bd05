package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

const productColumns = `id, name, thumbnail_url, price, stock, active, created_at, updated_at`

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct inserts a catalog row. Catalog management lives elsewhere;
// this exists for seeding and tests.
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, thumbnail_url, price, stock, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		product.Name, product.ThumbnailURL, product.Price, product.Stock, product.Active).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
}
