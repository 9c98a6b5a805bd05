package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const discountColumns = `id, product_id, code, percent, remaining, total, starts_at, ends_at, created_at`

// SQLSTATE codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// FindDiscount looks up a discount by product and (already normalized) code
func (s *Store) FindDiscount(ctx context.Context, productID int64, code string) (*models.Discount, error) {
	var discount models.Discount
	err := s.db.GetContext(ctx, &discount,
		"SELECT "+discountColumns+" FROM discounts WHERE product_id = $1 AND code = $2",
		productID, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("discount %q: %w", code, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

// GetDiscount retrieves a discount by ID
func (s *Store) GetDiscount(ctx context.Context, id int64) (*models.Discount, error) {
	var discount models.Discount
	err := s.db.GetContext(ctx, &discount,
		"SELECT "+discountColumns+" FROM discounts WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("discount %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

// CreateDiscount inserts a new discount. Remaining starts equal to Total.
func (s *Store) CreateDiscount(ctx context.Context, discount *models.Discount) error {
	query := `
		INSERT INTO discounts (product_id, code, percent, remaining, total, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $4, $5, $6)
		RETURNING id, remaining, created_at`

	err := s.db.QueryRowxContext(ctx, query,
		discount.ProductID, discount.Code, discount.Percent, discount.Total,
		discount.StartsAt, discount.EndsAt).
		Scan(&discount.ID, &discount.Remaining, &discount.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: discount code %q already exists", models.ErrInvalidInput, discount.Code)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %d", models.ErrProductNotFound, discount.ProductID)
		}
	}
	return err
}

// consumeDiscount spends one unit of the usage pool. The decrement only
// happens while remaining > 0; zero affected rows means the pool is empty.
func consumeDiscount(ctx context.Context, exec sqlx.ExecerContext, discountID int64) error {
	result, err := exec.ExecContext(ctx,
		"UPDATE discounts SET remaining = remaining - 1 WHERE id = $1 AND remaining > 0",
		discountID)
	if err != nil {
		return fmt.Errorf("failed to consume discount: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("discount %d: %w", discountID, models.ErrDiscountExhausted)
	}
	return nil
}
