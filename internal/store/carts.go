package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// GetOrCreatePendingCart returns the user's pending cart, creating it if needed.
// The partial unique index on carts(user_id) WHERE status = 'pending' makes
// concurrent callers converge on a single row.
func (s *Store) GetOrCreatePendingCart(ctx context.Context, userID int64) (int64, error) {
	var cartID int64
	err := s.db.GetContext(ctx, &cartID, `
		INSERT INTO carts (user_id, status)
		VALUES ($1, $2)
		ON CONFLICT (user_id) WHERE status = 'pending' DO NOTHING
		RETURNING id`,
		userID, models.CartStatusPending)
	if err == nil {
		return cartID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to create cart: %w", err)
	}

	// lost the insert race, or the cart already existed
	return s.FindPendingCart(ctx, userID)
}

// FindPendingCart returns the id of the user's pending cart
func (s *Store) FindPendingCart(ctx context.Context, userID int64) (int64, error) {
	var cartID int64
	err := s.db.GetContext(ctx, &cartID,
		"SELECT id FROM carts WHERE user_id = $1 AND status = $2",
		userID, models.CartStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("pending cart for user %d: %w", userID, models.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return cartID, nil
}

// UpsertCartItem adds quantity to an existing line or inserts a new one.
// The locked price and discount are overwritten with the latest values.
func (s *Store) UpsertCartItem(ctx context.Context, cartID, productID int64, quantity int, price decimal.Decimal, discountID *int64) (*models.CartItem, error) {
	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity, price, discount_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity,
		    price = EXCLUDED.price,
		    discount_id = EXCLUDED.discount_id
		RETURNING id, cart_id, product_id, quantity, price, discount_id`

	var item models.CartItem
	if err := s.db.GetContext(ctx, &item, query, cartID, productID, quantity, price, discountID); err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return &item, nil
}

// CartItemQuantity returns how many units of a product the cart already holds
func (s *Store) CartItemQuantity(ctx context.Context, cartID, productID int64) (int, error) {
	var quantity int
	err := s.db.GetContext(ctx, &quantity,
		"SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE cart_id = $1 AND product_id = $2",
		cartID, productID)
	return quantity, err
}

// ListCartItems returns all lines of a cart joined with product display data
func (s *Store) ListCartItems(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	query := `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.price, ci.discount_id,
		       p.name AS product_name, p.thumbnail_url, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`

	lines := []models.CartLine{}
	if err := s.db.SelectContext(ctx, &lines, query, cartID); err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	return lines, nil
}

// ClearCart deletes all items of a cart, keeping the cart row
func (s *Store) ClearCart(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return err
}

// purgePendingCartsTx deletes the user's pending carts together with their items
func purgePendingCartsTx(ctx context.Context, tx *sqlx.Tx, userID int64) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1 AND status = $2)`,
		userID, models.CartStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cart items: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"DELETE FROM carts WHERE user_id = $1 AND status = $2",
		userID, models.CartStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to delete carts: %w", err)
	}
	return result.RowsAffected()
}
