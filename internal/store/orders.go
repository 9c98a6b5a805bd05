package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const orderColumns = `id, user_id, total, status, shipping_address, payment_method, stock_debited_at, created_at, updated_at`

type lockedProduct struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Stock int    `db:"stock"`
}

// CreateOrder writes an order and all of its items as one transaction.
// Every referenced product row is locked FOR UPDATE and its stock re-checked;
// each discounted line spends one unit of its discount. Any failure rolls the
// whole order back.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		products, err := lockProducts(ctx, tx, items)
		if err != nil {
			return err
		}

		requested := make(map[int64]int, len(items))
		for _, item := range items {
			requested[item.ProductID] += item.Quantity
		}
		for productID, quantity := range requested {
			product, ok := products[productID]
			if !ok {
				return fmt.Errorf("%w: %d", models.ErrProductNotFound, productID)
			}
			if quantity > product.Stock {
				return fmt.Errorf("%w: product=%d available=%d requested=%d",
					models.ErrInsufficientStock, productID, product.Stock, quantity)
			}
		}

		for _, item := range items {
			if item.DiscountID == nil {
				continue
			}
			if err := consumeDiscount(ctx, tx, *item.DiscountID); err != nil {
				return err
			}
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO orders (user_id, total, status, shipping_address, payment_method)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at`,
			order.UserID, order.Total, order.Status, order.ShippingAddress, order.PaymentMethod).
			Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range items {
			item := &items[i]
			item.OrderID = order.ID
			item.ProductName = products[item.ProductID].Name

			err := tx.GetContext(ctx, &item.ID, `
				INSERT INTO order_items (order_id, product_id, product_name, quantity, price, discount_id)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id`,
				item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.Price, item.DiscountID)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		return nil
	})
}

// lockProducts locks the product rows referenced by items in id order,
// so that concurrent checkouts acquire locks in the same sequence
func lockProducts(ctx context.Context, tx *sqlx.Tx, items []models.OrderItem) (map[int64]lockedProduct, error) {
	seen := make(map[int64]bool, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var rows []lockedProduct
	err := tx.SelectContext(ctx, &rows,
		"SELECT id, name, stock FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE",
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}

	products := make(map[int64]lockedProduct, len(rows))
	for _, row := range rows {
		products[row.ID] = row
	}
	return products, nil
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, order_id, product_id, product_name, quantity, price, discount_id
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, orderID)
	return items, err
}

// UpdateOrderStatus sets an order's status in one transaction. On a
// fulfillment terminal status the items' stock is debited (once per order,
// tracked by stock_debited_at) and the owner's pending carts are purged.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*models.StatusChange, error) {
	change := &models.StatusChange{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var current models.Order
		err := tx.GetContext(ctx, &current,
			"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", orderID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}

		terminal := models.IsFulfillmentTerminal(status)
		change.StockDebited = terminal && current.StockDebitedAt == nil

		if change.StockDebited {
			if err := debitStock(ctx, tx, orderID); err != nil {
				return err
			}
		}

		var updated models.Order
		err = tx.GetContext(ctx, &updated, `
			UPDATE orders
			SET status = $1,
			    updated_at = NOW(),
			    stock_debited_at = CASE WHEN $2 THEN NOW() ELSE stock_debited_at END
			WHERE id = $3
			RETURNING `+orderColumns,
			status, change.StockDebited, orderID)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		change.Order = &updated

		if terminal {
			purged, err := purgePendingCartsTx(ctx, tx, current.UserID)
			if err != nil {
				return err
			}
			change.CartsPurged = purged
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// debitStock subtracts every item's quantity from its product. There is no
// floor: stock may go negative if it was oversold outside this service.
func debitStock(ctx context.Context, tx *sqlx.Tx, orderID int64) error {
	var items []models.OrderItem
	err := tx.SelectContext(ctx, &items, `
		SELECT id, order_id, product_id, product_name, quantity, price, discount_id
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_id`, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2",
			item.Quantity, item.ProductID)
		if err != nil {
			return fmt.Errorf("failed to debit stock for product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
