package service

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService handles add-to-cart and cart reads
type CartService struct {
	catalog   CatalogReader
	carts     CartStore
	discounts *DiscountService
	logger    *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(catalog CatalogReader, carts CartStore, discounts *DiscountService) *CartService {
	return &CartService{
		catalog:   catalog,
		carts:     carts,
		discounts: discounts,
		logger:    util.GetLogger(),
	}
}

// AddItemRequest represents a request to add a product to the pending cart
type AddItemRequest struct {
	ProductID    int64  `json:"product_id" binding:"required,gt=0"`
	Quantity     int    `json:"quantity" binding:"required,gt=0"`
	DiscountCode string `json:"discount_code,omitempty"`
}

// CartView is the pending cart with its lines and subtotal
type CartView struct {
	CartID   int64             `json:"cart_id"`
	Items    []models.CartLine `json:"items"`
	Subtotal decimal.Decimal   `json:"subtotal"`
}

// AddItem validates the product, stock and optional discount, then upserts
// the line into the user's pending cart with the price locked in
func (s *CartService) AddItem(ctx context.Context, userID int64, req *AddItemRequest) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if userID <= 0 || req.ProductID <= 0 || req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: product_id and quantity must be positive", models.ErrInvalidInput)
	}

	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: %d", models.ErrProductInactive, product.ID)
	}

	price := product.Price
	var discountID *int64
	if req.DiscountCode != "" {
		discount, err := s.discounts.Validate(ctx, product.ID, req.DiscountCode, s.discounts.now())
		if err != nil {
			return nil, err
		}
		price = ApplyPercent(product.Price, discount.Percent)
		discountID = &discount.ID
	}

	// the cart is created only after the stock check passes
	inCart := 0
	cartID, err := s.carts.FindPendingCart(ctx, userID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		cartID = 0
	case err != nil:
		return nil, fmt.Errorf("failed to find pending cart: %w", err)
	default:
		inCart, err = s.carts.CartItemQuantity(ctx, cartID, product.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read cart quantity: %w", err)
		}
	}
	if inCart+req.Quantity > product.Stock {
		return nil, fmt.Errorf("%w: product=%d available=%d requested=%d",
			models.ErrInsufficientStock, product.ID, product.Stock, inCart+req.Quantity)
	}

	if cartID == 0 {
		cartID, err = s.carts.GetOrCreatePendingCart(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get pending cart: %w", err)
		}
	}

	item, err := s.carts.UpsertCartItem(ctx, cartID, product.ID, req.Quantity, price, discountID)
	if err != nil {
		return nil, err
	}

	util.CartItemsAddedTotal.Inc()
	s.logger.Info("Cart item added",
		zap.Int64("user_id", userID),
		zap.Int64("cart_id", cartID),
		zap.Int64("product_id", product.ID),
		zap.Int("quantity", item.Quantity),
		zap.String("price", item.Price.StringFixed(2)))

	return item, nil
}

// GetCart returns the user's pending cart. A user without one gets an empty view.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	view := &CartView{Items: []models.CartLine{}, Subtotal: decimal.Zero}

	cartID, err := s.carts.FindPendingCart(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	lines, err := s.carts.ListCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}

	view.CartID = cartID
	view.Items = lines
	for _, line := range lines {
		view.Subtotal = view.Subtotal.Add(line.Subtotal())
	}
	return view, nil
}
