package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Checkout request kinds
const (
	CheckoutTypeBuyNow   = "buy_now"
	CheckoutTypeFromCart = "from_cart"
)

// CheckoutService turns a buy-now line or the pending cart into an order
type CheckoutService struct {
	catalog     CatalogReader
	carts       CartStore
	orders      OrderStore
	discounts   *DiscountService
	publisher   EventPublisher
	idempotency IdempotencyStore
	logger      *zap.Logger
}

// NewCheckoutService creates a new checkout service. publisher and
// idempotency may be nil.
func NewCheckoutService(
	catalog CatalogReader,
	carts CartStore,
	orders OrderStore,
	discounts *DiscountService,
	publisher EventPublisher,
	idempotency IdempotencyStore,
) *CheckoutService {
	return &CheckoutService{
		catalog:     catalog,
		carts:       carts,
		orders:      orders,
		discounts:   discounts,
		publisher:   publisher,
		idempotency: idempotency,
		logger:      util.GetLogger(),
	}
}

// CheckoutRequest is either a buy-now line (ProductID, Quantity,
// DiscountCode) or a from-cart checkout of the whole pending cart
type CheckoutRequest struct {
	Type            string `json:"type" binding:"required"`
	ProductID       int64  `json:"product_id,omitempty"`
	Quantity        int    `json:"quantity,omitempty"`
	DiscountCode    string `json:"discount_code,omitempty"`
	ShippingAddress string `json:"shipping_address" binding:"required"`
	PaymentMethod   string `json:"payment_method" binding:"required"`
}

// CheckoutResponse represents the response after a checkout
type CheckoutResponse struct {
	OrderID  int64           `json:"order_id"`
	Total    decimal.Decimal `json:"total"`
	Replayed bool            `json:"replayed,omitempty"`
}

// checkoutPlan is the validated line set about to be committed
type checkoutPlan struct {
	items  []models.OrderItem
	cartID int64
}

func (p *checkoutPlan) total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range p.items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func (p *checkoutPlan) discountedLines() int {
	n := 0
	for _, item := range p.items {
		if item.DiscountID != nil {
			n++
		}
	}
	return n
}

// Checkout validates the request, commits the order atomically and then
// runs the post-commit steps (cart clearing, event publishing), whose
// failures are logged but never undo the order.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64, req *CheckoutRequest, idempotencyKey string) (resp *CheckoutResponse, err error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer func() { util.EndSpan(span, err) }()

	kind := req.Type
	if kind != CheckoutTypeBuyNow && kind != CheckoutTypeFromCart {
		kind = "unknown"
	}

	start := time.Now()
	defer func() {
		util.CheckoutLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			util.CheckoutsFailedTotal.WithLabelValues(kind, failureReason(err)).Inc()
		}
	}()

	if err := validateCheckout(userID, req); err != nil {
		return nil, err
	}

	if idempotencyKey != "" && s.idempotency != nil {
		key := fmt.Sprintf("checkout:%d:%s", userID, idempotencyKey)
		token := uuid.New().String()

		existing, claimed, claimErr := s.idempotency.Claim(ctx, key, token)
		switch {
		case claimErr != nil:
			s.logger.Warn("Idempotency claim failed, continuing without it",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(claimErr))
		case !claimed && existing > 0:
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("order_id", existing))
			order, err := s.orders.GetOrder(ctx, existing)
			if err != nil {
				return nil, err
			}
			return &CheckoutResponse{OrderID: order.ID, Total: order.Total, Replayed: true}, nil
		case !claimed:
			return nil, models.ErrCheckoutInProgress
		default:
			defer func() {
				s.finishIdempotency(key, token, resp, err)
			}()
		}
	}

	var plan *checkoutPlan
	switch req.Type {
	case CheckoutTypeBuyNow:
		plan, err = s.planBuyNow(ctx, req)
	case CheckoutTypeFromCart:
		plan, err = s.planFromCart(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:          userID,
		Total:           plan.total(),
		Status:          models.OrderStatusPending,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
	}

	if err := s.orders.CreateOrder(ctx, order, plan.items); err != nil {
		return nil, err
	}

	util.CheckoutsTotal.WithLabelValues(req.Type).Inc()
	util.DiscountsConsumedTotal.Add(float64(plan.discountedLines()))
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("type", req.Type),
		zap.String("total", order.Total.StringFixed(2)))

	if plan.cartID != 0 {
		if err := s.carts.ClearCart(ctx, plan.cartID); err != nil {
			util.PostCommitFailuresTotal.WithLabelValues("clear_cart").Inc()
			s.logger.Error("Failed to clear cart after checkout",
				zap.Int64("order_id", order.ID),
				zap.Int64("cart_id", plan.cartID),
				zap.Error(err))
		}
	}

	s.publishOrderCreated(ctx, order, req.Type, plan.items)

	return &CheckoutResponse{OrderID: order.ID, Total: order.Total}, nil
}

func validateCheckout(userID int64, req *CheckoutRequest) error {
	if userID <= 0 {
		return fmt.Errorf("%w: missing user", models.ErrInvalidInput)
	}

	switch req.Type {
	case CheckoutTypeBuyNow:
		if req.ProductID <= 0 || req.Quantity <= 0 {
			return fmt.Errorf("%w: product_id and quantity must be positive", models.ErrInvalidInput)
		}
	case CheckoutTypeFromCart:
	default:
		return fmt.Errorf("%w: unknown checkout type %q", models.ErrInvalidInput, req.Type)
	}

	if strings.TrimSpace(req.ShippingAddress) == "" || strings.TrimSpace(req.PaymentMethod) == "" {
		return fmt.Errorf("%w: shipping_address and payment_method are required", models.ErrInvalidInput)
	}
	return nil
}

// planBuyNow re-reads the product, checks stock and prices the single line
func (s *CheckoutService) planBuyNow(ctx context.Context, req *CheckoutRequest) (*checkoutPlan, error) {
	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: %d", models.ErrProductInactive, product.ID)
	}
	if req.Quantity > product.Stock {
		return nil, fmt.Errorf("%w: product=%d available=%d requested=%d",
			models.ErrInsufficientStock, product.ID, product.Stock, req.Quantity)
	}

	item := models.OrderItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    req.Quantity,
		Price:       product.Price,
	}

	if req.DiscountCode != "" {
		discount, err := s.discounts.Validate(ctx, product.ID, req.DiscountCode, s.discounts.now())
		if err != nil {
			return nil, err
		}
		item.Price = ApplyPercent(product.Price, discount.Percent)
		item.DiscountID = &discount.ID
	}

	return &checkoutPlan{items: []models.OrderItem{item}}, nil
}

// planFromCart takes the pending cart's lines with their locked prices.
// Stock is re-checked inside the order transaction.
func (s *CheckoutService) planFromCart(ctx context.Context, userID int64) (*checkoutPlan, error) {
	cartID, err := s.carts.FindPendingCart(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}

	lines, err := s.carts.ListCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, models.ErrEmptyCart
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Price:       line.Price,
			DiscountID:  line.DiscountID,
		})
	}

	return &checkoutPlan{items: items, cartID: cartID}, nil
}

func (s *CheckoutService) finishIdempotency(key, token string, resp *CheckoutResponse, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err != nil || resp == nil {
		if relErr := s.idempotency.Release(ctx, key, token); relErr != nil {
			s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
		}
		return
	}

	if compErr := s.idempotency.Complete(ctx, key, token, resp.OrderID); compErr != nil {
		util.PostCommitFailuresTotal.WithLabelValues("idempotency").Inc()
		s.logger.Warn("Failed to record idempotency key",
			zap.String("key", key),
			zap.Int64("order_id", resp.OrderID),
			zap.Error(compErr))
	}
}

func (s *CheckoutService) publishOrderCreated(ctx context.Context, order *models.Order, checkoutType string, items []models.OrderItem) {
	if s.publisher == nil {
		return
	}

	data := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		data = append(data, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:      order.ID,
		UserID:       order.UserID,
		CheckoutType: checkoutType,
		Total:        order.Total,
		Items:        data,
	}

	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		util.PostCommitFailuresTotal.WithLabelValues("publish").Inc()
		s.logger.Error("Failed to publish OrderCreated event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

// failureReason maps an error onto a low-cardinality metric label
func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrProductInactive):
		return "inactive_product"
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrDiscountInvalid), errors.Is(err, models.ErrDiscountExhausted):
		return "discount"
	case errors.Is(err, models.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, models.ErrCheckoutInProgress):
		return "in_progress"
	default:
		return "internal"
	}
}
