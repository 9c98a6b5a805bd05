package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// DiscountService validates and creates product discount codes
type DiscountService struct {
	store  DiscountStore
	now    func() time.Time
	logger *zap.Logger
}

// NewDiscountService creates a new discount service
func NewDiscountService(store DiscountStore) *DiscountService {
	return &DiscountService{
		store:  store,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// NormalizeCode upper-cases and trims a discount code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ApplyPercent returns price reduced by percent, rounded to currency minor units
func ApplyPercent(price, percent decimal.Decimal) decimal.Decimal {
	return price.Mul(hundred.Sub(percent)).Div(hundred).Round(2)
}

// Validate returns the discount when code is scoped to productID, now is
// inside its window and it still has remaining uses
func (s *DiscountService) Validate(ctx context.Context, productID int64, code string, now time.Time) (*models.Discount, error) {
	ctx, span := util.StartSpan(ctx, "DiscountService.Validate")
	defer span.End()

	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty discount code", models.ErrDiscountInvalid)
	}

	discount, err := s.store.FindDiscount(ctx, productID, code)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrDiscountInvalid, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find discount: %w", err)
	}

	if !discount.ActiveAt(now) {
		return nil, fmt.Errorf("%w: %s outside validity window", models.ErrDiscountInvalid, code)
	}
	if discount.Remaining <= 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrDiscountExhausted, code)
	}

	return discount, nil
}

// CreateDiscountRequest describes a new discount code
type CreateDiscountRequest struct {
	ProductID int64           `json:"product_id" binding:"required,gt=0"`
	Code      string          `json:"code" binding:"required"`
	Percent   decimal.Decimal `json:"percent"`
	Total     int             `json:"total" binding:"required,gt=0"`
	StartsAt  time.Time       `json:"starts_at" binding:"required"`
	EndsAt    time.Time       `json:"ends_at" binding:"required"`
}

// Create registers a new discount code. The usage pool starts full.
func (s *DiscountService) Create(ctx context.Context, req *CreateDiscountRequest) (*models.Discount, error) {
	ctx, span := util.StartSpan(ctx, "DiscountService.Create")
	defer span.End()

	code := NormalizeCode(req.Code)
	switch {
	case req.ProductID <= 0:
		return nil, fmt.Errorf("%w: product_id must be positive", models.ErrInvalidInput)
	case code == "":
		return nil, fmt.Errorf("%w: code is required", models.ErrInvalidInput)
	case !req.Percent.IsPositive() || req.Percent.GreaterThan(hundred):
		return nil, fmt.Errorf("%w: percent must be in (0, 100]", models.ErrInvalidInput)
	case req.Total <= 0:
		return nil, fmt.Errorf("%w: total must be positive", models.ErrInvalidInput)
	case !req.StartsAt.Before(req.EndsAt):
		return nil, fmt.Errorf("%w: starts_at must be before ends_at", models.ErrInvalidInput)
	}

	discount := &models.Discount{
		ProductID: req.ProductID,
		Code:      code,
		Percent:   req.Percent.Round(2),
		Total:     req.Total,
		Remaining: req.Total,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
	}

	if err := s.store.CreateDiscount(ctx, discount); err != nil {
		return nil, err
	}

	s.logger.Info("Discount created",
		zap.Int64("discount_id", discount.ID),
		zap.Int64("product_id", discount.ProductID),
		zap.String("code", discount.Code),
		zap.Int("total", discount.Total))
	return discount, nil
}
