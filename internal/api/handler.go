package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type CartAPI interface {
	AddItem(ctx context.Context, userID int64, req *service.AddItemRequest) (*models.CartItem, error)
	GetCart(ctx context.Context, userID int64) (*service.CartView, error)
}

type CheckoutAPI interface {
	Checkout(ctx context.Context, userID int64, req *service.CheckoutRequest, idempotencyKey string) (*service.CheckoutResponse, error)
}

type OrderAPI interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error)
	SetStatus(ctx context.Context, orderID int64, status string) (*models.StatusChange, error)
}

type DiscountAPI interface {
	Create(ctx context.Context, req *service.CreateDiscountRequest) (*models.Discount, error)
}

type AccountAPI interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	ChangePassword(ctx context.Context, userID int64, current, next string) (string, error)
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// Dependencies wires the handler to the services behind it. Ready may be
// nil, in which case /ready always succeeds.
type Dependencies struct {
	Cart      CartAPI
	Checkout  CheckoutAPI
	Orders    OrderAPI
	Discounts DiscountAPI
	Accounts  AccountAPI
	Verifier  TokenVerifier
	Ready     func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps, logger: util.GetLogger()}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/auth/register", h.register)
	v1.POST("/auth/login", h.login)

	authed := v1.Group("", h.authMiddleware())
	{
		authed.PUT("/auth/password", h.changePassword)
		authed.POST("/cart/items", h.addCartItem)
		authed.GET("/cart", h.getCart)
		authed.POST("/checkout", h.checkout)
		authed.GET("/orders/:id", h.getOrder)
	}

	admin := authed.Group("/admin", requireAdmin())
	{
		admin.PATCH("/orders/:id/status", h.updateOrderStatus)
		admin.POST("/discounts", h.createDiscount)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	if h.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Ready(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.deps.Accounts.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
	})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, err := h.deps.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// changePassword returns a fresh token; the caller's old tokens stop working.
func (h *Handler) changePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, err := h.deps.Accounts.ChangePassword(c.Request.Context(), identity(c).UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.deps.Cart.AddItem(c.Request.Context(), identity(c).UserID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.deps.Cart.GetCart(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.deps.Checkout.Checkout(c.Request.Context(), identity(c).UserID, &req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// getOrder lets customers read their own orders and admins read any.
// Someone else's order looks the same as a missing one.
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, items, err := h.deps.Orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	id := identity(c)
	if !id.IsAdmin() && order.UserID != id.UserID {
		h.respondError(c, models.ErrOrderNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	change, err := h.deps.Orders.SetStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":         change.Order,
		"stock_debited": change.StockDebited,
	})
}

func (h *Handler) createDiscount(c *gin.Context) {
	var req service.CreateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	discount, err := h.deps.Discounts.Create(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, discount)
}

func orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return 0, false
	}
	return orderID, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// respondError maps domain errors onto status codes. Internal failures
// are logged and reported without detail.
func (h *Handler) respondError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrProductInactive),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrDiscountInvalid),
		errors.Is(err, models.ErrDiscountExhausted),
		errors.Is(err, models.ErrEmptyCart),
		errors.Is(err, models.ErrCheckoutInProgress):
		status = http.StatusConflict
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
