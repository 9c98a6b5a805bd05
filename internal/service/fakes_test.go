package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for store.Store with the same
// all-or-nothing semantics for CreateOrder and UpdateOrderStatus
type memStore struct {
	mu sync.Mutex

	products  map[int64]*models.Product
	discounts map[int64]*models.Discount
	carts     map[int64]*memCart
	items     map[int64][]models.CartItem
	orders    map[int64]*models.Order
	lines     map[int64][]models.OrderItem
	nextID    int64

	failCreateOrder error
	failClearCart   error
}

type memCart struct {
	id     int64
	userID int64
	status string
}

func newMemStore() *memStore {
	return &memStore{
		products:  map[int64]*models.Product{},
		discounts: map[int64]*models.Discount{},
		carts:     map[int64]*memCart{},
		items:     map[int64][]models.CartItem{},
		orders:    map[int64]*models.Order{},
		lines:     map[int64][]models.OrderItem{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addProduct(name, price string, stock int) *models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &models.Product{ID: m.id(), Name: name, Price: decimal.RequireFromString(price), Stock: stock, Active: true}
	m.products[p.ID] = p
	return p
}

func (m *memStore) addDiscount(productID int64, code, percent string, remaining int, starts, ends time.Time) *models.Discount {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &models.Discount{
		ID: m.id(), ProductID: productID, Code: code, Percent: decimal.RequireFromString(percent),
		Remaining: remaining, Total: remaining, StartsAt: starts, EndsAt: ends,
	}
	m.discounts[d.ID] = d
	return d
}

func (m *memStore) stock(productID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].Stock
}

func (m *memStore) remaining(discountID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discounts[discountID].Remaining
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) pendingCarts(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.carts {
		if c.userID == userID && c.status == models.CartStatusPending {
			n++
		}
	}
	return n
}

func (m *memStore) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) pendingCartLocked(userID int64) (int64, bool) {
	for _, c := range m.carts {
		if c.userID == userID && c.status == models.CartStatusPending {
			return c.id, true
		}
	}
	return 0, false
}

func (m *memStore) GetOrCreatePendingCart(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.pendingCartLocked(userID); ok {
		return id, nil
	}
	c := &memCart{id: m.id(), userID: userID, status: models.CartStatusPending}
	m.carts[c.id] = c
	return c.id, nil
}

func (m *memStore) FindPendingCart(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.pendingCartLocked(userID); ok {
		return id, nil
	}
	return 0, models.ErrNotFound
}

func (m *memStore) UpsertCartItem(_ context.Context, cartID, productID int64, quantity int, price decimal.Decimal, discountID *int64) (*models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items[cartID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += quantity
			items[i].Price = price
			items[i].DiscountID = discountID
			cp := items[i]
			return &cp, nil
		}
	}
	item := models.CartItem{ID: m.id(), CartID: cartID, ProductID: productID, Quantity: quantity, Price: price, DiscountID: discountID}
	m.items[cartID] = append(items, item)
	return &item, nil
}

func (m *memStore) CartItemQuantity(_ context.Context, cartID, productID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items[cartID] {
		if item.ProductID == productID {
			return item.Quantity, nil
		}
	}
	return 0, nil
}

func (m *memStore) ListCartItems(_ context.Context, cartID int64) ([]models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := []models.CartLine{}
	for _, item := range m.items[cartID] {
		p := m.products[item.ProductID]
		lines = append(lines, models.CartLine{CartItem: item, ProductName: p.Name, Stock: p.Stock})
	}
	return lines, nil
}

func (m *memStore) ClearCart(_ context.Context, cartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClearCart != nil {
		return m.failClearCart
	}
	delete(m.items, cartID)
	return nil
}

func (m *memStore) FindDiscount(_ context.Context, productID int64, code string) (*models.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.discounts {
		if d.ProductID == productID && d.Code == code {
			cp := *d
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) CreateDiscount(_ context.Context, discount *models.Discount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[discount.ProductID]; !ok {
		return models.ErrProductNotFound
	}
	for _, d := range m.discounts {
		if d.Code == discount.Code {
			return fmt.Errorf("%w: code exists", models.ErrInvalidInput)
		}
	}
	discount.ID = m.id()
	cp := *discount
	m.discounts[cp.ID] = &cp
	return nil
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateOrder != nil {
		return m.failCreateOrder
	}

	requested := map[int64]int{}
	for _, item := range items {
		requested[item.ProductID] += item.Quantity
	}
	for productID, quantity := range requested {
		p, ok := m.products[productID]
		if !ok {
			return models.ErrProductNotFound
		}
		if quantity > p.Stock {
			return models.ErrInsufficientStock
		}
	}

	spend := map[int64]int{}
	for _, item := range items {
		if item.DiscountID != nil {
			spend[*item.DiscountID]++
		}
	}
	for id, n := range spend {
		if m.discounts[id].Remaining < n {
			return models.ErrDiscountExhausted
		}
	}
	for id, n := range spend {
		m.discounts[id].Remaining -= n
	}

	order.ID = m.id()
	cp := *order
	m.orders[order.ID] = &cp
	for i := range items {
		items[i].ID = m.id()
		items[i].OrderID = order.ID
		items[i].ProductName = m.products[items[i].ProductID].Name
	}
	m.lines[order.ID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (m *memStore) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetOrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]models.OrderItem{}, m.lines[orderID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, orderID int64, status string) (*models.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, models.ErrOrderNotFound
	}

	change := &models.StatusChange{}
	terminal := models.IsFulfillmentTerminal(status)
	if terminal && o.StockDebitedAt == nil {
		for _, item := range m.lines[orderID] {
			m.products[item.ProductID].Stock -= item.Quantity
		}
		now := time.Now()
		o.StockDebitedAt = &now
		change.StockDebited = true
	}
	o.Status = status

	if terminal {
		for id, c := range m.carts {
			if c.userID == o.UserID && c.status == models.CartStatusPending {
				delete(m.carts, id)
				delete(m.items, id)
				change.CartsPurged++
			}
		}
	}

	cp := *o
	change.Order = &cp
	return change, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	created []*models.OrderCreatedEvent
	changed []*models.OrderStatusChangedEvent
	err     error
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, event *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, event)
	return p.err
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, event *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, event)
	return p.err
}

// memIdempotency mirrors the Redis claim protocol
type memIdempotency struct {
	mu     sync.Mutex
	claims map[string]string
	done   map[string]int64
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{claims: map[string]string{}, done: map[string]int64{}}
}

func (m *memIdempotency) Claim(_ context.Context, key, token string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.done[key]; ok {
		return id, false, nil
	}
	if _, ok := m.claims[key]; ok {
		return 0, false, nil
	}
	m.claims[key] = token
	return 0, true, nil
}

func (m *memIdempotency) Complete(_ context.Context, key, token string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[key] == token {
		delete(m.claims, key)
		m.done[key] = orderID
	}
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[key] == token {
		delete(m.claims, key)
	}
	return nil
}
