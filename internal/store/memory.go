package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/model"
)

// Memory is an in-memory Store used by tests and local development. It
// emulates the schema's uniqueness constraints and serializes WithinOrder
// with a keyed mutex instead of a row lock.
type Memory struct {
	mu          sync.Mutex
	users       map[string]model.User
	dishes      map[string]model.Dish
	orders      map[string]model.Order
	payments    map[string]model.Payment
	txns        map[string]model.Transaction
	coupons     map[string]model.Coupon
	reviews     map[string]model.Review
	orderLocks  map[string]*sync.Mutex
	nextOrderNo int64
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]model.User),
		dishes:      make(map[string]model.Dish),
		orders:      make(map[string]model.Order),
		payments:    make(map[string]model.Payment),
		txns:        make(map[string]model.Transaction),
		coupons:     make(map[string]model.Coupon),
		reviews:     make(map[string]model.Review),
		orderLocks:  make(map[string]*sync.Mutex),
		nextOrderNo: 1,
	}
}

func copyOrder(o model.Order) model.Order {
	items := make([]model.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		o.CompletedAt = &t
	}
	return o
}

// --- users ---

func (m *Memory) CreateUser(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Login == u.Login {
			return apperr.Conflictf("login already exists")
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Login == login {
			out := u
			return &out, nil
		}
	}
	return nil, apperr.NotFoundf("user not found")
}

// --- dishes ---

func (m *Memory) CreateDish(ctx context.Context, d *model.Dish) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	m.dishes[d.ID] = *d
	return nil
}

func (m *Memory) GetDish(ctx context.Context, id string) (*model.Dish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dishes[id]
	if !ok {
		return nil, apperr.NotFoundf("dish not found")
	}
	out := d
	return &out, nil
}

func (m *Memory) ListDishes(ctx context.Context) ([]model.Dish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dishes := make([]model.Dish, 0, len(m.dishes))
	for _, d := range m.dishes {
		dishes = append(dishes, d)
	}
	sort.Slice(dishes, func(i, j int) bool { return dishes[i].Name < dishes[j].Name })
	return dishes, nil
}

// --- orders ---

func (m *Memory) CreateOrder(ctx context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = uuid.NewString()
	o.Number = m.nextOrderNo
	m.nextOrderNo++
	o.CreatedAt = time.Now()
	for i := range o.Items {
		o.Items[i].ID = uuid.NewString()
		o.Items[i].OrderID = o.ID
	}
	m.orders[o.ID] = copyOrder(*o)
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFoundf("order not found")
	}
	out := copyOrder(o)
	return &out, nil
}

func (m *Memory) listOrders(match func(model.Order) bool) []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []model.Order
	for _, o := range m.orders {
		if match(o) {
			orders = append(orders, copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

func (m *Memory) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return m.listOrders(func(o model.Order) bool {
		return o.UserID == userID && !o.Archived
	}), nil
}

func (m *Memory) ListOrders(ctx context.Context) ([]model.Order, error) {
	return m.listOrders(func(o model.Order) bool { return !o.Archived }), nil
}

func (m *Memory) ListReviewableOrders(ctx context.Context, userID string, cutoff time.Time) ([]model.Order, error) {
	return m.listOrders(func(o model.Order) bool {
		return o.UserID == userID && !o.Archived &&
			o.Status == model.OrderCompleted && o.PaymentStatus == model.PayPaid &&
			o.CompletedAt != nil && !o.CompletedAt.Before(cutoff)
	}), nil
}

func (m *Memory) UpdateOrder(ctx context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return apperr.NotFoundf("order not found")
	}
	m.orders[o.ID] = copyOrder(*o)
	return nil
}

func (m *Memory) ArchiveOrders(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, o := range m.orders {
		if !o.Archived {
			o.Archived = true
			m.orders[id] = o
			n++
		}
	}
	return n, nil
}

func (m *Memory) ResetOrderNumbers(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOrderNo = 1
	return nil
}

// --- payments ---

func (m *Memory) CreatePayment(ctx context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Status == model.PaymentSucceeded && m.hasSucceededLocked(p.OrderID) {
		return apperr.Conflictf("order has already been paid")
	}
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()
	m.payments[p.ID] = *p
	return nil
}

func (m *Memory) hasSucceededLocked(orderID string) bool {
	for _, pm := range m.payments {
		if pm.OrderID == orderID && pm.Status == model.PaymentSucceeded {
			return true
		}
	}
	return false
}

func (m *Memory) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, apperr.NotFoundf("payment not found")
	}
	out := p
	return &out, nil
}

func (m *Memory) GetPaymentByReference(ctx context.Context, ref string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ProcessorRef != "" && p.ProcessorRef == ref {
			out := p
			return &out, nil
		}
	}
	return nil, apperr.NotFoundf("payment not found")
}

func (m *Memory) SucceededPayment(ctx context.Context, orderID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID && p.Status == model.PaymentSucceeded {
			out := p
			return &out, nil
		}
	}
	return nil, apperr.NotFoundf("no succeeded payment for order")
}

func (m *Memory) UpdatePayment(ctx context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.payments[p.ID]
	if !ok {
		return apperr.NotFoundf("payment not found")
	}
	if p.Status == model.PaymentSucceeded && existing.Status != model.PaymentSucceeded &&
		m.hasSucceededLocked(p.OrderID) {
		return apperr.Conflictf("order has already been paid")
	}
	m.payments[p.ID] = *p
	return nil
}

// --- transactions ---

func (m *Memory) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.EventID != "" {
		for _, existing := range m.txns {
			if existing.EventID == t.EventID {
				return apperr.Conflictf("duplicate processor event")
			}
		}
	}
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now()
	m.txns[t.ID] = *t
	return nil
}

func (m *Memory) GetTransactionByEventID(ctx context.Context, eventID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txns {
		if t.EventID != "" && t.EventID == eventID {
			out := t
			return &out, nil
		}
	}
	return nil, apperr.NotFoundf("transaction not found")
}

func (m *Memory) SumRefunds(ctx context.Context, paymentID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, t := range m.txns {
		if t.PaymentID == paymentID && t.Type.Refund() {
			sum += t.Amount
		}
	}
	return sum, nil
}

// CountTransactions reports how many transactions exist for a payment. Test
// helper for idempotency assertions.
func (m *Memory) CountTransactions(paymentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, t := range m.txns {
		if t.PaymentID == paymentID {
			n++
		}
	}
	return n
}

// --- coupons ---

func (m *Memory) CreateCoupon(ctx context.Context, c *model.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.coupons {
		if existing.Code == c.Code {
			return apperr.Conflictf("coupon code collision")
		}
	}
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()
	m.coupons[c.ID] = *c
	return nil
}

func (m *Memory) GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.coupons {
		if c.Code == code {
			out := c
			return &out, nil
		}
	}
	return nil, apperr.NotFoundf("coupon not found")
}

func (m *Memory) ListActiveCoupons(ctx context.Context, userID string) ([]model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var coupons []model.Coupon
	for _, c := range m.coupons {
		if c.UserID == userID && !c.Used && (c.ExpiresAt == nil || !c.ExpiresAt.Before(now)) {
			coupons = append(coupons, c)
		}
	}
	sort.Slice(coupons, func(i, j int) bool { return coupons[i].CreatedAt.After(coupons[j].CreatedAt) })
	return coupons, nil
}

func (m *Memory) UpdateCoupon(ctx context.Context, c *model.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[c.ID]; !ok {
		return apperr.NotFoundf("coupon not found")
	}
	m.coupons[c.ID] = *c
	return nil
}

// --- reviews ---

func (m *Memory) CreateReview(ctx context.Context, r *model.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reviews {
		if existing.OrderID == r.OrderID && existing.DishID == r.DishID {
			return apperr.Conflictf("dish already reviewed for this order")
		}
	}
	r.ID = uuid.NewString()
	r.CreatedAt = time.Now()
	m.reviews[r.ID] = *r
	return nil
}

func (m *Memory) GetReview(ctx context.Context, id string) (*model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, apperr.NotFoundf("review not found")
	}
	out := r
	return &out, nil
}

func (m *Memory) listReviews(match func(model.Review) bool) []model.Review {
	m.mu.Lock()
	defer m.mu.Unlock()
	var reviews []model.Review
	for _, r := range m.reviews {
		if match(r) {
			reviews = append(reviews, r)
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.After(reviews[j].CreatedAt) })
	return reviews
}

func (m *Memory) ListReviewsByOrder(ctx context.Context, orderID string) ([]model.Review, error) {
	return m.listReviews(func(r model.Review) bool { return r.OrderID == orderID }), nil
}

func (m *Memory) ListReviewsByUser(ctx context.Context, userID string) ([]model.Review, error) {
	return m.listReviews(func(r model.Review) bool { return r.UserID == userID }), nil
}

func (m *Memory) ListReviewsByApproval(ctx context.Context, approved bool) ([]model.Review, error) {
	return m.listReviews(func(r model.Review) bool { return r.Approved == approved }), nil
}

func (m *Memory) UpdateReview(ctx context.Context, r *model.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[r.ID]; !ok {
		return apperr.NotFoundf("review not found")
	}
	m.reviews[r.ID] = *r
	return nil
}

func (m *Memory) DeleteReview(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[id]; !ok {
		return apperr.NotFoundf("review not found")
	}
	delete(m.reviews, id)
	return nil
}

// --- per-order serialization ---

func (m *Memory) orderLock(orderID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.orderLocks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		m.orderLocks[orderID] = lock
	}
	return lock
}

func (m *Memory) WithinOrder(ctx context.Context, orderID string, fn func(ctx context.Context, tx Store) error) error {
	if _, err := m.GetOrder(ctx, orderID); err != nil {
		return err
	}
	lock := m.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx, m)
}
