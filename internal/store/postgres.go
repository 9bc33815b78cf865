package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/model"
)

// Postgres implements Store over database/sql. A zero tx means every call
// runs standalone; WithinOrder hands out a tx-bound copy whose calls share
// one transaction holding a row lock on the order.
type Postgres struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) q() queryer {
	if p.tx != nil {
		return p.tx
	}
	return p.db
}

func isDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}

// --- users ---

func (p *Postgres) CreateUser(ctx context.Context, u *model.User) error {
	row := p.q().QueryRowContext(ctx,
		`INSERT INTO users (login, password_hash, role) VALUES ($1, $2, $3) RETURNING id, created_at`,
		u.Login, u.PasswordHash, u.Role,
	)
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		if isDuplicate(err) {
			return apperr.Conflictf("login already exists")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *Postgres) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	var u model.User
	err := p.q().QueryRowContext(ctx,
		`SELECT id, login, password_hash, role, created_at FROM users WHERE login = $1`, login,
	).Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// --- dishes ---

func (p *Postgres) CreateDish(ctx context.Context, d *model.Dish) error {
	row := p.q().QueryRowContext(ctx,
		`INSERT INTO dishes (name, price, available) VALUES ($1, $2, $3) RETURNING id`,
		d.Name, d.Price, d.Available,
	)
	if err := row.Scan(&d.ID); err != nil {
		return fmt.Errorf("insert dish: %w", err)
	}
	return nil
}

func (p *Postgres) GetDish(ctx context.Context, id string) (*model.Dish, error) {
	var d model.Dish
	err := p.q().QueryRowContext(ctx,
		`SELECT id, name, price, available FROM dishes WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.Price, &d.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("dish not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get dish: %w", err)
	}
	return &d, nil
}

func (p *Postgres) ListDishes(ctx context.Context) ([]model.Dish, error) {
	rows, err := p.q().QueryContext(ctx, `SELECT id, name, price, available FROM dishes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query dishes: %w", err)
	}
	defer rows.Close()

	var dishes []model.Dish
	for rows.Next() {
		var d model.Dish
		if err := rows.Scan(&d.ID, &d.Name, &d.Price, &d.Available); err != nil {
			return nil, fmt.Errorf("scan dish: %w", err)
		}
		dishes = append(dishes, d)
	}
	return dishes, rows.Err()
}

// --- orders ---

const orderColumns = `id, number, user_id, subtotal, tip, discount, final_amount,
	status, payment_status, applied_coupon_id, archived, created_at, completed_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var o model.Order
	var couponID sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.Subtotal, &o.Tip, &o.Discount,
		&o.FinalAmount, &o.Status, &o.PaymentStatus, &couponID, &o.Archived,
		&o.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if couponID.Valid {
		o.AppliedCouponID = couponID.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		o.CompletedAt = &t
	}
	return &o, nil
}

func (p *Postgres) CreateOrder(ctx context.Context, o *model.Order) error {
	if p.tx != nil {
		return p.insertOrder(ctx, p.tx, o)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := p.insertOrder(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) insertOrder(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, subtotal, tip, discount, final_amount, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, number, created_at`,
		o.UserID, o.Subtotal, o.Tip, o.Discount, o.FinalAmount, o.Status, o.PaymentStatus,
	)
	if err := row.Scan(&o.ID, &o.Number, &o.CreatedAt); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		row := tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, dish_id, dish_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			item.OrderID, item.DishID, item.DishName, item.Quantity, item.UnitPrice,
		)
		if err := row.Scan(&item.ID); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := p.q().QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := p.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (p *Postgres) loadItems(ctx context.Context, o *model.Order) error {
	rows, err := p.q().QueryContext(ctx, `
		SELECT id, order_id, dish_id, dish_name, quantity, unit_price
		FROM order_items WHERE order_id = $1`, o.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.DishID, &item.DishName,
			&item.Quantity, &item.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	return rows.Err()
}

func (p *Postgres) listOrders(ctx context.Context, where string, args ...any) ([]model.Order, error) {
	rows, err := p.q().QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	for i := range orders {
		if err := p.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (p *Postgres) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return p.listOrders(ctx, `WHERE user_id = $1 AND NOT archived ORDER BY created_at DESC`, userID)
}

func (p *Postgres) ListOrders(ctx context.Context) ([]model.Order, error) {
	return p.listOrders(ctx, `WHERE NOT archived ORDER BY created_at DESC`)
}

func (p *Postgres) ListReviewableOrders(ctx context.Context, userID string, cutoff time.Time) ([]model.Order, error) {
	return p.listOrders(ctx, `
		WHERE user_id = $1 AND status = $2 AND payment_status = $3
		  AND completed_at >= $4 AND NOT archived
		ORDER BY completed_at DESC`,
		userID, model.OrderCompleted, model.PayPaid, cutoff)
}

func (p *Postgres) UpdateOrder(ctx context.Context, o *model.Order) error {
	var couponID sql.NullString
	if o.AppliedCouponID != "" {
		couponID = sql.NullString{String: o.AppliedCouponID, Valid: true}
	}
	var completedAt sql.NullTime
	if o.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *o.CompletedAt, Valid: true}
	}
	res, err := p.q().ExecContext(ctx, `
		UPDATE orders
		SET tip = $1, discount = $2, final_amount = $3, status = $4,
		    payment_status = $5, applied_coupon_id = $6, archived = $7, completed_at = $8
		WHERE id = $9`,
		o.Tip, o.Discount, o.FinalAmount, o.Status, o.PaymentStatus,
		couponID, o.Archived, completedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("order not found")
	}
	return nil
}

func (p *Postgres) ArchiveOrders(ctx context.Context) (int64, error) {
	res, err := p.q().ExecContext(ctx, `UPDATE orders SET archived = TRUE WHERE NOT archived`)
	if err != nil {
		return 0, fmt.Errorf("archive orders: %w", err)
	}
	return res.RowsAffected()
}

func (p *Postgres) ResetOrderNumbers(ctx context.Context) error {
	if _, err := p.q().ExecContext(ctx, `ALTER SEQUENCE order_numbers RESTART WITH 1`); err != nil {
		return fmt.Errorf("reset order numbers: %w", err)
	}
	return nil
}

// --- payments ---

const paymentColumns = `id, order_id, processor_ref, amount, tip, total, currency,
	status, method, failure_reason, receipt_url, created_at`

func scanPayment(row interface{ Scan(...any) error }) (*model.Payment, error) {
	var pm model.Payment
	var ref, reason, receipt sql.NullString
	err := row.Scan(&pm.ID, &pm.OrderID, &ref, &pm.Amount, &pm.Tip, &pm.Total,
		&pm.Currency, &pm.Status, &pm.Method, &reason, &receipt, &pm.CreatedAt)
	if err != nil {
		return nil, err
	}
	pm.ProcessorRef = ref.String
	pm.FailureReason = reason.String
	pm.ReceiptURL = receipt.String
	return &pm, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func (p *Postgres) CreatePayment(ctx context.Context, pm *model.Payment) error {
	row := p.q().QueryRowContext(ctx, `
		INSERT INTO payments (order_id, processor_ref, amount, tip, total, currency, status, method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		pm.OrderID, nullable(pm.ProcessorRef), pm.Amount, pm.Tip, pm.Total,
		pm.Currency, pm.Status, pm.Method,
	)
	if err := row.Scan(&pm.ID, &pm.CreatedAt); err != nil {
		if isDuplicate(err) {
			return apperr.Conflictf("order has already been paid")
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (p *Postgres) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	row := p.q().QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	pm, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("payment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return pm, nil
}

func (p *Postgres) GetPaymentByReference(ctx context.Context, ref string) (*model.Payment, error) {
	row := p.q().QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE processor_ref = $1`, ref)
	pm, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("payment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get payment by reference: %w", err)
	}
	return pm, nil
}

func (p *Postgres) SucceededPayment(ctx context.Context, orderID string) (*model.Payment, error) {
	row := p.q().QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 AND status = $2`,
		orderID, model.PaymentSucceeded)
	pm, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("no succeeded payment for order")
	}
	if err != nil {
		return nil, fmt.Errorf("get succeeded payment: %w", err)
	}
	return pm, nil
}

func (p *Postgres) UpdatePayment(ctx context.Context, pm *model.Payment) error {
	res, err := p.q().ExecContext(ctx, `
		UPDATE payments
		SET status = $1, failure_reason = $2, receipt_url = $3
		WHERE id = $4`,
		pm.Status, nullable(pm.FailureReason), nullable(pm.ReceiptURL), pm.ID,
	)
	if err != nil {
		// the partial unique index fires on a second succeeded payment
		if isDuplicate(err) {
			return apperr.Conflictf("order has already been paid")
		}
		return fmt.Errorf("update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("payment not found")
	}
	return nil
}

// --- transactions ---

func (p *Postgres) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	row := p.q().QueryRowContext(ctx, `
		INSERT INTO transactions (payment_id, type, amount, event_id, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		t.PaymentID, t.Type, t.Amount, nullable(t.EventID), t.Status, nullable(t.Reason),
	)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		if isDuplicate(err) {
			return apperr.Conflictf("duplicate processor event")
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (p *Postgres) GetTransactionByEventID(ctx context.Context, eventID string) (*model.Transaction, error) {
	var t model.Transaction
	var evID, reason sql.NullString
	err := p.q().QueryRowContext(ctx, `
		SELECT id, payment_id, type, amount, event_id, status, reason, created_at
		FROM transactions WHERE event_id = $1`, eventID,
	).Scan(&t.ID, &t.PaymentID, &t.Type, &t.Amount, &evID, &t.Status, &reason, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("transaction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	t.EventID = evID.String
	t.Reason = reason.String
	return &t, nil
}

func (p *Postgres) SumRefunds(ctx context.Context, paymentID string) (float64, error) {
	var sum float64
	err := p.q().QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE payment_id = $1 AND type IN ($2, $3)`,
		paymentID, model.TxRefund, model.TxPartialRefund,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum refunds: %w", err)
	}
	return sum, nil
}

// --- coupons ---

func (p *Postgres) CreateCoupon(ctx context.Context, c *model.Coupon) error {
	var expiresAt sql.NullTime
	if c.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *c.ExpiresAt, Valid: true}
	}
	row := p.q().QueryRowContext(ctx, `
		INSERT INTO coupons (code, user_id, discount_amount, used, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		c.Code, c.UserID, c.DiscountAmount, c.Used, expiresAt,
	)
	if err := row.Scan(&c.ID, &c.CreatedAt); err != nil {
		if isDuplicate(err) {
			return apperr.Conflictf("coupon code collision")
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

func scanCoupon(row interface{ Scan(...any) error }) (*model.Coupon, error) {
	var c model.Coupon
	var expiresAt sql.NullTime
	err := row.Scan(&c.ID, &c.Code, &c.UserID, &c.DiscountAmount, &c.Used, &expiresAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

func (p *Postgres) GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	row := p.q().QueryRowContext(ctx, `
		SELECT id, code, user_id, discount_amount, used, expires_at, created_at
		FROM coupons WHERE code = $1`, code)
	c, err := scanCoupon(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("coupon not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

func (p *Postgres) ListActiveCoupons(ctx context.Context, userID string) ([]model.Coupon, error) {
	rows, err := p.q().QueryContext(ctx, `
		SELECT id, code, user_id, discount_amount, used, expires_at, created_at
		FROM coupons
		WHERE user_id = $1 AND NOT used AND (expires_at IS NULL OR expires_at >= NOW())
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	var coupons []model.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

func (p *Postgres) UpdateCoupon(ctx context.Context, c *model.Coupon) error {
	res, err := p.q().ExecContext(ctx,
		`UPDATE coupons SET used = $1 WHERE id = $2`, c.Used, c.ID)
	if err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("coupon not found")
	}
	return nil
}

// --- reviews ---

const reviewColumns = `id, order_id, dish_id, order_item_id, user_id, rating,
	comment, dish_name, approved, created_at`

func scanReview(row interface{ Scan(...any) error }) (*model.Review, error) {
	var r model.Review
	var comment sql.NullString
	err := row.Scan(&r.ID, &r.OrderID, &r.DishID, &r.OrderItemID, &r.UserID,
		&r.Rating, &comment, &r.DishName, &r.Approved, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Comment = comment.String
	return &r, nil
}

func (p *Postgres) CreateReview(ctx context.Context, r *model.Review) error {
	row := p.q().QueryRowContext(ctx, `
		INSERT INTO reviews (order_id, dish_id, order_item_id, user_id, rating, comment, dish_name, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		r.OrderID, r.DishID, r.OrderItemID, r.UserID, r.Rating,
		nullable(r.Comment), r.DishName, r.Approved,
	)
	if err := row.Scan(&r.ID, &r.CreatedAt); err != nil {
		if isDuplicate(err) {
			return apperr.Conflictf("dish already reviewed for this order")
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (p *Postgres) GetReview(ctx context.Context, id string) (*model.Review, error) {
	row := p.q().QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("review not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

func (p *Postgres) listReviews(ctx context.Context, where string, args ...any) ([]model.Review, error) {
	rows, err := p.q().QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

func (p *Postgres) ListReviewsByOrder(ctx context.Context, orderID string) ([]model.Review, error) {
	return p.listReviews(ctx, `WHERE order_id = $1`, orderID)
}

func (p *Postgres) ListReviewsByUser(ctx context.Context, userID string) ([]model.Review, error) {
	return p.listReviews(ctx, `WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (p *Postgres) ListReviewsByApproval(ctx context.Context, approved bool) ([]model.Review, error) {
	return p.listReviews(ctx, `WHERE approved = $1 ORDER BY created_at DESC`, approved)
}

func (p *Postgres) UpdateReview(ctx context.Context, r *model.Review) error {
	res, err := p.q().ExecContext(ctx, `
		UPDATE reviews SET rating = $1, comment = $2, approved = $3 WHERE id = $4`,
		r.Rating, nullable(r.Comment), r.Approved, r.ID)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("review not found")
	}
	return nil
}

func (p *Postgres) DeleteReview(ctx context.Context, id string) error {
	res, err := p.q().ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("review not found")
	}
	return nil
}

// --- per-order serialization ---

func (p *Postgres) WithinOrder(ctx context.Context, orderID string, fn func(ctx context.Context, tx Store) error) error {
	if p.tx != nil {
		// already inside a serialized scope
		return fn(ctx, p)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFoundf("order not found")
	}
	if err != nil {
		return fmt.Errorf("lock order: %w", err)
	}

	if err := fn(ctx, &Postgres{db: p.db, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
