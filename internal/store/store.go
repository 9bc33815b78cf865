// Package store persists orders, payments, transactions, coupons and
// reviews. The invariants that matter for money (one succeeded payment per
// order, unique processor event ids, unique order+dish reviews) are enforced
// by the Postgres schema, not only here.
package store

import (
	"context"
	"time"

	"trapkitchen/internal/model"
)

type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)

	CreateDish(ctx context.Context, d *model.Dish) error
	GetDish(ctx context.Context, id string) (*model.Dish, error)
	ListDishes(ctx context.Context) ([]model.Dish, error)

	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	// ListReviewableOrders returns the user's completed, paid, unarchived
	// orders completed at or after the cutoff, newest first.
	ListReviewableOrders(ctx context.Context, userID string, cutoff time.Time) ([]model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order) error
	ArchiveOrders(ctx context.Context) (int64, error)
	ResetOrderNumbers(ctx context.Context) error

	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	GetPaymentByReference(ctx context.Context, ref string) (*model.Payment, error)
	// SucceededPayment returns the order's succeeded payment, or NotFound.
	SucceededPayment(ctx context.Context, orderID string) (*model.Payment, error)
	UpdatePayment(ctx context.Context, p *model.Payment) error

	CreateTransaction(ctx context.Context, t *model.Transaction) error
	GetTransactionByEventID(ctx context.Context, eventID string) (*model.Transaction, error)
	// SumRefunds totals the refund transactions recorded for a payment.
	SumRefunds(ctx context.Context, paymentID string) (float64, error)

	CreateCoupon(ctx context.Context, c *model.Coupon) error
	GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
	ListActiveCoupons(ctx context.Context, userID string) ([]model.Coupon, error)
	UpdateCoupon(ctx context.Context, c *model.Coupon) error

	CreateReview(ctx context.Context, r *model.Review) error
	GetReview(ctx context.Context, id string) (*model.Review, error)
	ListReviewsByOrder(ctx context.Context, orderID string) ([]model.Review, error)
	ListReviewsByUser(ctx context.Context, userID string) ([]model.Review, error)
	ListReviewsByApproval(ctx context.Context, approved bool) ([]model.Review, error)
	UpdateReview(ctx context.Context, r *model.Review) error
	DeleteReview(ctx context.Context, id string) error

	// WithinOrder runs fn in an atomic scope serialized per order: two
	// callers mutating the same order never interleave their
	// read-check-write, while different orders proceed concurrently.
	WithinOrder(ctx context.Context, orderID string, fn func(ctx context.Context, tx Store) error) error
}
