package service

import (
	"context"
	"time"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/model"
	"trapkitchen/internal/store"
)

// ErrReviewWindowExpired is returned when the order's completion fell
// outside the rolling review window. Distinct from generic validation so
// the customer sees a specific message.
var ErrReviewWindowExpired = apperr.Validationf("review window has expired")

// ReviewService decides which (order, dish) pairs may be reviewed and
// manages the review approval flow that mints coupons.
type ReviewService struct {
	store      store.Store
	coupons    *CouponService
	windowDays int
}

func NewReviewService(st store.Store, coupons *CouponService, windowDays int) *ReviewService {
	return &ReviewService{store: st, coupons: coupons, windowDays: windowDays}
}

func (s *ReviewService) cutoff() time.Time {
	return nowFunc().AddDate(0, 0, -s.windowDays)
}

// EligibleOrder is an order with the line items that may still be reviewed.
type EligibleOrder struct {
	Order model.Order       `json:"order"`
	Items []model.OrderItem `json:"items"`
}

// EligibleOrders returns every order of the customer that is completed,
// paid, inside the review window, and has at least one unreviewed dish.
func (s *ReviewService) EligibleOrders(ctx context.Context, userID string) ([]EligibleOrder, error) {
	orders, err := s.store.ListReviewableOrders(ctx, userID, s.cutoff())
	if err != nil {
		return nil, err
	}

	var eligible []EligibleOrder
	for _, order := range orders {
		reviews, err := s.store.ListReviewsByOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		reviewed := make(map[string]bool, len(reviews))
		for _, r := range reviews {
			reviewed[r.DishID] = true
		}

		var items []model.OrderItem
		for _, item := range order.Items {
			if !reviewed[item.DishID] {
				items = append(items, item)
			}
		}
		if len(items) > 0 {
			eligible = append(eligible, EligibleOrder{Order: order, Items: items})
		}
	}
	return eligible, nil
}

// Create validates at write time exactly what EligibleOrders filters at
// read time, so the two can never disagree.
func (s *ReviewService) Create(ctx context.Context, userID, orderID, dishID string, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, apperr.Validationf("rating must be between 1 and 5")
	}
	if dishID == "" {
		return nil, apperr.Validationf("dish id is required")
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperr.Authorizationf("not authorized to review this order")
	}
	if order.Status != model.OrderCompleted || order.PaymentStatus != model.PayPaid {
		return nil, apperr.Validationf("can only review completed and paid orders")
	}
	if order.CompletedAt == nil || order.CompletedAt.Before(s.cutoff()) {
		return nil, ErrReviewWindowExpired
	}

	var item *model.OrderItem
	for i := range order.Items {
		if order.Items[i].DishID == dishID {
			item = &order.Items[i]
			break
		}
	}
	if item == nil {
		return nil, apperr.Validationf("dish not found in this order")
	}

	review := &model.Review{
		OrderID:     orderID,
		DishID:      dishID,
		OrderItemID: item.ID,
		UserID:      userID,
		Rating:      rating,
		Comment:     comment,
		DishName:    item.DishName,
	}
	if err := s.store.CreateReview(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// Approve marks a review approved and mints its coupon in one atomic scope.
// Approving twice fails, so a review earns exactly one coupon.
func (s *ReviewService) Approve(ctx context.Context, reviewID string) (*model.Review, *model.Coupon, error) {
	review, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, nil, err
	}

	var coupon *model.Coupon
	err = s.store.WithinOrder(ctx, review.OrderID, func(ctx context.Context, tx store.Store) error {
		review, err = tx.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if review.Approved {
			return apperr.Conflictf("review is already approved")
		}

		review.Approved = true
		if err := tx.UpdateReview(ctx, review); err != nil {
			return err
		}

		coupon, err = s.coupons.CreateForReview(ctx, tx, review)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return review, coupon, nil
}

// Reject deletes an unwanted review. No coupon is ever minted for it.
func (s *ReviewService) Reject(ctx context.Context, reviewID string) error {
	return s.store.DeleteReview(ctx, reviewID)
}

func (s *ReviewService) ListApproved(ctx context.Context) ([]model.Review, error) {
	return s.store.ListReviewsByApproval(ctx, true)
}

func (s *ReviewService) ListPending(ctx context.Context) ([]model.Review, error) {
	return s.store.ListReviewsByApproval(ctx, false)
}

func (s *ReviewService) ListMine(ctx context.Context, userID string) ([]model.Review, error) {
	return s.store.ListReviewsByUser(ctx, userID)
}
