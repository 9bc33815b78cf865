package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/model"
)

// paidCompletedOrder sets up the state a review needs: paid and completed.
func (e *env) paidCompletedOrder(t *testing.T, userID string, items ...OrderItemRequest) *model.Order {
	t.Helper()
	order := e.newOrder(t, userID, items...)
	e.payOrder(t, userID, order, 0)
	return e.completeOrder(t, order)
}

func TestReviewCreate(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Oxtail Plate", 12.99)
	order := e.paidCompletedOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})

	review, err := e.reviews.Create(context.Background(), "user-1", order.ID, dish.ID, 5, "best in the city")
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if review.Approved {
		t.Error("new review must start unapproved")
	}
	if review.DishName != "Oxtail Plate" {
		t.Errorf("review should capture the dish name, got %q", review.DishName)
	}
	if review.OrderItemID != order.Items[0].ID {
		t.Errorf("review should reference the order item, got %q", review.OrderItemID)
	}
}

func TestReviewCreate_Validation(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Jerk Wings", 9.50)
	other := e.seedDish(t, "Sweet Tea", 2.00)
	order := e.paidCompletedOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	ctx := context.Background()

	if _, err := e.reviews.Create(ctx, "user-1", order.ID, dish.ID, 0, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("rating 0: got %v, want validation error", err)
	}
	if _, err := e.reviews.Create(ctx, "user-1", order.ID, dish.ID, 6, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("rating 6: got %v, want validation error", err)
	}
	if _, err := e.reviews.Create(ctx, "user-2", order.ID, dish.ID, 4, ""); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("foreign order: got %v, want authorization error", err)
	}
	if _, err := e.reviews.Create(ctx, "user-1", order.ID, other.ID, 4, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("dish not in order: got %v, want validation error", err)
	}
}

func TestReviewCreate_RequiresCompletedAndPaid(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Curry Goat", 14.00)
	ctx := context.Background()

	unpaid := e.newOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	e.completeOrder(t, unpaid)
	if _, err := e.reviews.Create(ctx, "user-1", unpaid.ID, dish.ID, 4, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unpaid order: got %v, want validation error", err)
	}

	paid := e.newOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	e.payOrder(t, "user-1", paid, 0)
	if _, err := e.reviews.Create(ctx, "user-1", paid.ID, dish.ID, 4, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("incomplete order: got %v, want validation error", err)
	}
}

func TestReviewCreate_OncePerDishPerOrder(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Rasta Pasta", 13.50)
	order := e.paidCompletedOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 2})
	ctx := context.Background()

	if _, err := e.reviews.Create(ctx, "user-1", order.ID, dish.ID, 5, ""); err != nil {
		t.Fatalf("first review: %v", err)
	}
	if _, err := e.reviews.Create(ctx, "user-1", order.ID, dish.ID, 3, ""); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second review of same dish: got %v, want conflict", err)
	}
}

func TestReviewCreate_WindowExpired(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Mac & Cheese", 6.00)
	order := e.paidCompletedOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})

	withNow(t, time.Now().AddDate(0, 0, 31))
	if _, err := e.reviews.Create(context.Background(), "user-1", order.ID, dish.ID, 4, ""); !errors.Is(err, ErrReviewWindowExpired) {
		t.Errorf("31 days later: got %v, want ErrReviewWindowExpired", err)
	}
}

func TestReviewCreate_InsideWindow(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Cornbread", 3.00)
	order := e.paidCompletedOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})

	withNow(t, time.Now().AddDate(0, 0, 29))
	if _, err := e.reviews.Create(context.Background(), "user-1", order.ID, dish.ID, 4, ""); err != nil {
		t.Errorf("29 days later: %v", err)
	}
}

func TestEligibleOrders(t *testing.T) {
	e := newEnv(t)
	wings := e.seedDish(t, "Jerk Wings", 9.50)
	tea := e.seedDish(t, "Sweet Tea", 2.00)
	ctx := context.Background()

	order := e.paidCompletedOrder(t, "user-1",
		OrderItemRequest{DishID: wings.ID, Quantity: 1},
		OrderItemRequest{DishID: tea.ID, Quantity: 1})

	// an order still in progress never shows up
	e.newOrder(t, "user-1", OrderItemRequest{DishID: wings.ID, Quantity: 1})

	eligible, err := e.reviews.EligibleOrders(ctx, "user-1")
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 1 || len(eligible[0].Items) != 2 {
		t.Fatalf("want 1 order with 2 reviewable items, got %+v", eligible)
	}

	// reviewing one dish removes only that dish
	if _, err := e.reviews.Create(ctx, "user-1", order.ID, wings.ID, 5, ""); err != nil {
		t.Fatalf("review: %v", err)
	}
	eligible, err = e.reviews.EligibleOrders(ctx, "user-1")
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 1 || len(eligible[0].Items) != 1 || eligible[0].Items[0].DishID != tea.ID {
		t.Fatalf("want only the unreviewed dish left, got %+v", eligible)
	}

	// reviewing the last dish removes the order entirely
	if _, err := e.reviews.Create(ctx, "user-1", order.ID, tea.ID, 4, ""); err != nil {
		t.Fatalf("review: %v", err)
	}
	eligible, err = e.reviews.EligibleOrders(ctx, "user-1")
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("fully reviewed order still listed: %+v", eligible)
	}
}

func TestEligibleOrders_WindowCutoff(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Catfish Basket", 11.00)
	e.paidCompletedOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})

	withNow(t, time.Now().AddDate(0, 0, 29))
	eligible, err := e.reviews.EligibleOrders(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 1 {
		t.Errorf("29-day-old order should be eligible, got %d", len(eligible))
	}

	withNow(t, time.Now().AddDate(0, 0, 31))
	eligible, err = e.reviews.EligibleOrders(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 0 {
		t.Errorf("31-day-old order must not be eligible, got %d", len(eligible))
	}
}

func TestReviewApprove_MintsCoupon(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Shrimp & Grits", 16.00)
	order := e.paidCompletedOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	ctx := context.Background()

	review, err := e.reviews.Create(ctx, "user-1", order.ID, dish.ID, 5, "elite")
	if err != nil {
		t.Fatalf("create review: %v", err)
	}

	approved, coupon, err := e.reviews.Approve(ctx, review.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.Approved {
		t.Error("review not marked approved")
	}
	if coupon == nil || coupon.UserID != "user-1" || coupon.DiscountAmount != 4.00 {
		t.Fatalf("coupon = %+v, want 4.00 for user-1", coupon)
	}

	// the minted coupon is immediately usable by its owner
	if _, err := e.coupons.Validate(ctx, "user-1", coupon.Code); err != nil {
		t.Errorf("minted coupon failed validation: %v", err)
	}
}

func TestReviewApprove_OnlyOnce(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Peach Cobbler", 5.00)
	order := e.paidCompletedOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	ctx := context.Background()

	review, err := e.reviews.Create(ctx, "user-1", order.ID, dish.ID, 5, "")
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if _, _, err := e.reviews.Approve(ctx, review.ID); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if _, _, err := e.reviews.Approve(ctx, review.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second approve: got %v, want conflict", err)
	}

	coupons, err := e.coupons.ListMine(ctx, "user-1")
	if err != nil {
		t.Fatalf("list coupons: %v", err)
	}
	if len(coupons) != 1 {
		t.Errorf("one approval must mint exactly one coupon, got %d", len(coupons))
	}
}

func TestReviewReject(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Collard Greens", 5.00)
	order := e.paidCompletedOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	ctx := context.Background()

	review, err := e.reviews.Create(ctx, "user-1", order.ID, dish.ID, 1, "never again")
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if err := e.reviews.Reject(ctx, review.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := e.store.GetReview(ctx, review.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("rejected review still exists: %v", err)
	}

	coupons, err := e.coupons.ListMine(ctx, "user-1")
	if err != nil {
		t.Fatalf("list coupons: %v", err)
	}
	if len(coupons) != 0 {
		t.Errorf("rejection must not mint a coupon, got %d", len(coupons))
	}

	// the slot reopens: the dish may be reviewed again
	if _, err := e.reviews.Create(ctx, "user-1", order.ID, dish.ID, 4, "second chance"); err != nil {
		t.Errorf("re-review after rejection: %v", err)
	}
}

func TestReviewLists(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Fried Plantains", 4.50)
	order := e.paidCompletedOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	other := e.paidCompletedOrder(t, "user-2", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	ctx := context.Background()

	mine, err := e.reviews.Create(ctx, "user-1", order.ID, dish.ID, 5, "")
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	theirs, err := e.reviews.Create(ctx, "user-2", other.ID, dish.ID, 3, "")
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if _, _, err := e.reviews.Approve(ctx, mine.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	approved, _ := e.reviews.ListApproved(ctx)
	if len(approved) != 1 || approved[0].ID != mine.ID {
		t.Errorf("approved list wrong: %+v", approved)
	}
	pending, _ := e.reviews.ListPending(ctx)
	if len(pending) != 1 || pending[0].ID != theirs.ID {
		t.Errorf("pending list wrong: %+v", pending)
	}
	own, _ := e.reviews.ListMine(ctx, "user-1")
	if len(own) != 1 || own[0].ID != mine.ID {
		t.Errorf("mine list wrong: %+v", own)
	}
}
