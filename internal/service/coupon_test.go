package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/model"
)

func TestGenerateCouponCode(t *testing.T) {
	pattern := regexp.MustCompile(`^TRAP-[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}$`)
	for i := 0; i < 50; i++ {
		code, err := GenerateCouponCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("code %q does not match the expected format", code)
		}
	}
}

func (e *env) seedCoupon(t *testing.T, userID string, expiresAt *time.Time) *model.Coupon {
	t.Helper()
	code, err := GenerateCouponCode()
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	coupon := &model.Coupon{
		Code:           code,
		UserID:         userID,
		DiscountAmount: 4.00,
		ExpiresAt:      expiresAt,
	}
	if err := e.store.CreateCoupon(context.Background(), coupon); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
	return coupon
}

func TestCouponValidate(t *testing.T) {
	e := newEnv(t)
	coupon := e.seedCoupon(t, "user-1", nil)
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		got, err := e.coupons.Validate(ctx, "user-1", coupon.Code)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if got.ID != coupon.ID {
			t.Errorf("got coupon %s, want %s", got.ID, coupon.ID)
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		if _, err := e.coupons.Validate(ctx, "user-1", "trap-"+coupon.Code[5:]); err != nil {
			t.Errorf("lowercase prefix should validate: %v", err)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		if _, err := e.coupons.Validate(ctx, "user-1", "TRAP-ZZZZ-ZZZZ"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("got %v, want not found", err)
		}
	})

	t.Run("foreign coupon", func(t *testing.T) {
		if _, err := e.coupons.Validate(ctx, "user-2", coupon.Code); !errors.Is(err, apperr.ErrAuthorization) {
			t.Errorf("got %v, want authorization error", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		expired := e.seedCoupon(t, "user-1", &past)
		if _, err := e.coupons.Validate(ctx, "user-1", expired.Code); !errors.Is(err, ErrCouponExpired) {
			t.Errorf("got %v, want ErrCouponExpired", err)
		}
	})
}

func TestCouponApply(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Oxtail Plate", 12.99)
	order := e.newOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	coupon := e.seedCoupon(t, "user-1", nil)
	ctx := context.Background()

	updated, err := e.coupons.Apply(ctx, "user-1", coupon.Code, order.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if updated.Discount != 4.00 {
		t.Errorf("discount = %v, want 4.00", updated.Discount)
	}
	if updated.FinalAmount != 8.99 {
		t.Errorf("final amount = %v, want 8.99", updated.FinalAmount)
	}
	if updated.AppliedCouponID != coupon.ID {
		t.Errorf("applied coupon id = %q, want %q", updated.AppliedCouponID, coupon.ID)
	}

	got, err := e.store.GetCouponByCode(ctx, coupon.Code)
	if err != nil {
		t.Fatalf("get coupon: %v", err)
	}
	if !got.Used {
		t.Error("applied coupon must be marked used")
	}
}

func TestCouponApply_SingleUse(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Jerk Wings", 9.50)
	first := e.newOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	second := e.newOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	coupon := e.seedCoupon(t, "user-1", nil)
	ctx := context.Background()

	if _, err := e.coupons.Apply(ctx, "user-1", coupon.Code, first.ID); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := e.coupons.Apply(ctx, "user-1", coupon.Code, second.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second apply: got %v, want conflict", err)
	}
}

func TestCouponApply_OnePerOrder(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Curry Goat", 14.00)
	order := e.newOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	first := e.seedCoupon(t, "user-1", nil)
	second := e.seedCoupon(t, "user-1", nil)
	ctx := context.Background()

	if _, err := e.coupons.Apply(ctx, "user-1", first.Code, order.ID); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := e.coupons.Apply(ctx, "user-1", second.Code, order.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second coupon on same order: got %v, want conflict", err)
	}
}

func TestCouponApply_FloorsAtZero(t *testing.T) {
	e := newEnv(t)
	dish := e.seedDish(t, "Sweet Tea", 2.00)
	order := e.newOrder(t, "user-1", OrderItemRequest{DishID: dish.ID, Quantity: 1})
	coupon := e.seedCoupon(t, "user-1", nil)

	updated, err := e.coupons.Apply(context.Background(), "user-1", coupon.Code, order.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if updated.FinalAmount != 0 {
		t.Errorf("final amount = %v, want 0 (discount exceeds subtotal)", updated.FinalAmount)
	}
}

func TestCouponListMine_SkipsUsedAndExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	active := e.seedCoupon(t, "user-1", nil)
	past := time.Now().Add(-time.Hour)
	e.seedCoupon(t, "user-1", &past)
	used := e.seedCoupon(t, "user-1", nil)
	used.Used = true
	if err := e.store.UpdateCoupon(ctx, used); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	e.seedCoupon(t, "user-2", nil)

	coupons, err := e.coupons.ListMine(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(coupons) != 1 || coupons[0].ID != active.ID {
		t.Errorf("want only the active coupon, got %d", len(coupons))
	}
}
