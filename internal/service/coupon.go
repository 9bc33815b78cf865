package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/model"
	"trapkitchen/internal/store"
)

// ErrCouponExpired is distinct from the other validation failures so
// callers can show a specific message.
var ErrCouponExpired = apperr.Validationf("coupon has expired")

// codeAlphabet excludes visually ambiguous characters (0, O, 1, I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCouponCode produces a code of the form TRAP-XXXX-XXXX.
func GenerateCouponCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	chars := make([]byte, 8)
	for i, b := range buf {
		chars[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return fmt.Sprintf("TRAP-%s-%s", chars[:4], chars[4:]), nil
}

type CouponService struct {
	store          store.Store
	discountAmount float64
}

func NewCouponService(st store.Store, discountAmount float64) *CouponService {
	return &CouponService{store: st, discountAmount: discountAmount}
}

// CreateForReview mints the coupon awarded for an approved review. It runs
// against the same transactional store as the approval itself.
func (s *CouponService) CreateForReview(ctx context.Context, tx store.Store, review *model.Review) (*model.Coupon, error) {
	code, err := GenerateCouponCode()
	if err != nil {
		return nil, err
	}
	coupon := &model.Coupon{
		Code:           code,
		UserID:         review.UserID,
		DiscountAmount: s.discountAmount,
	}
	if err := tx.CreateCoupon(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (s *CouponService) ListMine(ctx context.Context, userID string) ([]model.Coupon, error) {
	return s.store.ListActiveCoupons(ctx, userID)
}

// Validate checks a code for the given customer, failing with distinct
// errors for unknown, foreign, used and expired coupons.
func (s *CouponService) Validate(ctx context.Context, userID, code string) (*model.Coupon, error) {
	return s.validate(ctx, s.store, userID, code)
}

func (s *CouponService) validate(ctx context.Context, st store.Store, userID, code string) (*model.Coupon, error) {
	if code == "" {
		return nil, apperr.Validationf("coupon code is required")
	}
	coupon, err := st.GetCouponByCode(ctx, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	if coupon.UserID != userID {
		return nil, apperr.Authorizationf("coupon does not belong to you")
	}
	if coupon.Used {
		return nil, apperr.Conflictf("coupon has already been used")
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(nowFunc()) {
		return nil, ErrCouponExpired
	}
	return coupon, nil
}

// Apply consumes a coupon against an order. One coupon per order; the
// order's final amount is reduced, floored at zero.
func (s *CouponService) Apply(ctx context.Context, userID, code, orderID string) (*model.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperr.Authorizationf("not authorized to modify this order")
	}

	var updated *model.Order
	err = s.store.WithinOrder(ctx, orderID, func(ctx context.Context, tx store.Store) error {
		coupon, err := s.validate(ctx, tx, userID, code)
		if err != nil {
			return err
		}
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.AppliedCouponID != "" {
			return apperr.Conflictf("a coupon has already been applied to this order")
		}

		coupon.Used = true
		if err := tx.UpdateCoupon(ctx, coupon); err != nil {
			return err
		}

		order.AppliedCouponID = coupon.ID
		order.Discount = coupon.DiscountAmount
		order.FinalAmount = model.FinalAmount(order.Subtotal, order.Tip, order.Discount)
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
