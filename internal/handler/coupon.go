package handler

import (
	"encoding/json"
	"net/http"

	"trapkitchen/internal/mw"
	"trapkitchen/internal/service"
)

func ListCouponsHandler(couponSvc *service.CouponService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coupons, err := couponSvc.ListMine(r.Context(), mw.UserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		if len(coupons) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, coupons)
	}
}

type validateCouponRequest struct {
	Code string `json:"code"`
}

func ValidateCouponHandler(couponSvc *service.CouponService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateCouponRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		coupon, err := couponSvc.Validate(r.Context(), mw.UserID(r.Context()), req.Code)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"coupon": coupon,
			"valid":  true,
		})
	}
}

type applyCouponRequest struct {
	Code    string `json:"code"`
	OrderID string `json:"order_id"`
}

func ApplyCouponHandler(couponSvc *service.CouponService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applyCouponRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		order, err := couponSvc.Apply(r.Context(), mw.UserID(r.Context()), req.Code, req.OrderID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}
