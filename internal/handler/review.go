package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trapkitchen/internal/mw"
	"trapkitchen/internal/service"
)

func EligibleOrdersHandler(reviewSvc *service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eligible, err := reviewSvc.EligibleOrders(r.Context(), mw.UserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		if len(eligible) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, eligible)
	}
}

type createReviewRequest struct {
	OrderID string `json:"order_id"`
	DishID  string `json:"dish_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func CreateReviewHandler(reviewSvc *service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		review, err := reviewSvc.Create(r.Context(), mw.UserID(r.Context()),
			req.OrderID, req.DishID, req.Rating, req.Comment)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, review)
	}
}

func ListApprovedReviewsHandler(reviewSvc *service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviews, err := reviewSvc.ListApproved(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reviews)
	}
}

func ListMyReviewsHandler(reviewSvc *service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviews, err := reviewSvc.ListMine(r.Context(), mw.UserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reviews)
	}
}

func ListPendingReviewsHandler(reviewSvc *service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviews, err := reviewSvc.ListPending(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reviews)
	}
}

func ApproveReviewHandler(reviewSvc *service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		review, coupon, err := reviewSvc.Approve(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"review": review,
			"coupon": coupon,
		})
	}
}

func RejectReviewHandler(reviewSvc *service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reviewSvc.Reject(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
