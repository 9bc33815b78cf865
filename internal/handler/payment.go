package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trapkitchen/internal/model"
	"trapkitchen/internal/mw"
	"trapkitchen/internal/service"
)

type createIntentRequest struct {
	OrderID string              `json:"order_id"`
	Method  model.PaymentMethod `json:"method"`
	Tip     float64             `json:"tip"`
}

func CreateIntentHandler(paymentSvc *service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createIntentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		intent, err := paymentSvc.CreateIntent(r.Context(), mw.UserID(r.Context()), req.OrderID, req.Method, req.Tip)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, intent)
	}
}

type cashPaymentRequest struct {
	OrderID string  `json:"order_id"`
	Tip     float64 `json:"tip"`
}

func CreateCashPaymentHandler(paymentSvc *service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cashPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		payment, err := paymentSvc.CreateCash(r.Context(), mw.UserID(r.Context()), req.OrderID, req.Tip)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payment)
	}
}

func ConfirmCashHandler(paymentSvc *service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payment, err := paymentSvc.ConfirmCash(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payment)
	}
}

func PaymentStatusHandler(paymentSvc *service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payment, processorStatus, err := paymentSvc.Status(
			r.Context(), mw.UserID(r.Context()), mw.Role(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"payment":          payment,
			"processor_status": processorStatus,
		})
	}
}

type refundRequest struct {
	Amount float64 `json:"amount"` // 0 means full remaining amount
	Reason string  `json:"reason"`
}

func RefundHandler(paymentSvc *service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refundRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		result, err := paymentSvc.Refund(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
