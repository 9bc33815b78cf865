package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/model"
	"trapkitchen/internal/processor"
	"trapkitchen/internal/store"
)

// PaymentService creates payment records, confirms cash collection and
// performs staff refunds. The processor is always called before anything is
// persisted, so a failed processor call leaves no payment record behind.
type PaymentService struct {
	store     store.Store
	processor processor.Client
	currency  string
}

func NewPaymentService(st store.Store, pc processor.Client) *PaymentService {
	return &PaymentService{store: st, processor: pc, currency: "usd"}
}

// Intent is the customer-facing result of requesting a card charge.
type Intent struct {
	Payment      model.Payment `json:"payment"`
	ClientSecret string        `json:"client_secret"`
}

// RefundResult describes a completed staff refund.
type RefundResult struct {
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
	Full      bool    `json:"full"`
}

// CreateIntent requests a charge from the processor and records the payment
// attempt in pending. The amount is subtotal + tip - applied coupon
// discount, floored at zero, and must be positive for a card charge.
func (s *PaymentService) CreateIntent(ctx context.Context, userID, orderID string, method model.PaymentMethod, tip float64) (*Intent, error) {
	switch method {
	case model.MethodCard, model.MethodApplePay, model.MethodCashAppPay:
	case model.MethodCash:
		return nil, apperr.Validationf("use the cash payment flow for cash orders")
	default:
		return nil, apperr.Validationf("unknown payment method: %s", method)
	}
	if tip < 0 {
		return nil, apperr.Validationf("tip must not be negative")
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperr.Authorizationf("not authorized to pay for this order")
	}
	if err := s.ensureUnpaid(ctx, s.store, orderID); err != nil {
		return nil, err
	}

	total := model.FinalAmount(order.Subtotal, tip, order.Discount)
	if total <= 0 {
		return nil, apperr.Validationf("order total must be positive; use cash on pickup")
	}

	charge, err := s.processor.CreateCharge(ctx, processor.ToMinorUnits(total), s.currency, map[string]string{
		"order_id":     order.ID,
		"order_number": fmt.Sprintf("%d", order.Number),
		"user_id":      order.UserID,
	})
	if err != nil {
		return nil, err
	}

	payment := &model.Payment{
		OrderID:      order.ID,
		ProcessorRef: charge.Reference,
		Amount:       total - tip,
		Tip:          tip,
		Total:        total,
		Currency:     s.currency,
		Status:       model.PaymentPending,
		Method:       method,
	}
	err = s.store.WithinOrder(ctx, orderID, func(ctx context.Context, tx store.Store) error {
		if err := s.ensureUnpaid(ctx, tx, orderID); err != nil {
			return err
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		current, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		current.Tip = tip
		current.FinalAmount = total
		current.PaymentStatus = model.PayPending
		return tx.UpdateOrder(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	return &Intent{Payment: *payment, ClientSecret: charge.ClientSecret}, nil
}

// CreateCash records a cash-on-pickup payment attempt. No processor is
// involved; the record sits in pending until staff confirm collection.
func (s *PaymentService) CreateCash(ctx context.Context, userID, orderID string, tip float64) (*model.Payment, error) {
	if tip < 0 {
		return nil, apperr.Validationf("tip must not be negative")
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperr.Authorizationf("not authorized to pay for this order")
	}
	if err := s.ensureUnpaid(ctx, s.store, orderID); err != nil {
		return nil, err
	}

	total := model.FinalAmount(order.Subtotal, tip, order.Discount)
	payment := &model.Payment{
		OrderID:  order.ID,
		Amount:   total - tip,
		Tip:      tip,
		Total:    total,
		Currency: s.currency,
		Status:   model.PaymentPending,
		Method:   model.MethodCash,
	}
	err = s.store.WithinOrder(ctx, orderID, func(ctx context.Context, tx store.Store) error {
		if err := s.ensureUnpaid(ctx, tx, orderID); err != nil {
			return err
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		current, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		current.Tip = tip
		current.FinalAmount = total
		return tx.UpdateOrder(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ConfirmCash is the staff action that marks a cash payment collected.
func (s *PaymentService) ConfirmCash(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Method != model.MethodCash {
		return nil, apperr.Validationf("payment is not a cash payment")
	}

	err = s.store.WithinOrder(ctx, payment.OrderID, func(ctx context.Context, tx store.Store) error {
		payment, err = tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != model.PaymentPending {
			return apperr.Conflictf("cash payment is not pending")
		}

		payment.Status = model.PaymentSucceeded
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, &model.Transaction{
			PaymentID: payment.ID,
			Type:      model.TxCharge,
			Amount:    payment.Total,
			Status:    string(model.PaymentSucceeded),
		}); err != nil {
			return err
		}

		order, err := tx.GetOrder(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		order.PaymentStatus = model.PayPaid
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Status returns the payment with the processor's latest view of the charge.
// Pending records are synced to failed or canceled; success is only ever
// applied by the reconciliation path so the charge transaction is never
// skipped.
func (s *PaymentService) Status(ctx context.Context, userID string, role model.Role, paymentID string) (*model.Payment, string, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, "", err
	}
	order, err := s.store.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, "", err
	}
	if order.UserID != userID && !role.Staff() {
		return nil, "", apperr.Authorizationf("not authorized to view this payment")
	}

	if payment.ProcessorRef == "" {
		return payment, string(payment.Status), nil
	}

	charge, err := s.processor.RetrieveCharge(ctx, payment.ProcessorRef)
	if err != nil {
		slog.Warn("processor status lookup failed", "payment", paymentID, "error", err)
		return payment, string(payment.Status), nil
	}

	if payment.Status == model.PaymentPending &&
		(charge.Status == processor.StatusFailed || charge.Status == processor.StatusCanceled) {
		syncErr := s.store.WithinOrder(ctx, payment.OrderID, func(ctx context.Context, tx store.Store) error {
			current, err := tx.GetPayment(ctx, paymentID)
			if err != nil {
				return err
			}
			if current.Status != model.PaymentPending {
				return nil
			}
			current.Status = model.PaymentState(charge.Status)
			return tx.UpdatePayment(ctx, current)
		})
		if syncErr != nil {
			slog.Error("payment status sync failed", "payment", paymentID, "error", syncErr)
		} else {
			payment.Status = model.PaymentState(charge.Status)
		}
	}
	return payment, charge.Status, nil
}

// Refund issues a staff refund through the processor and records it. A zero
// amount means the full unrefunded balance. The matching charge-refunded
// webhook that arrives later is discarded as a duplicate by the
// reconciliation handler.
func (s *PaymentService) Refund(ctx context.Context, paymentID string, amount float64, reason string) (*RefundResult, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentSucceeded {
		return nil, apperr.Conflictf("can only refund successful payments")
	}
	if payment.ProcessorRef == "" {
		return nil, apperr.Validationf("cannot refund cash payments through this operation")
	}
	if amount < 0 {
		return nil, apperr.Validationf("refund amount must not be negative")
	}

	var result *RefundResult
	err = s.store.WithinOrder(ctx, payment.OrderID, func(ctx context.Context, tx store.Store) error {
		payment, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != model.PaymentSucceeded {
			return apperr.Conflictf("can only refund successful payments")
		}

		refunded, err := tx.SumRefunds(ctx, payment.ID)
		if err != nil {
			return err
		}
		totalCents := processor.ToMinorUnits(payment.Total)
		refundedCents := processor.ToMinorUnits(refunded)
		balanceCents := totalCents - refundedCents
		if balanceCents <= 0 {
			return apperr.Conflictf("payment has already been fully refunded")
		}

		requestCents := processor.ToMinorUnits(amount)
		if requestCents == 0 {
			requestCents = balanceCents
		}
		if requestCents > balanceCents {
			slog.Error("refund request exceeds unrefunded balance",
				"payment", payment.ID, "requested", requestCents, "balance", balanceCents)
			return apperr.Invariantf("refund amount exceeds unrefunded balance")
		}

		refund, err := s.processor.CreateRefund(ctx, payment.ProcessorRef, requestCents)
		if err != nil {
			return err
		}

		full := refundedCents+requestCents >= totalCents
		txnType := model.TxPartialRefund
		if full {
			txnType = model.TxRefund
		}
		if err := tx.CreateTransaction(ctx, &model.Transaction{
			PaymentID: payment.ID,
			Type:      txnType,
			Amount:    processor.FromMinorUnits(requestCents),
			EventID:   refund.Reference,
			Status:    refund.Status,
			Reason:    reason,
		}); err != nil {
			return err
		}

		if full {
			payment.Status = model.PaymentRefunded
			if err := tx.UpdatePayment(ctx, payment); err != nil {
				return err
			}
		}

		order, err := tx.GetOrder(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		if full {
			order.PaymentStatus = model.PayRefunded
			order.Status = model.OrderCancelled
		} else {
			order.PaymentStatus = model.PayPartiallyRefunded
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		result = &RefundResult{
			Reference: refund.Reference,
			Amount:    processor.FromMinorUnits(requestCents),
			Full:      full,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PaymentService) ensureUnpaid(ctx context.Context, st store.Store, orderID string) error {
	_, err := st.SucceededPayment(ctx, orderID)
	if err == nil {
		return apperr.Conflictf("order has already been paid")
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}
