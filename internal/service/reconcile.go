package service

import (
	"context"
	"errors"
	"log/slog"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/model"
	"trapkitchen/internal/processor"
	"trapkitchen/internal/store"
)

// ReconcileService applies asynchronous processor notifications to the
// payment and order records. Delivery is at-least-once and unordered, so
// every application is idempotent: an event whose id is already recorded as
// a transaction is acknowledged without side effects, and a payment that
// cannot be found yet (the webhook raced the synchronous write) is
// acknowledged so the processor stops retrying a hopeless delivery.
//
// Each event is applied in one atomic scope serialized per order: the
// payment update, order update and transaction insert commit or fail
// together.
type ReconcileService struct {
	store store.Store
}

func NewReconcileService(st store.Store) *ReconcileService {
	return &ReconcileService{store: st}
}

// Apply processes one webhook event. A nil return means the event is
// acknowledged (applied, duplicate, or unmatchable); any error means the
// processor should redeliver.
func (s *ReconcileService) Apply(ctx context.Context, ev processor.Event) error {
	if ev.ID == "" {
		return apperr.Validationf("event id is required")
	}
	if ev.Data.ChargeReference == "" {
		return apperr.Validationf("charge reference is required")
	}

	if dup, err := s.isDuplicate(ctx, s.store, ev.ID); err != nil {
		return err
	} else if dup {
		slog.Info("duplicate event acknowledged", "event", ev.ID, "type", ev.Type)
		return nil
	}

	payment, err := s.store.GetPaymentByReference(ctx, ev.Data.ChargeReference)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			slog.Warn("no payment for event, acknowledging",
				"event", ev.ID, "type", ev.Type, "charge", ev.Data.ChargeReference)
			return nil
		}
		return err
	}

	return s.store.WithinOrder(ctx, payment.OrderID, func(ctx context.Context, tx store.Store) error {
		// re-check under the order lock: a concurrent delivery of the
		// same event may have won the race
		if dup, err := s.isDuplicate(ctx, tx, ev.ID); err != nil {
			return err
		} else if dup {
			slog.Info("duplicate event acknowledged", "event", ev.ID, "type", ev.Type)
			return nil
		}

		payment, err := tx.GetPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		order, err := tx.GetOrder(ctx, payment.OrderID)
		if err != nil {
			return err
		}

		switch ev.Type {
		case processor.EventChargeSucceeded:
			return s.applySucceeded(ctx, tx, ev, payment, order)
		case processor.EventChargeFailed:
			return s.applyFailed(ctx, tx, ev, payment, order)
		case processor.EventChargeRefunded:
			return s.applyRefunded(ctx, tx, ev, payment, order)
		case processor.EventChargeCanceled:
			return s.applyCanceled(ctx, tx, ev, payment)
		default:
			slog.Info("unhandled event type", "event", ev.ID, "type", ev.Type)
			return nil
		}
	})
}

func (s *ReconcileService) isDuplicate(ctx context.Context, st store.Store, eventID string) (bool, error) {
	_, err := st.GetTransactionByEventID(ctx, eventID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *ReconcileService) applySucceeded(ctx context.Context, tx store.Store, ev processor.Event, payment *model.Payment, order *model.Order) error {
	if payment.Status == model.PaymentSucceeded {
		slog.Warn("charge-succeeded for already succeeded payment, acknowledging",
			"event", ev.ID, "payment", payment.ID)
		return nil
	}

	payment.Status = model.PaymentSucceeded
	payment.ReceiptURL = ev.Data.ReceiptURL
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return err
	}

	amount := payment.Total
	if ev.Data.Amount > 0 {
		amount = processor.FromMinorUnits(ev.Data.Amount)
	}
	if err := tx.CreateTransaction(ctx, &model.Transaction{
		PaymentID: payment.ID,
		Type:      model.TxCharge,
		Amount:    amount,
		EventID:   ev.ID,
		Status:    string(model.PaymentSucceeded),
	}); err != nil {
		return err
	}

	// preparation stays a manual staff action: fulfillment is untouched
	order.PaymentStatus = model.PayPaid
	return tx.UpdateOrder(ctx, order)
}

func (s *ReconcileService) applyFailed(ctx context.Context, tx store.Store, ev processor.Event, payment *model.Payment, order *model.Order) error {
	reason := ev.Data.FailureReason
	if reason == "" {
		reason = "payment failed"
	}
	payment.Status = model.PaymentFailed
	payment.FailureReason = reason
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return err
	}

	if err := tx.CreateTransaction(ctx, &model.Transaction{
		PaymentID: payment.ID,
		Type:      model.TxCharge,
		Amount:    payment.Total,
		EventID:   ev.ID,
		Status:    string(model.PaymentFailed),
		Reason:    reason,
	}); err != nil {
		return err
	}

	// a failed charge does not cancel the order; the customer may retry
	order.PaymentStatus = model.PayFailed
	return tx.UpdateOrder(ctx, order)
}

func (s *ReconcileService) applyRefunded(ctx context.Context, tx store.Store, ev processor.Event, payment *model.Payment, order *model.Order) error {
	refunded, err := tx.SumRefunds(ctx, payment.ID)
	if err != nil {
		return err
	}

	totalRefundedCents := ev.Data.AmountRefunded
	recordedCents := processor.ToMinorUnits(refunded)
	deltaCents := totalRefundedCents - recordedCents
	if deltaCents <= 0 {
		// the staff refund path already recorded this refund
		slog.Info("refund already recorded, acknowledging", "event", ev.ID, "payment", payment.ID)
		return nil
	}

	totalCents := processor.ToMinorUnits(payment.Total)
	full := totalRefundedCents >= totalCents
	txnType := model.TxPartialRefund
	if full {
		txnType = model.TxRefund
	}
	if err := tx.CreateTransaction(ctx, &model.Transaction{
		PaymentID: payment.ID,
		Type:      txnType,
		Amount:    processor.FromMinorUnits(deltaCents),
		EventID:   ev.ID,
		Status:    string(model.PaymentSucceeded),
	}); err != nil {
		return err
	}

	if full {
		payment.Status = model.PaymentRefunded
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		order.PaymentStatus = model.PayRefunded
		order.Status = model.OrderCancelled
	} else {
		order.PaymentStatus = model.PayPartiallyRefunded
	}
	return tx.UpdateOrder(ctx, order)
}

func (s *ReconcileService) applyCanceled(ctx context.Context, tx store.Store, ev processor.Event, payment *model.Payment) error {
	payment.Status = model.PaymentCanceled
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return err
	}
	// a canceled intent with no prior success has no effect on the order
	return tx.CreateTransaction(ctx, &model.Transaction{
		PaymentID: payment.ID,
		Type:      model.TxCharge,
		Amount:    payment.Total,
		EventID:   ev.ID,
		Status:    string(model.PaymentCanceled),
	})
}
