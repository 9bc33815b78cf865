package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"trapkitchen/internal/model"
	"trapkitchen/internal/processor"
	"trapkitchen/internal/store"
)

// fakeProcessor is an in-memory processor.Client that records every call.
type fakeProcessor struct {
	charges    map[string]*processor.Charge
	nextCharge int
	nextRefund int

	chargeErr error
	refundErr error

	refundCalls int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{charges: make(map[string]*processor.Charge)}
}

func (f *fakeProcessor) CreateCharge(ctx context.Context, amount int64, currency string, metadata map[string]string) (*processor.Charge, error) {
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	f.nextCharge++
	ch := &processor.Charge{
		Reference:    fmt.Sprintf("ch_%d", f.nextCharge),
		ClientSecret: fmt.Sprintf("secret_%d", f.nextCharge),
		Status:       processor.StatusPending,
		Amount:       amount,
	}
	f.charges[ch.Reference] = ch
	return ch, nil
}

func (f *fakeProcessor) RetrieveCharge(ctx context.Context, reference string) (*processor.Charge, error) {
	ch, ok := f.charges[reference]
	if !ok {
		return nil, fmt.Errorf("unknown charge %s", reference)
	}
	out := *ch
	return &out, nil
}

func (f *fakeProcessor) CreateRefund(ctx context.Context, reference string, amount int64) (*processor.Refund, error) {
	f.refundCalls++
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	ch, ok := f.charges[reference]
	if !ok {
		return nil, fmt.Errorf("unknown charge %s", reference)
	}
	ch.AmountRefunded += amount
	f.nextRefund++
	return &processor.Refund{
		Reference: fmt.Sprintf("re_%d", f.nextRefund),
		Status:    processor.StatusSucceeded,
	}, nil
}

type noopNotifier struct{}

func (noopNotifier) OrderConfirmed(model.Order)     {}
func (noopNotifier) OrderStatusChanged(model.Order) {}

// env bundles the memory store and the services under test.
type env struct {
	store     *store.Memory
	proc      *fakeProcessor
	orders    *OrderService
	payments  *PaymentService
	reconcile *ReconcileService
	coupons   *CouponService
	reviews   *ReviewService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := store.NewMemory()
	proc := newFakeProcessor()
	coupons := NewCouponService(mem, 4.00)
	return &env{
		store:     mem,
		proc:      proc,
		orders:    NewOrderService(mem, noopNotifier{}),
		payments:  NewPaymentService(mem, proc),
		reconcile: NewReconcileService(mem),
		coupons:   coupons,
		reviews:   NewReviewService(mem, coupons, 30),
	}
}

func (e *env) seedDish(t *testing.T, name string, price float64) *model.Dish {
	t.Helper()
	dish := &model.Dish{Name: name, Price: price, Available: true}
	if err := e.store.CreateDish(context.Background(), dish); err != nil {
		t.Fatalf("seed dish: %v", err)
	}
	return dish
}

func (e *env) newOrder(t *testing.T, userID string, items ...OrderItemRequest) *model.Order {
	t.Helper()
	order, err := e.orders.Create(context.Background(), userID, items)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

// payOrder runs the full card flow: intent, then a charge-succeeded event.
func (e *env) payOrder(t *testing.T, userID string, order *model.Order, tip float64) *model.Payment {
	t.Helper()
	ctx := context.Background()
	intent, err := e.payments.CreateIntent(ctx, userID, order.ID, model.MethodCard, tip)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	ev := processor.Event{
		ID:   "evt_paid_" + order.ID,
		Type: processor.EventChargeSucceeded,
		Data: processor.EventData{
			ChargeReference: intent.Payment.ProcessorRef,
			Amount:          processor.ToMinorUnits(intent.Payment.Total),
		},
	}
	if err := e.reconcile.Apply(ctx, ev); err != nil {
		t.Fatalf("apply charge-succeeded: %v", err)
	}
	payment, err := e.store.GetPayment(ctx, intent.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	return payment
}

// completeOrder walks the order through the fulfillment states to Completed.
func (e *env) completeOrder(t *testing.T, order *model.Order) *model.Order {
	t.Helper()
	ctx := context.Background()
	var updated *model.Order
	var err error
	for _, s := range []model.FulfillmentStatus{model.OrderPreparing, model.OrderReady, model.OrderCompleted} {
		updated, err = e.orders.SetStatus(ctx, order.ID, s)
		if err != nil {
			t.Fatalf("set status %s: %v", s, err)
		}
	}
	return updated
}

// withNow overrides the package clock for the duration of the test.
func withNow(t *testing.T, now time.Time) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = prev })
}
