package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trapkitchen/internal/model"
	"trapkitchen/internal/service"
	"trapkitchen/internal/store"
)

func webhookSetup(t *testing.T) (http.HandlerFunc, *store.Memory, *model.Payment) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	order := &model.Order{
		UserID:        "user-1",
		Subtotal:      12.99,
		FinalAmount:   12.99,
		Status:        model.OrderPending,
		PaymentStatus: model.PayPending,
	}
	if err := mem.CreateOrder(ctx, order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	payment := &model.Payment{
		OrderID:      order.ID,
		ProcessorRef: "ch_test",
		Amount:       12.99,
		Total:        12.99,
		Currency:     "usd",
		Status:       model.PaymentPending,
		Method:       model.MethodCard,
	}
	if err := mem.CreatePayment(ctx, payment); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	return WebhookHandler(service.NewReconcileService(mem)), mem, payment
}

func postEvent(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/processor", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestWebhookHandler_AppliesEvent(t *testing.T) {
	h, mem, payment := webhookSetup(t)

	rec := postEvent(t, h, `{
		"event_id": "evt_1",
		"type": "charge.succeeded",
		"data": {"charge_reference": "ch_test", "amount": 1299}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	got, err := mem.GetPayment(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if got.Status != model.PaymentSucceeded {
		t.Errorf("payment status = %s, want succeeded", got.Status)
	}
}

func TestWebhookHandler_DuplicateStillAcknowledged(t *testing.T) {
	h, mem, payment := webhookSetup(t)
	body := `{
		"event_id": "evt_dup",
		"type": "charge.succeeded",
		"data": {"charge_reference": "ch_test", "amount": 1299}
	}`

	for i := 0; i < 2; i++ {
		if rec := postEvent(t, h, body); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d, want 200", i+1, rec.Code)
		}
	}
	if n := mem.CountTransactions(payment.ID); n != 1 {
		t.Errorf("want 1 transaction after redelivery, got %d", n)
	}
}

func TestWebhookHandler_BadPayload(t *testing.T) {
	h, _, _ := webhookSetup(t)

	if rec := postEvent(t, h, `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}
	if rec := postEvent(t, h, `{"type": "charge.succeeded", "data": {"charge_reference": "ch_test"}}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing event id: status = %d, want 400", rec.Code)
	}
}

func TestWebhookHandler_UnknownChargeAcknowledged(t *testing.T) {
	h, _, _ := webhookSetup(t)

	rec := postEvent(t, h, `{
		"event_id": "evt_ghost",
		"type": "charge.succeeded",
		"data": {"charge_reference": "ch_ghost", "amount": 100}
	}`)
	if rec.Code != http.StatusOK {
		t.Errorf("unknown charge: status = %d, want 200 ack", rec.Code)
	}
}
