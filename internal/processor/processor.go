// Package processor defines the contract with the external payment processor.
// All amounts crossing this boundary are in minor currency units (integer
// cents); conversion to and from decimal currency happens here only.
package processor

import (
	"context"
	"math"
)

// Charge statuses as reported by the processor.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

type Charge struct {
	Reference      string `json:"reference"`
	ClientSecret   string `json:"client_secret,omitempty"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	ReceiptURL     string `json:"receipt_url,omitempty"`
}

type Refund struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type Client interface {
	CreateCharge(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Charge, error)
	RetrieveCharge(ctx context.Context, reference string) (*Charge, error)
	CreateRefund(ctx context.Context, reference string, amount int64) (*Refund, error)
}

// EventType identifies an asynchronous processor notification.
type EventType string

const (
	EventChargeSucceeded EventType = "charge.succeeded"
	EventChargeFailed    EventType = "charge.failed"
	EventChargeRefunded  EventType = "charge.refunded"
	EventChargeCanceled  EventType = "charge.canceled"
)

// Event is the webhook envelope. ID is the processor-assigned idempotency
// reference; delivery is at-least-once and unordered.
type Event struct {
	ID   string    `json:"event_id"`
	Type EventType `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	ChargeReference string `json:"charge_reference"`
	Amount          int64  `json:"amount"`
	AmountRefunded  int64  `json:"amount_refunded"`
	FailureReason   string `json:"failure_reason,omitempty"`
	ReceiptURL      string `json:"receipt_url,omitempty"`
}

// ToMinorUnits converts a decimal currency amount to integer cents.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts integer cents back to a decimal currency amount.
func FromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
