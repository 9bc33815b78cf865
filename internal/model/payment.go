package model

import "time"

// PaymentState is the lifecycle of a single payment attempt. The lowercase
// values mirror what the processor reports.
type PaymentState string

const (
	PaymentCreated   PaymentState = "created"
	PaymentPending   PaymentState = "pending"
	PaymentSucceeded PaymentState = "succeeded"
	PaymentFailed    PaymentState = "failed"
	PaymentCanceled  PaymentState = "canceled"
	PaymentRefunded  PaymentState = "refunded"
)

type PaymentMethod string

const (
	MethodCard       PaymentMethod = "CARD"
	MethodApplePay   PaymentMethod = "APPLE_PAY"
	MethodCashAppPay PaymentMethod = "CASH_APP_PAY"
	MethodCash       PaymentMethod = "CASH"
)

// Payment is one attempt to collect money for an order. A retried payment
// creates a new record; at most one record per order ever reaches succeeded.
type Payment struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"order_id"`
	ProcessorRef  string        `json:"processor_ref,omitempty"` // empty for cash
	Amount        float64       `json:"amount"`
	Tip           float64       `json:"tip"`
	Total         float64       `json:"total"`
	Currency      string        `json:"currency"`
	Status        PaymentState  `json:"status"`
	Method        PaymentMethod `json:"method"`
	FailureReason string        `json:"failure_reason,omitempty"`
	ReceiptURL    string        `json:"receipt_url,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type TransactionType string

const (
	TxCharge        TransactionType = "CHARGE"
	TxRefund        TransactionType = "REFUND"
	TxPartialRefund TransactionType = "PARTIAL_REFUND"
)

func (t TransactionType) Refund() bool {
	return t == TxRefund || t == TxPartialRefund
}

// Transaction is an append-only audit record of a charge or refund applied
// to a payment. EventID holds the processor's idempotency reference and is
// unique, which is what makes duplicate webhook delivery a no-op.
type Transaction struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"payment_id"`
	Type      TransactionType `json:"type"`
	Amount    float64         `json:"amount"`
	EventID   string          `json:"event_id,omitempty"` // empty for cash confirmations
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
