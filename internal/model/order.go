package model

import (
	"time"
)

// FulfillmentStatus is the staff-driven lifecycle of an order.
type FulfillmentStatus string

const (
	OrderPending   FulfillmentStatus = "PENDING"
	OrderPreparing FulfillmentStatus = "PREPARING"
	OrderReady     FulfillmentStatus = "READY"
	OrderCompleted FulfillmentStatus = "COMPLETED"
	OrderCancelled FulfillmentStatus = "CANCELLED"
)

// Terminal reports whether no further fulfillment transitions are possible.
func (s FulfillmentStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// CanTransition reports whether moving to the given status is allowed.
// Re-entering the current status is permitted as a no-op; Cancelled is
// reachable from any non-terminal status.
func (s FulfillmentStatus) CanTransition(to FulfillmentStatus) bool {
	if s == to {
		return true
	}
	if to == OrderCancelled {
		return !s.Terminal()
	}
	switch s {
	case OrderPending:
		return to == OrderPreparing
	case OrderPreparing:
		return to == OrderReady
	case OrderReady:
		return to == OrderCompleted
	default:
		return false
	}
}

// PaymentStatus is the processor-driven payment view of an order. It evolves
// independently of the fulfillment status.
type PaymentStatus string

const (
	PayUnpaid            PaymentStatus = "UNPAID"
	PayPending           PaymentStatus = "PENDING"
	PayPaid              PaymentStatus = "PAID"
	PayFailed            PaymentStatus = "FAILED"
	PayRefunded          PaymentStatus = "REFUNDED"
	PayPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// OrderItem captures the dish name and unit price at order time. They are
// never recomputed, so later menu edits cannot change historical orders.
type OrderItem struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	DishID    string  `json:"dish_id"`
	DishName  string  `json:"dish_name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type Order struct {
	ID              string            `json:"id"`
	Number          int64             `json:"number"`
	UserID          string            `json:"user_id"`
	Items           []OrderItem       `json:"items,omitempty"`
	Subtotal        float64           `json:"subtotal"`
	Tip             float64           `json:"tip"`
	Discount        float64           `json:"discount"`
	FinalAmount     float64           `json:"final_amount"`
	Status          FulfillmentStatus `json:"status"`
	PaymentStatus   PaymentStatus     `json:"payment_status"`
	AppliedCouponID string            `json:"applied_coupon_id,omitempty"`
	Archived        bool              `json:"archived"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// FinalAmount computes subtotal + tip - discount, floored at zero.
func FinalAmount(subtotal, tip, discount float64) float64 {
	total := subtotal + tip - discount
	if total < 0 {
		return 0
	}
	return total
}
