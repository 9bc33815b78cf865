package model

import "time"

// Coupon is a single-use discount code awarded for an approved review.
type Coupon struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	UserID         string     `json:"user_id"`
	DiscountAmount float64    `json:"discount_amount"`
	Used           bool       `json:"used"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
