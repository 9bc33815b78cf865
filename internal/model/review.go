package model

import "time"

// Review is a customer's rating of one dish from one order. The (order, dish)
// pair is unique, enforced at the storage layer.
type Review struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	DishID      string    `json:"dish_id"`
	OrderItemID string    `json:"order_item_id"`
	UserID      string    `json:"user_id"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	DishName    string    `json:"dish_name"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
}
