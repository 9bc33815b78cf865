package service

import (
	"context"
	"errors"
	"log/slog"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/model"
	"trapkitchen/internal/notify"
	"trapkitchen/internal/store"
)

// OrderService owns order creation and the staff-driven fulfillment state
// machine. Payment status is never touched here; that belongs to the
// payment and reconciliation services.
type OrderService struct {
	store    store.Store
	notifier notify.Notifier
}

func NewOrderService(st store.Store, notifier notify.Notifier) *OrderService {
	return &OrderService{store: st, notifier: notifier}
}

type OrderItemRequest struct {
	DishID   string `json:"dish_id"`
	Quantity int    `json:"quantity"`
}

// Create builds an order from the current menu, capturing each dish's name
// and price so later menu edits cannot affect it.
func (s *OrderService) Create(ctx context.Context, userID string, items []OrderItemRequest) (*model.Order, error) {
	if len(items) == 0 {
		return nil, apperr.Validationf("order must contain at least one item")
	}

	order := &model.Order{
		UserID:        userID,
		Status:        model.OrderPending,
		PaymentStatus: model.PayUnpaid,
	}
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, apperr.Validationf("item quantity must be at least 1")
		}
		dish, err := s.store.GetDish(ctx, item.DishID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.NotFoundf("dish not found: %s", item.DishID)
			}
			return nil, err
		}
		if !dish.Available {
			return nil, apperr.Validationf("dish is not available: %s", dish.Name)
		}
		order.Items = append(order.Items, model.OrderItem{
			DishID:    dish.ID,
			DishName:  dish.Name,
			Quantity:  item.Quantity,
			UnitPrice: dish.Price,
		})
		order.Subtotal += dish.Price * float64(item.Quantity)
	}
	order.FinalAmount = model.FinalAmount(order.Subtotal, order.Tip, order.Discount)

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.notifier.OrderConfirmed(*order)
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, userID string, role model.Role, orderID string) (*model.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID && !role.Staff() {
		return nil, apperr.Authorizationf("not authorized to view this order")
	}
	return order, nil
}

// List returns the caller's orders; staff see every order.
func (s *OrderService) List(ctx context.Context, userID string, role model.Role) ([]model.Order, error) {
	if role.Staff() {
		return s.store.ListOrders(ctx)
	}
	return s.store.ListOrdersByUser(ctx, userID)
}

// SetStatus applies a staff fulfillment transition. Entering Completed
// stamps the completion timestamp exactly once; re-entry never re-stamps.
// Cancelling a paid order does not refund it: refunds are a separate,
// explicit operation.
func (s *OrderService) SetStatus(ctx context.Context, orderID string, status model.FulfillmentStatus) (*model.Order, error) {
	switch status {
	case model.OrderPending, model.OrderPreparing, model.OrderReady, model.OrderCompleted, model.OrderCancelled:
	default:
		return nil, apperr.Validationf("unknown order status: %s", status)
	}

	var updated *model.Order
	err := s.store.WithinOrder(ctx, orderID, func(ctx context.Context, tx store.Store) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransition(status) {
			return apperr.Conflictf("cannot transition order from %s to %s", order.Status, status)
		}

		changed := order.Status != status
		order.Status = status
		if status == model.OrderCompleted && order.CompletedAt == nil {
			t := nowFunc()
			order.CompletedAt = &t
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order

		if changed {
			s.notifier.OrderStatusChanged(*order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ArchiveAll flags every active order as archived. Rows are never deleted.
func (s *OrderService) ArchiveAll(ctx context.Context) (int64, error) {
	n, err := s.store.ArchiveOrders(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("orders archived", "count", n)
	return n, nil
}

// ResetNumbers restarts the human-facing order number sequence. Only ever
// invoked as an explicit administrative action.
func (s *OrderService) ResetNumbers(ctx context.Context) error {
	return s.store.ResetOrderNumbers(ctx)
}
