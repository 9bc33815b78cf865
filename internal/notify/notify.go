// Package notify delivers customer notifications as a fire-and-forget
// collaborator: a failed or dropped notification never blocks or rolls back
// the state transition that triggered it.
package notify

import (
	"context"
	"log/slog"

	"trapkitchen/internal/model"
)

type Notifier interface {
	OrderConfirmed(order model.Order)
	OrderStatusChanged(order model.Order)
}

// Log writes notifications to the log. Stands in for the external email
// collaborator, whose delivery mechanics are out of scope.
type Log struct{}

func (Log) OrderConfirmed(o model.Order) {
	slog.Info("order confirmed", "order", o.Number, "user", o.UserID, "total", o.FinalAmount)
}

func (Log) OrderStatusChanged(o model.Order) {
	slog.Info("order status changed", "order", o.Number, "status", o.Status)
}

type kind int

const (
	kindConfirmed kind = iota
	kindStatusChanged
)

type event struct {
	kind  kind
	order model.Order
}

// Dispatcher decouples request handling from notification delivery. Enqueue
// never blocks; when the buffer is full the notification is dropped with a
// warning.
type Dispatcher struct {
	sink   Notifier
	events chan event
}

func NewDispatcher(sink Notifier, buffer int) *Dispatcher {
	return &Dispatcher{
		sink:   sink,
		events: make(chan event, buffer),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("starting notification dispatcher")
	for {
		select {
		case <-ctx.Done():
			slog.Info("notification dispatcher stopped")
			return
		case ev := <-d.events:
			switch ev.kind {
			case kindConfirmed:
				d.sink.OrderConfirmed(ev.order)
			case kindStatusChanged:
				d.sink.OrderStatusChanged(ev.order)
			}
		}
	}
}

func (d *Dispatcher) OrderConfirmed(o model.Order) {
	d.enqueue(event{kind: kindConfirmed, order: o})
}

func (d *Dispatcher) OrderStatusChanged(o model.Order) {
	d.enqueue(event{kind: kindStatusChanged, order: o})
}

func (d *Dispatcher) enqueue(ev event) {
	select {
	case d.events <- ev:
	default:
		slog.Warn("notification buffer full, dropping", "order", ev.order.Number)
	}
}
