package model

import (
	"math"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to FulfillmentStatus
		want     bool
	}{
		{OrderPending, OrderPreparing, true},
		{OrderPreparing, OrderReady, true},
		{OrderReady, OrderCompleted, true},
		{OrderPending, OrderReady, false},
		{OrderPending, OrderCompleted, false},
		{OrderPreparing, OrderCompleted, false},
		{OrderReady, OrderPreparing, false},
		{OrderCompleted, OrderPreparing, false},

		// cancel is reachable from any non-terminal status
		{OrderPending, OrderCancelled, true},
		{OrderPreparing, OrderCancelled, true},
		{OrderReady, OrderCancelled, true},
		{OrderCompleted, OrderCancelled, false},
		{OrderCancelled, OrderPending, false},

		// re-entering the current status is a no-op, not an error
		{OrderPreparing, OrderPreparing, true},
		{OrderCompleted, OrderCompleted, true},
		{OrderCancelled, OrderCancelled, true},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []FulfillmentStatus{OrderPending, OrderPreparing, OrderReady} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []FulfillmentStatus{OrderCompleted, OrderCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestFinalAmount(t *testing.T) {
	if got := FinalAmount(12.99, 2.00, 4.00); math.Abs(got-10.99) > 1e-9 {
		t.Errorf("FinalAmount = %v, want 10.99", got)
	}
	if got := FinalAmount(3.00, 0, 4.00); got != 0 {
		t.Errorf("FinalAmount should floor at zero, got %v", got)
	}
	if got := FinalAmount(12.99, 0, 0); got != 12.99 {
		t.Errorf("FinalAmount = %v, want 12.99", got)
	}
}
