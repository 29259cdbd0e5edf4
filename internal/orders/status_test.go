package orders

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusStored, StatusProcessing, true},
		{StatusProcessing, StatusFulfilled, true},
		{StatusProcessing, StatusFailed, true},
		{StatusFulfilled, StatusFulfilled, true},
		{StatusFailed, StatusFailed, true},
		{StatusProcessing, StatusProcessing, false},
		{StatusFulfilled, StatusFailed, false},
		{StatusFailed, StatusFulfilled, false},
		{StatusProcessing, StatusPending, false},
		{StatusFulfilled, StatusProcessing, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusStored, StatusProcessing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusFulfilled, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
