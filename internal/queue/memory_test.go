package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMemory_DeadLettersAfterMaxReceiveCount(t *testing.T) {
	q := NewMemory(3)
	if _, err := q.Enqueue(context.Background(), FulfillmentRequest{OrderID: "o1", Price: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var attempts []int
	err := q.Drain(context.Background(), func(ctx context.Context, d Delivery) error {
		attempts = append(attempts, d.Attempt)
		return errors.New("always fails")
	})
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Fatalf("expected attempts [1 2 3], got %v", attempts)
	}
	dead := q.DeadLetters()
	if len(dead) != 1 || dead[0].Attempt != 3 {
		t.Fatalf("expected one dead letter at attempt 3, got %+v", dead)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty, has %d", q.Len())
	}
}

func TestMemory_AckStopsRedelivery(t *testing.T) {
	q := NewMemory(3)
	q.Send([]byte(`{"orderId":"o2"}`))

	calls := 0
	_ = q.Drain(context.Background(), func(ctx context.Context, d Delivery) error {
		calls++
		if d.Attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})

	if calls != 2 {
		t.Fatalf("expected 2 deliveries, got %d", calls)
	}
	if len(q.DeadLetters()) != 0 {
		t.Fatal("acked message must not be dead-lettered")
	}
}

func TestParse(t *testing.T) {
	req, err := Parse([]byte(`{"orderId":"o1","quantity":2,"price":"19.99","totalAmount":39.98}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !req.TotalAmount.Equal(decimal.RequireFromString("39.98")) {
		t.Fatalf("total mismatch: %s", req.TotalAmount)
	}

	for _, body := range []string{`not json`, `{"quantity":1}`} {
		if _, err := Parse([]byte(body)); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%q: expected ErrMalformedMessage, got %v", body, err)
		}
	}
}

func TestParse_KeepsOrderIDOnMalformedFields(t *testing.T) {
	req, err := Parse([]byte(`{"orderId":"o1","price":"not-a-number","timestamp":"yesterday"}`))
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
	if req.OrderID != "o1" {
		t.Fatalf("expected order id to survive, got %q", req.OrderID)
	}

	req, _ = Parse([]byte(`not json`))
	if req.OrderID != "" {
		t.Fatalf("expected empty order id, got %q", req.OrderID)
	}
}
