package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-order-lifecycle/internal/dynamotest"
	"github.com/imrishuroy/go-order-lifecycle/internal/lifecycle"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/queue"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

func newTestHandler() (*handler, *queue.Memory) {
	q := queue.NewMemory(3)
	orch := lifecycle.New(validation.New(), orders.NewStore(dynamotest.New(), "orders"), q, time.Second, nil, zerolog.Nop())
	return newHandler(orch, zerolog.Nop()), q
}

func payload(customerID string) validation.OrderPayload {
	return validation.OrderPayload{
		OrderID:    "order-1",
		CustomerID: customerID,
		ProductID:  "PROD-5678",
		Quantity:   2,
		Price:      decimal.RequireFromString("19.99"),
		Status:     "PENDING",
		Timestamp:  time.Now().UTC(),
	}
}

func TestHandle_Stored(t *testing.T) {
	h, q := newTestHandler()

	res, err := h.Handle(context.Background(), payload("CUST-1234"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.State != lifecycle.StateStored || res.MessageID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if q.Sent() != 1 {
		t.Fatalf("expected one message, got %d", q.Sent())
	}
}

func TestHandle_ReturnsTypedErrors(t *testing.T) {
	h, _ := newTestHandler()

	_, err := h.Handle(context.Background(), payload("BAD"))
	var vf *validation.ValidationFailed
	if !errors.As(err, &vf) {
		t.Fatalf("expected *ValidationFailed, got %v", err)
	}

	if _, err := h.Handle(context.Background(), payload("CUST-1234")); err != nil {
		t.Fatalf("first run: %v", err)
	}
	_, err = h.Handle(context.Background(), payload("CUST-1234"))
	var sf *lifecycle.StorageFailed
	if !errors.As(err, &sf) || !sf.AlreadyExists {
		t.Fatalf("expected StorageFailed with AlreadyExists, got %v", err)
	}
}
