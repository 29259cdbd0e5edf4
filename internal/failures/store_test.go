package failures

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-order-lifecycle/internal/dynamotest"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

const (
	ordersTable = "orders"
	failedTable = "failed_orders"
)

func setup(t *testing.T) (*dynamotest.Mock, *orders.Store, *Store) {
	t.Helper()
	mock := dynamotest.New()
	ostore := orders.NewStore(mock, ordersTable)
	return mock, ostore, NewStore(mock, failedTable, ostore)
}

func record(id string) Record {
	now := time.Now().UTC()
	return Record{
		OrderID:           id,
		CustomerID:        "CUST-1234",
		ProductID:         "PROD-5678",
		Quantity:          2,
		Price:             orders.NewMoney(decimal.RequireFromString("19.99")),
		TotalAmount:       orders.NewMoney(decimal.RequireFromString("39.98")),
		OriginalTimestamp: now.Add(-time.Minute),
		FailedTimestamp:   now,
		ErrorMessage:      "Fulfillment failed for order " + id,
		ReceiveCount:      3,
		FailureReason:     ReasonFulfillmentProcessingFailed,
	}
}

func seedOrder(t *testing.T, ostore *orders.Store, id string, status orders.Status) {
	t.Helper()
	err := ostore.CreateIfAbsent(context.Background(), orders.Order{
		OrderID:    id,
		CustomerID: "CUST-1234",
		ProductID:  "PROD-5678",
		Quantity:   2,
		Status:     status,
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestEscalate_WritesRecordAndFailsOrder(t *testing.T) {
	mock, ostore, store := setup(t)
	ctx := context.Background()
	seedOrder(t, ostore, "o1", orders.StatusProcessing)

	if err := store.Escalate(ctx, record("o1")); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	if n := mock.Count(failedTable); n != 1 {
		t.Fatalf("expected one failure record, got %d", n)
	}
	o, _ := ostore.Get(ctx, "o1")
	if o.Status != orders.StatusFailed {
		t.Fatalf("expected FAILED, got %s", o.Status)
	}
	if o.FailureReason != ReasonFulfillmentProcessingFailed || o.FailedAt == nil || o.ErrorMessage == "" {
		t.Fatalf("failure fields not set: %+v", o)
	}

	rec, err := store.Get(ctx, "o1")
	if err != nil || rec == nil {
		t.Fatalf("get record: %v %v", rec, err)
	}
	if rec.ReceiveCount != 3 || !rec.TotalAmount.Equal(decimal.RequireFromString("39.98")) {
		t.Fatalf("record mismatch: %+v", rec)
	}
}

func TestEscalate_ReplayIsNoOp(t *testing.T) {
	mock, ostore, store := setup(t)
	ctx := context.Background()
	seedOrder(t, ostore, "o2", orders.StatusProcessing)

	if err := store.Escalate(ctx, record("o2")); err != nil {
		t.Fatalf("first escalate: %v", err)
	}
	err := store.Escalate(ctx, record("o2"))
	if !errors.Is(err, ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}
	if n := mock.Count(failedTable); n != 1 {
		t.Fatalf("expected one failure record after replay, got %d", n)
	}
}

func TestEscalate_OrderMissingStillRecordsFailure(t *testing.T) {
	mock, _, store := setup(t)

	err := store.Escalate(context.Background(), record("ghost"))
	if !errors.Is(err, ErrOrderNotUpdated) {
		t.Fatalf("expected ErrOrderNotUpdated, got %v", err)
	}
	if mock.Item(failedTable, "ghost") == nil {
		t.Fatal("failure record should be appended even without an order")
	}
}

func TestAppend_WriteOnce(t *testing.T) {
	_, _, store := setup(t)
	ctx := context.Background()

	if err := store.Append(ctx, record("o3")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, record("o3")); !errors.Is(err, ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}
}

func TestGet_Missing(t *testing.T) {
	_, _, store := setup(t)

	rec, err := store.Get(context.Background(), "none")
	if err != nil || rec != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", rec, err)
	}
}
