package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-order-lifecycle/internal/dynamotest"
)

const ordersTable = "orders"

func sampleOrder(id string) Order {
	return Order{
		OrderID:     id,
		CustomerID:  "CUST-1234",
		ProductID:   "PROD-5678",
		Quantity:    2,
		Price:       NewMoney(decimal.RequireFromString("19.99")),
		TotalAmount: NewMoney(decimal.RequireFromString("39.98")),
		Status:      StatusProcessing,
		Metadata:    map[string]any{"channel": "web"},
	}
}

func TestCreateIfAbsent_SuccessThenDuplicate(t *testing.T) {
	mock := dynamotest.New()
	store := NewStore(mock, ordersTable)
	ctx := context.Background()

	if err := store.CreateIfAbsent(ctx, sampleOrder("order-1")); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	err := store.CreateIfAbsent(ctx, sampleOrder("order-1"))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if n := mock.Count(ordersTable); n != 1 {
		t.Fatalf("expected exactly one record, got %d", n)
	}
}

func TestCreateIfAbsent_StoresMoneyAsNumber(t *testing.T) {
	mock := dynamotest.New()
	store := NewStore(mock, ordersTable)

	if err := store.CreateIfAbsent(context.Background(), sampleOrder("order-2")); err != nil {
		t.Fatalf("create: %v", err)
	}

	item := mock.Item(ordersTable, "order-2")
	n, ok := item["total_amount"].(*types.AttributeValueMemberN)
	if !ok || n.Value != "39.98" {
		t.Fatalf("total_amount should be N 39.98, got %#v", item["total_amount"])
	}

	got, err := store.Get(context.Background(), "order-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.TotalAmount.Equal(decimal.RequireFromString("39.98")) {
		t.Fatalf("round trip total mismatch: %s", got.TotalAmount)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}
}

func TestGet_NotFound(t *testing.T) {
	store := NewStore(dynamotest.New(), ordersTable)

	got, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil order, got %+v", got)
	}
}

func TestMarkFulfilled_IsIdempotent(t *testing.T) {
	mock := dynamotest.New()
	store := NewStore(mock, ordersTable)
	ctx := context.Background()
	if err := store.CreateIfAbsent(ctx, sampleOrder("order-3")); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Now().UTC()
	details := FulfillmentDetails{TrackingNumber: "TRK1", Carrier: "EXPRESS_SHIPPING", EstimatedDelivery: at.Add(48 * time.Hour)}

	for i := 0; i < 2; i++ {
		if err := store.MarkFulfilled(ctx, "order-3", at, details); err != nil {
			t.Fatalf("mark fulfilled #%d: %v", i+1, err)
		}
	}

	got, _ := store.Get(ctx, "order-3")
	if got.Status != StatusFulfilled {
		t.Fatalf("expected FULFILLED, got %s", got.Status)
	}
	if got.Fulfillment == nil || got.Fulfillment.TrackingNumber != "TRK1" {
		t.Fatalf("fulfillment details missing: %+v", got.Fulfillment)
	}
	if got.FulfilledAt == nil || !got.FulfilledAt.Equal(at) {
		t.Fatalf("fulfilled at mismatch: %v", got.FulfilledAt)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	store := NewStore(dynamotest.New(), ordersTable)

	err := store.Update(context.Background(), "ghost", StatusFulfilled, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_RejectsBackwardTransition(t *testing.T) {
	mock := dynamotest.New()
	store := NewStore(mock, ordersTable)
	ctx := context.Background()

	o := sampleOrder("order-4")
	o.Status = StatusFulfilled
	item, _ := attributevalue.MarshalMap(o)
	mock.Seed(ordersTable, item)

	err := store.Update(ctx, "order-4", StatusFailed, map[string]any{"failure_reason": "x"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	err = store.Update(ctx, "order-4", StatusProcessing, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for FULFILLED -> PROCESSING, got %v", err)
	}
}

func TestFailedUpdate_TargetsFailedStatus(t *testing.T) {
	store := NewStore(dynamotest.New(), ordersTable)

	u, err := store.FailedUpdate("order-5", "FULFILLMENT_PROCESSING_FAILED", "boom", time.Now())
	if err != nil {
		t.Fatalf("failed update: %v", err)
	}
	if s := u.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS).Value; s != string(StatusFailed) {
		t.Fatalf("expected FAILED status value, got %s", s)
	}
	if *u.TableName != ordersTable {
		t.Fatalf("table mismatch: %s", *u.TableName)
	}
}
