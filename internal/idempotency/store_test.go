package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-order-lifecycle/internal/dynamotest"
)

const table = "idempotency-table"

func TestCreateIfNotExists_Get_MarkDone(t *testing.T) {
	mock := dynamotest.New()
	s := NewStore(mock, table, 48*time.Hour)

	ctx := context.Background()
	key := "test-key-1"
	orderID := "order-123"

	created, err := s.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key, "order-other")
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", rec.Status)
	}
	if rec.OrderID != orderID {
		t.Fatalf("order id mismatch")
	}

	if err := s.MarkDone(ctx, key, `{"orderId":"order-123"}`, 202); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	item := mock.Item(table, key)
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != `{"orderId":"order-123"}` {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}

	rec, _ = s.Get(ctx, key)
	if rec.ResponseStatus != 202 {
		t.Fatalf("expected response status 202, got %d", rec.ResponseStatus)
	}
}

func TestMarkFailed_AllowsReclaim(t *testing.T) {
	mock := dynamotest.New()
	s := NewStore(mock, table, time.Hour)
	ctx := context.Background()

	if _, err := s.CreateIfNotExists(ctx, "k2", "order-a"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkFailed(ctx, "k2", "failed-reason"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	item := mock.Item(table, "k2")
	if n, ok := item["note"].(*types.AttributeValueMemberS); !ok || n.Value != "failed-reason" {
		t.Fatalf("note not set, got %+v", item["note"])
	}

	created, err := s.CreateIfNotExists(ctx, "k2", "order-b")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !created {
		t.Fatal("a FAILED key should be claimable again")
	}
	rec, _ := s.Get(ctx, "k2")
	if rec.OrderID != "order-b" || rec.Status != StatusInProgress {
		t.Fatalf("reclaimed record mismatch: %+v", rec)
	}
}
