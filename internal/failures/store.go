package failures

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

var (
	// ErrAlreadyRecorded means a failure record exists for the order; records are write-once.
	ErrAlreadyRecorded = errors.New("failure already recorded")
	// ErrOrderNotUpdated means the failure record was written but the order could not
	// be moved to FAILED (missing record or terminal status).
	ErrOrderNotUpdated = errors.New("failure recorded without order update")
)

// Store writes failure records to the failed orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	orders    *orders.Store
}

// NewStore returns a Store. ordersStore renders the FAILED update that Escalate
// commits together with the record.
func NewStore(client aws.DynamoDBAPI, tableName string, ordersStore *orders.Store) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		orders:    ordersStore,
	}
}

// Append writes rec once. A second append for the same order returns ErrAlreadyRecorded.
func (s *Store) Append(ctx context.Context, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal failure record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return fmt.Errorf("append failure %s: %w", rec.OrderID, ErrAlreadyRecorded)
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Escalate writes rec and moves the order to FAILED in one transaction.
//
// A replay finds the record present and returns ErrAlreadyRecorded without touching
// the order. If only the order condition fails, the record is appended on its own
// and ErrOrderNotUpdated is returned.
func (s *Store) Escalate(ctx context.Context, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal failure record: %w", err)
	}
	update, err := s.orders.FailedUpdate(rec.OrderID, rec.FailureReason, rec.ErrorMessage, rec.FailedTimestamp)
	if err != nil {
		return err
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                item,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
			{Update: update},
		},
	})
	if err == nil {
		return nil
	}

	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("transact write: %w", err)
	}
	if conditionFailed(tce, 0) {
		return fmt.Errorf("escalate %s: %w", rec.OrderID, ErrAlreadyRecorded)
	}
	if conditionFailed(tce, 1) {
		if aerr := s.Append(ctx, rec); aerr != nil && !errors.Is(aerr, ErrAlreadyRecorded) {
			return aerr
		}
		return fmt.Errorf("escalate %s: %w", rec.OrderID, ErrOrderNotUpdated)
	}
	return fmt.Errorf("transaction canceled: %w", err)
}

// Get returns the failure record for orderID, or (nil, nil) if there is none.
func (s *Store) Get(ctx context.Context, orderID string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal failure record: %w", err)
	}
	return &rec, nil
}

func conditionFailed(tce *types.TransactionCanceledException, i int) bool {
	if i >= len(tce.CancellationReasons) {
		return false
	}
	code := tce.CancellationReasons[i].Code
	return code != nil && *code == "ConditionalCheckFailed"
}

func awsString(s string) *string { return &s }
