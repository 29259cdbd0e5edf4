package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

var (
	// ErrAlreadyExists is returned by CreateIfAbsent when the order id is taken.
	ErrAlreadyExists = errors.New("order already exists")
	// ErrNotFound is returned by Update when no record exists for the id.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned by Update when the current status may not move to the requested one.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   func() time.Time { return time.Now().UTC() },
	}
}

// TableName returns the orders table name.
func (s *Store) TableName() string { return s.tableName }

// CreateIfAbsent writes order only if no record exists for its id.
// Returns ErrAlreadyExists when the conditional check fails.
func (s *Store) CreateIfAbsent(ctx context.Context, order Order) error {
	if order.OrderID == "" {
		return errors.New("create order: empty order id")
	}
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return fmt.Errorf("create order %s: %w", order.OrderID, ErrAlreadyExists)
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Update sets status to `to` plus the given fields (last write wins) provided the
// record exists and its current status may move to `to`.
// Returns ErrNotFound or ErrInvalidTransition when the condition fails.
func (s *Store) Update(ctx context.Context, orderID string, to Status, fields map[string]any) error {
	u, err := s.buildUpdate(orderID, to, fields)
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                           u.TableName,
		Key:                                 u.Key,
		UpdateExpression:                    u.UpdateExpression,
		ConditionExpression:                 u.ConditionExpression,
		ExpressionAttributeNames:            u.ExpressionAttributeNames,
		ExpressionAttributeValues:           u.ExpressionAttributeValues,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			if len(cfe.Item) == 0 {
				return fmt.Errorf("update order %s: %w", orderID, ErrNotFound)
			}
			var current Order
			_ = attributevalue.UnmarshalMap(cfe.Item, &current)
			return fmt.Errorf("update order %s %s -> %s: %w", orderID, current.Status, to, ErrInvalidTransition)
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// MarkFulfilled moves the order to FULFILLED with its fulfillment details.
func (s *Store) MarkFulfilled(ctx context.Context, orderID string, at time.Time, details FulfillmentDetails) error {
	return s.Update(ctx, orderID, StatusFulfilled, map[string]any{
		"fulfillment_timestamp": at,
		"fulfillment_details":   details,
	})
}

// FailedUpdate returns the transactional update that moves the order to FAILED.
// It is used together with the failure record put so both land atomically.
func (s *Store) FailedUpdate(orderID, reason, message string, at time.Time) (*types.Update, error) {
	return s.buildUpdate(orderID, StatusFailed, map[string]any{
		"failure_reason":    reason,
		"failure_timestamp": at,
		"error_message":     message,
	})
}

// buildUpdate renders "SET #status = :status, updated_at = :updated_at, #attrN = :valN"
// guarded by "attribute_exists(order_id) AND #status IN (...)".
func (s *Store) buildUpdate(orderID string, to Status, fields map[string]any) (*types.Update, error) {
	sources := sourcesOf(to)
	if len(sources) == 0 {
		return nil, fmt.Errorf("update order %s to %s: %w", orderID, to, ErrInvalidTransition)
	}

	names := map[string]string{"#status": "status"}
	values := map[string]types.AttributeValue{
		":status":     &types.AttributeValueMemberS{Value: string(to)},
		":updated_at": &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339Nano)},
	}
	expr := "SET #status = :status, updated_at = :updated_at"

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		av, err := attributevalue.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", k, err)
		}
		name, ph := fmt.Sprintf("#attr%d", i), fmt.Sprintf(":val%d", i)
		names[name] = k
		values[ph] = av
		expr += fmt.Sprintf(", %s = %s", name, ph)
	}

	cond := "attribute_exists(order_id) AND #status IN ("
	for i, from := range sources {
		ph := fmt.Sprintf(":from%d", i)
		values[ph] = &types.AttributeValueMemberS{Value: string(from)}
		if i > 0 {
			cond += ", "
		}
		cond += ph
	}
	cond += ")"

	return &types.Update{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          &expr,
		ConditionExpression:       &cond,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}, nil
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
