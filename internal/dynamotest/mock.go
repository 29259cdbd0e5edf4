// Package dynamotest provides an in-memory DynamoDB double for store tests. It
// understands the small expression dialect the stores emit: SET lists, and
// conditions built from attribute_exists, attribute_not_exists, "=" and IN,
// joined by AND or OR (not both).
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// keyAttributes are tried in order to find an item's primary key.
var keyAttributes = []string{"idempotency_key", "order_id"}

// Mock stores items per table: table -> pk value -> item.
type Mock struct {
	mu     sync.Mutex
	Tables map[string]map[string]map[string]types.AttributeValue

	// Err, when set for an operation name ("PutItem", "UpdateItem", ...), is returned
	// instead of executing the call.
	Err map[string]error

	Calls map[string]int
}

// New returns an empty Mock.
func New() *Mock {
	return &Mock{
		Tables: map[string]map[string]map[string]types.AttributeValue{},
		Err:    map[string]error{},
		Calls:  map[string]int{},
	}
}

// Item returns a stored item or nil.
func (m *Mock) Item(table, pk string) map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Tables[table][pk]
}

// Count returns the number of items in table.
func (m *Mock) Count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Tables[table])
}

// Seed stores item directly.
func (m *Mock) Seed(table string, item map[string]types.AttributeValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := primaryKey(item)
	if err != nil {
		panic(err)
	}
	m.table(table)[pk] = item
}

func (m *Mock) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.Tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		m.Tables[name] = t
	}
	return t
}

func (m *Mock) enter(op string) error {
	m.Calls[op]++
	return m.Err[op]
}

func (m *Mock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PutItem"); err != nil {
		return nil, err
	}
	pk, err := primaryKey(params.Item)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)
	current := tbl[pk]
	ok, err := evaluate(params.ConditionExpression, current, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: str("The conditional request failed")}
	}
	tbl[pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *Mock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetItem"); err != nil {
		return nil, err
	}
	pk, err := primaryKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*params.TableName)[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *Mock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateItem"); err != nil {
		return nil, err
	}
	pk, err := primaryKey(params.Key)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)
	current := tbl[pk]
	ok, err := evaluate(params.ConditionExpression, current, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		exc := &types.ConditionalCheckFailedException{Message: str("The conditional request failed")}
		if params.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld && current != nil {
			exc.Item = copyItem(current)
		}
		return nil, exc
	}
	next, err := applySet(current, params.Key, derefOr(params.UpdateExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	tbl[pk] = next
	return &dyn.UpdateItemOutput{Attributes: copyItem(next)}, nil
}

func (m *Mock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("TransactWriteItems"); err != nil {
		return nil, err
	}

	// First pass: verify every condition.
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	canceled := false
	for i, it := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: str("None")}
		var (
			table string
			key   map[string]types.AttributeValue
			cond  *string
			names map[string]string
			vals  map[string]types.AttributeValue
		)
		switch {
		case it.Put != nil:
			table, key, cond, names, vals = *it.Put.TableName, it.Put.Item, it.Put.ConditionExpression, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
		case it.Update != nil:
			table, key, cond, names, vals = *it.Update.TableName, it.Update.Key, it.Update.ConditionExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
		default:
			return nil, errors.New("dynamotest: only Put and Update are supported in transactions")
		}
		pk, err := primaryKey(key)
		if err != nil {
			return nil, err
		}
		ok, err := evaluate(cond, m.table(table)[pk], names, vals)
		if err != nil {
			return nil, err
		}
		if !ok {
			reasons[i] = types.CancellationReason{Code: str("ConditionalCheckFailed")}
			canceled = true
		}
	}
	if canceled {
		return nil, &types.TransactionCanceledException{
			Message:             str("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	// Second pass: apply.
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			pk, _ := primaryKey(p.Item)
			m.table(*p.TableName)[pk] = copyItem(p.Item)
			continue
		}
		u := it.Update
		pk, _ := primaryKey(u.Key)
		tbl := m.table(*u.TableName)
		next, err := applySet(tbl[pk], u.Key, derefOr(u.UpdateExpression), u.ExpressionAttributeNames, u.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		tbl[pk] = next
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func primaryKey(item map[string]types.AttributeValue) (string, error) {
	for _, k := range keyAttributes {
		if v, ok := item[k]; ok {
			s, ok := v.(*types.AttributeValueMemberS)
			if !ok {
				return "", fmt.Errorf("dynamotest: key %s is not a string", k)
			}
			return s.Value, nil
		}
	}
	return "", errors.New("dynamotest: no primary key in item")
}

// applySet applies "SET a = :x, #b = :y" to a copy of item.
func applySet(item, key map[string]types.AttributeValue, expr string, names map[string]string, vals map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	next := copyItem(item)
	if next == nil {
		next = copyItem(key)
	}
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return nil, fmt.Errorf("dynamotest: unsupported update expression %q", expr)
	}
	for _, assign := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
		parts := strings.SplitN(assign, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("dynamotest: bad assignment %q", assign)
		}
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		v, ok := vals[strings.TrimSpace(parts[1])]
		if !ok {
			return nil, fmt.Errorf("dynamotest: missing value %s", parts[1])
		}
		next[attr] = v
	}
	return next, nil
}

func evaluate(cond *string, item map[string]types.AttributeValue, names map[string]string, vals map[string]types.AttributeValue) (bool, error) {
	if cond == nil || *cond == "" {
		return true, nil
	}
	for _, alt := range strings.Split(*cond, " OR ") {
		all := true
		for _, clause := range strings.Split(alt, " AND ") {
			ok, err := clauseHolds(strings.TrimSpace(clause), item, names, vals)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func clauseHolds(clause string, item map[string]types.AttributeValue, names map[string]string, vals map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
		attr := resolveName(clause[len("attribute_not_exists("):len(clause)-1], names)
		_, ok := item[attr]
		return !ok, nil
	case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
		attr := resolveName(clause[len("attribute_exists("):len(clause)-1], names)
		_, ok := item[attr]
		return ok, nil
	case strings.Contains(clause, " IN "):
		parts := strings.SplitN(clause, " IN ", 2)
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		list := strings.Trim(strings.TrimSpace(parts[1]), "()")
		cur, ok := item[attr]
		if !ok {
			return false, nil
		}
		for _, ph := range strings.Split(list, ",") {
			if reflect.DeepEqual(cur, vals[strings.TrimSpace(ph)]) {
				return true, nil
			}
		}
		return false, nil
	case strings.Contains(clause, " = "):
		parts := strings.SplitN(clause, " = ", 2)
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		cur, ok := item[attr]
		if !ok {
			return false, nil
		}
		return reflect.DeepEqual(cur, vals[strings.TrimSpace(parts[1])]), nil
	}
	return false, fmt.Errorf("dynamotest: unsupported condition %q", clause)
}

func resolveName(tok string, names map[string]string) string {
	tok = strings.TrimSpace(tok)
	if strings.HasPrefix(tok, "#") {
		if n, ok := names[tok]; ok {
			return n
		}
	}
	return tok
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func str(s string) *string { return &s }
