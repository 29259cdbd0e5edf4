package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SourceOrderStorage marks requests enqueued by the storing stage of a lifecycle run.
const SourceOrderStorage = "order_storage"

// FulfillmentRequest is the message body carried by the fulfillment queue.
type FulfillmentRequest struct {
	OrderID     string          `json:"orderId"`
	CustomerID  string          `json:"customerId"`
	ProductID   string          `json:"productId"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Timestamp   time.Time       `json:"timestamp"`
	Source      string          `json:"source"`
}

// Attributes returns the SQS message attributes sent alongside the body.
func (r FulfillmentRequest) Attributes() map[string]string {
	return map[string]string{
		"order_id":    r.OrderID,
		"customer_id": r.CustomerID,
	}
}

// ErrMalformedMessage wraps every parse failure.
var ErrMalformedMessage = errors.New("malformed fulfillment message")

// Parse decodes a message body into an order reference. When the body is malformed
// but still carries an orderId, the returned request holds that id alongside the
// error so the order can be escalated.
func Parse(body []byte) (FulfillmentRequest, error) {
	var req FulfillmentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		var ref struct {
			OrderID string `json:"orderId"`
		}
		_ = json.Unmarshal(body, &ref)
		return FulfillmentRequest{OrderID: ref.OrderID}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if req.OrderID == "" {
		return FulfillmentRequest{}, fmt.Errorf("%w: missing orderId", ErrMalformedMessage)
	}
	return req, nil
}

// Delivery is one hand-off of a message to a consumer.
type Delivery struct {
	MessageID     string
	Body          []byte
	Attempt       int // receive count, starting at 1
	ReceiptHandle string
}

// Handler processes one delivery. A nil error acknowledges the message; any error
// hands it back to the queue for redelivery or dead-lettering.
type Handler func(ctx context.Context, d Delivery) error
