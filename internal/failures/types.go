package failures

import (
	"time"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// ReasonFulfillmentProcessingFailed tags records written when fulfillment exhausts its retries.
const ReasonFulfillmentProcessingFailed = "FULFILLMENT_PROCESSING_FAILED"

// Record is the append-only entry in the failed orders table, keyed by order id.
type Record struct {
	OrderID           string       `dynamodbav:"order_id" json:"orderId"` // PK
	CustomerID        string       `dynamodbav:"customer_id" json:"customerId"`
	ProductID         string       `dynamodbav:"product_id" json:"productId"`
	Quantity          int          `dynamodbav:"quantity" json:"quantity"`
	Price             orders.Money `dynamodbav:"price" json:"price"`
	TotalAmount       orders.Money `dynamodbav:"total_amount" json:"totalAmount"`
	OriginalTimestamp time.Time    `dynamodbav:"original_timestamp" json:"originalTimestamp"`
	FailedTimestamp   time.Time    `dynamodbav:"failed_timestamp" json:"failedTimestamp"`
	ErrorMessage      string       `dynamodbav:"error_message" json:"errorMessage"`
	ReceiveCount      int          `dynamodbav:"receive_count" json:"receiveCount"`
	FailureReason     string       `dynamodbav:"failure_reason" json:"failureReason"`
}
