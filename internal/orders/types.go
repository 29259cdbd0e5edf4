package orders

import "time"

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID          string              `dynamodbav:"order_id" json:"orderId"` // PK, immutable
	CustomerID       string              `dynamodbav:"customer_id" json:"customerId"`
	ProductID        string              `dynamodbav:"product_id" json:"productId"`
	Quantity         int                 `dynamodbav:"quantity" json:"quantity"`
	Price            Money               `dynamodbav:"price" json:"price"`
	TotalAmount      Money               `dynamodbav:"total_amount" json:"totalAmount"` // always Quantity × Price
	Status           Status              `dynamodbav:"status" json:"status"`
	CreatedAt        time.Time           `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt        time.Time           `dynamodbav:"updated_at" json:"updatedAt"`
	ValidatedAt      *time.Time          `dynamodbav:"validated_at,omitempty" json:"validatedAt,omitempty"`
	ValidationStatus string              `dynamodbav:"validation_status,omitempty" json:"validationStatus,omitempty"`
	FulfilledAt      *time.Time          `dynamodbav:"fulfillment_timestamp,omitempty" json:"fulfilledAt,omitempty"`
	Fulfillment      *FulfillmentDetails `dynamodbav:"fulfillment_details,omitempty" json:"fulfillmentDetails,omitempty"`
	FailedAt         *time.Time          `dynamodbav:"failure_timestamp,omitempty" json:"failedAt,omitempty"`
	FailureReason    string              `dynamodbav:"failure_reason,omitempty" json:"failureReason,omitempty"`
	ErrorMessage     string              `dynamodbav:"error_message,omitempty" json:"errorMessage,omitempty"`
	Metadata         map[string]any      `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
}

// FulfillmentDetails is only present on FULFILLED orders.
type FulfillmentDetails struct {
	TrackingNumber    string    `dynamodbav:"tracking_number" json:"trackingNumber"`
	Carrier           string    `dynamodbav:"carrier" json:"carrier"`
	EstimatedDelivery time.Time `dynamodbav:"estimated_delivery" json:"estimatedDelivery"`
}

// Complete reports whether every field is set and delivery is strictly after fulfilledAt.
func (d FulfillmentDetails) Complete(fulfilledAt time.Time) bool {
	return d.TrackingNumber != "" && d.Carrier != "" && d.EstimatedDelivery.After(fulfilledAt)
}
