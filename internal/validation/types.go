package validation

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusPassed tags an order that cleared every rule.
const StatusPassed = "PASSED"

// OrderPayload is the raw order handed to the validator by a lifecycle run.
type OrderPayload struct {
	OrderID    string          `json:"orderId" validate:"required"`
	CustomerID string          `json:"customerId" validate:"required,customer_id"`
	ProductID  string          `json:"productId" validate:"required,product_id"`
	Quantity   int             `json:"quantity" validate:"gt=0,lte=100"`
	Price      decimal.Decimal `json:"price"` // checked at struct level
	Status     string          `json:"status,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// ValidatedOrder is the payload plus the fields computed by validation.
type ValidatedOrder struct {
	OrderPayload
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	ValidatedAt      time.Time       `json:"validatedAt"`
	ValidationStatus string          `json:"validationStatus"`
}
