package validation

import (
	"regexp"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	maxPrice = decimal.NewFromInt(10000)

	customerIDPattern = regexp.MustCompile(`^CUST-\d{4,}$`)
	productIDPattern  = regexp.MustCompile(`^PROD-\d{4,}$`)
)

// ruleMessages maps "<StructField>.<tag>" to the message reported for that rule.
var ruleMessages = map[string]string{
	"OrderID.required":       "Order ID is required",
	"CustomerID.required":    "Customer ID is required",
	"ProductID.required":     "Product ID is required",
	"Quantity.gt":            "Quantity must be a positive number",
	"Price.gt":               "Price must be a positive number",
	"Quantity.lte":           "Quantity cannot exceed 100 items per order",
	"Price.lte":              "Price cannot exceed $10,000 per order",
	"CustomerID.customer_id": "Customer ID must be in format CUST-XXXX",
	"ProductID.product_id":   "Product ID must be in format PROD-XXXX",
}

// Validator checks order payloads against the structural and business rules.
// It has no side effects; the clock is only read to stamp ValidatedAt.
type Validator struct {
	engine  *validatorv10.Validate
	nowFunc func() time.Time
}

// New returns a Validator with the order rules registered.
func New() *Validator {
	return &Validator{
		engine:  newEngine(),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// newEngine returns a configured validator with the id formats and the
// struct-level price rules registered.
func newEngine() *validatorv10.Validate {
	v := validatorv10.New()

	_ = v.RegisterValidation("customer_id", func(fl validatorv10.FieldLevel) bool {
		return customerIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("product_id", func(fl validatorv10.FieldLevel) bool {
		return productIDPattern.MatchString(fl.Field().String())
	})

	// decimal.Decimal has no tag support, so price bounds are checked here.
	v.RegisterStructValidation(priceStructValidation, OrderPayload{})

	return v
}

func priceStructValidation(sl validatorv10.StructLevel) {
	p := sl.Current().Interface().(OrderPayload)

	switch {
	case !p.Price.IsPositive():
		sl.ReportError(p.Price, "price", "Price", "gt", "0")
	case p.Price.GreaterThan(maxPrice):
		sl.ReportError(p.Price, "price", "Price", "lte", maxPrice.String())
	}
}

// Validate evaluates every rule without short-circuiting. On success it returns the
// order with TotalAmount = Quantity × Price; otherwise a *ValidationFailed.
func (v *Validator) Validate(p OrderPayload) (*ValidatedOrder, error) {
	now := v.nowFunc()

	if err := v.engine.Struct(p); err != nil {
		return nil, &ValidationFailed{
			Errors:    messagesFor(err),
			Payload:   p,
			Timestamp: now,
		}
	}

	return &ValidatedOrder{
		OrderPayload:     p,
		TotalAmount:      p.Price.Mul(decimal.NewFromInt(int64(p.Quantity))),
		ValidatedAt:      now,
		ValidationStatus: StatusPassed,
	}, nil
}

func messagesFor(err error) []string {
	ve, ok := err.(validatorv10.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		msg, ok := ruleMessages[fe.StructField()+"."+fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		out = append(out, msg)
	}
	return out
}
