package validation

import (
	"strings"
	"time"
)

// ValidationFailed lists every violated rule together with the untouched payload, so
// failure reporting downstream still has the order as submitted.
type ValidationFailed struct {
	Errors    []string     `json:"validationErrors"`
	Payload   OrderPayload `json:"orderData"`
	Timestamp time.Time    `json:"timestamp"`
}

func (e *ValidationFailed) Error() string {
	return "Validation failed: " + strings.Join(e.Errors, "; ")
}
