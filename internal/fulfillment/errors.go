package fulfillment

import "fmt"

// FulfillmentFailed is a transient failure. The message goes back to the queue.
type FulfillmentFailed struct {
	OrderID string
	Attempt int
	Cause   error
}

func (e *FulfillmentFailed) Error() string {
	return fmt.Sprintf("Fulfillment failed for order %s (attempt %d): %v", e.OrderID, e.Attempt, e.Cause)
}

func (e *FulfillmentFailed) Unwrap() error { return e.Cause }

// FulfillmentExhausted is returned on the final delivery attempt, after the failure
// has been escalated. EscalationErr is set when the failure record could not be
// written; the dead-letter handler retries it.
type FulfillmentExhausted struct {
	OrderID       string
	Attempts      int
	Cause         error
	EscalationErr error
}

func (e *FulfillmentExhausted) Error() string {
	msg := fmt.Sprintf("fulfillment exhausted for order %s after %d attempts: %v", e.OrderID, e.Attempts, e.Cause)
	if e.EscalationErr != nil {
		msg += fmt.Sprintf(" (escalation failed: %v)", e.EscalationErr)
	}
	return msg
}

func (e *FulfillmentExhausted) Unwrap() error { return e.Cause }
