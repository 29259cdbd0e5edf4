package metrics

import "context"

// Event names a lifecycle outcome worth counting.
type Event string

const (
	EventAccepted             Event = "OrderAccepted"
	EventValidationFailed     Event = "ValidationFailed"
	EventStored               Event = "OrderStored"
	EventStorageFailed        Event = "StorageFailed"
	EventFulfilled            Event = "OrderFulfilled"
	EventFulfillmentFailed    Event = "FulfillmentFailed"
	EventFulfillmentExhausted Event = "FulfillmentExhausted"
)

// Recorder counts lifecycle events. Implementations must not block the caller on
// backend failures.
type Recorder interface {
	Count(ctx context.Context, event Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Count(context.Context, Event) {}

// Multi fans an event out to several recorders.
type Multi []Recorder

func (m Multi) Count(ctx context.Context, event Event) {
	for _, r := range m {
		r.Count(ctx, event)
	}
}
