package lifecycle

import (
	"fmt"
	"time"

	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

// Storage stages
const (
	StageStore   = "STORE"
	StageEnqueue = "ENQUEUE"
)

// StorageFailed ends a run in STORAGE_FAILED. It carries the validated order so the
// whole run can be resubmitted; the conditional store write makes that safe.
//
// AlreadyExists means the record was already there (a duplicate run; nothing to do).
// A failure at StageEnqueue means the record exists but no fulfillment message was
// sent, so the order needs re-enqueueing.
type StorageFailed struct {
	Stage         string                    `json:"stage"`
	AlreadyExists bool                      `json:"alreadyExists"`
	Message       string                    `json:"message"`
	Order         validation.ValidatedOrder `json:"orderData"`
	Timestamp     time.Time                 `json:"timestamp"`
	Cause         error                     `json:"-"`
}

func (e *StorageFailed) Error() string {
	if e.AlreadyExists {
		return fmt.Sprintf("STORAGE_FAILED: order %s already exists", e.Order.OrderID)
	}
	return fmt.Sprintf("STORAGE_FAILED at %s: %s", e.Stage, e.Message)
}

func (e *StorageFailed) Unwrap() error { return e.Cause }
