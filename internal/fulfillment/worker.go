// Package fulfillment consumes fulfillment requests, performs fulfillment and moves
// orders to FULFILLED, or escalates them to FAILED once the queue's delivery
// attempts are used up.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-order-lifecycle/internal/failures"
	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/queue"
)

var (
	ErrOrderMissing      = errors.New("order record missing")
	ErrIncompleteDetails = errors.New("incomplete fulfillment details")
)

// OrderStore is the part of the order record store the worker uses.
type OrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	MarkFulfilled(ctx context.Context, orderID string, at time.Time, details orders.FulfillmentDetails) error
}

// Escalator writes the failure record and the FAILED status together.
type Escalator interface {
	Escalate(ctx context.Context, rec failures.Record) error
}

// Config holds the worker's limits.
type Config struct {
	MaxReceiveCount int
	StageTimeout    time.Duration
}

// Worker processes one delivery at a time per call; callers may run calls concurrently.
type Worker struct {
	orders    OrderStore
	failures  Escalator
	fulfiller Fulfiller
	cfg       Config
	metrics   metrics.Recorder
	log       zerolog.Logger
	nowFunc   func() time.Time
}

// NewWorker returns a Worker.
func NewWorker(store OrderStore, esc Escalator, f Fulfiller, cfg Config, rec metrics.Recorder, log zerolog.Logger) *Worker {
	if cfg.MaxReceiveCount < 1 {
		cfg.MaxReceiveCount = 3
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 10 * time.Second
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Worker{
		orders:    store,
		failures:  esc,
		fulfiller: f,
		cfg:       cfg,
		metrics:   rec,
		log:       log,
		nowFunc:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle adapts the worker to a queue consumer.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) error {
	return w.ProcessMessage(ctx, d.Body, d.Attempt)
}

// ProcessMessage runs one delivery attempt. nil acknowledges the message. Any other
// result is a *FulfillmentFailed, or a *FulfillmentExhausted when attempt has reached
// the receive limit, and the message is left for the queue to redeliver or
// dead-letter.
func (w *Worker) ProcessMessage(ctx context.Context, body []byte, attempt int) error {
	req, err := queue.Parse(body)
	if err != nil {
		return w.fail(ctx, req, attempt, err)
	}
	log := w.log.With().Str("order_id", req.OrderID).Int("attempt", attempt).Logger()

	order, err := w.getOrder(ctx, req.OrderID)
	if err != nil {
		return w.fail(ctx, req, attempt, err)
	}
	if order.Status.Terminal() {
		// redelivery after the outcome was already written
		log.Info().Str("status", string(order.Status)).Msg("order already terminal; acknowledging")
		return nil
	}

	details, err := w.fulfill(ctx, req)
	if err != nil {
		return w.fail(ctx, req, attempt, err)
	}
	at := w.nowFunc()
	if !details.Complete(at) {
		return w.fail(ctx, req, attempt, ErrIncompleteDetails)
	}

	if err := w.markFulfilled(ctx, req.OrderID, at, details); err != nil {
		if errors.Is(err, orders.ErrInvalidTransition) {
			log.Warn().Err(err).Msg("order reached a terminal status concurrently; acknowledging")
			return nil
		}
		return w.fail(ctx, req, attempt, err)
	}

	w.metrics.Count(ctx, metrics.EventFulfilled)
	log.Info().Str("tracking_number", details.TrackingNumber).Msg("order fulfilled")
	return nil
}

// ProcessDeadLetter escalates a message that reached the dead-letter queue. It covers
// the case where escalation on the final attempt did not land. Replays are no-ops.
func (w *Worker) ProcessDeadLetter(ctx context.Context, body []byte, receiveCount int) error {
	req, err := queue.Parse(body)
	if err != nil && req.OrderID == "" {
		w.log.Error().Err(err).Msg("dropping malformed dead letter")
		return nil
	}
	log := w.log.With().Str("order_id", req.OrderID).Logger()
	if err != nil {
		log.Warn().Err(err).Msg("malformed dead letter; escalating by order id")
	}

	order, err := w.getOrder(ctx, req.OrderID)
	switch {
	case errors.Is(err, ErrOrderMissing):
	case err != nil:
		return err
	case order.Status.Terminal():
		log.Debug().Str("status", string(order.Status)).Msg("dead letter already resolved")
		return nil
	}

	msg := fmt.Sprintf("dead-lettered after %d deliveries", receiveCount)
	if err := w.escalate(ctx, req, receiveCount, msg); err != nil {
		return err
	}
	log.Warn().Msg("dead letter escalated")
	return nil
}

func (w *Worker) fail(ctx context.Context, req queue.FulfillmentRequest, attempt int, cause error) error {
	log := w.log.With().Str("order_id", req.OrderID).Int("attempt", attempt).Logger()

	if attempt < w.cfg.MaxReceiveCount {
		w.metrics.Count(ctx, metrics.EventFulfillmentFailed)
		log.Warn().Err(cause).Msg("fulfillment attempt failed; message will be redelivered")
		return &FulfillmentFailed{OrderID: req.OrderID, Attempt: attempt, Cause: cause}
	}

	exhausted := &FulfillmentExhausted{OrderID: req.OrderID, Attempts: attempt, Cause: cause}
	w.metrics.Count(ctx, metrics.EventFulfillmentExhausted)

	if req.OrderID == "" {
		log.Error().Err(cause).Msg("unparseable message exhausted its deliveries")
		return exhausted
	}
	if err := w.escalate(ctx, req, attempt, fmt.Sprintf("Fulfillment failed for order %s: %v", req.OrderID, cause)); err != nil {
		exhausted.EscalationErr = err
		log.Error().Err(err).Msg("failed to escalate exhausted order")
		return exhausted
	}
	log.Error().Err(cause).Msg("fulfillment exhausted; order marked FAILED")
	return exhausted
}

// escalate tolerates the outcomes of a replayed escalation.
func (w *Worker) escalate(ctx context.Context, req queue.FulfillmentRequest, receiveCount int, message string) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.StageTimeout)
	defer cancel()

	err := w.failures.Escalate(ctx, failures.Record{
		OrderID:           req.OrderID,
		CustomerID:        req.CustomerID,
		ProductID:         req.ProductID,
		Quantity:          req.Quantity,
		Price:             orders.NewMoney(req.Price),
		TotalAmount:       orders.NewMoney(req.TotalAmount),
		OriginalTimestamp: req.Timestamp,
		FailedTimestamp:   w.nowFunc(),
		ErrorMessage:      message,
		ReceiveCount:      receiveCount,
		FailureReason:     failures.ReasonFulfillmentProcessingFailed,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, failures.ErrAlreadyRecorded):
		w.log.Info().Str("order_id", req.OrderID).Msg("failure already recorded")
		return nil
	case errors.Is(err, failures.ErrOrderNotUpdated):
		w.log.Warn().Str("order_id", req.OrderID).Msg("failure recorded; order status left unchanged")
		return nil
	default:
		return err
	}
}

func (w *Worker) getOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.StageTimeout)
	defer cancel()

	order, err := w.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderMissing, orderID)
	}
	return order, nil
}

func (w *Worker) fulfill(ctx context.Context, req queue.FulfillmentRequest) (orders.FulfillmentDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.StageTimeout)
	defer cancel()
	return w.fulfiller.Fulfill(ctx, req)
}

// markFulfilled retries a transient store failure once within the stage timeout.
func (w *Worker) markFulfilled(ctx context.Context, orderID string, at time.Time, details orders.FulfillmentDetails) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.StageTimeout)
	defer cancel()

	err := w.orders.MarkFulfilled(ctx, orderID, at, details)
	if err == nil || errors.Is(err, orders.ErrInvalidTransition) || errors.Is(err, orders.ErrNotFound) || ctx.Err() != nil {
		return err
	}
	w.log.Warn().Err(err).Str("order_id", orderID).Msg("mark fulfilled failed; retrying once")
	return w.orders.MarkFulfilled(ctx, orderID, at, details)
}
