package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/queue"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

// Validator checks a raw payload; failures are *validation.ValidationFailed.
type Validator interface {
	Validate(p validation.OrderPayload) (*validation.ValidatedOrder, error)
}

// OrderCreator performs the conditional create into the order record store.
type OrderCreator interface {
	CreateIfAbsent(ctx context.Context, order orders.Order) error
}

// Enqueuer sends fulfillment requests and returns the queue's message id.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.FulfillmentRequest) (string, error)
}

// Result is the outcome of one run. State is always terminal; Err is nil only
// for STORED and otherwise holds *validation.ValidationFailed or *StorageFailed.
type Result struct {
	OrderID   string                     `json:"orderId"`
	State     State                      `json:"status"`
	Order     *validation.ValidatedOrder `json:"order,omitempty"`
	MessageID string                     `json:"sqsMessageId,omitempty"`
	History   []Transition               `json:"history"`
	Timestamp time.Time                  `json:"timestamp"`
	Err       error                      `json:"-"`
}

// Stored reports whether the order was persisted and handed to fulfillment.
func (r Result) Stored() bool { return r.State == StateStored }

// Orchestrator drives one order through Validate -> Store -> Enqueue.
type Orchestrator struct {
	validator    Validator
	orders       OrderCreator
	queue        Enqueuer
	stageTimeout time.Duration
	metrics      metrics.Recorder
	log          zerolog.Logger
	nowFunc      func() time.Time
}

// New returns an Orchestrator. stageTimeout bounds each store and queue call.
func New(v Validator, store OrderCreator, q Enqueuer, stageTimeout time.Duration, rec metrics.Recorder, log zerolog.Logger) *Orchestrator {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if stageTimeout <= 0 {
		stageTimeout = 10 * time.Second
	}
	return &Orchestrator{
		validator:    v,
		orders:       store,
		queue:        q,
		stageTimeout: stageTimeout,
		metrics:      rec,
		log:          log,
		nowFunc:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one order run. Stages run sequentially and every failure branch
// returns a terminal Result instead of unwinding; nothing is retried here.
func (o *Orchestrator) Run(ctx context.Context, payload validation.OrderPayload) Result {
	log := o.log.With().Str("order_id", payload.OrderID).Logger()
	t := &tracker{state: StatePending, nowFunc: o.nowFunc}

	t.advance(StateValidating)
	validated, err := o.validator.Validate(payload)
	if err != nil {
		t.advance(StateValidationFailed)
		o.metrics.Count(ctx, metrics.EventValidationFailed)
		var vf *validation.ValidationFailed
		if errors.As(err, &vf) {
			log.Warn().Strs("validation_errors", vf.Errors).Msg("validation failed")
		} else {
			log.Warn().Err(err).Msg("validation failed")
		}
		return o.result(payload.OrderID, t, nil, "", err)
	}
	t.advance(StateValidated)
	log.Debug().Str("total", validated.TotalAmount.String()).Msg("order validated")

	t.advance(StateStoring)
	if err := o.store(ctx, *validated); err != nil {
		t.advance(StateStorageFailed)
		return o.storageFailed(ctx, log, t, *validated, StageStore, err)
	}

	msgID, err := o.enqueue(ctx, *validated)
	if err != nil {
		t.advance(StateStorageFailed)
		return o.storageFailed(ctx, log, t, *validated, StageEnqueue, err)
	}

	t.advance(StateStored)
	o.metrics.Count(ctx, metrics.EventStored)
	log.Info().Str("sqs_message_id", msgID).Msg("order stored and queued for fulfillment")
	return o.result(validated.OrderID, t, validated, msgID, nil)
}

func (o *Orchestrator) store(ctx context.Context, v validation.ValidatedOrder) error {
	ctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	validatedAt := v.ValidatedAt
	return o.orders.CreateIfAbsent(ctx, orders.Order{
		OrderID:          v.OrderID,
		CustomerID:       v.CustomerID,
		ProductID:        v.ProductID,
		Quantity:         v.Quantity,
		Price:            orders.NewMoney(v.Price),
		TotalAmount:      orders.NewMoney(v.TotalAmount),
		Status:           orders.StatusProcessing,
		CreatedAt:        v.Timestamp,
		ValidatedAt:      &validatedAt,
		ValidationStatus: v.ValidationStatus,
		Metadata:         v.Metadata,
	})
}

func (o *Orchestrator) enqueue(ctx context.Context, v validation.ValidatedOrder) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	return o.queue.Enqueue(ctx, queue.FulfillmentRequest{
		OrderID:     v.OrderID,
		CustomerID:  v.CustomerID,
		ProductID:   v.ProductID,
		Quantity:    v.Quantity,
		Price:       v.Price,
		TotalAmount: v.TotalAmount,
		Timestamp:   o.nowFunc(),
		Source:      queue.SourceOrderStorage,
	})
}

func (o *Orchestrator) storageFailed(ctx context.Context, log zerolog.Logger, t *tracker, v validation.ValidatedOrder, stage string, cause error) Result {
	sf := &StorageFailed{
		Stage:         stage,
		AlreadyExists: errors.Is(cause, orders.ErrAlreadyExists),
		Message:       cause.Error(),
		Order:         v,
		Timestamp:     o.nowFunc(),
		Cause:         cause,
	}
	o.metrics.Count(ctx, metrics.EventStorageFailed)
	if sf.AlreadyExists {
		log.Warn().Msg("order already stored; duplicate run ignored")
	} else {
		log.Error().Err(cause).Str("stage", stage).Msg("storage failed")
	}
	return o.result(v.OrderID, t, &v, "", sf)
}

func (o *Orchestrator) result(orderID string, t *tracker, v *validation.ValidatedOrder, msgID string, err error) Result {
	return Result{
		OrderID:   orderID,
		State:     t.state,
		Order:     v,
		MessageID: msgID,
		History:   t.history,
		Timestamp: o.nowFunc(),
		Err:       err,
	}
}
