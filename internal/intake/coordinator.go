// Package intake accepts new orders, assigns their identifiers and starts their
// lifecycle runs without waiting for them.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-order-lifecycle/internal/idempotency"
	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

const (
	StatusAccepted    = "ACCEPTED"
	acceptedMessage   = "Order received and processing started"
	inProgressMessage = "A request with this Idempotency-Key is already being processed"
)

// SubmitRequest is the caller's order. Pointer fields distinguish absent from zero:
// only absent fields are rejected here, zero values are left to validation.
type SubmitRequest struct {
	CustomerID *string          `json:"customerId"`
	ProductID  *string          `json:"productId"`
	Quantity   *Quantity        `json:"quantity"`
	Price      *decimal.Decimal `json:"price"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
}

func (r SubmitRequest) missing() []string {
	var out []string
	if r.CustomerID == nil {
		out = append(out, "customerId")
	}
	if r.ProductID == nil {
		out = append(out, "productId")
	}
	if r.Quantity == nil {
		out = append(out, "quantity")
	}
	if r.Price == nil {
		out = append(out, "price")
	}
	return out
}

// Acceptance acknowledges a submitted order.
type Acceptance struct {
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	RunHandle string `json:"runHandle,omitempty"`
	Message   string `json:"message"`

	// Replayed is set when the acceptance belongs to an earlier request with the
	// same Idempotency-Key.
	Replayed bool `json:"-"`
}

// KeyStore claims Idempotency-Keys. *idempotency.Store satisfies it.
type KeyStore interface {
	CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Coordinator is the intake boundary.
type Coordinator struct {
	runner  Runner
	keys    KeyStore // nil disables Idempotency-Key handling
	metrics metrics.Recorder
	log     zerolog.Logger
	newID   func() string
	nowFunc func() time.Time
}

// NewCoordinator returns a Coordinator. keys may be nil.
func NewCoordinator(runner Runner, keys KeyStore, rec metrics.Recorder, log zerolog.Logger) *Coordinator {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Coordinator{
		runner:  runner,
		keys:    keys,
		metrics: rec,
		log:     log,
		newID:   uuid.NewString,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Submit checks the request for required fields, assigns an order id and starts a
// run. It returns as soon as the run has been started.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest, idempotencyKey string) (Acceptance, error) {
	if missing := req.missing(); len(missing) > 0 {
		return Acceptance{}, &MissingFields{Fields: missing}
	}

	orderID := c.newID()
	log := c.log.With().Str("order_id", orderID).Logger()

	if idempotencyKey != "" && c.keys != nil {
		created, err := c.keys.CreateIfNotExists(ctx, idempotencyKey, orderID)
		if err != nil {
			return Acceptance{}, fmt.Errorf("claim idempotency key: %w", err)
		}
		if !created {
			return c.replay(ctx, idempotencyKey)
		}
	}

	payload := validation.OrderPayload{
		OrderID:    orderID,
		CustomerID: *req.CustomerID,
		ProductID:  *req.ProductID,
		Quantity:   int(*req.Quantity),
		Price:      *req.Price,
		Status:     string(orders.StatusPending),
		Timestamp:  c.nowFunc(),
		Metadata:   req.Metadata,
	}

	handle, err := c.runner.Start(ctx, payload)
	if err != nil {
		if idempotencyKey != "" && c.keys != nil {
			if mErr := c.keys.MarkFailed(ctx, idempotencyKey, fmt.Sprintf("run_start_failed: %v", err)); mErr != nil {
				log.Error().Err(mErr).Msg("failed to release idempotency key")
			}
		}
		log.Error().Err(err).Msg("failed to start order run")
		return Acceptance{}, fmt.Errorf("start order run: %w", err)
	}

	acc := Acceptance{
		OrderID:   orderID,
		Status:    StatusAccepted,
		RunHandle: handle,
		Message:   acceptedMessage,
	}

	if idempotencyKey != "" && c.keys != nil {
		body, _ := json.Marshal(acc)
		if err := c.keys.MarkDone(ctx, idempotencyKey, string(body), http.StatusAccepted); err != nil {
			// The run is already started; a later replay sees IN_PROGRESS instead of this body.
			log.Warn().Err(err).Msg("failed to record idempotent response")
		}
	}

	c.metrics.Count(ctx, metrics.EventAccepted)
	log.Info().Str("run_handle", handle).Msg("order accepted")
	return acc, nil
}

func (c *Coordinator) replay(ctx context.Context, key string) (Acceptance, error) {
	rec, err := c.keys.Get(ctx, key)
	if err != nil {
		return Acceptance{}, fmt.Errorf("read idempotency key: %w", err)
	}
	if rec == nil {
		return Acceptance{}, errors.New("idempotency key held but no record found")
	}

	switch rec.Status {
	case idempotency.StatusDone:
		var acc Acceptance
		if err := json.Unmarshal([]byte(rec.ResponseBody), &acc); err != nil {
			return Acceptance{}, fmt.Errorf("decode stored acceptance: %w", err)
		}
		acc.Replayed = true
		return acc, nil
	case idempotency.StatusInProgress:
		return Acceptance{
			OrderID:  rec.OrderID,
			Status:   StatusAccepted,
			Message:  inProgressMessage,
			Replayed: true,
		}, nil
	default:
		// FAILED keys are reclaimable, so losing the race to another retry lands here.
		return Acceptance{}, fmt.Errorf("idempotency key in unexpected status %q", rec.Status)
	}
}
