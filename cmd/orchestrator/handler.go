package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-order-lifecycle/internal/lifecycle"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

type runner interface {
	Run(ctx context.Context, payload validation.OrderPayload) lifecycle.Result
}

// handler is invoked by the state machine with the payload built at intake.
type handler struct {
	orch runner
	log  zerolog.Logger
}

func newHandler(orch runner, log zerolog.Logger) *handler {
	return &handler{orch: orch, log: log}
}

// Handle returns the STORED result, or the run's typed error. The Lambda runtime
// reports the error's type name (ValidationFailed, StorageFailed) so the state
// machine can Catch on it.
func (h *handler) Handle(ctx context.Context, payload validation.OrderPayload) (lifecycle.Result, error) {
	res := h.orch.Run(ctx, payload)
	if res.Err != nil {
		h.log.Warn().
			Str("order_id", payload.OrderID).
			Str("state", string(res.State)).
			Err(res.Err).
			Msg("order run ended in failure")
		return lifecycle.Result{}, res.Err
	}
	return res, nil
}
