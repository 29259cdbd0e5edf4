package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-order-lifecycle/internal/failures"
	"github.com/imrishuroy/go-order-lifecycle/internal/intake"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// Submitter accepts new orders.
type Submitter interface {
	Submit(ctx context.Context, req intake.SubmitRequest, idempotencyKey string) (intake.Acceptance, error)
}

// OrderReader reads order records.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

// FailureReader reads failure records.
type FailureReader interface {
	Get(ctx context.Context, orderID string) (*failures.Record, error)
}

// RunLookup reports in-process runs.
type RunLookup interface {
	Lookup(handle string) (intake.RunStatus, error)
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Intake   Submitter
	Orders   OrderReader
	Failures FailureReader
	Runs     RunLookup // nil when runs execute on Step Functions
	Log      zerolog.Logger
}

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.POST("/orders", func(c *gin.Context) {
		var req intake.SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid JSON in request body",
				"message": err.Error(),
			})
			return
		}

		acc, err := cfg.Intake.Submit(c.Request.Context(), req, c.GetHeader("Idempotency-Key"))
		if err != nil {
			var mf *intake.MissingFields
			if errors.As(err, &mf) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":    "Missing required fields",
					"required": intake.RequiredFields,
					"missing":  mf.Fields,
				})
				return
			}
			cfg.Log.Error().Err(err).Msg("submit order")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Internal server error",
				"message": err.Error(),
			})
			return
		}

		if acc.Replayed {
			c.Header("Idempotent-Replayed", "true")
		}
		c.Header("Location", fmt.Sprintf("/orders/%s", acc.OrderID))
		c.JSON(http.StatusAccepted, acc)
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		order, err := cfg.Orders.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			cfg.Log.Error().Err(err).Str("order_id", c.Param("id")).Msg("get order")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "message": err.Error()})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusOK, order)
	})

	r.GET("/orders/:id/failure", func(c *gin.Context) {
		rec, err := cfg.Failures.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			cfg.Log.Error().Err(err).Str("order_id", c.Param("id")).Msg("get failure record")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "message": err.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "No failure recorded for order"})
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	r.GET("/runs/:handle", func(c *gin.Context) {
		if cfg.Runs == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Run lookup is only available for in-process runs"})
			return
		}
		st, err := cfg.Runs.Lookup(c.Param("handle"))
		if errors.Is(err, intake.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	})
}

// RegisterHealthRoute registers GET /health.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
