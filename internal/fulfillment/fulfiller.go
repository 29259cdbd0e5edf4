package fulfillment

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/queue"
)

// CarrierExpress is the carrier assigned by the simulated fulfiller.
const CarrierExpress = "EXPRESS_SHIPPING"

// ErrDeclined is returned by the simulated fulfiller on a failed draw.
var ErrDeclined = errors.New("fulfillment declined")

// Fulfiller performs the external fulfillment side effect for one order.
type Fulfiller interface {
	Fulfill(ctx context.Context, req queue.FulfillmentRequest) (orders.FulfillmentDetails, error)
}

// Simulated succeeds with probability successRate.
type Simulated struct {
	successRate float64
	nowFunc     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated returns a simulated fulfiller drawing from src. A nil src seeds from
// the clock.
func NewSimulated(successRate float64, src rand.Source) *Simulated {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Simulated{
		successRate: successRate,
		nowFunc:     func() time.Time { return time.Now().UTC() },
		rng:         rand.New(src),
	}
}

func (s *Simulated) Fulfill(ctx context.Context, req queue.FulfillmentRequest) (orders.FulfillmentDetails, error) {
	if err := ctx.Err(); err != nil {
		return orders.FulfillmentDetails{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() >= s.successRate {
		return orders.FulfillmentDetails{}, ErrDeclined
	}

	now := s.nowFunc()
	return orders.FulfillmentDetails{
		TrackingNumber:    s.trackingNumber(now),
		Carrier:           CarrierExpress,
		EstimatedDelivery: now.AddDate(0, 0, s.rng.Intn(7)+1),
	}, nil
}

// trackingNumber renders TRK<unix-ms><5 uppercase base36 chars>. Callers hold mu.
func (s *Simulated) trackingNumber(now time.Time) string {
	var b strings.Builder
	b.WriteString("TRK")
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	for i := 0; i < 5; i++ {
		b.WriteString(strings.ToUpper(strconv.FormatInt(int64(s.rng.Intn(36)), 36)))
	}
	return b.String()
}
