package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus counts events in a single counter vector labelled by event.
type Prometheus struct {
	events *prometheus.CounterVec
}

// NewPrometheus registers the lifecycle counter with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderflow",
		Name:      "lifecycle_events_total",
		Help:      "Order lifecycle events by outcome.",
	}, []string{"event"})
	if err := reg.Register(events); err != nil {
		return nil, err
	}
	return &Prometheus{events: events}, nil
}

func (p *Prometheus) Count(_ context.Context, event Event) {
	p.events.WithLabelValues(string(event)).Inc()
}
