package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

// Build returns the recorder for one binary. CloudWatch is used when cw is non-nil
// and Prometheus when reg is non-nil.
func Build(cw aws.CloudWatchAPI, namespace, service string, reg prometheus.Registerer, log zerolog.Logger) (Recorder, error) {
	var m Multi
	if cw != nil {
		m = append(m, NewCloudWatch(cw, namespace, service, log))
	}
	if reg != nil {
		p, err := NewPrometheus(reg)
		if err != nil {
			return nil, err
		}
		m = append(m, p)
	}
	if len(m) == 0 {
		return Nop{}, nil
	}
	return m, nil
}
