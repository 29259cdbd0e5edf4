package metrics

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

// CloudWatch publishes one Count datapoint per event under a namespace, dimensioned by service.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	service   string
	log       zerolog.Logger
	nowFunc   func() time.Time
}

// NewCloudWatch returns a CloudWatch recorder.
func NewCloudWatch(client aws.CloudWatchAPI, namespace, service string, log zerolog.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		service:   service,
		log:       log,
		nowFunc:   time.Now,
	}
}

func (c *CloudWatch) Count(ctx context.Context, event Event) {
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String(string(event)),
				Timestamp:  sdkaws.Time(c.nowFunc()),
				Unit:       cwtypes.StandardUnitCount,
				Value:      sdkaws.Float64(1),
				Dimensions: []cwtypes.Dimension{
					{Name: sdkaws.String("Service"), Value: sdkaws.String(c.service)},
				},
			},
		},
	})
	if err != nil {
		c.log.Warn().Err(err).Str("metric", string(event)).Msg("put metric data failed")
	}
}
