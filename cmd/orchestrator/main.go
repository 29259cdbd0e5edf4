package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	zlog "github.com/rs/zerolog/log"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/config"
	"github.com/imrishuroy/go-order-lifecycle/internal/lifecycle"
	"github.com/imrishuroy/go-order-lifecycle/internal/logging"
	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/queue"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

const service = "order-orchestrator"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(service, cfg.LogLevel, cfg.RunLocal)
	if cfg.QueueURL == "" {
		log.Fatal().Msg("ORDER_QUEUE_URL is required")
	}

	clients, err := aws.NewAWSClients(context.Background(), cfg.Region, cfg.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init aws clients")
	}
	rec, err := metrics.Build(clients.CloudWatch, cfg.MetricsNamespace, service, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init metrics")
	}

	orch := lifecycle.New(
		validation.New(),
		orders.NewStore(clients.DynamoDB, cfg.OrdersTable),
		queue.NewProducer(aws.NewPublisher(clients.SQS, cfg.QueueURL)),
		cfg.StageTimeout,
		rec,
		log,
	)

	lambda.Start(newHandler(orch, log).Handle)
}
