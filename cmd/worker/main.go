package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	zlog "github.com/rs/zerolog/log"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/config"
	"github.com/imrishuroy/go-order-lifecycle/internal/failures"
	"github.com/imrishuroy/go-order-lifecycle/internal/fulfillment"
	"github.com/imrishuroy/go-order-lifecycle/internal/logging"
	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/queue"
)

const service = "fulfillment-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(service, cfg.LogLevel, cfg.RunLocal)

	clients, err := aws.NewAWSClients(context.Background(), cfg.Region, cfg.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init aws clients")
	}

	var cw aws.CloudWatchAPI
	if !cfg.RunLocal {
		cw = clients.CloudWatch
	}
	rec, err := metrics.Build(cw, cfg.MetricsNamespace, service, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init metrics")
	}

	ordersStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	worker := fulfillment.NewWorker(
		ordersStore,
		failures.NewStore(clients.DynamoDB, cfg.FailedOrdersTable, ordersStore),
		fulfillment.NewSimulated(cfg.FulfillmentSuccessRate, nil),
		fulfillment.Config{MaxReceiveCount: cfg.MaxReceiveCount, StageTimeout: cfg.StageTimeout},
		rec,
		log,
	)

	// RUN_LOCAL=true long-polls the queue instead of waiting for Lambda to deliver batches.
	if cfg.RunLocal {
		if cfg.QueueURL == "" {
			log.Fatal().Msg("ORDER_QUEUE_URL is required for local polling")
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		poller := queue.NewPoller(clients.SQS, queue.PollerConfig{
			QueueURL:    cfg.QueueURL,
			Concurrency: cfg.WorkerConcurrency,
		}, log)
		if err := poller.Run(ctx, worker.Handle); err != nil {
			log.Error().Err(err).Msg("poller stopped")
		}
		return
	}

	p := NewProcessor(worker, cfg.DeadLetterARN, cfg.WorkerConcurrency, log)
	lambda.Start(p.Handle)
}
