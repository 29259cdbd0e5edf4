package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/config"
	"github.com/imrishuroy/go-order-lifecycle/internal/failures"
	"github.com/imrishuroy/go-order-lifecycle/internal/handlers"
	"github.com/imrishuroy/go-order-lifecycle/internal/idempotency"
	"github.com/imrishuroy/go-order-lifecycle/internal/intake"
	"github.com/imrishuroy/go-order-lifecycle/internal/lifecycle"
	"github.com/imrishuroy/go-order-lifecycle/internal/logging"
	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/queue"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

const service = "order-api"

type app struct {
	router *gin.Engine
	local  *intake.LocalRunner // nil when runs start on Step Functions
}

func setupApp(cfg config.Config, clients *aws.AWSClients, reg *prometheus.Registry, log zerolog.Logger) (*app, error) {
	var cw aws.CloudWatchAPI
	if !cfg.RunLocal {
		cw = clients.CloudWatch
	}
	var promReg prometheus.Registerer
	if reg != nil {
		promReg = reg
	}
	rec, err := metrics.Build(cw, cfg.MetricsNamespace, service, promReg, log)
	if err != nil {
		return nil, err
	}

	ordersStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	failuresStore := failures.NewStore(clients.DynamoDB, cfg.FailedOrdersTable, ordersStore)

	a := &app{}
	var runner intake.Runner
	if cfg.StateMachineARN != "" {
		runner = intake.NewStepFunctionsRunner(clients.StepFunctions, cfg.StateMachineARN)
	} else {
		// Lambda freezes the environment after the response, so detached runs only work locally.
		if !cfg.RunLocal {
			return nil, errors.New("STEP_FUNCTION_ARN is required unless RUN_LOCAL=true")
		}
		if cfg.QueueURL == "" {
			return nil, errors.New("ORDER_QUEUE_URL is required when runs execute in-process")
		}
		producer := queue.NewProducer(aws.NewPublisher(clients.SQS, cfg.QueueURL))
		orch := lifecycle.New(validation.New(), ordersStore, producer, cfg.StageTimeout, rec, log)
		a.local = intake.NewLocalRunner(orch, 3*cfg.StageTimeout, log)
		runner = a.local
	}

	var keys intake.KeyStore
	if cfg.IdempotencyTable != "" {
		keys = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	}

	hcfg := handlers.HandlerConfig{
		Intake:   intake.NewCoordinator(runner, keys, rec, log),
		Orders:   ordersStore,
		Failures: failuresStore,
		Log:      log,
	}
	if a.local != nil {
		hcfg.Runs = a.local
	}

	r := gin.New()
	r.Use(gin.Recovery())
	handlers.RegisterHealthRoute(r)
	handlers.RegisterOrdersRoutes(r, hcfg)
	if reg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	a.router = r
	return a, nil
}

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

	var reg *prometheus.Registry
	if cfg.RunLocal {
		reg = prometheus.NewRegistry()
	}

	a, err := setupApp(cfg, clients, reg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up api")
	}

	if cfg.RunLocal {
		runLocal(cfg.LocalAddr, a, log)
		return
	}

	adapter := ginadapter.New(a.router)
	lambda.Start(adapter.ProxyWithContext)
}

// runLocal serves HTTP until SIGINT/SIGTERM, then waits for in-process runs.
func runLocal(addr string, a *app, log zerolog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: a.router}
	go func() {
		log.Info().Str("addr", addr).Msg("running local server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to run local server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	if a.local != nil {
		a.local.Wait()
	}
}
