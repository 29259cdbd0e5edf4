package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/config"
	"github.com/imrishuroy/go-order-lifecycle/internal/dynamotest"
)

type fakeSFN struct{ started int }

func (f *fakeSFN) StartExecution(_ context.Context, in *sfn.StartExecutionInput, _ ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error) {
	f.started++
	arn := "arn:aws:states:us-east-1:123456789012:execution:orders:" + *in.Name
	return &sfn.StartExecutionOutput{ExecutionArn: &arn}, nil
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.OrdersTable = "orders"
	cfg.FailedOrdersTable = "failed_orders"
	cfg.StateMachineARN = "arn:aws:states:us-east-1:123456789012:stateMachine:orders"
	cfg.RunLocal = true
	return cfg
}

func TestSetupApp_StepFunctions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	states := &fakeSFN{}
	clients := &aws.AWSClients{DynamoDB: dynamotest.New(), StepFunctions: states}

	a, err := setupApp(testConfig(), clients, prometheus.NewRegistry(), zerolog.Nop())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if a.local != nil {
		t.Fatal("no in-process runner expected when a state machine is configured")
	}

	req := httptest.NewRequest(http.MethodPost, "/orders",
		strings.NewReader(`{"customerId":"CUST-1234","productId":"PROD-5678","quantity":2,"price":19.99}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "execution:orders:order-") {
		t.Fatalf("expected execution arn as run handle, got %s", w.Body.String())
	}
	if states.started != 1 {
		t.Fatalf("expected one execution, got %d", states.started)
	}

	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "orderflow_lifecycle_events_total") {
		t.Fatalf("expected metrics, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/anything", nil))
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for run lookup, got %d", w.Code)
	}
}

func TestSetupApp_InProcessNeedsQueue(t *testing.T) {
	cfg := testConfig()
	cfg.StateMachineARN = ""
	clients := &aws.AWSClients{DynamoDB: dynamotest.New()}

	if _, err := setupApp(cfg, clients, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected an error without a queue url")
	}
}

func TestSetupApp_LambdaNeedsStateMachine(t *testing.T) {
	cfg := testConfig()
	cfg.StateMachineARN = ""
	cfg.RunLocal = false
	cfg.QueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/orders"
	clients := &aws.AWSClients{DynamoDB: dynamotest.New()}

	a, err := setupApp(cfg, clients, nil, zerolog.Nop())
	if err == nil {
		t.Fatalf("expected an error, got app with local runner=%v", a.local != nil)
	}
	if !strings.Contains(err.Error(), "STEP_FUNCTION_ARN") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSetupApp_LocalInProcess(t *testing.T) {
	cfg := testConfig()
	cfg.StateMachineARN = ""
	cfg.QueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/orders"
	clients := &aws.AWSClients{DynamoDB: dynamotest.New()}

	a, err := setupApp(cfg, clients, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if a.local == nil {
		t.Fatal("expected an in-process runner for local mode")
	}
}
