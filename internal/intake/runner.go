package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/lifecycle"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

// Runner starts a lifecycle run without waiting for it and returns a handle to it.
type Runner interface {
	Start(ctx context.Context, payload validation.OrderPayload) (string, error)
}

// StepFunctionsRunner starts one state machine execution per order. The handle is
// the execution ARN.
type StepFunctionsRunner struct {
	client          aws.SFNAPI
	stateMachineARN string
	nowFunc         func() time.Time
}

// NewStepFunctionsRunner returns a runner bound to one state machine.
func NewStepFunctionsRunner(client aws.SFNAPI, stateMachineARN string) *StepFunctionsRunner {
	return &StepFunctionsRunner{
		client:          client,
		stateMachineARN: stateMachineARN,
		nowFunc:         time.Now,
	}
}

// Start begins an execution named order-<orderId>-<unix-ms>.
func (r *StepFunctionsRunner) Start(ctx context.Context, payload validation.OrderPayload) (string, error) {
	input, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal run input: %w", err)
	}
	name := fmt.Sprintf("order-%s-%d", payload.OrderID, r.nowFunc().UnixMilli())

	out, err := r.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: &r.stateMachineARN,
		Name:            &name,
		Input:           awsString(string(input)),
	})
	if err != nil {
		return "", fmt.Errorf("start execution: %w", err)
	}
	if out.ExecutionArn == nil {
		return "", fmt.Errorf("start execution %s: no execution arn returned", name)
	}
	return *out.ExecutionArn, nil
}

// Orchestrator runs one order through the lifecycle.
type Orchestrator interface {
	Run(ctx context.Context, payload validation.OrderPayload) lifecycle.Result
}

// RunStatus is what LocalRunner knows about one run.
type RunStatus struct {
	Handle  string            `json:"runHandle"`
	OrderID string            `json:"orderId"`
	Done    bool              `json:"done"`
	EndedAt time.Time         `json:"endedAt,omitempty"`
	Result  *lifecycle.Result `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Finished runs stay visible to Lookup for this long, and at most this many are kept.
const (
	DefaultRetention   = 15 * time.Minute
	DefaultMaxFinished = 1000
)

// LocalRunner runs the orchestrator in a goroutine of the current process. Runs are
// detached from the caller's context so a finished HTTP request does not cancel them.
// Finished runs are evicted after the retention window or once more than maxFinished
// have ended, oldest first.
type LocalRunner struct {
	orch        Orchestrator
	timeout     time.Duration
	retention   time.Duration
	maxFinished int
	log         zerolog.Logger
	nowFunc     func() time.Time

	mu       sync.Mutex
	runs     map[string]*RunStatus
	finished []string // handles in the order they ended
	wg       sync.WaitGroup
}

// NewLocalRunner returns a runner whose runs are each bounded by timeout.
func NewLocalRunner(orch Orchestrator, timeout time.Duration, log zerolog.Logger) *LocalRunner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalRunner{
		orch:        orch,
		timeout:     timeout,
		retention:   DefaultRetention,
		maxFinished: DefaultMaxFinished,
		log:         log,
		nowFunc:     time.Now,
		runs:        map[string]*RunStatus{},
	}
}

func (r *LocalRunner) Start(ctx context.Context, payload validation.OrderPayload) (string, error) {
	handle := "local-" + uuid.NewString()

	r.mu.Lock()
	r.evictLocked()
	r.runs[handle] = &RunStatus{Handle: handle, OrderID: payload.OrderID}
	r.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(runCtx, r.timeout)
		defer cancel()

		res := r.orch.Run(ctx, payload)

		r.mu.Lock()
		st := r.runs[handle]
		st.Done = true
		st.EndedAt = r.nowFunc()
		st.Result = &res
		if res.Err != nil {
			st.Error = res.Err.Error()
		}
		r.finished = append(r.finished, handle)
		r.evictLocked()
		r.mu.Unlock()

		r.log.Debug().
			Str("run_handle", handle).
			Str("order_id", payload.OrderID).
			Str("state", string(res.State)).
			Msg("local run finished")
	}()

	return handle, nil
}

// Lookup returns a copy of the status of a run.
func (r *LocalRunner) Lookup(handle string) (RunStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked()
	st, ok := r.runs[handle]
	if !ok {
		return RunStatus{}, ErrRunNotFound
	}
	return *st, nil
}

// evictLocked drops finished runs past the retention window or over the cap.
// Callers hold mu.
func (r *LocalRunner) evictLocked() {
	cutoff := r.nowFunc().Add(-r.retention)
	n := 0
	for n < len(r.finished) {
		st := r.runs[r.finished[n]]
		if len(r.finished)-n <= r.maxFinished && st.EndedAt.After(cutoff) {
			break
		}
		delete(r.runs, r.finished[n])
		n++
	}
	if n > 0 {
		r.finished = append(r.finished[:0], r.finished[n:]...)
	}
}

// Wait blocks until every started run has finished.
func (r *LocalRunner) Wait() {
	r.wg.Wait()
}

func awsString(s string) *string { return &s }
