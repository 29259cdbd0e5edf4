package main

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-order-lifecycle/internal/queue"
)

type messageWorker interface {
	ProcessMessage(ctx context.Context, body []byte, attempt int) error
	ProcessDeadLetter(ctx context.Context, body []byte, receiveCount int) error
}

// Processor handles SQS batches for the fulfillment worker. Failed records are
// reported individually so successful siblings are not redelivered.
type Processor struct {
	worker        messageWorker
	deadLetterARN string
	concurrency   int
	log           zerolog.Logger
}

// NewProcessor returns a Processor. Records whose event source is deadLetterARN are
// treated as dead letters.
func NewProcessor(w messageWorker, deadLetterARN string, concurrency int, log zerolog.Logger) *Processor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Processor{
		worker:        w,
		deadLetterARN: deadLetterARN,
		concurrency:   concurrency,
		log:           log,
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var (
		mu     sync.Mutex
		failed []events.SQSBatchItemFailure
		g      errgroup.Group
	)
	g.SetLimit(p.concurrency)

	for _, rec := range ev.Records {
		g.Go(func() error {
			if err := p.processMessage(ctx, rec); err != nil {
				mu.Lock()
				failed = append(failed, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.log.Info().Int("records", len(ev.Records)).Int("failed", len(failed)).Msg("batch processed")
	return events.SQSEventResponse{BatchItemFailures: failed}, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	attempt := queue.ReceiveCount(rec.Attributes)
	if p.deadLetterARN != "" && rec.EventSourceARN == p.deadLetterARN {
		return p.worker.ProcessDeadLetter(ctx, []byte(rec.Body), attempt)
	}
	return p.worker.ProcessMessage(ctx, []byte(rec.Body), attempt)
}
