package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

// Producer sends fulfillment requests to SQS.
type Producer struct {
	publisher *aws.Publisher
}

// NewProducer returns a Producer bound to publisher's queue.
func NewProducer(publisher *aws.Publisher) *Producer {
	return &Producer{publisher: publisher}
}

// Enqueue sends req and returns the SQS message id.
func (p *Producer) Enqueue(ctx context.Context, req FulfillmentRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal fulfillment request: %w", err)
	}
	return p.publisher.SendMessage(ctx, string(body), req.Attributes())
}

// PollerConfig tunes the local SQS consumer.
type PollerConfig struct {
	QueueURL    string
	Concurrency int           // in-flight messages per batch
	WaitTime    time.Duration // long-poll wait, at most 20s
	Backoff     BackoffConfig // visibility delay before redelivery
}

// Poller long-polls SQS and hands each message to a Handler. It stands in for the
// Lambda event source mapping when running locally: success deletes the message,
// failure shortens its visibility so SQS redelivers it (and eventually dead-letters
// it through the queue's redrive policy).
type Poller struct {
	client aws.SQSAPI
	cfg    PollerConfig
	log    zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPoller returns a Poller.
func NewPoller(client aws.SQSAPI, cfg PollerConfig, log zerolog.Logger) *Poller {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.WaitTime <= 0 || cfg.WaitTime > 20*time.Second {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.Backoff.BaseDelay == 0 && cfg.Backoff.MaxDelay == 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Poller{
		client: client,
		cfg:    cfg,
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context, h Handler) error {
	p.log.Info().Str("queue_url", p.cfg.QueueURL).Int("concurrency", p.cfg.Concurrency).Msg("poller started")
	for {
		if ctx.Err() != nil {
			p.log.Info().Msg("poller stopping")
			return nil
		}
		if _, err := p.PollOnce(ctx, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error().Err(err).Msg("poll failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// PollOnce receives one batch and processes it with bounded concurrency.
// It returns the number of messages received.
func (p *Poller) PollOnce(ctx context.Context, h Handler) (int, error) {
	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &p.cfg.QueueURL,
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     int32(p.cfg.WaitTime / time.Second),
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("receive message: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, msg := range out.Messages {
		d := toDelivery(msg)
		g.Go(func() error {
			p.handle(gctx, h, d)
			return nil
		})
	}
	_ = g.Wait()
	return len(out.Messages), nil
}

func (p *Poller) handle(ctx context.Context, h Handler, d Delivery) {
	log := p.log.With().Str("message_id", d.MessageID).Int("attempt", d.Attempt).Logger()

	if err := h(ctx, d); err != nil {
		delay := p.nextDelay(d.Attempt)
		_, verr := p.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          &p.cfg.QueueURL,
			ReceiptHandle:     &d.ReceiptHandle,
			VisibilityTimeout: int32(delay / time.Second),
		})
		if verr != nil {
			log.Warn().Err(verr).Msg("change visibility failed; message reappears after the queue default")
		}
		log.Warn().Err(err).Dur("redeliver_in", delay).Msg("message failed")
		return
	}

	if _, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &p.cfg.QueueURL,
		ReceiptHandle: &d.ReceiptHandle,
	}); err != nil {
		// the message will be redelivered; handlers are idempotent
		log.Error().Err(err).Msg("delete message failed")
	}
}

func (p *Poller) nextDelay(attempt int) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return NextDelay(attempt, p.cfg.Backoff, p.rng)
}

func toDelivery(msg sqstypes.Message) Delivery {
	d := Delivery{Attempt: 1}
	if msg.MessageId != nil {
		d.MessageID = *msg.MessageId
	}
	if msg.Body != nil {
		d.Body = []byte(*msg.Body)
	}
	if msg.ReceiptHandle != nil {
		d.ReceiptHandle = *msg.ReceiptHandle
	}
	d.Attempt = ReceiveCount(msg.Attributes)
	return d
}

// ReceiveCount reads ApproximateReceiveCount from SQS system attributes, defaulting to 1.
func ReceiveCount(attrs map[string]string) int {
	n, err := strconv.Atoi(attrs[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
