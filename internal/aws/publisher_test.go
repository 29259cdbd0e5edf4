package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type recordingSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (r *recordingSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.inputs = append(r.inputs, in)
	return &sqs.SendMessageOutput{MessageId: awsString("msg-1")}, nil
}

func (r *recordingSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (r *recordingSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return &sqs.DeleteMessageOutput{}, nil
}

func (r *recordingSQS) ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func TestPublisher_SendMessage(t *testing.T) {
	mock := &recordingSQS{}
	p := NewPublisher(mock, "https://sqs.local/queue")

	id, err := p.SendMessage(context.Background(), `{"orderId":"o1"}`, map[string]string{
		"order_id":    "o1",
		"customer_id": "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("expected message id msg-1, got %s", id)
	}
	if len(mock.inputs) != 1 {
		t.Fatalf("expected 1 send, got %d", len(mock.inputs))
	}
	in := mock.inputs[0]
	if *in.QueueUrl != "https://sqs.local/queue" {
		t.Fatalf("queue url mismatch: %s", *in.QueueUrl)
	}
	if _, ok := in.MessageAttributes["customer_id"]; ok {
		t.Fatalf("empty attribute should be skipped")
	}
	if got := *in.MessageAttributes["order_id"].StringValue; got != "o1" {
		t.Fatalf("order_id attribute mismatch: %s", got)
	}
}

func TestPublisher_SendMessage_Error(t *testing.T) {
	boom := errors.New("boom")
	p := NewPublisher(&recordingSQS{err: boom}, "q")

	if _, err := p.SendMessage(context.Background(), "{}", nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}
