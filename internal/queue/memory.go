package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type memMessage struct {
	id           string
	body         []byte
	receiveCount int
}

// Memory is an in-process at-least-once queue with SQS-like receive counting and
// dead-lettering after maxReceiveCount deliveries. Redelivery is immediate.
type Memory struct {
	mu              sync.Mutex
	maxReceiveCount int
	ready           []*memMessage
	inflight        map[string]*memMessage
	dead            []Delivery
	sent            int
}

// NewMemory returns an empty queue.
func NewMemory(maxReceiveCount int) *Memory {
	if maxReceiveCount < 1 {
		maxReceiveCount = 1
	}
	return &Memory{
		maxReceiveCount: maxReceiveCount,
		inflight:        map[string]*memMessage{},
	}
}

// Enqueue marshals req and sends it.
func (m *Memory) Enqueue(ctx context.Context, req FulfillmentRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal fulfillment request: %w", err)
	}
	return m.Send(body), nil
}

// Send appends a raw body and returns its message id.
func (m *Memory) Send(body []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &memMessage{id: uuid.NewString(), body: body}
	m.ready = append(m.ready, msg)
	m.sent++
	return msg.id
}

// Receive hands out the next ready message, incrementing its receive count.
func (m *Memory) Receive() (Delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ready) == 0 {
		return Delivery{}, false
	}
	msg := m.ready[0]
	m.ready = m.ready[1:]
	msg.receiveCount++
	m.inflight[msg.id] = msg
	return Delivery{
		MessageID:     msg.id,
		Body:          msg.body,
		Attempt:       msg.receiveCount,
		ReceiptHandle: msg.id,
	}, true
}

// Ack removes an in-flight message.
func (m *Memory) Ack(d Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, d.ReceiptHandle)
}

// FailAndRedeliver returns the message to the queue, or dead-letters it once it has
// been received maxReceiveCount times. It reports whether the message was dead-lettered.
func (m *Memory) FailAndRedeliver(d Delivery) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.inflight[d.ReceiptHandle]
	if !ok {
		return false
	}
	delete(m.inflight, d.ReceiptHandle)
	if msg.receiveCount >= m.maxReceiveCount {
		m.dead = append(m.dead, Delivery{MessageID: msg.id, Body: msg.body, Attempt: msg.receiveCount})
		return true
	}
	m.ready = append(m.ready, msg)
	return false
}

// Drain feeds messages to h until the queue is empty or ctx is done.
func (m *Memory) Drain(ctx context.Context, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, ok := m.Receive()
		if !ok {
			return nil
		}
		if err := h(ctx, d); err != nil {
			m.FailAndRedeliver(d)
			continue
		}
		m.Ack(d)
	}
}

// DeadLetters returns the dead-lettered deliveries.
func (m *Memory) DeadLetters() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.dead...)
}

// Sent returns how many messages were ever sent.
func (m *Memory) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

// Len returns the number of ready plus in-flight messages.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready) + len(m.inflight)
}
