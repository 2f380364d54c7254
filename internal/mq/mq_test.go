package mq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/logbus"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// ackRecorder запоминает, как было подтверждено сообщение.
type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}
func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

type memoryAppender struct {
	entries []domain.LogEntry
	err     error
}

func (m *memoryAppender) Append(_ context.Context, e domain.LogEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func delivery(t *testing.T, body []byte) (amqp.Delivery, *ackRecorder) {
	t.Helper()
	ack := &ackRecorder{}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}, ack
}

func encode(t *testing.T, msg *Message) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestRoutingKeys(t *testing.T) {
	if got := LogRoutingKey(domain.LevelError); got != "log.error" {
		t.Errorf("LogRoutingKey = %s", got)
	}
	if got := ExecutionRoutingKey(domain.StateKilled); got != "execution.killed" {
		t.Errorf("ExecutionRoutingKey = %s", got)
	}
}

func TestConsumer_LogHandler(t *testing.T) {
	taskRunID := uuid.New()
	entry := domain.LogEntry{
		ExecutionID: uuid.New(),
		TaskRunID:   &taskRunID,
		TaskID:      "test",
		Level:       domain.LevelError,
		Message:     "myString",
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name        string
		body        []byte
		storeErr    error
		wantStored  int
		wantAck     bool
		wantRequeue bool
	}{
		{
			name:       "log entry stored",
			body:       encode(t, NewMessage(MessageTypeLogEntry, entry)),
			wantStored: 1,
			wantAck:    true,
		},
		{
			name:    "other message types acked",
			body:    encode(t, NewMessage(MessageTypeExecutionFinished, map[string]any{"state": "SUCCESS"})),
			wantAck: true,
		},
		{
			name: "unreadable body goes to DLQ",
			body: []byte("{not json"),
		},
		{
			name: "malformed payload goes to DLQ",
			body: []byte(`{"id":"1","type":"log.entry","payload":{"executionId":42}}`),
		},
		{
			name:        "store failure requeued",
			body:        encode(t, NewMessage(MessageTypeLogEntry, entry)),
			storeErr:    errors.New("db down"),
			wantRequeue: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryAppender{err: tt.storeErr}
			c := NewConsumer(nil, ConsumerConfig{
				Queue:   QueueLogsPersist,
				Handler: LogHandler(store),
				Logger:  discard,
			})

			d, ack := delivery(t, tt.body)
			c.handleDelivery(context.Background(), d)

			if len(store.entries) != tt.wantStored {
				t.Fatalf("stored %d entries, want %d", len(store.entries), tt.wantStored)
			}
			if ack.acked != tt.wantAck {
				t.Errorf("acked = %v, want %v", ack.acked, tt.wantAck)
			}
			if !tt.wantAck && (!ack.nacked || ack.requeue != tt.wantRequeue) {
				t.Errorf("nack = %v requeue = %v, want requeue %v", ack.nacked, ack.requeue, tt.wantRequeue)
			}
			if tt.wantStored == 1 {
				got := store.entries[0]
				if got.Message != entry.Message || *got.TaskRunID != taskRunID || !got.Timestamp.Equal(entry.Timestamp) {
					t.Errorf("entry mismatch: %+v", got)
				}
			}
		})
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	got     chan struct{}
}

func (p *recordingPublisher) PublishLogEntry(_ context.Context, e domain.LogEntry) error {
	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()
	p.got <- struct{}{}
	return nil
}

func TestForwardLogs(t *testing.T) {
	bus := logbus.New(logbus.Config{Logger: discard})
	defer bus.Close()

	pub := &recordingPublisher{got: make(chan struct{}, 2)}
	sub := ForwardLogs(bus, pub, discard)
	defer sub.Unsubscribe()

	execID := uuid.New()
	bus.Publish(domain.LogEntry{ExecutionID: execID, Level: domain.LevelInfo, Message: "one"})
	bus.Publish(domain.LogEntry{ExecutionID: execID, Level: domain.LevelWarn, Message: "two"})

	for i := 0; i < 2; i++ {
		select {
		case <-pub.got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for forwarded entry")
		}
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.entries[0].Message != "one" || pub.entries[1].Message != "two" {
		t.Errorf("forwarded out of order: %+v", pub.entries)
	}
}
