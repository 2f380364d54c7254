package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Stencil/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeLogEntry          MessageType = "log.entry"
	MessageTypeExecutionFinished MessageType = "execution.finished"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage создаёт конверт с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// LogRoutingKey возвращает ключ маршрутизации записи: log.<level>.
func LogRoutingKey(level domain.Level) RoutingKey {
	return RoutingKey("log." + strings.ToLower(string(level)))
}

// ExecutionRoutingKey возвращает ключ маршрутизации execution: execution.<state>.
func ExecutionRoutingKey(state domain.State) RoutingKey {
	return RoutingKey("execution." + strings.ToLower(string(state)))
}

// Publisher публикует события в stencil.events.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishLogEntry публикует запись лога execution.
func (p *Publisher) PublishLogEntry(ctx context.Context, entry domain.LogEntry) error {
	return p.Publish(ctx, ExchangeEvents, LogRoutingKey(entry.Level), NewMessage(MessageTypeLogEntry, entry))
}

// Record публикует execution в финальном состоянии.
// Позволяет использовать Publisher как runner.Recorder.
func (p *Publisher) Record(ctx context.Context, exec *domain.Execution) error {
	return p.Publish(ctx, ExchangeEvents, ExecutionRoutingKey(exec.State), NewMessage(MessageTypeExecutionFinished, exec))
}
