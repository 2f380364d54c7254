package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeEvents Exchange = "stencil.events"
	ExchangeDLQ    Exchange = "stencil.dlq"
)

// Queues.
const (
	QueueLogsPersist        Queue = "logs.persist"
	QueueExecutionsFinished Queue = "executions.finished"
	QueueDLQLogs            Queue = "dlq.logs"
)

// Routing keys. Записи лога публикуются как log.<level>,
// execution — как execution.<state>.
const (
	RoutingKeyLogPattern       RoutingKey = "log.*"
	RoutingKeyExecutionPattern RoutingKey = "execution.*"
	RoutingKeyDLQLogs          RoutingKey = "logs"
)

// SetupTopology объявляет обменники, очереди и привязки. Повторный вызов
// безопасен: объявления идемпотентны.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

var exchanges = []struct {
	name Exchange
	kind string
}{
	{ExchangeEvents, "topic"},
	{ExchangeDLQ, "direct"},
}

var queues = []struct {
	name Queue
	args amqp.Table
}{
	// logs.persist — записи, которые не удалось сохранить, уходят в DLQ
	{QueueLogsPersist, amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQLogs),
	}},
	{QueueExecutionsFinished, nil},
	{QueueDLQLogs, nil},
}

var bindings = []struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}{
	{QueueLogsPersist, RoutingKeyLogPattern, ExchangeEvents},
	{QueueExecutionsFinished, RoutingKeyExecutionPattern, ExchangeEvents},
	{QueueDLQLogs, RoutingKeyDLQLogs, ExchangeDLQ},
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Stencil RabbitMQ Topology:

    stencil.events (topic)
    ├── logs.persist [routing: log.*]
    │       Consumer: stencil-api (log store)
    │       DLQ: dlq.logs
    └── executions.finished [routing: execution.*]
            Consumer: external subscribers

    stencil.dlq (direct)
    └── dlq.logs [routing: logs]
            Manual processing
  `
}
