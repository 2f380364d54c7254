package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/logbus"
)

const forwardTimeout = 5 * time.Second

// LogPublisher публикует записи лога во внешнюю очередь.
type LogPublisher interface {
	PublishLogEntry(ctx context.Context, entry domain.LogEntry) error
}

// LogAppender сохраняет записи лога.
type LogAppender interface {
	Append(ctx context.Context, entry domain.LogEntry) error
}

// ForwardLogs подписывает pub на шину: каждая запись публикуется
// в stencil.events. Ошибки публикации логируются, запись теряется.
func ForwardLogs(bus *logbus.Bus, pub LogPublisher, logger *slog.Logger) *logbus.Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	return bus.Subscribe(func(entry domain.LogEntry) {
		ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
		defer cancel()

		if err := pub.PublishLogEntry(ctx, entry); err != nil {
			logger.Warn("failed to forward log entry",
				"execution_id", entry.ExecutionID,
				"error", err,
			)
		}
	})
}

// LogHandler возвращает Handler, сохраняющий записи из очереди logs.persist.
// Сообщения других типов подтверждаются без обработки.
func LogHandler(store LogAppender) Handler {
	return func(ctx context.Context, msg *Message) error {
		if msg.Type != MessageTypeLogEntry {
			return nil
		}

		entry, err := ParsePayload[domain.LogEntry](msg)
		if err != nil {
			return fmt.Errorf("parse log entry: %w", err)
		}
		return store.Append(ctx, entry)
	}
}
