package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level — уровень LogEntry.
type Level string

const (
	LevelTrace Level = "TRACE"
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel разбирает уровень без учёта регистра.
// Неизвестное значение → INFO, false.
func ParseLevel(s string) (Level, bool) {
	switch l := Level(strings.ToUpper(strings.TrimSpace(s))); l {
	case LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, true
	case "WARNING":
		return LevelWarn, true
	default:
		return LevelInfo, false
	}
}

var levelRank = map[Level]int{
	LevelTrace: 0,
	LevelDebug: 1,
	LevelInfo:  2,
	LevelWarn:  3,
	LevelError: 4,
}

// AtLeast возвращает true, если уровень не ниже min.
func (l Level) AtLeast(min Level) bool {
	return levelRank[l] >= levelRank[min]
}

// LogEntry — структурированная запись лога, созданная во время execution.
//
// LogEntry — доменное событие, доставляемое наблюдателям через logbus.
// Не путать с логами процесса (slog).
type LogEntry struct {
	// ExecutionID — execution, к которому относится запись.
	ExecutionID uuid.UUID `json:"executionId"`

	// TaskRunID — task run, если запись относится к задаче.
	TaskRunID *uuid.UUID `json:"taskRunId,omitempty"`

	// TaskID — идентификатор задачи (для удобства чтения).
	TaskID string `json:"taskId,omitempty"`

	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
