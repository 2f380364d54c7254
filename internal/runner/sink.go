package runner

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/logbus"
)

// taskLogSink публикует записи лога задачи в шину и дублирует их
// в лог процесса на уровне DEBUG.
type taskLogSink struct {
	bus         *logbus.Bus
	executionID uuid.UUID
	taskRunID   uuid.UUID
	taskID      string
	logger      *slog.Logger
}

func (r *Runner) newSink(tr domain.TaskRun, logger *slog.Logger) *taskLogSink {
	return &taskLogSink{
		bus:         r.bus,
		executionID: tr.ExecutionID,
		taskRunID:   tr.ID,
		taskID:      tr.TaskID,
		logger:      logger,
	}
}

// Emit реализует tasks.LogSink.
func (s *taskLogSink) Emit(level domain.Level, message string) {
	s.logger.Debug("task log", "level", level, "message", message)

	if s.bus == nil {
		return
	}
	taskRunID := s.taskRunID
	s.bus.Publish(domain.LogEntry{
		ExecutionID: s.executionID,
		TaskRunID:   &taskRunID,
		TaskID:      s.taskID,
		Level:       level,
		Message:     message,
		Timestamp:   time.Now(),
	})
}
