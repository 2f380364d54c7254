package runner

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ошибки runner.
var (
	// ErrExecutionTimeout — execution не завершился за отведённое время.
	// Сам execution при этом продолжает выполняться.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrExecutionNotFound — execution с таким ID неизвестен runner.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionFinished — execution уже в финальном состоянии.
	ErrExecutionFinished = errors.New("execution already finished")

	// ErrInvalidInputs — входные параметры не прошли проверку.
	ErrInvalidInputs = errors.New("invalid execution inputs")

	// ErrRunnerStopped — runner остановлен и не принимает новые execution.
	ErrRunnerStopped = errors.New("runner stopped")
)

// ExecutionTimeoutError — ожидание execution превысило таймаут.
type ExecutionTimeoutError struct {
	ExecutionID uuid.UUID
	Timeout     time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("execution %s did not finish within %s", e.ExecutionID, e.Timeout)
}

func (e *ExecutionTimeoutError) Unwrap() error {
	return ErrExecutionTimeout
}

// TaskFailureError — причина FAILED task run: ошибка задачи, вычисления
// параметров или разрешения шаблона.
type TaskFailureError struct {
	TaskID string
	Err    error
}

func (e *TaskFailureError) Error() string {
	return fmt.Sprintf("task %s: %v", e.TaskID, e.Err)
}

func (e *TaskFailureError) Unwrap() error {
	return e.Err
}
