package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Stencil/internal/domain"
)

// Ошибки задач.
var (
	// ErrKindNotFound — тип задачи не найден в реестре.
	ErrKindNotFound = errors.New("task type not found")

	// ErrInvalidParams — невалидные параметры задачи.
	ErrInvalidParams = errors.New("invalid task params")

	// ErrTaskCancelled — выполнение задачи отменено.
	ErrTaskCancelled = errors.New("task execution cancelled")

	// ErrTaskFailed — задача завершилась с ошибкой по своей логике.
	ErrTaskFailed = errors.New("task failed")
)

// Kind — поведение одного типа задачи.
//
// Каждый тип (log, return, delay, http, transform, fail) реализует этот интерфейс.
// Kind получает уже вычисленные параметры: выражения {{ ... }}
// разрешает runner до вызова Execute.
type Kind interface {
	// Type возвращает тег типа, по которому задача выбирается в реестре.
	Type() string

	// Execute выполняет задачу.
	// Задача должна проверять ctx.Done() для отмены (kill).
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// LogSink принимает доменные записи лога задачи.
type LogSink interface {
	Emit(level domain.Level, message string)
}

// Request — входные данные для выполнения задачи.
type Request struct {
	// ExecutionID — execution, в котором выполняется задача.
	ExecutionID uuid.UUID

	// TaskRunID — task run этой задачи.
	TaskRunID uuid.UUID

	// TaskID — идентификатор задачи.
	TaskID string

	// Params — параметры с уже подставленными значениями.
	Params map[string]any

	// Logs — приёмник записей лога. Nil — записи отбрасываются.
	Logs LogSink

	// Timeout — таймаут выполнения задачи (0 — по умолчанию типа).
	Timeout time.Duration
}

// Log отправляет запись лога, если задан Logs.
func (r *Request) Log(level domain.Level, format string, args ...any) {
	if r.Logs == nil {
		return
	}
	r.Logs.Emit(level, fmt.Sprintf(format, args...))
}

// Response — результат выполнения задачи.
type Response struct {
	// Outputs — выходные данные, доступные как {{ outputs.<taskId>.<name> }}.
	Outputs map[string]any
}

// NewResponse создаёт новый Response с outputs.
func NewResponse(outputs map[string]any) *Response {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Response{
		Outputs: outputs,
	}
}

// EmptyResponse возвращает пустой Response.
func EmptyResponse() *Response {
	return &Response{
		Outputs: make(map[string]any),
	}
}

// cancelled оборачивает ошибку контекста.
func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %v", ErrTaskCancelled, ctx.Err())
}

// GetParamString извлекает строковое значение из параметров.
func GetParamString(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetParamInt извлекает числовое значение из параметров.
func GetParamInt(params map[string]any, key string) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetParamBool извлекает булево значение из параметров.
func GetParamBool(params map[string]any, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetParamMapString извлекает map[string]string из параметров.
func GetParamMapString(params map[string]any, key string) map[string]string {
	if v, ok := params[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
