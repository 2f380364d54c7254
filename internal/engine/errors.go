package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Stencil/internal/domain"
)

// Ошибки валидации Flow и Template.
var (
	// ErrEmptyTasks — flow или шаблон не содержит задач.
	ErrEmptyTasks = errors.New("no tasks defined")

	// ErrEmptyFlowID — у flow или шаблона нет id или namespace.
	ErrEmptyFlowID = errors.New("id and namespace are required")

	// ErrEmptyTaskID — задача не имеет ID.
	ErrEmptyTaskID = errors.New("task has empty ID")

	// ErrDuplicateTaskID — несколько задач с одинаковым ID.
	ErrDuplicateTaskID = errors.New("duplicate task ID")

	// ErrUnknownTaskType — неизвестный тип задачи.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrMissingDependency — задача зависит от несуществующей или более поздней задачи.
	ErrMissingDependency = errors.New("task depends on unknown task")

	// ErrSelfDependency — задача зависит от самой себя.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrEmptyTemplateRef — включение без templateNamespace или templateId.
	ErrEmptyTemplateRef = errors.New("template reference is incomplete")

	// ErrInvalidInputDef — некорректное определение входного параметра.
	ErrInvalidInputDef = errors.New("invalid input definition")

	// ErrInvalidParallelism — отрицательный parallelism.
	ErrInvalidParallelism = errors.New("invalid parallelism")

	// ErrInvalidTrigger — некорректный триггер.
	ErrInvalidTrigger = errors.New("invalid trigger")
)

// Ошибки вычисления выражений.
var (
	// ErrExpressionSyntax — некорректный {{ ... }} блок.
	ErrExpressionSyntax = errors.New("expression syntax error")

	// ErrUnresolvedBinding — путь не найден ни в одном scope.
	ErrUnresolvedBinding = errors.New("unresolved binding")
)

// Ошибки разрешения шаблонов.
var (
	// ErrCycleDetected — шаблон включает сам себя (напрямую или транзитивно).
	ErrCycleDetected = errors.New("template cycle detected")
)

// Ошибки входных параметров execution.
var (
	// ErrMissingInput — не передан обязательный входной параметр.
	ErrMissingInput = errors.New("missing required input")

	// ErrInvalidInput — значение не приводится к объявленному типу.
	ErrInvalidInput = errors.New("invalid input value")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	TaskID  string // ID задачи, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.TaskID != "" {
		return "task " + e.TaskID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(taskID, field, message string, err error) *ValidationError {
	return &ValidationError{
		TaskID:  taskID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// UnresolvedBindingError — выражение ссылается на путь, которого нет
// ни в одном из вложенных scope.
type UnresolvedBindingError struct {
	Path string
}

func (e *UnresolvedBindingError) Error() string {
	return fmt.Sprintf("Can't resolve binding '%s'", e.Path)
}

func (e *UnresolvedBindingError) Unwrap() error {
	return ErrUnresolvedBinding
}

// CycleDetectedError — цепочка включений шаблонов замкнулась.
//
// Chain содержит ключи от первого включения до повторного, включительно.
type CycleDetectedError struct {
	Chain []domain.TemplateKey
}

func (e *CycleDetectedError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, k := range e.Chain {
		parts[i] = k.String()
	}
	return "Cycle detected in flow templates: " + strings.Join(parts, " -> ")
}

func (e *CycleDetectedError) Unwrap() error {
	return ErrCycleDetected
}

// InputError — ошибка входного параметра execution.
type InputError struct {
	Name    string
	Message string
	Err     error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %q: %s", e.Name, e.Message)
}

func (e *InputError) Unwrap() error {
	return e.Err
}
