package engine

import (
	"fmt"

	"github.com/shaiso/Stencil/internal/domain"
)

// TypeChecker сообщает, зарегистрирован ли тип задачи.
// nil означает, что проверка типов отключена.
type TypeChecker func(taskType string) bool

// Validate выполняет полную валидацию Flow.
//
// Проверяет:
//   - id и namespace
//   - наличие задач
//   - дискриминатор и поля каждой задачи
//   - уникальность ID задач верхнего уровня
//   - известность типов (если known != nil)
//   - dependsOn ссылается на более раннюю задачу
//   - синтаксис выражений в params и args
//   - входные параметры и триггеры
func Validate(flow *domain.Flow, known TypeChecker) error {
	if flow == nil {
		return ErrEmptyTasks
	}
	if flow.ID == "" || flow.Namespace == "" {
		return NewValidationError("", "id", "flow id and namespace are required", ErrEmptyFlowID)
	}
	if len(flow.Tasks) == 0 {
		return ErrEmptyTasks
	}
	if flow.Parallelism < 0 {
		return NewValidationError("", "parallelism", "parallelism must not be negative", ErrInvalidParallelism)
	}

	if err := validateTasks(flow.Tasks, known); err != nil {
		return err
	}
	if err := validateInputs(flow.Inputs); err != nil {
		return err
	}
	return validateTriggers(flow.Triggers)
}

// ValidateTemplate валидирует шаблон перед сохранением.
func ValidateTemplate(tmpl *domain.Template, known TypeChecker) error {
	if tmpl == nil {
		return ErrEmptyTasks
	}
	if tmpl.ID == "" || tmpl.Namespace == "" {
		return NewValidationError("", "id", "template id and namespace are required", ErrEmptyFlowID)
	}
	if len(tmpl.Tasks) == 0 {
		return ErrEmptyTasks
	}
	return validateTasks(tmpl.Tasks, known)
}

// validateTasks проверяет список задач одного уровня.
func validateTasks(tasks []domain.TaskDef, known TypeChecker) error {
	taskIDs := make(map[string]bool)

	for i := range tasks {
		task := &tasks[i]

		if err := ValidateTask(task, taskIDs, known); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTask валидирует одну задачу.
// taskIDs — ID уже встреченных задач (для уникальности и dependsOn).
func ValidateTask(task *domain.TaskDef, taskIDs map[string]bool, known TypeChecker) error {
	if task.ID == "" {
		return NewValidationError("", "id", "task has empty ID", ErrEmptyTaskID)
	}

	if err := task.CheckKind(); err != nil {
		return NewValidationError(task.ID, "kind", err.Error(), err)
	}

	if taskIDs[task.ID] {
		return NewValidationError(task.ID, "id",
			fmt.Sprintf("duplicate task ID: %s", task.ID), ErrDuplicateTaskID)
	}

	if task.IsInclude() {
		if err := validateInclude(task); err != nil {
			return err
		}
	} else {
		if err := validatePlain(task, taskIDs, known); err != nil {
			return err
		}
	}

	taskIDs[task.ID] = true
	return nil
}

func validatePlain(task *domain.TaskDef, taskIDs map[string]bool, known TypeChecker) error {
	if task.Type == "" {
		return NewValidationError(task.ID, "type", "task has empty type", ErrUnknownTaskType)
	}
	if known != nil && !known(task.Type) {
		return NewValidationError(task.ID, "type",
			fmt.Sprintf("unknown task type: %s", task.Type), ErrUnknownTaskType)
	}

	for _, dep := range task.DependsOn {
		if dep == task.ID {
			return NewValidationError(task.ID, "dependsOn", "task depends on itself", ErrSelfDependency)
		}
		if !taskIDs[dep] {
			return NewValidationError(task.ID, "dependsOn",
				fmt.Sprintf("depends on unknown or later task: %s", dep), ErrMissingDependency)
		}
	}

	if _, err := ValueReferences(task.Params); err != nil {
		return NewValidationError(task.ID, "params", err.Error(), err)
	}
	return nil
}

func validateInclude(task *domain.TaskDef) error {
	if task.TemplateNamespace == "" || task.TemplateID == "" {
		return NewValidationError(task.ID, "templateId",
			"templateNamespace and templateId are required", ErrEmptyTemplateRef)
	}
	for name, expr := range task.Args {
		if _, err := References(expr); err != nil {
			return NewValidationError(task.ID, "args."+name, err.Error(), err)
		}
	}
	return nil
}

func validateInputs(inputs []domain.InputDef) error {
	names := make(map[string]bool)
	for _, in := range inputs {
		if in.Name == "" {
			return NewValidationError("", "inputs", "input has empty name", ErrInvalidInputDef)
		}
		if names[in.Name] {
			return NewValidationError("", "inputs",
				fmt.Sprintf("duplicate input: %s", in.Name), ErrInvalidInputDef)
		}
		names[in.Name] = true

		if !isValidInputType(in.Type) {
			return NewValidationError("", "inputs",
				fmt.Sprintf("input %s: unknown type %s", in.Name, in.Type), ErrInvalidInputDef)
		}
	}
	return nil
}

func validateTriggers(triggers []domain.Trigger) error {
	ids := make(map[string]bool)
	for _, tr := range triggers {
		if tr.ID == "" {
			return NewValidationError("", "triggers", "trigger has empty ID", ErrInvalidTrigger)
		}
		if ids[tr.ID] {
			return NewValidationError("", "triggers",
				fmt.Sprintf("duplicate trigger ID: %s", tr.ID), ErrInvalidTrigger)
		}
		ids[tr.ID] = true

		if tr.Type != domain.TriggerTypeSchedule {
			return NewValidationError("", "triggers",
				fmt.Sprintf("trigger %s: unsupported type %q", tr.ID, tr.Type), ErrInvalidTrigger)
		}
		if tr.Cron == "" {
			return NewValidationError("", "triggers",
				fmt.Sprintf("trigger %s: cron is required", tr.ID), ErrInvalidTrigger)
		}
	}
	return nil
}

func isValidInputType(t domain.InputType) bool {
	switch t {
	case "", domain.InputTypeString, domain.InputTypeInt, domain.InputTypeFloat,
		domain.InputTypeBoolean, domain.InputTypeJSON:
		return true
	default:
		return false
	}
}
