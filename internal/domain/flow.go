package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Flow — определение рабочего процесса.
//
// Flow идентифицируется парой (Namespace, ID). Его список задач может
// включать шаблоны (TaskDef с Kind = template), которые разворачиваются
// в конкретные задачи перед выполнением.
type Flow struct {
	// ID — идентификатор flow внутри namespace.
	ID string `json:"id" yaml:"id"`

	// Namespace — пространство имён (например, "io.stencil.tests").
	Namespace string `json:"namespace" yaml:"namespace"`

	// Description — описание назначения flow.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Inputs — входные параметры flow в порядке объявления.
	Inputs []InputDef `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Tasks — упорядоченный список задач.
	Tasks []TaskDef `json:"tasks" yaml:"tasks"`

	// Triggers — триггеры запуска по расписанию.
	Triggers []Trigger `json:"triggers,omitempty" yaml:"triggers,omitempty"`

	// Parallelism — сколько независимых задач может выполняться одновременно.
	// 0 или 1 — строго последовательное выполнение.
	Parallelism int `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
}

// Key возвращает ключ flow.
func (f *Flow) Key() FlowKey {
	return FlowKey{Namespace: f.Namespace, ID: f.ID}
}

// Clone возвращает глубокую копию flow.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	out := *f
	out.Inputs = append([]InputDef(nil), f.Inputs...)
	for i := range out.Inputs {
		out.Inputs[i].Defaults = CloneValue(f.Inputs[i].Defaults)
	}
	out.Tasks = CloneTasks(f.Tasks)
	out.Triggers = make([]Trigger, len(f.Triggers))
	for i, tr := range f.Triggers {
		out.Triggers[i] = tr
		out.Triggers[i].Inputs = CloneMap(tr.Inputs)
	}
	if f.Triggers == nil {
		out.Triggers = nil
	}
	return &out
}

// FlowKey — составной ключ flow.
type FlowKey struct {
	Namespace string
	ID        string
}

// String возвращает "<namespace>.<id>".
func (k FlowKey) String() string {
	return k.Namespace + "." + k.ID
}

// InputType — тип входного параметра.
type InputType string

// Типы входных параметров.
const (
	InputTypeString  InputType = "STRING"
	InputTypeInt     InputType = "INT"
	InputTypeFloat   InputType = "FLOAT"
	InputTypeBoolean InputType = "BOOLEAN"
	InputTypeJSON    InputType = "JSON"
)

// InputDef — определение входного параметра.
type InputDef struct {
	// Name — имя параметра, доступное как {{ inputs.<name> }}.
	Name string `json:"name" yaml:"name"`

	// Type — тип параметра (по умолчанию STRING).
	Type InputType `json:"type,omitempty" yaml:"type,omitempty"`

	// Required — обязательный ли параметр. Nil означает true.
	Required *bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Defaults — значение по умолчанию.
	Defaults any `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// Description — описание параметра.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// IsRequired возвращает true, если параметр обязателен.
func (d InputDef) IsRequired() bool {
	return d.Required == nil || *d.Required
}

// TriggerTypeSchedule — тип триггера по cron-расписанию.
const TriggerTypeSchedule = "schedule"

// Trigger — триггер запуска flow.
type Trigger struct {
	// ID — идентификатор триггера внутри flow.
	ID string `json:"id" yaml:"id"`

	// Type — тип триггера. Поддерживается только "schedule".
	Type string `json:"type" yaml:"type"`

	// Cron — cron-выражение (5 полей).
	Cron string `json:"cron" yaml:"cron"`

	// Inputs — входные параметры для запусков по триггеру.
	Inputs map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Disabled — отключённые триггеры игнорируются планировщиком.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// TaskKind — дискриминатор варианта TaskDef.
type TaskKind string

const (
	// TaskKindPlain — обычная задача конкретного типа.
	TaskKindPlain TaskKind = "plain"

	// TaskKindTemplate — включение шаблона по (namespace, id).
	TaskKindTemplate TaskKind = "template"
)

// TaskDef — узел списка задач flow или шаблона.
//
// Вариант определяется полем Kind:
//   - plain:    ID, Type, Params, DependsOn
//   - template: ID, TemplateNamespace, TemplateID, Args
//
// Args — forwarded args: имя → выражение, вычисляемое в scope
// включающего flow. Внутри шаблона значения доступны как
// {{ parent.outputs.args['name'] }}.
type TaskDef struct {
	Kind TaskKind `json:"kind" yaml:"kind"`
	ID   string   `json:"id" yaml:"id"`

	// plain
	Type      string         `json:"type,omitempty" yaml:"type,omitempty"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	DependsOn []string       `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`

	// template
	TemplateNamespace string            `json:"templateNamespace,omitempty" yaml:"templateNamespace,omitempty"`
	TemplateID        string            `json:"templateId,omitempty" yaml:"templateId,omitempty"`
	Args              map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
}

// Plain создаёт обычную задачу.
func Plain(id, taskType string, params map[string]any) TaskDef {
	return TaskDef{Kind: TaskKindPlain, ID: id, Type: taskType, Params: params}
}

// Include создаёт задачу включения шаблона.
func Include(id, namespace, templateID string, args map[string]string) TaskDef {
	return TaskDef{
		Kind:              TaskKindTemplate,
		ID:                id,
		TemplateNamespace: namespace,
		TemplateID:        templateID,
		Args:              args,
	}
}

// IsInclude возвращает true для включения шаблона.
func (t *TaskDef) IsInclude() bool {
	return t.Kind == TaskKindTemplate
}

// TemplateKey возвращает ключ включаемого шаблона.
func (t *TaskDef) TemplateKey() TemplateKey {
	return TemplateKey{Namespace: t.TemplateNamespace, ID: t.TemplateID}
}

// CheckKind проверяет согласованность дискриминатора и полей варианта.
func (t *TaskDef) CheckKind() error {
	switch t.Kind {
	case TaskKindPlain:
		if t.TemplateNamespace != "" || t.TemplateID != "" || len(t.Args) > 0 {
			return fmt.Errorf("%w: task %q: plain task has template fields", ErrInvalidTaskKind, t.ID)
		}
	case TaskKindTemplate:
		if t.Type != "" || len(t.Params) > 0 || len(t.DependsOn) > 0 {
			return fmt.Errorf("%w: task %q: template task has plain fields", ErrInvalidTaskKind, t.ID)
		}
	case "":
		return fmt.Errorf("%w: task %q: missing kind", ErrInvalidTaskKind, t.ID)
	default:
		return fmt.Errorf("%w: task %q: unknown kind %q", ErrInvalidTaskKind, t.ID, t.Kind)
	}
	return nil
}

// UnmarshalJSON декодирует TaskDef и проверяет дискриминатор.
func (t *TaskDef) UnmarshalJSON(data []byte) error {
	type alias TaskDef
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = TaskDef(raw)
	return t.CheckKind()
}

// Clone возвращает глубокую копию TaskDef.
func (t TaskDef) Clone() TaskDef {
	out := t
	out.Params = CloneMap(t.Params)
	if t.DependsOn != nil {
		out.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Args != nil {
		out.Args = make(map[string]string, len(t.Args))
		for k, v := range t.Args {
			out.Args[k] = v
		}
	}
	return out
}

// CloneTasks возвращает глубокую копию списка задач.
func CloneTasks(tasks []TaskDef) []TaskDef {
	if tasks == nil {
		return nil
	}
	out := make([]TaskDef, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
	}
	return out
}

// TriggerState — состояние триггера между срабатываниями.
type TriggerState struct {
	Namespace string `json:"namespace"`
	FlowID    string `json:"flowId"`
	TriggerID string `json:"triggerId"`

	// Cron — выражение, по которому вычислен NextDueAt. Если в flow
	// выражение изменилось, NextDueAt пересчитывается.
	Cron string `json:"cron"`

	// NextDueAt — время следующего срабатывания (UTC).
	NextDueAt time.Time `json:"nextDueAt"`

	// LastFiredAt — время последнего срабатывания.
	LastFiredAt *time.Time `json:"lastFiredAt,omitempty"`

	// LastExecutionID — execution, запущенный последним срабатыванием.
	LastExecutionID *uuid.UUID `json:"lastExecutionId,omitempty"`
}

// TriggerKey — ключ триггера: flow и ID триггера внутри него.
type TriggerKey struct {
	Namespace string
	FlowID    string
	TriggerID string
}

// Key возвращает ключ состояния триггера.
func (s *TriggerState) Key() TriggerKey {
	return TriggerKey{Namespace: s.Namespace, FlowID: s.FlowID, TriggerID: s.TriggerID}
}

// String возвращает "<namespace>.<flowId>/<triggerId>".
func (k TriggerKey) String() string {
	return k.Namespace + "." + k.FlowID + "/" + k.TriggerID
}

// RecordFire отмечает срабатывание и следующее время.
func (s *TriggerState) RecordFire(executionID uuid.UUID, firedAt, nextDue time.Time) {
	s.LastFiredAt = &firedAt
	s.LastExecutionID = &executionID
	s.NextDueAt = nextDue
}
