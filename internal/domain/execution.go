package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — один запуск разрешённого flow.
//
// Execution создаётся, когда запрошен запуск (API, CLI, scheduler),
// и изменяется только runner'ом. После перехода в финальное состояние
// не изменяется; наружу отдаются копии (см. Snapshot).
type Execution struct {
	// ID — уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// FlowID — идентификатор flow внутри namespace.
	FlowID string `json:"flowId"`

	// Namespace — namespace flow.
	Namespace string `json:"namespace"`

	// Inputs — входные параметры после проверки и приведения типов.
	Inputs map[string]any `json:"inputs,omitempty"`

	// State — текущее состояние, вычисляемое из TaskRunList.
	State State `json:"state"`

	// TaskRunList — task runs в порядке создания.
	TaskRunList []TaskRun `json:"taskRunList"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"startedAt"`

	// FinishedAt — время перехода в финальное состояние.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	// Error — первая ошибка, приведшая к FAILED.
	Error string `json:"error,omitempty"`
}

// NewExecution создаёт execution в состоянии CREATED.
func NewExecution(namespace, flowID string, inputs map[string]any) *Execution {
	return &Execution{
		ID:          uuid.New(),
		FlowID:      flowID,
		Namespace:   namespace,
		Inputs:      inputs,
		State:       StateCreated,
		TaskRunList: []TaskRun{},
		StartedAt:   time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если execution ещё не завершён.
func (e *Execution) Duration() time.Duration {
	if e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// IsFinished возвращает true, если execution в финальном состоянии.
func (e *Execution) IsFinished() bool {
	return e.State.IsTerminal()
}

// TaskRunByTaskID ищет task run по идентификатору задачи.
func (e *Execution) TaskRunByTaskID(taskID string) (*TaskRun, bool) {
	for i := range e.TaskRunList {
		if e.TaskRunList[i].TaskID == taskID {
			return &e.TaskRunList[i], true
		}
	}
	return nil, false
}

// Snapshot возвращает глубокую копию execution.
func (e *Execution) Snapshot() *Execution {
	if e == nil {
		return nil
	}
	out := *e
	out.Inputs = CloneMap(e.Inputs)
	out.TaskRunList = make([]TaskRun, len(e.TaskRunList))
	for i, tr := range e.TaskRunList {
		out.TaskRunList[i] = tr.clone()
	}
	if e.FinishedAt != nil {
		t := *e.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

// TaskRun — запись выполнения одного узла разрешённого графа.
type TaskRun struct {
	// ID — уникальный идентификатор task run.
	ID uuid.UUID `json:"id"`

	// ExecutionID — ссылка на execution.
	ExecutionID uuid.UUID `json:"executionId"`

	// TaskID — идентификатор задачи из TaskDef.
	TaskID string `json:"taskId"`

	// Type — тип задачи ("log", "return", ...). Пусто для синтетических узлов.
	Type string `json:"type,omitempty"`

	// Path — цепочка id включений шаблонов, через которые пришла задача.
	Path []string `json:"path,omitempty"`

	// State — текущее состояние.
	State State `json:"state"`

	// Outputs — результаты выполнения, доступные как {{ outputs.<taskId>.<name> }}.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"startedAt,omitempty"`

	// FinishedAt — время перехода в финальное состояние.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// NewTaskRun создаёт task run в состоянии CREATED.
func NewTaskRun(executionID uuid.UUID, taskID, taskType string, path []string) TaskRun {
	return TaskRun{
		ID:          uuid.New(),
		ExecutionID: executionID,
		TaskID:      taskID,
		Type:        taskType,
		Path:        path,
		State:       StateCreated,
	}
}

// Duration возвращает продолжительность выполнения.
func (t *TaskRun) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// MarkRunning переводит task run в RUNNING.
func (t *TaskRun) MarkRunning() bool {
	if !CanTransition(t.State, StateRunning) {
		return false
	}
	now := time.Now()
	t.State = StateRunning
	t.StartedAt = &now
	return true
}

// MarkSucceeded переводит task run в SUCCESS с результатами.
func (t *TaskRun) MarkSucceeded(outputs map[string]any) bool {
	if !CanTransition(t.State, StateSuccess) {
		return false
	}
	t.finish(StateSuccess)
	t.Outputs = outputs
	return true
}

// MarkFailed переводит task run в FAILED с ошибкой.
func (t *TaskRun) MarkFailed(err string) bool {
	if !CanTransition(t.State, StateFailed) {
		return false
	}
	t.finish(StateFailed)
	t.Error = err
	return true
}

// MarkKilled переводит task run в KILLED.
func (t *TaskRun) MarkKilled() bool {
	if !CanTransition(t.State, StateKilled) {
		return false
	}
	t.finish(StateKilled)
	return true
}

func (t *TaskRun) finish(s State) {
	now := time.Now()
	t.State = s
	t.FinishedAt = &now
}

func (t TaskRun) clone() TaskRun {
	out := t
	out.Outputs = CloneMap(t.Outputs)
	if t.Path != nil {
		out.Path = append([]string(nil), t.Path...)
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		out.StartedAt = &s
	}
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		out.FinishedAt = &f
	}
	return out
}
