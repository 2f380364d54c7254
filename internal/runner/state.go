package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/engine"
	"github.com/shaiso/Stencil/internal/telemetry"
)

// executionState — состояние одного execution в памяти.
//
// Создаётся в Runner.Start и живёт, пока runner помнит execution.
// Изменяет его только координирующая горутина; Snapshot можно
// вызывать из любой горутины.
//
// Содержит:
//   - Execution со списком task runs
//   - Разрешённый граф задач
//   - Outputs завершённых задач (taskID → outputs)
//   - Отслеживание запущенных и успешных узлов
type executionState struct {
	exec  *domain.Execution
	flow  *domain.Flow
	graph *engine.Graph

	parallelism int
	failFast    bool

	// started — узлы, для которых создан task run (nodeID → true).
	started map[string]bool

	// succeeded — успешно завершённые узлы (nodeID → true).
	succeeded map[string]bool

	// outputs — outputs успешных задач, доступные как outputs.<taskId>.
	outputs map[string]any

	// runs — индекс task run в exec.TaskRunList (nodeID → index).
	runs map[string]int

	// failures — причины FAILED task run в порядке падения.
	failures []error

	running int
	failed  bool
	killed  bool
	halted  bool

	// settled — координатор вышел из цикла, kill больше не принимается.
	settled  bool
	finished bool

	results chan taskResult
	cancel  context.CancelFunc
	done    chan struct{}

	mu sync.RWMutex
}

// taskResult — результат рабочей горутины.
type taskResult struct {
	node    *engine.Node
	outputs map[string]any
	err     error
}

func newExecutionState(exec *domain.Execution, flow *domain.Flow, graph *engine.Graph, parallelism int, failFast bool) *executionState {
	if parallelism < 1 {
		parallelism = 1
	}
	return &executionState{
		exec:        exec,
		flow:        flow,
		graph:       graph,
		parallelism: parallelism,
		failFast:    failFast,
		started:     make(map[string]bool),
		succeeded:   make(map[string]bool),
		outputs:     make(map[string]any),
		runs:        make(map[string]int),
		results:     make(chan taskResult, graph.Size()),
		done:        make(chan struct{}),
	}
}

// ID возвращает ID execution.
func (s *executionState) ID() uuid.UUID {
	return s.exec.ID
}

// markRunning переводит execution в RUNNING.
func (s *executionState) markRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exec.State = domain.StateRunning
}

// readyNodes возвращает узлы, которые можно запустить сейчас,
// с учётом parallelism. После fail-fast или kill новых узлов нет.
func (s *executionState) readyNodes() []*engine.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.halted || s.killed {
		return nil
	}

	free := s.parallelism - s.running
	if free <= 0 {
		return nil
	}

	ready := s.graph.ReadyNodes(s.started, s.succeeded)
	if len(ready) == 0 && s.running == 0 {
		// Зависимости синтетического узла уже не выполнятся, но ошибка
		// разрешения всё равно попадает в execution.
		if n := s.graph.SyntheticNode(); n != nil && !s.started[n.ID] {
			ready = []*engine.Node{n}
		}
	}
	if len(ready) > free {
		ready = ready[:free]
	}
	return ready
}

// addTaskRun создаёт task run в CREATED для узла.
func (s *executionState) addTaskRun(node *engine.Node) domain.TaskRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskType := node.Task.Type
	if node.Task.IsInclude() {
		taskType = string(domain.TaskKindTemplate)
	}

	var path []string
	if node.Frame != nil {
		path = node.Frame.Path()
	}

	tr := domain.NewTaskRun(s.exec.ID, node.ID, taskType, path)
	s.exec.TaskRunList = append(s.exec.TaskRunList, tr)
	s.runs[node.ID] = len(s.exec.TaskRunList) - 1
	s.started[node.ID] = true
	s.recompute()

	return tr
}

// markTaskRunning переводит task run узла в RUNNING.
func (s *executionState) markTaskRunning(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr := s.taskRun(nodeID)
	if tr == nil || !tr.MarkRunning() {
		return false
	}
	s.running++
	telemetry.TaskRunsTotal.WithLabelValues(string(domain.StateRunning)).Inc()
	s.recompute()
	return true
}

// markTaskSucceeded записывает outputs и переводит task run в SUCCESS.
func (s *executionState) markTaskSucceeded(nodeID string, outputs map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr := s.taskRun(nodeID)
	if tr == nil {
		return false
	}
	wasRunning := tr.State == domain.StateRunning
	if !tr.MarkSucceeded(outputs) {
		return false
	}
	if wasRunning {
		s.running--
	}
	s.succeeded[nodeID] = true
	s.outputs[tr.TaskID] = domain.CloneMap(outputs)
	telemetry.TaskRunsTotal.WithLabelValues(string(domain.StateSuccess)).Inc()
	s.recompute()
	return true
}

// markTaskFailed переводит task run в FAILED. При fail-fast
// дальнейший запуск узлов прекращается.
func (s *executionState) markTaskFailed(nodeID string, failure *TaskFailureError) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr := s.taskRun(nodeID)
	if tr == nil {
		return false
	}
	errMsg := failure.Err.Error()
	wasRunning := tr.State == domain.StateRunning
	if !tr.MarkFailed(errMsg) {
		return false
	}
	if wasRunning {
		s.running--
	}
	s.failed = true
	s.failures = append(s.failures, failure)
	if s.failFast {
		s.halted = true
	}
	if s.exec.Error == "" {
		s.exec.Error = errMsg
	}
	telemetry.TaskRunsTotal.WithLabelValues(string(domain.StateFailed)).Inc()
	s.recompute()
	return true
}

// markTaskKilled переводит task run в KILLED.
func (s *executionState) markTaskKilled(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr := s.taskRun(nodeID)
	if tr == nil {
		return false
	}
	wasRunning := tr.State == domain.StateRunning
	if !tr.MarkKilled() {
		return false
	}
	if wasRunning {
		s.running--
	}
	telemetry.TaskRunsTotal.WithLabelValues(string(domain.StateKilled)).Inc()
	s.recompute()
	return true
}

// markKilled отмечает kill: новые узлы больше не запускаются.
// Возвращает false, если execution уже завершён или kill уже был.
func (s *executionState) markKilled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.settled || s.killed {
		return false
	}
	s.killed = true
	s.recompute()
	return true
}

// isKilled проверяет, был ли kill.
func (s *executionState) isKilled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.killed
}

// isFinished проверяет, завершается ли execution или уже завершён.
func (s *executionState) isFinished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished || s.settled
}

// settle фиксирует выход координатора из цикла, если задач
// в работе не осталось. После этого kill отклоняется.
func (s *executionState) settle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running > 0 {
		return false
	}
	s.settled = true
	return true
}

// failure объединяет причины FAILED task run.
func (s *executionState) failure() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return errors.Join(s.failures...)
}

// runningCount возвращает количество выполняющихся задач.
func (s *executionState) runningCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// finish вычисляет финальное состояние execution.
func (s *executionState) finish() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finished = true
	s.recompute()
	return s.exec.State
}

// recompute пересчитывает состояние execution. Вызывается под s.mu.
//
// Финальное состояние выставляет только finish. Исключение —
// fail-fast: после первого FAILED вердикт уже не меняется.
func (s *executionState) recompute() {
	states := make([]domain.State, len(s.exec.TaskRunList))
	for i := range s.exec.TaskRunList {
		states[i] = s.exec.TaskRunList[i].State
	}

	pending := !s.finished && !s.halted && !s.killed && len(s.started) < s.graph.Size()
	state := domain.DeriveExecutionState(states, pending, s.killed, s.failFast)

	switch {
	case !s.finished && state.IsTerminal() && !(state == domain.StateFailed && s.failFast):
		state = domain.StateRunning
	case s.finished && !state.IsTerminal():
		state = domain.StateFailed
	}
	s.exec.State = state

	if s.finished && s.exec.FinishedAt == nil {
		now := time.Now()
		s.exec.FinishedAt = &now
	}
}

// taskRun возвращает task run узла. Вызывается под s.mu.
func (s *executionState) taskRun(nodeID string) *domain.TaskRun {
	idx, ok := s.runs[nodeID]
	if !ok {
		return nil
	}
	return &s.exec.TaskRunList[idx]
}

// taskRunSnapshot возвращает копию task run узла.
func (s *executionState) taskRunSnapshot(nodeID string) (domain.TaskRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tr := s.taskRun(nodeID)
	if tr == nil {
		return domain.TaskRun{}, false
	}
	return *tr, true
}

// outputsSnapshot возвращает outputs завершённых задач.
// Вызывается координатором; значения не изменяются после записи.
func (s *executionState) outputsSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v
	}
	return out
}

// Snapshot возвращает глубокую копию execution.
func (s *executionState) Snapshot() *domain.Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exec.Snapshot()
}

// Stats возвращает статистику выполнения.
func (s *executionState) Stats() ExecutionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ExecutionStats{TotalNodes: s.graph.Size(), RunningTasks: s.running}
	for _, tr := range s.exec.TaskRunList {
		switch tr.State {
		case domain.StateSuccess:
			stats.SucceededTasks++
		case domain.StateFailed:
			stats.FailedTasks++
		case domain.StateKilled:
			stats.KilledTasks++
		}
	}
	stats.PendingNodes = stats.TotalNodes - len(s.started)
	return stats
}

// ExecutionStats — статистика выполнения execution.
type ExecutionStats struct {
	TotalNodes     int
	PendingNodes   int
	RunningTasks   int
	SucceededTasks int
	FailedTasks    int
	KilledTasks    int
}
