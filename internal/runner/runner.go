package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/engine"
	"github.com/shaiso/Stencil/internal/logbus"
	"github.com/shaiso/Stencil/internal/registry"
	"github.com/shaiso/Stencil/internal/tasks"
	"github.com/shaiso/Stencil/internal/telemetry"
)

// Default configuration values.
const (
	defaultRunTimeout  = 60 * time.Second
	defaultParallelism = 1
	recordTimeout      = 10 * time.Second
	defaultRetention   = 1000
)

// FlowSource — источник определений flow.
type FlowSource interface {
	Get(ctx context.Context, namespace, id string) (*domain.Flow, error)
}

// Recorder сохраняет execution, достигшие финального состояния.
type Recorder interface {
	Record(ctx context.Context, exec *domain.Execution) error
}

// Recorders рассылает execution нескольким Recorder по порядку.
// Ошибка одного не мешает остальным.
type Recorders []Recorder

// Record вызывает Record каждого и объединяет ошибки.
func (rs Recorders) Record(ctx context.Context, exec *domain.Execution) error {
	var errs []error
	for _, r := range rs {
		if err := r.Record(ctx, exec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Runner выполняет flow.
//
// Runner — центральный компонент системы, который:
//   - Загружает flow и проверяет входные параметры
//   - Разрешает включения шаблонов в граф задач
//   - Запускает готовые задачи, соблюдая parallelism
//   - Публикует записи лога задач в шину
//   - Финализирует execution (SUCCESS/FAILED/KILLED)
type Runner struct {
	flows     FlowSource
	resolver  *engine.Resolver
	tasks     *tasks.Registry
	bus       *logbus.Bus
	recorder  Recorder
	evaluator *engine.Evaluator

	failFast           bool
	defaultTimeout     time.Duration
	defaultParallelism int

	// executions — известные execution (executionID → state).
	executions map[uuid.UUID]*executionState

	// retired — завершённые execution в порядке завершения.
	retired   []uuid.UUID
	retention int
	mu        sync.RWMutex

	logger  *slog.Logger
	wg      sync.WaitGroup
	stopped bool
}

// Config — конфигурация Runner.
type Config struct {
	// Flows — источник flow.
	Flows FlowSource

	// Templates — реестр шаблонов для разрешения включений.
	Templates engine.TemplateSource

	// Tasks — реестр типов задач (если nil — tasks.DefaultRegistry()).
	Tasks *tasks.Registry

	// Bus — шина записей лога (опционально).
	Bus *logbus.Bus

	// Recorder — сохранение завершённых execution (опционально).
	Recorder Recorder

	// ContinueOnFailure отключает fail-fast: после FAILED продолжают
	// запускаться узлы, не зависящие от упавшего.
	ContinueOnFailure bool

	// DefaultTimeout — таймаут ожидания в Run, если в запросе не задан (default: 60s).
	DefaultTimeout time.Duration

	// DefaultParallelism — parallelism для flow без своего значения (default: 1).
	DefaultParallelism int

	// Retention — сколько завершённых execution runner держит в памяти
	// (default: 1000). Более старые доступны только через Recorder.
	Retention int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Runner.
func New(cfg Config) *Runner {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}

	parallelism := cfg.DefaultParallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	taskRegistry := cfg.Tasks
	if taskRegistry == nil {
		taskRegistry = tasks.DefaultRegistry()
	}

	return &Runner{
		flows:              cfg.Flows,
		resolver:           engine.NewResolver(cfg.Templates, logger),
		tasks:              taskRegistry,
		bus:                cfg.Bus,
		recorder:           cfg.Recorder,
		evaluator:          engine.NewEvaluator(),
		failFast:           !cfg.ContinueOnFailure,
		defaultTimeout:     timeout,
		defaultParallelism: parallelism,
		executions:         make(map[uuid.UUID]*executionState),
		retention:          retention,
		logger:             logger,
	}
}

// RunRequest — запрос на запуск flow.
type RunRequest struct {
	Namespace string
	FlowID    string
	Inputs    map[string]any

	// Timeout — сколько Run ждёт финального состояния (0 — DefaultTimeout).
	Timeout time.Duration
}

// Handle — запущенный execution.
type Handle struct {
	state    *executionState
	timeout  time.Duration
	deadline time.Time
}

// ID возвращает ID execution.
func (h *Handle) ID() uuid.UUID {
	return h.state.ID()
}

// Done закрывается, когда execution достиг финального состояния.
func (h *Handle) Done() <-chan struct{} {
	return h.state.done
}

// Snapshot возвращает текущую копию execution.
func (h *Handle) Snapshot() *domain.Execution {
	return h.state.Snapshot()
}

// Err возвращает причины FAILED task run как *TaskFailureError
// (nil, если таких нет).
func (h *Handle) Err() error {
	return h.state.failure()
}

// Wait ждёт финального состояния execution.
//
// Если таймаут запроса истёк раньше, возвращает текущий snapshot и
// *ExecutionTimeoutError. Execution при этом не останавливается.
func (h *Handle) Wait(ctx context.Context) (*domain.Execution, error) {
	timer := time.NewTimer(time.Until(h.deadline))
	defer timer.Stop()

	select {
	case <-h.state.done:
		return h.state.Snapshot(), nil
	case <-timer.C:
		return h.state.Snapshot(), &ExecutionTimeoutError{ExecutionID: h.ID(), Timeout: h.timeout}
	case <-ctx.Done():
		return h.state.Snapshot(), ctx.Err()
	}
}

// Run запускает flow и ждёт финального состояния execution.
//
// Ошибка до создания execution (flow не найден, невалидные inputs)
// возвращается без execution. Таймаут ожидания — *ExecutionTimeoutError
// вместе с текущим snapshot.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*domain.Execution, error) {
	h, err := r.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}

// Start запускает flow асинхронно.
//
// Execution не зависит от отмены ctx: остановить его можно только Kill.
func (r *Runner) Start(ctx context.Context, req RunRequest) (*Handle, error) {
	if r.isStopped() {
		return nil, ErrRunnerStopped
	}

	flow, err := r.flows.Get(ctx, req.Namespace, req.FlowID)
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}

	inputs, err := engine.ResolveInputs(flow.Inputs, req.Inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInputs, err)
	}

	exec := domain.NewExecution(flow.Namespace, flow.ID, inputs)
	logger := telemetry.WithExecutionID(
		telemetry.WithFlowID(r.logger, flow.Namespace, flow.ID),
		exec.ID.String(),
	)

	graph := r.resolver.Resolve(ctx, flow)
	telemetry.TemplateResolutionsTotal.WithLabelValues(resolutionResult(graph.Failure)).Inc()

	parallelism := flow.Parallelism
	if parallelism <= 0 {
		parallelism = r.defaultParallelism
	}

	state := newExecutionState(exec, flow, graph, parallelism, r.failFast)
	execCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	state.cancel = cancel

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		cancel()
		return nil, ErrRunnerStopped
	}
	r.executions[exec.ID] = state
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.coordinate(execCtx, state, logger)
	}()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	return &Handle{
		state:    state,
		timeout:  timeout,
		deadline: time.Now().Add(timeout),
	}, nil
}

// Kill останавливает execution: выполняющиеся задачи получают отмену
// контекста, незапущенные узлы больше не стартуют.
func (r *Runner) Kill(id uuid.UUID) error {
	state, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}

	if !state.markKilled() {
		if state.isFinished() {
			return fmt.Errorf("%w: %s", ErrExecutionFinished, id)
		}
		return nil
	}

	r.logger.Info("killing execution", "execution_id", id)
	state.cancel()
	return nil
}

// Get возвращает snapshot execution.
func (r *Runner) Get(id uuid.UUID) (*domain.Execution, error) {
	state, ok := r.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return state.Snapshot(), nil
}

// Handle возвращает handle известного execution.
func (r *Runner) Handle(id uuid.UUID, timeout time.Duration) (*Handle, error) {
	state, ok := r.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	return &Handle{state: state, timeout: timeout, deadline: time.Now().Add(timeout)}, nil
}

// List возвращает snapshots всех известных execution, старые первыми.
func (r *Runner) List() []*domain.Execution {
	r.mu.RLock()
	states := make([]*executionState, 0, len(r.executions))
	for _, s := range r.executions {
		states = append(states, s)
	}
	r.mu.RUnlock()

	out := make([]*domain.Execution, 0, len(states))
	for _, s := range states {
		out = append(out, s.Snapshot())
	}
	slices.SortFunc(out, func(a, b *domain.Execution) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out
}

// Shutdown перестаёт принимать execution и ждёт завершения текущих.
// Если ctx истёк раньше, оставшиеся execution останавливаются через kill.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	states := make([]*executionState, 0, len(r.executions))
	for _, s := range r.executions {
		states = append(states, s)
	}
	r.mu.Unlock()

	r.logger.Info("stopping runner...")

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("runner stopped")
		return nil
	case <-ctx.Done():
		for _, s := range states {
			if s.markKilled() {
				s.cancel()
			}
		}
		<-done
		r.logger.Warn("runner stopped with killed executions")
		return ctx.Err()
	}
}

// Tasks возвращает реестр типов задач.
func (r *Runner) Tasks() *tasks.Registry {
	return r.tasks
}

// retire запоминает завершённый execution и забывает самые старые
// сверх Retention.
func (r *Runner) retire(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.retired = append(r.retired, id)
	for len(r.retired) > r.retention {
		delete(r.executions, r.retired[0])
		r.retired = r.retired[1:]
	}
}

func (r *Runner) isStopped() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stopped
}

func (r *Runner) lookup(id uuid.UUID) (*executionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.executions[id]
	return s, ok
}

// resolutionResult возвращает метку метрики для результата разрешения.
func resolutionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, registry.ErrTemplateNotFound):
		return "not_found"
	case errors.Is(err, engine.ErrCycleDetected):
		return "cycle"
	default:
		return "error"
	}
}
