package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/engine"
	"github.com/shaiso/Stencil/internal/tasks"
	"github.com/shaiso/Stencil/internal/telemetry"
)

// coordinate ведёт execution от запуска до финального состояния.
//
// Цикл:
//  1. Запустить все готовые узлы (в порядке графа, до parallelism)
//  2. Если ничего не выполняется — execution закончен
//  3. Дождаться результата задачи или kill
func (r *Runner) coordinate(ctx context.Context, st *executionState, logger *slog.Logger) {
	defer st.cancel()

	st.markRunning()
	logger.Info("execution started",
		"nodes", st.graph.Size(),
		"parallelism", st.parallelism,
	)

	killed := ctx.Done()
	for {
		r.dispatch(ctx, st, logger)

		if st.settle() {
			break
		}

		select {
		case res := <-st.results:
			r.complete(st, res, logger)
		case <-killed:
			// Kill уже отмечен, если пришёл через Runner.Kill.
			st.markKilled()
			killed = nil
			logger.Info("execution kill requested", "running", st.runningCount())
		}
	}

	r.finalize(st, logger)
}

// dispatch запускает готовые узлы, пока они есть и есть свободные слоты.
func (r *Runner) dispatch(ctx context.Context, st *executionState, logger *slog.Logger) {
	for {
		ready := st.readyNodes()
		if len(ready) == 0 {
			return
		}
		for _, node := range ready {
			r.startNode(ctx, st, node, logger)
		}
	}
}

// startNode создаёт task run узла и запускает задачу.
//
// Синтетический узел, неизвестный тип и ошибка вычисления параметров
// завершают task run сразу, без рабочей горутины.
func (r *Runner) startNode(ctx context.Context, st *executionState, node *engine.Node, logger *slog.Logger) {
	tr := st.addTaskRun(node)
	taskLogger := telemetry.WithTaskRunID(logger, tr.ID.String(), node.ID)
	sink := r.newSink(tr, taskLogger)

	if node.Synthetic {
		r.failTask(st, node, sink, node.Err, taskLogger)
		return
	}

	st.markTaskRunning(node.ID)

	kind, err := r.tasks.Get(node.Task.Type)
	if err != nil {
		r.failTask(st, node, sink, err, taskLogger)
		return
	}

	scope, err := r.taskScope(st, node)
	if err != nil {
		r.failTask(st, node, sink, err, taskLogger)
		return
	}

	params, err := r.evaluator.ResolveParams(node.Task.Params, scope)
	if err != nil {
		r.failTask(st, node, sink, err, taskLogger)
		return
	}

	req := &tasks.Request{
		ExecutionID: tr.ExecutionID,
		TaskRunID:   tr.ID,
		TaskID:      node.ID,
		Params:      domain.CloneMap(params),
		Logs:        sink,
	}

	taskLogger.Debug("task started", "type", node.Task.Type)

	go func() {
		res := taskResult{node: node}
		defer func() {
			if p := recover(); p != nil {
				res.outputs = nil
				res.err = fmt.Errorf("task panicked: %v", p)
			}
			st.results <- res
		}()

		resp, err := kind.Execute(ctx, req)
		res.err = err
		if resp != nil {
			res.outputs = resp.Outputs
		}
	}()
}

// complete обрабатывает результат рабочей горутины.
//
// Задача, вернувшая результат, успешна даже после kill. Ошибка после
// kill означает KILLED, иначе FAILED с ERROR-записью.
func (r *Runner) complete(st *executionState, res taskResult, logger *slog.Logger) {
	tr, _ := st.taskRunSnapshot(res.node.ID)
	taskLogger := telemetry.WithTaskRunID(logger, tr.ID.String(), res.node.ID)

	switch {
	case res.err == nil:
		outputs := res.outputs
		if outputs == nil {
			outputs = make(map[string]any)
		}
		st.markTaskSucceeded(res.node.ID, outputs)
		taskLogger.Debug("task succeeded")

	case st.isKilled():
		st.markTaskKilled(res.node.ID)
		taskLogger.Info("task killed", "error", res.err)

	default:
		r.failTask(st, res.node, r.newSink(tr, taskLogger), res.err, taskLogger)
	}
}

// failTask переводит task run в FAILED и публикует ERROR-запись с причиной.
func (r *Runner) failTask(st *executionState, node *engine.Node, sink *taskLogSink, cause error, logger *slog.Logger) {
	msg := cause.Error()
	sink.Emit(domain.LevelError, msg)
	st.markTaskFailed(node.ID, &TaskFailureError{TaskID: node.ID, Err: cause})
	logger.Warn("task failed", "error", cause, "synthetic", node.Synthetic)
}

// finalize выставляет финальное состояние, записывает метрики,
// сохраняет execution и будит ожидающих.
func (r *Runner) finalize(st *executionState, logger *slog.Logger) {
	state := st.finish()
	snapshot := st.Snapshot()
	stats := st.Stats()

	telemetry.ExecutionsTotal.WithLabelValues(string(state)).Inc()
	telemetry.ExecutionDuration.Observe(snapshot.Duration().Seconds())

	logger.Info("execution finished",
		"state", state,
		"duration", snapshot.Duration(),
		"task_runs", len(snapshot.TaskRunList),
		"failed", stats.FailedTasks,
		"killed", stats.KilledTasks,
		"not_started", stats.PendingNodes,
	)

	if r.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := r.recorder.Record(ctx, snapshot); err != nil {
			logger.Error("failed to record execution", "error", err)
		}
		cancel()
	}

	close(st.done)
	r.retire(st.ID())
}

// taskScope строит scope задачи.
//
// Цепочка: task → include (outputs.args) → ... → execution.
// Args каждого включения вычисляются в scope охватывающего уровня.
func (r *Runner) taskScope(st *executionState, node *engine.Node) (*engine.Scope, error) {
	scope := r.executionScope(st)

	var frames []*engine.Frame
	for fr := node.Frame; fr != nil; fr = fr.Parent {
		frames = append([]*engine.Frame{fr}, frames...)
	}

	for _, fr := range frames {
		argScope := engine.NewScope(map[string]any{
			"task": map[string]any{"id": fr.IncludeID, "type": string(domain.TaskKindTemplate)},
		}, scope)

		args := make(map[string]any, len(fr.Args))
		for name, expr := range fr.Args {
			v, err := r.evaluator.Resolve(expr, argScope)
			if err != nil {
				return nil, err
			}
			args[name] = v
		}

		scope = engine.NewScope(map[string]any{
			"outputs": map[string]any{"args": args},
		}, scope)
	}

	return engine.NewScope(map[string]any{
		"task": map[string]any{"id": node.ID, "type": node.Task.Type},
	}, scope), nil
}

// executionScope — корневой scope: inputs, outputs завершённых задач,
// сведения об execution и flow.
func (r *Runner) executionScope(st *executionState) *engine.Scope {
	return engine.NewScope(map[string]any{
		"inputs":  st.exec.Inputs,
		"outputs": st.outputsSnapshot(),
		"execution": map[string]any{
			"id":        st.exec.ID.String(),
			"startDate": st.exec.StartedAt.Format(time.RFC3339),
		},
		"flow": map[string]any{
			"id":        st.flow.ID,
			"namespace": st.flow.Namespace,
		},
	}, nil)
}
