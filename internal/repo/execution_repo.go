package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Stencil/internal/domain"
)

// ExecutionRepo — история execution и их task runs.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// ExecutionFilter — фильтр для List.
type ExecutionFilter struct {
	Namespace string
	FlowID    string
	State     domain.State
	Limit     int
}

// Record сохраняет execution вместе с task runs в одной транзакции.
// Повторный Record того же execution заменяет сохранённую версию.
func (r *ExecutionRepo) Record(ctx context.Context, exec *domain.Execution) error {
	inputs, err := json.Marshal(exec.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO executions (id, namespace, flow_id, state, inputs, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state,
		    error = EXCLUDED.error,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = tx.Exec(ctx, query,
		exec.ID, exec.Namespace, exec.FlowID, string(exec.State), inputs,
		nullString(exec.Error), exec.StartedAt, exec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert execution: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM task_runs WHERE execution_id = $1`, exec.ID); err != nil {
		return fmt.Errorf("delete task runs: %w", err)
	}

	for i, tr := range exec.TaskRunList {
		outputs, err := json.Marshal(tr.Outputs)
		if err != nil {
			return fmt.Errorf("marshal outputs of %s: %w", tr.TaskID, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO task_runs (id, execution_id, position, task_id, type, path, state, outputs, error, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			tr.ID, exec.ID, i, tr.TaskID, nullString(tr.Type), tr.Path, string(tr.State),
			outputs, nullString(tr.Error), tr.StartedAt, tr.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("insert task run %s: %w", tr.TaskID, err)
		}
	}

	return tx.Commit(ctx)
}

// Get возвращает execution с task runs.
func (r *ExecutionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `
		SELECT id, namespace, flow_id, state, inputs, error, started_at, finished_at
		FROM executions
		WHERE id = $1
	`
	exec, err := scanExecution(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	runs, err := r.taskRuns(ctx, id)
	if err != nil {
		return nil, err
	}
	exec.TaskRunList = runs
	return exec, nil
}

// List возвращает execution без task runs, новые первыми.
func (r *ExecutionRepo) List(ctx context.Context, filter ExecutionFilter) ([]*domain.Execution, error) {
	query := `
		SELECT id, namespace, flow_id, state, inputs, error, started_at, finished_at
		FROM executions
		WHERE ($1 = '' OR namespace = $1)
		  AND ($2 = '' OR flow_id = $2)
		  AND ($3 = '' OR state = $3)
		ORDER BY started_at DESC
	`
	args := []any{filter.Namespace, filter.FlowID, string(filter.State)}
	if filter.Limit > 0 {
		query += " LIMIT $4"
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func (r *ExecutionRepo) taskRuns(ctx context.Context, executionID uuid.UUID) ([]domain.TaskRun, error) {
	query := `
		SELECT id, execution_id, task_id, type, path, state, outputs, error, started_at, finished_at
		FROM task_runs
		WHERE execution_id = $1
		ORDER BY position
	`
	rows, err := r.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.TaskRun{}
	for rows.Next() {
		var tr domain.TaskRun
		var taskType, errMsg *string
		var state string
		var outputs []byte

		err := rows.Scan(
			&tr.ID, &tr.ExecutionID, &tr.TaskID, &taskType, &tr.Path, &state,
			&outputs, &errMsg, &tr.StartedAt, &tr.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}

		tr.State = domain.State(state)
		if taskType != nil {
			tr.Type = *taskType
		}
		if errMsg != nil {
			tr.Error = *errMsg
		}
		if len(outputs) > 0 {
			if err := json.Unmarshal(outputs, &tr.Outputs); err != nil {
				return nil, fmt.Errorf("unmarshal outputs: %w", err)
			}
		}
		runs = append(runs, tr)
	}
	return runs, rows.Err()
}

func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var exec domain.Execution
	var state string
	var inputs []byte
	var errMsg *string
	var finishedAt *time.Time

	err := row.Scan(
		&exec.ID, &exec.Namespace, &exec.FlowID, &state, &inputs,
		&errMsg, &exec.StartedAt, &finishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	exec.State = domain.State(state)
	exec.FinishedAt = finishedAt
	if errMsg != nil {
		exec.Error = *errMsg
	}
	if len(inputs) > 0 {
		if err := json.Unmarshal(inputs, &exec.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	return &exec, nil
}
