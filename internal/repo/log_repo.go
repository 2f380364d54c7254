package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Stencil/internal/domain"
)

// LogRepo — хранилище записей лога execution.
type LogRepo struct {
	pool *pgxpool.Pool
}

// NewLogRepo создаёт новый LogRepo.
func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

// Append сохраняет запись. Порядок чтения совпадает с порядком Append.
func (r *LogRepo) Append(ctx context.Context, e domain.LogEntry) error {
	query := `
		INSERT INTO log_entries (execution_id, task_run_id, task_id, level, message, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		e.ExecutionID, e.TaskRunID, nullString(e.TaskID), string(e.Level), e.Message, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// ListByExecution возвращает записи execution в порядке сохранения.
// minLevel отсекает записи ниже уровня (пусто — все).
func (r *LogRepo) ListByExecution(ctx context.Context, executionID uuid.UUID, minLevel domain.Level) ([]domain.LogEntry, error) {
	query := `
		SELECT execution_id, task_run_id, task_id, level, message, ts
		FROM log_entries
		WHERE execution_id = $1
		ORDER BY seq
	`
	rows, err := r.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	out := []domain.LogEntry{}
	for rows.Next() {
		var e domain.LogEntry
		var taskID *string
		var level string

		if err := rows.Scan(&e.ExecutionID, &e.TaskRunID, &taskID, &level, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Level = domain.Level(level)
		if taskID != nil {
			e.TaskID = *taskID
		}
		if minLevel != "" && !e.Level.AtLeast(minLevel) {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
