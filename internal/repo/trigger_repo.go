package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Stencil/internal/domain"
)

// TriggerRepo — состояние cron-триггеров между перезапусками планировщика.
type TriggerRepo struct {
	pool *pgxpool.Pool
}

// NewTriggerRepo создаёт новый TriggerRepo.
func NewTriggerRepo(pool *pgxpool.Pool) *TriggerRepo {
	return &TriggerRepo{pool: pool}
}

// Load возвращает состояние триггера или ErrNotFound.
func (r *TriggerRepo) Load(ctx context.Context, key domain.TriggerKey) (*domain.TriggerState, error) {
	query := `
		SELECT namespace, flow_id, trigger_id, cron, next_due_at, last_fired_at, last_execution_id
		FROM trigger_states
		WHERE namespace = $1 AND flow_id = $2 AND trigger_id = $3
	`
	return scanTriggerState(r.pool.QueryRow(ctx, query, key.Namespace, key.FlowID, key.TriggerID))
}

// Save сохраняет состояние триггера (upsert).
func (r *TriggerRepo) Save(ctx context.Context, s *domain.TriggerState) error {
	query := `
		INSERT INTO trigger_states (namespace, flow_id, trigger_id, cron, next_due_at, last_fired_at, last_execution_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (namespace, flow_id, trigger_id) DO UPDATE
		SET cron = EXCLUDED.cron,
		    next_due_at = EXCLUDED.next_due_at,
		    last_fired_at = EXCLUDED.last_fired_at,
		    last_execution_id = EXCLUDED.last_execution_id
	`
	_, err := r.pool.Exec(ctx, query,
		s.Namespace, s.FlowID, s.TriggerID, s.Cron,
		s.NextDueAt, s.LastFiredAt, s.LastExecutionID,
	)
	if err != nil {
		return fmt.Errorf("upsert trigger state: %w", err)
	}
	return nil
}

// List возвращает все сохранённые состояния.
func (r *TriggerRepo) List(ctx context.Context) ([]*domain.TriggerState, error) {
	query := `
		SELECT namespace, flow_id, trigger_id, cron, next_due_at, last_fired_at, last_execution_id
		FROM trigger_states
		ORDER BY namespace, flow_id, trigger_id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list trigger states: %w", err)
	}
	defer rows.Close()

	var out []*domain.TriggerState
	for rows.Next() {
		s, err := scanTriggerState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanTriggerState(row pgx.Row) (*domain.TriggerState, error) {
	var s domain.TriggerState
	err := row.Scan(
		&s.Namespace, &s.FlowID, &s.TriggerID, &s.Cron,
		&s.NextDueAt, &s.LastFiredAt, &s.LastExecutionID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan trigger state: %w", err)
	}
	s.NextDueAt = s.NextDueAt.UTC()
	return &s, nil
}
