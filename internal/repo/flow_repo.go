package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/registry"
)

// FlowRepo — хранилище flow в Postgres. Определение хранится целиком в JSONB.
type FlowRepo struct {
	pool     *pgxpool.Pool
	validate func(*domain.Flow) error
}

// NewFlowRepo создаёт новый FlowRepo. validate вызывается перед каждым Put
// (может быть nil).
func NewFlowRepo(pool *pgxpool.Pool, validate func(*domain.Flow) error) *FlowRepo {
	return &FlowRepo{pool: pool, validate: validate}
}

var _ registry.Flows = (*FlowRepo)(nil)

// Put сохраняет flow, заменяя предыдущее определение.
func (r *FlowRepo) Put(ctx context.Context, f *domain.Flow) error {
	if r.validate != nil {
		if err := r.validate(f); err != nil {
			return err
		}
	}

	definition, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}

	query := `
		INSERT INTO flows (namespace, id, definition, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, id) DO UPDATE
		SET definition = EXCLUDED.definition, updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, f.Namespace, f.ID, definition); err != nil {
		return fmt.Errorf("upsert flow: %w", err)
	}
	return nil
}

// Get возвращает flow или *registry.FlowNotFoundError.
func (r *FlowRepo) Get(ctx context.Context, namespace, id string) (*domain.Flow, error) {
	query := `SELECT definition FROM flows WHERE namespace = $1 AND id = $2`

	f, err := scanFlow(r.pool.QueryRow(ctx, query, namespace, id))
	if errors.Is(err, ErrNotFound) {
		return nil, &registry.FlowNotFoundError{Namespace: namespace, ID: id}
	}
	return f, err
}

// List возвращает все flow, упорядоченные по (namespace, id).
func (r *FlowRepo) List(ctx context.Context) ([]*domain.Flow, error) {
	rows, err := r.pool.Query(ctx, `SELECT definition FROM flows ORDER BY namespace, id`)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var out []*domain.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFlow(row pgx.Row) (*domain.Flow, error) {
	var definition []byte
	err := row.Scan(&definition)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow: %w", err)
	}

	var f domain.Flow
	if err := json.Unmarshal(definition, &f); err != nil {
		return nil, fmt.Errorf("unmarshal flow: %w", err)
	}
	return &f, nil
}
