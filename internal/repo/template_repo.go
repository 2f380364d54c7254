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

// TemplateRepo — реестр шаблонов в Postgres.
//
// Реализует registry.Templates: шаблон с существующим ключом не
// перезаписывается, конфликт атомарен на уровне БД.
type TemplateRepo struct {
	pool *pgxpool.Pool
}

// NewTemplateRepo создаёт новый TemplateRepo.
func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

var _ registry.Templates = (*TemplateRepo)(nil)

// Store сохраняет шаблон. Существующий ключ — *registry.DuplicateTemplateError.
func (r *TemplateRepo) Store(ctx context.Context, t *domain.Template) error {
	if err := registry.CheckTemplate(t); err != nil {
		return err
	}

	tasksJSON, err := json.Marshal(t.Tasks)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	query := `
		INSERT INTO templates (namespace, id, description, tasks)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, t.Namespace, t.ID, nullString(t.Description), tasksJSON)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &registry.DuplicateTemplateError{Namespace: t.Namespace, ID: t.ID}
	}
	return nil
}

// Lookup возвращает шаблон по ключу. Нет шаблона — *registry.TemplateNotFoundError.
func (r *TemplateRepo) Lookup(ctx context.Context, namespace, id string) (*domain.Template, error) {
	query := `
		SELECT namespace, id, description, tasks
		FROM templates
		WHERE namespace = $1 AND id = $2
	`
	t, err := scanTemplate(r.pool.QueryRow(ctx, query, namespace, id))
	if errors.Is(err, ErrNotFound) {
		return nil, &registry.TemplateNotFoundError{Namespace: namespace, ID: id}
	}
	return t, err
}

// List возвращает все шаблоны, упорядоченные по (namespace, id).
func (r *TemplateRepo) List(ctx context.Context) ([]*domain.Template, error) {
	query := `
		SELECT namespace, id, description, tasks
		FROM templates
		ORDER BY namespace, id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// scanTemplate сканирует одну строку в Template.
func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	var description *string
	var tasksJSON []byte

	err := row.Scan(&t.Namespace, &t.ID, &description, &tasksJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}

	if description != nil {
		t.Description = *description
	}
	if err := json.Unmarshal(tasksJSON, &t.Tasks); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}
	return &t, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
