package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Stencil/internal/domain"
)

// Templates — хранилище шаблонов.
type Templates interface {
	// Store сохраняет шаблон. Если ключ занят — *DuplicateTemplateError,
	// существующий шаблон не меняется.
	Store(ctx context.Context, t *domain.Template) error

	// Lookup возвращает шаблон или *TemplateNotFoundError.
	Lookup(ctx context.Context, namespace, id string) (*domain.Template, error)

	// List возвращает все шаблоны, отсортированные по (namespace, id).
	List(ctx context.Context) ([]*domain.Template, error)
}

// Memory — хранилище шаблонов в памяти.
//
// Шаблоны копируются при сохранении и при выдаче, поэтому вызывающий
// код не может изменить сохранённое значение.
type Memory struct {
	templates sync.Map // domain.TemplateKey → *domain.Template
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{}
}

// Store сохраняет копию шаблона.
func (m *Memory) Store(_ context.Context, t *domain.Template) error {
	if err := CheckTemplate(t); err != nil {
		return err
	}
	if _, loaded := m.templates.LoadOrStore(t.Key(), t.Clone()); loaded {
		return &DuplicateTemplateError{Namespace: t.Namespace, ID: t.ID}
	}
	return nil
}

// Lookup возвращает копию шаблона.
func (m *Memory) Lookup(_ context.Context, namespace, id string) (*domain.Template, error) {
	v, ok := m.templates.Load(domain.TemplateKey{Namespace: namespace, ID: id})
	if !ok {
		return nil, &TemplateNotFoundError{Namespace: namespace, ID: id}
	}
	return v.(*domain.Template).Clone(), nil
}

// List возвращает копии всех шаблонов.
func (m *Memory) List(_ context.Context) ([]*domain.Template, error) {
	var out []*domain.Template
	m.templates.Range(func(_, v any) bool {
		out = append(out, v.(*domain.Template).Clone())
		return true
	})
	sortTemplates(out)
	return out, nil
}

// CheckTemplate проверяет обязательные поля шаблона и согласованность задач.
func CheckTemplate(t *domain.Template) error {
	if t == nil {
		return fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}
	if t.Namespace == "" || t.ID == "" {
		return fmt.Errorf("%w: namespace and id are required", ErrInvalidTemplate)
	}
	for i := range t.Tasks {
		if err := t.Tasks[i].CheckKind(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
		}
	}
	return nil
}

func sortTemplates(ts []*domain.Template) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Namespace != ts[j].Namespace {
			return ts[i].Namespace < ts[j].Namespace
		}
		return ts[i].ID < ts[j].ID
	})
}
