package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/shaiso/Stencil/internal/domain"
)

// Flows — хранилище определений flow.
type Flows interface {
	Put(ctx context.Context, f *domain.Flow) error
	Get(ctx context.Context, namespace, id string) (*domain.Flow, error)
	List(ctx context.Context) ([]*domain.Flow, error)
}

// FlowStore — хранилище flow в памяти.
//
// В отличие от шаблонов, flow можно перезаписывать: Put заменяет
// предыдущее определение.
type FlowStore struct {
	mu       sync.RWMutex
	flows    map[domain.FlowKey]*domain.Flow
	validate func(*domain.Flow) error
}

// NewFlowStore создаёт хранилище. validate вызывается перед каждым Put
// (может быть nil).
func NewFlowStore(validate func(*domain.Flow) error) *FlowStore {
	return &FlowStore{
		flows:    make(map[domain.FlowKey]*domain.Flow),
		validate: validate,
	}
}

// Put сохраняет копию flow.
func (s *FlowStore) Put(_ context.Context, f *domain.Flow) error {
	if s.validate != nil {
		if err := s.validate(f); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[f.Key()] = f.Clone()
	return nil
}

// Get возвращает копию flow или *FlowNotFoundError.
func (s *FlowStore) Get(_ context.Context, namespace, id string) (*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flows[domain.FlowKey{Namespace: namespace, ID: id}]
	if !ok {
		return nil, &FlowNotFoundError{Namespace: namespace, ID: id}
	}
	return f.Clone(), nil
}

// List возвращает копии всех flow, отсортированные по (namespace, id).
func (s *FlowStore) List(_ context.Context) ([]*domain.Flow, error) {
	s.mu.RLock()
	out := make([]*domain.Flow, 0, len(s.flows))
	for _, f := range s.flows {
		out = append(out, f.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
