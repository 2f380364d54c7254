package scheduler

import (
	"context"
	"sync"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/repo"
)

// StateStore хранит состояние триггеров между тиками.
// Load возвращает repo.ErrNotFound для триггера без состояния.
type StateStore interface {
	Load(ctx context.Context, key domain.TriggerKey) (*domain.TriggerState, error)
	Save(ctx context.Context, s *domain.TriggerState) error
}

// MemoryStates — StateStore в памяти процесса. Используется без БД.
type MemoryStates struct {
	mu     sync.Mutex
	states map[domain.TriggerKey]domain.TriggerState
}

// NewMemoryStates создаёт пустое хранилище.
func NewMemoryStates() *MemoryStates {
	return &MemoryStates{states: make(map[domain.TriggerKey]domain.TriggerState)}
}

// Load возвращает копию состояния.
func (m *MemoryStates) Load(_ context.Context, key domain.TriggerKey) (*domain.TriggerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[key]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &s, nil
}

// Save сохраняет копию состояния.
func (m *MemoryStates) Save(_ context.Context, s *domain.TriggerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[s.Key()] = *s
	return nil
}
