package tasks

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр типов задач.
//
// Фабрика поведения задачи по тегу типа. Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]Kind),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными типами.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewLogTask())
	r.Register(NewReturnTask())
	r.Register(NewDelayTask())
	r.Register(NewHTTPTask())
	r.Register(NewTransformTask())
	r.Register(NewFailTask())

	return r
}

// Register регистрирует тип задачи.
// Если тип уже существует, он будет перезаписан.
func (r *Registry) Register(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind.Type()] = kind
}

// Get возвращает поведение по типу.
// Возвращает ErrKindNotFound, если тип не найден.
func (r *Registry) Get(taskType string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, exists := r.kinds[taskType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrKindNotFound, taskType)
	}

	return kind, nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.kinds[taskType]
	return exists
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.kinds))
	for t := range r.kinds {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
