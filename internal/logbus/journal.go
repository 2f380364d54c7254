package logbus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Stencil/internal/domain"
)

// DefaultJournalExecutions — сколько execution хранит Journal по умолчанию.
const DefaultJournalExecutions = 1000

// Journal хранит записи лога в памяти, сгруппированные по execution.
//
// Когда число execution превышает лимит, удаляются записи самого
// давнего из них. Используется, когда постоянного хранилища нет.
type Journal struct {
	mu      sync.RWMutex
	byExec  map[uuid.UUID][]domain.LogEntry
	order   []uuid.UUID
	maxExec int
}

// NewJournal создаёт Journal на maxExecutions execution (<= 0 — DefaultJournalExecutions).
func NewJournal(maxExecutions int) *Journal {
	if maxExecutions <= 0 {
		maxExecutions = DefaultJournalExecutions
	}
	return &Journal{
		byExec:  make(map[uuid.UUID][]domain.LogEntry),
		maxExec: maxExecutions,
	}
}

// Attach подписывает Journal на шину.
func (j *Journal) Attach(bus *Bus) *Subscription {
	return bus.Subscribe(func(entry domain.LogEntry) {
		j.add(entry)
	})
}

// Append сохраняет запись.
func (j *Journal) Append(_ context.Context, entry domain.LogEntry) error {
	j.add(entry)
	return nil
}

func (j *Journal) add(entry domain.LogEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.byExec[entry.ExecutionID]; !ok {
		j.order = append(j.order, entry.ExecutionID)
		if len(j.order) > j.maxExec {
			oldest := j.order[0]
			j.order = j.order[1:]
			delete(j.byExec, oldest)
		}
	}
	j.byExec[entry.ExecutionID] = append(j.byExec[entry.ExecutionID], entry)
}

// ListByExecution возвращает записи execution в порядке получения,
// начиная с уровня minLevel (пусто — все).
func (j *Journal) ListByExecution(_ context.Context, executionID uuid.UUID, minLevel domain.Level) ([]domain.LogEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := []domain.LogEntry{}
	for _, e := range j.byExec[executionID] {
		if minLevel == "" || e.Level.AtLeast(minLevel) {
			out = append(out, e)
		}
	}
	return out, nil
}
