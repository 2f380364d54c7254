package logbus

import (
	"sync"
	"time"

	"github.com/shaiso/Stencil/internal/domain"
)

// Predicate проверяет запись.
type Predicate func(entry domain.LogEntry) bool

// Collector подписывается на шину и накапливает записи.
//
// AwaitMatch проверяет уже накопленные записи, поэтому Collector
// создают до запуска execution, за которым наблюдают.
type Collector struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	// changed закрывается и пересоздаётся при каждой новой записи.
	changed chan struct{}
	sub     *Subscription
}

// NewCollector создаёт Collector, подписанный на bus.
func NewCollector(bus *Bus) *Collector {
	c := &Collector{changed: make(chan struct{})}
	c.sub = bus.Subscribe(c.add)
	return c
}

func (c *Collector) add(entry domain.LogEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}

// Entries возвращает копию накопленных записей.
func (c *Collector) Entries() []domain.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.LogEntry(nil), c.entries...)
}

// Close отписывает Collector от шины.
func (c *Collector) Close() {
	c.sub.Unsubscribe()
}

// AwaitMatch ждёт запись, удовлетворяющую pred, среди уже полученных
// и будущих. Через timeout возвращает ErrTimeout.
func (c *Collector) AwaitMatch(pred Predicate, timeout time.Duration) (domain.LogEntry, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	checked := 0
	for {
		c.mu.Lock()
		for ; checked < len(c.entries); checked++ {
			if pred(c.entries[checked]) {
				entry := c.entries[checked]
				c.mu.Unlock()
				return entry, nil
			}
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return domain.LogEntry{}, ErrTimeout
		}
	}
}

// AwaitMatch ждёт будущую запись, удовлетворяющую pred.
// Записи, опубликованные до вызова, не учитываются.
// На закрытой шине сразу возвращает ErrClosed.
func (b *Bus) AwaitMatch(pred Predicate, timeout time.Duration) (domain.LogEntry, error) {
	if b.Closed() {
		return domain.LogEntry{}, ErrClosed
	}

	found := make(chan domain.LogEntry, 1)
	sub := b.Subscribe(func(entry domain.LogEntry) {
		if pred(entry) {
			select {
			case found <- entry:
			default:
			}
		}
	})
	defer sub.Unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case entry := <-found:
		return entry, nil
	case <-timer.C:
		return domain.LogEntry{}, ErrTimeout
	}
}
