package logbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/telemetry"
)

// DefaultBufferSize — размер буфера подписчика по умолчанию.
const DefaultBufferSize = 256

// Consumer обрабатывает доставленную запись.
// Вызывается из отдельной горутины подписчика, записи приходят по одной.
type Consumer func(entry domain.LogEntry)

// Config — конфигурация шины.
type Config struct {
	// BufferSize — ёмкость канала каждого подписчика.
	BufferSize int

	// Logger — логгер процесса.
	Logger *slog.Logger
}

// Bus — шина доменных записей лога.
//
// Каждый подписчик получает собственный канал ёмкостью BufferSize,
// который вычитывает его горутина. Если буфер подписчика заполнен,
// Publish блокируется до освобождения места: записи не теряются,
// а порядок записей одного публикующего сохраняется.
//
// Publish, Subscribe и Unsubscribe безопасны для конкурентного вызова.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup

	bufferSize int
	logger     *slog.Logger
}

// New создаёт шину.
func New(cfg Config) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bus{
		subs:       make(map[uint64]*Subscription),
		stop:       make(chan struct{}),
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
	}
}

// Subscription — регистрация потребителя в шине.
type Subscription struct {
	id      uint64
	bus     *Bus
	ch      chan domain.LogEntry
	done    chan struct{}
	once    sync.Once
	consume Consumer
}

// Subscribe регистрирует потребителя. Он получает только записи,
// опубликованные после регистрации.
//
// После Close возвращает подписку, которая ничего не получит.
func (b *Bus) Subscribe(consume Consumer) *Subscription {
	sub := &Subscription{
		bus:     b,
		ch:      make(chan domain.LogEntry, b.bufferSize),
		done:    make(chan struct{}),
		consume: consume,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.once.Do(func() { close(sub.done) })
		return sub
	}

	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub

	b.wg.Add(1)
	go sub.run(&b.wg)

	return sub
}

// run доставляет записи потребителю до отписки или закрытия шины.
// После закрытия шины дочитывает то, что осталось в буфере.
func (s *Subscription) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case entry := <-s.ch:
			s.consume(entry)
		case <-s.done:
			return
		case <-s.bus.stop:
			s.drain()
			return
		}
	}
}

func (s *Subscription) drain() {
	for {
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case entry := <-s.ch:
			s.consume(entry)
		default:
			return
		}
	}
}

// Unsubscribe прекращает доставку. Записи, ещё лежащие в буфере,
// отбрасываются. Можно вызывать повторно и из самого Consumer.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { close(s.done) })

	if s.bus == nil || s.id == 0 {
		return
	}
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}

// Publish доставляет запись всем текущим подписчикам.
//
// Пустой Timestamp заполняется текущим временем.
// После Close запись отбрасывается. Блокировка шины на время
// ожидания места в буфере не удерживается: потребитель может
// подписываться и отписываться, пока публикующий ждёт.
func (b *Bus) Publish(entry domain.LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.logger.Debug("log entry dropped: bus closed",
			"execution_id", entry.ExecutionID,
			"level", entry.Level,
		)
		return
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	telemetry.LogEntriesTotal.WithLabelValues(string(entry.Level)).Inc()

	for _, sub := range subs {
		select {
		case sub.ch <- entry:
		case <-sub.done:
		case <-b.stop:
			return
		}
	}
}

// Subscribers возвращает количество активных подписчиков.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Closed возвращает true после Close.
func (b *Bus) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Close останавливает шину. Подписчики получают записи, уже
// находящиеся в их буферах, после чего их горутины завершаются.
// Close ждёт завершения всех горутин подписчиков.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	clear(b.subs)
	close(b.stop)
	b.mu.Unlock()

	b.wg.Wait()
}
