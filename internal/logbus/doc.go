// Package logbus доставляет доменные записи лога execution наблюдателям.
//
// Bus — publish/subscribe с каналом фиксированной ёмкости на каждого
// подписчика. Политика переполнения — блокировка публикующего:
// записи не теряются, порядок записей одного источника сохраняется.
// Порядок между независимыми источниками не гарантируется.
//
// Collector накапливает записи и позволяет дождаться нужной через
// AwaitMatch с ограничением по времени:
//
//	c := logbus.NewCollector(bus)
//	defer c.Close()
//	entry, err := c.AwaitMatch(func(e domain.LogEntry) bool {
//	    return e.Level == domain.LevelError
//	}, time.Minute)
//
// Journal хранит записи последних execution в памяти для чтения через API,
// когда Postgres не настроен.
package logbus
