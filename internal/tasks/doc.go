// Package tasks содержит поведение типов задач.
//
// # Интерфейс Kind
//
//	type Kind interface {
//	    Type() string
//	    Execute(ctx context.Context, req *Request) (*Response, error)
//	}
//
// Request содержит уже вычисленные параметры задачи и LogSink для
// записей лога execution. Response содержит outputs, доступные
// следующим задачам как {{ outputs.<taskId>.<name> }}.
//
// # Registry
//
// Registry — фабрика поведения по тегу типа:
//
//	registry := tasks.DefaultRegistry()  // log, return, delay, http, transform, fail
//	kind, err := registry.Get("log")
//
// # Типы задач
//
//   - log       — запись сообщения в лог execution с заданным уровнем
//   - return    — возвращает значение как outputs.value
//   - delay     — пауза; прерывается отменой контекста
//   - http      — HTTP запрос; статус >= 400 — ошибка (если не allow_failed)
//   - transform — публикует mappings как outputs
//   - fail      — всегда завершается ошибкой
//
// Отмена контекста (kill) должна приводить к ErrTaskCancelled.
package tasks
