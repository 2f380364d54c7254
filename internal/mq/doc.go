// Package mq доставляет события execution через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация записей лога и завершённых execution
//   - consumer.go   — потребление очередей с ack/nack
//   - logs.go       — мост между logbus и очередью logs.persist
//
// Поток записей лога:
//
//	runner → logbus → ForwardLogs → stencil.events (log.<level>)
//	       → logs.persist → LogHandler → хранилище
//
// Execution в финальном состоянии публикуются как execution.<state>
// (Publisher реализует runner.Recorder).
package mq
