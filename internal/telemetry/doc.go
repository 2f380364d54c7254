// Package telemetry обеспечивает наблюдаемость процессов Stencil.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики execution, task runs, шаблонов и шины логов
//
// Логи процесса (slog) и доменные записи лога execution (domain.LogEntry)
// разделены: последние доставляются через logbus.
package telemetry
