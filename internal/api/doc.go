// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с зависимостями (registry, runner, хранилища)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, metrics, recovery)
//   - response.go          — унифицированные JSON-ответы и отображение ошибок
//   - dto.go               — тела запросов и сокращённые ответы
//   - template_handler.go  — /templates
//   - flow_handler.go      — /flows
//   - execution_handler.go — /executions
//
// Ответы имеют вид {"data": ...} или {"error": {"code", "message"}}.
package api
