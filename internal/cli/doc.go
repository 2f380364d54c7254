// Package cli реализует инструмент командной строки Stencil.
//
// # Обзор
//
// CLI работает в двух режимах:
//   - Серверный: команды template, flow и execution обращаются к
//     Stencil API по HTTP через Client
//   - Локальный: run и validate читают каталог YAML-документов и
//     выполняют flow во встроенном runner, без сервера
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Stencil API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Ответ с ошибкой возвращается как *APIError.
//
//	client := cli.NewClient("http://localhost:8080")
//	exec, err := client.StartExecution("io.stencil.tests", "nightly", cli.StartOpts{Wait: true})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения и записи лога execution — в stderr.
// Это позволяет использовать pipe: stencil execution list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - template: list, get, create
//   - flow: list, put
//   - execution: list, start, show, kill, logs
//   - run, validate — локальный режим
//
// Каждая группа создаётся через фабричную функцию (NewTemplateCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
//
// Execution, завершившийся в FAILED или KILLED, возвращает
// ErrExecutionUnsuccessful, и процесс выходит с ненулевым кодом.
package cli
