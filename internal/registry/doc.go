// Package registry хранит шаблоны и flow.
//
// Templates — хранилище шаблонов по ключу (namespace, id):
//   - Store   — атомарная вставка; повторный ключ → DuplicateTemplateError
//   - Lookup  — поиск; отсутствие → TemplateNotFoundError
//   - List    — все шаблоны, отсортированные по namespace и id
//
// Memory — реализация в памяти на sync.Map: чтения не блокируются,
// запись по ключу эксклюзивна (LoadOrStore). Postgres-реализация
// находится в пакете repo.
//
// FlowStore — хранилище определений flow (последняя версия побеждает).
//
// Registry создаётся явно и передаётся компонентам; глобального
// экземпляра нет.
package registry
