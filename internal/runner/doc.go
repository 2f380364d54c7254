// Package runner управляет выполнением flow.
//
// Runner отвечает за:
//   - Проверку и приведение входных параметров
//   - Разрешение шаблонов в граф задач (engine.Resolver)
//   - Запуск готовых задач с учётом parallelism
//   - Вычисление параметров задач в их scope
//   - Пересчёт состояния execution после каждого перехода
//   - Fail-fast, kill и таймаут ожидания
//
// Каждый execution обслуживает одна координирующая горутина.
// Задачи выполняются в рабочих горутинах и возвращают результат
// координатору через канал.
package runner
