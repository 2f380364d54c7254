// Package engine содержит ядро разрешения flow.
//
// Включает:
//   - expression.go — разбор и вычисление {{ path }} выражений
//   - scope.go      — вложенные scope с переходом к parent
//   - resolver.go   — развёртывание включений шаблонов
//   - graph.go      — разрешённый граф задач и зависимости по данным
//   - parser.go     — валидация Flow и Template
//   - inputs.go     — проверка и приведение входных параметров
//
// Engine не выполняет задачи: он отвечает за то, что выполнять и
// с какими значениями параметров. Выполнением занимается runner.
package engine
