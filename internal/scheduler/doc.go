// Package scheduler запускает flow по schedule-триггерам.
//
// Scheduler периодически перебирает триггеры всех flow, сравнивает
// время со следующим срабатыванием и запускает execution через runner.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Run, Tick, processTrigger)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//   - states.go    — хранилище состояния триггеров в памяти
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Flows:   flowStore,
//	    Starter: runner,
//	    States:  repo.NewTriggerRepo(pool),  // опционально, иначе в памяти
//	    Logger:  logger,
//	})
//
//	go sched.Run(ctx)
//
// Первое появление триггера только вычисляет время срабатывания:
// execution запускается, когда это время наступит.
package scheduler
